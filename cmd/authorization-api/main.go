package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/services"
)

var (
	authorizationInstance *services.AuthorizationFunction
	once                  sync.Once
	initErr               error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// One entry point per form action; each is deployed as its own function.
	functions.HTTP("HandleSaveDraft", handle((*services.AuthorizationFunction).SaveDraft))
	functions.HTTP("HandleAdvanceSection", handle((*services.AuthorizationFunction).Advance))
	functions.HTTP("HandleGoBack", handle((*services.AuthorizationFunction).GoBack))
	functions.HTTP("HandleSubmit", handle((*services.AuthorizationFunction).Submit))
	functions.HTTP("HandleCountersign", handle((*services.AuthorizationFunction).Countersign))
	functions.HTTP("HandleCancel", handle((*services.AuthorizationFunction).Cancel))
	functions.HTTP("HandleRevoke", handle((*services.AuthorizationFunction).Revoke))
	functions.HTTP("HandleListDocuments", handle((*services.AuthorizationFunction).List))
	functions.HTTP("HandleQuote", handle((*services.AuthorizationFunction).Quote))
}

// main is required by the Go Functions Framework.
func main() {}

func instance() (*services.AuthorizationFunction, error) {
	once.Do(func() {
		authorizationInstance, initErr = services.NewAuthorization(context.Background())
	})
	return authorizationInstance, initErr
}

// handle adapts an AuthorizationFunction method to an HTTP handler that
// decodes Req and writes Res or a structured error.
func handle[Req, Res any](op func(*services.AuthorizationFunction, context.Context, *Req) (Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := instance()
		if err != nil {
			slog.Error("Critical error during function initialization", "error", err)
			http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Could not decode request body", "error", err)
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}

		res, err := op(f, r.Context(), &req)
		if err != nil {
			// The controller has already logged the failure with context.
			writeJSON(w, services.HTTPStatus(err), &models.DocumentResponse{Status: "error", Error: services.APIErrorFrom(err)})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
