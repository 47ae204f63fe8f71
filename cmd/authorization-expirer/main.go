package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/authorizationflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	expirerInstance *services.ExpirerFunction
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by a Cloud Scheduler job publishing to Pub/Sub.
	functions.CloudEvent("ExpireDocuments", expireDocuments)
}

// main is required by the Go Functions Framework.
func main() {}

// expireDocuments runs one sweep. The event payload is ignored; the clock
// decides what is due.
func expireDocuments(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		expirerInstance, initErr = services.NewExpirer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	slog.Info("Expiry sweep triggered.", "eventId", e.ID(), "source", e.Source())
	res, err := expirerInstance.Process(ctx)
	if err != nil {
		// Returning the error marks the invocation failed so the scheduler retries.
		return err
	}
	slog.Info("Expiry sweep finished.", "expired", res.ExpiredCount)
	return nil
}
