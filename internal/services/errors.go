package services

import (
	"errors"
	"net/http"

	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/store"
	"github.com/Lllllllleong/authorizationflow/internal/workflow"
)

// API error kinds.
const (
	KindValidation  = "validation"
	KindPersistence = "persistence"
	KindConflict    = "conflict"
	KindNotFound    = "not_found"
	KindInternal    = "internal"
)

// HTTPStatus maps a service error to its response code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, workflow.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrPersistence):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// APIErrorFrom builds the structured body for err. Unclassified errors get a
// generic message so internals never reach the caller.
func APIErrorFrom(err error) *models.APIError {
	if err == nil {
		return nil
	}
	var (
		verr *workflow.ValidationError
		cerr *workflow.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		return &models.APIError{Kind: KindValidation, Section: string(verr.Section), Field: verr.Field, Message: verr.Message}
	case errors.Is(err, store.ErrNotFound):
		return &models.APIError{Kind: KindNotFound, Message: "document not found"}
	case errors.As(err, &cerr):
		return &models.APIError{Kind: KindConflict, Message: cerr.Message}
	case errors.Is(err, workflow.ErrPersistence):
		return &models.APIError{Kind: KindPersistence, Message: "the document could not be saved; please retry"}
	}
	return &models.APIError{Kind: KindInternal, Message: "internal error"}
}
