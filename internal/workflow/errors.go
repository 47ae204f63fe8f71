package workflow

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/authorizationflow/internal/models"
)

// Error kinds. Every error returned by the controller matches exactly one of
// these with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrPersistence         = errors.New("persistence failed")
	ErrConflict            = errors.New("conflicting document status")
	ErrGenerationCollision = errors.New("document number collision")
)

// ValidationError names the first unmet requirement. It is recoverable by
// re-prompting the user.
type ValidationError struct {
	Section models.SectionKey
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Section != "" && e.Field != "":
		return fmt.Sprintf("validation failed: %s.%s: %s", e.Section, e.Field, e.Message)
	case e.Section != "":
		return fmt.Sprintf("validation failed: %s: %s", e.Section, e.Message)
	}
	return "validation failed: " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PersistenceError wraps a store failure. The in-memory draft is unchanged.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// ConflictError reports an operation attempted in an incompatible status. It
// is a no-op from the document's point of view.
type ConflictError struct {
	Op      string
	Status  models.Status
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s rejected in status %q: %s", e.Op, e.Status, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Reason is the gate's answer when a section is not satisfied.
type Reason struct {
	Section models.SectionKey
	Field   string
	Message string
}

func (r *Reason) Err() *ValidationError {
	return &ValidationError{Section: r.Section, Field: r.Field, Message: r.Message}
}
