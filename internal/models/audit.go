package models

import "time"

// Audit actions written on every lifecycle transition that leaves draft.
const (
	AuditSubmitted     = "submitted"
	AuditCountersigned = "countersigned"
	AuditCancelled     = "cancelled"
	AuditRevoked       = "revoked"
	AuditExpired       = "expired"
)

// AuditEntry is written to document_audit and, when the document is linked to
// a contact, to that contact's auditLog.
type AuditEntry struct {
	ID             string         `firestore:"-" json:"id"`
	Action         string         `firestore:"action" json:"action"`
	DocumentID     string         `firestore:"documentId" json:"documentId"`
	DocumentNumber string         `firestore:"documentNumber,omitempty" json:"documentNumber,omitempty"`
	Kind           Kind           `firestore:"kind" json:"kind"`
	ContactID      string         `firestore:"contactId,omitempty" json:"contactId,omitempty"`
	ActorID        string         `firestore:"actorId" json:"actorId"`
	Timestamp      time.Time      `firestore:"timestamp" json:"timestamp"`
	Details        map[string]any `firestore:"details,omitempty" json:"details,omitempty"`
}
