package models

// These structs define the JSON payloads exchanged between the form frontend
// and the authorization Cloud Functions.

// DraftRequest carries the full in-session draft, including raw credentials
// that are redacted before anything is stored.
type DraftRequest struct {
	ActorID  string    `json:"actorId"`
	Document *Document `json:"document"`
}

// TransitionRequest addresses a stored document for cancel, revoke or countersign.
type TransitionRequest struct {
	ActorID    string     `json:"actorId"`
	Kind       Kind       `json:"kind"`
	DocumentID string     `json:"documentId"`
	Reason     string     `json:"reason,omitempty"`
	Signature  *Signature `json:"signature,omitempty"`
}

// DocumentResponse is returned by every lifecycle function.
type DocumentResponse struct {
	Status   string    `json:"status"`
	Document *Document `json:"document,omitempty"`
	Error    *APIError `json:"error,omitempty"`
}

// APIError is the structured failure body; Kind is validation, persistence or conflict.
type APIError struct {
	Kind    string `json:"kind"`
	Section string `json:"section,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ListRequest asks for the recent documents of one owner.
type ListRequest struct {
	OwnerID string `json:"ownerId"`
	Kind    Kind   `json:"kind"`
	Limit   int    `json:"limit,omitempty"`
}

type ListResponse struct {
	Status    string      `json:"status"`
	Documents []*Document `json:"documents"`
}

// QuoteResponse returns live agreement totals without touching a document.
type QuoteResponse struct {
	Status string          `json:"status"`
	Totals *ComputedTotals `json:"totals,omitempty"`
	Error  *APIError       `json:"error,omitempty"`
}

// ExpireResponse reports one expirer sweep.
type ExpireResponse struct {
	Status       string `json:"status"`
	ExpiredCount int    `json:"expiredCount"`
}

// TagRequest is the input for the document-tagger function.
type TagRequest struct {
	DocumentID string   `json:"documentId"`
	Text       string   `json:"text"`
	Categories []string `json:"categories,omitempty"`
}

// TagResponse is the output of the document-tagger function.
type TagResponse struct {
	Status   string   `json:"status"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Source   string   `json:"source"`
}
