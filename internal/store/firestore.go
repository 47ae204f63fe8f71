// Package store persists authorization documents in Firestore, one collection
// per kind, and writes the linked audit trail.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	AuditCollection    = "document_audit"
	ContactsCollection = "contacts"
	ContactAuditLog    = "auditLog"

	DefaultListLimit = 25
	MaxListLimit     = 100
)

// ErrNotFound is returned by Get when no document has the given ID.
var ErrNotFound = errors.New("document not found")

// FirestoreStore implements the workflow persistence collaborator.
type FirestoreStore struct {
	client *firestore.Client
	images ImageStore
}

// NewFirestoreStore wraps client. images may be nil, in which case signature
// images stay inline on the document.
func NewFirestoreStore(client *firestore.Client, images ImageStore) *FirestoreStore {
	return &FirestoreStore{client: client, images: images}
}

// Save upserts d into its kind's collection and returns the document ID.
func (s *FirestoreStore) Save(ctx context.Context, d *models.Document) (string, error) {
	collection := d.Kind.Collection()
	if collection == "" {
		return "", fmt.Errorf("unknown document kind %q", d.Kind)
	}
	col := s.client.Collection(collection)

	var ref *firestore.DocumentRef
	if d.ID == "" {
		ref = col.NewDoc()
	} else {
		ref = col.Doc(d.ID)
	}
	logCtx := slog.With("documentId", ref.ID, "kind", string(d.Kind))

	if s.images != nil {
		if err := OffloadSignatures(ctx, s.images, d.Kind, ref.ID, d); err != nil {
			logCtx.Error("Failed to offload signature images", "error", err)
			return "", err
		}
	}

	if _, err := ref.Set(ctx, d); err != nil {
		logCtx.Error("Failed to write document", "error", err)
		return "", fmt.Errorf("failed to write %s/%s: %w", collection, ref.ID, err)
	}
	return ref.ID, nil
}

// AppendAudit writes e to document_audit and, when the document is linked to
// a contact, to that contact's auditLog. Both writes share e.ID and commit
// together.
func (s *FirestoreStore) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	if e.ID == "" {
		return fmt.Errorf("audit entry has no ID")
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(s.client.Collection(AuditCollection).Doc(e.ID), e); err != nil {
			return err
		}
		if e.ContactID == "" {
			return nil
		}
		ref := s.client.Collection(ContactsCollection).Doc(e.ContactID).Collection(ContactAuditLog).Doc(e.ID)
		return tx.Set(ref, e)
	})
	if err != nil {
		return fmt.Errorf("failed to write audit entry %s: %w", e.ID, err)
	}
	return nil
}

// Get loads one document.
func (s *FirestoreStore) Get(ctx context.Context, kind models.Kind, id string) (*models.Document, error) {
	collection := kind.Collection()
	if collection == "" {
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	return decode(snap)
}

// ListByOwner returns the owner's most recently updated documents of one kind.
func (s *FirestoreStore) ListByOwner(ctx context.Context, kind models.Kind, ownerID string, limit int) ([]*models.Document, error) {
	collection := kind.Collection()
	if collection == "" {
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	q := s.client.Collection(collection).
		Where("ownerId", "==", ownerID).
		OrderBy("updatedAt", firestore.Desc).
		Limit(limit)
	return collect(q.Documents(ctx))
}

// ListExpiring returns active documents of kind whose expirationDate is at or
// before now.
func (s *FirestoreStore) ListExpiring(ctx context.Context, kind models.Kind, now time.Time) ([]*models.Document, error) {
	collection := kind.Collection()
	if collection == "" {
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
	q := s.client.Collection(collection).
		Where("status", "==", string(models.StatusActive)).
		Where("expirationDate", "<=", now)
	return collect(q.Documents(ctx))
}

func collect(it *firestore.DocumentIterator) ([]*models.Document, error) {
	defer it.Stop()
	var docs []*models.Document
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate documents: %w", err)
		}
		d, err := decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func decode(snap *firestore.DocumentSnapshot) (*models.Document, error) {
	var d models.Document
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", snap.Ref.Path, err)
	}
	d.ID = snap.Ref.ID
	return &d, nil
}
