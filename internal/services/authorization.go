package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/authorizationflow/internal/config"
	"github.com/Lllllllleong/authorizationflow/internal/gcp"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/pricing"
	"github.com/Lllllllleong/authorizationflow/internal/signature"
	"github.com/Lllllllleong/authorizationflow/internal/store"
	"github.com/Lllllllleong/authorizationflow/internal/workflow"
	"golang.org/x/sync/errgroup"
)

// DocumentStore is the persistence the service layer needs on top of the
// controller's collaborator.
type DocumentStore interface {
	workflow.Store
	Get(ctx context.Context, kind models.Kind, id string) (*models.Document, error)
	ListByOwner(ctx context.Context, kind models.Kind, ownerID string, limit int) ([]*models.Document, error)
}

// SignedCopier produces the stamped PDF copy of a finalized document.
type SignedCopier interface {
	Stamp(ctx context.Context, d *models.Document) (string, error)
}

// AuthorizationFunction binds the HTTP payloads to one controller per request.
type AuthorizationFunction struct {
	store    DocumentStore
	settings workflow.Settings
	notifier workflow.Notifier
	copier   SignedCopier
	pricing  *pricing.Table
	options  []workflow.Option
}

// NewAuthorization builds the service from environment configuration.
func NewAuthorization(ctx context.Context) (*AuthorizationFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	var storageClient *storage.Client
	if cfg.SignatureBucket != "" || cfg.SignedCopyTemplate != "" {
		storageClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
	}

	var images store.ImageStore
	if cfg.SignatureBucket != "" {
		images = store.NewGCSImageStore(storageClient, cfg.SignatureBucket)
	}

	f := &AuthorizationFunction{
		store:    store.NewFirestoreStore(firestoreClient, images),
		settings: cfg.Workflow,
		pricing:  pricing.DefaultTable,
	}

	if cfg.NotifyWorkflowID != "" {
		executionsClient, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		f.notifier = NewWorkflowNotifier(executionsClient, gcp.WorkflowParent(cfg.ProjectID, cfg.WorkflowLocation, cfg.NotifyWorkflowID))
	}

	if cfg.SignedCopyTemplate != "" {
		stamper, err := NewStamper(storageClient, cfg.SignedCopyTemplate, cfg.SignedCopyBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to create signed copy stamper: %w", err)
		}
		f.copier = stamper
	}

	slog.Info("Authorization service initialized.",
		"notifications", f.notifier != nil,
		"signedCopies", f.copier != nil,
		"signatureOffload", images != nil,
	)
	return f, nil
}

func (f *AuthorizationFunction) controllerOptions(actorID string) []workflow.Option {
	opts := []workflow.Option{
		workflow.WithActor(actorID),
		workflow.WithPricing(f.pricing),
	}
	if f.notifier != nil {
		opts = append(opts, workflow.WithNotifier(f.notifier))
	}
	return append(opts, f.options...)
}

// draftController resumes the client's draft. Server-owned fields always come
// from the stored record, never from the request.
func (f *AuthorizationFunction) draftController(ctx context.Context, req *models.DraftRequest) (*workflow.Controller, error) {
	if req == nil || req.Document == nil {
		return nil, &workflow.ValidationError{Message: "document is required"}
	}
	in := req.Document.Clone()
	if !in.Kind.Valid() {
		return nil, &workflow.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown document kind %q", in.Kind)}
	}
	opts := f.controllerOptions(req.ActorID)

	var err error
	if in.ID == "" {
		resetServerFields(in)
		if in.Signatures, err = trustedSignatures(in.Signatures, nil); err != nil {
			return nil, err
		}
		return workflow.Resume(in, f.store, f.settings, opts...)
	}

	stored, err := f.store.Get(ctx, in.Kind, in.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, &workflow.PersistenceError{Op: "load", Err: err}
	}
	if stored.Status != models.StatusDraft {
		// Every draft operation on a finalized record is a conflict.
		return workflow.Resume(stored, f.store, f.settings, opts...)
	}

	resetServerFields(in)
	in.OwnerID = stored.OwnerID
	in.ContactID = stored.ContactID
	in.DocumentNumber = stored.DocumentNumber
	in.CreatedAt = stored.CreatedAt
	if in.Signatures, err = trustedSignatures(in.Signatures, stored.Signatures); err != nil {
		return nil, err
	}
	return workflow.Resume(in, f.store, f.settings, append(opts, workflow.WithSaved(stored))...)
}

// storedController resumes a stored record for a lifecycle transition.
func (f *AuthorizationFunction) storedController(ctx context.Context, req *models.TransitionRequest) (*workflow.Controller, error) {
	if req == nil || req.DocumentID == "" {
		return nil, &workflow.ValidationError{Field: "documentId", Message: "documentId is required"}
	}
	if !req.Kind.Valid() {
		return nil, &workflow.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown document kind %q", req.Kind)}
	}
	stored, err := f.store.Get(ctx, req.Kind, req.DocumentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, &workflow.PersistenceError{Op: "load", Err: err}
	}
	return workflow.Resume(stored, f.store, f.settings, f.controllerOptions(req.ActorID)...)
}

func resetServerFields(d *models.Document) {
	d.Status = models.StatusDraft
	d.DocumentNumber = ""
	d.CreatedAt = time.Time{}
	d.UpdatedAt = time.Time{}
	d.EffectiveDate = nil
	d.ExpirationDate = nil
	d.CountersignedAt = nil
	d.CancelledDate = nil
	d.RevokedDate = nil
	d.ExpiredDate = nil
	d.Reason = ""
	d.TerminatedBy = ""
}

// trustedSignatures keeps freshly captured images and stored URIs the server
// already wrote. Countersignatures only arrive through Countersign. A blank
// or malformed inline image is a ValidationError.
func trustedSignatures(in, stored []models.Signature) ([]models.Signature, error) {
	capture := signature.NewAdapter(nil)
	known := make(map[string]bool, len(stored))
	for _, s := range stored {
		if s.ImageURI != "" {
			known[s.ImageURI] = true
		}
	}
	var out []models.Signature
	for _, s := range in {
		if s.Role == models.RoleCountersigner {
			continue
		}
		switch {
		case s.ImageData != "":
			if err := capture.Verify(s.ImageData); err != nil {
				verr := &workflow.ValidationError{Section: models.SectionSignature, Field: "signature", Message: err.Error()}
				if s.SectionKey != "" {
					verr.Section, verr.Field = models.SectionAcknowledgements, "initials."+s.SectionKey
				}
				return nil, verr
			}
			s.ImageURI = ""
		case s.ImageURI != "" && known[s.ImageURI]:
		default:
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func documentResponse(ctl *workflow.Controller) *models.DocumentResponse {
	return &models.DocumentResponse{Status: "success", Document: ctl.Document()}
}

// SaveDraft stores the in-progress draft.
func (f *AuthorizationFunction) SaveDraft(ctx context.Context, req *models.DraftRequest) (*models.DocumentResponse, error) {
	ctl, err := f.draftController(ctx, req)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("kind", string(ctl.Policy().Kind), "documentId", ctl.Document().ID, "actorId", req.ActorID)

	if err := ctl.SaveDraft(ctx); err != nil {
		logCtx.Warn("Save draft rejected.", "error", err)
		return nil, err
	}
	return documentResponse(ctl), nil
}

// Advance moves the draft to its next applicable section. Nothing is stored.
func (f *AuthorizationFunction) Advance(ctx context.Context, req *models.DraftRequest) (*models.DocumentResponse, error) {
	ctl, err := f.draftController(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctl.AdvanceSection(); err != nil {
		return nil, err
	}
	return documentResponse(ctl), nil
}

// GoBack moves the draft to its previous applicable section. Nothing is stored.
func (f *AuthorizationFunction) GoBack(ctx context.Context, req *models.DraftRequest) (*models.DocumentResponse, error) {
	ctl, err := f.draftController(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctl.GoBack(); err != nil {
		return nil, err
	}
	return documentResponse(ctl), nil
}

// Submit finalizes the draft and, when configured, stamps a signed copy.
func (f *AuthorizationFunction) Submit(ctx context.Context, req *models.DraftRequest) (*models.DocumentResponse, error) {
	ctl, err := f.draftController(ctx, req)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("kind", string(ctl.Policy().Kind), "actorId", req.ActorID)

	// --- 1. Finalize through the controller ---
	if err := ctl.Submit(ctx); err != nil {
		logCtx.Warn("Submit rejected.", "error", err)
		return nil, err
	}
	doc := ctl.Document()
	logCtx = logCtx.With("documentId", doc.ID, "documentNumber", doc.DocumentNumber)

	// --- 2. Signed copy; the submit is already committed ---
	if f.copier != nil {
		uri, err := f.copier.Stamp(ctx, doc)
		if err != nil {
			logCtx.Warn("Failed to produce signed copy.", "error", err)
		} else {
			logCtx.Info("Signed copy stored.", "gcsUri", uri)
		}
	}
	return &models.DocumentResponse{Status: "success", Document: doc}, nil
}

// Countersign activates a document waiting on the company's signature.
func (f *AuthorizationFunction) Countersign(ctx context.Context, req *models.TransitionRequest) (*models.DocumentResponse, error) {
	ctl, err := f.storedController(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctl.Countersign(ctx, req.Signature); err != nil {
		return nil, err
	}
	return documentResponse(ctl), nil
}

// Cancel ends an active or pending document.
func (f *AuthorizationFunction) Cancel(ctx context.Context, req *models.TransitionRequest) (*models.DocumentResponse, error) {
	ctl, err := f.storedController(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctl.Cancel(ctx, req.Reason); err != nil {
		return nil, err
	}
	return documentResponse(ctl), nil
}

// Revoke withdraws an active or pending authorization.
func (f *AuthorizationFunction) Revoke(ctx context.Context, req *models.TransitionRequest) (*models.DocumentResponse, error) {
	ctl, err := f.storedController(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctl.Revoke(ctx, req.Reason); err != nil {
		return nil, err
	}
	return documentResponse(ctl), nil
}

var allKinds = []models.Kind{
	models.KindPaymentAuthorization,
	models.KindServiceAgreement,
	models.KindPowerOfAttorney,
}

// List returns the owner's recent documents, newest first. An empty kind
// lists across all three collections.
func (f *AuthorizationFunction) List(ctx context.Context, req *models.ListRequest) (*models.ListResponse, error) {
	if req == nil || strings.TrimSpace(req.OwnerID) == "" {
		return nil, &workflow.ValidationError{Field: "ownerId", Message: "ownerId is required"}
	}
	kinds := allKinds
	if req.Kind != "" {
		if !req.Kind.Valid() {
			return nil, &workflow.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown document kind %q", req.Kind)}
		}
		kinds = []models.Kind{req.Kind}
	}
	limit := req.Limit
	if limit <= 0 || limit > store.MaxListLimit {
		limit = store.DefaultListLimit
	}

	results := make([][]*models.Document, len(kinds))
	eg, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		eg.Go(func() error {
			docs, err := f.store.ListByOwner(gctx, kind, req.OwnerID, limit)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			results[i] = docs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		slog.Error("Failed to list documents", "ownerId", req.OwnerID, "error", err)
		return nil, &workflow.PersistenceError{Op: "list", Err: err}
	}

	var docs []*models.Document
	for _, r := range results {
		docs = append(docs, r...)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	if len(docs) > limit {
		docs = docs[:limit]
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return &models.ListResponse{Status: "success", Documents: docs}, nil
}

// Quote prices a service selection without touching any document.
func (f *AuthorizationFunction) Quote(_ context.Context, sel *models.ServiceSelection) (*models.QuoteResponse, error) {
	if sel == nil {
		return nil, &workflow.ValidationError{Section: models.SectionServices, Message: "service selection is required"}
	}
	totals, err := f.pricing.Compute(*sel)
	if err != nil {
		return nil, &workflow.ValidationError{Section: models.SectionServices, Message: err.Error()}
	}
	return &models.QuoteResponse{Status: "success", Totals: totals.Model()}, nil
}
