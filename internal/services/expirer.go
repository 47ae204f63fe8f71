package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/authorizationflow/internal/config"
	"github.com/Lllllllleong/authorizationflow/internal/gcp"
	"github.com/Lllllllleong/authorizationflow/internal/identifier"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/store"
	"github.com/Lllllllleong/authorizationflow/internal/workflow"
	"golang.org/x/sync/errgroup"
)

// ExpirerActor is recorded as the actor on expiry audit entries.
const ExpirerActor = "system:expirer"

// ExpiringStore finds documents whose term has ended.
type ExpiringStore interface {
	workflow.Store
	ListExpiring(ctx context.Context, kind models.Kind) ([]*models.Document, error)
}

// expiringKinds are the kinds whose policy sets an expirationDate.
var expiringKinds = []models.Kind{models.KindServiceAgreement, models.KindPowerOfAttorney}

// ExpirerFunction sweeps active documents past their expiration date.
type ExpirerFunction struct {
	store    ExpiringStore
	settings workflow.Settings
	notifier workflow.Notifier
	clock    identifier.Clock
}

// NewExpirer builds the sweep from environment configuration.
func NewExpirer(ctx context.Context) (*ExpirerFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	f := &ExpirerFunction{
		settings: cfg.Workflow,
		clock:    identifier.SystemClock{},
	}
	f.store = &clockedStore{FirestoreStore: store.NewFirestoreStore(firestoreClient, nil), clock: f.clock}

	if cfg.NotifyWorkflowID != "" {
		executionsClient, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		f.notifier = NewWorkflowNotifier(executionsClient, gcp.WorkflowParent(cfg.ProjectID, cfg.WorkflowLocation, cfg.NotifyWorkflowID))
	}
	slog.Info("Expirer initialized.", "notifications", f.notifier != nil)
	return f, nil
}

// clockedStore adapts FirestoreStore.ListExpiring to the sweep's clock.
type clockedStore struct {
	*store.FirestoreStore
	clock identifier.Clock
}

func (s *clockedStore) ListExpiring(ctx context.Context, kind models.Kind) ([]*models.Document, error) {
	return s.FirestoreStore.ListExpiring(ctx, kind, s.clock.Now())
}

// Process expires every due document. Documents that changed status since the
// query are skipped; any other failure fails the sweep after the rest finish.
func (f *ExpirerFunction) Process(ctx context.Context) (*models.ExpireResponse, error) {
	logCtx := slog.With("now", f.clock.Now())
	logCtx.Info("Starting expiry sweep.")

	// --- 1. Collect due documents per kind ---
	var due []*models.Document
	for _, kind := range expiringKinds {
		docs, err := f.store.ListExpiring(ctx, kind)
		if err != nil {
			logCtx.Error("Failed to query expiring documents", "kind", string(kind), "error", err)
			return nil, fmt.Errorf("failed to query expiring %s documents: %w", kind, err)
		}
		due = append(due, docs...)
	}
	logCtx.Info("Found documents due for expiry.", "count", len(due))

	// --- 2. Expire concurrently through the controller ---
	var expired, failed atomic.Int64
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for _, d := range due {
		eg.Go(func() error {
			docLog := logCtx.With("documentId", d.ID, "kind", string(d.Kind))
			opts := []workflow.Option{workflow.WithClock(f.clock), workflow.WithActor(ExpirerActor), workflow.WithLogger(docLog)}
			if f.notifier != nil {
				opts = append(opts, workflow.WithNotifier(f.notifier))
			}
			ctl, err := workflow.Resume(d, f.store, f.settings, opts...)
			if err != nil {
				failed.Add(1)
				docLog.Error("Failed to resume document for expiry", "error", err)
				return nil
			}
			err = ctl.Expire(gctx)
			switch {
			case err == nil:
				expired.Add(1)
			case errors.Is(err, workflow.ErrConflict):
				docLog.Info("Skipping document no longer due.", "error", err)
			default:
				failed.Add(1)
				docLog.Error("Failed to expire document", "error", err)
			}
			return nil
		})
	}
	_ = eg.Wait()

	res := &models.ExpireResponse{Status: "success", ExpiredCount: int(expired.Load())}
	if n := failed.Load(); n > 0 {
		logCtx.Error("Expiry sweep finished with failures.", "expired", res.ExpiredCount, "failed", n)
		return res, fmt.Errorf("%d documents failed to expire", n)
	}
	logCtx.Info("Expiry sweep complete.", "expired", res.ExpiredCount)
	return res, nil
}
