// Package workflow drives an authorization document from draft to a terminal
// status: the section gate decides what may advance, and the controller owns
// every mutation and the finalize boundary.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Lllllllleong/authorizationflow/internal/identifier"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/pricing"
	"github.com/Lllllllleong/authorizationflow/internal/redact"
	"github.com/Lllllllleong/authorizationflow/internal/signature"
	"github.com/google/uuid"
)

// Store is the persistence collaborator.
type Store interface {
	// Save upserts d and returns its store-assigned ID.
	Save(ctx context.Context, d *models.Document) (string, error)
	AppendAudit(ctx context.Context, e *models.AuditEntry) error
}

// Notifier hands a committed transition to outbound delivery.
type Notifier interface {
	Notify(ctx context.Context, e *models.AuditEntry) error
}

// Controller holds one document's mutable state for a single editing session.
// Lifecycle transitions are serialized: a second call while one is in flight
// is rejected with a ConflictError.
type Controller struct {
	mu sync.Mutex

	doc      *models.Document
	policy   *Policy
	gate     *Gate
	store    Store
	notifier Notifier
	settings Settings
	clock    identifier.Clock
	numbers  *identifier.Generator
	pricing  *pricing.Table
	capture  *signature.Adapter
	actorID  string
	logger   *slog.Logger
	saved    *models.Document
}

// Option customizes a Controller.
type Option func(*Controller)

func WithClock(c identifier.Clock) Option         { return func(ctl *Controller) { ctl.clock = c } }
func WithRandom(r identifier.RandomSource) Option { return func(ctl *Controller) { ctl.numbers.Random = r } }
func WithPricing(t *pricing.Table) Option         { return func(ctl *Controller) { ctl.pricing = t } }
func WithNotifier(n Notifier) Option              { return func(ctl *Controller) { ctl.notifier = n } }
func WithActor(id string) Option                  { return func(ctl *Controller) { ctl.actorID = id } }
func WithLogger(l *slog.Logger) Option            { return func(ctl *Controller) { ctl.logger = l } }

// WithSaved supplies the stored copy of a resumed draft. Its masked account
// and card numbers are accepted in place of the raw values.
func WithSaved(d *models.Document) Option { return func(ctl *Controller) { ctl.saved = d } }

// New starts an in-memory draft. Nothing is stored until SaveDraft.
func New(kind models.Kind, ownerID string, store Store, settings Settings, opts ...Option) (*Controller, error) {
	d := &models.Document{
		Kind:    kind,
		Status:  models.StatusDraft,
		OwnerID: ownerID,
	}
	return Resume(d, store, settings, opts...)
}

// Resume wraps an existing document, either a stored record or a draft coming
// back from the form. Totals are recomputed rather than trusted.
func Resume(d *models.Document, store Store, settings Settings, opts ...Option) (*Controller, error) {
	if d == nil {
		return nil, &ValidationError{Message: "document is required"}
	}
	policy, ok := PolicyFor(d.Kind, settings)
	if !ok {
		return nil, &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown document kind %q", d.Kind)}
	}
	if store == nil {
		return nil, fmt.Errorf("workflow: store must be provided")
	}
	c := &Controller{
		doc:      d.Clone(),
		policy:   policy,
		store:    store,
		settings: settings,
		clock:    identifier.SystemClock{},
		numbers:  identifier.NewGenerator(),
		pricing:  pricing.DefaultTable,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pricing == nil {
		c.pricing = pricing.DefaultTable
	}
	c.numbers.Clock = c.clock
	c.gate = NewGate(policy, c.pricing, c.clock)
	c.capture = signature.NewAdapter(c.clock)
	c.gate.Remember(c.saved)
	c.logger = c.logger.With("kind", string(d.Kind), "ownerId", d.OwnerID)

	if c.doc.Status == "" {
		c.doc.Status = models.StatusDraft
	}
	if c.doc.Status == models.StatusDraft {
		c.prepareDraft()
	}
	return c, nil
}

// prepareDraft fills the controller-owned parts of a draft.
func (c *Controller) prepareDraft() {
	if c.doc.Acknowledgements == nil {
		c.doc.Acknowledgements = make(map[string]bool, len(c.policy.Acknowledgements))
	}
	for _, key := range c.policy.Acknowledgements {
		if _, ok := c.doc.Acknowledgements[key]; !ok {
			c.doc.Acknowledgements[key] = false
		}
	}
	if c.policy.Kind == models.KindPowerOfAttorney {
		aif := c.settings.AttorneyInFact
		c.doc.AttorneyInFact = &aif
	}
	if c.doc.CurrentSection < 0 || c.doc.CurrentSection >= c.gate.Len() {
		c.doc.CurrentSection = 0
	}
	_ = c.recomputeTotals()
}

// Document returns a copy of the current state.
func (c *Controller) Document() *models.Document {
	return c.doc.Clone()
}

// Policy exposes the layout the controller was built with.
func (c *Controller) Policy() *Policy { return c.policy }

// Gate exposes the completeness gate, e.g. for rendering per-section status.
func (c *Controller) Gate() *Gate { return c.gate }

// begin takes the transition guard. Callers must defer c.mu.Unlock().
func (c *Controller) begin(op string) error {
	if !c.mu.TryLock() {
		return &ConflictError{Op: op, Status: c.doc.Status, Message: "another operation is in progress"}
	}
	return nil
}

func (c *Controller) requireDraft(op string) error {
	if c.doc.Status != models.StatusDraft {
		msg := "document is no longer a draft"
		if c.doc.Status.Terminal() {
			msg = "document is " + string(c.doc.Status)
		}
		return &ConflictError{Op: op, Status: c.doc.Status, Message: msg}
	}
	return nil
}

// UpdateSection replaces one typed section of the draft. Service selections
// recompute the totals immediately.
func (c *Controller) UpdateSection(s models.Section) error {
	if s == nil {
		return &ValidationError{Message: "section is required"}
	}
	if err := c.begin("update"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.requireDraft("update"); err != nil {
		return err
	}
	if c.policy.Index(s.Key()) < 0 {
		return &ValidationError{Section: s.Key(), Message: "section is not part of this document"}
	}
	if s.Key() == models.SectionAttorneyInFact {
		return &ValidationError{Section: s.Key(), Message: "attorney-in-fact is set by configuration"}
	}
	models.Apply(c.doc, s)
	if s.Key() == models.SectionServices {
		return c.recomputeTotals()
	}
	return nil
}

// recomputeTotals derives computedTotals from the current selection. An
// invalid selection leaves zero totals and reports why.
func (c *Controller) recomputeTotals() error {
	if c.policy.Kind != models.KindServiceAgreement || c.doc.Services == nil {
		c.doc.ComputedTotals = nil
		return nil
	}
	totals, err := c.pricing.Compute(*c.doc.Services)
	if err != nil {
		c.doc.ComputedTotals = &models.ComputedTotals{}
		return &ValidationError{Section: models.SectionServices, Message: err.Error()}
	}
	c.doc.ComputedTotals = totals.Model()
	return nil
}

// SetAcknowledgement checks or unchecks one consent flag.
func (c *Controller) SetAcknowledgement(key string, checked bool) error {
	if err := c.begin("acknowledge"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.requireDraft("acknowledge"); err != nil {
		return err
	}
	if !c.policy.hasAcknowledgement(key) {
		return &ValidationError{Section: models.SectionAcknowledgements, Field: key, Message: "unknown acknowledgement"}
	}
	c.doc.Acknowledgements[key] = checked
	return nil
}

// AddSignature records a captured signature, or a clause initial when
// SectionKey is set. Re-signing the same slot replaces the earlier capture.
func (c *Controller) AddSignature(sig *models.Signature) error {
	if err := c.begin("sign"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.requireDraft("sign"); err != nil {
		return err
	}
	return c.addSignature(sig)
}

func (c *Controller) addSignature(sig *models.Signature) error {
	if err := c.checkImage(sig, "signature"); err != nil {
		return err
	}
	if sig.SectionKey != "" && !c.policy.requiresInitial(sig.SectionKey) {
		return &ValidationError{Section: models.SectionAcknowledgements, Field: "initials." + sig.SectionKey, Message: "clause does not take initials"}
	}
	s := *sig
	if s.Role == "" {
		s.Role = models.RoleSigner
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = c.clock.Now()
	}
	kept := c.doc.Signatures[:0:0]
	for _, existing := range c.doc.Signatures {
		if existing.SectionKey == s.SectionKey && existing.Role == s.Role {
			continue
		}
		kept = append(kept, existing)
	}
	c.doc.Signatures = append(kept, s)
	return nil
}

// checkImage rejects a missing, blank or malformed inline drawing. A stored
// image URI is accepted as is.
func (c *Controller) checkImage(sig *models.Signature, field string) error {
	if sig == nil || !sig.HasImage() {
		return &ValidationError{Section: models.SectionSignature, Field: field, Message: "signature is empty"}
	}
	if sig.ImageData == "" {
		return nil
	}
	if err := c.capture.Verify(sig.ImageData); err != nil {
		return &ValidationError{Section: models.SectionSignature, Field: field, Message: err.Error()}
	}
	return nil
}

// CaptureSignature reads a drawing surface and records it. clause is empty
// for the main signature. An empty surface is a ValidationError.
func (c *Controller) CaptureSignature(s signature.Surface, clause string) error {
	var (
		sig *models.Signature
		err error
	)
	if clause == "" {
		sig, err = c.capture.Capture(s)
	} else {
		sig, err = c.capture.CaptureInitial(s, clause)
	}
	if err != nil {
		return &ValidationError{Section: models.SectionSignature, Field: "signature", Message: err.Error()}
	}
	return c.AddSignature(sig)
}

// ClearSignature drops an unsaved capture for the given slot.
func (c *Controller) ClearSignature(clause string) error {
	if err := c.begin("clear signature"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.requireDraft("clear signature"); err != nil {
		return err
	}
	kept := c.doc.Signatures[:0:0]
	for _, s := range c.doc.Signatures {
		if s.SectionKey == clause && s.Role != models.RoleCountersigner {
			continue
		}
		kept = append(kept, s)
	}
	c.doc.Signatures = kept
	return nil
}

// AdvanceSection moves forward past conditional sections that do not apply,
// provided the current section is complete.
func (c *Controller) AdvanceSection() error {
	if err := c.begin("advance"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.requireDraft("advance"); err != nil {
		return err
	}
	idx := c.doc.CurrentSection
	if r := c.gate.Check(idx, c.doc); r != nil {
		return r.Err()
	}
	next := c.gate.Next(idx, c.doc)
	if next >= c.gate.Len() {
		return &ConflictError{Op: "advance", Status: c.doc.Status, Message: "already on the final section; submit to finalize"}
	}
	c.doc.CurrentSection = next
	return nil
}

// GoBack moves to the previous applicable section without validating.
func (c *Controller) GoBack() error {
	if err := c.begin("back"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.requireDraft("back"); err != nil {
		return err
	}
	c.doc.CurrentSection = c.gate.Prev(c.doc.CurrentSection, c.doc)
	return nil
}

// assignNumber gives next a document number unless it already has one.
func (c *Controller) assignNumber(next *models.Document) {
	if next.DocumentNumber == "" {
		next.DocumentNumber = c.numbers.Next(c.policy.Prefix)
	}
}

// persist saves next and, only on success, makes it the current state.
func (c *Controller) persist(ctx context.Context, op string, next *models.Document) error {
	id, err := c.store.Save(ctx, next)
	if err != nil {
		c.logger.Error("Failed to persist document", "op", op, "documentId", next.ID, "error", err)
		return &PersistenceError{Op: op, Err: err}
	}
	next.ID = id
	c.doc = next
	return nil
}

// dropUnverifiedCredentials clears account and card numbers that have not
// passed their checks, so every masked number in a saved draft stands for a
// validated one.
func (c *Controller) dropUnverifiedCredentials(next *models.Document) {
	if b := next.BankAccount; b != nil && b.AccountNumber != "" {
		keep := checkAccountNumber(b) == nil
		if redact.Masked(b.AccountNumber) {
			keep = b.AccountNumber == c.gate.savedAccount
		}
		if !keep {
			b.AccountNumber, b.ConfirmAccountNumber = "", ""
		}
	}
	if card := next.Card; card != nil && card.CardNumber != "" {
		_, r := checkCardNumber(card)
		keep := r == nil
		if redact.Masked(card.CardNumber) {
			keep = card.CardNumber == c.gate.savedCard
		}
		if !keep {
			card.CardNumber, card.CardType = "", ""
		}
	}
}

// SaveDraft upserts the draft with credentials redacted. It checks shape only.
func (c *Controller) SaveDraft(ctx context.Context) error {
	if err := c.begin("save draft"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.requireDraft("save draft"); err != nil {
		return err
	}
	if verr := CheckShape(c.doc); verr != nil {
		return verr
	}

	now := c.clock.Now()
	next := c.doc.Clone()
	c.dropUnverifiedCredentials(next)
	redact.Document(next)
	c.assignNumber(next)
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now

	if err := c.persist(ctx, "save draft", next); err != nil {
		return err
	}
	c.gate.Remember(next)
	c.logger.Info("Draft saved.", "documentId", next.ID, "documentNumber", next.DocumentNumber)
	return nil
}

// Submit finalizes the document. Every applicable section must pass and both
// the information and e-signature acknowledgements must be checked.
func (c *Controller) Submit(ctx context.Context) error {
	if err := c.begin("submit"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.requireDraft("submit"); err != nil {
		return err
	}

	// --- 1. Gate every section, then the two finalize acknowledgements ---
	if r := c.gate.CheckAll(c.doc); r != nil {
		return r.Err()
	}
	for _, key := range []string{AckInformationAccurate, AckElectronicSignature} {
		if !c.doc.Acknowledgements[key] {
			return &ValidationError{Section: models.SectionAcknowledgements, Field: key, Message: "acknowledgement must be checked"}
		}
	}
	if err := c.recomputeTotals(); err != nil {
		return err
	}

	// --- 2. Build the finalized record ---
	now := c.clock.Now()
	next := c.doc.Clone()
	c.assignNumber(next)
	effective := now
	next.EffectiveDate = &effective
	if c.policy.Expiration != nil {
		next.ExpirationDate = c.policy.Expiration(next, now)
	}
	redact.Document(next)
	next.Status = models.StatusActive
	if c.policy.RequiresCountersign {
		next.Status = models.StatusPendingSignature
	}
	next.CurrentSection = c.gate.Last(next)
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now

	// --- 3. Persist, then record the audit trail ---
	if err := c.persist(ctx, "submit", next); err != nil {
		return err
	}
	details := map[string]any{"status": string(next.Status)}
	if next.ExpirationDate != nil {
		details["expirationDate"] = *next.ExpirationDate
	}
	if next.ComputedTotals != nil {
		details["totalContract"] = next.ComputedTotals.TotalContract
	}
	c.record(ctx, models.AuditSubmitted, details)
	c.logger.Info("Document submitted.", "documentId", next.ID, "documentNumber", next.DocumentNumber, "status", next.Status)
	return nil
}

// Countersign activates a document waiting on the company's signature.
func (c *Controller) Countersign(ctx context.Context, sig *models.Signature) error {
	if err := c.begin("countersign"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.doc.Status != models.StatusPendingSignature {
		return &ConflictError{Op: "countersign", Status: c.doc.Status, Message: "document is not awaiting a countersignature"}
	}
	if err := c.checkImage(sig, "countersignature"); err != nil {
		return err
	}

	now := c.clock.Now()
	next := c.doc.Clone()
	s := *sig
	s.Role = models.RoleCountersigner
	s.SectionKey = ""
	if s.CapturedAt.IsZero() {
		s.CapturedAt = now
	}
	next.Signatures = append(next.Signatures, s)
	next.Status = models.StatusActive
	next.CountersignedAt = &now
	next.UpdatedAt = now

	if err := c.persist(ctx, "countersign", next); err != nil {
		return err
	}
	c.record(ctx, models.AuditCountersigned, map[string]any{"status": string(next.Status)})
	return nil
}

// Cancel ends an active or pending document at the client's request.
func (c *Controller) Cancel(ctx context.Context, reason string) error {
	return c.terminate(ctx, "cancel", models.StatusCancelled, reason)
}

// Revoke withdraws the authorization.
func (c *Controller) Revoke(ctx context.Context, reason string) error {
	return c.terminate(ctx, "revoke", models.StatusRevoked, reason)
}

func (c *Controller) terminate(ctx context.Context, op string, status models.Status, reason string) error {
	if err := c.begin(op); err != nil {
		return err
	}
	defer c.mu.Unlock()

	switch {
	case c.doc.Status.Terminal():
		return &ConflictError{Op: op, Status: c.doc.Status, Message: "document is already " + string(c.doc.Status)}
	case c.doc.Status != models.StatusActive && c.doc.Status != models.StatusPendingSignature:
		return &ConflictError{Op: op, Status: c.doc.Status, Message: "only active or pending documents can be " + string(status)}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return &ValidationError{Field: "reason", Message: "a reason is required"}
	}

	now := c.clock.Now()
	next := c.doc.Clone()
	next.Status = status
	next.Reason = reason
	next.TerminatedBy = c.actorID
	next.UpdatedAt = now
	action := models.AuditCancelled
	if status == models.StatusRevoked {
		next.RevokedDate = &now
		action = models.AuditRevoked
	} else {
		next.CancelledDate = &now
	}

	if err := c.persist(ctx, op, next); err != nil {
		return err
	}
	c.record(ctx, action, map[string]any{"reason": reason})
	c.logger.Info("Document terminated.", "documentId", next.ID, "status", status)
	return nil
}

// Expire moves an active document past its expiration date to expired.
func (c *Controller) Expire(ctx context.Context) error {
	if err := c.begin("expire"); err != nil {
		return err
	}
	defer c.mu.Unlock()

	now := c.clock.Now()
	switch {
	case c.doc.Status != models.StatusActive:
		return &ConflictError{Op: "expire", Status: c.doc.Status, Message: "only active documents expire"}
	case c.doc.ExpirationDate == nil || now.Before(*c.doc.ExpirationDate):
		return &ConflictError{Op: "expire", Status: c.doc.Status, Message: "document has not reached its expiration date"}
	}

	next := c.doc.Clone()
	next.Status = models.StatusExpired
	next.ExpiredDate = &now
	next.UpdatedAt = now
	if err := c.persist(ctx, "expire", next); err != nil {
		return err
	}
	c.record(ctx, models.AuditExpired, map[string]any{"expirationDate": *next.ExpirationDate})
	return nil
}

// record writes the audit entry and notifies. The transition is already
// committed, so failures here are logged, not returned.
func (c *Controller) record(ctx context.Context, action string, details map[string]any) {
	entry := &models.AuditEntry{
		ID:             uuid.NewString(),
		Action:         action,
		DocumentID:     c.doc.ID,
		DocumentNumber: c.doc.DocumentNumber,
		Kind:           c.doc.Kind,
		ContactID:      c.doc.ContactID,
		ActorID:        c.actorID,
		Timestamp:      c.clock.Now(),
		Details:        details,
	}
	logCtx := c.logger.With("documentId", entry.DocumentID, "action", action)
	if err := c.store.AppendAudit(ctx, entry); err != nil {
		logCtx.Error("CRITICAL: Failed to write audit entry after a committed transition.", "error", err)
	}
	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, entry); err != nil {
			logCtx.Warn("Failed to hand off notification.", "error", err)
		}
	}
}
