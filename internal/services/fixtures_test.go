package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/pricing"
	"github.com/Lllllllleong/authorizationflow/internal/store"
	"github.com/Lllllllleong/authorizationflow/internal/workflow"
	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

const testSignature = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type fixedRandom int

func (f fixedRandom) IntN(int) int { return int(f) }

// memStore is an in-memory DocumentStore and ExpiringStore.
type memStore struct {
	mu      sync.Mutex
	nextID  int
	docs    map[string]*models.Document
	audits  []*models.AuditEntry
	getErr  error
	saveErr error
	now     time.Time
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*models.Document), now: testNow}
}

func (s *memStore) Save(_ context.Context, d *models.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	id := d.ID
	if id == "" {
		s.nextID++
		id = fmt.Sprintf("doc-%d", s.nextID)
	}
	c := d.Clone()
	c.ID = id
	s.docs[id] = c
	return id, nil
}

func (s *memStore) AppendAudit(_ context.Context, e *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}

func (s *memStore) Get(_ context.Context, kind models.Kind, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	d, ok := s.docs[id]
	if !ok || d.Kind != kind {
		return nil, fmt.Errorf("%s/%s: %w", kind.Collection(), id, store.ErrNotFound)
	}
	return d.Clone(), nil
}

func (s *memStore) ListByOwner(_ context.Context, kind models.Kind, ownerID string, limit int) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	var out []*models.Document
	for _, d := range s.docs {
		if d.Kind == kind && d.OwnerID == ownerID {
			out = append(out, d.Clone())
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListExpiring(_ context.Context, kind models.Kind) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	var out []*models.Document
	for _, d := range s.docs {
		if d.Kind == kind && d.Status == models.StatusActive && d.ExpirationDate != nil && !d.ExpirationDate.After(s.now) {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func (s *memStore) put(d *models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = d.Clone()
}

func (s *memStore) stored(id string) *models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id]
}

// MockCopier scripts signed copy results.
type MockCopier struct {
	mock.Mock
}

func (m *MockCopier) Stamp(ctx context.Context, d *models.Document) (string, error) {
	args := m.Called(ctx, d)
	return args.String(0), args.Error(1)
}

// MockNotifier records notifications.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, e *models.AuditEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func testSettings() workflow.Settings {
	s := workflow.DefaultSettings()
	s.AttorneyInFact = models.AttorneyInFact{
		CompanyName: "Clearpath Credit Solutions LLC",
		Address:     "100 Peachtree St NW, Atlanta, GA 30303",
		Phone:       "404-555-0100",
		Email:       "support@clearpath.example",
	}
	return s
}

func newTestAuthorization(s *memStore) *AuthorizationFunction {
	return &AuthorizationFunction{
		store:    s,
		settings: testSettings(),
		pricing:  pricing.DefaultTable,
		options:  []workflow.Option{workflow.WithClock(fixedClock(testNow)), workflow.WithRandom(fixedRandom(42))},
	}
}

// agreementDraft is a complete, submittable service agreement as the form sends it.
func agreementDraft() *models.Document {
	return &models.Document{
		Kind:    models.KindServiceAgreement,
		OwnerID: "user-1",
		Principal: &models.Principal{
			FirstName: "Maria",
			LastName:  "Lopez",
			Email:     "maria@example.com",
			Phone:     "404-555-0188",
			Address:   &models.Address{Street: "12 Oak Ave", City: "Decatur", State: "GA", ZIP: "30030"},
		},
		Services: &models.ServiceSelection{Package: "standard", DurationMonths: 6},
		Acknowledgements: map[string]bool{
			workflow.AckServicesUnderstood:  true,
			workflow.AckNoGuarantee:         true,
			workflow.AckCancellationRights:  true,
			workflow.AckFeesDisclosed:       true,
			workflow.AckInformationAccurate: true,
			workflow.AckElectronicSignature: true,
		},
		Signatures: []models.Signature{
			{ImageData: testSignature, CapturedAt: testNow},
			{ImageData: testSignature, CapturedAt: testNow, SectionKey: workflow.AckCancellationRights},
			{ImageData: testSignature, CapturedAt: testNow, SectionKey: workflow.AckNoGuarantee},
		},
	}
}

var errUnavailable = errors.New("firestore unavailable")
