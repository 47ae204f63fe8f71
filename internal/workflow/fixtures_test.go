package workflow

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type fixedRandom int

func (f fixedRandom) IntN(int) int { return int(f) }

const testSignature = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// blankSignature is a fully transparent canvas, what an untouched pad posts.
func blankSignature(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 20, 10))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// memStore keeps the last saved copy of each document.
type memStore struct {
	mu     sync.Mutex
	nextID int
	docs   map[string]*models.Document
	audits []*models.AuditEntry
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*models.Document)}
}

func (s *memStore) Save(_ context.Context, d *models.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *memStore) stored(id string) *models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id]
}

// MockStore is used where failures need scripting.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, d *models.Document) (string, error) {
	args := m.Called(ctx, d)
	return args.String(0), args.Error(1)
}

func (m *MockStore) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func testOptions() []Option {
	return []Option{WithClock(fixedClock(testNow)), WithRandom(fixedRandom(42)), WithActor("agent-7")}
}

func testSettings() Settings {
	s := DefaultSettings()
	s.AttorneyInFact = models.AttorneyInFact{
		CompanyName: "Clearpath Credit Solutions LLC",
		Address:     "100 Peachtree St NW, Atlanta, GA 30303",
		Phone:       "404-555-0100",
		Email:       "support@clearpath.example",
	}
	return s
}

func principal(withAddress bool) models.Principal {
	p := models.Principal{
		FirstName: "Maria",
		LastName:  "Lopez",
		Email:     "maria@example.com",
		Phone:     "(404) 555-0188",
	}
	if withAddress {
		p.Address = &models.Address{Street: "12 Oak Ave", City: "Decatur", State: "GA", ZIP: "30030"}
	}
	return p
}

func bankAccount() models.BankAccount {
	return models.BankAccount{
		BankName:             "First Federal",
		AccountType:          "checking",
		RoutingNumber:        "021000021",
		AccountNumber:        "000123456789",
		ConfirmAccountNumber: "000123456789",
	}
}

func card() models.Card {
	return models.Card{
		CardholderName: "Maria Lopez",
		CardNumber:     "4111111111111111",
		ExpMonth:       12,
		ExpYear:        2028,
		CVV:            "123",
		BillingZIP:     "30030",
	}
}

func schedule() models.Schedule {
	start := testNow.AddDate(0, 0, 7)
	return models.Schedule{Amount: 99, Frequency: "monthly", StartDate: &start}
}

func mustNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func acknowledgeAll(c *Controller) {
	for _, key := range c.Policy().Acknowledgements {
		mustNoErr(c.SetAcknowledgement(key, true))
	}
}

// completeACH returns a controller holding a submittable ACH draft.
func completeACH(store Store, method models.PaymentMethod) *Controller {
	c, err := New(models.KindPaymentAuthorization, "user-1", store, testSettings(), testOptions()...)
	mustNoErr(err)
	mustNoErr(c.UpdateSection(principal(false)))
	mustNoErr(c.UpdateSection(method))
	if method == models.PaymentACH {
		mustNoErr(c.UpdateSection(bankAccount()))
	} else {
		mustNoErr(c.UpdateSection(card()))
	}
	mustNoErr(c.UpdateSection(schedule()))
	acknowledgeAll(c)
	mustNoErr(c.AddSignature(&models.Signature{ImageData: testSignature}))
	return c
}

// completeAgreement returns a submittable standard-package agreement.
func completeAgreement(store Store) *Controller {
	c, err := New(models.KindServiceAgreement, "user-1", store, testSettings(), testOptions()...)
	mustNoErr(err)
	mustNoErr(c.UpdateSection(principal(true)))
	mustNoErr(c.UpdateSection(models.ServiceSelection{Package: "standard", DurationMonths: 6}))
	acknowledgeAll(c)
	for _, clause := range c.Policy().RequiredInitials {
		mustNoErr(c.AddSignature(&models.Signature{ImageData: testSignature, SectionKey: clause}))
	}
	mustNoErr(c.AddSignature(&models.Signature{ImageData: testSignature}))
	return c
}

// completePOA returns a submittable power of attorney.
func completePOA(store Store, settings Settings) *Controller {
	c, err := New(models.KindPowerOfAttorney, "user-1", store, settings, testOptions()...)
	mustNoErr(err)
	p := principal(true)
	dob := time.Date(1985, time.May, 1, 0, 0, 0, 0, time.UTC)
	p.DateOfBirth = &dob
	p.SSN = "123-45-6789"
	mustNoErr(c.UpdateSection(p))
	exp := testNow.AddDate(1, 0, 0)
	mustNoErr(c.UpdateSection(models.Powers{Granted: []string{"dispute_credit_reports"}, ExpirationDate: &exp}))
	acknowledgeAll(c)
	mustNoErr(c.AddSignature(&models.Signature{ImageData: testSignature}))
	return c
}
