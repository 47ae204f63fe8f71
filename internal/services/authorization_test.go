package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSubmitAgreement(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)
	copier := &MockCopier{}
	copier.On("Stamp", mock.Anything, mock.Anything).Return("gs://signed/copy.pdf", nil)
	f.copier = copier

	res, err := f.Submit(context.Background(), &models.DraftRequest{ActorID: "agent-7", Document: agreementDraft()})
	require.NoError(t, err)
	require.NotNil(t, res.Document)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, models.StatusActive, res.Document.Status)
	assert.Equal(t, "SCR-202610-0042", res.Document.DocumentNumber)
	assert.Equal(t, 693.0, res.Document.ComputedTotals.TotalContract)

	stored := s.stored(res.Document.ID)
	require.NotNil(t, stored)
	assert.Equal(t, models.StatusActive, stored.Status)
	require.Len(t, s.audits, 1)
	assert.Equal(t, "agent-7", s.audits[0].ActorID)
	copier.AssertNumberOfCalls(t, "Stamp", 1)
}

func TestSubmitSucceedsWhenSignedCopyFails(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)
	copier := &MockCopier{}
	copier.On("Stamp", mock.Anything, mock.Anything).Return("", errors.New("template missing"))
	f.copier = copier

	res, err := f.Submit(context.Background(), &models.DraftRequest{Document: agreementDraft()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, res.Document.Status)
}

func TestSubmitNotifies(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)
	notifier := &MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(e *models.AuditEntry) bool {
		return e.Action == models.AuditSubmitted && e.DocumentNumber == "SCR-202610-0042"
	})).Return(nil).Once()
	f.notifier = notifier

	_, err := f.Submit(context.Background(), &models.DraftRequest{Document: agreementDraft()})
	require.NoError(t, err)
	notifier.AssertExpectations(t)
}

func TestSubmitIncompleteIsBadRequest(t *testing.T) {
	f := newTestAuthorization(newMemStore())
	d := agreementDraft()
	d.Acknowledgements[workflow.AckFeesDisclosed] = false

	_, err := f.Submit(context.Background(), &models.DraftRequest{Document: d})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	apiErr := APIErrorFrom(err)
	assert.Equal(t, KindValidation, apiErr.Kind)
	assert.Equal(t, string(models.SectionAcknowledgements), apiErr.Section)
	assert.Equal(t, workflow.AckFeesDisclosed, apiErr.Field)
}

func TestNewDraftCannotForgeServerFields(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)
	d := agreementDraft()
	d.Status = models.StatusActive
	d.DocumentNumber = "SCR-199901-9999"
	effective := testNow.AddDate(-1, 0, 0)
	d.EffectiveDate = &effective
	d.ComputedTotals = &models.ComputedTotals{TotalContract: 1}
	d.Signatures = append(d.Signatures, models.Signature{ImageURI: "gs://elsewhere/forged.png", Role: models.RoleCountersigner})

	res, err := f.SaveDraft(context.Background(), &models.DraftRequest{Document: d})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, res.Document.Status)
	assert.Equal(t, "SCR-202610-0042", res.Document.DocumentNumber)
	assert.Nil(t, res.Document.EffectiveDate)
	assert.Equal(t, 693.0, res.Document.ComputedTotals.TotalContract)
	assert.Len(t, res.Document.Signatures, 3)
}

func TestDraftOperationsOnFinalizedRecordConflict(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)
	res, err := f.Submit(context.Background(), &models.DraftRequest{Document: agreementDraft()})
	require.NoError(t, err)

	// The client still holds a draft copy of the submitted document.
	d := agreementDraft()
	d.ID = res.Document.ID
	d.Status = models.StatusDraft

	for name, op := range map[string]func(context.Context, *models.DraftRequest) (*models.DocumentResponse, error){
		"save":    f.SaveDraft,
		"submit":  f.Submit,
		"advance": f.Advance,
		"back":    f.GoBack,
	} {
		_, err := op(context.Background(), &models.DraftRequest{Document: d})
		assert.Equal(t, http.StatusConflict, HTTPStatus(err), name)
		assert.Equal(t, KindConflict, APIErrorFrom(err).Kind, name)
	}
	assert.Equal(t, models.StatusActive, s.stored(d.ID).Status)
}

func TestResumedDraftKeepsStoredNumberAndOwner(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)
	first, err := f.SaveDraft(context.Background(), &models.DraftRequest{Document: agreementDraft()})
	require.NoError(t, err)

	d := agreementDraft()
	d.ID = first.Document.ID
	d.OwnerID = "someone-else"
	d.DocumentNumber = ""
	d.Services = &models.ServiceSelection{Package: "premium", DurationMonths: 12}

	second, err := f.SaveDraft(context.Background(), &models.DraftRequest{Document: d})
	require.NoError(t, err)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, first.Document.DocumentNumber, second.Document.DocumentNumber)
	assert.Equal(t, "user-1", second.Document.OwnerID)
	assert.Equal(t, "premium", s.stored(d.ID).Services.Package)
}

func TestAdvanceAndGoBackDoNotPersist(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)

	res, err := f.Advance(context.Background(), &models.DraftRequest{Document: agreementDraft()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Document.CurrentSection)

	d := res.Document
	back, err := f.GoBack(context.Background(), &models.DraftRequest{Document: d})
	require.NoError(t, err)
	assert.Equal(t, 0, back.Document.CurrentSection)
	assert.Empty(t, s.docs)

	incomplete := agreementDraft()
	incomplete.Principal.Email = "not-an-email"
	_, err = f.Advance(context.Background(), &models.DraftRequest{Document: incomplete})
	assert.Equal(t, "email", APIErrorFrom(err).Field)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	f := newTestAuthorization(s)
	res, err := f.Submit(ctx, &models.DraftRequest{Document: agreementDraft()})
	require.NoError(t, err)
	id := res.Document.ID

	_, err = f.Cancel(ctx, &models.TransitionRequest{Kind: models.KindServiceAgreement, DocumentID: id})
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	out, err := f.Cancel(ctx, &models.TransitionRequest{ActorID: "agent-7", Kind: models.KindServiceAgreement, DocumentID: id, Reason: "client request"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, out.Document.Status)
	assert.Equal(t, models.StatusCancelled, s.stored(id).Status)
	assert.Equal(t, "agent-7", s.stored(id).TerminatedBy)

	_, err = f.Revoke(ctx, &models.TransitionRequest{Kind: models.KindServiceAgreement, DocumentID: id, Reason: "again"})
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))

	_, err = f.Cancel(ctx, &models.TransitionRequest{Kind: models.KindPowerOfAttorney, DocumentID: id, Reason: "wrong kind"})
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
	assert.Equal(t, KindNotFound, APIErrorFrom(err).Kind)

	_, err = f.Cancel(ctx, &models.TransitionRequest{Kind: models.KindServiceAgreement, Reason: "no id"})
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestCountersignThroughService(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	f := newTestAuthorization(s)
	f.settings.POARequiresCountersign = true

	dob := time.Date(1985, time.May, 1, 0, 0, 0, 0, time.UTC)
	d := &models.Document{
		Kind:    models.KindPowerOfAttorney,
		OwnerID: "user-1",
		Principal: &models.Principal{
			FirstName:   "Maria",
			LastName:    "Lopez",
			Email:       "maria@example.com",
			Phone:       "404-555-0188",
			Address:     &models.Address{Street: "12 Oak Ave", City: "Decatur", State: "GA", ZIP: "30030"},
			DateOfBirth: &dob,
			SSN:         "123456789",
		},
		Powers: &models.Powers{Granted: []string{"dispute_credit_reports"}, Indefinite: true},
		Acknowledgements: map[string]bool{
			workflow.AckScopeUnderstood:     true,
			workflow.AckRevocable:           true,
			workflow.AckInformationAccurate: true,
			workflow.AckElectronicSignature: true,
		},
		Signatures: []models.Signature{{ImageData: testSignature}},
	}
	res, err := f.Submit(ctx, &models.DraftRequest{Document: d})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingSignature, res.Document.Status)
	assert.Empty(t, s.stored(res.Document.ID).Principal.SSN)

	out, err := f.Countersign(ctx, &models.TransitionRequest{
		Kind:       models.KindPowerOfAttorney,
		DocumentID: res.Document.ID,
		Signature:  &models.Signature{ImageData: testSignature, SignerName: "J. Reyes"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, out.Document.Status)
}

func TestStoreFailuresAreRetryable(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)

	s.saveErr = errUnavailable
	_, err := f.Submit(context.Background(), &models.DraftRequest{Document: agreementDraft()})
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
	assert.Equal(t, KindPersistence, APIErrorFrom(err).Kind)
	assert.NotContains(t, APIErrorFrom(err).Message, "firestore")

	s.saveErr = nil
	s.getErr = errUnavailable
	_, err = f.Cancel(context.Background(), &models.TransitionRequest{Kind: models.KindServiceAgreement, DocumentID: "doc-1", Reason: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
}

func TestList(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)
	for i, kind := range []models.Kind{models.KindPaymentAuthorization, models.KindServiceAgreement, models.KindPowerOfAttorney} {
		s.put(&models.Document{ID: string(kind), Kind: kind, OwnerID: "user-1", Status: models.StatusDraft, UpdatedAt: testNow.Add(time.Duration(i) * time.Hour)})
	}
	s.put(&models.Document{ID: "other", Kind: models.KindServiceAgreement, OwnerID: "user-2", Status: models.StatusDraft})

	res, err := f.List(context.Background(), &models.ListRequest{OwnerID: "user-1"})
	require.NoError(t, err)
	require.Len(t, res.Documents, 3)
	assert.Equal(t, models.KindPowerOfAttorney, res.Documents[0].Kind)
	assert.Equal(t, models.KindPaymentAuthorization, res.Documents[2].Kind)

	res, err = f.List(context.Background(), &models.ListRequest{OwnerID: "user-1", Kind: models.KindServiceAgreement})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)

	res, err = f.List(context.Background(), &models.ListRequest{OwnerID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, res.Documents)
	assert.Empty(t, res.Documents)

	_, err = f.List(context.Background(), &models.ListRequest{})
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	_, err = f.List(context.Background(), &models.ListRequest{OwnerID: "user-1", Kind: "lease"})
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestQuote(t *testing.T) {
	f := newTestAuthorization(newMemStore())
	res, err := f.Quote(context.Background(), &models.ServiceSelection{Package: "standard", DurationMonths: 6})
	require.NoError(t, err)
	assert.Equal(t, 99.0, res.Totals.TotalMonthly)
	assert.Equal(t, 693.0, res.Totals.TotalContract)

	_, err = f.Quote(context.Background(), &models.ServiceSelection{Package: "standard", DurationMonths: 0})
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	_, err = f.Quote(context.Background(), nil)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestTrustedSignatures(t *testing.T) {
	stored := []models.Signature{{ImageURI: "gs://sig/a.png"}}
	in := []models.Signature{
		{ImageURI: "gs://sig/a.png"},
		{ImageURI: "gs://sig/forged.png"},
		{ImageData: testSignature, ImageURI: "gs://sig/ignored.png"},
		{ImageData: testSignature, Role: models.RoleCountersigner},
	}
	out, err := trustedSignatures(in, stored)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "gs://sig/a.png", out[0].ImageURI)
	assert.Equal(t, testSignature, out[1].ImageData)
	assert.Empty(t, out[1].ImageURI)
}

func TestTrustedSignaturesRejectsUnreadableDrawings(t *testing.T) {
	tests := []struct {
		name    string
		sig     models.Signature
		section models.SectionKey
		field   string
	}{
		{"blank signature", models.Signature{ImageData: blankSignature(t)}, models.SectionSignature, "signature"},
		{"garbage signature", models.Signature{ImageData: "not-an-image"}, models.SectionSignature, "signature"},
		{"blank initial", models.Signature{ImageData: blankSignature(t), SectionKey: workflow.AckNoGuarantee}, models.SectionAcknowledgements, "initials." + workflow.AckNoGuarantee},
		{"jpeg initial", models.Signature{ImageData: "data:image/jpeg;base64,AAAA", SectionKey: workflow.AckCancellationRights}, models.SectionAcknowledgements, "initials." + workflow.AckCancellationRights},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trustedSignatures([]models.Signature{tt.sig}, nil)
			var verr *workflow.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.section, verr.Section)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSaveDraftWithBlankSignatureIsBadRequest(t *testing.T) {
	s := newMemStore()
	f := newTestAuthorization(s)
	d := agreementDraft()
	d.Signatures[0].ImageData = blankSignature(t)

	_, err := f.SaveDraft(context.Background(), &models.DraftRequest{Document: d})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Equal(t, "signature", APIErrorFrom(err).Field)
	assert.Empty(t, s.docs)
}

func TestMaskedAccountNeedsAStoredDraft(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	f := newTestAuthorization(s)

	forged := achDraft()
	forged.BankAccount.AccountNumber, forged.BankAccount.ConfirmAccountNumber = "****0000", ""
	_, err := f.Submit(ctx, &models.DraftRequest{Document: forged})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Equal(t, "accountNumber", APIErrorFrom(err).Field)
	assert.Empty(t, s.docs)

	saved, err := f.SaveDraft(ctx, &models.DraftRequest{Document: achDraft()})
	require.NoError(t, err)
	draft := saved.Document
	assert.Equal(t, "****6789", draft.BankAccount.AccountNumber)
	assert.Empty(t, draft.BankAccount.ConfirmAccountNumber)

	// The stored draft vouches only for its own mask.
	other := draft.Clone()
	other.BankAccount.AccountNumber = "****0000"
	_, err = f.Submit(ctx, &models.DraftRequest{Document: other})
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	res, err := f.Submit(ctx, &models.DraftRequest{Document: draft})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, res.Document.Status)
	assert.Equal(t, "****6789", s.stored(draft.ID).BankAccount.AccountNumber)
}

// achDraft is a complete ACH payment authorization as the form sends it.
func achDraft() *models.Document {
	start := testNow.AddDate(0, 0, 7)
	return &models.Document{
		Kind:    models.KindPaymentAuthorization,
		OwnerID: "user-1",
		Principal: &models.Principal{
			FirstName: "Maria",
			LastName:  "Lopez",
			Email:     "maria@example.com",
			Phone:     "404-555-0188",
		},
		PaymentMethod: models.PaymentACH,
		BankAccount: &models.BankAccount{
			BankName:             "First Federal",
			AccountType:          "checking",
			RoutingNumber:        "021000021",
			AccountNumber:        "000123456789",
			ConfirmAccountNumber: "000123456789",
		},
		Schedule: &models.Schedule{Amount: 99, Frequency: "monthly", StartDate: &start},
		Acknowledgements: map[string]bool{
			workflow.AckAuthorizeDebits:     true,
			workflow.AckRevocationNotice:    true,
			workflow.AckInformationAccurate: true,
			workflow.AckElectronicSignature: true,
		},
		Signatures: []models.Signature{{ImageData: testSignature, CapturedAt: testNow}},
	}
}

// blankSignature is a well-formed PNG with nothing drawn on it.
func blankSignature(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 20, 10))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHTTPStatusUnclassified(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Nil(t, APIErrorFrom(nil))
	assert.Equal(t, KindInternal, APIErrorFrom(errors.New("boom")).Kind)
}
