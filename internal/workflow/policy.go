package workflow

import (
	"time"

	"github.com/Lllllllleong/authorizationflow/internal/models"
)

// Acknowledgement keys. Every kind carries AckInformationAccurate and
// AckElectronicSignature; submit checks both explicitly.
const (
	AckInformationAccurate = "informationAccurate"
	AckElectronicSignature = "electronicSignature"

	AckAuthorizeDebits    = "authorizeDebits"
	AckRevocationNotice   = "revocationNotice"
	AckServicesUnderstood = "servicesUnderstood"
	AckNoGuarantee        = "noGuarantee"
	AckCancellationRights = "cancellationRights"
	AckFeesDisclosed      = "feesDisclosed"
	AckScopeUnderstood    = "scopeUnderstood"
	AckRevocable          = "revocable"
)

// Grantable POA powers.
var GrantablePowers = []string{
	"dispute_credit_reports",
	"communicate_with_creditors",
	"request_credit_reports",
	"request_debt_validation",
	"negotiate_settlements",
}

// Schedule frequencies accepted for ACH debits.
var Frequencies = []string{"one_time", "weekly", "biweekly", "monthly"}

// SectionEntry places a section in a kind's layout. Applies is nil for
// unconditional sections.
type SectionEntry struct {
	Key     models.SectionKey
	Applies func(d *models.Document) bool
}

func (s SectionEntry) applies(d *models.Document) bool {
	return s.Applies == nil || s.Applies(d)
}

// Policy is everything kind-specific the gate and controller need.
type Policy struct {
	Kind                models.Kind
	Prefix              string
	Sections            []SectionEntry
	Acknowledgements    []string
	RequiredInitials    []string
	RequireAddress      bool
	RequireIdentity     bool
	RequiresCountersign bool
	// Expiration computes expirationDate at submit; nil means none.
	Expiration func(d *models.Document, effective time.Time) *time.Time
}

// Settings is the deployment configuration injected into every controller.
type Settings struct {
	Prefixes               map[models.Kind]string
	AgreementTermMonths    int
	POARequiresCountersign bool
	AttorneyInFact         models.AttorneyInFact
}

// DefaultSettings uses the ACH/SCR/POA prefixes and a term equal to the
// selected contract duration.
func DefaultSettings() Settings {
	return Settings{
		Prefixes: map[models.Kind]string{
			models.KindPaymentAuthorization: "ACH",
			models.KindServiceAgreement:     "SCR",
			models.KindPowerOfAttorney:      "POA",
		},
	}
}

func (s Settings) prefix(k models.Kind, fallback string) string {
	if p := s.Prefixes[k]; p != "" {
		return p
	}
	return fallback
}

// PolicyFor returns the layout and rules for kind.
func PolicyFor(kind models.Kind, s Settings) (*Policy, bool) {
	switch kind {
	case models.KindPaymentAuthorization:
		return &Policy{
			Kind:   kind,
			Prefix: s.prefix(kind, "ACH"),
			Sections: []SectionEntry{
				{Key: models.SectionPrincipal},
				{Key: models.SectionPaymentMethod},
				{Key: models.SectionBankAccount, Applies: paymentIs(models.PaymentACH)},
				{Key: models.SectionCard, Applies: paymentIs(models.PaymentCreditCard)},
				{Key: models.SectionSchedule},
				{Key: models.SectionAcknowledgements},
				{Key: models.SectionSignature},
			},
			Acknowledgements: []string{AckAuthorizeDebits, AckRevocationNotice, AckInformationAccurate, AckElectronicSignature},
		}, true

	case models.KindServiceAgreement:
		term := s.AgreementTermMonths
		return &Policy{
			Kind:   kind,
			Prefix: s.prefix(kind, "SCR"),
			Sections: []SectionEntry{
				{Key: models.SectionPrincipal},
				{Key: models.SectionServices},
				{Key: models.SectionAcknowledgements},
				{Key: models.SectionSignature},
			},
			Acknowledgements: []string{
				AckServicesUnderstood, AckNoGuarantee, AckCancellationRights,
				AckFeesDisclosed, AckInformationAccurate, AckElectronicSignature,
			},
			RequiredInitials: []string{AckCancellationRights, AckNoGuarantee},
			RequireAddress:   true,
			Expiration: func(d *models.Document, effective time.Time) *time.Time {
				months := term
				if months <= 0 && d.Services != nil {
					months = d.Services.DurationMonths
				}
				if months <= 0 {
					return nil
				}
				exp := effective.AddDate(0, months, 0)
				return &exp
			},
		}, true

	case models.KindPowerOfAttorney:
		return &Policy{
			Kind:   kind,
			Prefix: s.prefix(kind, "POA"),
			Sections: []SectionEntry{
				{Key: models.SectionPrincipal},
				{Key: models.SectionAttorneyInFact},
				{Key: models.SectionPowers},
				{Key: models.SectionAcknowledgements},
				{Key: models.SectionSignature},
			},
			Acknowledgements:    []string{AckScopeUnderstood, AckRevocable, AckInformationAccurate, AckElectronicSignature},
			RequireAddress:      true,
			RequireIdentity:     true,
			RequiresCountersign: s.POARequiresCountersign,
			Expiration: func(d *models.Document, _ time.Time) *time.Time {
				if d.Powers == nil || d.Powers.Indefinite || d.Powers.ExpirationDate == nil {
					return nil
				}
				exp := *d.Powers.ExpirationDate
				return &exp
			},
		}, true
	}
	return nil, false
}

func paymentIs(m models.PaymentMethod) func(*models.Document) bool {
	return func(d *models.Document) bool { return d.PaymentMethod == m }
}

// Index returns the position of key in the layout, or -1.
func (p *Policy) Index(key models.SectionKey) int {
	for i, s := range p.Sections {
		if s.Key == key {
			return i
		}
	}
	return -1
}

func (p *Policy) hasAcknowledgement(key string) bool {
	for _, k := range p.Acknowledgements {
		if k == key {
			return true
		}
	}
	return false
}

func (p *Policy) requiresInitial(clause string) bool {
	for _, k := range p.RequiredInitials {
		if k == clause {
			return true
		}
	}
	return false
}
