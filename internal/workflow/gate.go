package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Lllllllleong/authorizationflow/internal/identifier"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/pricing"
	"github.com/Lllllllleong/authorizationflow/internal/redact"
	"github.com/Lllllllleong/authorizationflow/internal/signature"
	"github.com/Lllllllleong/authorizationflow/internal/validate"
)

// Gate decides whether a section is complete. It never mutates the document.
// A section's verdict depends only on that section's fields, plus the
// earlier choices that decide whether it applies at all.
type Gate struct {
	policy  *Policy
	pricing *pricing.Table
	clock   identifier.Clock
	capture *signature.Adapter

	// Masked numbers that stand in for credentials validated before a save.
	savedAccount string
	savedCard    string
}

func NewGate(policy *Policy, table *pricing.Table, clock identifier.Clock) *Gate {
	if table == nil {
		table = pricing.DefaultTable
	}
	if clock == nil {
		clock = identifier.SystemClock{}
	}
	return &Gate{policy: policy, pricing: table, clock: clock, capture: signature.NewAdapter(clock)}
}

// Remember accepts the masked account and card numbers on d in place of the
// raw values. d must be a saved copy of the same draft; a save only keeps
// numbers that passed their checks.
func (g *Gate) Remember(d *models.Document) {
	if d == nil {
		return
	}
	if b := d.BankAccount; b != nil && redact.Masked(b.AccountNumber) {
		g.savedAccount = b.AccountNumber
	}
	if c := d.Card; c != nil && redact.Masked(c.CardNumber) {
		g.savedCard = c.CardNumber
	}
}

// Len is the number of sections, counting conditional ones.
func (g *Gate) Len() int { return len(g.policy.Sections) }

// Applies reports whether the section at index is in play for d.
func (g *Gate) Applies(index int, d *models.Document) bool {
	if index < 0 || index >= len(g.policy.Sections) {
		return false
	}
	return g.policy.Sections[index].applies(d)
}

// CanAdvance is Check reduced to a boolean.
func (g *Gate) CanAdvance(index int, d *models.Document) bool {
	return g.Check(index, d) == nil
}

// Check returns nil when the section at index is satisfied or does not apply.
func (g *Gate) Check(index int, d *models.Document) *Reason {
	if index < 0 || index >= len(g.policy.Sections) {
		return &Reason{Message: fmt.Sprintf("section index %d out of range", index)}
	}
	section := g.policy.Sections[index]
	if !section.applies(d) {
		return nil
	}
	switch section.Key {
	case models.SectionPrincipal:
		return g.checkPrincipal(d.Principal)
	case models.SectionPaymentMethod:
		return checkPaymentMethod(d.PaymentMethod)
	case models.SectionBankAccount:
		return g.checkBankAccount(d.BankAccount)
	case models.SectionCard:
		return g.checkCard(d.Card)
	case models.SectionSchedule:
		return checkSchedule(d.Schedule)
	case models.SectionServices:
		return g.checkServices(d.Services)
	case models.SectionAttorneyInFact:
		return checkAttorneyInFact(d.AttorneyInFact)
	case models.SectionPowers:
		return g.checkPowers(d.Powers)
	case models.SectionAcknowledgements:
		return g.checkAcknowledgements(d)
	case models.SectionSignature:
		return g.checkSignature(d.Signatures)
	}
	return &Reason{Section: section.Key, Message: "unknown section"}
}

// CheckAll walks every applicable section in order and returns the first failure.
func (g *Gate) CheckAll(d *models.Document) *Reason {
	for i := range g.policy.Sections {
		if r := g.Check(i, d); r != nil {
			return r
		}
	}
	return nil
}

// Next returns the next applicable index after index, or Len() for the
// virtual submit step.
func (g *Gate) Next(index int, d *models.Document) int {
	for i := index + 1; i < len(g.policy.Sections); i++ {
		if g.policy.Sections[i].applies(d) {
			return i
		}
	}
	return len(g.policy.Sections)
}

// Prev returns the previous applicable index, or index itself at the start.
func (g *Gate) Prev(index int, d *models.Document) int {
	if index > len(g.policy.Sections) {
		index = len(g.policy.Sections)
	}
	for i := index - 1; i >= 0; i-- {
		if g.policy.Sections[i].applies(d) {
			return i
		}
	}
	return index
}

// Last returns the final applicable section index.
func (g *Gate) Last(d *models.Document) int {
	return g.Prev(len(g.policy.Sections), d)
}

func missing(section models.SectionKey, field, what string) *Reason {
	return &Reason{Section: section, Field: field, Message: what + " is required"}
}

func invalid(section models.SectionKey, field, msg string) *Reason {
	return &Reason{Section: section, Field: field, Message: msg}
}

func (g *Gate) checkPrincipal(p *models.Principal) *Reason {
	const s = models.SectionPrincipal
	if p == nil {
		return missing(s, "", "principal information")
	}
	switch {
	case !validate.Present(p.FirstName):
		return missing(s, "firstName", "first name")
	case !validate.Present(p.LastName):
		return missing(s, "lastName", "last name")
	case !validate.Present(p.Email):
		return missing(s, "email", "email")
	case !validate.Email(p.Email):
		return invalid(s, "email", "email address is not valid")
	case !validate.Present(p.Phone):
		return missing(s, "phone", "phone")
	case !validate.Phone(p.Phone):
		return invalid(s, "phone", "phone number must have 10 digits")
	}
	if g.policy.RequireAddress {
		a := p.Address
		switch {
		case a == nil || !validate.Present(a.Street):
			return missing(s, "address.street", "street address")
		case !validate.Present(a.City):
			return missing(s, "address.city", "city")
		case len(strings.TrimSpace(a.State)) != 2:
			return invalid(s, "address.state", "state must be a two-letter code")
		case !validate.ZIP(a.ZIP):
			return invalid(s, "address.zip", "ZIP code is not valid")
		}
	}
	if g.policy.RequireIdentity {
		if !validate.PresentTime(p.DateOfBirth) {
			return missing(s, "dateOfBirth", "date of birth")
		}
		if p.DateOfBirth.After(g.clock.Now()) {
			return invalid(s, "dateOfBirth", "date of birth is in the future")
		}
		switch {
		case p.SSN != "":
			if d := validate.DigitsOnly(p.SSN); len(d) != 9 {
				return invalid(s, "ssn", "social security number must have 9 digits")
			}
		case len(p.SSNLast4) != 4 || !validate.IsDigits(p.SSNLast4):
			return missing(s, "ssn", "social security number")
		}
	}
	return nil
}

func checkPaymentMethod(m models.PaymentMethod) *Reason {
	switch m {
	case models.PaymentACH, models.PaymentCreditCard:
		return nil
	case "":
		return missing(models.SectionPaymentMethod, "paymentMethod", "payment method")
	}
	return invalid(models.SectionPaymentMethod, "paymentMethod", fmt.Sprintf("unsupported payment method %q", m))
}

func (g *Gate) checkBankAccount(b *models.BankAccount) *Reason {
	const s = models.SectionBankAccount
	if b == nil {
		return missing(s, "", "bank account")
	}
	switch {
	case !validate.Present(b.BankName):
		return missing(s, "bankName", "bank name")
	case b.AccountType != "checking" && b.AccountType != "savings":
		return invalid(s, "accountType", "account type must be checking or savings")
	case !validate.Present(b.RoutingNumber):
		return missing(s, "routingNumber", "routing number")
	case !validate.RoutingNumber(b.RoutingNumber):
		return invalid(s, "routingNumber", "routing number failed the ABA checksum")
	case !validate.Present(b.AccountNumber):
		return missing(s, "accountNumber", "account number")
	}
	if redact.Masked(b.AccountNumber) {
		if b.AccountNumber == g.savedAccount {
			return nil
		}
		return invalid(s, "accountNumber", "re-enter the full account number")
	}
	return checkAccountNumber(b)
}

// checkAccountNumber validates a raw account number and its confirmation.
func checkAccountNumber(b *models.BankAccount) *Reason {
	const s = models.SectionBankAccount
	if !validate.IsDigits(b.AccountNumber) || len(b.AccountNumber) < 4 || len(b.AccountNumber) > 17 {
		return invalid(s, "accountNumber", "account number must be 4 to 17 digits")
	}
	if b.ConfirmAccountNumber != b.AccountNumber {
		return invalid(s, "confirmAccountNumber", "account numbers do not match")
	}
	return nil
}

func (g *Gate) checkCard(c *models.Card) *Reason {
	const s = models.SectionCard
	if c == nil {
		return missing(s, "", "card")
	}
	switch {
	case !validate.Present(c.CardholderName):
		return missing(s, "cardholderName", "cardholder name")
	case !validate.Present(c.CardNumber):
		return missing(s, "cardNumber", "card number")
	case !validate.CardExpiry(c.ExpMonth, c.ExpYear, g.clock.Now()):
		return invalid(s, "expiration", "card is expired or the expiration date is invalid")
	case !validate.ZIP(c.BillingZIP):
		return invalid(s, "billingZip", "billing ZIP code is not valid")
	}
	if redact.Masked(c.CardNumber) {
		if c.CardNumber == g.savedCard {
			return nil
		}
		return invalid(s, "cardNumber", "re-enter the full card number")
	}
	typ, r := checkCardNumber(c)
	if r != nil {
		return r
	}
	if !validate.CVV(c.CVV, typ) {
		return invalid(s, "cvv", "security code is not valid")
	}
	return nil
}

// checkCardNumber validates a raw card number and returns its network.
func checkCardNumber(c *models.Card) (validate.CardType, *Reason) {
	const s = models.SectionCard
	typ := validate.DetectCardType(c.CardNumber)
	if typ == validate.CardUnknown {
		return typ, invalid(s, "cardNumber", "card type is not accepted")
	}
	if !validate.CardNumber(c.CardNumber) {
		return typ, invalid(s, "cardNumber", "card number is not valid")
	}
	return typ, nil
}

func checkSchedule(sc *models.Schedule) *Reason {
	const s = models.SectionSchedule
	if sc == nil {
		return missing(s, "", "payment schedule")
	}
	switch {
	case !validate.PositiveAmount(sc.Amount):
		return invalid(s, "amount", "amount must be greater than zero")
	case !contains(Frequencies, sc.Frequency):
		return invalid(s, "frequency", "frequency is not supported")
	case !validate.PresentTime(sc.StartDate):
		return missing(s, "startDate", "start date")
	}
	return nil
}

func (g *Gate) checkServices(sel *models.ServiceSelection) *Reason {
	const s = models.SectionServices
	if sel == nil || !validate.Present(sel.Package) {
		return missing(s, "package", "service package")
	}
	if _, err := g.pricing.Compute(*sel); err != nil {
		field := "package"
		switch {
		case errors.Is(err, pricing.ErrInvalidDuration):
			field = "durationMonths"
		case errors.Is(err, pricing.ErrUnknownAddOn):
			field = "addOns"
		}
		return invalid(s, field, err.Error())
	}
	return nil
}

func checkAttorneyInFact(a *models.AttorneyInFact) *Reason {
	const s = models.SectionAttorneyInFact
	switch {
	case a == nil || !validate.Present(a.CompanyName):
		return missing(s, "companyName", "attorney-in-fact company name")
	case !validate.Present(a.Address):
		return missing(s, "address", "attorney-in-fact address")
	case !validate.Present(a.Phone):
		return missing(s, "phone", "attorney-in-fact phone")
	}
	return nil
}

func (g *Gate) checkPowers(p *models.Powers) *Reason {
	const s = models.SectionPowers
	if p == nil || len(p.Granted) == 0 {
		return missing(s, "granted", "at least one granted power")
	}
	for _, power := range p.Granted {
		if !contains(GrantablePowers, power) {
			return invalid(s, "granted", fmt.Sprintf("power %q cannot be granted", power))
		}
	}
	if p.Indefinite {
		return nil
	}
	if !validate.PresentTime(p.ExpirationDate) {
		return missing(s, "expirationDate", "expiration date or indefinite term")
	}
	if !p.ExpirationDate.After(g.clock.Now()) {
		return invalid(s, "expirationDate", "expiration date must be in the future")
	}
	return nil
}

func (g *Gate) checkAcknowledgements(d *models.Document) *Reason {
	const s = models.SectionAcknowledgements
	for _, key := range g.policy.Acknowledgements {
		if !d.Acknowledgements[key] {
			return invalid(s, key, "acknowledgement must be checked")
		}
	}
	// Anything else recorded on the document must be true as well.
	extra := make([]string, 0, len(d.Acknowledgements))
	for key := range d.Acknowledgements {
		if !g.policy.hasAcknowledgement(key) {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		if !d.Acknowledgements[key] {
			return invalid(s, key, "acknowledgement must be checked")
		}
	}
	for _, clause := range g.policy.RequiredInitials {
		if !g.hasInitial(d.Signatures, clause) {
			return invalid(s, "initials."+clause, "initials are required for this clause")
		}
	}
	return nil
}

func (g *Gate) checkSignature(sigs []models.Signature) *Reason {
	for _, sig := range sigs {
		if sig.SectionKey == "" && sig.Role != models.RoleCountersigner && g.signed(sig) {
			return nil
		}
	}
	return missing(models.SectionSignature, "signature", "signature")
}

func (g *Gate) hasInitial(sigs []models.Signature, clause string) bool {
	for _, sig := range sigs {
		if sig.SectionKey == clause && g.signed(sig) {
			return true
		}
	}
	return false
}

// signed reports whether sig holds a drawing: a stored image, or an inline
// PNG that is neither blank nor malformed.
func (g *Gate) signed(sig models.Signature) bool {
	if sig.ImageData == "" {
		return sig.ImageURI != ""
	}
	return g.capture.Verify(sig.ImageData) == nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
