package models

import "time"

// Kind identifies which legal document a record represents.
type Kind string

const (
	KindPaymentAuthorization Kind = "payment_authorization"
	KindServiceAgreement     Kind = "service_agreement"
	KindPowerOfAttorney      Kind = "power_of_attorney"
)

// Collection returns the Firestore collection the kind is stored in.
func (k Kind) Collection() string {
	switch k {
	case KindPaymentAuthorization:
		return "paymentAuthorizations"
	case KindServiceAgreement:
		return "serviceAgreements"
	case KindPowerOfAttorney:
		return "powerOfAttorney"
	}
	return ""
}

func (k Kind) Valid() bool { return k.Collection() != "" }

// Status is the lifecycle state of a document.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusPendingSignature Status = "pending_signature"
	StatusActive           Status = "active"
	StatusCancelled        Status = "cancelled"
	StatusRevoked          Status = "revoked"
	StatusExpired          Status = "expired"
)

// Terminal reports whether only audit metadata may still change.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRevoked || s == StatusExpired
}

// PaymentMethod selects which credential section applies.
type PaymentMethod string

const (
	PaymentACH        PaymentMethod = "ach"
	PaymentCreditCard PaymentMethod = "credit_card"
)

// Document is one ACH authorization, service agreement or power of attorney.
// Field names match the existing Firestore collections.
type Document struct {
	ID             string `firestore:"-" json:"id,omitempty"`
	Kind           Kind   `firestore:"kind" json:"kind"`
	DocumentNumber string `firestore:"documentNumber,omitempty" json:"documentNumber,omitempty"`
	Status         Status `firestore:"status" json:"status"`
	OwnerID        string `firestore:"ownerId" json:"ownerId"`
	ContactID      string `firestore:"contactId,omitempty" json:"contactId,omitempty"`
	CurrentSection int    `firestore:"currentSection" json:"currentSection"`

	Principal      *Principal        `firestore:"principal,omitempty" json:"principal,omitempty"`
	PaymentMethod  PaymentMethod     `firestore:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	BankAccount    *BankAccount      `firestore:"bankAccount,omitempty" json:"bankAccount,omitempty"`
	Card           *Card             `firestore:"card,omitempty" json:"card,omitempty"`
	Schedule       *Schedule         `firestore:"schedule,omitempty" json:"schedule,omitempty"`
	Services       *ServiceSelection `firestore:"services,omitempty" json:"services,omitempty"`
	ComputedTotals *ComputedTotals   `firestore:"computedTotals,omitempty" json:"computedTotals,omitempty"`
	AttorneyInFact *AttorneyInFact   `firestore:"attorneyInFact,omitempty" json:"attorneyInFact,omitempty"`
	Powers         *Powers           `firestore:"powers,omitempty" json:"powers,omitempty"`

	Acknowledgements map[string]bool `firestore:"acknowledgements" json:"acknowledgements"`
	Signatures       []Signature     `firestore:"signatures" json:"signatures"`

	CreatedAt       time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt" json:"updatedAt"`
	EffectiveDate   *time.Time `firestore:"effectiveDate,omitempty" json:"effectiveDate,omitempty"`
	ExpirationDate  *time.Time `firestore:"expirationDate,omitempty" json:"expirationDate,omitempty"`
	CountersignedAt *time.Time `firestore:"countersignedAt,omitempty" json:"countersignedAt,omitempty"`
	CancelledDate   *time.Time `firestore:"cancelledDate,omitempty" json:"cancelledDate,omitempty"`
	RevokedDate     *time.Time `firestore:"revokedDate,omitempty" json:"revokedDate,omitempty"`
	ExpiredDate     *time.Time `firestore:"expiredDate,omitempty" json:"expiredDate,omitempty"`
	Reason          string     `firestore:"reason,omitempty" json:"reason,omitempty"`
	TerminatedBy    string     `firestore:"terminatedBy,omitempty" json:"terminatedBy,omitempty"`
}

// Address is a US mailing address.
type Address struct {
	Street string `firestore:"street" json:"street"`
	City   string `firestore:"city" json:"city"`
	State  string `firestore:"state" json:"state"`
	ZIP    string `firestore:"zip" json:"zip"`
}

// Principal is the client granting the authorization. SSN is held only for
// the session; the store keeps SSNLast4.
type Principal struct {
	FirstName   string     `firestore:"firstName" json:"firstName"`
	LastName    string     `firestore:"lastName" json:"lastName"`
	Email       string     `firestore:"email" json:"email"`
	Phone       string     `firestore:"phone" json:"phone"`
	Address     *Address   `firestore:"address,omitempty" json:"address,omitempty"`
	DateOfBirth *time.Time `firestore:"dateOfBirth,omitempty" json:"dateOfBirth,omitempty"`
	SSN         string     `firestore:"-" json:"ssn,omitempty"`
	SSNLast4    string     `firestore:"ssnLast4,omitempty" json:"ssnLast4,omitempty"`
}

// BankAccount holds ACH details. AccountNumber is raw while editing and
// "****1234" once redacted; ConfirmAccountNumber never leaves the session.
type BankAccount struct {
	BankName             string `firestore:"bankName" json:"bankName"`
	AccountType          string `firestore:"accountType" json:"accountType"`
	RoutingNumber        string `firestore:"routingNumber" json:"routingNumber"`
	AccountNumber        string `firestore:"accountNumber" json:"accountNumber"`
	ConfirmAccountNumber string `firestore:"-" json:"confirmAccountNumber,omitempty"`
}

// Card holds credit-card details. CVV is always stripped before storage.
type Card struct {
	CardholderName string `firestore:"cardholderName" json:"cardholderName"`
	CardNumber     string `firestore:"cardNumber" json:"cardNumber"`
	CardType       string `firestore:"cardType,omitempty" json:"cardType,omitempty"`
	ExpMonth       int    `firestore:"expMonth" json:"expMonth"`
	ExpYear        int    `firestore:"expYear" json:"expYear"`
	CVV            string `firestore:"cvv,omitempty" json:"cvv,omitempty"`
	BillingZIP     string `firestore:"billingZip" json:"billingZip"`
}

// Schedule describes when and how much is debited.
type Schedule struct {
	Amount    float64    `firestore:"amount" json:"amount"`
	Frequency string     `firestore:"frequency" json:"frequency"`
	StartDate *time.Time `firestore:"startDate,omitempty" json:"startDate,omitempty"`
}

// ServiceSelection is the pricing input of a service agreement.
type ServiceSelection struct {
	Package        string   `firestore:"package" json:"package"`
	AddOns         []string `firestore:"addOns" json:"addOns"`
	DurationMonths int      `firestore:"durationMonths" json:"durationMonths"`
}

// ComputedTotals is derived from ServiceSelection; it is never taken from input.
type ComputedTotals struct {
	MonthlyFee    float64 `firestore:"monthlyFee" json:"monthlyFee"`
	AddOnTotal    float64 `firestore:"addOnTotal" json:"addOnTotal"`
	TotalMonthly  float64 `firestore:"totalMonthly" json:"totalMonthly"`
	SetupFee      float64 `firestore:"setupFee" json:"setupFee"`
	TotalContract float64 `firestore:"totalContract" json:"totalContract"`
}

// AttorneyInFact is the company acting for the principal under a POA.
type AttorneyInFact struct {
	CompanyName    string `firestore:"companyName" json:"companyName"`
	Address        string `firestore:"address" json:"address"`
	Phone          string `firestore:"phone" json:"phone"`
	Email          string `firestore:"email" json:"email"`
	Representative string `firestore:"representative,omitempty" json:"representative,omitempty"`
}

// Powers lists what a POA grants and for how long.
type Powers struct {
	Granted        []string   `firestore:"granted" json:"granted"`
	ExpirationDate *time.Time `firestore:"expirationDate,omitempty" json:"expirationDate,omitempty"`
	Indefinite     bool       `firestore:"indefinite" json:"indefinite"`
}

// Signature roles.
const (
	RoleSigner        = "signer"
	RoleCountersigner = "countersigner"
)

// Signature is a captured signature or, when SectionKey is set, a clause initial.
// ImageData is a data URL until the store offloads it to ImageURI.
type Signature struct {
	ImageData  string    `firestore:"imageData,omitempty" json:"imageData,omitempty"`
	ImageURI   string    `firestore:"imageUri,omitempty" json:"imageUri,omitempty"`
	CapturedAt time.Time `firestore:"capturedAt" json:"capturedAt"`
	SectionKey string    `firestore:"sectionKey,omitempty" json:"sectionKey,omitempty"`
	Role       string    `firestore:"role,omitempty" json:"role,omitempty"`
	SignerName string    `firestore:"signerName,omitempty" json:"signerName,omitempty"`
}

// HasImage reports whether the signature carries a payload inline or in storage.
func (s Signature) HasImage() bool {
	return s.ImageData != "" || s.ImageURI != ""
}
