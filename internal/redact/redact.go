// Package redact turns raw payment credentials into their storage-safe form.
// It runs once at the save/submit boundary; in-session state may stay raw.
package redact

import (
	"strings"

	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/validate"
)

const maskPrefix = "****"

// BankAccount masks a raw account number to its last four digits. Values too
// short to mask are dropped rather than stored.
func BankAccount(raw string) string {
	return maskDigits(raw)
}

// Card masks a raw card number to its last four digits.
func Card(raw string) string {
	return maskDigits(raw)
}

// StripCVV discards the verification code unconditionally.
func StripCVV(string) string { return "" }

// Masked reports whether v is already in redacted form.
func Masked(v string) bool {
	return strings.HasPrefix(v, maskPrefix) && len(v) == len(maskPrefix)+4 && validate.IsDigits(v[len(maskPrefix):])
}

func maskDigits(raw string) string {
	if Masked(raw) {
		return raw
	}
	d := validate.DigitsOnly(raw)
	if len(d) < 4 {
		return ""
	}
	return validate.MaskAccountLike(d)
}

// Document redacts every sensitive field of d in place.
func Document(d *models.Document) {
	if d == nil {
		return
	}
	if b := d.BankAccount; b != nil {
		b.AccountNumber = BankAccount(b.AccountNumber)
		b.ConfirmAccountNumber = ""
	}
	if c := d.Card; c != nil {
		if c.CardType == "" && c.CardNumber != "" && !Masked(c.CardNumber) {
			c.CardType = string(validate.DetectCardType(c.CardNumber))
		}
		c.CardNumber = Card(c.CardNumber)
		c.CVV = StripCVV(c.CVV)
	}
	if p := d.Principal; p != nil && p.SSN != "" {
		if ssn := validate.DigitsOnly(p.SSN); len(ssn) >= 4 {
			p.SSNLast4 = ssn[len(ssn)-4:]
		}
		p.SSN = ""
	}
}
