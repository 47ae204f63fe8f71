// Package validate holds the field-level checks used by the section gate.
// Every function is total: malformed input yields false or CardUnknown, never a panic.
package validate

import (
	"net/mail"
	"strings"
	"time"
)

// CardType is the network inferred from a card number's leading digits.
type CardType string

const (
	CardVisa       CardType = "visa"
	CardMastercard CardType = "mastercard"
	CardAmex       CardType = "amex"
	CardDiscover   CardType = "discover"
	CardUnknown    CardType = "unknown"
)

// RoutingNumber applies the ABA checksum to a 9-digit routing number.
func RoutingNumber(s string) bool {
	if len(s) != 9 || !IsDigits(s) {
		return false
	}
	d := make([]int, 9)
	for i := range s {
		d[i] = int(s[i] - '0')
	}
	sum := 3*(d[0]+d[3]+d[6]) + 7*(d[1]+d[4]+d[7]) + (d[2] + d[5] + d[8])
	return sum%10 == 0
}

// DetectCardType matches the leading digits of a card number.
func DetectCardType(s string) CardType {
	s = DigitsOnly(s)
	switch {
	case s == "":
		return CardUnknown
	case strings.HasPrefix(s, "4"):
		return CardVisa
	case strings.HasPrefix(s, "34"), strings.HasPrefix(s, "37"):
		return CardAmex
	case strings.HasPrefix(s, "6011"), strings.HasPrefix(s, "65"):
		return CardDiscover
	case len(s) >= 2 && s[0] == '5' && s[1] >= '1' && s[1] <= '5':
		return CardMastercard
	}
	return CardUnknown
}

// CardNumber reports whether s is a plausible number for its detected network:
// correct length and a passing Luhn check.
func CardNumber(s string) bool {
	s = DigitsOnly(s)
	switch DetectCardType(s) {
	case CardAmex:
		if len(s) != 15 {
			return false
		}
	case CardVisa:
		if len(s) != 13 && len(s) != 16 && len(s) != 19 {
			return false
		}
	case CardMastercard, CardDiscover:
		if len(s) != 16 {
			return false
		}
	default:
		return false
	}
	return Luhn(s)
}

// Luhn runs the mod-10 check over a digit string.
func Luhn(s string) bool {
	if len(s) < 2 || !IsDigits(s) {
		return false
	}
	sum := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		n := int(s[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

// CVV expects 4 digits for amex and 3 for everything else.
func CVV(cvv string, card CardType) bool {
	want := 3
	if card == CardAmex {
		want = 4
	}
	return len(cvv) == want && IsDigits(cvv)
}

// CardExpiry reports whether the card is still valid in the month of now.
func CardExpiry(month, year int, now time.Time) bool {
	if !InRange(month, 1, 12) || year < 1 {
		return false
	}
	if year < 100 {
		year += 2000
	}
	ny, nm := now.Year(), int(now.Month())
	return year > ny || (year == ny && month >= nm)
}

// MaskAccountLike keeps the last four digits behind a fixed "****" prefix.
// Inputs shorter than four characters come back unchanged; they are not yet
// valid and are never persisted.
func MaskAccountLike(s string) string {
	if len(s) < 4 {
		return s
	}
	return "****" + s[len(s)-4:]
}

// Present reports whether a string field is non-empty after trimming.
func Present(s string) bool {
	return strings.TrimSpace(s) != ""
}

// PresentTime reports whether a date field has been set.
func PresentTime(t *time.Time) bool {
	return t != nil && !t.IsZero()
}

// PositiveAmount is the presence rule for amounts that must exceed zero.
func PositiveAmount(v float64) bool {
	return v > 0
}

// InRange reports lo <= v <= hi.
func InRange(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

// Email accepts a bare address, no display name.
func Email(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Phone accepts a 10-digit US number, optionally prefixed by country code 1.
func Phone(s string) bool {
	d := DigitsOnly(s)
	return len(d) == 10 || (len(d) == 11 && d[0] == '1')
}

// ZIP accepts 12345 or 12345-6789.
func ZIP(s string) bool {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 5:
		return IsDigits(s)
	case 10:
		return IsDigits(s[:5]) && s[5] == '-' && IsDigits(s[6:])
	}
	return false
}

// IsDigits reports whether s is non-empty and all ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// DigitsOnly strips spaces, dashes and anything else that is not a digit.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
