package models

import "time"

// SectionKey names a group of fields validated together.
type SectionKey string

const (
	SectionPrincipal        SectionKey = "principal"
	SectionPaymentMethod    SectionKey = "paymentMethod"
	SectionBankAccount      SectionKey = "bankAccount"
	SectionCard             SectionKey = "card"
	SectionSchedule         SectionKey = "schedule"
	SectionServices         SectionKey = "services"
	SectionAttorneyInFact   SectionKey = "attorneyInFact"
	SectionPowers           SectionKey = "powers"
	SectionAcknowledgements SectionKey = "acknowledgements"
	SectionSignature        SectionKey = "signature"
)

// Section is implemented by every typed sub-record that can be written into a
// Document. The controller applies a Section through Apply; callers never
// assign document fields directly.
type Section interface {
	Key() SectionKey
	apply(d *Document)
}

// Apply stores s in the slot of d its key names.
func Apply(d *Document, s Section) { s.apply(d) }

func (p Principal) Key() SectionKey   { return SectionPrincipal }
func (p Principal) apply(d *Document) { v := p.clone(); d.Principal = &v }

func (m PaymentMethod) Key() SectionKey   { return SectionPaymentMethod }
func (m PaymentMethod) apply(d *Document) { d.PaymentMethod = m }

func (b BankAccount) Key() SectionKey   { return SectionBankAccount }
func (b BankAccount) apply(d *Document) { v := b; d.BankAccount = &v }

func (c Card) Key() SectionKey   { return SectionCard }
func (c Card) apply(d *Document) { v := c; d.Card = &v }

func (s Schedule) Key() SectionKey   { return SectionSchedule }
func (s Schedule) apply(d *Document) { v := s.clone(); d.Schedule = &v }

func (s ServiceSelection) Key() SectionKey   { return SectionServices }
func (s ServiceSelection) apply(d *Document) { v := s.clone(); d.Services = &v }

func (a AttorneyInFact) Key() SectionKey   { return SectionAttorneyInFact }
func (a AttorneyInFact) apply(d *Document) { v := a; d.AttorneyInFact = &v }

func (p Powers) Key() SectionKey   { return SectionPowers }
func (p Powers) apply(d *Document) { v := p.clone(); d.Powers = &v }

// Clone returns a deep copy so a failed persistence call can leave the
// original untouched.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Principal != nil {
		v := d.Principal.clone()
		c.Principal = &v
	}
	if d.BankAccount != nil {
		v := *d.BankAccount
		c.BankAccount = &v
	}
	if d.Card != nil {
		v := *d.Card
		c.Card = &v
	}
	if d.Schedule != nil {
		v := d.Schedule.clone()
		c.Schedule = &v
	}
	if d.Services != nil {
		v := d.Services.clone()
		c.Services = &v
	}
	if d.ComputedTotals != nil {
		v := *d.ComputedTotals
		c.ComputedTotals = &v
	}
	if d.AttorneyInFact != nil {
		v := *d.AttorneyInFact
		c.AttorneyInFact = &v
	}
	if d.Powers != nil {
		v := d.Powers.clone()
		c.Powers = &v
	}
	if d.Acknowledgements != nil {
		c.Acknowledgements = make(map[string]bool, len(d.Acknowledgements))
		for k, v := range d.Acknowledgements {
			c.Acknowledgements[k] = v
		}
	}
	if d.Signatures != nil {
		c.Signatures = append([]Signature(nil), d.Signatures...)
	}
	c.EffectiveDate = cloneTime(d.EffectiveDate)
	c.ExpirationDate = cloneTime(d.ExpirationDate)
	c.CountersignedAt = cloneTime(d.CountersignedAt)
	c.CancelledDate = cloneTime(d.CancelledDate)
	c.RevokedDate = cloneTime(d.RevokedDate)
	c.ExpiredDate = cloneTime(d.ExpiredDate)
	return &c
}

func (p Principal) clone() Principal {
	if p.Address != nil {
		a := *p.Address
		p.Address = &a
	}
	p.DateOfBirth = cloneTime(p.DateOfBirth)
	return p
}

func (s Schedule) clone() Schedule {
	s.StartDate = cloneTime(s.StartDate)
	return s
}

func (s ServiceSelection) clone() ServiceSelection {
	if s.AddOns != nil {
		s.AddOns = append([]string(nil), s.AddOns...)
	}
	return s
}

func (p Powers) clone() Powers {
	if p.Granted != nil {
		p.Granted = append([]string(nil), p.Granted...)
	}
	p.ExpirationDate = cloneTime(p.ExpirationDate)
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
