// Package pricing computes service-agreement totals from a static price table.
package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/validate"
	"github.com/shopspring/decimal"
)

const (
	MinDurationMonths = 1
	MaxDurationMonths = 36
)

var (
	ErrUnknownPackage  = errors.New("unknown package")
	ErrUnknownAddOn    = errors.New("unknown add-on")
	ErrInvalidDuration = errors.New("contract duration out of range")
)

// Package is a service tier with a monthly price and one-time setup fee.
type Package struct {
	ID       string
	Name     string
	Monthly  decimal.Decimal
	SetupFee decimal.Decimal
}

// AddOn is an optional monthly service.
type AddOn struct {
	ID      string
	Name    string
	Monthly decimal.Decimal
}

// Table is the immutable price list the engine reads from.
type Table struct {
	packages map[string]Package
	addOns   map[string]AddOn
}

// NewTable builds a table; negative prices are rejected so every total is
// non-negative by construction.
func NewTable(packages []Package, addOns []AddOn) (*Table, error) {
	t := &Table{packages: make(map[string]Package), addOns: make(map[string]AddOn)}
	for _, p := range packages {
		if p.Monthly.IsNegative() || p.SetupFee.IsNegative() {
			return nil, fmt.Errorf("package %q has a negative price", p.ID)
		}
		t.packages[p.ID] = p
	}
	for _, a := range addOns {
		if a.Monthly.IsNegative() {
			return nil, fmt.Errorf("add-on %q has a negative price", a.ID)
		}
		t.addOns[a.ID] = a
	}
	return t, nil
}

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultTable is the current published price list.
var DefaultTable = func() *Table {
	t, err := NewTable(
		[]Package{
			{ID: "basic", Name: "Basic", Monthly: usd("79"), SetupFee: usd("79")},
			{ID: "standard", Name: "Standard", Monthly: usd("99"), SetupFee: usd("99")},
			{ID: "premium", Name: "Premium", Monthly: usd("149"), SetupFee: usd("149")},
		},
		[]AddOn{
			{ID: "credit_monitoring", Name: "Credit Monitoring", Monthly: usd("24.99")},
			{ID: "identity_protection", Name: "Identity Protection", Monthly: usd("14.99")},
			{ID: "debt_validation", Name: "Debt Validation Letters", Monthly: usd("29.00")},
			{ID: "goodwill_letters", Name: "Goodwill Letters", Monthly: usd("19.00")},
		},
	)
	if err != nil {
		panic(err)
	}
	return t
}()

// Package looks up a tier by ID.
func (t *Table) Package(id string) (Package, bool) {
	p, ok := t.packages[id]
	return p, ok
}

// AddOn looks up an add-on by ID.
func (t *Table) AddOn(id string) (AddOn, bool) {
	a, ok := t.addOns[id]
	return a, ok
}

// PackageIDs returns the tier IDs in sorted order.
func (t *Table) PackageIDs() []string {
	ids := make([]string, 0, len(t.packages))
	for id := range t.packages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Totals is the engine output.
type Totals struct {
	MonthlyFee    decimal.Decimal
	AddOnTotal    decimal.Decimal
	TotalMonthly  decimal.Decimal
	SetupFee      decimal.Decimal
	TotalContract decimal.Decimal
}

// Model converts the totals for storage.
func (t Totals) Model() *models.ComputedTotals {
	return &models.ComputedTotals{
		MonthlyFee:    t.MonthlyFee.InexactFloat64(),
		AddOnTotal:    t.AddOnTotal.InexactFloat64(),
		TotalMonthly:  t.TotalMonthly.InexactFloat64(),
		SetupFee:      t.SetupFee.InexactFloat64(),
		TotalContract: t.TotalContract.InexactFloat64(),
	}
}

// Compute derives totals from a selection. It has no side effects and may be
// called on every input change. Duplicate add-on IDs count once.
func (t *Table) Compute(sel models.ServiceSelection) (Totals, error) {
	pkg, ok := t.Package(sel.Package)
	if !ok {
		return Totals{}, fmt.Errorf("%w: %q, choose one of %s", ErrUnknownPackage, sel.Package, strings.Join(t.PackageIDs(), ", "))
	}
	if !validate.InRange(sel.DurationMonths, MinDurationMonths, MaxDurationMonths) {
		return Totals{}, fmt.Errorf("%w: %d months", ErrInvalidDuration, sel.DurationMonths)
	}

	addOnTotal := decimal.Zero
	seen := make(map[string]bool, len(sel.AddOns))
	for _, id := range sel.AddOns {
		if seen[id] {
			continue
		}
		seen[id] = true
		a, ok := t.AddOn(id)
		if !ok {
			return Totals{}, fmt.Errorf("%w: %q", ErrUnknownAddOn, id)
		}
		addOnTotal = addOnTotal.Add(a.Monthly)
	}

	totalMonthly := pkg.Monthly.Add(addOnTotal)
	return Totals{
		MonthlyFee:    pkg.Monthly,
		AddOnTotal:    addOnTotal,
		TotalMonthly:  totalMonthly,
		SetupFee:      pkg.SetupFee,
		TotalContract: pkg.SetupFee.Add(totalMonthly.Mul(decimal.NewFromInt(int64(sel.DurationMonths)))),
	}, nil
}
