// Package invoice holds the normalized in-memory model of an e-invoice.
//
// A Header owns an ordered slice of Lines; each Line owns its
// AllowanceCharge records. Everything is plain data: values are produced by
// the eslog normalizer and treated as read-only afterwards. Stages that need
// to change a header (the reconciler adding a correction line) work on a
// Clone.
//
// All amounts use shopspring/decimal. Allowance and charge amounts are stored
// as magnitudes; the Kind carries the sign.
package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a document carries no currency segment.
const DefaultCurrency = "EUR"

// Header is the normalized invoice header together with its lines.
type Header struct {
	SupplierID    string // tax id (e.g. SI12345678); empty when absent
	SupplierName  string
	InvoiceNumber string
	InvoiceDate   time.Time
	ServiceDate   time.Time
	Currency      string

	DeclaredNet   decimal.Decimal     // line-items net total (MOA 389/125/79)
	DeclaredGross decimal.NullDecimal // grand total (MOA 9/388)
	DeclaredVAT   decimal.NullDecimal // tax total (MOA 124/176)

	// HasTotalAllowance reports a header-level total allowance segment (MOA 260).
	HasTotalAllowance bool
	TotalAllowance    decimal.NullDecimal

	// DocumentAllowances are allowance/charge records not attached to a line.
	// Their LineIndex is NoLine.
	DocumentAllowances []AllowanceCharge

	Lines []Line
}

// LineKind distinguishes ordinary item lines from synthesized lines.
type LineKind int

const (
	LineItem LineKind = iota
	LineCorrection
)

func (k LineKind) String() string {
	if k == LineCorrection {
		return "correction"
	}
	return "item"
}

// Line is a single invoice line.
//
// Quantity is expressed in the declared unit (UnitCode). BaseQuantity is the
// same quantity expressed in BaseUnit, which is kilograms or litres whenever
// the mass or volume could be derived, and pieces otherwise.
type Line struct {
	Position    int // 1-based, order preserving
	Description string
	ArticleCode string // supplier article code

	Quantity     decimal.Decimal
	UnitCode     string
	Unit         Unit
	BaseQuantity decimal.Decimal
	BaseUnit     Unit

	UnitPrice      decimal.Decimal     // net unit price (PRI AAA)
	GrossUnitPrice decimal.NullDecimal // PRI AAB
	NetAmount      decimal.Decimal     // line net amount as parsed (MOA 203)
	VATRate        decimal.NullDecimal

	AllowanceCharges []AllowanceCharge

	Kind LineKind
}

// IsCorrection reports whether the line was synthesized by reconciliation.
func (l Line) IsCorrection() bool {
	return l.Kind == LineCorrection
}

// Allowances returns the sum of allowance amounts on the line.
func (l Line) Allowances() decimal.Decimal {
	total := decimal.Zero
	for _, ac := range l.AllowanceCharges {
		if ac.Kind == Allowance {
			total = total.Add(ac.Amount)
		}
	}
	return total
}

// Charges returns the sum of charge amounts on the line.
func (l Line) Charges() decimal.Decimal {
	total := decimal.Zero
	for _, ac := range l.AllowanceCharges {
		if ac.Kind == Charge {
			total = total.Add(ac.Amount)
		}
	}
	return total
}

// DiscountedAmount is the parsed net amount minus allowances plus charges.
func (l Line) DiscountedAmount() decimal.Decimal {
	return l.NetAmount.Sub(l.Allowances()).Add(l.Charges())
}

// AllowanceKind is the allowance/charge indicator (EDIFACT 5463).
type AllowanceKind int

const (
	Allowance AllowanceKind = iota
	Charge
)

func (k AllowanceKind) String() string {
	if k == Charge {
		return "charge"
	}
	return "allowance"
}

// NoLine marks a document-level allowance/charge.
const NoLine = -1

// AllowanceCharge is an allowance or charge record.
type AllowanceCharge struct {
	Kind    AllowanceKind
	Amount  decimal.Decimal     // magnitude, never negative
	Percent decimal.NullDecimal // PCD 1/2 percentage when present
	Reason  string

	// LineIndex is the index into Header.Lines of the owning line, or NoLine.
	LineIndex int
}

// Effect returns the signed effect on a total: negative for allowances.
func (ac AllowanceCharge) Effect() decimal.Decimal {
	if ac.Kind == Allowance {
		return ac.Amount.Neg()
	}
	return ac.Amount
}

// SumLineAmounts returns the sum of parsed line net amounts, skipping
// correction lines.
func (h *Header) SumLineAmounts() decimal.Decimal {
	total := decimal.Zero
	for _, line := range h.Lines {
		if line.IsCorrection() {
			continue
		}
		total = total.Add(line.NetAmount)
	}
	return total
}

// DocumentAllowanceEffect returns the signed effect of all document-level
// allowances and charges.
func (h *Header) DocumentAllowanceEffect() decimal.Decimal {
	total := decimal.Zero
	for _, ac := range h.DocumentAllowances {
		total = total.Add(ac.Effect())
	}
	return total
}

// CorrectionLine returns the index of the first correction line, or -1.
func (h *Header) CorrectionLine() int {
	for i, line := range h.Lines {
		if line.IsCorrection() {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() *Header {
	if h == nil {
		return nil
	}
	out := *h
	out.DocumentAllowances = append([]AllowanceCharge(nil), h.DocumentAllowances...)
	out.Lines = make([]Line, len(h.Lines))
	for i, line := range h.Lines {
		line.AllowanceCharges = append([]AllowanceCharge(nil), line.AllowanceCharges...)
		out.Lines[i] = line
	}
	return &out
}
