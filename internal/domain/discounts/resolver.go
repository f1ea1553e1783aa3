// Package discounts decides whether line-level allowances and charges on an
// invoice change its totals or are informational only.
//
// The decision is made once per invoice:
//
//	header == sum(raw line amounts)
//	  && header != sum(discounted line amounts)
//	  && no header total-allowance segment
//	    => ignored: discount total is zero, net total is the raw sum
//	otherwise
//	    => applied: every line's allowances are subtracted and charges added
//
// Comparisons are made at currency precision (two decimal places).
package discounts

import (
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-ledger/internal/domain/allocator"
	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
)

// Mode is the per-invoice discount decision.
type Mode int

const (
	Applied Mode = iota
	Ignored
)

func (m Mode) String() string {
	if m == Ignored {
		return "ignored"
	}
	return "applied"
}

// MarshalText encodes the mode name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Resolution is the outcome of Resolve. The Header is not modified; the
// effective amount of each line is reported in LineAmounts, index-aligned
// with Header.Lines. Correction lines get a zero entry and are not counted.
type Resolution struct {
	Header *invoice.Header
	Mode   Mode

	SumLineAmounts  decimal.Decimal // raw line amounts, as parsed
	DiscountedTotal decimal.Decimal // raw amounts with line discounts applied
	DiscountTotal   decimal.Decimal // allowances minus charges that were applied
	NetTotal        decimal.Decimal // computed net total under Mode

	LineAmounts []decimal.Decimal

	// AllocatedAmounts are LineAmounts with the document allowance effect
	// spread pro rata, so they sum to NetTotal. Equal to LineAmounts when
	// there is no document effect or a line amount is negative.
	AllocatedAmounts []decimal.Decimal
}

// Resolve applies the discount rule to h.
func Resolve(h *invoice.Header) *Resolution {
	sumRaw := decimal.Zero
	discounted := decimal.Zero
	lineDiscounts := decimal.Zero

	for _, line := range h.Lines {
		if line.IsCorrection() {
			continue
		}
		sumRaw = sumRaw.Add(line.NetAmount)
		discounted = discounted.Add(line.DiscountedAmount())
		lineDiscounts = lineDiscounts.Add(line.Allowances()).Sub(line.Charges())
	}

	r := &Resolution{
		Header:          h,
		SumLineAmounts:  sumRaw,
		DiscountedTotal: discounted,
		LineAmounts:     make([]decimal.Decimal, len(h.Lines)),
	}

	ignore := invoice.EqualCents(h.DeclaredNet, sumRaw) &&
		!invoice.EqualCents(h.DeclaredNet, discounted) &&
		!h.HasTotalAllowance

	if ignore {
		r.Mode = Ignored
		r.DiscountTotal = decimal.Zero
		r.NetTotal = sumRaw
		for i, line := range h.Lines {
			if !line.IsCorrection() {
				r.LineAmounts[i] = line.NetAmount
			}
		}
		r.AllocatedAmounts = r.LineAmounts
		return r
	}

	docEffect := h.DocumentAllowanceEffect()
	r.Mode = Applied
	r.DiscountTotal = lineDiscounts.Sub(docEffect)
	r.NetTotal = discounted.Add(docEffect)
	for i, line := range h.Lines {
		if !line.IsCorrection() {
			r.LineAmounts[i] = line.DiscountedAmount()
		}
	}
	r.AllocatedAmounts = r.allocate(docEffect)
	return r
}

func (r *Resolution) allocate(docEffect decimal.Decimal) []decimal.Decimal {
	if docEffect.IsZero() {
		return r.LineAmounts
	}
	var idx []int
	var amounts []decimal.Decimal
	for i, line := range r.Header.Lines {
		if !line.IsCorrection() {
			idx = append(idx, i)
			amounts = append(amounts, r.LineAmounts[i])
		}
	}
	res, err := allocator.Allocate(amounts, r.NetTotal)
	if err != nil || res.TotalAllocated.IsZero() {
		return r.LineAmounts
	}
	out := make([]decimal.Decimal, len(r.LineAmounts))
	for j, i := range idx {
		out[i] = res.Allocations[j]
	}
	return out
}

// AllocatedAmount returns the allocated amount of line i.
func (r *Resolution) AllocatedAmount(i int) decimal.Decimal {
	if i < 0 || i >= len(r.AllocatedAmounts) {
		return decimal.Zero
	}
	return r.AllocatedAmounts[i]
}

// EffectiveAmount returns the resolved amount of line i.
func (r *Resolution) EffectiveAmount(i int) decimal.Decimal {
	if i < 0 || i >= len(r.LineAmounts) {
		return decimal.Zero
	}
	return r.LineAmounts[i]
}
