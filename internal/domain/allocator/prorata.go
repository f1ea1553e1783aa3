// Package allocator spreads a document total across lines.
//
// The pro-rata allocator distributes a target total across lines
// proportionally to their amounts. Document-level allowances and charges
// are folded into line amounts with one ratio:
//
//	multiplier = target / sum(line_amounts)
//	allocated  = line_amount * multiplier
package allocator

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
)

var (
	ErrNoAmounts      = errors.New("no amounts to allocate")
	ErrNegativeAmount = errors.New("line amount cannot be negative")
)

// maxRoundingFix bounds the residual pushed onto the largest line.
var maxRoundingFix = decimal.RequireFromString("0.10")

// Result contains the allocation results.
type Result struct {
	Multiplier     decimal.Decimal
	Allocations    []decimal.Decimal // index-aligned with the input amounts
	TotalAllocated decimal.Decimal
}

// Allocate distributes target across amounts proportionally, rounding each
// share to currency precision. A residual below 0.10 from rounding is
// absorbed by the largest share so the shares sum to target exactly.
func Allocate(amounts []decimal.Decimal, target decimal.Decimal) (*Result, error) {
	if len(amounts) == 0 {
		return nil, ErrNoAmounts
	}

	// Step 1: Sum amounts
	total := decimal.Zero
	for _, a := range amounts {
		if a.IsNegative() {
			return nil, ErrNegativeAmount
		}
		total = total.Add(a)
	}

	result := &Result{
		Multiplier:     decimal.Zero,
		Allocations:    make([]decimal.Decimal, len(amounts)),
		TotalAllocated: decimal.Zero,
	}
	if total.IsZero() {
		// All lines are free - distribute nothing
		return result, nil
	}

	// Step 2: Calculate multiplier
	result.Multiplier = target.DivRound(total, 8)

	// Step 3: Allocate to each line
	for i, a := range amounts {
		share := a.Mul(target).DivRound(total, invoice.CurrencyPlaces)
		result.Allocations[i] = share
		result.TotalAllocated = result.TotalAllocated.Add(share)
	}

	// Step 4: Fix rounding - adjust largest line if total is off
	diff := target.Round(invoice.CurrencyPlaces).Sub(result.TotalAllocated)
	if !diff.IsZero() && diff.Abs().LessThan(maxRoundingFix) {
		maxIdx := 0
		for i, a := range result.Allocations {
			if a.GreaterThan(result.Allocations[maxIdx]) {
				maxIdx = i
			}
		}
		result.Allocations[maxIdx] = result.Allocations[maxIdx].Add(diff)
		result.TotalAllocated = result.TotalAllocated.Add(diff)
	}

	return result, nil
}
