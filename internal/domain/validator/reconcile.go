// Package validator reconciles computed invoice totals against the totals
// the invoice declares.
//
// The computed net total (after discount resolution) must match the
// declared net total within a tolerance. Outside the tolerance the invoice
// either fails reconciliation or, when automatic rounding correction is
// enabled, gets a single correction line that makes the totals match
// exactly.
//
// Example usage:
//
//	res := discounts.Resolve(header)
//	result := validator.Reconcile(res, validator.DefaultPolicy())
//	if err := result.Err(); err != nil {
//		// totals are off; result.Delta says by how much
//	}
//	header = result.Header // corrected copy when a line was added
package validator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-ledger/internal/domain/discounts"
	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
)

// ErrReconciliationFailed is wrapped by Result.Err for failed decisions.
var ErrReconciliationFailed = errors.New("reconciliation failed")

// CorrectionDescription is the description of synthesized correction lines.
const CorrectionDescription = "Rounding correction"

// Decision is the reconciliation outcome.
type Decision int

const (
	WithinTolerance Decision = iota
	Corrected
	Failed
)

func (d Decision) String() string {
	switch d {
	case Corrected:
		return "corrected"
	case Failed:
		return "failed"
	default:
		return "within_tolerance"
	}
}

// MarshalText encodes the decision name.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Result contains the outcome of reconciling one invoice.
type Result struct {
	// ComputedNet is the net total from the lines, excluding any correction line.
	ComputedNet decimal.Decimal

	// DeclaredNet is the header's declared net total.
	DeclaredNet decimal.Decimal

	// Delta is DeclaredNet - ComputedNet.
	Delta decimal.Decimal

	// Tolerance is the tolerance that was applied.
	Tolerance decimal.Decimal

	Decision Decision

	// Correction is the synthesized correction line, set when Decision is Corrected.
	Correction *invoice.Line

	// Header is the header to continue with: the input header, or a
	// corrected copy.
	Header *invoice.Header

	// GrossMismatch reports declared net + VAT differing from the declared
	// gross beyond the tolerance. Informational only.
	GrossMismatch bool

	// Reason explains a failed or corrected decision (empty otherwise).
	Reason string
}

// Err returns a wrapped ErrReconciliationFailed when Decision is Failed.
func (r *Result) Err() error {
	if r.Decision != Failed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrReconciliationFailed, r.Reason)
}

// Reconcile compares the resolved net total with the declared one.
//
// It is deterministic and idempotent: correction lines already present on the
// header are excluded from the computed total, reused when they carry the
// right amount and replaced otherwise, so a header never ends up with more
// than one.
func Reconcile(res *discounts.Resolution, policy Policy) *Result {
	h := res.Header
	computed := res.NetTotal
	delta := h.DeclaredNet.Sub(computed)
	tol := policy.Tolerance(h.DeclaredNet)

	result := &Result{
		ComputedNet:   computed,
		DeclaredNet:   h.DeclaredNet,
		Delta:         delta,
		Tolerance:     tol,
		Header:        h,
		GrossMismatch: grossMismatch(h, tol),
	}

	if delta.Abs().LessThanOrEqual(tol) {
		result.Decision = WithinTolerance
		if h.CorrectionLine() >= 0 {
			result.Header = withoutCorrections(h)
		}
		return result
	}

	if !policy.RoundingCorrection {
		result.Decision = Failed
		result.Reason = failureReason(computed, h.DeclaredNet, delta, tol)
		return result
	}

	result.Decision = Corrected
	result.Reason = fmt.Sprintf("added correction of %s to match declared net %s",
		delta.StringFixed(invoice.CurrencyPlaces), h.DeclaredNet.StringFixed(invoice.CurrencyPlaces))
	result.Header = withCorrection(h, delta)
	idx := result.Header.CorrectionLine()
	correction := result.Header.Lines[idx]
	result.Correction = &correction
	return result
}

func failureReason(computed, declared, delta, tol decimal.Decimal) string {
	if delta.IsPositive() {
		return fmt.Sprintf("line total (%s) is less than declared net (%s) by %s, tolerance %s",
			computed.StringFixed(2), declared.StringFixed(2), delta.StringFixed(2), tol.StringFixed(2))
	}
	return fmt.Sprintf("line total (%s) exceeds declared net (%s) by %s, tolerance %s",
		computed.StringFixed(2), declared.StringFixed(2), delta.Neg().StringFixed(2), tol.StringFixed(2))
}

func grossMismatch(h *invoice.Header, tol decimal.Decimal) bool {
	if !h.DeclaredGross.Valid || !h.DeclaredVAT.Valid {
		return false
	}
	diff := h.DeclaredNet.Add(h.DeclaredVAT.Decimal).Sub(h.DeclaredGross.Decimal)
	return diff.Abs().GreaterThan(tol)
}

// withCorrection returns h with exactly one correction line of amount.
// When h already has exactly that, h itself is returned.
func withCorrection(h *invoice.Header, amount decimal.Decimal) *invoice.Header {
	count := 0
	matches := false
	for _, line := range h.Lines {
		if line.IsCorrection() {
			count++
			matches = line.NetAmount.Equal(amount)
		}
	}
	if count == 1 && matches {
		return h
	}

	out := withoutCorrections(h)
	out.Lines = append(out.Lines, correctionLine(nextPosition(out), amount))
	return out
}

func withoutCorrections(h *invoice.Header) *invoice.Header {
	out := h.Clone()
	kept := out.Lines[:0]
	for _, line := range out.Lines {
		if !line.IsCorrection() {
			kept = append(kept, line)
		}
	}
	out.Lines = kept
	return out
}

func nextPosition(h *invoice.Header) int {
	highest := 0
	for _, line := range h.Lines {
		if line.Position > highest {
			highest = line.Position
		}
	}
	return highest + 1
}

func correctionLine(position int, amount decimal.Decimal) invoice.Line {
	one := decimal.NewFromInt(1)
	return invoice.Line{
		Position:     position,
		Description:  CorrectionDescription,
		Quantity:     one,
		Unit:         invoice.Piece(),
		BaseUnit:     invoice.Piece(),
		BaseQuantity: one,
		UnitPrice:    amount,
		NetAmount:    amount,
		Kind:         invoice.LineCorrection,
	}
}
