package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/invoice-ledger/internal/domain/discounts"
	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func singleLine(declared, lineAmount string) *invoice.Header {
	return &invoice.Header{
		DeclaredNet: d(declared),
		Lines: []invoice.Line{
			{Position: 1, Description: "Test", Quantity: d("1"), NetAmount: d(lineAmount)},
		},
	}
}

func correctingPolicy() Policy {
	p := DefaultPolicy()
	p.RoundingCorrection = true
	return p
}

func TestPolicy_Tolerance(t *testing.T) {
	t.Run("smart off uses base", func(t *testing.T) {
		p := Policy{Base: d("0.02"), Smart: false, Max: d("0.50")}
		assert.True(t, d("0.02").Equal(p.Tolerance(d("15000"))))
	})

	t.Run("small invoice uses base", func(t *testing.T) {
		p := DefaultPolicy()
		assert.True(t, d("0.02").Equal(p.Tolerance(d("10.00"))))
	})

	t.Run("higher base wins", func(t *testing.T) {
		p := DefaultPolicy()
		p.Base = d("0.05")
		assert.True(t, d("0.05").Equal(p.Tolerance(d("10.03"))))
	})

	t.Run("scales with total", func(t *testing.T) {
		p := DefaultPolicy()
		assert.True(t, d("0.3").Equal(p.Tolerance(d("3000"))))
	})

	t.Run("large invoice is capped", func(t *testing.T) {
		p := DefaultPolicy()
		assert.True(t, d("0.50").Equal(p.Tolerance(d("15000.00"))))
	})

	t.Run("custom scale function", func(t *testing.T) {
		p := DefaultPolicy()
		p.Scale = func(decimal.Decimal) decimal.Decimal { return d("0.10") }
		assert.True(t, d("0.10").Equal(p.Tolerance(d("1"))))
	})
}

func TestReconcile_WithinTolerance(t *testing.T) {
	h := singleLine("10.00", "10.01")

	result := Reconcile(discounts.Resolve(h), DefaultPolicy())

	assert.Equal(t, WithinTolerance, result.Decision)
	assert.Same(t, h, result.Header)
	assert.Nil(t, result.Correction)
	assert.NoError(t, result.Err())
	assert.True(t, d("-0.01").Equal(result.Delta))
}

func TestReconcile_ExactlyAtTolerance(t *testing.T) {
	h := singleLine("100.00", "99.98")

	result := Reconcile(discounts.Resolve(h), DefaultPolicy())

	assert.Equal(t, WithinTolerance, result.Decision)
}

func TestReconcile_FailsWithoutCorrection(t *testing.T) {
	h := singleLine("103.27", "52.55")

	result := Reconcile(discounts.Resolve(h), DefaultPolicy())

	assert.Equal(t, Failed, result.Decision)
	assert.True(t, d("52.55").Equal(result.ComputedNet))
	assert.True(t, d("103.27").Equal(result.DeclaredNet))
	assert.True(t, d("50.72").Equal(result.Delta))
	assert.Contains(t, result.Reason, "less than declared")
	assert.ErrorIs(t, result.Err(), ErrReconciliationFailed)
	assert.Same(t, h, result.Header)
}

func TestReconcile_FailureReasonWhenOver(t *testing.T) {
	result := Reconcile(discounts.Resolve(singleLine("100.00", "150.00")), DefaultPolicy())

	assert.Equal(t, Failed, result.Decision)
	assert.Contains(t, result.Reason, "exceeds declared")
}

func TestReconcile_AddsCorrectionLine(t *testing.T) {
	// Arrange
	h := singleLine("10.00", "10.04")

	// Act
	result := Reconcile(discounts.Resolve(h), correctingPolicy())

	// Assert
	require.Equal(t, Corrected, result.Decision)
	require.NotNil(t, result.Correction)
	assert.True(t, d("-0.04").Equal(result.Correction.NetAmount))
	assert.Equal(t, invoice.LineCorrection, result.Correction.Kind)
	assert.Equal(t, 2, result.Correction.Position)
	assert.Equal(t, CorrectionDescription, result.Correction.Description)

	// The input header is untouched; the result is a corrected copy.
	assert.Len(t, h.Lines, 1)
	assert.Len(t, result.Header.Lines, 2)

	total := decimal.Zero
	for _, line := range result.Header.Lines {
		total = total.Add(line.NetAmount)
	}
	assert.True(t, d("10.00").Equal(total))
}

func TestReconcile_SkipsCorrectionWithinTolerance(t *testing.T) {
	p := correctingPolicy()
	p.Base = d("0.05")

	result := Reconcile(discounts.Resolve(singleLine("10.00", "10.03")), p)

	assert.Equal(t, WithinTolerance, result.Decision)
	assert.Nil(t, result.Correction)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	h := singleLine("10.00", "10.04")
	p := correctingPolicy()

	first := Reconcile(discounts.Resolve(h), p)
	second := Reconcile(discounts.Resolve(first.Header), p)

	assert.Equal(t, Corrected, second.Decision)
	assert.Same(t, first.Header, second.Header)
	assert.Len(t, second.Header.Lines, 2)
	assert.True(t, first.Delta.Equal(second.Delta))
	assert.True(t, first.ComputedNet.Equal(second.ComputedNet))
}

func TestReconcile_ReplacesStaleCorrection(t *testing.T) {
	h := singleLine("10.00", "10.20")
	h.Lines = append(h.Lines, invoice.Line{
		Position:    2,
		Description: CorrectionDescription,
		Quantity:    d("1"),
		NetAmount:   d("-0.04"),
		Kind:        invoice.LineCorrection,
	})

	result := Reconcile(discounts.Resolve(h), correctingPolicy())

	require.Equal(t, Corrected, result.Decision)
	corrections := 0
	for _, line := range result.Header.Lines {
		if line.IsCorrection() {
			corrections++
			assert.True(t, d("-0.20").Equal(line.NetAmount))
		}
	}
	assert.Equal(t, 1, corrections)
}

func TestReconcile_DropsCorrectionWhenNoLongerNeeded(t *testing.T) {
	h := singleLine("10.00", "10.00")
	h.Lines = append(h.Lines, invoice.Line{Position: 2, NetAmount: d("-0.04"), Kind: invoice.LineCorrection})

	result := Reconcile(discounts.Resolve(h), correctingPolicy())

	assert.Equal(t, WithinTolerance, result.Decision)
	assert.Len(t, result.Header.Lines, 1)
	assert.Len(t, h.Lines, 2)
}

func TestReconcile_UsesResolvedDiscounts(t *testing.T) {
	h := &invoice.Header{
		DeclaredNet: d("8"),
		Lines: []invoice.Line{{
			Position:  1,
			Quantity:  d("1"),
			NetAmount: d("10"),
			AllowanceCharges: []invoice.AllowanceCharge{
				{Kind: invoice.Allowance, Amount: d("2"), LineIndex: 0},
			},
		}},
	}

	result := Reconcile(discounts.Resolve(h), DefaultPolicy())

	assert.Equal(t, WithinTolerance, result.Decision)
	assert.True(t, d("8").Equal(result.ComputedNet))
}

func TestReconcile_GrossMismatch(t *testing.T) {
	h := singleLine("10.00", "10.00")
	h.DeclaredVAT = decimal.NewNullDecimal(d("2.20"))
	h.DeclaredGross = decimal.NewNullDecimal(d("12.50"))

	result := Reconcile(discounts.Resolve(h), DefaultPolicy())
	assert.True(t, result.GrossMismatch)

	h.DeclaredGross = decimal.NewNullDecimal(d("12.20"))
	result = Reconcile(discounts.Resolve(h), DefaultPolicy())
	assert.False(t, result.GrossMismatch)
}
