package validator

import "github.com/shopspring/decimal"

// ScaleFunc maps the declared invoice total to a tolerance amount. It must be
// monotonically non-decreasing in |total|.
type ScaleFunc func(total decimal.Decimal) decimal.Decimal

// Proportional returns a ScaleFunc of |total| * rate.
func Proportional(rate decimal.Decimal) ScaleFunc {
	return func(total decimal.Decimal) decimal.Decimal {
		return total.Abs().Mul(rate)
	}
}

// Policy controls how far a computed net total may drift from the declared
// one and what happens when it drifts further.
type Policy struct {
	// Base is the fixed tolerance in currency units.
	Base decimal.Decimal

	// Smart enables scaling the tolerance with the invoice total.
	Smart bool

	// Scale computes the scaled tolerance when Smart is set. Nil means
	// Proportional(DefaultRate).
	Scale ScaleFunc

	// Max caps the scaled tolerance. Zero means no cap.
	Max decimal.Decimal

	// RoundingCorrection synthesizes a correction line instead of failing.
	RoundingCorrection bool
}

// DefaultRate is the proportional scaling rate used when none is configured.
var DefaultRate = decimal.New(1, -4)

// DefaultPolicy returns the standard policy: 0.02 base, smart scaling at
// 0.01% of the total, capped at 0.50, no automatic correction.
func DefaultPolicy() Policy {
	return Policy{
		Base:  decimal.New(2, -2),
		Smart: true,
		Scale: Proportional(DefaultRate),
		Max:   decimal.New(50, -2),
	}
}

// Tolerance returns the effective tolerance for a declared total.
//
// With Smart off it is Base. With Smart on it is max(Base, Scale(total)),
// capped at Max; the cap never lowers the result below Base.
func (p Policy) Tolerance(declared decimal.Decimal) decimal.Decimal {
	if !p.Smart {
		return p.Base
	}

	scale := p.Scale
	if scale == nil {
		scale = Proportional(DefaultRate)
	}

	tol := decimal.Max(p.Base, scale(declared))
	if p.Max.IsPositive() && tol.GreaterThan(p.Max) {
		tol = decimal.Max(p.Max, p.Base)
	}
	return tol
}
