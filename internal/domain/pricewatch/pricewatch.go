// Package pricewatch decides whether a price moved far enough from the last
// known price to be worth flagging.
package pricewatch

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Rule configures the deviation check.
type Rule struct {
	// ThresholdPct is the alert threshold in percent (5 means 5%).
	ThresholdPct decimal.Decimal

	// MinAbsDelta suppresses alerts when |current - prior| is at most this.
	MinAbsDelta decimal.Decimal
}

// DefaultRule alerts above a 1% change.
func DefaultRule() Rule {
	return Rule{ThresholdPct: decimal.NewFromInt(1)}
}

// Deviation is the comparison of a price with its prior observation.
type Deviation struct {
	Prior    decimal.Decimal
	Current  decimal.Decimal
	Delta    decimal.Decimal // Current - Prior
	DeltaPct decimal.Decimal // percent of Prior, two decimal places
	Alert    bool
}

// Compare compares current against prior. A zero or negative prior price
// never alerts, and neither does a move of at most MinAbsDelta.
func (r Rule) Compare(prior, current decimal.Decimal) Deviation {
	dev := Deviation{Prior: prior, Current: current, Delta: current.Sub(prior)}
	if !prior.IsPositive() {
		return dev
	}

	dev.DeltaPct = dev.Delta.Div(prior).Mul(hundred).Round(2)
	if dev.Delta.Abs().LessThanOrEqual(r.MinAbsDelta) {
		return dev
	}
	dev.Alert = dev.DeltaPct.Abs().GreaterThan(r.ThresholdPct)
	return dev
}
