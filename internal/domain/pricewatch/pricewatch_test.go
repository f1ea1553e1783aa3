package pricewatch

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRule_Compare(t *testing.T) {
	tests := []struct {
		name      string
		rule      Rule
		prior     string
		current   string
		wantPct   string
		wantAlert bool
	}{
		{"fifteen percent over five percent threshold", Rule{ThresholdPct: d("5")}, "10.00", "11.50", "15", true},
		{"drop is flagged too", Rule{ThresholdPct: d("5")}, "10.00", "8.00", "-20", true},
		{"below threshold", Rule{ThresholdPct: d("5")}, "10.00", "10.40", "4", false},
		{"exactly at threshold", Rule{ThresholdPct: d("5")}, "10.00", "10.50", "5", false},
		{"unchanged", DefaultRule(), "3.20", "3.20", "0", false},
		{"rounded to two places", DefaultRule(), "3", "3.10", "3.33", true},
		{"small absolute move suppressed", Rule{ThresholdPct: d("1"), MinAbsDelta: d("0.02")}, "1.00", "1.02", "2", false},
		{"prior zero never alerts", DefaultRule(), "0", "5", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := tt.rule.Compare(d(tt.prior), d(tt.current))
			assert.True(t, d(tt.wantPct).Equal(dev.DeltaPct), "pct %s", dev.DeltaPct)
			assert.Equal(t, tt.wantAlert, dev.Alert)
			assert.True(t, d(tt.current).Sub(d(tt.prior)).Equal(dev.Delta))
		})
	}
}
