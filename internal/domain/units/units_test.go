package units

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParse(t *testing.T) {
	tests := []struct {
		raw    string
		unit   invoice.Unit
		factor string
	}{
		{"KGM", invoice.Kilogram(), "1"},
		{"GRM", invoice.Kilogram(), "0.001"},
		{"MGM", invoice.Kilogram(), "0.000001"},
		{"LTR", invoice.Litre(), "1"},
		{"MLT", invoice.Litre(), "0.001"},
		{"H87", invoice.Piece(), "1"},
		{"EA", invoice.Piece(), "1"},
		{"kos", invoice.Piece(), "1"},
		{"Kom", invoice.Piece(), "1"},
		{"g", invoice.Kilogram(), "0.001"},
		{"dl", invoice.Litre(), "0.1"},
		{"PA", invoice.Other("PA"), "1"},
		{"", invoice.Other(""), "1"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			unit, factor := Parse(tt.raw)
			assert.Equal(t, tt.unit, unit)
			assert.True(t, d(tt.factor).Equal(factor), "factor %s", factor)
		})
	}
}

func TestDeclared(t *testing.T) {
	tests := []struct {
		raw  string
		want invoice.Unit
	}{
		{"KGM", invoice.Kilogram()},
		{"GRM", invoice.Other("g")},
		{"MGM", invoice.Other("mg")},
		{"MLT", invoice.Other("ml")},
		{"CLT", invoice.Other("cl")},
		{"dcl", invoice.Other("dl")},
		{" g ", invoice.Other("g")},
		{"LTR", invoice.Litre()},
		{"H87", invoice.Piece()},
		{"PA", invoice.Other("PA")},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Declared(tt.raw))
		})
	}
}

func TestMassAndVolumePerPiece(t *testing.T) {
	kg, ok := MassPerPiece("Moka T-500 480g")
	assert.True(t, ok)
	assert.True(t, d("0.48").Equal(kg))

	kg, ok = MassPerPiece("Sir 0,5 kg")
	assert.True(t, ok)
	assert.True(t, d("0.5").Equal(kg))

	kg, ok = MassPerPiece("Bonboni 50 dag")
	assert.True(t, ok)
	assert.True(t, d("0.5").Equal(kg))

	_, ok = MassPerPiece("Kruh beli")
	assert.False(t, ok)

	l, ok := VolumePerPiece("Voda 1,5 l")
	assert.True(t, ok)
	assert.True(t, d("1.5").Equal(l))

	l, ok = VolumePerPiece("Sok 250 ml")
	assert.True(t, ok)
	assert.True(t, d("0.25").Equal(l))
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer([]WeightOverride{
		{ArticleCode: "A-77", Name: "Kruh  Beli", KgPerPiece: d("0.6")},
	})

	t.Run("mass unit code converts to kg", func(t *testing.T) {
		line := n.Normalize(invoice.Line{Quantity: d("2"), UnitCode: "KGM"})
		assert.Equal(t, invoice.Kilogram(), line.Unit)
		assert.Equal(t, invoice.Kilogram(), line.BaseUnit)
		assert.True(t, d("2").Equal(line.BaseQuantity))
	})

	t.Run("scaled unit code keeps its scale", func(t *testing.T) {
		tests := []struct {
			code    string
			qty     string
			unit    invoice.Unit
			base    invoice.Unit
			baseQty string
		}{
			{"GRM", "500", invoice.Other("g"), invoice.Kilogram(), "0.5"},
			{"MLT", "750", invoice.Other("ml"), invoice.Litre(), "0.75"},
			{"dl", "5", invoice.Other("dl"), invoice.Litre(), "0.5"},
		}
		for _, tt := range tests {
			t.Run(tt.code, func(t *testing.T) {
				line := n.Normalize(invoice.Line{Description: "Kava 1kg", Quantity: d(tt.qty), UnitCode: tt.code})
				assert.Equal(t, tt.unit, line.Unit)
				assert.Equal(t, tt.base, line.BaseUnit)
				assert.True(t, d(tt.baseQty).Equal(line.BaseQuantity), "base quantity %s", line.BaseQuantity)
			})
		}
	})

	t.Run("piece with mass in description", func(t *testing.T) {
		line := n.Normalize(invoice.Line{Description: "Kava 480g", Quantity: d("2"), UnitCode: "H87"})
		assert.Equal(t, invoice.Piece(), line.Unit)
		assert.Equal(t, invoice.Kilogram(), line.BaseUnit)
		assert.True(t, d("0.96").Equal(line.BaseQuantity))
	})

	t.Run("large bottle is priced per litre", func(t *testing.T) {
		line := n.Normalize(invoice.Line{Description: "Olje 1 l", Quantity: d("3"), UnitCode: "kos"})
		assert.Equal(t, invoice.Litre(), line.BaseUnit)
		assert.True(t, d("3").Equal(line.BaseQuantity))
	})

	t.Run("small bottle stays a piece", func(t *testing.T) {
		line := n.Normalize(invoice.Line{Description: "Sok 0,2 l", Quantity: d("24"), UnitCode: "kos"})
		assert.Equal(t, invoice.Piece(), line.BaseUnit)
		assert.True(t, d("24").Equal(line.BaseQuantity))
	})

	t.Run("weight override by article and name", func(t *testing.T) {
		line := n.Normalize(invoice.Line{Description: "kruh beli", ArticleCode: "A-77", Quantity: d("10"), UnitCode: "H87"})
		assert.Equal(t, invoice.Kilogram(), line.BaseUnit)
		assert.True(t, d("6").Equal(line.BaseQuantity))
	})

	t.Run("unknown unit is carried through", func(t *testing.T) {
		line := n.Normalize(invoice.Line{Quantity: d("4"), UnitCode: "PA"})
		assert.Equal(t, invoice.Other("PA"), line.Unit)
		assert.True(t, d("4").Equal(line.BaseQuantity))
	})
}

func TestPricePerBaseUnit(t *testing.T) {
	line := invoice.Line{BaseUnit: invoice.Kilogram(), BaseQuantity: d("0.96")}
	price, ok := PricePerBaseUnit(line, d("12.00"))
	assert.True(t, ok)
	assert.True(t, d("12.5").Equal(price))

	_, ok = PricePerBaseUnit(invoice.Line{BaseUnit: invoice.Piece(), BaseQuantity: d("1")}, d("1"))
	assert.False(t, ok)
}
