package units

import (
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
)

// WeightOverride gives the mass of one piece of a supplier article whose
// description carries no mass.
type WeightOverride struct {
	ArticleCode string
	Name        string
	KgPerPiece  decimal.Decimal
}

type weightKey struct {
	code string
	name string
}

// Normalizer fills in unit and base-quantity fields on invoice lines.
// It is immutable after construction and safe for concurrent use; to change
// the override table build a new Normalizer.
type Normalizer struct {
	weights map[weightKey]decimal.Decimal
}

// NewNormalizer creates a normalizer using the given weight overrides.
func NewNormalizer(overrides []WeightOverride) *Normalizer {
	weights := make(map[weightKey]decimal.Decimal, len(overrides))
	for _, o := range overrides {
		if !o.KgPerPiece.IsPositive() {
			continue
		}
		weights[weightKey{code: o.ArticleCode, name: CleanName(o.Name)}] = o.KgPerPiece
	}
	return &Normalizer{weights: weights}
}

// Normalize returns line with Unit, BaseQuantity and BaseUnit set. Unit is
// the declared unit, including its scale; BaseUnit is kg, L or piece.
func (n *Normalizer) Normalize(line invoice.Line) invoice.Line {
	base, factor := Parse(line.UnitCode)
	line.Unit = Declared(line.UnitCode)
	line.BaseUnit = base
	line.BaseQuantity = line.Quantity.Mul(factor)

	if base.Kind != invoice.UnitPiece {
		return line
	}

	if kg, ok := MassPerPiece(line.Description); ok {
		line.BaseQuantity = line.Quantity.Mul(kg)
		line.BaseUnit = invoice.Kilogram()
		return line
	}

	if litres, ok := VolumePerPiece(line.Description); ok {
		// Small bottles bought by the piece stay pieces; litre-sized packs
		// and fractional quantities are priced per litre.
		if litres.GreaterThanOrEqual(one) || !line.Quantity.Equal(line.Quantity.Truncate(0)) {
			line.BaseQuantity = line.Quantity.Mul(litres)
			line.BaseUnit = invoice.Litre()
		}
		return line
	}

	if n != nil {
		if kg, ok := n.weights[weightKey{code: line.ArticleCode, name: CleanName(line.Description)}]; ok {
			line.BaseQuantity = line.Quantity.Mul(kg)
			line.BaseUnit = invoice.Kilogram()
		}
	}
	return line
}

// PricePerBaseUnit returns amount / BaseQuantity rounded to 4 places when the
// base unit is kg or L.
func PricePerBaseUnit(line invoice.Line, amount decimal.Decimal) (decimal.Decimal, bool) {
	if !line.BaseUnit.IsMeasure() || !line.BaseQuantity.IsPositive() {
		return decimal.Zero, false
	}
	return amount.DivRound(line.BaseQuantity, 4), true
}
