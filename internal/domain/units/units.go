// Package units normalizes invoice quantities to pieces, kilograms or litres.
//
// A line's declared unit is mapped to the closed invoice.Unit type. When a
// line is counted in pieces, the mass or volume of one piece is looked for in
// the description ("480g", "0,5 l") and then in an explicit table of weight
// overrides, so that prices can be compared per kilogram or per litre.
package units

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
)

type conversion struct {
	unit   invoice.Unit
	factor decimal.Decimal
	// scale is the symbol of a sub-unit of unit ("g", "ml"). Empty when the
	// code is already counted in the base unit.
	scale string
}

var (
	one        = decimal.NewFromInt(1)
	thousandth = decimal.New(1, -3)
)

// codes maps UN/ECE recommendation 20 codes and common textual units.
var codes = map[string]conversion{
	"KGM": {invoice.Kilogram(), one, ""},
	"GRM": {invoice.Kilogram(), thousandth, "g"},
	"MGM": {invoice.Kilogram(), decimal.New(1, -6), "mg"},
	"LTR": {invoice.Litre(), one, ""},
	"MLT": {invoice.Litre(), thousandth, "ml"},
	"CLT": {invoice.Litre(), decimal.New(1, -2), "cl"},
	"DLT": {invoice.Litre(), decimal.New(1, -1), "dl"},
	"H87": {invoice.Piece(), one, ""},
	"EA":  {invoice.Piece(), one, ""},
	"PCE": {invoice.Piece(), one, ""},
	"C62": {invoice.Piece(), one, ""},

	"kg":    {invoice.Kilogram(), one, ""},
	"g":     {invoice.Kilogram(), thousandth, "g"},
	"gr":    {invoice.Kilogram(), thousandth, "g"},
	"gram":  {invoice.Kilogram(), thousandth, "g"},
	"grams": {invoice.Kilogram(), thousandth, "g"},
	"mg":    {invoice.Kilogram(), decimal.New(1, -6), "mg"},
	"l":     {invoice.Litre(), one, ""},
	"ml":    {invoice.Litre(), thousandth, "ml"},
	"cl":    {invoice.Litre(), decimal.New(1, -2), "cl"},
	"dl":    {invoice.Litre(), decimal.New(1, -1), "dl"},
	"dcl":   {invoice.Litre(), decimal.New(1, -1), "dl"},
	"kos":   {invoice.Piece(), one, ""},
	"kom":   {invoice.Piece(), one, ""},
	"stk":   {invoice.Piece(), one, ""},
	"st":    {invoice.Piece(), one, ""},
	"pcs":   {invoice.Piece(), one, ""},
	"ea":    {invoice.Piece(), one, ""},
	"can":   {invoice.Piece(), one, ""},
}

// Parse maps a unit code to a unit and the factor converting a quantity in
// that unit to the unit's base (kg, L or pieces). Unknown units come back as
// invoice.Other(raw) with factor 1.
func Parse(raw string) (invoice.Unit, decimal.Decimal) {
	if c, ok := lookup(raw); ok {
		return c.unit, c.factor
	}
	return invoice.Other(raw), one
}

// Declared returns the unit a quantity is counted in. Scaled codes such as
// GRM or ml keep their scale as invoice.Other("g") or invoice.Other("ml"),
// so that a quantity of 500 GRM reads as 500 g and not 500 kg.
func Declared(raw string) invoice.Unit {
	c, ok := lookup(raw)
	switch {
	case !ok:
		return invoice.Other(raw)
	case c.scale != "":
		return invoice.Other(c.scale)
	default:
		return c.unit
	}
}

func lookup(raw string) (conversion, bool) {
	trimmed := strings.TrimSpace(raw)
	if c, ok := codes[strings.ToUpper(trimmed)]; ok {
		return c, true
	}
	c, ok := codes[strings.ToLower(trimmed)]
	return c, ok
}

var (
	massInName   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kg|dag|mg|g)\b`)
	volumeInName = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(ml|cl|dl|l)\b`)
	spaces       = regexp.MustCompile(`\s+`)
)

var massFactors = map[string]decimal.Decimal{
	"kg":  one,
	"dag": decimal.New(1, -2),
	"g":   thousandth,
	"mg":  decimal.New(1, -6),
}

var volumeFactors = map[string]decimal.Decimal{
	"l":  one,
	"dl": decimal.New(1, -1),
	"cl": decimal.New(1, -2),
	"ml": thousandth,
}

// MassPerPiece extracts the mass of one piece, in kg, from a description.
func MassPerPiece(description string) (decimal.Decimal, bool) {
	return measureIn(massInName, massFactors, description)
}

// VolumePerPiece extracts the volume of one piece, in litres, from a description.
func VolumePerPiece(description string) (decimal.Decimal, bool) {
	return measureIn(volumeInName, volumeFactors, description)
}

func measureIn(rx *regexp.Regexp, factors map[string]decimal.Decimal, description string) (decimal.Decimal, bool) {
	m := rx.FindStringSubmatch(description)
	if m == nil {
		return decimal.Zero, false
	}
	val, err := decimal.NewFromString(strings.Replace(m[1], ",", ".", 1))
	if err != nil || !val.IsPositive() {
		return decimal.Zero, false
	}
	return val.Mul(factors[strings.ToLower(m[2])]), true
}

// CleanName lowercases a description and collapses whitespace. It is the key
// used for weight overrides.
func CleanName(description string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(description)), " ")
}
