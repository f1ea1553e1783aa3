package invoice

import "encoding/json"

// UnitKind enumerates the units the engine reasons about.
type UnitKind int

const (
	UnitOther UnitKind = iota
	UnitPiece
	UnitKilogram
	UnitLitre
)

// Unit is a closed unit type. Unrecognized units are carried as Other with
// the original text preserved in Raw.
type Unit struct {
	Kind UnitKind
	Raw  string
}

// Piece returns the piece unit.
func Piece() Unit { return Unit{Kind: UnitPiece} }

// Kilogram returns the kilogram unit.
func Kilogram() Unit { return Unit{Kind: UnitKilogram} }

// Litre returns the litre unit.
func Litre() Unit { return Unit{Kind: UnitLitre} }

// Other wraps an unrecognized unit string.
func Other(raw string) Unit { return Unit{Kind: UnitOther, Raw: raw} }

// IsMeasure reports whether prices per base unit make sense (kg or L).
func (u Unit) IsMeasure() bool {
	return u.Kind == UnitKilogram || u.Kind == UnitLitre
}

func (u Unit) String() string {
	switch u.Kind {
	case UnitPiece:
		return "piece"
	case UnitKilogram:
		return "kg"
	case UnitLitre:
		return "L"
	default:
		return u.Raw
	}
}

// ParseUnitName is the inverse of Unit.String.
func ParseUnitName(s string) Unit {
	switch s {
	case "piece":
		return Piece()
	case "kg":
		return Kilogram()
	case "L":
		return Litre()
	default:
		return Other(s)
	}
}

// MarshalJSON encodes the unit as its display name.
func (u Unit) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON decodes a display name produced by MarshalJSON.
func (u *Unit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*u = ParseUnitName(s)
	return nil
}
