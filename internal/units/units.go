// Package units converts between the three nested count scales of a
// medicine. All stock and sale quantities are stored in smallest units
// (tablets); strips and boxes exist only at the edges.
package units

import "dawakhana/backend/internal/domain"

// Breakdown is a smallest-unit quantity re-expressed as whole boxes,
// whole strips, and leftover tablets.
type Breakdown struct {
	Boxes   int64 `json:"boxes"`
	Strips  int64 `json:"strips"`
	Tablets int64 `json:"tablets"`
}

// PerStrip returns the medicine's tablets-per-strip factor, treating an
// unset (zero or negative) factor as 1 so unit math never divides by zero.
func PerStrip(m domain.Medicine) int64 {
	if m.TabletsPerStrip < 1 {
		return 1
	}
	return m.TabletsPerStrip
}

// PerBox returns the medicine's strips-per-box factor with the same
// unset-means-1 rule as PerStrip.
func PerBox(m domain.Medicine) int64 {
	if m.StripsPerBox < 1 {
		return 1
	}
	return m.StripsPerBox
}

// ToSmallestUnits converts a quantity expressed at the given unit level
// into smallest units. Unknown unit levels and non-positive quantities
// report ok=false.
func ToSmallestUnits(m domain.Medicine, quantity int64, unit domain.UnitLevel) (int64, bool) {
	if quantity < 1 {
		return 0, false
	}
	switch unit {
	case domain.UnitTablet:
		return quantity, true
	case domain.UnitStrip:
		return quantity * PerStrip(m), true
	case domain.UnitBox:
		return quantity * PerStrip(m) * PerBox(m), true
	default:
		return 0, false
	}
}

// FromSmallestUnits decomposes a smallest-unit quantity into whole boxes,
// whole strips, and remaining tablets for display.
func FromSmallestUnits(m domain.Medicine, quantity int64) Breakdown {
	if quantity < 0 {
		quantity = 0
	}
	perStrip := PerStrip(m)
	perBox := perStrip * PerBox(m)
	b := Breakdown{}
	b.Boxes = quantity / perBox
	quantity -= b.Boxes * perBox
	b.Strips = quantity / perStrip
	b.Tablets = quantity - b.Strips*perStrip
	return b
}

// Recompose is the inverse of FromSmallestUnits.
func Recompose(m domain.Medicine, b Breakdown) int64 {
	perStrip := PerStrip(m)
	return b.Boxes*perStrip*PerBox(m) + b.Strips*perStrip + b.Tablets
}
