package http

import (
	"errors"

	"github.com/shopspring/decimal"
)

var errFractionalMinorUnit = errors.New("amount has more precision than the currency allows")

// toMinor converts a major-unit decimal string ("150.75") to integer minor
// units. Decimal arithmetic end to end; a float never touches an amount.
func toMinor(s string, exponent int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	shifted := d.Shift(exponent)
	if !shifted.IsInteger() {
		return 0, errFractionalMinorUnit
	}
	return shifted.IntPart(), nil
}

// fromMinor formats integer minor units as a major-unit string with the full
// currency precision ("15075" -> "150.75").
func fromMinor(v int64, exponent int32) string {
	return decimal.New(v, -exponent).StringFixed(exponent)
}
