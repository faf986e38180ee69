// Package money implements fixed-point decimal arithmetic for monetary
// values. Amounts cross component boundaries as numeric strings with an
// explicit scale; binary floating point is never used.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultScale is the scale applied when callers pass a negative scale.
const DefaultScale = 2

// sumGuardDigits is the extra precision carried while accumulating a sum,
// so rounding error does not compound across many additions.
const sumGuardDigits = 4

var (
	// ErrInvalidAmount is returned when an input string is not a decimal number.
	ErrInvalidAmount = errors.New("money: invalid amount")
	// ErrDivisionByZero is returned when dividing by a zero-valued divisor.
	ErrDivisionByZero = errors.New("money: division by zero")
)

func parse(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, v)
	}
	return d, nil
}

func normalizeScale(scale int32) int32 {
	if scale < 0 {
		return DefaultScale
	}
	return scale
}

func parsePair(a, b string) (decimal.Decimal, decimal.Decimal, error) {
	da, err := parse(a)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	db, err := parse(b)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return da, db, nil
}

// Zero returns the zero amount formatted at the given scale.
func Zero(scale int32) string {
	return decimal.Zero.StringFixed(normalizeScale(scale))
}

// Add returns a+b rounded half-up at the given scale.
func Add(a, b string, scale int32) (string, error) {
	da, db, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	s := normalizeScale(scale)
	return da.Add(db).Round(s).StringFixed(s), nil
}

// Sub returns a-b rounded half-up at the given scale.
func Sub(a, b string, scale int32) (string, error) {
	da, db, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	return da.Sub(db).Round(normalizeScale(scale)).StringFixed(normalizeScale(scale)), nil
}

// Mul returns a*b rounded half-up at the given scale.
func Mul(a, b string, scale int32) (string, error) {
	da, db, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	return da.Mul(db).Round(normalizeScale(scale)).StringFixed(normalizeScale(scale)), nil
}

// Div returns a/b rounded half-up at the given scale. A zero divisor fails
// with ErrDivisionByZero.
func Div(a, b string, scale int32) (string, error) {
	da, db, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	if db.IsZero() {
		return "", ErrDivisionByZero
	}
	s := normalizeScale(scale)
	return da.DivRound(db, s).StringFixed(s), nil
}

// Cmp compares a and b, returning -1, 0 or 1.
func Cmp(a, b string) (int, error) {
	da, db, err := parsePair(a, b)
	if err != nil {
		return 0, err
	}
	return da.Cmp(db), nil
}

// Equal reports whether a and b represent the same value.
func Equal(a, b string) (bool, error) {
	c, err := Cmp(a, b)
	return c == 0, err
}

// GreaterThan reports whether a > b.
func GreaterThan(a, b string) (bool, error) {
	c, err := Cmp(a, b)
	return c > 0, err
}

// LessThan reports whether a < b.
func LessThan(a, b string) (bool, error) {
	c, err := Cmp(a, b)
	return c < 0, err
}

// Percent returns v*pct/100 rounded half-up at the given scale.
func Percent(v, pct string, scale int32) (string, error) {
	dv, dp, err := parsePair(v, pct)
	if err != nil {
		return "", err
	}
	s := normalizeScale(scale)
	return dv.Mul(dp).DivRound(decimal.NewFromInt(100), s).StringFixed(s), nil
}

// Round rounds v half-up at the given scale.
func Round(v string, scale int32) (string, error) {
	d, err := parse(v)
	if err != nil {
		return "", err
	}
	s := normalizeScale(scale)
	return d.Round(s).StringFixed(s), nil
}

// Sum adds all values, accumulating with four extra digits of precision and
// rounding half-up once at the end.
func Sum(values []string, scale int32) (string, error) {
	s := normalizeScale(scale)
	acc := decimal.Zero
	for _, v := range values {
		d, err := parse(v)
		if err != nil {
			return "", err
		}
		acc = acc.Add(d).Round(s + sumGuardDigits)
	}
	return acc.Round(s).StringFixed(s), nil
}

// ToCents converts an amount to integer subunits at scale 2.
func ToCents(v string) (int64, error) {
	d, err := parse(v)
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// FromCents converts integer subunits back to an amount string at scale 2.
func FromCents(c int64) string {
	return decimal.NewFromInt(c).Shift(-2).StringFixed(2)
}
