// Package money provides a fixed-point monetary amount stored as an integer
// number of minor units (cents). All arithmetic is exact integer arithmetic;
// decimal conversion only happens at the edges (parsing, display, encoding).
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by a Money value.
const Scale = 2

// Tolerance is the largest amount treated as zero when comparing balances.
// Unequal split entry upstream can leave a residue of one minor unit; an
// absolute difference at or below Tolerance counts as settled.
const Tolerance Money = 1

// ErrInvalidAmount is returned when a value cannot be represented as Money.
var ErrInvalidAmount = errors.New("invalid amount")

// maxFloat is the largest float64 magnitude whose cent value fits in an int64.
const maxFloat = float64(math.MaxInt64/100) - 1

// Money is an amount in minor units. The zero value is 0.00.
type Money int64

// FromCents returns the Money value for a number of minor units.
func FromCents(cents int64) Money {
	return Money(cents)
}

// FromFloat converts a float amount, rounding half away from zero to cents.
// NaN, infinities and values outside the int64 cent range fail with
// ErrInvalidAmount.
func FromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, f)
	}
	if math.Abs(f) > maxFloat {
		return 0, fmt.Errorf("%w: %v out of range", ErrInvalidAmount, f)
	}
	return fromDecimal(decimal.NewFromFloat(f))
}

// Parse reads a decimal string such as "12.5" or "-0.01".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return fromDecimal(d)
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(Scale).Shift(Scale)
	if !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return Money(cents.IntPart()), nil
}

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

// Cents returns the amount in minor units.
func (m Money) Cents() int64 { return int64(m) }

func (m Money) Add(o Money) Money { return m + o }

func (m Money) Sub(o Money) Money { return m - o }

func (m Money) Neg() Money { return -m }

// Abs returns the absolute value of m.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Cmp returns -1, 0 or +1 depending on whether m is less than, equal to or
// greater than o.
func (m Money) Cmp(o Money) int {
	switch {
	case m < o:
		return -1
	case m > o:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool { return m == 0 }

func (m Money) IsNegative() bool { return m < 0 }

// Negligible reports whether m is within Tolerance of zero.
func (m Money) Negligible() bool {
	return m.Abs() <= Tolerance
}

// ApproxEqual reports whether a and b differ by at most Tolerance.
func ApproxEqual(a, b Money) bool {
	return a.Sub(b).Negligible()
}

// RoundTo rounds m to the given number of fractional digits, half away from
// zero. Rounding to Scale or more digits returns m unchanged.
func (m Money) RoundTo(places int) Money {
	if places >= Scale {
		return m
	}
	if places < -15 {
		return 0
	}
	unit := int64(1)
	for i := places; i < Scale; i++ {
		unit *= 10
	}
	c := int64(m)
	q, r := c/unit, c%unit
	if r < 0 {
		r = -r
	}
	if r*2 >= unit {
		if c < 0 {
			q--
		} else {
			q++
		}
	}
	return Money(q * unit)
}

// Decimal returns m as a decimal with Scale fractional digits.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -Scale)
}

// Float64 returns an approximate float representation for display only.
func (m Money) Float64() float64 {
	return m.Decimal().InexactFloat64()
}

// String renders m with exactly Scale fractional digits, e.g. "-12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(Scale)
}

// MarshalJSON encodes m as a decimal string to avoid float round-trips.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*m = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("%w: malformed string %s", ErrInvalidAmount, s)
		}
		s = unquoted
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value stores m as INTEGER cents.
func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

// Scan reads INTEGER cents.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*m = Money(v)
	case nil:
		*m = 0
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidAmount, src)
	}
	return nil
}
