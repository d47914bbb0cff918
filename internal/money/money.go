package money

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricecore/internal/common"
)

// Scale is the number of fractional digits kept for currency subunits.
const Scale = 2

// MaxMinor bounds the magnitude of any representable amount in minor units.
const MaxMinor int64 = 9_000_000_000_000_000

var (
	maxMinorDec = decimal.NewFromInt(MaxMinor)
	hundred     = decimal.NewFromInt(100)
)

// Money represents a monetary value stored in minor units. The zero value is 0.00.
type Money struct {
	minor int64
}

// Zero is 0.00.
var Zero = Money{}

// FromMinor builds a Money from an integer count of minor units.
func FromMinor(minor int64) (Money, error) {
	if minor > MaxMinor || minor < -MaxMinor {
		return Money{}, common.NewError(common.KindInvalidAmount, "", "amount exceeds representable range", minor)
	}
	return Money{minor: minor}, nil
}

// Parse reads a decimal string such as "199.90". Inputs with more fractional digits than the
// currency scale are rejected rather than rounded.
func Parse(s string) (Money, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Money{}, common.NewError(common.KindInvalidAmount, "", "empty amount", s)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Money{}, &common.Error{Kind: common.KindInvalidAmount, Reason: "malformed amount", Value: s, Err: err}
	}
	if !d.Equal(d.Truncate(Scale)) {
		return Money{}, common.NewError(common.KindInvalidAmount, "", "too many fractional digits", s)
	}
	return fromDecimal(d.Shift(Scale))
}

// ParseNonNegative is Parse for amounts where negativity is disallowed, such as unit prices.
func ParseNonNegative(s string) (Money, error) {
	m, err := Parse(s)
	if err != nil {
		return Money{}, err
	}
	if m.minor < 0 {
		return Money{}, common.NewError(common.KindInvalidAmount, "", "amount must not be negative", s)
	}
	return m, nil
}

// MustParse is Parse that panics; intended for fixtures and constants.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// fromDecimal rounds a minor-unit decimal half away from zero and range-checks it.
func fromDecimal(minor decimal.Decimal) (Money, error) {
	rounded := minor.Round(0)
	if rounded.Abs().GreaterThan(maxMinorDec) {
		return Money{}, common.NewError(common.KindInvalidAmount, "", "amount exceeds representable range", minor.Shift(-Scale).String())
	}
	return Money{minor: rounded.IntPart()}, nil
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 { return m.minor }

// Decimal returns the amount in major units as an exact decimal.
func (m Money) Decimal() decimal.Decimal { return decimal.New(m.minor, -Scale) }

// Add returns m + o.
func (m Money) Add(o Money) (Money, error) { return FromMinor(m.minor + o.minor) }

// Sub returns m - o.
func (m Money) Sub(o Money) (Money, error) { return FromMinor(m.minor - o.minor) }

// MulInt multiplies by an integer quantity.
func (m Money) MulInt(n int64) (Money, error) {
	return fromDecimal(decimal.NewFromInt(m.minor).Mul(decimal.NewFromInt(n)))
}

// MulPercent returns m × p / 100 rounded half-up to the minor unit.
func (m Money) MulPercent(p Percent) (Money, error) {
	return fromDecimal(decimal.NewFromInt(m.minor).Mul(p.d).Div(hundred))
}

// MulFactor returns m × f rounded half-up to the minor unit.
func (m Money) MulFactor(f Factor) (Money, error) {
	return fromDecimal(decimal.NewFromInt(m.minor).Mul(f.d))
}

// Neg returns -m.
func (m Money) Neg() Money { return Money{minor: -m.minor} }

// Abs returns |m|.
func (m Money) Abs() Money {
	if m.minor < 0 {
		return m.Neg()
	}
	return m
}

// Cmp compares m and o, returning -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	switch {
	case m.minor < o.minor:
		return -1
	case m.minor > o.minor:
		return 1
	default:
		return 0
	}
}

// Sign returns -1, 0 or +1.
func (m Money) Sign() int { return m.Cmp(Zero) }

// IsZero reports whether m is 0.00.
func (m Money) IsZero() bool { return m.minor == 0 }

// IsNegative reports whether m < 0.
func (m Money) IsNegative() bool { return m.minor < 0 }

// String formats the amount with exactly Scale fractional digits.
func (m Money) String() string {
	v := m.minor
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a JSON string to keep it away from binary floats.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts a JSON string or a bare JSON number literal; the literal text is
// parsed as a decimal, never through float64. null is rejected rather than read as 0.00.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		return common.NewError(common.KindInvalidAmount, "", "amount is null", nil)
	}
	raw = bytes.Trim(raw, `"`)
	parsed, err := Parse(string(raw))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Sum adds all values.
func Sum(values ...Money) (Money, error) {
	total := Zero
	for _, v := range values {
		next, err := total.Add(v)
		if err != nil {
			return Money{}, err
		}
		total = next
	}
	return total, nil
}
