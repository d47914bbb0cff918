package money

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricecore/internal/common"
)

// PercentScale is the number of fractional digits a percentage may carry (e.g. 12.3456%).
const PercentScale = 4

var maxFactor = decimal.NewFromInt(10)

// Percent is a percentage in [0, 100].
type Percent struct {
	d decimal.Decimal
}

// ParsePercent reads a percentage such as "18" or "2.5".
func ParsePercent(s string) (Percent, error) {
	d, err := parseScaled(s, PercentScale)
	if err != nil {
		return Percent{}, err
	}
	return NewPercent(d)
}

// NewPercent validates an exact decimal percentage.
func NewPercent(d decimal.Decimal) (Percent, error) {
	if d.IsNegative() || d.GreaterThan(hundred) {
		return Percent{}, common.NewError(common.KindInvalidAmount, "", "percentage must be within [0, 100]", d.String())
	}
	if !d.Equal(d.Truncate(PercentScale)) {
		return Percent{}, common.NewError(common.KindInvalidAmount, "", "too many fractional digits", d.String())
	}
	return Percent{d: d}, nil
}

// MustPercent is ParsePercent that panics.
func MustPercent(s string) Percent {
	p, err := ParsePercent(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Decimal returns the exact percentage value.
func (p Percent) Decimal() decimal.Decimal { return p.d }

// Fraction returns p / 100.
func (p Percent) Fraction() decimal.Decimal { return p.d.Div(hundred) }

// IsZero reports whether p is 0%.
func (p Percent) IsZero() bool { return p.d.IsZero() }

// Equal compares two percentages by value.
func (p Percent) Equal(o Percent) bool { return p.d.Equal(o.d) }

// Half returns p / 2, used when a tax rate is split between two authorities.
func (p Percent) Half() Percent {
	// Round-trip through the string form so the result compares equal to a parsed percentage.
	half, _ := decimal.NewFromString(p.d.Div(decimal.NewFromInt(2)).Truncate(PercentScale + 1).String())
	return Percent{d: half}
}

func (p Percent) String() string { return p.d.String() }

// MarshalJSON encodes the percentage as a JSON string.
func (p Percent) MarshalJSON() ([]byte, error) { return []byte(`"` + p.String() + `"`), nil }

// UnmarshalJSON accepts a JSON string or number literal.
func (p *Percent) UnmarshalJSON(data []byte) error {
	raw := bytes.Trim(bytes.TrimSpace(data), `"`)
	parsed, err := ParsePercent(string(raw))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Factor is a positive multiplier, such as a seasonal 0.85 or 1.20.
type Factor struct {
	d decimal.Decimal
}

// One is the neutral factor.
var One = Factor{d: decimal.NewFromInt(1)}

// ParseFactor reads a multiplier in (0, 10].
func ParseFactor(s string) (Factor, error) {
	d, err := parseScaled(s, PercentScale)
	if err != nil {
		return Factor{}, err
	}
	if !d.IsPositive() || d.GreaterThan(maxFactor) {
		return Factor{}, common.NewError(common.KindInvalidAmount, "", "factor must be within (0, 10]", s)
	}
	return Factor{d: d}, nil
}

// MustFactor is ParseFactor that panics.
func MustFactor(s string) Factor {
	f, err := ParseFactor(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Decimal returns the exact multiplier.
func (f Factor) Decimal() decimal.Decimal { return f.d }

func (f Factor) String() string { return f.d.String() }

// MarshalJSON encodes the factor as a JSON string.
func (f Factor) MarshalJSON() ([]byte, error) { return []byte(`"` + f.String() + `"`), nil }

// UnmarshalJSON accepts a JSON string or number literal.
func (f *Factor) UnmarshalJSON(data []byte) error {
	raw := bytes.Trim(bytes.TrimSpace(data), `"`)
	parsed, err := ParseFactor(string(raw))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func parseScaled(s string, scale int32) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return decimal.Decimal{}, common.NewError(common.KindInvalidAmount, "", "empty value", s)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, &common.Error{Kind: common.KindInvalidAmount, Reason: "malformed value", Value: s, Err: err}
	}
	if !d.Equal(d.Truncate(scale)) {
		return decimal.Decimal{}, common.NewError(common.KindInvalidAmount, "", "too many fractional digits", s)
	}
	return d, nil
}
