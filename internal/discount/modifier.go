package discount

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/money"
)

// Kind tags the modifier variant.
type Kind string

const (
	KindLine           Kind = "line"
	KindSeasonal       Kind = "seasonal"
	KindFlashSale      Kind = "flash_sale"
	KindRepeatCustomer Kind = "repeat_customer"
)

// precedence is the fixed application order. Lower runs first.
var precedence = map[Kind]int{
	KindSeasonal:       0,
	KindFlashSale:      1,
	KindRepeatCustomer: 2,
}

// Modifier is one of Seasonal, FlashSale or RepeatCustomer. Build it with the constructors so
// the variant fields are validated; modifiers decoded elsewhere must pass Validate.
type Modifier struct {
	Kind    Kind
	Code    string
	Factor  money.Factor
	Percent money.Percent
	// FlashSale only. ValidFrom and ValidTo are inclusive calendar days.
	ItemIDs   []string
	ValidFrom time.Time
	ValidTo   time.Time
}

// Seasonal scales the whole subtotal by factor; a factor above 1 is a surcharge.
func Seasonal(code, factor string) (Modifier, error) {
	f, err := money.ParseFactor(factor)
	if err != nil {
		return Modifier{}, invalid(code, "factor", factor, err)
	}
	return Modifier{Kind: KindSeasonal, Code: code, Factor: f}, nil
}

// FlashSale discounts the listed items by percent while the as-of date is within [from, to].
func FlashSale(code, percent string, itemIDs []string, from, to time.Time) (Modifier, error) {
	p, err := money.ParsePercent(percent)
	if err != nil {
		return Modifier{}, invalid(code, "percent", percent, err)
	}
	m := Modifier{Kind: KindFlashSale, Code: code, Percent: p, ItemIDs: append([]string(nil), itemIDs...), ValidFrom: from, ValidTo: to}
	if err := m.Validate(); err != nil {
		return Modifier{}, err
	}
	return m, nil
}

// RepeatCustomer discounts whatever remains after the other modifiers by percent.
func RepeatCustomer(code, percent string) (Modifier, error) {
	p, err := money.ParsePercent(percent)
	if err != nil {
		return Modifier{}, invalid(code, "percent", percent, err)
	}
	return Modifier{Kind: KindRepeatCustomer, Code: code, Percent: p}, nil
}

// Validate checks the variant-specific fields.
func (m Modifier) Validate() error {
	switch m.Kind {
	case KindSeasonal:
		if !m.Factor.Decimal().IsPositive() {
			return invalid(m.Code, "factor", m.Factor.String(), errors.New("factor must be positive"))
		}
	case KindFlashSale:
		if err := checkPercent(m); err != nil {
			return err
		}
		if m.ValidFrom.IsZero() || m.ValidTo.IsZero() {
			return invalid(m.Code, "validity_window", nil, errors.New("window start and end are required"))
		}
		if day(m.ValidTo).Before(day(m.ValidFrom)) {
			return invalid(m.Code, "validity_window", m.ValidTo.Format("2006-01-02"), errors.New("window ends before it starts"))
		}
	case KindRepeatCustomer:
		if err := checkPercent(m); err != nil {
			return err
		}
	default:
		return invalid(m.Code, "kind", string(m.Kind), errors.New("unknown modifier kind"))
	}
	return nil
}

func checkPercent(m Modifier) error {
	d := m.Percent.Decimal()
	if d.IsNegative() || d.GreaterThan(money.MustPercent("100").Decimal()) {
		return invalid(m.Code, "percent", d.String(), errors.New("percentage must be within [0, 100]"))
	}
	return nil
}

func invalid(code, field string, value any, err error) error {
	name := "modifier"
	if c := strings.TrimSpace(code); c != "" {
		name = "modifier[" + c + "]"
	}
	return &common.Error{Kind: common.KindInvalidModifier, Field: name + "." + field, Value: value, Err: err}
}

func day(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
