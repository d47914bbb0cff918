package quote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/discount"
	"github.com/noah-isme/pricecore/internal/pricing"
	"github.com/noah-isme/pricecore/internal/rates"
)

// ModifierInput is the wire form of a discount modifier. Which fields apply depends on Kind.
type ModifierInput struct {
	Kind      discount.Kind `json:"kind"`
	Code      string        `json:"code,omitempty"`
	Factor    string        `json:"factor,omitempty"`
	Percent   string        `json:"percent,omitempty"`
	ItemIDs   []string      `json:"item_ids,omitempty"`
	ValidFrom string        `json:"valid_from,omitempty"`
	ValidTo   string        `json:"valid_to,omitempty"`
}

// Input is the wire form of a pricing request. Dates are YYYY-MM-DD.
type Input struct {
	Items      []pricing.LineItem `json:"items"`
	AsOf       string             `json:"as_of"`
	Region     string             `json:"region"`
	Currency   string             `json:"currency,omitempty"`
	Interstate bool               `json:"interstate,omitempty"`
	Modifiers  []ModifierInput    `json:"modifiers,omitempty"`
}

// Request converts the input into an engine request. Modifiers are built through their
// validating constructors, so a bad modifier fails here with InvalidModifier.
func (in Input) Request() (pricing.Request, error) {
	asOf, err := day("as_of", in.AsOf)
	if err != nil {
		return pricing.Request{}, err
	}
	modifiers := make([]discount.Modifier, 0, len(in.Modifiers))
	for i, mi := range in.Modifiers {
		m, err := mi.modifier(i)
		if err != nil {
			return pricing.Request{}, err
		}
		modifiers = append(modifiers, m)
	}
	return pricing.Request{
		Items:      in.Items,
		AsOf:       asOf,
		Region:     rates.RegionCode(in.Region),
		Currency:   in.Currency,
		Interstate: in.Interstate,
		Modifiers:  modifiers,
	}, nil
}

// canonical is the byte form the cache key is derived from. Region is normalised so that "in"
// and "IN" share an entry.
func (in Input) canonical() ([]byte, error) {
	in.Region = string(rates.NormalizeRegion(in.Region))
	return json.Marshal(in)
}

func (mi ModifierInput) modifier(i int) (discount.Modifier, error) {
	switch mi.Kind {
	case discount.KindSeasonal:
		return discount.Seasonal(mi.Code, mi.Factor)
	case discount.KindFlashSale:
		from, err := day(fmt.Sprintf("modifiers[%d].valid_from", i), mi.ValidFrom)
		if err != nil {
			return discount.Modifier{}, err
		}
		to, err := day(fmt.Sprintf("modifiers[%d].valid_to", i), mi.ValidTo)
		if err != nil {
			return discount.Modifier{}, err
		}
		return discount.FlashSale(mi.Code, mi.Percent, mi.ItemIDs, from, to)
	case discount.KindRepeatCustomer:
		return discount.RepeatCustomer(mi.Code, mi.Percent)
	default:
		return discount.Modifier{}, common.NewError(common.KindInvalidModifier, fmt.Sprintf("modifiers[%d].kind", i), "unknown modifier kind", string(mi.Kind))
	}
}

func day(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, common.NewError(common.KindValidationFailed, field, "required", nil)
	}
	t, err := time.Parse(rates.DateLayout, value)
	if err != nil {
		return time.Time{}, &common.Error{Kind: common.KindValidationFailed, Field: field, Reason: "expected YYYY-MM-DD", Value: value, Err: err}
	}
	return t, nil
}
