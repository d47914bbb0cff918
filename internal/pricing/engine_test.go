package pricing

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/discount"
	"github.com/noah-isme/pricecore/internal/money"
	"github.com/noah-isme/pricecore/internal/rates"
)

var asOf = time.Date(2024, 10, 20, 0, 0, 0, 0, time.UTC)

func ruleFor(id string, c rates.Category, region, rate string, from string, to string) rates.TaxRule {
	r := rates.TaxRule{ID: id, Category: c, Region: rates.RegionCode(region), RatePercent: money.MustPercent(rate)}
	r.EffectiveFrom, _ = time.Parse(rates.DateLayout, from)
	if to != "" {
		end, _ := time.Parse(rates.DateLayout, to)
		r.EffectiveTo = &end
	}
	return r
}

func newEngine(t *testing.T, rules ...rates.TaxRule) *Engine {
	t.Helper()
	if len(rules) == 0 {
		rules = []rates.TaxRule{
			ruleFor("in-standard", rates.CategoryStandard, "IN", "18", "2017-07-01", ""),
			ruleFor("in-essential", rates.CategoryEssential, "IN", "5", "2017-07-01", ""),
			ruleFor("in-exempt", rates.CategoryExempt, "IN", "0", "2017-07-01", ""),
			ruleFor("gb-standard", rates.CategoryStandard, "GB", "20", "2011-01-04", ""),
		}
	}
	table, err := rates.NewTable("test", rules)
	require.NoError(t, err)
	engine, err := NewEngine(EngineDeps{Resolver: rates.NewResolver(table)})
	require.NoError(t, err)
	return engine
}

func item(id, price string, qty int64, c rates.Category) LineItem {
	return LineItem{ID: id, Name: id, UnitPrice: money.MustParse(price), Quantity: qty, Category: c}
}

func TestSingleItemNoDiscounts(t *testing.T) {
	engine := newEngine(t)

	b, err := engine.Calculate(Request{
		Items:  []LineItem{item("tour", "100.00", 2, rates.CategoryStandard)},
		AsOf:   asOf,
		Region: "IN",
	})
	require.NoError(t, err)
	require.Equal(t, "200.00", b.Subtotal.String())
	require.Equal(t, "0.00", b.Discounts.String())
	require.Equal(t, "36.00", b.Tax.String())
	require.Equal(t, "236.00", b.Total.String())
	require.Equal(t, "INR", b.Currency)
	require.Equal(t, "2024-10-20", b.AsOf)
	require.Equal(t, "test", b.RuleVersion)
	require.Equal(t, "in-standard", b.PerItem[0].TaxRuleID)
}

func TestFlashSaleAppliedBeforeTax(t *testing.T) {
	engine := newEngine(t)
	flash, err := discount.FlashSale("FLASH10", "10", []string{"tour"}, asOf, asOf)
	require.NoError(t, err)

	b, err := engine.Calculate(Request{
		Items:     []LineItem{item("tour", "100.00", 2, rates.CategoryStandard)},
		AsOf:      asOf,
		Region:    "IN",
		Modifiers: []discount.Modifier{flash},
	})
	require.NoError(t, err)
	require.Equal(t, "20.00", b.Discounts.String())
	require.Equal(t, "180.00", b.PerItem[0].Taxable.String())
	require.Equal(t, "32.40", b.Tax.String())
	require.Equal(t, "212.40", b.Total.String())
}

func TestMixedCategoriesTaxedIndependently(t *testing.T) {
	engine := newEngine(t)

	b, err := engine.Calculate(Request{
		Items: []LineItem{
			item("hotel", "1000.00", 1, rates.CategoryStandard),
			item("meal", "200.00", 2, rates.CategoryEssential),
		},
		AsOf:   asOf,
		Region: "IN",
	})
	require.NoError(t, err)
	require.Equal(t, "180.00", b.PerItem[0].Tax.String())
	require.Equal(t, "20.00", b.PerItem[1].Tax.String())
	require.Equal(t, "1400.00", b.Subtotal.String())
	require.Equal(t, "200.00", b.Tax.String())
	require.Equal(t, "1600.00", b.Total.String())

	require.Equal(t, []string{"CGST 2.5 10.00", "CGST 9 90.00", "SGST 2.5 10.00", "SGST 9 90.00"}, summary(b.TaxSummary))
}

func TestExpiredFlashSaleIsAudited(t *testing.T) {
	engine := newEngine(t)
	yesterday := asOf.AddDate(0, 0, -1)
	flash, err := discount.FlashSale("OLD", "10", []string{"tour"}, yesterday.AddDate(0, 0, -3), yesterday)
	require.NoError(t, err)

	b, err := engine.Calculate(Request{
		Items:     []LineItem{item("tour", "100.00", 2, rates.CategoryStandard)},
		AsOf:      asOf,
		Region:    "IN",
		Modifiers: []discount.Modifier{flash},
	})
	require.NoError(t, err)
	require.Equal(t, "0.00", b.Discounts.String())
	require.Equal(t, "236.00", b.Total.String())
	require.Len(t, b.Applied, 1)
	require.Equal(t, discount.StatusSkippedExpired, b.Applied[0].Status)
	require.Equal(t, "expired, not applied", b.Applied[0].Note)
}

func TestOverlappingRulesAreAmbiguous(t *testing.T) {
	engine := newEngine(t,
		ruleFor("med-2017", rates.CategoryMedical, "IN", "12", "2017-07-01", ""),
		ruleFor("med-2024", rates.CategoryMedical, "IN", "5", "2024-01-01", ""),
	)

	b, err := engine.Calculate(Request{
		Items:  []LineItem{item("kit", "50.00", 1, rates.CategoryMedical)},
		AsOf:   asOf,
		Region: "IN",
	})
	require.ErrorIs(t, err, common.ErrAmbiguousRate)
	require.Equal(t, Breakdown{}, b)
}

func TestEmptyLineItems(t *testing.T) {
	engine := newEngine(t)
	b, err := engine.Calculate(Request{AsOf: asOf, Region: "IN"})
	require.ErrorIs(t, err, common.ErrEmptyLineItems)
	require.Equal(t, Breakdown{}, b)

	// Checked before anything else, even when the rest of the request is malformed.
	_, err = engine.Calculate(Request{})
	require.ErrorIs(t, err, common.ErrEmptyLineItems)
}

func TestValidationFailures(t *testing.T) {
	engine := newEngine(t)
	cases := map[string]struct {
		req   Request
		field string
	}{
		"zero quantity": {
			req:   Request{Items: []LineItem{item("a", "1.00", 0, rates.CategoryStandard)}, AsOf: asOf, Region: "IN"},
			field: "items[0].quantity",
		},
		"negative price": {
			req:   Request{Items: []LineItem{item("a", "-1.00", 1, rates.CategoryStandard)}, AsOf: asOf, Region: "IN"},
			field: "items[0].unit_price",
		},
		"unknown region": {
			req:   Request{Items: []LineItem{item("a", "1.00", 1, rates.CategoryStandard)}, AsOf: asOf, Region: "XX"},
			field: "region",
		},
		"missing as-of": {
			req:   Request{Items: []LineItem{item("a", "1.00", 1, rates.CategoryStandard)}, Region: "IN"},
			field: "as_of",
		},
		"unknown category": {
			req:   Request{Items: []LineItem{item("a", "1.00", 1, "groceries")}, AsOf: asOf, Region: "IN"},
			field: "items[0].category",
		},
		"duplicate ids": {
			req:   Request{Items: []LineItem{item("a", "1.00", 1, rates.CategoryStandard), item("a", "2.00", 1, rates.CategoryStandard)}, AsOf: asOf, Region: "IN"},
			field: "items",
		},
		"currency mismatch": {
			req:   Request{Items: []LineItem{item("a", "1.00", 1, rates.CategoryStandard)}, AsOf: asOf, Region: "IN", Currency: "USD"},
			field: "currency",
		},
		"bogus currency": {
			req:   Request{Items: []LineItem{item("a", "1.00", 1, rates.CategoryStandard)}, AsOf: asOf, Region: "IN", Currency: "ZZZ"},
			field: "currency",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Calculate(tc.req)
			require.ErrorIs(t, err, common.ErrValidationFailed)
			var perr *common.Error
			require.ErrorAs(t, err, &perr)
			require.Equal(t, tc.field, perr.Field)
		})
	}
}

func TestInvalidModifierPropagates(t *testing.T) {
	engine := newEngine(t)
	_, err := engine.Calculate(Request{
		Items:     []LineItem{item("a", "1.00", 1, rates.CategoryStandard)},
		AsOf:      asOf,
		Region:    "IN",
		Modifiers: []discount.Modifier{{Kind: discount.KindFlashSale, Percent: money.MustPercent("10"), ValidFrom: asOf, ValidTo: asOf.AddDate(0, 0, -2)}},
	})
	require.ErrorIs(t, err, common.ErrInvalidModifier)
}

func TestNoApplicableRatePropagates(t *testing.T) {
	engine := newEngine(t)
	_, err := engine.Calculate(Request{
		Items:  []LineItem{item("a", "1.00", 1, rates.CategoryLuxury)},
		AsOf:   asOf,
		Region: "IN",
	})
	require.ErrorIs(t, err, common.ErrNoApplicableRate)
}

func TestInterstateAndVATComponents(t *testing.T) {
	engine := newEngine(t)

	b, err := engine.Calculate(Request{
		Items:      []LineItem{item("a", "0.28", 1, rates.CategoryStandard)},
		AsOf:       asOf,
		Region:     "IN",
		Interstate: true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"IGST 18 0.05"}, summary(b.TaxSummary))

	b, err = engine.Calculate(Request{Items: []LineItem{item("a", "0.28", 1, rates.CategoryStandard)}, AsOf: asOf, Region: "IN"})
	require.NoError(t, err)
	require.Equal(t, []string{"CGST 9 0.03", "SGST 9 0.02"}, summary(b.TaxSummary))

	b, err = engine.Calculate(Request{Items: []LineItem{item("a", "10.00", 3, rates.CategoryStandard)}, AsOf: asOf, Region: "gb", Currency: "GBP"})
	require.NoError(t, err)
	require.Equal(t, "GBP", b.Currency)
	require.Equal(t, []string{"VAT 20 6.00"}, summary(b.TaxSummary))
}

func TestIdempotentAndSumInvariant(t *testing.T) {
	engine := newEngine(t)
	rng := rand.New(rand.NewSource(42))
	categories := []rates.Category{rates.CategoryStandard, rates.CategoryEssential, rates.CategoryExempt}

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(5)
		items := make([]LineItem, n)
		ids := make([]string, 0, n)
		for i := range items {
			id := fmt.Sprintf("item-%d", i)
			price, err := money.FromMinor(rng.Int63n(500_000))
			require.NoError(t, err)
			items[i] = LineItem{
				ID:                 id,
				UnitPrice:          price,
				Quantity:           1 + rng.Int63n(9),
				Category:           categories[rng.Intn(len(categories))],
				DiscountPercentage: money.MustPercent(fmt.Sprintf("%d", rng.Intn(3)*5)),
			}
			if rng.Intn(2) == 0 {
				ids = append(ids, id)
			}
		}
		seasonal, err := discount.Seasonal("S", fmt.Sprintf("0.%d", 75+rng.Intn(25)))
		require.NoError(t, err)
		flash, err := discount.FlashSale("F", fmt.Sprintf("%d.5", rng.Intn(40)), ids, asOf, asOf)
		require.NoError(t, err)
		repeat, err := discount.RepeatCustomer("R", fmt.Sprintf("%d", rng.Intn(15)))
		require.NoError(t, err)
		req := Request{Items: items, AsOf: asOf, Region: "IN", Modifiers: []discount.Modifier{repeat, flash, seasonal}}

		first, err := engine.Calculate(req)
		require.NoError(t, err)
		second, err := engine.Calculate(req)
		require.NoError(t, err)
		require.Equal(t, first, second)

		var total, applied money.Money
		for _, it := range first.PerItem {
			total, err = total.Add(it.Total)
			require.NoError(t, err)
			expect, err := it.Taxable.Add(it.Tax)
			require.NoError(t, err)
			require.Equal(t, expect, it.Total)
		}
		require.Equal(t, first.Total, total)
		for _, app := range first.Applied {
			applied, err = applied.Add(app.Amount)
			require.NoError(t, err)
		}
		require.Equal(t, first.Discounts, applied)

		reparsed, err := money.Parse(first.Total.String())
		require.NoError(t, err)
		require.Equal(t, first.Total, reparsed)
	}
}

func summary(components []TaxComponent) []string {
	out := make([]string, len(components))
	for i, c := range components {
		out[i] = fmt.Sprintf("%s %s %s", c.Name, c.Rate, c.Amount)
	}
	return out
}
