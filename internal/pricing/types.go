package pricing

import (
	"time"

	"github.com/noah-isme/pricecore/internal/discount"
	"github.com/noah-isme/pricecore/internal/money"
	"github.com/noah-isme/pricecore/internal/rates"
)

// LineItem describes a priced catalog entry. It is owned by the request that created it.
type LineItem struct {
	ID                 string         `json:"id" validate:"required"`
	Name               string         `json:"name"`
	UnitPrice          money.Money    `json:"unit_price" validate:"gte=0"`
	Quantity           int64          `json:"quantity" validate:"min=1"`
	Category           rates.Category `json:"category" validate:"required,category"`
	DiscountPercentage money.Percent  `json:"discount_percentage" validate:"percent"`
}

// Request is the input to Engine.Calculate.
type Request struct {
	Items    []LineItem       `json:"items" validate:"unique=ID,dive"`
	AsOf     time.Time        `json:"as_of" validate:"required"`
	Region   rates.RegionCode `json:"region" validate:"required,region"`
	Currency string           `json:"currency,omitempty" validate:"omitempty,iso4217"`
	// Interstate selects IGST instead of CGST+SGST in GST regions.
	Interstate bool                `json:"interstate,omitempty"`
	Modifiers  []discount.Modifier `json:"-"`
}

// TaxComponent is one authority's share of a tax amount.
type TaxComponent struct {
	Name   string        `json:"name"`
	Rate   money.Percent `json:"rate"`
	Amount money.Money   `json:"amount"`
}

// ItemBreakdown is the itemised result for one line.
type ItemBreakdown struct {
	ItemID     string         `json:"item_id"`
	Name       string         `json:"name,omitempty"`
	Category   rates.Category `json:"category"`
	Quantity   int64          `json:"quantity"`
	UnitPrice  money.Money    `json:"unit_price"`
	Base       money.Money    `json:"base"`
	Discount   money.Money    `json:"discount"`
	Taxable    money.Money    `json:"taxable"`
	TaxRuleID  string         `json:"tax_rule_id"`
	TaxRate    money.Percent  `json:"tax_rate"`
	Tax        money.Money    `json:"tax"`
	Components []TaxComponent `json:"components,omitempty"`
	Total      money.Money    `json:"total"`
}

// Breakdown is the complete result of one calculation. It is built once and only read after.
type Breakdown struct {
	Currency    string                 `json:"currency"`
	Region      rates.RegionCode       `json:"region"`
	AsOf        string                 `json:"as_of"`
	RuleVersion string                 `json:"rule_version"`
	Subtotal    money.Money            `json:"subtotal"`
	Discounts   money.Money            `json:"discounts"`
	Tax         money.Money            `json:"tax"`
	Total       money.Money            `json:"total"`
	PerItem     []ItemBreakdown        `json:"per_item"`
	Applied     []discount.Application `json:"applied_modifiers,omitempty"`
	TaxSummary  []TaxComponent         `json:"tax_summary,omitempty"`
}
