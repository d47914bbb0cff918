package rates

import (
	"strings"
)

// Category classifies goods and services for tax purposes.
type Category string

const (
	CategoryStandard  Category = "standard"
	CategoryReduced   Category = "reduced"
	CategoryEssential Category = "essential"
	CategoryMedical   Category = "medical"
	CategoryLuxury    Category = "luxury"
	CategoryServices  Category = "services"
	CategoryExempt    Category = "exempt"
)

var knownCategories = map[Category]struct{}{
	CategoryStandard:  {},
	CategoryReduced:   {},
	CategoryEssential: {},
	CategoryMedical:   {},
	CategoryLuxury:    {},
	CategoryServices:  {},
	CategoryExempt:    {},
}

// ParseCategory normalises and validates a category name.
func ParseCategory(value string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	_, ok := knownCategories[c]
	return c, ok
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := knownCategories[c]
	return ok
}

// Regime is the tax system a region levies.
type Regime string

const (
	RegimeGST      Regime = "GST"
	RegimeVAT      Regime = "VAT"
	RegimeSalesTax Regime = "SALES_TAX"
)

// RegionCode is an ISO 3166-1 alpha-2 country code.
type RegionCode string

// Region describes the currency and tax regime of a supported region.
type Region struct {
	Code     RegionCode
	Currency string
	Regime   Regime
	// DualGST regions split intrastate GST into central and state halves.
	DualGST bool
}

var regions = map[RegionCode]Region{
	"IN": {Code: "IN", Currency: "INR", Regime: RegimeGST, DualGST: true},
	"SG": {Code: "SG", Currency: "SGD", Regime: RegimeGST},
	"GB": {Code: "GB", Currency: "GBP", Regime: RegimeVAT},
	"AE": {Code: "AE", Currency: "AED", Regime: RegimeVAT},
	"US": {Code: "US", Currency: "USD", Regime: RegimeSalesTax},
}

// NormalizeRegion upper-cases and trims a region code.
func NormalizeRegion(value string) RegionCode {
	return RegionCode(strings.ToUpper(strings.TrimSpace(value)))
}

// LookupRegion returns the region definition for code.
func LookupRegion(code RegionCode) (Region, bool) {
	r, ok := regions[NormalizeRegion(string(code))]
	return r, ok
}

// KnownRegion reports whether the code is supported.
func KnownRegion(code string) bool {
	_, ok := regions[NormalizeRegion(code)]
	return ok
}
