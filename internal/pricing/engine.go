package pricing

import (
	"errors"
	"sort"
	"strings"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/discount"
	"github.com/noah-isme/pricecore/internal/guard"
	"github.com/noah-isme/pricecore/internal/money"
	"github.com/noah-isme/pricecore/internal/rates"
)

// Engine assembles price breakdowns. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	resolver *rates.Resolver
	guard    *guard.Guard
}

// EngineDeps wires an Engine.
type EngineDeps struct {
	Resolver *rates.Resolver
	Guard    *guard.Guard
}

// NewEngine constructs an Engine.
func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Resolver == nil {
		return nil, errors.New("pricing engine: rate resolver is required")
	}
	if deps.Guard == nil {
		deps.Guard = guard.New()
	}
	return &Engine{resolver: deps.Resolver, guard: deps.Guard}, nil
}

// Calculate prices req against the current rule table.
func (e *Engine) Calculate(req Request) (Breakdown, error) {
	return e.CalculateWith(e.resolver.Current(), req)
}

// CalculateWith prices req against a specific table snapshot.
func (e *Engine) CalculateWith(table *rates.Table, req Request) (Breakdown, error) {
	if len(req.Items) == 0 {
		return Breakdown{}, common.NewError(common.KindEmptyLineItems, "items", "at least one line item is required", nil)
	}
	if err := e.guard.Check(&req); err != nil {
		return Breakdown{}, err
	}
	region, ok := rates.LookupRegion(req.Region)
	if !ok {
		return Breakdown{}, common.NewError(common.KindValidationFailed, "region", "unsupported region", string(req.Region))
	}
	if c := strings.ToUpper(strings.TrimSpace(req.Currency)); c != "" && c != region.Currency {
		return Breakdown{}, common.NewError(common.KindValidationFailed, "currency", "does not match region currency "+region.Currency, req.Currency)
	}

	taxRules := make([]rates.TaxRule, len(req.Items))
	for i, item := range req.Items {
		rule, err := table.Resolve(item.Category, region.Code, req.AsOf)
		if err != nil {
			return Breakdown{}, err
		}
		taxRules[i] = rule
	}

	lines := make([]discount.Line, len(req.Items))
	items := make([]ItemBreakdown, len(req.Items))
	for i, item := range req.Items {
		base, err := item.UnitPrice.MulInt(item.Quantity)
		if err != nil {
			return Breakdown{}, withField(err, "items["+item.ID+"].base")
		}
		lines[i] = discount.Line{ID: item.ID, Base: base, DiscountPercentage: item.DiscountPercentage}
		items[i] = ItemBreakdown{
			ItemID:    item.ID,
			Name:      item.Name,
			Category:  item.Category,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Base:      base,
			TaxRuleID: taxRules[i].ID,
			TaxRate:   taxRules[i].RatePercent,
		}
	}

	stack, err := discount.Apply(lines, req.Modifiers, req.AsOf)
	if err != nil {
		return Breakdown{}, err
	}

	breakdown := Breakdown{
		Currency:    region.Currency,
		Region:      region.Code,
		AsOf:        rates.Day(req.AsOf).Format(rates.DateLayout),
		RuleVersion: table.Version(),
		Applied:     stack.Applied,
	}
	for i := range items {
		if err := assembleItem(&items[i], stack.PerLine[i], region, req.Interstate); err != nil {
			return Breakdown{}, err
		}
	}
	if err := sumInto(&breakdown, items); err != nil {
		return Breakdown{}, err
	}
	breakdown.PerItem = items
	breakdown.TaxSummary = summarizeTaxes(items)
	return breakdown, nil
}

func assembleItem(item *ItemBreakdown, itemDiscount money.Money, region rates.Region, interstate bool) error {
	taxable, err := item.Base.Sub(itemDiscount)
	if err != nil {
		return err
	}
	tax, err := taxable.MulPercent(item.TaxRate)
	if err != nil {
		return err
	}
	total, err := taxable.Add(tax)
	if err != nil {
		return err
	}
	components, err := splitTax(region, interstate, item.TaxRate, tax)
	if err != nil {
		return err
	}
	item.Discount = itemDiscount
	item.Taxable = taxable
	item.Tax = tax
	item.Total = total
	item.Components = components
	return nil
}

// sumInto totals the per-item values; totals are never recomputed from rounded subtotals.
func sumInto(b *Breakdown, items []ItemBreakdown) error {
	var err error
	for _, item := range items {
		if b.Subtotal, err = b.Subtotal.Add(item.Base); err != nil {
			return err
		}
		if b.Discounts, err = b.Discounts.Add(item.Discount); err != nil {
			return err
		}
		if b.Tax, err = b.Tax.Add(item.Tax); err != nil {
			return err
		}
		if b.Total, err = b.Total.Add(item.Total); err != nil {
			return err
		}
	}
	return nil
}

// splitTax divides an item's tax between authorities. Intrastate dual GST is split into equal
// CGST and SGST halves, with the odd minor unit going to CGST.
func splitTax(region rates.Region, interstate bool, rate money.Percent, tax money.Money) ([]TaxComponent, error) {
	switch region.Regime {
	case rates.RegimeGST:
		if !region.DualGST {
			return []TaxComponent{{Name: "GST", Rate: rate, Amount: tax}}, nil
		}
		if interstate {
			return []TaxComponent{{Name: "IGST", Rate: rate, Amount: tax}}, nil
		}
		halves, err := tax.Split(2)
		if err != nil {
			return nil, err
		}
		half := rate.Half()
		return []TaxComponent{
			{Name: "CGST", Rate: half, Amount: halves[0]},
			{Name: "SGST", Rate: half, Amount: halves[1]},
		}, nil
	case rates.RegimeVAT:
		return []TaxComponent{{Name: "VAT", Rate: rate, Amount: tax}}, nil
	default:
		return []TaxComponent{{Name: string(region.Regime), Rate: rate, Amount: tax}}, nil
	}
}

func summarizeTaxes(items []ItemBreakdown) []TaxComponent {
	type key struct{ name, rate string }
	index := make(map[key]int)
	var summary []TaxComponent
	for _, item := range items {
		for _, c := range item.Components {
			k := key{name: c.Name, rate: c.Rate.String()}
			if idx, ok := index[k]; ok {
				// Bounded by the breakdown total, which already passed the range check.
				summary[idx].Amount, _ = summary[idx].Amount.Add(c.Amount)
				continue
			}
			index[k] = len(summary)
			summary = append(summary, c)
		}
	}
	sort.SliceStable(summary, func(i, j int) bool {
		if summary[i].Name == summary[j].Name {
			return summary[i].Rate.Decimal().LessThan(summary[j].Rate.Decimal())
		}
		return summary[i].Name < summary[j].Name
	})
	return summary
}

func withField(err error, field string) error {
	var perr *common.Error
	if errors.As(err, &perr) && perr.Field == "" {
		clone := *perr
		clone.Field = field
		return &clone
	}
	return err
}
