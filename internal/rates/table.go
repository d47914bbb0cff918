package rates

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/money"
)

// DateLayout is the calendar date format used for rule windows and as-of dates.
const DateLayout = "2006-01-02"

// TaxRule is a versioned tax rate for a (category, region) pair. EffectiveTo is inclusive;
// nil means open-ended.
type TaxRule struct {
	ID            string
	Category      Category
	Region        RegionCode
	RatePercent   money.Percent
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	Description   string
}

// ActiveOn reports whether the rule window contains the calendar day of asOf.
func (r TaxRule) ActiveOn(asOf time.Time) bool {
	day := Day(asOf)
	if day.Before(Day(r.EffectiveFrom)) {
		return false
	}
	return r.EffectiveTo == nil || !day.After(Day(*r.EffectiveTo))
}

func (r TaxRule) overlaps(o TaxRule) bool {
	if r.Category != o.Category || r.Region != o.Region {
		return false
	}
	// [a1, a2] and [b1, b2] intersect when a1 <= b2 and b1 <= a2.
	if r.EffectiveTo != nil && Day(*r.EffectiveTo).Before(Day(o.EffectiveFrom)) {
		return false
	}
	if o.EffectiveTo != nil && Day(*o.EffectiveTo).Before(Day(r.EffectiveFrom)) {
		return false
	}
	return true
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type ruleKey struct {
	category Category
	region   RegionCode
}

// Table is an immutable set of tax rules. Build a new table to change rules.
type Table struct {
	version     string
	fingerprint string
	rules       []TaxRule
	byKey       map[ruleKey][]TaxRule
}

// NewTable validates rules and indexes them for lookup. The slice is copied.
func NewTable(version string, rules []TaxRule) (*Table, error) {
	t := &Table{
		version: version,
		rules:   make([]TaxRule, 0, len(rules)),
		byKey:   make(map[ruleKey][]TaxRule),
	}
	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		field := fmt.Sprintf("rules[%d]", i)
		rule.Region = NormalizeRegion(string(rule.Region))
		if rule.ID == "" {
			rule.ID = fmt.Sprintf("%s/%s/%s", rule.Category, rule.Region, Day(rule.EffectiveFrom).Format(DateLayout))
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, common.NewError(common.KindValidationFailed, field+".id", "duplicate rule id", rule.ID)
		}
		seen[rule.ID] = struct{}{}
		if !rule.Category.Valid() {
			return nil, common.NewError(common.KindValidationFailed, field+".category", "unknown category", string(rule.Category))
		}
		if !KnownRegion(string(rule.Region)) {
			return nil, common.NewError(common.KindValidationFailed, field+".region", "unknown region", string(rule.Region))
		}
		if rule.EffectiveFrom.IsZero() {
			return nil, common.NewError(common.KindValidationFailed, field+".effective_from", "required", nil)
		}
		if rule.EffectiveTo != nil && Day(*rule.EffectiveTo).Before(Day(rule.EffectiveFrom)) {
			return nil, common.NewError(common.KindValidationFailed, field+".effective_to", "ends before effective_from", rule.EffectiveTo.Format(DateLayout))
		}
		if rule.EffectiveTo != nil {
			end := Day(*rule.EffectiveTo)
			rule.EffectiveTo = &end
		}
		rule.EffectiveFrom = Day(rule.EffectiveFrom)
		t.rules = append(t.rules, rule)
		key := ruleKey{category: rule.Category, region: rule.Region}
		t.byKey[key] = append(t.byKey[key], rule)
	}
	t.fingerprint = fingerprint(t.rules)
	return t, nil
}

// fingerprint hashes the pricing-relevant fields of every rule in load order. Descriptions are
// left out because they never reach a breakdown.
func fingerprint(rules []TaxRule) string {
	parts := make([][]byte, 0, len(rules))
	for _, r := range rules {
		to := ""
		if r.EffectiveTo != nil {
			to = r.EffectiveTo.Format(DateLayout)
		}
		parts = append(parts, []byte(fmt.Sprintf("%s|%s|%s|%s|%s|%s",
			r.ID, r.Category, r.Region, r.RatePercent.Decimal().String(), r.EffectiveFrom.Format(DateLayout), to)))
	}
	return common.Fingerprint(parts...)
}

// Version identifies the rule set this table was built from.
func (t *Table) Version() string {
	if t == nil {
		return ""
	}
	return t.version
}

// Fingerprint identifies the rule content, independent of the version label. Two tables
// with equal fingerprints price every request identically.
func (t *Table) Fingerprint() string {
	if t == nil {
		return ""
	}
	return t.fingerprint
}

// Len returns the number of rules.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Rules returns a copy of the rules in load order.
func (t *Table) Rules() []TaxRule {
	if t == nil {
		return nil
	}
	out := make([]TaxRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Resolve returns the single rule active for (category, region) on asOf. It fails with
// NoApplicableRate when nothing matches and AmbiguousRate when more than one rule matches.
func (t *Table) Resolve(category Category, region RegionCode, asOf time.Time) (TaxRule, error) {
	if asOf.IsZero() {
		return TaxRule{}, common.NewError(common.KindValidationFailed, "as_of", "required", nil)
	}
	if !category.Valid() {
		return TaxRule{}, common.NewError(common.KindValidationFailed, "category", "unknown category", string(category))
	}
	region = NormalizeRegion(string(region))
	if !KnownRegion(string(region)) {
		return TaxRule{}, common.NewError(common.KindValidationFailed, "region", "unknown region", string(region))
	}

	query := &common.RuleQuery{Category: string(category), Region: string(region), AsOf: Day(asOf).Format(DateLayout)}
	var matches []TaxRule
	if t != nil {
		for _, rule := range t.byKey[ruleKey{category: category, region: region}] {
			if rule.ActiveOn(asOf) {
				matches = append(matches, rule)
			}
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return TaxRule{}, &common.Error{Kind: common.KindNoApplicableRate, Reason: "no tax rule active", Rule: query}
	default:
		for _, m := range matches {
			query.Matches = append(query.Matches, m.ID)
		}
		sort.Strings(query.Matches)
		return TaxRule{}, &common.Error{Kind: common.KindAmbiguousRate, Reason: "more than one tax rule active", Rule: query}
	}
}

// Conflict is a pair of rules whose windows overlap for the same category and region.
type Conflict struct {
	First  TaxRule
	Second TaxRule
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s/%s: %s overlaps %s", c.First.Category, c.First.Region, c.First.ID, c.Second.ID)
}

// Overlaps lists every pair of rules that would make some lookup ambiguous.
func (t *Table) Overlaps() []Conflict {
	if t == nil {
		return nil
	}
	keys := make([]ruleKey, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].region == keys[j].region {
			return keys[i].category < keys[j].category
		}
		return keys[i].region < keys[j].region
	})
	var conflicts []Conflict
	for _, k := range keys {
		group := t.byKey[k]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if group[i].overlaps(group[j]) {
					conflicts = append(conflicts, Conflict{First: group[i], Second: group[j]})
				}
			}
		}
	}
	return conflicts
}
