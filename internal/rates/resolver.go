package rates

import (
	"sync/atomic"
	"time"
)

// Resolver serves tax rule lookups from a table that can be replaced atomically while
// calculations are in flight. Readers take a snapshot with Current and never see a partially
// updated rule set.
type Resolver struct {
	table atomic.Pointer[Table]
}

// NewResolver creates a resolver serving initial. A nil table resolves nothing.
func NewResolver(initial *Table) *Resolver {
	r := &Resolver{}
	if initial == nil {
		initial = &Table{byKey: map[ruleKey][]TaxRule{}}
	}
	r.table.Store(initial)
	return r
}

// Current returns the table snapshot to use for one calculation.
func (r *Resolver) Current() *Table {
	return r.table.Load()
}

// Swap installs next and returns the previous table. A nil table is ignored.
func (r *Resolver) Swap(next *Table) *Table {
	if next == nil {
		return r.table.Load()
	}
	return r.table.Swap(next)
}

// Resolve looks up the active rule in the current table.
func (r *Resolver) Resolve(category Category, region RegionCode, asOf time.Time) (TaxRule, error) {
	return r.Current().Resolve(category, region, asOf)
}
