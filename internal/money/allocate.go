package money

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricecore/internal/common"
)

// Allocate distributes m across weights pro-rata using the largest remainder method. The
// returned parts always sum to m exactly. Negative weights count as zero; when every weight is
// zero the amount is split evenly. Ties on remainder go to the lower index.
func (m Money) Allocate(weights []Money) []Money {
	if len(weights) == 0 {
		return nil
	}
	allocations := make([]Money, len(weights))
	if m.minor == 0 {
		return allocations
	}
	if m.minor < 0 {
		for i, part := range m.Neg().Allocate(weights) {
			allocations[i] = part.Neg()
		}
		return allocations
	}

	totalWeight := decimal.Zero
	for _, w := range weights {
		if w.minor > 0 {
			totalWeight = totalWeight.Add(decimal.NewFromInt(w.minor))
		}
	}
	if totalWeight.IsZero() {
		parts, _ := m.Split(len(weights))
		return parts
	}

	type remainderPair struct {
		idx       int
		remainder decimal.Decimal
	}
	pairs := make([]remainderPair, len(weights))
	amount := decimal.NewFromInt(m.minor)
	distributed := int64(0)
	for i, w := range weights {
		weight := w.minor
		if weight < 0 {
			weight = 0
		}
		q, r := amount.Mul(decimal.NewFromInt(weight)).QuoRem(totalWeight, 0)
		share := q.IntPart()
		allocations[i] = Money{minor: share}
		distributed += share
		pairs[i] = remainderPair{idx: i, remainder: r}
	}

	remainder := m.minor - distributed
	if remainder <= 0 {
		return allocations
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		c := pairs[i].remainder.Cmp(pairs[j].remainder)
		if c == 0 {
			return pairs[i].idx < pairs[j].idx
		}
		return c > 0
	})
	for _, entry := range pairs {
		if remainder == 0 {
			break
		}
		allocations[entry.idx].minor++
		remainder--
	}
	return allocations
}

// Split divides m into n parts that differ by at most one minor unit; earlier parts receive
// the extra units.
func (m Money) Split(n int) ([]Money, error) {
	if n <= 0 {
		return nil, common.NewError(common.KindInvalidAmount, "parts", "split requires at least one part", n)
	}
	parts := make([]Money, n)
	sign := int64(1)
	v := m.minor
	if v < 0 {
		sign = -1
		v = -v
	}
	base := v / int64(n)
	remainder := v % int64(n)
	for i := range parts {
		share := base
		if remainder > 0 {
			share++
			remainder--
		}
		parts[i] = Money{minor: sign * share}
	}
	return parts, nil
}
