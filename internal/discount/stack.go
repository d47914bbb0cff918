package discount

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/money"
)

// Status records what happened to a modifier during a calculation.
type Status string

const (
	StatusApplied           Status = "applied"
	StatusSkippedExpired    Status = "skipped_expired"
	StatusSkippedNotStarted Status = "skipped_not_started"
	StatusSkippedNoItems    Status = "skipped_no_items"
)

// Line is the per-item input to the stack.
type Line struct {
	ID                 string
	Base               money.Money
	DiscountPercentage money.Percent
}

// Application is the audit record of one modifier.
type Application struct {
	Kind   Kind   `json:"kind"`
	Code   string `json:"code,omitempty"`
	Status Status `json:"status"`
	Note   string `json:"note,omitempty"`
	// Rate is the factor or percentage as written on the modifier.
	Rate string `json:"rate"`
	// Base is the amount the modifier was applied to.
	Base   money.Money `json:"base"`
	Amount money.Money `json:"amount"`
	Items  []string    `json:"items,omitempty"`
}

// Result is the output of the stack. PerLine[i] is the total discount allocated to lines[i].
type Result struct {
	Total   money.Money
	PerLine []money.Money
	Applied []Application
}

var hundredPct = decimal.NewFromInt(100)

// Apply runs per-line discounts and then the modifiers in fixed precedence order
// (Seasonal, FlashSale, RepeatCustomer) regardless of the order they were supplied in.
func Apply(lines []Line, modifiers []Modifier, asOf time.Time) (Result, error) {
	ordered, err := order(modifiers)
	if err != nil {
		return Result{}, err
	}
	return applyOrdered(lines, ordered, asOf)
}

func order(modifiers []Modifier) ([]Modifier, error) {
	counts := make(map[Kind]int)
	for _, m := range modifiers {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		counts[m.Kind]++
	}
	for _, k := range []Kind{KindSeasonal, KindRepeatCustomer} {
		if counts[k] > 1 {
			return nil, &common.Error{Kind: common.KindInvalidModifier, Field: "modifiers", Reason: fmt.Sprintf("at most one %s modifier is allowed", k), Value: counts[k]}
		}
	}
	ordered := append([]Modifier(nil), modifiers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return precedence[ordered[i].Kind] < precedence[ordered[j].Kind]
	})
	return ordered, nil
}

type state struct {
	running []money.Money
	exact   []decimal.Decimal
	perLine []money.Money
}

func (s *state) take(idx int, amount money.Money) error {
	next, err := s.running[idx].Sub(amount)
	if err != nil {
		return err
	}
	s.running[idx] = next
	total, err := s.perLine[idx].Add(amount)
	if err != nil {
		return err
	}
	s.perLine[idx] = total
	return nil
}

// applyOrdered applies modifiers exactly in the order given.
func applyOrdered(lines []Line, modifiers []Modifier, asOf time.Time) (Result, error) {
	s := &state{
		running: make([]money.Money, len(lines)),
		exact:   make([]decimal.Decimal, len(lines)),
		perLine: make([]money.Money, len(lines)),
	}
	var applied []Application

	for i, line := range lines {
		s.running[i] = line.Base
		if line.DiscountPercentage.IsZero() {
			continue
		}
		amount, err := line.Base.MulPercent(line.DiscountPercentage)
		if err != nil {
			return Result{}, err
		}
		if err := s.take(i, amount); err != nil {
			return Result{}, err
		}
		applied = append(applied, Application{
			Kind:   KindLine,
			Code:   line.ID,
			Status: StatusApplied,
			Rate:   line.DiscountPercentage.String(),
			Base:   line.Base,
			Amount: amount,
			Items:  []string{line.ID},
		})
	}
	stackBase := make([]money.Money, len(lines))
	copy(stackBase, s.running)
	for i := range lines {
		s.exact[i] = decimal.NewFromInt(s.running[i].Minor())
	}

	var contributions money.Money
	lastApplied := -1
	var lastTargets []bool
	for _, m := range modifiers {
		targets, status, note := selectTargets(m, lines, asOf)
		app := Application{Kind: m.Kind, Code: m.Code, Status: status, Note: note, Rate: rateOf(m)}
		if status != StatusApplied {
			applied = append(applied, app)
			continue
		}

		weights := make([]money.Money, len(lines))
		for i, ok := range targets {
			if !ok {
				continue
			}
			weights[i] = s.running[i]
			app.Items = append(app.Items, lines[i].ID)
		}
		base, err := money.Sum(weights...)
		if err != nil {
			return Result{}, err
		}
		amount, keep, err := contribution(m, base)
		if err != nil {
			return Result{}, err
		}
		for i, part := range amount.Allocate(weights) {
			if !targets[i] {
				continue
			}
			if err := s.take(i, part); err != nil {
				return Result{}, err
			}
			s.exact[i] = s.exact[i].Mul(keep)
		}
		if contributions, err = contributions.Add(amount); err != nil {
			return Result{}, err
		}
		app.Base = base
		app.Amount = amount
		applied = append(applied, app)
		lastApplied = len(applied) - 1
		lastTargets = targets
	}

	if lastApplied >= 0 {
		residual, err := residualOf(stackBase, s.exact, contributions)
		if err != nil {
			return Result{}, err
		}
		if !residual.IsZero() {
			weights := residualWeights(s.running, lastTargets)
			for i, part := range residual.Allocate(weights) {
				if !lastTargets[i] || part.IsZero() {
					continue
				}
				if err := s.take(i, part); err != nil {
					return Result{}, err
				}
			}
			if applied[lastApplied].Amount, err = applied[lastApplied].Amount.Add(residual); err != nil {
				return Result{}, err
			}
		}
	}

	total, err := money.Sum(s.perLine...)
	if err != nil {
		return Result{}, err
	}
	return Result{Total: total, PerLine: s.perLine, Applied: applied}, nil
}

// residualWeights spreads the residual over the last modifier's lines by their running amount,
// or evenly across them when they have all been discounted to zero.
func residualWeights(running []money.Money, targets []bool) []money.Money {
	weights := make([]money.Money, len(running))
	empty := true
	for i, ok := range targets {
		if ok {
			weights[i] = running[i]
			empty = empty && running[i].IsZero()
		}
	}
	if empty {
		for i, ok := range targets {
			if ok {
				weights[i], _ = money.FromMinor(1)
			}
		}
	}
	return weights
}

// residualOf compares the sum of individually rounded contributions with the discount implied
// by compounding every modifier exactly and rounding once.
func residualOf(stackBase []money.Money, exact []decimal.Decimal, contributions money.Money) (money.Money, error) {
	base, err := money.Sum(stackBase...)
	if err != nil {
		return money.Money{}, err
	}
	final := decimal.Zero
	for _, v := range exact {
		final = final.Add(v)
	}
	finalMoney, err := money.FromMinor(final.Round(0).IntPart())
	if err != nil {
		return money.Money{}, err
	}
	expected, err := base.Sub(finalMoney)
	if err != nil {
		return money.Money{}, err
	}
	return expected.Sub(contributions)
}

// contribution returns the rounded discount of m on base and the exact fraction of the amount
// that remains afterwards.
func contribution(m Modifier, base money.Money) (money.Money, decimal.Decimal, error) {
	switch m.Kind {
	case KindSeasonal:
		scaled, err := base.MulFactor(m.Factor)
		if err != nil {
			return money.Money{}, decimal.Decimal{}, err
		}
		amount, err := base.Sub(scaled)
		return amount, m.Factor.Decimal(), err
	default:
		amount, err := base.MulPercent(m.Percent)
		keep := hundredPct.Sub(m.Percent.Decimal()).Div(hundredPct)
		return amount, keep, err
	}
}

func selectTargets(m Modifier, lines []Line, asOf time.Time) ([]bool, Status, string) {
	targets := make([]bool, len(lines))
	if m.Kind != KindFlashSale {
		for i := range targets {
			targets[i] = true
		}
		return targets, StatusApplied, ""
	}
	today := day(asOf)
	if today.Before(day(m.ValidFrom)) {
		return nil, StatusSkippedNotStarted, "not started, not applied"
	}
	if today.After(day(m.ValidTo)) {
		return nil, StatusSkippedExpired, "expired, not applied"
	}
	eligible := make(map[string]struct{}, len(m.ItemIDs))
	for _, id := range m.ItemIDs {
		eligible[id] = struct{}{}
	}
	found := false
	for i, line := range lines {
		if _, ok := eligible[line.ID]; ok {
			targets[i] = true
			found = true
		}
	}
	if !found {
		return nil, StatusSkippedNoItems, "no eligible items, not applied"
	}
	return targets, StatusApplied, ""
}

func rateOf(m Modifier) string {
	if m.Kind == KindSeasonal {
		return m.Factor.String()
	}
	return m.Percent.String()
}
