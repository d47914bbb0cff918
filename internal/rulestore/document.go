package rulestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/money"
	"github.com/noah-isme/pricecore/internal/rates"
)

// Snapshot is one complete, versioned set of tax rules as held by a store.
type Snapshot struct {
	Version string
	Rules   []rates.TaxRule
}

// Table validates the snapshot into an immutable rate table.
func (s Snapshot) Table() (*rates.Table, error) {
	return rates.NewTable(s.Version, s.Rules)
}

// document is the on-disk JSON form of a Snapshot. Dates are YYYY-MM-DD strings.
type document struct {
	Version string    `json:"version"`
	Rules   []ruleDoc `json:"rules"`
}

type ruleDoc struct {
	ID            string         `json:"id,omitempty"`
	Category      rates.Category `json:"category"`
	Region        string         `json:"region"`
	RatePercent   money.Percent  `json:"rate_percent"`
	EffectiveFrom string         `json:"effective_from"`
	EffectiveTo   *string        `json:"effective_to,omitempty"`
	Description   string         `json:"description,omitempty"`
}

// Decode reads a rule document. When the document carries no version, the content
// fingerprint is used so that any edit produces a new version.
func Decode(r io.Reader) (Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rulestore: read document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return Snapshot{}, &common.Error{Kind: common.KindValidationFailed, Field: "rules", Reason: "malformed rule document", Err: err}
	}

	rules := make([]rates.TaxRule, len(doc.Rules))
	for i, rd := range doc.Rules {
		rule, err := rd.toRule()
		if err != nil {
			return Snapshot{}, withIndex(err, i)
		}
		rules[i] = rule
	}
	version := doc.Version
	if version == "" {
		version = "sha256:" + common.Fingerprint(raw)[:12]
	}
	return Snapshot{Version: version, Rules: rules}, nil
}

// Encode writes s in the document format Decode reads.
func Encode(w io.Writer, s Snapshot) error {
	doc := document{
		Version: s.Version,
		Rules: lo.Map(s.Rules, func(r rates.TaxRule, _ int) ruleDoc {
			rd := ruleDoc{
				ID:            r.ID,
				Category:      r.Category,
				Region:        string(r.Region),
				RatePercent:   r.RatePercent,
				EffectiveFrom: r.EffectiveFrom.Format(rates.DateLayout),
				Description:   r.Description,
			}
			if r.EffectiveTo != nil {
				rd.EffectiveTo = lo.ToPtr(r.EffectiveTo.Format(rates.DateLayout))
			}
			return rd
		}),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (rd ruleDoc) toRule() (rates.TaxRule, error) {
	from, err := parseDay("effective_from", rd.EffectiveFrom)
	if err != nil {
		return rates.TaxRule{}, err
	}
	rule := rates.TaxRule{
		ID:            rd.ID,
		Category:      rd.Category,
		Region:        rates.NormalizeRegion(rd.Region),
		RatePercent:   rd.RatePercent,
		EffectiveFrom: from,
		Description:   rd.Description,
	}
	if rd.EffectiveTo != nil && *rd.EffectiveTo != "" {
		to, err := parseDay("effective_to", *rd.EffectiveTo)
		if err != nil {
			return rates.TaxRule{}, err
		}
		rule.EffectiveTo = &to
	}
	return rule, nil
}

func parseDay(field, value string) (time.Time, error) {
	t, err := time.Parse(rates.DateLayout, value)
	if err != nil {
		return time.Time{}, &common.Error{Kind: common.KindValidationFailed, Field: field, Reason: "expected YYYY-MM-DD", Value: value, Err: err}
	}
	return t, nil
}

func withIndex(err error, i int) error {
	if perr, ok := err.(*common.Error); ok {
		clone := *perr
		clone.Field = fmt.Sprintf("rules[%d]", i)
		if perr.Field != "" {
			clone.Field += "." + perr.Field
		}
		return &clone
	}
	return err
}
