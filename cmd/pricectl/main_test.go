package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const fixture = "../../internal/rulestore/testdata/rules.json"

func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{"RULES_FILE", "DATABASE_URL", "REDIS_URL", "OBS_ENABLE_TRACING"} {
		t.Setenv(key, "")
	}
	t.Setenv("OBS_LOG_LEVEL", "error")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRulesLint(t *testing.T) {
	isolate(t)
	out, err := run(t, "", "rules", "lint", fixture)
	require.NoError(t, err)
	require.Contains(t, out, "14 rules, version 2024-10, ok")
}

func TestRulesLintRejectsOverlaps(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "rules.json")
	doc := `{"version":"x","rules":[
		{"id":"a","category":"medical","region":"IN","rate_percent":"5","effective_from":"2024-01-01"},
		{"id":"b","category":"medical","region":"IN","rate_percent":"12","effective_from":"2024-06-01"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := run(t, "", "rules", "lint", path)
	require.ErrorContains(t, err, "ambiguous_rate")
}

func TestQuoteCommand(t *testing.T) {
	isolate(t)
	req := `{"items":[{"id":"tour","unit_price":"100.00","quantity":2,"category":"standard"}],"as_of":"2024-10-20","region":"IN",
		"modifiers":[{"kind":"flash_sale","code":"F10","percent":"10","item_ids":["tour"],"valid_from":"2024-10-01","valid_to":"2024-10-31"}]}`

	out, err := run(t, req, "quote", "-", "--rules", fixture, "--pretty=false")
	require.NoError(t, err)

	var got struct {
		QuoteID   string `json:"quote_id"`
		Breakdown struct {
			Total       string `json:"total"`
			Tax         string `json:"tax"`
			RuleVersion string `json:"rule_version"`
		} `json:"breakdown"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotEmpty(t, got.QuoteID)
	require.Equal(t, "212.40", got.Breakdown.Total)
	require.Equal(t, "32.40", got.Breakdown.Tax)
	require.Equal(t, "2024-10", got.Breakdown.RuleVersion)
}

func TestQuoteCommandBatchReportsErrors(t *testing.T) {
	isolate(t)
	req := `[
		{"items":[{"id":"a","unit_price":"10.00","quantity":1,"category":"standard"}],"as_of":"2024-10-20","region":"GB"},
		{"items":[],"as_of":"2024-10-20","region":"GB"}
	]`
	out, err := run(t, req, "quote", "--rules", fixture, "--pretty=false")
	require.ErrorContains(t, err, "empty_line_items")

	var got []struct {
		Breakdown *struct {
			Total string `json:"total"`
		} `json:"breakdown"`
		Error *struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	require.Equal(t, "12.00", got[0].Breakdown.Total)
	require.Equal(t, "empty_line_items", got[1].Error.Kind)
}

func TestStreamCommand(t *testing.T) {
	isolate(t)
	lines := strings.Join([]string{
		`{"items":[{"id":"a","unit_price":"10.00","quantity":1,"category":"standard"}],"as_of":"2024-10-20","region":"SG"}`,
		`not json`,
		`{"items":[{"id":"a","unit_price":"10.00","quantity":1,"category":"standard"}],"as_of":"2023-06-01","region":"SG"}`,
	}, "\n")
	out, err := run(t, lines, "stream", "--rules", fixture)
	require.NoError(t, err)

	results := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, results, 3)
	require.Contains(t, results[0], `"total":"10.90"`)
	require.Contains(t, results[1], `"kind":"validation_failed"`)
	require.Contains(t, results[2], `"total":"10.80"`)
}
