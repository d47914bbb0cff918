package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/quote"
)

var quoteCmd = &cobra.Command{
	Use:   "quote [request.json|-]",
	Short: "Price one request, or an array of requests, and print the breakdown",
	Long: `Reads a pricing request (or a JSON array of them) and writes the quote as JSON.

A request looks like:

  {
    "items": [{"id": "tour", "unit_price": "100.00", "quantity": 2, "category": "standard"}],
    "as_of": "2024-10-20",
    "region": "IN",
    "modifiers": [{"kind": "repeat_customer", "code": "LOYAL", "percent": "5"}]
  }`,
	Example: `  pricectl quote request.json --rules rules.json
  cat request.json | pricectl quote -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuote,
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Price newline-delimited requests from stdin while rules reload in the background",
	Long: `Reads one JSON request per line from stdin and writes one JSON result per line to
stdout. Rules are reloaded every RULES_RELOAD_INTERVAL and whenever a version is
announced on RULES_RELOAD_CHANNEL, without interrupting the stream.`,
	Args: cobra.NoArgs,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(quoteCmd, streamCmd)
	for _, c := range []*cobra.Command{quoteCmd, streamCmd} {
		c.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	}
	quoteCmd.Flags().Bool("pretty", true, "indent the JSON output")
}

// result is one line of output: a quote or the error that prevented it.
type result struct {
	*quote.Quote
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    common.Kind       `json:"kind"`
	Field   string            `json:"field,omitempty"`
	Message string            `json:"message"`
	Rule    *common.RuleQuery `json:"rule,omitempty"`
}

func errorResult(err error) result {
	body := &errorBody{Kind: common.KindOf(err), Message: err.Error()}
	var perr *common.Error
	if errors.As(err, &perr) {
		body.Field = perr.Field
		body.Rule = perr.Rule
	}
	return result{Error: body}
}

func runQuote(cmd *cobra.Command, args []string) error {
	raw, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	rt, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	svc, err := rt.service(cmd.Context())
	if err != nil {
		return err
	}

	pretty, _ := cmd.Flags().GetBool("pretty")
	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}

	var failed error
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var inputs []quote.Input
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return fmt.Errorf("decode requests: %w", err)
		}
		quotes, errs := svc.QuoteAll(cmd.Context(), inputs)
		out := make([]result, len(quotes))
		for i := range quotes {
			if errs[i] != nil {
				out[i] = errorResult(errs[i])
				failed = errs[i]
				continue
			}
			out[i] = result{Quote: &quotes[i]}
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		var in quote.Input
		if err := json.Unmarshal(trimmed, &in); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		q, err := svc.Quote(cmd.Context(), in)
		if err != nil {
			return err
		}
		if err := enc.Encode(result{Quote: &q}); err != nil {
			return err
		}
	}

	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	if err := writeMetrics(metricsFile); err != nil {
		return err
	}
	return failed
}

func runStream(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	svc, err := rt.service(cmd.Context())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	reloadErr := make(chan error, 1)
	go func() { reloadErr <- rt.reloader().Run(ctx) }()

	enc := json.NewEncoder(cmd.OutOrStdout())
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var in quote.Input
		out := result{}
		if err := json.Unmarshal(line, &in); err != nil {
			out = errorResult(&common.Error{Kind: common.KindValidationFailed, Reason: "malformed request", Err: err})
		} else if q, err := svc.Quote(ctx, in); err != nil {
			out = errorResult(err)
		} else {
			out.Quote = &q
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
		select {
		case err := <-reloadErr:
			// Run only returns early when the subscription fails.
			if err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	return writeMetrics(metricsFile)
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}
