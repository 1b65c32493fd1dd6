package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/namelens/guildrest/internal/config"
	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/core/route"
	"github.com/namelens/guildrest/internal/metrics"
	"github.com/namelens/guildrest/internal/output"
)

var (
	callBody   string
	callReason string
	callQuery  []string
	callCount  int
)

// callReport is the JSON form of one call result.
type callReport struct {
	Route       string            `json:"route"`
	StatusCode  int               `json:"status_code"`
	RateLimited bool              `json:"rate_limited"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func newCallReport(name string, res engine.Result) callReport {
	report := callReport{Route: name, StatusCode: res.StatusCode, RateLimited: res.RateLimited}
	for _, h := range []string{engine.HeaderBucket, engine.HeaderLimit, engine.HeaderRemaining, engine.HeaderResetAfter, engine.HeaderScope} {
		if value := res.Header.Get(h); value != "" {
			if report.Headers == nil {
				report.Headers = map[string]string{}
			}
			report.Headers[h] = value
		}
	}
	if len(res.Body) > 0 {
		if json.Valid(res.Body) {
			report.Body = res.Body
		} else {
			report.Body, _ = json.Marshal(string(res.Body))
		}
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	return report
}

// parseKeyValues turns "k=v" arguments into a map.
func parseKeyValues(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		values[key] = value
	}
	return values, nil
}

// readBody accepts inline JSON or @path.
func readBody(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	body := []byte(value)
	if path, ok := strings.CutPrefix(value, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		body = data
	}
	if !json.Valid(body) {
		return nil, errors.New("request body must be valid JSON")
	}
	return body, nil
}

// buildCall resolves a catalog route into a dispatchable call.
func buildCall(catalog *route.Catalog, name string, args []string) (engine.Call, error) {
	r, ok := catalog.Lookup(name)
	if !ok {
		return engine.Call{}, fmt.Errorf("%s: %w", name, route.ErrUnknownRoute)
	}

	params, err := parseKeyValues(args)
	if err != nil {
		return engine.Call{}, err
	}
	call, err := engine.CallFor(r, params)
	if err != nil {
		return engine.Call{}, err
	}

	query, err := parseKeyValues(callQuery)
	if err != nil {
		return engine.Call{}, err
	}
	if len(query) > 0 {
		call.Query = url.Values{}
		for key, value := range query {
			call.Query.Set(key, value)
		}
	}

	if call.Body, err = readBody(callBody); err != nil {
		return engine.Call{}, err
	}
	call.Reason = callReason
	return call, nil
}

var callCmd = &cobra.Command{
	Use:   "call <route-name> [param=value...]",
	Short: "Dispatch a call through the rate limiter",
	Long: `Dispatch a catalog route with the given placeholder values, e.g.

  guildrest call get_guild guild.id=123
  guildrest call create_message channel.id=9 --body '{"content":"hi"}'

With --count N the call is submitted N times at once so queueing and bucket
updates can be observed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if callCount < 1 {
			return errors.New("--count must be at least 1")
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		rt, err := newDispatchRuntime(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		name := args[0]
		call, err := buildCall(rt.catalog, name, args[1:])
		if err != nil {
			return err
		}

		results := make([]engine.Result, callCount)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			rt.dispatcher.Submit(cmd.Context(), call, func(res engine.Result) {
				results[i] = res
				wg.Done()
			})
		}
		wg.Wait()

		format, sink, err := openOutput(cmd, "call."+name)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		reports := make([]callReport, len(results))
		var firstErr error
		for i, res := range results {
			reports[i] = newCallReport(name, res)
			if firstErr == nil && res.Err != nil {
				firstErr = res.Err
			}
		}
		metrics.RecordOperation("call", firstErr)

		var payload any = reports
		if len(reports) == 1 {
			payload = reports[0]
		}
		rendered, err := output.Render(format, payload, func() string {
			tables := make([]string, len(results))
			for i, res := range results {
				tables[i] = output.ResultTable(name, res)
			}
			return strings.Join(tables, "\n")
		})
		if err != nil {
			return err
		}
		if err := sink.write(rendered); err != nil {
			return err
		}
		return firstErr
	},
}

func init() {
	callCmd.Flags().StringVar(&callBody, "body", "", "JSON request body, or @file")
	callCmd.Flags().StringVar(&callReason, "reason", "", "Audit log reason")
	callCmd.Flags().StringArrayVar(&callQuery, "query", nil, "Query parameter as key=value (repeatable)")
	callCmd.Flags().IntVar(&callCount, "count", 1, "Submit the call this many times concurrently")
	addOutputFlags(callCmd)
	rootCmd.AddCommand(callCmd)
}
