package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/birbparty/nestlink/sdk"
	"github.com/spf13/cobra"
)

// newRawCmd builds get, post, put and delete, which dispatch to any path
func newRawCmd(flags *globalFlags, verb string) *cobra.Command {
	var (
		data      string
		query     []string
		headers   []string
		timeout   time.Duration
		skipCache bool
	)

	method := strings.ToUpper(verb)
	cmd := &cobra.Command{
		Use:   verb + " <path>",
		Short: fmt.Sprintf("Send a %s request and print the response data", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &sdk.RequestOptions{Timeout: timeout, SkipCache: skipCache}

			var err error
			if opts.Query, err = parseQuery(query); err != nil {
				return err
			}
			if opts.Headers, err = parseHeaders(headers); err != nil {
				return err
			}

			var body interface{}
			if data != "" {
				raw, err := readData(data)
				if err != nil {
					return err
				}
				body = raw
			}

			return flags.withClient(cmd, func(ctx context.Context, c *sdk.Client, _ *Session) error {
				resp, err := sdk.Dispatch[json.RawMessage](ctx, c, method, args[0], body, opts)
				if err != nil {
					return report(cmd, err)
				}
				if resp.Cached {
					fmt.Fprintln(cmd.ErrOrStderr(), "(cached)")
				}
				if len(resp.Data) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
					return nil
				}
				return printJSON(cmd.OutOrStdout(), resp.Data)
			})
		},
	}

	if method != http.MethodGet && method != http.MethodDelete {
		cmd.Flags().StringVarP(&data, "data", "d", "", "JSON body, or @file to read it from a file")
	}
	if method == http.MethodGet {
		cmd.Flags().BoolVar(&skipCache, "skip-cache", false, "bypass the response cache")
	}
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header as 'Name: value' (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-request timeout")
	return cmd
}

func parseQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid query parameter %q, want key=value", p)
		}
		q.Add(k, v)
	}
	return q, nil
}

func parseHeaders(lines []string) (http.Header, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	h := http.Header{}
	for _, line := range lines {
		k, v, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Name: value'", line)
		}
		h.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return h, nil
}

// readData returns the JSON body given inline or as @path
func readData(data string) (json.RawMessage, error) {
	raw := []byte(data)
	if path, ok := strings.CutPrefix(data, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
