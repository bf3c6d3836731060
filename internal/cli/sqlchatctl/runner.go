// Package sqlchatctl is a terminal client for the chat API.
package sqlchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultBaseURL = "http://localhost:5000"
	defaultTimeout = 60 * time.Second
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 when the request failed or the server answered with an error status, and
// 2 for usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		_, _ = fmt.Fprintln(stderr, reqErr.Error())
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
	_, _ = fmt.Fprint(stderr, root.UsageString())
	return 2
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type requestError struct {
	status int
	body   []byte
	err    error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("request failed: %v", e.err)
	}
	var envelope struct {
		Error     string `json:"error"`
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(e.body, &envelope); err == nil && envelope.Error != "" {
		if envelope.ErrorCode != "" {
			return fmt.Sprintf("http %d: %s (%s)", e.status, envelope.Error, envelope.ErrorCode)
		}
		return fmt.Sprintf("http %d: %s", e.status, envelope.Error)
	}
	return fmt.Sprintf("http %d: %s", e.status, strings.TrimSpace(string(e.body)))
}

func (e *requestError) Unwrap() error {
	return e.err
}

// do sends the request and returns the body of a 2xx/3xx response. Any other
// status becomes a *requestError.
func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return nil, &requestError{err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &requestError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &requestError{err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &requestError{status: resp.StatusCode, body: raw}
	}
	return raw, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeRaw(w io.Writer, raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

// bind reads the persistent flags into a client once the command line is parsed.
func bind(cmd *cobra.Command, defaults Options) *client {
	flags := cmd.Flags()
	baseURL, _ := flags.GetString("base-url")
	apiKey, _ := flags.GetString("api-key")
	timeout, _ := flags.GetDuration("timeout")

	httpClient := defaults.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &client{baseURL: baseURL, apiKey: apiKey, http: httpClient}
}
