package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Request struct {
	Question string
	Prompt   Prompt
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Translator turns a prompt into a SQL statement with code fences removed.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

func NewTranslator(provider string, cfg ClientConfig) (Translator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return NewOpenAITranslator(cfg)
	case "gemini":
		return NewGeminiTranslator(cfg)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", provider)
	}
}

// endpoint holds what every hosted model provider needs: where to post, how
// to authenticate and which model to ask.
type endpoint struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func newEndpoint(cfg ClientConfig, defaultModel string) (endpoint, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return endpoint{}, fmt.Errorf("base URL is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return endpoint{}, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return endpoint{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// postJSON sends payload to path and decodes a 2xx body into out. Upstream
// failures keep the status and the head of the body for the logs.
func (e endpoint) postJSON(ctx context.Context, path string, auth http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for key, values := range auth {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("call model: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("model call failed status=%d body=%s", resp.StatusCode, truncate(string(raw), 512))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

func finishSQL(completion string) (string, error) {
	sql := StripCodeFences(completion)
	if sql == "" {
		return "", fmt.Errorf("model returned empty SQL")
	}
	return sql, nil
}
