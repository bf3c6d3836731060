package nl2sql

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GeminiTranslator calls the Generative Language generateContent endpoint.
type GeminiTranslator struct {
	endpoint
}

func NewGeminiTranslator(cfg ClientConfig) (*GeminiTranslator, error) {
	ep, err := newEndpoint(cfg, "gemini-2.0-flash")
	if err != nil {
		return nil, err
	}
	return &GeminiTranslator{endpoint: ep}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (t *GeminiTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	payload := map[string]any{
		"contents": []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt.Text}}},
		},
		"generationConfig": map[string]any{
			"temperature": t.temperature,
		},
	}
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", url.PathEscape(t.model))
	auth := http.Header{"X-Goog-Api-Key": {t.apiKey}}

	var parsed struct {
		Candidates []struct {
			Content      geminiContent `json:"content"`
			FinishReason string        `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	if err := t.postJSON(ctx, path, auth, payload, &parsed); err != nil {
		return Result{}, err
	}
	if parsed.PromptFeedback.BlockReason != "" {
		return Result{}, fmt.Errorf("prompt blocked: %s", parsed.PromptFeedback.BlockReason)
	}
	if len(parsed.Candidates) == 0 {
		return Result{}, fmt.Errorf("empty generate candidates")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	sql, err := finishSQL(text.String())
	if err != nil {
		return Result{}, err
	}
	return Result{
		SQL:      sql,
		Provider: "gemini",
		Model:    t.model,
	}, nil
}
