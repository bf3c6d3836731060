package nl2sql

import (
	"context"
	"fmt"
	"net/http"
)

const openAISystemPrompt = "You translate questions about a relational database into exactly one SQL statement. " +
	"Return ONLY SQL. No markdown, no explanation."

// OpenAITranslator speaks the chat completions API, so it also works against
// OpenAI-compatible gateways.
type OpenAITranslator struct {
	endpoint
}

func NewOpenAITranslator(cfg ClientConfig) (*OpenAITranslator, error) {
	ep, err := newEndpoint(cfg, "gpt-4o-mini")
	if err != nil {
		return nil, err
	}
	return &OpenAITranslator{endpoint: ep}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	payload := chatCompletionRequest{
		Model: t.model,
		Messages: []chatMessage{
			{Role: "system", Content: openAISystemPrompt},
			{Role: "user", Content: req.Prompt.Text},
		},
		Temperature: t.temperature,
	}
	auth := http.Header{"Authorization": {"Bearer " + t.apiKey}}

	var completion chatCompletionResponse
	if err := t.postJSON(ctx, "/v1/chat/completions", auth, payload, &completion); err != nil {
		return Result{}, err
	}
	if len(completion.Choices) == 0 {
		return Result{}, fmt.Errorf("completion has no choices")
	}
	sql, err := finishSQL(completion.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	return Result{SQL: sql, Provider: "openai", Model: t.model}, nil
}
