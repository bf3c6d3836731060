// Package producer drives the chat API with generated shop questions, for
// demos and for exercising dashboards and alerts.
package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	generator *Generator
	asked     int
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Success         bool   `json:"success"`
	Query           string `json:"query"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Results         struct {
		Count int `json:"count"`
	} `json:"results"`
	ArchiveKey string `json:"archive_key"`
	Error      string `json:"error"`
	ErrorCode  string `json:"error_code"`
}

// Outcome is what one question produced: the generated SQL and row count on
// success, the error code otherwise.
type Outcome struct {
	Question  string
	Status    int
	SQL       string
	Rows      int
	ErrorCode string
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Service{
		cfg:       cfg,
		log:       logger,
		http:      client,
		generator: NewGenerator(cfg.Seed, cfg.IncludeMutations),
	}, nil
}

// Run asks one question per interval until the context ends or MaxQuestions
// have been asked. Failed questions are logged and do not stop the run.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		outcome, err := s.askOnce(ctx)
		if err != nil {
			s.log.Error("demo question failed", slog.String("question", outcome.Question), slog.Any("error", err))
		} else {
			s.logOutcome(outcome)
		}
		if s.cfg.MaxQuestions > 0 && s.asked >= s.cfg.MaxQuestions {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) askOnce(ctx context.Context) (Outcome, error) {
	question := s.generator.NextQuestion()
	s.asked++
	outcome := Outcome{Question: question}

	var response chatResponse
	status, body, err := s.doJSON(ctx, http.MethodPost, "/api/chat", chatRequest{Message: question}, &response)
	if err != nil {
		return outcome, fmt.Errorf("chat request failed: %w", err)
	}
	outcome.Status = status
	if status != http.StatusOK {
		outcome.ErrorCode = response.ErrorCode
		// a 4xx with an error code is the service refusing the question
		if status >= 500 || outcome.ErrorCode == "" {
			return outcome, fmt.Errorf("chat request status %d: %s", status, strings.TrimSpace(string(body)))
		}
		return outcome, nil
	}
	outcome.SQL = response.Query
	outcome.Rows = response.Results.Count
	return outcome, nil
}

func (s *Service) logOutcome(outcome Outcome) {
	if outcome.ErrorCode != "" {
		s.log.Warn("demo question refused",
			slog.String("question", outcome.Question),
			slog.Int("status", outcome.Status),
			slog.String("error_code", outcome.ErrorCode),
		)
		return
	}
	s.log.Info("demo question answered",
		slog.String("question", outcome.Question),
		slog.String("sql", outcome.SQL),
		slog.Int("rows", outcome.Rows),
		slog.Int64("sequence", s.generator.Sequence()),
	)
}

func (s *Service) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) (int, []byte, error) {
	var payload io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	if responseBody != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, responseBody); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}
