// Package chat turns a natural-language question into an executed SQL
// statement and a formatted result set.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

var (
	ErrEmptyMessage       = errors.New("message is required")
	ErrGenerate           = errors.New("generate sql")
	ErrModelNotConfigured = errors.New("language model is not configured")
)

// RejectedError is returned when the safety filter refuses a statement.
type RejectedError struct {
	GeneratedSQL string
	Rule         string
	Message      string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s (rule %s)", e.Message, e.Rule)
}

// Archiver stores a successful result set and returns the object key.
type Archiver interface {
	Archive(ctx context.Context, question, sql string, result query.Result) (string, error)
}

type Request struct {
	Message string
}

type Response struct {
	Question      string
	SQL           string
	Provider      string
	Model         string
	ExecutionTime time.Duration
	Results       Results
	ArchiveKey    string
}

type Options struct {
	Builder *nl2sql.PromptBuilder
	// Translator may be nil when no model is configured; Ask then fails with
	// ErrModelNotConfigured.
	Translator nl2sql.Translator
	Filter     *sqlguard.Filter
	Engine     query.Engine
	Archiver   Archiver
	Logger     *slog.Logger
}

type Service struct {
	builder    *nl2sql.PromptBuilder
	translator nl2sql.Translator
	filter     *sqlguard.Filter
	engine     query.Engine
	archiver   Archiver
	logger     *slog.Logger

	// outcome records chat request outcomes. Only Ask reports them.
	outcome func(string)
}

func NewService(opts Options) (*Service, error) {
	if opts.Builder == nil {
		return nil, fmt.Errorf("prompt builder is required")
	}
	if opts.Filter == nil {
		return nil, fmt.Errorf("safety filter is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		builder:    opts.Builder,
		translator: opts.Translator,
		filter:     opts.Filter,
		engine:     opts.Engine,
		archiver:   opts.Archiver,
		logger:     logger,
		outcome:    observability.ObserveChatOutcome,
	}, nil
}

func (s *Service) ModelConfigured() bool {
	return s.translator != nil
}

func (s *Service) Catalog() nl2sql.Catalog {
	return s.builder.Catalog()
}

func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	question := strings.TrimSpace(req.Message)
	prompt, err := s.builder.Build(question)
	if err != nil {
		s.outcome(observability.OutcomeInvalid)
		return Response{}, fmt.Errorf("%w: %w", ErrEmptyMessage, err)
	}
	if s.translator == nil {
		s.outcome(observability.OutcomeNotConfigured)
		return Response{}, ErrModelNotConfigured
	}
	traceID := observability.TraceIDFromContext(ctx)
	s.logger.InfoContext(ctx, "chat question", slog.String("trace_id", traceID), slog.String("question", question))

	start := time.Now()
	generated, err := s.translator.Translate(ctx, nl2sql.Request{Question: question, Prompt: prompt})
	observability.ObserveModelCall(generated.Provider, err, time.Since(start))
	if err != nil {
		s.outcome(observability.OutcomeModelError)
		s.logger.ErrorContext(ctx, "sql generation failed", slog.String("trace_id", traceID), slog.Any("error", err))
		return Response{}, fmt.Errorf("%w: %w", ErrGenerate, err)
	}
	s.logger.InfoContext(ctx, "generated sql",
		slog.String("trace_id", traceID),
		slog.String("provider", generated.Provider),
		slog.String("model", generated.Model),
		slog.String("statement_kind", string(prompt.Kind)),
		slog.String("sql", generated.SQL),
	)

	executed, err := s.admit(ctx, generated.SQL)
	if err != nil {
		s.outcome(observability.OutcomeRejected)
		return Response{}, err
	}

	result, err := s.run(ctx, executed)
	if err != nil {
		s.outcome(outcomeFor(err))
		return Response{}, err
	}

	response := Response{
		Question:      question,
		SQL:           executed,
		Provider:      generated.Provider,
		Model:         generated.Model,
		ExecutionTime: result.Duration,
		Results:       FormatResults(result),
	}

	if s.archiver != nil && len(result.Rows) > 0 {
		key, err := s.archiver.Archive(ctx, question, executed, result)
		if err != nil {
			s.logger.WarnContext(ctx, "archive chat result failed", slog.String("trace_id", traceID), slog.Any("error", err))
		} else {
			response.ArchiveKey = key
		}
	}

	s.outcome(observability.OutcomeSuccess)
	return response, nil
}

// Execute runs an already generated statement through the safety filter and
// the engine.
func (s *Service) Execute(ctx context.Context, sql string) (query.Result, error) {
	if strings.TrimSpace(sql) == "" {
		return query.Result{}, ErrEmptyMessage
	}
	executed, err := s.admit(ctx, sql)
	if err != nil {
		return query.Result{}, err
	}
	return s.run(ctx, executed)
}

// admit checks the normalized statement and returns the sanitized original
// for execution.
func (s *Service) admit(ctx context.Context, raw string) (string, error) {
	verdict := s.filter.Check(sqlguard.Normalize(raw))
	if !verdict.Allowed {
		observability.ObserveSafetyRejection(string(s.filter.Policy()), verdict.Rule)
		s.logger.WarnContext(ctx, "generated sql rejected",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("policy", string(s.filter.Policy())),
			slog.String("rule", verdict.Rule),
		)
		return "", &RejectedError{GeneratedSQL: raw, Rule: verdict.Rule, Message: s.filter.RejectionMessage()}
	}
	return s.filter.Sanitize(raw), nil
}

func (s *Service) run(ctx context.Context, sql string) (query.Result, error) {
	result, err := s.engine.Execute(ctx, query.Request{SQL: sql})
	if err != nil {
		s.logger.ErrorContext(ctx, "execute sql failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("kind", query.KindOf(err).String()),
			slog.Any("error", err),
		)
		return query.Result{}, err
	}
	observability.ObserveQuery(len(result.Rows), result.Duration)
	s.logger.InfoContext(ctx, "executed sql",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Int("rows", len(result.Rows)),
		slog.Int64("rows_affected", result.RowsAffected),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func outcomeFor(err error) string {
	switch query.KindOf(err) {
	case query.KindSchemaMissing:
		return observability.OutcomeSchemaMissing
	case query.KindSyntax:
		return observability.OutcomeSyntaxError
	default:
		return observability.OutcomeDatabaseError
	}
}
