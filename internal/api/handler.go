// Package api serves the chat HTTP API, health endpoints and the embedded UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlchat/sqlchat/internal/archive"
	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/chat"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/query"
)

const maxBodyBytes = 1 << 20

type ReadinessCheck func(ctx context.Context) error

// Pinger is satisfied by the query engine and the object store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ChatService interface {
	Ask(ctx context.Context, req chat.Request) (chat.Response, error)
	Execute(ctx context.Context, sql string) (query.Result, error)
	Catalog() nl2sql.Catalog
}

type ArchiveReader interface {
	Read(ctx context.Context, key string) ([]archive.Entry, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Chat              ChatService
	Prober            query.Prober
	Archive           ArchiveReader
	UI                http.Handler
}

type route struct {
	pattern string
	role    string
	handler http.HandlerFunc
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(cfg, deps, w, r)
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", observability.MaskSecrets(err.Error()), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	routes := []route{
		{pattern: "POST /api/chat", role: auth.RoleChat, handler: func(w http.ResponseWriter, r *http.Request) {
			handleChat(deps, w, r)
		}},
		{pattern: "POST /api/chat/export", role: auth.RoleExport, handler: func(w http.ResponseWriter, r *http.Request) {
			handleExport(deps, w, r)
		}},
		{pattern: "GET /api/test", handler: func(w http.ResponseWriter, r *http.Request) {
			handleTest(cfg, deps, w, r)
		}},
		{pattern: "GET /api/schema", handler: func(w http.ResponseWriter, r *http.Request) {
			handleSchema(deps, w, r)
		}},
		{pattern: "GET /api/archive", role: auth.RoleExport, handler: func(w http.ResponseWriter, r *http.Request) {
			handleArchive(deps, w, r)
		}},
	}

	protected := http.NewServeMux()
	for _, rt := range routes {
		var h http.Handler = rt.handler
		if rt.role != "" {
			h = auth.RequireRole(rt.role, h)
		}
		protected.Handle(rt.pattern, h)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, protectedHandler)
	}
	mux.HandleFunc("GET /api/{path...}", func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "Unknown API route", false, nil)
	})
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
	}
	if len(cfg.HTTP.CORSAllowedOrigins) > 0 {
		middlewares = append(middlewares, cors.Handler(cors.Options{
			AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Trace-ID"},
			ExposedHeaders: []string{"Content-Disposition", "X-Trace-ID"},
			MaxAge:         300,
		}))
	}
	middlewares = append(middlewares, observability.MetricsMiddleware)
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.RecoverMiddleware(deps.Logger))
	return chain(mux, middlewares...)
}

func CheckDatabase(pinger Pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if pinger == nil {
			return errors.New("database is not configured")
		}
		return pinger.Ping(ctx)
	}
}

func CheckModelConfigured(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.AI.Configured() {
			return errors.New("language model api key is not configured")
		}
		return nil
	}
}

func CheckObjectStore(pinger Pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if pinger == nil {
			return errors.New("object store is not configured")
		}
		return pinger.Ping(ctx)
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes {success:false, error, error_code, retryable, trace_id}
// plus any extra top-level fields.
func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	body := make(map[string]any, len(extra)+5)
	for key, value := range extra {
		body[key] = value
	}
	body["success"] = false
	body["error"] = message
	body["error_code"] = code
	body["retryable"] = retryable
	body["trace_id"] = observability.TraceIDFromContext(ctx)
	writeJSON(w, status, body)
}
