package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/observability"
)

// handleHealth is a liveness probe: it always answers 200 and reports the
// database state in the body.
func handleHealth(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	db := map[string]any{"ok": false}
	status := "degraded"
	if deps.Prober == nil {
		db["error"] = "database is not configured"
	} else if info, err := deps.Prober.Probe(r.Context()); err != nil {
		db["error"] = observability.MaskSecrets(err.Error())
	} else {
		status = "ok"
		db["ok"] = true
		db["info"] = map[string]any{"now": info.Now, "db": info.Database, "version": info.Version}
		db["encoding"] = info.Encoding
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"service":      cfg.Service.Name,
		"time":         time.Now().UTC(),
		"db":           db,
		"database_url": observability.MaskDSN(cfg.Database.DSN),
	})
}

func handleTest(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Prober == nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_UNAVAILABLE", "database is not configured", false, nil)
		return
	}
	info, err := deps.Prober.Probe(r.Context())
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "database probe failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.Any("error", err),
			)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_UNAVAILABLE", observability.MaskSecrets(err.Error()), true, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Backend is working correctly!",
		"database": map[string]any{
			"connected":    true,
			"current_time": info.Now,
			"version":      info.Version,
		},
		"ai": map[string]any{
			"provider":           cfg.AI.Provider,
			"model":              cfg.AI.Model,
			"api_key_configured": cfg.AI.Configured(),
		},
	})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.Chat.Catalog())
}
