package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/storage"
)

func handleArchive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "result archive is not enabled", false, nil)
		return
	}
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if err := storage.ValidateArchivePath(key); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARCHIVE_KEY", "key must be an archive key returned by /api/chat", false, nil)
		return
	}

	entries, err := deps.Archive.Read(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "ARCHIVE_NOT_FOUND", "archived result not found", false, nil)
			return
		}
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "read archive failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", internalError, true, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"key":     key,
		"count":   len(entries),
		"entries": entries,
	})
}
