package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sqlchat/sqlchat/internal/chat"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

const (
	messageRequired = "Message is required"
	messageExample  = `{"message": "Show all products"}`
	schemaMissing   = "Database table not found. Please check if your database schema is set up correctly."
	syntaxInvalid   = "Generated SQL has syntax errors."
	generateFailed  = "Failed to generate SQL query"
	internalError   = "Internal server error"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Success         bool         `json:"success"`
	Query           string       `json:"query"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
	Results         chat.Results `json:"results"`
	Provider        string       `json:"provider,omitempty"`
	Model           string       `json:"model,omitempty"`
	ArchiveKey      string       `json:"archive_key,omitempty"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return
	}

	var request chatRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body", false, map[string]any{"example": messageExample})
		return
	}
	if strings.TrimSpace(request.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", messageRequired, false, map[string]any{"example": messageExample})
		return
	}

	response, err := deps.Chat.Ask(r.Context(), chat.Request{Message: request.Message})
	if err != nil {
		writeChatError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Success:         true,
		Query:           response.SQL,
		ExecutionTimeMs: response.ExecutionTime.Milliseconds(),
		Results:         response.Results,
		Provider:        response.Provider,
		Model:           response.Model,
		ArchiveKey:      response.ArchiveKey,
	})
}

// writeChatError maps pipeline errors to status codes. Driver messages are
// returned for schema and syntax errors only.
func writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var rejected *chat.RejectedError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(ctx, w, http.StatusBadRequest, "MESSAGE_REQUIRED", messageRequired, false, map[string]any{"example": messageExample})
		return
	case errors.Is(err, chat.ErrModelNotConfigured):
		writeError(ctx, w, http.StatusServiceUnavailable, "MODEL_NOT_CONFIGURED", "AI model is not configured", false, nil)
		return
	case errors.As(err, &rejected):
		writeError(ctx, w, http.StatusBadRequest, "UNSAFE_SQL", rejected.Message, false, map[string]any{
			"generated_sql": rejected.GeneratedSQL,
			"reason":        sqlguard.RejectionReason,
		})
		return
	case errors.Is(err, chat.ErrGenerate):
		writeError(ctx, w, http.StatusInternalServerError, "MODEL_ERROR", generateFailed, true, nil)
		return
	}

	var queryErr *query.Error
	if !errors.As(err, &queryErr) {
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", internalError, false, nil)
		return
	}
	switch queryErr.Kind {
	case query.KindSchemaMissing:
		writeError(ctx, w, http.StatusBadRequest, "SCHEMA_MISSING", schemaMissing, false, map[string]any{"details": queryErr.Err.Error()})
	case query.KindSyntax:
		writeError(ctx, w, http.StatusBadRequest, "SQL_SYNTAX", syntaxInvalid, false, map[string]any{"details": queryErr.Err.Error()})
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", internalError, false, nil)
	}
}
