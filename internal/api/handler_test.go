package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sqlchat/sqlchat/internal/archive"
	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/chat"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/storage"
)

type fakeChat struct {
	response chat.Response
	result   query.Result
	err      error
	asked    []string
	executed []string
}

func (f *fakeChat) Ask(_ context.Context, req chat.Request) (chat.Response, error) {
	f.asked = append(f.asked, req.Message)
	return f.response, f.err
}

func (f *fakeChat) Execute(_ context.Context, sql string) (query.Result, error) {
	f.executed = append(f.executed, sql)
	return f.result, f.err
}

func (f *fakeChat) Catalog() nl2sql.Catalog {
	return nl2sql.DefaultCatalog()
}

type fakeProber struct {
	info query.DatabaseInfo
	err  error
}

func (f fakeProber) Probe(context.Context) (query.DatabaseInfo, error) {
	return f.info, f.err
}

type fakeArchive struct {
	entries []archive.Entry
	err     error
}

func (f fakeArchive) Read(context.Context, string) ([]archive.Entry, error) {
	return f.entries, f.err
}

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("sqlchat-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v; body=%s", err, rr.Body.String())
	}
	return body
}

func TestHealthEndpointReportsDatabase(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"DATABASE_URL": "postgres://app:hunter2@db:5432/shop"})
	now := time.Date(2026, time.October, 17, 8, 0, 0, 0, time.UTC)
	h := NewHandler(cfg, Dependencies{Prober: fakeProber{info: query.DatabaseInfo{Now: now, Database: "shop", Version: "PostgreSQL 16", Encoding: "UTF8"}}})

	rr := serve(h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "ok" {
		t.Fatalf("status = %v", body["status"])
	}
	db := body["db"].(map[string]any)
	if db["ok"] != true || db["encoding"] != "UTF8" {
		t.Fatalf("db = %v", db)
	}
	if info := db["info"].(map[string]any); info["db"] != "shop" {
		t.Fatalf("info = %v", info)
	}
	url := body["database_url"].(string)
	if strings.Contains(url, "hunter2") || !strings.Contains(url, "********") {
		t.Fatalf("database_url = %q", url)
	}
}

func TestHealthEndpointStays200WhenDatabaseIsDown(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Prober: fakeProber{err: errors.New("dial tcp: password=secret refused")}})

	rr := serve(h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	db := body["db"].(map[string]any)
	if db["ok"] != false || strings.Contains(db["error"].(string), "secret") {
		t.Fatalf("db = %v", db)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := serve(h, http.MethodGet, "/ready", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "NOT_READY" {
		t.Fatalf("body = %v", body)
	}
}

func TestChatSuccess(t *testing.T) {
	svc := &fakeChat{response: chat.Response{
		SQL:           "SELECT name FROM products",
		ExecutionTime: 42 * time.Millisecond,
		Results:       chat.Results{Count: 1, Message: "Found 1 result(s).", Data: []map[string]any{{"name": "Laptop"}}, Columns: []string{"name"}},
	}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Chat: svc})

	rr := serve(h, http.MethodPost, "/api/chat", `{"message":"Show all products"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true || body["query"] != "SELECT name FROM products" {
		t.Fatalf("body = %v", body)
	}
	if body["execution_time_ms"] != float64(42) {
		t.Fatalf("execution_time_ms = %v", body["execution_time_ms"])
	}
	results := body["results"].(map[string]any)
	if results["count"] != float64(1) || results["message"] != "Found 1 result(s)." {
		t.Fatalf("results = %v", results)
	}
	if _, ok := body["archive_key"]; ok {
		t.Fatal("archive_key should be omitted when archiving is off")
	}
}

func TestChatRequiresMessage(t *testing.T) {
	svc := &fakeChat{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Chat: svc})

	for _, payload := range []string{`{}`, `{"message":"   "}`, `not json`} {
		rr := serve(h, http.MethodPost, "/api/chat", payload)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", payload, rr.Code)
		}
		body := decodeBody(t, rr)
		if body["success"] != false || body["example"] != `{"message": "Show all products"}` {
			t.Fatalf("%s: body = %v", payload, body)
		}
	}
	if len(svc.asked) != 0 {
		t.Fatal("pipeline should not run without a message")
	}
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		text   string
	}{
		{
			name:   "rejected",
			err:    &chat.RejectedError{GeneratedSQL: "DROP TABLE users", Rule: "verb", Message: "Generated query failed safety validation. Only SELECT queries are allowed."},
			status: http.StatusBadRequest,
			code:   "UNSAFE_SQL",
			text:   "Only SELECT queries are allowed",
		},
		{
			name:   "schema",
			err:    &query.Error{Kind: query.KindSchemaMissing, Err: errors.New(`relation "ghosts" does not exist`)},
			status: http.StatusBadRequest,
			code:   "SCHEMA_MISSING",
			text:   "Database table not found",
		},
		{
			name:   "syntax",
			err:    &query.Error{Kind: query.KindSyntax, Err: errors.New(`syntax error at or near "FORM"`)},
			status: http.StatusBadRequest,
			code:   "SQL_SYNTAX",
			text:   "Generated SQL has syntax errors.",
		},
		{
			name:   "model",
			err:    errors.Join(chat.ErrGenerate, errors.New("upstream 500")),
			status: http.StatusInternalServerError,
			code:   "MODEL_ERROR",
			text:   "Failed to generate SQL query",
		},
		{
			name:   "not configured",
			err:    chat.ErrModelNotConfigured,
			status: http.StatusServiceUnavailable,
			code:   "MODEL_NOT_CONFIGURED",
			text:   "not configured",
		},
		{
			name:   "generic database",
			err:    &query.Error{Kind: query.KindGeneric, Err: errors.New("connection reset")},
			status: http.StatusInternalServerError,
			code:   "INTERNAL",
			text:   "Internal server error",
		},
	}
	for _, tc := range cases {
		h := NewHandler(loadConfig(t, nil), Dependencies{Chat: &fakeChat{err: tc.err}})
		rr := serve(h, http.MethodPost, "/api/chat", `{"message":"Show ghosts"}`)
		if rr.Code != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, rr.Code, tc.status)
		}
		body := decodeBody(t, rr)
		if body["error_code"] != tc.code || !strings.Contains(body["error"].(string), tc.text) {
			t.Fatalf("%s: body = %v", tc.name, body)
		}
		if _, ok := body["trace_id"]; !ok {
			t.Fatalf("%s: trace_id missing", tc.name)
		}
	}
}

func TestChatRejectionCarriesGeneratedSQL(t *testing.T) {
	svc := &fakeChat{err: &chat.RejectedError{GeneratedSQL: "SELECT viewed_at FROM sessions", Rule: "keyword:view", Message: "rejected"}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Chat: svc})

	rr := serve(h, http.MethodPost, "/api/chat", `{"message":"When were sessions viewed?"}`)
	body := decodeBody(t, rr)
	if body["generated_sql"] != "SELECT viewed_at FROM sessions" || body["reason"] != "Query contains potentially dangerous operations" {
		t.Fatalf("body = %v", body)
	}
	want := map[string]bool{
		"success": true, "error": true, "generated_sql": true, "reason": true,
		"error_code": true, "retryable": true, "trace_id": true,
	}
	for key := range body {
		if !want[key] {
			t.Fatalf("unexpected field %q in rejection body %v", key, body)
		}
	}
	if strings.Contains(rr.Body.String(), "keyword:view") {
		t.Fatalf("rejection body exposes the filter rule: %v", body)
	}
}

func TestChatDoesNotLeakGenericDatabaseErrors(t *testing.T) {
	svc := &fakeChat{err: &query.Error{Kind: query.KindGeneric, Err: errors.New("permission denied for table salaries")}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Chat: svc})

	rr := serve(h, http.MethodPost, "/api/chat", `{"message":"Show salaries"}`)
	if strings.Contains(rr.Body.String(), "salaries") {
		t.Fatalf("body leaks driver error: %s", rr.Body.String())
	}
}

func TestExportStreamsCSV(t *testing.T) {
	svc := &fakeChat{result: query.Result{
		Columns: []string{"name", "price", "note"},
		Rows:    [][]any{{"Laptop", "1299.99", nil}, {"Desk, oak", int64(300), "a \"quote\""}},
	}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Chat: svc})

	rr := serve(h, http.MethodPost, "/api/chat/export", `{"sql":"SELECT name, price, note FROM products"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="query-results.csv"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	want := "name,price,note\nLaptop,1299.99,\n\"Desk, oak\",300,\"a \"\"quote\"\"\"\n"
	if rr.Body.String() != want {
		t.Fatalf("body = %q, want %q", rr.Body.String(), want)
	}
	if len(svc.executed) != 1 {
		t.Fatalf("executed = %v", svc.executed)
	}
}

func TestExportRequiresSQL(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Chat: &fakeChat{}})
	rr := serve(h, http.MethodPost, "/api/chat/export", `{"sql":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTestEndpoint(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SQLCHAT_AI_API_KEY": "k"})
	h := NewHandler(cfg, Dependencies{Prober: fakeProber{info: query.DatabaseInfo{Now: time.Now(), Version: "PostgreSQL 16"}}})

	rr := serve(h, http.MethodGet, "/api/test", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["message"] != "Backend is working correctly!" {
		t.Fatalf("body = %v", body)
	}
	ai := body["ai"].(map[string]any)
	if ai["api_key_configured"] != true || ai["model"] != "gpt-4o-mini" {
		t.Fatalf("ai = %v", ai)
	}
	database := body["database"].(map[string]any)
	if database["connected"] != true || database["version"] != "PostgreSQL 16" {
		t.Fatalf("database = %v", database)
	}
}

func TestTestEndpointReturns500WhenProbeFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Prober: fakeProber{err: errors.New("connection refused")}})
	rr := serve(h, http.MethodGet, "/api/test", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["success"] != false {
		t.Fatalf("body = %v", body)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Chat: &fakeChat{}})
	rr := serve(h, http.MethodGet, "/api/schema", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if tables, ok := body["tables"].([]any); !ok || len(tables) != 4 {
		t.Fatalf("tables = %v", body["tables"])
	}
}

func TestArchiveEndpoint(t *testing.T) {
	key := "chat-results/date=2026-10-17/abc.parquet"
	entries := []archive.Entry{{Question: "q", SQL: "SELECT 1", Row: map[string]any{"x": float64(1)}}}

	h := NewHandler(loadConfig(t, nil), Dependencies{Archive: fakeArchive{entries: entries}})
	rr := serve(h, http.MethodGet, "/api/archive?key="+key, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["count"] != float64(1) {
		t.Fatalf("body = %v", body)
	}

	if rr := serve(h, http.MethodGet, "/api/archive?key=../x", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid key status = %d", rr.Code)
	}

	missing := NewHandler(loadConfig(t, nil), Dependencies{Archive: fakeArchive{err: storage.ErrObjectNotFound}})
	if rr := serve(missing, http.MethodGet, "/api/archive?key="+key, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rr.Code)
	}

	disabled := NewHandler(loadConfig(t, nil), Dependencies{})
	if rr := serve(disabled, http.MethodGet, "/api/archive?key="+key, ""); rr.Code != http.StatusNotImplemented {
		t.Fatalf("disabled status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SQLCHAT_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:ui:chat")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	svc := &fakeChat{response: chat.Response{SQL: "SELECT 1", Results: chat.FormatResults(query.Result{})}}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Chat:           svc,
	})

	if rr := serve(h, http.MethodPost, "/api/chat", `{"message":"hi"}`); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/chat/export", strings.NewReader(`{"sql":"SELECT 1"}`))
	req.Header.Set("X-API-Key", "k1")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("export without role status = %d", rr.Code)
	}

	if rr := serve(h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("health should stay public, status = %d", rr.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SQLCHAT_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Chat: &fakeChat{}})
	if rr := serve(h, http.MethodPost, "/api/chat", `{"message":"hi"}`); rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCORSPreflightForUIOrigin(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Chat: &fakeChat{}})

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckModelConfigured(t *testing.T) {
	if err := CheckModelConfigured(loadConfig(t, nil))(context.Background()); err == nil {
		t.Fatal("expected error without api key")
	}
	cfg := loadConfig(t, map[string]string{"SQLCHAT_AI_API_KEY": "k"})
	if err := CheckModelConfigured(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckModelConfigured() error = %v", err)
	}
}

func TestUIHandlerServesNonAPIRoutes(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		UI: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>ok</html>")
		}),
	})

	rr := serve(h, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "<html>") {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if rr := serve(h, http.MethodGet, "/api/unknown", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown api route status = %d", rr.Code)
	}
}

func TestPanicsBecomeJSON500(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		UI: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}),
	})
	rr := serve(h, http.MethodGet, "/", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "Internal server error" {
		t.Fatalf("body = %v", body)
	}
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
