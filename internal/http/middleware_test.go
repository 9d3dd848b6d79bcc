package http

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequireAdminIdentity(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen string
	handler := RequireAdminIdentity(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AdminIdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("rejects missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/settings", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "管理者 ID") {
			t.Fatalf("expected localized message, got %s", rec.Body.String())
		}
	})

	t.Run("stores identity in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/settings", nil)
		req.Header.Set(AdminIdentityHeader, "  admin-001 ")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent || seen != "admin-001" {
			t.Fatalf("expected identity admin-001, got %q (status %d)", seen, rec.Code)
		}
	})
}

func TestRequestLoggerAssignsRequestID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Errorf("expected request logger in context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
	if !strings.Contains(buf.String(), "status=418") {
		t.Fatalf("expected status in completion log, got %s", buf.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("expected incoming request id to be kept, got %q", got)
	}
}

func TestRecovererReturns500(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestTranslateValidationMessage(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"is required":                       "必須項目です。",
		"must be at least 0":                "0 以上の値を指定してください。",
		"must be one of: all busy":          "次のいずれかを指定してください: all busy",
		"windows on day 1 must not overlap": "同じ曜日の時間帯が重複しています。",
		"something new":                     "something new",
	}
	for in, want := range tests {
		if got := translateValidationMessage(in); got != want {
			t.Fatalf("translateValidationMessage(%q) = %q, want %q", in, got, want)
		}
	}
}
