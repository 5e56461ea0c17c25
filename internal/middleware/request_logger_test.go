package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/youngacademy/platform/internal/logging"
)

func TestRequestLoggerAttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seenID string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seenID == "" {
		t.Fatal("expected request id in handler context")
	}
	if got := rec.Header().Get("X-Request-Id"); got != seenID {
		t.Fatalf("expected response header %q got %q", seenID, got)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["msg"] != "request completed" {
		t.Fatalf("unexpected log message %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Fatalf("expected first status to be logged, got %v", entry["status"])
	}
	if entry["request_id"] != seenID {
		t.Fatalf("expected request id %q in log, got %v", seenID, entry["request_id"])
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

func TestResponseWriterFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	var w http.ResponseWriter = &statusRecorder{ResponseWriter: rec}

	flusher, ok := w.(http.Flusher)
	if !ok {
		t.Fatal("wrapped writer must implement http.Flusher")
	}
	flusher.Flush()
	if !rec.Flushed {
		t.Fatal("expected flush to reach the underlying writer")
	}
}

func TestRequestLoggerReusesIncomingRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	const incoming = "6f1c2a9e-3b8d-4a61-9c55-0d2f7e4b1a90"
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := logging.RequestIDFromContext(r.Context()); got != incoming {
			t.Errorf("expected context request id %q got %q", incoming, got)
		}
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != incoming {
		t.Fatalf("expected response header %q got %q", incoming, got)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["bytes"] != float64(5) {
		t.Fatalf("expected 5 bytes logged, got %v", entry["bytes"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Fatalf("expected implicit 200, got %v", entry["status"])
	}
}

func TestRequestLoggerReplacesMalformedRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\nforged")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := rec.Header().Get(RequestIDHeader)
	if got == "" || got == "not-a-uuid\nforged" {
		t.Fatalf("expected a generated request id, got %q", got)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	cases := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{path: "/api/v1/courses", status: http.StatusOK, want: slog.LevelInfo},
		{path: "/healthz", status: http.StatusOK, want: slog.LevelDebug},
		{path: "/api/v1/auth/login", status: http.StatusUnauthorized, want: slog.LevelWarn},
		{path: "/healthz", status: http.StatusServiceUnavailable, want: slog.LevelError},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if got := levelFor(req, tc.status); got != tc.want {
			t.Fatalf("%s %d: expected %v got %v", tc.path, tc.status, tc.want, got)
		}
	}
}
