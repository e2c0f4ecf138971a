package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestRequestLogger_LogsStatusAndPath(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/purchase", nil)
	rec := httptest.NewRecorder()

	RequestLogger(handler, logger).ServeHTTP(rec, req)

	entry := decodeLogLine(t, buf)
	if entry["method"] != "POST" {
		t.Fatalf("expected method in log, got %v", entry)
	}
	if entry["path"] != "/purchase" {
		t.Fatalf("expected path in log, got %v", entry)
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Fatalf("expected status in log, got %v", entry)
	}
	if _, ok := entry["duration"]; !ok {
		t.Fatalf("expected duration in log, got %v", entry)
	}
}

func TestRequestLogger_DefaultsTo200(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	RequestLogger(handler, logger).ServeHTTP(rec, req)

	if entry := decodeLogLine(t, buf); entry["status"] != float64(http.StatusOK) {
		t.Fatalf("expected default status 200 in log, got %v", entry)
	}
}

func TestRecoverer_Returns500(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()

	Recoverer(handler, zerolog.New(buf)).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != codeInternalError {
		t.Fatalf("expected code %s, got %s", codeInternalError, resp.Code)
	}
	if entry := decodeLogLine(t, buf); entry["panic"] != "boom" {
		t.Fatalf("expected panic value in log, got %v", entry)
	}
}

func TestRecoverer_KeepsWrittenStatus(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()

	Recoverer(handler, zerolog.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
}
