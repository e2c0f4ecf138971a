package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestHealthHandler_OK(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	HealthHandler(nil, zerolog.Nop())(rec, req)

	res := rec.Result()
	if res.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}

	body := rec.Body.String()
	if body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestHealthHandler_StoreDown(t *testing.T) {
	t.Parallel()

	check := func(context.Context) error { return errors.New("connection refused") }
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	HealthHandler(check, zerolog.Nop())(rec, req)

	if rec.Code != 503 {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != codeStoreUnavailable {
		t.Fatalf("expected code %s, got %s", codeStoreUnavailable, resp.Code)
	}
}
