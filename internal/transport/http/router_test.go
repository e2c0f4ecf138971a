package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boxoffice/tickets/internal/app"
	"github.com/boxoffice/tickets/internal/clock"
	"github.com/boxoffice/tickets/internal/storage/memory"
	"github.com/rs/zerolog"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.New()
	admin := app.NewAdminService(store, nil)
	if _, err := admin.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	clk := clock.NewStepping(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), time.Second)
	return NewRouter(Services{
		Catalog:  app.NewCatalogService(store),
		Purchase: app.NewPurchaseService(store, clk),
		Admin:    admin,
	}, []string{"http://localhost:5173"}, zerolog.Nop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PurchaseFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var events []eventResponse
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 3 || events[0].Name != "Konser A - Pop Night" || events[0].AvailableTickets != 100 {
		t.Fatalf("unexpected seeded events %+v", events)
	}

	rec = do(t, h, http.MethodPost, "/purchase", `{"eventId":1,"buyerName":"  Ann ","qty":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var receipt receiptResponse
	if err := json.NewDecoder(rec.Body).Decode(&receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.BuyerName != "Ann" || receipt.RemainingTickets != 98 || receipt.TotalPrice != 300000 || receipt.ID == "" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	rec = do(t, h, http.MethodPost, "/purchases", `{"event_id":3,"buyer_name":"Budi","quantity":51}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	declined := decodeError(t, rec)
	if declined.Code != codeInsufficientTickets || declined.Requested == nil || *declined.Requested != 51 || *declined.Remaining != 50 {
		t.Fatalf("unexpected decline %+v", declined)
	}

	rec = do(t, h, http.MethodPost, "/purchase", `{"eventId":42,"buyerName":"Ann","qty":1}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/purchase", `{"eventId":1,"buyerName":"Ann","qty":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/events/1", "")
	var event eventResponse
	if err := json.NewDecoder(rec.Body).Decode(&event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.AvailableTickets != 98 {
		t.Fatalf("expected 98 tickets left, got %d", event.AvailableTickets)
	}

	rec = do(t, h, http.MethodGet, "/purchases", "")
	var purchases []purchaseRecordResponse
	if err := json.NewDecoder(rec.Body).Decode(&purchases); err != nil {
		t.Fatalf("decode purchases: %v", err)
	}
	if len(purchases) != 1 || purchases[0].ID != receipt.ID || purchases[0].EventName != "Konser A - Pop Night" {
		t.Fatalf("unexpected purchases %+v", purchases)
	}
}

func TestRouter_AdminEventIsPurchasable(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/admin/events", `{"name":"Konser D - Indie","date":"2026-06-01","price":99000,"capacity":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created eventResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode event: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	body := `{"eventId":` + jsonInt(created.ID) + `,"buyerName":"racer","qty":1}`
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := do(t, h, http.MethodPost, "/purchase", body)
			mu.Lock()
			statuses[rec.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if statuses[http.StatusCreated] != 1 || statuses[http.StatusConflict] != 1 {
		t.Fatalf("expected one winner and one decline, got %v", statuses)
	}
}

func TestRouter_UnknownRouteAndMethod(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/holds", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != codeNotFound {
		t.Fatalf("expected JSON 404, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/events", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected health ok, got %d %q", rec.Code, rec.Body.String())
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
