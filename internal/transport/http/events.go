package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/boxoffice/tickets/internal/domain"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// EventReader is the minimal interface needed by the event endpoints.
type EventReader interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
}

type eventResponse struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Date             string `json:"date"`
	Price            int64  `json:"price"`
	Capacity         int    `json:"capacity"`
	AvailableTickets int    `json:"available_tickets"`
}

func toEventResponse(e domain.Event) eventResponse {
	return eventResponse{
		ID:               e.ID,
		Name:             e.Name,
		Date:             e.Date.Format(domain.DateLayout),
		Price:            e.Price,
		Capacity:         e.Capacity,
		AvailableTickets: e.RemainingTickets,
	}
}

// HandleListEvents returns every event ordered by id.
func HandleListEvents(svc EventReader, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.ListEvents(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		resp := make([]eventResponse, 0, len(events))
		for _, e := range events {
			resp = append(resp, toEventResponse(e))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleGetEvent returns the event named by the {id} path variable.
func HandleGetEvent(svc EventReader, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, codeInvalidID, domain.ErrInvalidID.Error())
			return
		}
		event, err := svc.GetEvent(r.Context(), id)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toEventResponse(event))
	}
}

// PurchaseLister is the minimal interface needed to list purchases.
type PurchaseLister interface {
	ListPurchases(ctx context.Context) ([]domain.PurchaseRecord, error)
}

type purchaseRecordResponse struct {
	ID        string    `json:"id"`
	EventID   int64     `json:"event_id"`
	EventName string    `json:"event_name"`
	BuyerName string    `json:"buyer_name"`
	Qty       int       `json:"qty"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleListPurchases returns every purchase, newest first.
func HandleListPurchases(svc PurchaseLister, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.ListPurchases(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		resp := make([]purchaseRecordResponse, 0, len(records))
		for _, rec := range records {
			resp = append(resp, purchaseRecordResponse{
				ID:        rec.ID,
				EventID:   rec.EventID,
				EventName: rec.EventName,
				BuyerName: rec.BuyerName,
				Qty:       rec.Quantity,
				CreatedAt: rec.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
