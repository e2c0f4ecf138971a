package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/boxoffice/tickets/internal/app"
	"github.com/boxoffice/tickets/internal/domain"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 16

// Purchaser is the minimal interface needed to buy tickets.
type Purchaser interface {
	Purchase(ctx context.Context, in app.PurchaseInput) (domain.Receipt, error)
}

// purchaseRequest accepts both the camelCase names and their snake_case
// aliases. When both are present the camelCase value wins.
type purchaseRequest struct {
	EventID      *int64  `json:"eventId"`
	EventIDAlt   *int64  `json:"event_id"`
	BuyerName    *string `json:"buyerName"`
	BuyerNameAlt *string `json:"buyer_name"`
	Qty          *int    `json:"qty"`
	QtyAlt       *int    `json:"quantity"`
}

func (r purchaseRequest) input() app.PurchaseInput {
	var in app.PurchaseInput
	switch {
	case r.EventID != nil:
		in.EventID = *r.EventID
	case r.EventIDAlt != nil:
		in.EventID = *r.EventIDAlt
	}
	switch {
	case r.BuyerName != nil:
		in.BuyerName = *r.BuyerName
	case r.BuyerNameAlt != nil:
		in.BuyerName = *r.BuyerNameAlt
	}
	switch {
	case r.Qty != nil:
		in.Quantity = *r.Qty
	case r.QtyAlt != nil:
		in.Quantity = *r.QtyAlt
	}
	return in
}

type receiptResponse struct {
	ID               string    `json:"id"`
	EventID          int64     `json:"event_id"`
	Event            string    `json:"event"`
	BuyerName        string    `json:"buyer_name"`
	Qty              int       `json:"qty"`
	UnitPrice        int64     `json:"unit_price"`
	TotalPrice       int64     `json:"total_price"`
	RemainingTickets int       `json:"remaining_tickets"`
	CreatedAt        time.Time `json:"created_at"`
}

// HandlePurchase returns an HTTP handler that buys tickets for one event.
func HandlePurchase(svc Purchaser, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req purchaseRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		receipt, err := svc.Purchase(r.Context(), req.input())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, receiptResponse{
			ID:               receipt.ID,
			EventID:          receipt.EventID,
			Event:            receipt.EventName,
			BuyerName:        receipt.BuyerName,
			Qty:              receipt.Quantity,
			UnitPrice:        receipt.UnitPrice,
			TotalPrice:       receipt.TotalPrice(),
			RemainingTickets: receipt.RemainingTickets,
			CreatedAt:        receipt.CreatedAt,
		})
	}
}
