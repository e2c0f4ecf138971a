package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/boxoffice/tickets/internal/app"
	"github.com/boxoffice/tickets/internal/domain"
	"github.com/rs/zerolog"
)

// EventCreator is the minimal interface needed for admin event creation.
type EventCreator interface {
	CreateEvent(ctx context.Context, in app.CreateEventInput) (domain.Event, error)
}

type createEventRequest struct {
	Name     string `json:"name"`
	Date     string `json:"date"`
	Price    int64  `json:"price"`
	Capacity int    `json:"capacity"`
}

// HandleCreateEvent returns an HTTP handler that issues a new event.
func HandleCreateEvent(svc EventCreator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createEventRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		date, err := domain.ParseDate(req.Date)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		event, err := svc.CreateEvent(r.Context(), app.CreateEventInput{
			Name:     req.Name,
			Date:     date,
			Price:    req.Price,
			Capacity: req.Capacity,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toEventResponse(event))
	}
}
