package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boxoffice/tickets/internal/domain"
	"github.com/rs/zerolog"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidID           = "invalid_id"
	codeInvalidQuantity     = "invalid_quantity"
	codeBuyerNameRequired   = "buyer_name_required"
	codeBuyerNameTooLong    = "buyer_name_too_long"
	codeEventNameRequired   = "event_name_required"
	codeInvalidDate         = "invalid_date"
	codeInvalidPrice        = "invalid_price"
	codeInvalidCapacity     = "invalid_capacity"
	codeEventNotFound       = "event_not_found"
	codeInsufficientTickets = "insufficient_tickets"
	codeStoreBusy           = "store_busy"
	codeStoreUnavailable    = "store_unavailable"
	codeInternalError       = "internal_error"
)

var validationCodes = []struct {
	err  error
	code string
}{
	{domain.ErrInvalidID, codeInvalidID},
	{domain.ErrInvalidQuantity, codeInvalidQuantity},
	{domain.ErrBuyerNameRequired, codeBuyerNameRequired},
	{domain.ErrBuyerNameTooLong, codeBuyerNameTooLong},
	{domain.ErrEventNameRequired, codeEventNameRequired},
	{domain.ErrInvalidDate, codeInvalidDate},
	{domain.ErrInvalidPrice, codeInvalidPrice},
	{domain.ErrInvalidCapacity, codeInvalidCapacity},
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Requested *int   `json:"requested,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError maps an application error to its status and code.
// Unexpected errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var declined *domain.DeclinedError
	switch {
	case domain.IsValidation(err):
		for _, vc := range validationCodes {
			if errors.Is(err, vc.err) {
				writeError(w, http.StatusBadRequest, vc.code, vc.err.Error())
				return
			}
		}
	case errors.Is(err, domain.ErrEventNotFound):
		writeError(w, http.StatusNotFound, codeEventNotFound, domain.ErrEventNotFound.Error())
		return
	case errors.As(err, &declined):
		requested, remaining := declined.Requested, declined.Remaining
		writeErrorResponse(w, http.StatusConflict, errorResponse{
			Error:     domain.ErrInsufficientTickets.Error(),
			Code:      codeInsufficientTickets,
			Requested: &requested,
			Remaining: &remaining,
		})
		return
	case errors.Is(err, domain.ErrStoreBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, codeStoreBusy, "store busy, try again")
		return
	}

	logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
