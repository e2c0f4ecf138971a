package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidQuantity     = errors.New("quantity must be a positive integer")
	ErrBuyerNameRequired   = errors.New("buyer name required")
	ErrBuyerNameTooLong    = errors.New("buyer name too long")
	ErrEventNameRequired   = errors.New("event name required")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidPrice        = errors.New("price must not be negative")
	ErrInvalidCapacity     = errors.New("capacity must not be negative")
	ErrEventNotFound       = errors.New("event not found")
	ErrInsufficientTickets = errors.New("not enough tickets available")
	ErrStoreBusy           = errors.New("store busy")
	ErrPurchaseIDConflict  = errors.New("purchase id already used for a different request")
)

var validationErrors = []error{
	ErrInvalidID,
	ErrInvalidQuantity,
	ErrBuyerNameRequired,
	ErrBuyerNameTooLong,
	ErrEventNameRequired,
	ErrInvalidDate,
	ErrInvalidPrice,
	ErrInvalidCapacity,
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// DeclinedError is returned when an event has fewer tickets left than requested.
// It matches ErrInsufficientTickets.
type DeclinedError struct {
	EventID   int64
	EventName string
	Requested int
	Remaining int
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("%s: requested %d, remaining %d", ErrInsufficientTickets, e.Requested, e.Remaining)
}

func (e *DeclinedError) Is(target error) bool {
	return target == ErrInsufficientTickets
}

// BusyError wraps a backend conflict that is safe to retry. It matches ErrStoreBusy
// and unwraps to the driver error.
type BusyError struct {
	Op  string
	Err error
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrStoreBusy, e.Err)
}

func (e *BusyError) Is(target error) bool {
	return target == ErrStoreBusy
}

func (e *BusyError) Unwrap() error {
	return e.Err
}
