package domain

import (
	"strings"
	"time"
)

// DateLayout is the wire and storage format of an event date.
const DateLayout = "2006-01-02"

// Event is a sellable occasion with a fixed issued capacity.
type Event struct {
	ID               int64
	Name             string
	Date             time.Time
	Price            int64
	Capacity         int
	RemainingTickets int
}

// NewEvent carries the fields needed to create an event; ID is assigned by the store.
type NewEvent struct {
	Name     string
	Date     time.Time
	Price    int64
	Capacity int
}

// Validate checks the invariants of a new event.
func (e NewEvent) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEventNameRequired
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if e.Price < 0 {
		return ErrInvalidPrice
	}
	if e.Capacity < 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// ParseDate parses a calendar date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}
