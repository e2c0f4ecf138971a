package domain

import "time"

// Purchase is an immutable record of tickets sold against one event.
type Purchase struct {
	ID        string
	EventID   int64
	BuyerName string
	Quantity  int
	CreatedAt time.Time
}

// SameRequest reports whether q asks for the same tickets as p. Timestamps
// are ignored since each retry stamps its own.
func (p Purchase) SameRequest(q Purchase) bool {
	return p.EventID == q.EventID && p.BuyerName == q.BuyerName && p.Quantity == q.Quantity
}

// PurchaseRecord is a purchase joined with the name of its event.
type PurchaseRecord struct {
	Purchase
	EventName string
}

// Receipt is returned for an accepted purchase. It carries the event context
// captured inside the purchase transaction.
type Receipt struct {
	Purchase
	EventName        string
	EventDate        time.Time
	UnitPrice        int64
	RemainingTickets int
}

// TotalPrice is the unit price times the quantity bought.
func (r Receipt) TotalPrice() int64 {
	return r.UnitPrice * int64(r.Quantity)
}
