// Package memory is an in-process inventory store. Purchases against one event
// are serialized by that event's mutex; different events never contend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/boxoffice/tickets/internal/domain"
)

type Store struct {
	mu     sync.RWMutex
	events map[int64]*eventSlot
	nextID int64

	seq atomic.Int64
	// ids maps each recorded purchase id to its event id.
	ids sync.Map
}

type eventSlot struct {
	// mu is held across check, record and decrement.
	mu    sync.Mutex
	state atomic.Pointer[eventState]
}

// eventState is published as a whole so readers see the count and the
// purchases that produced it together.
type eventState struct {
	event     domain.Event
	purchases []storedPurchase
}

type storedPurchase struct {
	domain.Purchase
	seq            int64
	remainingAfter int
}

func New() *Store {
	return &Store{events: make(map[int64]*eventSlot)}
}

func (s *Store) CreateEvent(ctx context.Context, ne domain.NewEvent) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	if err := ne.Validate(); err != nil {
		return domain.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(ne), nil
}

func (s *Store) SeedIfEmpty(ctx context.Context, events []domain.NewEvent) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, ne := range events {
		if err := ne.Validate(); err != nil {
			return 0, fmt.Errorf("seed %q: %w", ne.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) > 0 {
		return 0, nil
	}
	for _, ne := range events {
		s.insertLocked(ne)
	}
	return len(events), nil
}

func (s *Store) insertLocked(ne domain.NewEvent) domain.Event {
	s.nextID++
	event := domain.Event{
		ID:               s.nextID,
		Name:             ne.Name,
		Date:             ne.Date,
		Price:            ne.Price,
		Capacity:         ne.Capacity,
		RemainingTickets: ne.Capacity,
	}
	slot := &eventSlot{}
	slot.state.Store(&eventState{event: event})
	s.events[event.ID] = slot
	return event
}

func (s *Store) slot(id int64) *eventSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events[id]
}

func (s *Store) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	slot := s.slot(id)
	if slot == nil {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return slot.state.Load().event, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	states := s.states()
	events := make([]domain.Event, 0, len(states))
	for _, st := range states {
		events = append(events, st.event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (s *Store) ListPurchases(ctx context.Context) ([]domain.PurchaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type row struct {
		rec domain.PurchaseRecord
		seq int64
	}
	var rows []row
	for _, st := range s.states() {
		for _, p := range st.purchases {
			rows = append(rows, row{
				rec: domain.PurchaseRecord{Purchase: p.Purchase, EventName: st.event.Name},
				seq: p.seq,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]domain.PurchaseRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.rec)
	}
	return out, nil
}

func (s *Store) states() []*eventState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*eventState, 0, len(s.events))
	for _, slot := range s.events {
		out = append(out, slot.state.Load())
	}
	return out
}

// TryPurchase records p and decrements the event's stock while holding the
// event's lock. A repeated id replays the recorded receipt.
func (s *Store) TryPurchase(ctx context.Context, p domain.Purchase) (domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.Receipt{}, err
	}
	if p.Quantity <= 0 {
		return domain.Receipt{}, domain.ErrInvalidQuantity
	}
	slot := s.slot(p.EventID)
	if slot == nil {
		return domain.Receipt{}, domain.ErrEventNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	cur := slot.state.Load()
	if eventID, ok := s.ids.Load(p.ID); ok {
		return replay(cur, eventID.(int64), p)
	}

	if cur.event.RemainingTickets < p.Quantity {
		return domain.Receipt{}, &domain.DeclinedError{
			EventID:   cur.event.ID,
			EventName: cur.event.Name,
			Requested: p.Quantity,
			Remaining: cur.event.RemainingTickets,
		}
	}

	// Claimed concurrently by a purchase on another event.
	if _, loaded := s.ids.LoadOrStore(p.ID, p.EventID); loaded {
		return domain.Receipt{}, conflict(p)
	}

	remaining := cur.event.RemainingTickets - p.Quantity
	next := &eventState{
		event: cur.event,
		// Only the lock holder appends; readers never index past the
		// length of the snapshot they loaded.
		purchases: append(cur.purchases, storedPurchase{Purchase: p, seq: s.seq.Add(1), remainingAfter: remaining}),
	}
	next.event.RemainingTickets = remaining
	slot.state.Store(next)

	return receiptFrom(next.event, p, remaining), nil
}

// replay returns the receipt recorded under p.ID. cur must be the state of
// p's event, loaded under its lock.
func replay(cur *eventState, eventID int64, p domain.Purchase) (domain.Receipt, error) {
	if eventID != p.EventID {
		return domain.Receipt{}, conflict(p)
	}
	for _, sp := range cur.purchases {
		if sp.ID != p.ID {
			continue
		}
		if !sp.SameRequest(p) {
			return domain.Receipt{}, conflict(p)
		}
		return receiptFrom(cur.event, sp.Purchase, sp.remainingAfter), nil
	}
	return domain.Receipt{}, fmt.Errorf("purchase %s indexed but not recorded", p.ID)
}

func receiptFrom(event domain.Event, p domain.Purchase, remaining int) domain.Receipt {
	return domain.Receipt{
		Purchase:         p,
		EventName:        event.Name,
		EventDate:        event.Date,
		UnitPrice:        event.Price,
		RemainingTickets: remaining,
	}
}

func conflict(p domain.Purchase) error {
	return fmt.Errorf("purchase %s: %w", p.ID, domain.ErrPurchaseIDConflict)
}
