// Package storagetest holds the behaviour every inventory store must share.
// Backends call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boxoffice/tickets/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Store is the full inventory store contract.
type Store interface {
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ListPurchases(ctx context.Context) ([]domain.PurchaseRecord, error)
	TryPurchase(ctx context.Context, p domain.Purchase) (domain.Receipt, error)
	CreateEvent(ctx context.Context, event domain.NewEvent) (domain.Event, error)
	SeedIfEmpty(ctx context.Context, events []domain.NewEvent) (int, error)
}

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) Store

var baseTime = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("SeedIfEmpty seeds once in id order", func(t *testing.T) { testSeed(t, newStore(t)) })
	t.Run("GetEvent unknown id", func(t *testing.T) { testGetUnknown(t, newStore(t)) })
	t.Run("TryPurchase accepts and is readable", func(t *testing.T) { testAccept(t, newStore(t)) })
	t.Run("TryPurchase decline leaves state unchanged", func(t *testing.T) { testDecline(t, newStore(t)) })
	t.Run("TryPurchase unknown event", func(t *testing.T) { testUnknownEvent(t, newStore(t)) })
	t.Run("TryPurchase drains exact stock", func(t *testing.T) { testDrain(t, newStore(t)) })
	t.Run("TryPurchase repeated id replays receipt", func(t *testing.T) { testRepeatedID(t, newStore(t)) })
	t.Run("TryPurchase repeated id after sellout", func(t *testing.T) { testRepeatedIDAfterSellout(t, newStore(t)) })
	t.Run("TryPurchase reused id for another request", func(t *testing.T) { testReusedIDConflict(t, newStore(t)) })
	t.Run("concurrent repeats of one id record once", func(t *testing.T) { testConcurrentRepeatedID(t, newStore(t)) })
	t.Run("ListPurchases newest first", func(t *testing.T) { testOrdering(t, newStore(t)) })
	t.Run("last ticket race has one winner", func(t *testing.T) { testLastTicketRace(t, newStore(t)) })
	t.Run("concurrent buyers never oversell", func(t *testing.T) { testNoOversell(t, newStore(t)) })
	t.Run("events are independent", func(t *testing.T) { testIndependentEvents(t, newStore(t)) })
}

func newEvent(name string, capacity int) domain.NewEvent {
	return domain.NewEvent{
		Name:     name,
		Date:     time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		Price:    150000,
		Capacity: capacity,
	}
}

func mustCreate(t *testing.T, s Store, name string, capacity int) domain.Event {
	t.Helper()
	event, err := s.CreateEvent(context.Background(), newEvent(name, capacity))
	require.NoError(t, err)
	require.Positive(t, event.ID)
	require.Equal(t, capacity, event.RemainingTickets)
	require.Equal(t, capacity, event.Capacity)
	return event
}

func purchase(eventID int64, buyer string, qty int, at time.Time) domain.Purchase {
	return domain.Purchase{
		ID:        uuid.NewString(),
		EventID:   eventID,
		BuyerName: buyer,
		Quantity:  qty,
		CreatedAt: at,
	}
}

// requireConserved checks remaining + sum(qty) == capacity for the event.
func requireConserved(t *testing.T, s Store, eventID int64) {
	t.Helper()
	ctx := context.Background()
	event, err := s.GetEvent(ctx, eventID)
	require.NoError(t, err)
	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)

	sold := 0
	for _, p := range purchases {
		if p.EventID == eventID {
			sold += p.Quantity
		}
	}
	require.GreaterOrEqual(t, event.RemainingTickets, 0)
	require.Equal(t, event.Capacity, event.RemainingTickets+sold, "remaining %d + sold %d", event.RemainingTickets, sold)
}

func testSeed(t *testing.T, s Store) {
	ctx := context.Background()
	seed := []domain.NewEvent{newEvent("Pop Night", 100), newEvent("Rock Live", 80), newEvent("Jazz Evening", 50)}

	n, err := s.SeedIfEmpty(ctx, seed)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = s.SeedIfEmpty(ctx, seed)
	require.NoError(t, err)
	require.Zero(t, n)

	events, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		require.Equal(t, seed[i].Name, e.Name)
		require.Equal(t, seed[i].Capacity, e.RemainingTickets)
		require.True(t, seed[i].Date.Equal(e.Date), "date %v", e.Date)
		if i > 0 {
			require.Greater(t, e.ID, events[i-1].ID)
		}
	}
}

func testGetUnknown(t *testing.T, s Store) {
	_, err := s.GetEvent(context.Background(), 4242)
	require.ErrorIs(t, err, domain.ErrEventNotFound)
}

func testAccept(t *testing.T, s Store) {
	ctx := context.Background()
	event := mustCreate(t, s, "Pop Night", 10)

	p := purchase(event.ID, "Ann", 3, baseTime)
	receipt, err := s.TryPurchase(ctx, p)
	require.NoError(t, err)
	require.Equal(t, p.ID, receipt.ID)
	require.Equal(t, "Pop Night", receipt.EventName)
	require.Equal(t, event.Price, receipt.UnitPrice)
	require.Equal(t, 7, receipt.RemainingTickets)
	require.Equal(t, int64(450000), receipt.TotalPrice())

	got, err := s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 7, got.RemainingTickets)

	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	require.Equal(t, p.ID, purchases[0].ID)
	require.Equal(t, "Ann", purchases[0].BuyerName)
	require.Equal(t, "Pop Night", purchases[0].EventName)
	require.Equal(t, 3, purchases[0].Quantity)
	require.True(t, baseTime.Equal(purchases[0].CreatedAt), "created_at %v", purchases[0].CreatedAt)

	requireConserved(t, s, event.ID)
}

func testDecline(t *testing.T, s Store) {
	ctx := context.Background()
	event := mustCreate(t, s, "Rock Live", 2)

	_, err := s.TryPurchase(ctx, purchase(event.ID, "Ann", 3, baseTime))
	require.ErrorIs(t, err, domain.ErrInsufficientTickets)
	var declined *domain.DeclinedError
	require.True(t, errors.As(err, &declined))
	require.Equal(t, 3, declined.Requested)
	require.Equal(t, 2, declined.Remaining)
	require.Equal(t, event.ID, declined.EventID)

	got, err := s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.RemainingTickets)

	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)
	require.Empty(t, purchases)
}

func testUnknownEvent(t *testing.T, s Store) {
	ctx := context.Background()
	mustCreate(t, s, "Pop Night", 5)

	_, err := s.TryPurchase(ctx, purchase(42, "Ann", 2, baseTime))
	require.ErrorIs(t, err, domain.ErrEventNotFound)
	require.NotErrorIs(t, err, domain.ErrInsufficientTickets)

	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)
	require.Empty(t, purchases)
}

func testDrain(t *testing.T, s Store) {
	ctx := context.Background()
	event := mustCreate(t, s, "Jazz Evening", 4)

	receipt, err := s.TryPurchase(ctx, purchase(event.ID, "Ann", 4, baseTime))
	require.NoError(t, err)
	require.Zero(t, receipt.RemainingTickets)

	_, err = s.TryPurchase(ctx, purchase(event.ID, "Budi", 1, baseTime.Add(time.Second)))
	require.ErrorIs(t, err, domain.ErrInsufficientTickets)

	requireConserved(t, s, event.ID)
}

func testRepeatedID(t *testing.T, s Store) {
	ctx := context.Background()
	event := mustCreate(t, s, "Pop Night", 10)

	p := purchase(event.ID, "Ann", 2, baseTime)
	first, err := s.TryPurchase(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 8, first.RemainingTickets)

	_, err = s.TryPurchase(ctx, purchase(event.ID, "Budi", 3, baseTime.Add(time.Second)))
	require.NoError(t, err)

	retry := p
	retry.CreatedAt = baseTime.Add(time.Minute)
	again, err := s.TryPurchase(ctx, retry)
	require.NoError(t, err)
	require.Equal(t, p.ID, again.ID)
	require.Equal(t, "Ann", again.BuyerName)
	require.Equal(t, 2, again.Quantity)
	require.Equal(t, "Pop Night", again.EventName)
	require.Equal(t, event.Price, again.UnitPrice)
	require.True(t, event.Date.Equal(again.EventDate), "event date %v", again.EventDate)
	require.Equal(t, 8, again.RemainingTickets, "stock right after the recorded purchase")
	require.True(t, baseTime.Equal(again.CreatedAt), "created_at %v", again.CreatedAt)

	got, err := s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.RemainingTickets)

	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	requireConserved(t, s, event.ID)
}

func testRepeatedIDAfterSellout(t *testing.T, s Store) {
	ctx := context.Background()
	event := mustCreate(t, s, "Last Seats", 2)

	p := purchase(event.ID, "Ann", 2, baseTime)
	_, err := s.TryPurchase(ctx, p)
	require.NoError(t, err)

	again, err := s.TryPurchase(ctx, p)
	require.NoError(t, err)
	require.Equal(t, p.ID, again.ID)
	require.Zero(t, again.RemainingTickets)

	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	requireConserved(t, s, event.ID)
}

func testReusedIDConflict(t *testing.T, s Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "Hall A", 10)
	b := mustCreate(t, s, "Hall B", 10)

	p := purchase(a.ID, "Ann", 2, baseTime)
	_, err := s.TryPurchase(ctx, p)
	require.NoError(t, err)

	moreTickets := p
	moreTickets.Quantity = 3
	_, err = s.TryPurchase(ctx, moreTickets)
	require.ErrorIs(t, err, domain.ErrPurchaseIDConflict)

	otherBuyer := p
	otherBuyer.BuyerName = "Budi"
	_, err = s.TryPurchase(ctx, otherBuyer)
	require.ErrorIs(t, err, domain.ErrPurchaseIDConflict)

	otherEvent := p
	otherEvent.EventID = b.ID
	_, err = s.TryPurchase(ctx, otherEvent)
	require.ErrorIs(t, err, domain.ErrPurchaseIDConflict)

	for id, want := range map[int64]int{a.ID: 8, b.ID: 10} {
		got, err := s.GetEvent(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got.RemainingTickets)
	}
	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
}

func testConcurrentRepeatedID(t *testing.T, s Store) {
	ctx := context.Background()
	event := mustCreate(t, s, "Pop Night", 10)
	p := purchase(event.ID, "Ann", 3, baseTime)

	start := make(chan struct{})
	var g errgroup.Group
	receipts := make([]domain.Receipt, 5)
	for i := range receipts {
		i := i
		g.Go(func() error {
			<-start
			r, err := s.TryPurchase(ctx, p)
			receipts[i] = r
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	for _, r := range receipts {
		require.Equal(t, p.ID, r.ID)
		require.Equal(t, 7, r.RemainingTickets)
	}

	got, err := s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 7, got.RemainingTickets)

	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
}

func testOrdering(t *testing.T, s Store) {
	ctx := context.Background()
	event := mustCreate(t, s, "Pop Night", 100)

	first := purchase(event.ID, "first", 1, baseTime)
	third := purchase(event.ID, "third", 1, baseTime.Add(2*time.Minute))
	second := purchase(event.ID, "second", 1, baseTime.Add(time.Minute))
	tieA := purchase(event.ID, "tie-a", 1, baseTime.Add(3*time.Minute))
	tieB := purchase(event.ID, "tie-b", 1, baseTime.Add(3*time.Minute))

	for _, p := range []domain.Purchase{first, third, second, tieA, tieB} {
		_, err := s.TryPurchase(ctx, p)
		require.NoError(t, err)
	}

	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)
	var names []string
	for _, p := range purchases {
		names = append(names, p.BuyerName)
	}
	require.Equal(t, []string{"tie-b", "tie-a", "third", "second", "first"}, names)
}

func testLastTicketRace(t *testing.T, s Store) {
	ctx := context.Background()
	event := mustCreate(t, s, "Last Seat", 1)

	var (
		mu       sync.Mutex
		accepted int
		declined int
	)
	start := make(chan struct{})
	var g errgroup.Group
	for _, buyer := range []string{"Ann", "Budi"} {
		buyer := buyer
		g.Go(func() error {
			<-start
			_, err := s.TryPurchase(ctx, purchase(event.ID, buyer, 1, baseTime))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrInsufficientTickets):
				declined++
			default:
				return err
			}
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	require.Equal(t, 1, accepted)
	require.Equal(t, 1, declined)

	got, err := s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Zero(t, got.RemainingTickets)

	purchases, err := s.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
}

func testNoOversell(t *testing.T, s Store) {
	ctx := context.Background()
	const capacity = 50
	event := mustCreate(t, s, "Big Show", capacity)

	const buyers = 40
	var (
		mu           sync.Mutex
		acceptedQty  int
		declinedQtys []int
	)
	start := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		qty := i%3 + 1
		at := baseTime.Add(time.Duration(i) * time.Millisecond)
		g.Go(func() error {
			<-start
			_, err := s.TryPurchase(ctx, purchase(event.ID, "buyer", qty, at))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				acceptedQty += qty
			case errors.Is(err, domain.ErrInsufficientTickets):
				declinedQtys = append(declinedQtys, qty)
			default:
				return err
			}
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	require.LessOrEqual(t, acceptedQty, capacity)
	require.NotEmpty(t, declinedQtys, "requests total more than capacity")

	got, err := s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, capacity-acceptedQty, got.RemainingTickets)

	// Stock only shrinks, so a decline is justified only if it still cannot be met.
	for _, qty := range declinedQtys {
		require.Less(t, got.RemainingTickets, qty, "request for %d declined with %d left", qty, got.RemainingTickets)
	}
	requireConserved(t, s, event.ID)
}

func testIndependentEvents(t *testing.T, s Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "Hall A", 30)
	b := mustCreate(t, s, "Hall B", 30)

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		eventID := a.ID
		if i%2 == 1 {
			eventID = b.ID
		}
		at := baseTime.Add(time.Duration(i) * time.Millisecond)
		g.Go(func() error {
			_, err := s.TryPurchase(ctx, purchase(eventID, "buyer", 2, at))
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range []int64{a.ID, b.ID} {
		got, err := s.GetEvent(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 10, got.RemainingTickets)
		requireConserved(t, s, id)
	}
}
