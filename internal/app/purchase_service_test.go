package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boxoffice/tickets/internal/clock"
	"github.com/boxoffice/tickets/internal/domain"
	"github.com/boxoffice/tickets/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var testNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

var fastRetry = RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

// scriptedStore returns errs in order, then succeeds.
type scriptedStore struct {
	mu    sync.Mutex
	errs  []error
	calls []domain.Purchase
}

func (s *scriptedStore) TryPurchase(_ context.Context, p domain.Purchase) (domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	if len(s.errs) > 0 {
		err := s.errs[0]
		if len(s.errs) > 1 {
			s.errs = s.errs[1:]
		}
		if err != nil {
			return domain.Receipt{}, err
		}
	}
	return domain.Receipt{
		Purchase:         p,
		EventName:        "Konser A - Pop Night",
		UnitPrice:        150000,
		RemainingTickets: 10,
	}, nil
}

func busy() error {
	return &domain.BusyError{Op: "reserve tickets", Err: errors.New("lock timeout")}
}

func newTestPurchaseService(store PurchaseStore, opts ...PurchaseServiceOption) *PurchaseService {
	opts = append([]PurchaseServiceOption{WithRetryPolicy(fastRetry)}, opts...)
	return NewPurchaseService(store, clock.NewFixed(testNow), opts...)
}

func TestPurchaseService_ValidatesBeforeStore(t *testing.T) {
	tests := []struct {
		name string
		in   PurchaseInput
		want error
	}{
		{name: "zero qty", in: PurchaseInput{EventID: 1, BuyerName: "Ann", Quantity: 0}, want: domain.ErrInvalidQuantity},
		{name: "negative qty", in: PurchaseInput{EventID: 1, BuyerName: "Ann", Quantity: -3}, want: domain.ErrInvalidQuantity},
		{name: "zero qty wins over blank name", in: PurchaseInput{EventID: 1, Quantity: 0}, want: domain.ErrInvalidQuantity},
		{name: "blank name", in: PurchaseInput{EventID: 1, BuyerName: " \t ", Quantity: 1}, want: domain.ErrBuyerNameRequired},
		{name: "name too long", in: PurchaseInput{EventID: 1, BuyerName: strings.Repeat("é", MaxBuyerNameLength+1), Quantity: 1}, want: domain.ErrBuyerNameTooLong},
		{name: "zero event id", in: PurchaseInput{EventID: 0, BuyerName: "Ann", Quantity: 1}, want: domain.ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &scriptedStore{}
			svc := newTestPurchaseService(store)

			_, err := svc.Purchase(context.Background(), tt.in)
			require.ErrorIs(t, err, tt.want)
			require.True(t, domain.IsValidation(err))
			require.Empty(t, store.calls, "store must not be touched")
		})
	}
}

func TestPurchaseService_AcceptsMaxLengthName(t *testing.T) {
	store := &scriptedStore{}
	svc := newTestPurchaseService(store)

	name := strings.Repeat("é", MaxBuyerNameLength)
	_, err := svc.Purchase(context.Background(), PurchaseInput{EventID: 1, BuyerName: name, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, store.calls, 1)
}

func TestPurchaseService_Success(t *testing.T) {
	store := &scriptedStore{}
	cache := &fakeInvalidator{}
	svc := newTestPurchaseService(store, WithEventInvalidator(cache))

	receipt, err := svc.Purchase(context.Background(), PurchaseInput{EventID: 1, BuyerName: "  Ann ", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, store.calls, 1)

	p := store.calls[0]
	require.Equal(t, "Ann", p.BuyerName)
	require.Equal(t, int64(1), p.EventID)
	require.Equal(t, 2, p.Quantity)
	require.True(t, testNow.Equal(p.CreatedAt))
	_, err = uuid.Parse(p.ID)
	require.NoError(t, err)

	require.Equal(t, p.ID, receipt.ID)
	require.Equal(t, int64(300000), receipt.TotalPrice())
	require.Equal(t, []int64{1}, cache.ids)
}

func TestPurchaseService_CacheFailureDoesNotFailPurchase(t *testing.T) {
	svc := newTestPurchaseService(&scriptedStore{}, WithEventInvalidator(&fakeInvalidator{err: errors.New("redis down")}))

	_, err := svc.Purchase(context.Background(), PurchaseInput{EventID: 1, BuyerName: "Ann", Quantity: 1})
	require.NoError(t, err)
}

func TestPurchaseService_RetriesBusyWithSameID(t *testing.T) {
	store := &scriptedStore{errs: []error{busy(), busy(), nil}}
	svc := newTestPurchaseService(store)

	receipt, err := svc.Purchase(context.Background(), PurchaseInput{EventID: 1, BuyerName: "Ann", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, store.calls, 3)
	for _, p := range store.calls {
		require.Equal(t, receipt.ID, p.ID, "every attempt carries the same purchase id")
	}
}

func TestPurchaseService_BusyAfterRetries(t *testing.T) {
	store := &scriptedStore{errs: []error{busy()}}
	cache := &fakeInvalidator{}
	svc := newTestPurchaseService(store, WithEventInvalidator(cache))

	_, err := svc.Purchase(context.Background(), PurchaseInput{EventID: 1, BuyerName: "Ann", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrStoreBusy)
	require.Len(t, store.calls, int(fastRetry.MaxRetries)+1)
	require.Empty(t, cache.ids)
}

func TestPurchaseService_DeclineIsNotRetried(t *testing.T) {
	var logs bytes.Buffer
	declined := &domain.DeclinedError{EventID: 1, Requested: 5, Remaining: 2}
	store := &scriptedStore{errs: []error{declined}}
	cache := &fakeInvalidator{}
	svc := newTestPurchaseService(store, WithEventInvalidator(cache), WithPurchaseLogger(zerolog.New(&logs)))

	_, err := svc.Purchase(context.Background(), PurchaseInput{EventID: 1, BuyerName: "Ann", Quantity: 5})
	require.ErrorIs(t, err, domain.ErrInsufficientTickets)
	var got *domain.DeclinedError
	require.ErrorAs(t, err, &got)
	require.Equal(t, 2, got.Remaining)
	require.Len(t, store.calls, 1)
	require.Empty(t, cache.ids)
	require.Contains(t, logs.String(), "purchase declined")
}

func TestPurchaseService_NotFoundIsNotRetried(t *testing.T) {
	store := &scriptedStore{errs: []error{domain.ErrEventNotFound}}
	svc := newTestPurchaseService(store)

	_, err := svc.Purchase(context.Background(), PurchaseInput{EventID: 42, BuyerName: "Ann", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrEventNotFound)
	require.Len(t, store.calls, 1)
}

func TestPurchaseService_CanceledContextStopsRetries(t *testing.T) {
	store := &scriptedStore{errs: []error{busy()}}
	svc := NewPurchaseService(store, clock.NewFixed(testNow), WithRetryPolicy(RetryPolicy{
		MaxRetries:      10,
		InitialInterval: time.Second,
		MaxInterval:     time.Second,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := svc.Purchase(ctx, PurchaseInput{EventID: 1, BuyerName: "Ann", Quantity: 1})
	require.Error(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, store.calls, 1)
}

func TestPurchaseService_IDFailure(t *testing.T) {
	store := &scriptedStore{}
	svc := newTestPurchaseService(store)
	svc.newID = func() (string, error) { return "", errors.New("entropy exhausted") }

	_, err := svc.Purchase(context.Background(), PurchaseInput{EventID: 1, BuyerName: "Ann", Quantity: 1})
	require.Error(t, err)
	require.Empty(t, store.calls)
}

func TestPurchaseService_LastTicketRace(t *testing.T) {
	store := memory.New()
	event, err := store.CreateEvent(context.Background(), domain.NewEvent{Name: "Last Seat", Date: testNow, Price: 1, Capacity: 1})
	require.NoError(t, err)
	svc := NewPurchaseService(store, clock.NewSystem())

	results := make([]error, 2)
	var g errgroup.Group
	for i, buyer := range []string{"Ann", "Budi"} {
		i, buyer := i, buyer
		g.Go(func() error {
			_, results[i] = svc.Purchase(context.Background(), PurchaseInput{EventID: event.ID, BuyerName: buyer, Quantity: 1})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	accepted := 0
	for _, err := range results {
		if err == nil {
			accepted++
			continue
		}
		require.ErrorIs(t, err, domain.ErrInsufficientTickets)
	}
	require.Equal(t, 1, accepted)

	got, err := store.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	require.Zero(t, got.RemainingTickets)
}
