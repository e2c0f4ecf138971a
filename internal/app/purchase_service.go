package app

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/boxoffice/tickets/internal/clock"
	"github.com/boxoffice/tickets/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// MaxBuyerNameLength bounds the buyer name, counted in runes.
const MaxBuyerNameLength = 200

// PurchaseStore is the single mutating operation of the inventory store.
//
// TryPurchase must, as one atomic unit, check that the event has at least
// p.Quantity tickets left, decrement the count and record p. It returns
// domain.ErrEventNotFound for an unknown event, a *domain.DeclinedError when
// stock is short, and an error matching domain.ErrStoreBusy for conflicts
// that may succeed on retry. No partial effects may survive an error.
//
// p.ID is the idempotency key. When a purchase with that id is already
// recorded for the same event, buyer and quantity, TryPurchase changes
// nothing and returns the recorded receipt, with RemainingTickets as it stood
// right after that purchase. A recorded id with different fields yields
// domain.ErrPurchaseIDConflict.
type PurchaseStore interface {
	TryPurchase(ctx context.Context, p domain.Purchase) (domain.Receipt, error)
}

// EventInvalidator drops cached event snapshots after inventory changes.
type EventInvalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

// RetryPolicy bounds retries of store-busy conflicts.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
}

type PurchaseService struct {
	store  PurchaseStore
	clock  clock.Clock
	logger zerolog.Logger
	retry  RetryPolicy
	cache  EventInvalidator
	newID  func() (string, error)
}

type PurchaseServiceOption func(*PurchaseService)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) PurchaseServiceOption {
	return func(s *PurchaseService) {
		s.retry = p
	}
}

// WithPurchaseLogger sets the logger; the default discards output.
func WithPurchaseLogger(l zerolog.Logger) PurchaseServiceOption {
	return func(s *PurchaseService) {
		s.logger = l
	}
}

// WithEventInvalidator registers a cache to invalidate after each accepted purchase.
func WithEventInvalidator(c EventInvalidator) PurchaseServiceOption {
	return func(s *PurchaseService) {
		s.cache = c
	}
}

func NewPurchaseService(store PurchaseStore, clk clock.Clock, opts ...PurchaseServiceOption) *PurchaseService {
	svc := &PurchaseService{
		store:  store,
		clock:  clk,
		logger: zerolog.Nop(),
		retry:  DefaultRetryPolicy,
		newID:  newPurchaseID,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PurchaseInput struct {
	EventID   int64
	BuyerName string
	Quantity  int
}

func (in PurchaseInput) validate() error {
	if in.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if in.BuyerName == "" {
		return domain.ErrBuyerNameRequired
	}
	if utf8.RuneCountInString(in.BuyerName) > MaxBuyerNameLength {
		return domain.ErrBuyerNameTooLong
	}
	if in.EventID <= 0 {
		return domain.ErrInvalidID
	}
	return nil
}

// Purchase buys in.Quantity tickets for in.EventID. Input is validated before
// the store is touched. Store-busy conflicts are retried with exponential
// backoff; once retries run out the returned error still matches
// domain.ErrStoreBusy.
func (s *PurchaseService) Purchase(ctx context.Context, in PurchaseInput) (domain.Receipt, error) {
	in.BuyerName = strings.TrimSpace(in.BuyerName)
	if err := in.validate(); err != nil {
		return domain.Receipt{}, err
	}

	id, err := s.newID()
	if err != nil {
		return domain.Receipt{}, err
	}

	log := s.logger.With().Str("purchase_id", id).Int64("event_id", in.EventID).Int("qty", in.Quantity).Logger()

	var receipt domain.Receipt
	attempt := 0
	op := func() error {
		attempt++
		r, err := s.store.TryPurchase(ctx, domain.Purchase{
			ID:        id,
			EventID:   in.EventID,
			BuyerName: in.BuyerName,
			Quantity:  in.Quantity,
			CreatedAt: s.clock.Now(),
		})
		if err != nil {
			if errors.Is(err, domain.ErrStoreBusy) {
				log.Warn().Err(err).Int("attempt", attempt).Msg("purchase conflict")
				return err
			}
			return backoff.Permanent(err)
		}
		receipt = r
		return nil
	}

	if err := backoff.Retry(op, s.backoff(ctx)); err != nil {
		var declined *domain.DeclinedError
		switch {
		case errors.As(err, &declined):
			log.Info().Int("remaining", declined.Remaining).Msg("purchase declined")
		case errors.Is(err, domain.ErrEventNotFound):
			log.Info().Msg("purchase for unknown event")
		default:
			log.Error().Err(err).Int("attempts", attempt).Msg("purchase failed")
		}
		return domain.Receipt{}, err
	}

	log.Debug().Int("remaining", receipt.RemainingTickets).Msg("purchase accepted")

	if s.cache != nil {
		if err := s.cache.InvalidateEvent(ctx, in.EventID); err != nil {
			log.Warn().Err(err).Msg("invalidate event cache")
		}
	}
	return receipt, nil
}

func (s *PurchaseService) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.retry.InitialInterval > 0 {
		b.InitialInterval = s.retry.InitialInterval
	}
	if s.retry.MaxInterval > 0 {
		b.MaxInterval = s.retry.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, s.retry.MaxRetries), ctx)
}
