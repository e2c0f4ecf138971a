package app

import (
	"context"

	"github.com/boxoffice/tickets/internal/domain"
	"github.com/rs/zerolog"
)

// CatalogStore holds the read-only queries of the inventory store. Reads are
// snapshot reads and never observe a half-applied purchase.
type CatalogStore interface {
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ListPurchases(ctx context.Context) ([]domain.PurchaseRecord, error)
}

// EventCache is an optional read-through cache of event snapshots. A miss is
// reported with ok == false and a nil error.
type EventCache interface {
	EventInvalidator
	Event(ctx context.Context, id int64) (event domain.Event, ok bool, err error)
	SetEvent(ctx context.Context, event domain.Event) error
	Events(ctx context.Context) (events []domain.Event, ok bool, err error)
	SetEvents(ctx context.Context, events []domain.Event) error
}

type CatalogService struct {
	store  CatalogStore
	cache  EventCache
	logger zerolog.Logger
}

type CatalogServiceOption func(*CatalogService)

// WithEventCache serves events through c. Cache errors are logged and bypassed.
func WithEventCache(c EventCache) CatalogServiceOption {
	return func(s *CatalogService) {
		s.cache = c
	}
}

func WithCatalogLogger(l zerolog.Logger) CatalogServiceOption {
	return func(s *CatalogService) {
		s.logger = l
	}
}

func NewCatalogService(store CatalogStore, opts ...CatalogServiceOption) *CatalogService {
	svc := &CatalogService{
		store:  store,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ListEvents returns all events ordered by id.
func (s *CatalogService) ListEvents(ctx context.Context) ([]domain.Event, error) {
	if s.cache != nil {
		events, ok, err := s.cache.Events(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("read events from cache")
		} else if ok {
			return events, nil
		}
	}

	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetEvents(ctx, events); err != nil {
			s.logger.Warn().Err(err).Msg("write events to cache")
		}
	}
	return events, nil
}

func (s *CatalogService) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	if id <= 0 {
		return domain.Event{}, domain.ErrInvalidID
	}
	if s.cache != nil {
		event, ok, err := s.cache.Event(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Int64("event_id", id).Msg("read event from cache")
		} else if ok {
			return event, nil
		}
	}

	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if s.cache != nil {
		if err := s.cache.SetEvent(ctx, event); err != nil {
			s.logger.Warn().Err(err).Int64("event_id", id).Msg("write event to cache")
		}
	}
	return event, nil
}

// ListPurchases returns every purchase, newest first. Purchases are never cached.
func (s *CatalogService) ListPurchases(ctx context.Context) ([]domain.PurchaseRecord, error) {
	return s.store.ListPurchases(ctx)
}
