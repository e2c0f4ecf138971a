package app

import (
	"context"
	"strings"
	"time"

	"github.com/boxoffice/tickets/internal/domain"
	"github.com/rs/zerolog"
)

type AdminStore interface {
	CreateEvent(ctx context.Context, event domain.NewEvent) (domain.Event, error)
	SeedIfEmpty(ctx context.Context, events []domain.NewEvent) (int, error)
}

type AdminService struct {
	store  AdminStore
	cache  EventInvalidator
	logger zerolog.Logger
}

type AdminServiceOption func(*AdminService)

func WithAdminLogger(l zerolog.Logger) AdminServiceOption {
	return func(s *AdminService) {
		s.logger = l
	}
}

func NewAdminService(store AdminStore, cache EventInvalidator, opts ...AdminServiceOption) *AdminService {
	svc := &AdminService{
		store:  store,
		cache:  cache,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CreateEventInput struct {
	Name     string
	Date     time.Time
	Price    int64
	Capacity int
}

// CreateEvent issues a new event with Capacity tickets, all of them remaining.
func (s *AdminService) CreateEvent(ctx context.Context, in CreateEventInput) (domain.Event, error) {
	ne := domain.NewEvent{
		Name:     strings.TrimSpace(in.Name),
		Date:     in.Date,
		Price:    in.Price,
		Capacity: in.Capacity,
	}
	if err := ne.Validate(); err != nil {
		return domain.Event{}, err
	}

	event, err := s.store.CreateEvent(ctx, ne)
	if err != nil {
		return domain.Event{}, err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateEvent(ctx, event.ID); err != nil {
			s.logger.Warn().Err(err).Int64("event_id", event.ID).Msg("invalidate event cache")
		}
	}
	return event, nil
}

// Seed inserts the sample events when the store holds no events yet.
func (s *AdminService) Seed(ctx context.Context) (int, error) {
	return s.store.SeedIfEmpty(ctx, SampleEvents())
}

// SampleEvents is the fixed seed set used on an empty store.
func SampleEvents() []domain.NewEvent {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return []domain.NewEvent{
		{Name: "Konser A - Pop Night", Date: day(2026, time.March, 20), Price: 150000, Capacity: 100},
		{Name: "Konser B - Rock Live", Date: day(2026, time.April, 10), Price: 200000, Capacity: 80},
		{Name: "Konser C - Jazz Evening", Date: day(2026, time.May, 5), Price: 120000, Capacity: 50},
	}
}
