// Package cache keeps short-lived event snapshots in Redis. Purchases are
// never cached; the store stays the source of truth for stock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boxoffice/tickets/internal/domain"
	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix   = "tickets:"
	eventsKey   = keyPrefix + "events"
	DefaultTTL  = 5 * time.Second
	pingTimeout = 5 * time.Second
)

func eventKey(id int64) string {
	return fmt.Sprintf("%sevent:%d", keyPrefix, id)
}

type RedisEventCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Dial connects to the Redis server at rawURL, for example
// redis://localhost:6379/0, and pings it.
func Dial(ctx context.Context, rawURL string, ttl time.Duration) (*RedisEventCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return New(client, ttl), nil
}

func New(client *redis.Client, ttl time.Duration) *RedisEventCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisEventCache{client: client, ttl: ttl}
}

// cachedEvent is the stored form of domain.Event.
type cachedEvent struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Date             string `json:"date"`
	Price            int64  `json:"price"`
	Capacity         int    `json:"capacity"`
	RemainingTickets int    `json:"remaining_tickets"`
}

func toCached(e domain.Event) cachedEvent {
	return cachedEvent{
		ID:               e.ID,
		Name:             e.Name,
		Date:             e.Date.Format(domain.DateLayout),
		Price:            e.Price,
		Capacity:         e.Capacity,
		RemainingTickets: e.RemainingTickets,
	}
}

func (c cachedEvent) event() (domain.Event, error) {
	date, err := domain.ParseDate(c.Date)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		ID:               c.ID,
		Name:             c.Name,
		Date:             date,
		Price:            c.Price,
		Capacity:         c.Capacity,
		RemainingTickets: c.RemainingTickets,
	}, nil
}

func (c *RedisEventCache) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisEventCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *RedisEventCache) Event(ctx context.Context, id int64) (domain.Event, bool, error) {
	var ce cachedEvent
	ok, err := c.get(ctx, eventKey(id), &ce)
	if err != nil || !ok {
		return domain.Event{}, false, err
	}
	e, err := ce.event()
	if err != nil {
		return domain.Event{}, false, fmt.Errorf("decode event %d: %w", id, err)
	}
	return e, true, nil
}

func (c *RedisEventCache) SetEvent(ctx context.Context, e domain.Event) error {
	return c.set(ctx, eventKey(e.ID), toCached(e))
}

func (c *RedisEventCache) Events(ctx context.Context) ([]domain.Event, bool, error) {
	var list []cachedEvent
	ok, err := c.get(ctx, eventsKey, &list)
	if err != nil || !ok {
		return nil, false, err
	}
	events := make([]domain.Event, 0, len(list))
	for _, ce := range list {
		e, err := ce.event()
		if err != nil {
			return nil, false, fmt.Errorf("decode event %d: %w", ce.ID, err)
		}
		events = append(events, e)
	}
	return events, true, nil
}

func (c *RedisEventCache) SetEvents(ctx context.Context, events []domain.Event) error {
	list := make([]cachedEvent, 0, len(events))
	for _, e := range events {
		list = append(list, toCached(e))
	}
	return c.set(ctx, eventsKey, list)
}

// InvalidateEvent drops the event and the event list.
func (c *RedisEventCache) InvalidateEvent(ctx context.Context, eventID int64) error {
	if err := c.client.Del(ctx, eventKey(eventID), eventsKey).Err(); err != nil {
		return fmt.Errorf("invalidate event %d: %w", eventID, err)
	}
	return nil
}

func (c *RedisEventCache) Close() error {
	return c.client.Close()
}
