package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/boxoffice/tickets/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const seedLockID int64 = 720_401_003

const eventColumns = `id, name, date, price, capacity, remaining_tickets`

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	err := row.Scan(&e.ID, &e.Name, &e.Date, &e.Price, &e.Capacity, &e.RemainingTickets)
	e.Date = e.Date.UTC()
	return e, err
}

func (r *EventRepository) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *EventRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events ORDER BY id ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate events: %w", rows.Err())
	}
	return events, nil
}

func (r *EventRepository) CreateEvent(ctx context.Context, ne domain.NewEvent) (domain.Event, error) {
	if err := ne.Validate(); err != nil {
		return domain.Event{}, err
	}
	stmt := `
INSERT INTO events (name, date, price, capacity, remaining_tickets)
VALUES ($1, $2, $3, $4, $4)
RETURNING ` + eventColumns
	e, err := scanEvent(conn(ctx, r.pool).QueryRow(ctx, stmt, ne.Name, ne.Date, ne.Price, ne.Capacity))
	if err != nil {
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

// SeedIfEmpty inserts events only when the table is empty. A transaction-level
// advisory lock keeps concurrent starts from seeding twice.
func (r *EventRepository) SeedIfEmpty(ctx context.Context, events []domain.NewEvent) (int, error) {
	inserted := 0
	err := withTx(ctx, r.pool, func(txCtx context.Context) error {
		q := conn(txCtx, r.pool)
		if _, err := q.Exec(txCtx, `SELECT pg_advisory_xact_lock($1)`, seedLockID); err != nil {
			return fmt.Errorf("acquire seed lock: %w", err)
		}

		var empty bool
		if err := q.QueryRow(txCtx, `SELECT NOT EXISTS (SELECT 1 FROM events)`).Scan(&empty); err != nil {
			return fmt.Errorf("check events: %w", err)
		}
		if !empty {
			return nil
		}

		for _, ne := range events {
			if _, err := r.CreateEvent(txCtx, ne); err != nil {
				return fmt.Errorf("seed %q: %w", ne.Name, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
