// Package sqlite is a single-file store for local runs. Every write
// transaction starts with BEGIN IMMEDIATE, so writers are serialized across
// the whole database rather than per event. Reads use a separate query-only
// pool and see the last committed WAL snapshot without waiting on writers.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/boxoffice/tickets/internal/domain"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// createdAtLayout is fixed width so text comparison orders by time.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

const maxReaders = 4

type Store struct {
	db     *sql.DB
	reader *sql.DB
}

// Open creates or opens the database file at path and applies the schema.
// path must name a file; an in-memory database is not shared between the
// write and read pools.
func Open(ctx context.Context, path string) (*Store, error) {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	readParams := url.Values{}
	readParams.Set("_busy_timeout", "5000")
	readParams.Set("_query_only", "true")
	reader, err := sql.Open("sqlite3", "file:"+path+"?"+readParams.Encode())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite reader: %w", err)
	}
	reader.SetMaxOpenConns(maxReaders)

	return &Store{db: db, reader: reader}, nil
}

func (s *Store) Close() error {
	return errors.Join(s.reader.Close(), s.db.Close())
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit tx", err)
	}
	return nil
}

func isBusy(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked
	}
	return false
}

func classify(op string, err error) error {
	if isBusy(err) {
		return &domain.BusyError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		e    domain.Event
		date string
	)
	if err := row.Scan(&e.ID, &e.Name, &date, &e.Price, &e.Capacity, &e.RemainingTickets); err != nil {
		return domain.Event{}, err
	}
	d, err := domain.ParseDate(date)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %d: %w", e.ID, err)
	}
	e.Date = d
	return e, nil
}

const eventColumns = `id, name, date, price, capacity, remaining_tickets`

func (s *Store) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	row := s.reader.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := s.reader.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id ASC`)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func createEvent(ctx context.Context, tx *sql.Tx, ne domain.NewEvent) (domain.Event, error) {
	if err := ne.Validate(); err != nil {
		return domain.Event{}, err
	}
	row := tx.QueryRowContext(ctx, `
INSERT INTO events (name, date, price, capacity, remaining_tickets)
VALUES (?, ?, ?, ?, ?)
RETURNING `+eventColumns,
		ne.Name, ne.Date.Format(domain.DateLayout), ne.Price, ne.Capacity, ne.Capacity,
	)
	e, err := scanEvent(row)
	if err != nil {
		return domain.Event{}, classify("create event", err)
	}
	return e, nil
}

func (s *Store) CreateEvent(ctx context.Context, ne domain.NewEvent) (domain.Event, error) {
	var created domain.Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = createEvent(ctx, tx, ne)
		return err
	})
	return created, err
}

func (s *Store) SeedIfEmpty(ctx context.Context, events []domain.NewEvent) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		if count > 0 {
			return nil
		}
		for _, ne := range events {
			if _, err := createEvent(ctx, tx, ne); err != nil {
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

// TryPurchase reserves and records p in one write transaction. The write
// lock is held from BEGIN, so the lookup of an already recorded p.ID cannot
// race another writer.
func (s *Store) TryPurchase(ctx context.Context, p domain.Purchase) (domain.Receipt, error) {
	p.CreatedAt = p.CreatedAt.UTC()

	var receipt domain.Receipt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		recorded, found, err := recordedReceipt(ctx, tx, p)
		if err != nil {
			return err
		}
		if found {
			receipt = recorded
			return nil
		}

		var (
			name      string
			date      string
			price     int64
			remaining int
		)
		err = tx.QueryRowContext(ctx, `
UPDATE events
SET remaining_tickets = remaining_tickets - ?2
WHERE id = ?1 AND remaining_tickets >= ?2
RETURNING name, date, price, remaining_tickets`,
			p.EventID, p.Quantity,
		).Scan(&name, &date, &price, &remaining)
		if errors.Is(err, sql.ErrNoRows) {
			return explainMiss(ctx, tx, p)
		}
		if err != nil {
			return classify("reserve tickets", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO purchases (id, event_id, buyer_name, qty, created_at)
VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.EventID, p.BuyerName, p.Quantity, p.CreatedAt.Format(createdAtLayout),
		); err != nil {
			return classify("insert purchase", err)
		}

		eventDate, err := domain.ParseDate(date)
		if err != nil {
			return fmt.Errorf("event %d: %w", p.EventID, err)
		}
		receipt = domain.Receipt{
			Purchase:         p,
			EventName:        name,
			EventDate:        eventDate,
			UnitPrice:        price,
			RemainingTickets: remaining,
		}
		return nil
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt, nil
}

// recordedReceipt loads the purchase already stored under p.ID. Its
// RemainingTickets is the stock left right after that purchase committed,
// derived from capacity and the quantities recorded up to it.
func recordedReceipt(ctx context.Context, tx *sql.Tx, p domain.Purchase) (domain.Receipt, bool, error) {
	var (
		rc        domain.Receipt
		createdAt string
		date      string
	)
	err := tx.QueryRowContext(ctx, `
SELECT p.id, p.event_id, p.buyer_name, p.qty, p.created_at,
       e.name, e.date, e.price,
       e.capacity - (SELECT SUM(q.qty) FROM purchases q WHERE q.event_id = p.event_id AND q.seq <= p.seq)
FROM purchases p
JOIN events e ON e.id = p.event_id
WHERE p.id = ?`, p.ID).Scan(
		&rc.ID, &rc.EventID, &rc.BuyerName, &rc.Quantity, &createdAt,
		&rc.EventName, &date, &rc.UnitPrice, &rc.RemainingTickets,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Receipt{}, false, nil
	}
	if err != nil {
		return domain.Receipt{}, false, classify("load recorded purchase", err)
	}
	if !rc.SameRequest(p) {
		return domain.Receipt{}, false, fmt.Errorf("purchase %s: %w", p.ID, domain.ErrPurchaseIDConflict)
	}
	if rc.CreatedAt, err = time.Parse(createdAtLayout, createdAt); err != nil {
		return domain.Receipt{}, false, fmt.Errorf("purchase %s created_at: %w", rc.ID, err)
	}
	if rc.EventDate, err = domain.ParseDate(date); err != nil {
		return domain.Receipt{}, false, fmt.Errorf("event %d: %w", rc.EventID, err)
	}
	return rc, true, nil
}

func explainMiss(ctx context.Context, tx *sql.Tx, p domain.Purchase) error {
	var (
		name      string
		remaining int
	)
	err := tx.QueryRowContext(ctx, `SELECT name, remaining_tickets FROM events WHERE id = ?`, p.EventID).Scan(&name, &remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrEventNotFound
	}
	if err != nil {
		return classify("load event", err)
	}
	return &domain.DeclinedError{
		EventID:   p.EventID,
		EventName: name,
		Requested: p.Quantity,
		Remaining: remaining,
	}
}

func (s *Store) ListPurchases(ctx context.Context) ([]domain.PurchaseRecord, error) {
	rows, err := s.reader.QueryContext(ctx, `
SELECT p.id, p.event_id, e.name, p.buyer_name, p.qty, p.created_at
FROM purchases p
JOIN events e ON e.id = p.event_id
ORDER BY p.created_at DESC, p.seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	records := []domain.PurchaseRecord{}
	for rows.Next() {
		var (
			rec       domain.PurchaseRecord
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventName, &rec.BuyerName, &rec.Quantity, &createdAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		rec.CreatedAt, err = time.Parse(createdAtLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("purchase %s created_at: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return records, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	return s.reader.PingContext(ctx)
}
