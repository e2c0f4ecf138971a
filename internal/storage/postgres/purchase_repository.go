package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boxoffice/tickets/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PurchaseRepository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewPurchaseRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *PurchaseRepository {
	return &PurchaseRepository{pool: pool, lockTimeout: lockTimeout}
}

// TryPurchase decrements the event's remaining tickets and records the
// purchase in one transaction. The decrement is conditional on enough stock,
// so concurrent buyers of the same event queue on its row lock and never
// oversell. An id that is already recorded returns its stored receipt, both
// when found up front and when a concurrent insert wins the unique key.
func (r *PurchaseRepository) TryPurchase(ctx context.Context, p domain.Purchase) (domain.Receipt, error) {
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Microsecond)

	var receipt domain.Receipt
	err := withTx(ctx, r.pool, func(txCtx context.Context) error {
		q := conn(txCtx, r.pool)

		if r.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if _, err := q.Exec(txCtx, stmt); err != nil {
				return classify("set lock timeout", err)
			}
		}

		recorded, found, err := recordedReceipt(txCtx, q, p)
		if err != nil {
			return err
		}
		if found {
			receipt = recorded
			return nil
		}

		const update = `
UPDATE events
SET remaining_tickets = remaining_tickets - $2
WHERE id = $1 AND remaining_tickets >= $2
RETURNING name, date, price, remaining_tickets`

		var (
			name      string
			date      time.Time
			price     int64
			remaining int
		)
		err = q.QueryRow(txCtx, update, p.EventID, p.Quantity).Scan(&name, &date, &price, &remaining)
		if errors.Is(err, pgx.ErrNoRows) {
			// The update may have waited on a concurrent commit of this id.
			if recorded, found, err = recordedReceipt(txCtx, q, p); err != nil || found {
				receipt = recorded
				return err
			}
			return r.explainMiss(txCtx, q, p)
		}
		if err != nil {
			return classify("reserve tickets", err)
		}

		const insert = `
INSERT INTO purchases (id, event_id, buyer_name, qty, created_at)
VALUES ($1, $2, $3, $4, $5)`
		if _, err := q.Exec(txCtx, insert, p.ID, p.EventID, p.BuyerName, p.Quantity, p.CreatedAt); err != nil {
			return classify("insert purchase", err)
		}

		receipt = domain.Receipt{
			Purchase:         p,
			EventName:        name,
			EventDate:        date.UTC(),
			UnitPrice:        price,
			RemainingTickets: remaining,
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			recorded, found, lookupErr := recordedReceipt(ctx, conn(ctx, r.pool), p)
			if lookupErr != nil {
				return domain.Receipt{}, lookupErr
			}
			if found {
				return recorded, nil
			}
		}
		return domain.Receipt{}, err
	}
	return receipt, nil
}

// explainMiss distinguishes an unknown event from one with too few tickets.
func (r *PurchaseRepository) explainMiss(ctx context.Context, q querier, p domain.Purchase) error {
	var (
		name      string
		remaining int
	)
	err := q.QueryRow(ctx, `SELECT name, remaining_tickets FROM events WHERE id = $1`, p.EventID).Scan(&name, &remaining)
	if errors.Is(err, pgx.ErrNoRows) {
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

// recordedReceipt loads the purchase stored under p.ID. RemainingTickets is
// the stock left right after that purchase: per event, seq is drawn while the
// event row is locked, so capacity minus the quantities up to its seq is the
// count it committed. A stored row for a different request is a conflict.
func recordedReceipt(ctx context.Context, q querier, p domain.Purchase) (domain.Receipt, bool, error) {
	const query = `
SELECT p.id, p.event_id, p.buyer_name, p.qty, p.created_at,
       e.name, e.date, e.price,
       e.capacity - (SELECT SUM(o.qty) FROM purchases o WHERE o.event_id = p.event_id AND o.seq <= p.seq)
FROM purchases p
JOIN events e ON e.id = p.event_id
WHERE p.id = $1`
	var rc domain.Receipt
	err := q.QueryRow(ctx, query, p.ID).Scan(
		&rc.ID, &rc.EventID, &rc.BuyerName, &rc.Quantity, &rc.CreatedAt,
		&rc.EventName, &rc.EventDate, &rc.UnitPrice, &rc.RemainingTickets,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Receipt{}, false, nil
	}
	if err != nil {
		return domain.Receipt{}, false, classify("load recorded purchase", err)
	}
	if !rc.SameRequest(p) {
		return domain.Receipt{}, false, fmt.Errorf("purchase %s: %w", p.ID, domain.ErrPurchaseIDConflict)
	}
	rc.CreatedAt = rc.CreatedAt.UTC()
	rc.EventDate = rc.EventDate.UTC()
	return rc, true, nil
}

// ListPurchases returns every purchase, newest first.
func (r *PurchaseRepository) ListPurchases(ctx context.Context) ([]domain.PurchaseRecord, error) {
	const query = `
SELECT p.id, p.event_id, e.name, p.buyer_name, p.qty, p.created_at
FROM purchases p
JOIN events e ON e.id = p.event_id
ORDER BY p.created_at DESC, p.seq DESC`
	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	records := []domain.PurchaseRecord{}
	for rows.Next() {
		var rec domain.PurchaseRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventName, &rec.BuyerName, &rec.Quantity, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate purchases: %w", rows.Err())
	}
	return records, nil
}
