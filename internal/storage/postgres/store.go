// Package postgres is the production store. Purchases are serialized per
// event by the row lock taken in a conditional UPDATE.
package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Options struct {
	// LockTimeout bounds how long a purchase waits on an event row lock.
	// Zero leaves the server default.
	LockTimeout time.Duration
}

type Store struct {
	*EventRepository
	*PurchaseRepository
}

func NewStore(pool *pgxpool.Pool, opts Options) *Store {
	return &Store{
		EventRepository:    NewEventRepository(pool),
		PurchaseRepository: NewPurchaseRepository(pool, opts.LockTimeout),
	}
}
