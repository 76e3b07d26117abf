// Package store is the PostgreSQL persistence layer, written directly
// against pgx. It satisfies the narrow contracts the policy engine and
// the enforcement service declare, plus the CRUD surface the HTTP API
// needs.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Postgres implements all persistence contracts over a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// New creates a Postgres store.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
