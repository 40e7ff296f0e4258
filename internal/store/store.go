package store

import (
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrQuotaExhausted is returned when the conditional quota increment
	// matched no row, so the history insert was rolled back.
	ErrQuotaExhausted = errors.New("quota exhausted")
)

// Store persists profiles, subscriptions, billing events and prescription
// history in Postgres.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}
