// Package repository is the persistence layer. All SQL lives here; callers
// work with domain types and never see database/sql details.
package repository

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps the database handle and exposes typed queries.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by the given database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}
