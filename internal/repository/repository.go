// Package repository implements persistence for the feast seating system.
// Tables are stored as documents that embed their ordered attendee list, so
// seat order and occupancy are always read and written together.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a concurrent writer invalidated the data a
// transaction read. The whole transaction may be retried.
var ErrConflict = errors.New("transaction conflict")

// Store is the table document store.
type Store interface {
	// ListTables returns every table document. The result is not
	// transactionally consistent with later writes.
	ListTables(ctx context.Context) ([]model.Table, error)
	// GetTable returns one table document or ErrNotFound.
	GetTable(ctx context.Context, id string) (*model.Table, error)
	// RunInTx runs fn inside one transaction and commits it when fn
	// returns nil. Errors matching ErrConflict are safe to retry.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Reset deletes every table document and returns how many were removed.
	Reset(ctx context.Context) (int, error)
}

// Tx reads and writes table documents inside a transaction.
type Tx interface {
	ListTables(ctx context.Context) ([]model.Table, error)
	GetTable(ctx context.Context, id string) (*model.Table, error)
	// UpdateTable replaces the attendee list and seat count of an existing
	// document. t.Version must be the version that was read.
	UpdateTable(ctx context.Context, t *model.Table) error
	// CreateTable inserts a new document; ErrConflict if its id is taken.
	CreateTable(ctx context.Context, t *model.Table) error
}

// ActivityLog stores the admin activity trail.
type ActivityLog interface {
	Record(ctx context.Context, a *model.Activity) error
	// List returns entries newest first, optionally filtered by action.
	List(ctx context.Context, action model.ActivityAction, limit int) ([]model.Activity, error)
	Reset(ctx context.Context) (int, error)
}
