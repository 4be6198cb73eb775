package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

const tableColumns = `id, table_number, tent, table_name, attendees, seat_count, max_capacity, version, created_at, updated_at`

// PostgresStore keeps one row per table document with the attendee list in
// a JSONB column. It uses pgx directly (no ORM).
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ListTables returns all table documents ordered by tent and number.
func (s *PostgresStore) ListTables(ctx context.Context) ([]model.Table, error) {
	return listTables(ctx, s.db)
}

// GetTable returns a single table document or ErrNotFound.
func (s *PostgresStore) GetTable(ctx context.Context, id string) (*model.Table, error) {
	return getTable(ctx, s.db, id)
}

// RunInTx runs fn inside a SERIALIZABLE transaction.
//
// Two registrations racing for the last seat of a table both read the same
// version of its row. The first to commit bumps the version; the second
// either matches zero rows on its versioned UPDATE or is aborted by
// PostgreSQL with a serialization failure. Both surface as ErrConflict, and
// the caller re-runs the whole read-select-write cycle on fresh data.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &postgresTx{tx: tx}); err != nil {
		return classify(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// Reset deletes every table document.
func (s *PostgresStore) Reset(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM seating_tables`)
	if err != nil {
		return 0, fmt.Errorf("reset tables: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) ListTables(ctx context.Context) ([]model.Table, error) {
	return listTables(ctx, t.tx)
}

func (t *postgresTx) GetTable(ctx context.Context, id string) (*model.Table, error) {
	return getTable(ctx, t.tx, id)
}

// UpdateTable writes the attendee list and seat count together, guarded by
// the version that was read.
func (t *postgresTx) UpdateTable(ctx context.Context, table *model.Table) error {
	attendees, err := json.Marshal(table.Attendees)
	if err != nil {
		return fmt.Errorf("encode attendees: %w", err)
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE seating_tables
		 SET attendees = $1, seat_count = $2, table_name = $3, version = version + 1, updated_at = $4
		 WHERE id = $5 AND version = $6`,
		attendees, table.SeatCount, table.TableName, time.Now().UTC(), table.ID, table.Version,
	)
	if err != nil {
		return fmt.Errorf("update table %s: %w", table.ID, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update table %s: %w", table.ID, ErrConflict)
	}
	return nil
}

// CreateTable inserts a new table document. The primary key on id (and the
// unique (table_number, tent) pair) turns a racing insert into ErrConflict.
func (t *postgresTx) CreateTable(ctx context.Context, table *model.Table) error {
	attendees, err := json.Marshal(table.Attendees)
	if err != nil {
		return fmt.Errorf("encode attendees: %w", err)
	}
	now := time.Now().UTC()
	_, err = t.tx.Exec(ctx,
		`INSERT INTO seating_tables (id, table_number, tent, table_name, attendees, seat_count, max_capacity, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $8)`,
		table.ID, table.TableNumber, table.Tent, table.TableName, attendees, table.SeatCount, table.MaxCapacity, now,
	)
	if err != nil {
		return fmt.Errorf("insert table %s: %w", table.ID, classify(err))
	}
	return nil
}

func listTables(ctx context.Context, q querier) ([]model.Table, error) {
	rows, err := q.Query(ctx,
		`SELECT `+tableColumns+`
		 FROM seating_tables
		 ORDER BY tent ASC, table_number ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", classify(err))
	}
	defer rows.Close()

	var tables []model.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", classify(err))
	}
	return tables, nil
}

func getTable(ctx context.Context, q querier, id string) (*model.Table, error) {
	row := q.QueryRow(ctx, `SELECT `+tableColumns+` FROM seating_tables WHERE id = $1`, id)
	t, err := scanTable(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func scanTable(row pgx.Row) (*model.Table, error) {
	var (
		t         model.Table
		attendees []byte
	)
	err := row.Scan(&t.ID, &t.TableNumber, &t.Tent, &t.TableName, &attendees,
		&t.SeatCount, &t.MaxCapacity, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan table: %w", classify(err))
	}
	if err := json.Unmarshal(attendees, &t.Attendees); err != nil {
		return nil, fmt.Errorf("decode attendees of %s: %w", t.ID, err)
	}
	return &t, nil
}

// classify maps PostgreSQL concurrency failures onto ErrConflict:
// serialization_failure, deadlock_detected and unique_violation.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}
