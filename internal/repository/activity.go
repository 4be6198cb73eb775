package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

// ActivityRepository persists the activity log in PostgreSQL.
type ActivityRepository struct {
	db *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(db *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Record inserts a new entry with a generated UUID.
func (r *ActivityRepository) Record(ctx context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO activity_logs (id, action, performed_by, attendee_name, attendee_email, table_number, tent, seat_number, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, string(a.Action), a.PerformedBy, a.AttendeeName, a.AttendeeEmail,
		a.TableNumber, a.Tent, a.SeatNumber, a.Details, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// List returns the newest entries first. An empty action matches all.
func (r *ActivityRepository) List(ctx context.Context, action model.ActivityAction, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, action, performed_by, attendee_name, attendee_email, table_number, tent, seat_number, details, created_at
		 FROM activity_logs
		 WHERE $1 = '' OR action = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		string(action), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a      model.Activity
			id     uuid.UUID
			action string
		)
		if err := rows.Scan(&id, &action, &a.PerformedBy, &a.AttendeeName, &a.AttendeeEmail,
			&a.TableNumber, &a.Tent, &a.SeatNumber, &a.Details, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.ID = id.String()
		a.Action = model.ActivityAction(action)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Reset deletes every entry.
func (r *ActivityRepository) Reset(ctx context.Context) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM activity_logs`)
	if err != nil {
		return 0, fmt.Errorf("reset activity: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
