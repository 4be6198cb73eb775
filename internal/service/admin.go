package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
	"github.com/Shivanand-hulikatti/feast-seating/internal/repository"
)

var (
	ErrAttendeeNotFound = errors.New("attendee not found")
	ErrEmailTaken       = errors.New("email already registered to another attendee")
	ErrAlreadyDeleted   = errors.New("attendee is already deleted")
	ErrNotDeleted       = errors.New("attendee is not deleted")
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ListAttendees returns every registration in store order, then by seat.
// Soft-deleted attendees are included only when asked for.
func (s *Service) ListAttendees(ctx context.Context, includeDeleted bool) ([]model.Registration, error) {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	out := []model.Registration{}
	for i := range tables {
		for seat := 1; seat <= len(tables[i].Attendees); seat++ {
			if tables[i].Attendees[seat-1].Deleted && !includeDeleted {
				continue
			}
			out = append(out, model.NewRegistration(&tables[i], seat))
		}
	}
	return out, nil
}

// ListTables returns the table documents.
func (s *Service) ListTables(ctx context.Context) ([]model.Table, error) {
	return s.store.ListTables(ctx)
}

// Stats summarises occupancy. Soft-deleted attendees keep their seat, so
// they count towards occupancy but not towards attendees.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("list tables: %w", err)
	}

	st := model.Stats{
		TotalTables: len(tables),
		Capacity:    s.opts.Layout.Capacity(),
	}
	occupied := 0
	var fill float64
	for i := range tables {
		t := &tables[i]
		occupied += t.SeatCount
		if !t.HasFreeSeat() {
			st.FullTables++
		}
		if t.MaxCapacity > 0 {
			fill += float64(t.SeatCount) / float64(t.MaxCapacity)
		}
		for _, a := range t.Attendees {
			if a.Deleted {
				continue
			}
			st.TotalAttendees++
			if a.CheckedIn {
				st.CheckedIn++
			}
		}
	}
	st.AvailableSeats = max(0, st.Capacity-occupied)
	if len(tables) > 0 {
		st.AverageFill = fill / float64(len(tables)) * 100
	}
	return st, nil
}

// UpdateAttendee applies an admin edit to the attendee at (tableID, seat).
func (s *Service) UpdateAttendee(ctx context.Context, tableID string, seat int, patch model.AttendeePatch) (*model.Registration, error) {
	if err := checkSeatRef(tableID, seat); err != nil {
		return nil, err
	}
	p, err := sanitizePatch(patch)
	if err != nil {
		return nil, err
	}

	var (
		reg     *model.Registration
		changes []string
	)
	err = s.runTx(ctx, "update attendee", func(ctx context.Context, tx repository.Tx) error {
		reg, changes = nil, nil

		tables, err := tx.ListTables(ctx)
		if err != nil {
			return err
		}
		t, err := findSeat(tables, tableID, seat)
		if err != nil {
			return err
		}
		a := &t.Attendees[seat-1]

		if p.Email != nil && *p.Email != a.Email {
			if _, _, ok := locate(tables, *p.Email); ok {
				return ErrEmailTaken
			}
			changes = append(changes, fmt.Sprintf("email %s -> %s", a.Email, *p.Email))
			a.Email = *p.Email
		}
		if p.Name != nil && *p.Name != a.Name {
			changes = append(changes, fmt.Sprintf("name %s -> %s", a.Name, *p.Name))
			a.Name = *p.Name
		}
		if p.Phone != nil && *p.Phone != a.Phone {
			changes = append(changes, "phone updated")
			a.Phone = *p.Phone
		}
		if p.Gender != nil && *p.Gender != a.Gender {
			changes = append(changes, fmt.Sprintf("gender %s -> %s", a.Gender, *p.Gender))
			a.Gender = *p.Gender
		}

		r := model.NewRegistration(t, seat)
		reg = &r
		if len(changes) == 0 {
			return nil
		}
		return tx.UpdateTable(ctx, t)
	})
	if err != nil {
		return nil, s.adminErr("update attendee", err)
	}

	if len(changes) > 0 {
		s.record(ctx, model.ActionEdit, reg, "admin", strings.Join(changes, "; "))
		s.logger.Info("attendee updated", zap.String("table_id", tableID), zap.Int("seat", seat))
	}
	return reg, nil
}

// DeleteAttendee soft-deletes the attendee at (tableID, seat). The seat
// stays occupied so seat numbers of later attendees do not shift.
func (s *Service) DeleteAttendee(ctx context.Context, tableID string, seat int) (*model.Registration, error) {
	if err := checkSeatRef(tableID, seat); err != nil {
		return nil, err
	}

	var reg *model.Registration
	err := s.runTx(ctx, "delete attendee", func(ctx context.Context, tx repository.Tx) error {
		t, err := tx.GetTable(ctx, tableID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAttendeeNotFound
		}
		if err != nil {
			return err
		}
		if seat > len(t.Attendees) {
			return ErrAttendeeNotFound
		}
		a := &t.Attendees[seat-1]
		if a.Deleted {
			return ErrAlreadyDeleted
		}
		now := s.opts.Now()
		a.Deleted = true
		a.DeletedAt = &now
		if err := tx.UpdateTable(ctx, t); err != nil {
			return err
		}
		r := model.NewRegistration(t, seat)
		reg = &r
		return nil
	})
	if err != nil {
		return nil, s.adminErr("delete attendee", err)
	}

	s.record(ctx, model.ActionDelete, reg, "admin", "Attendee removed")
	s.logger.Info("attendee deleted", zap.String("table_id", tableID), zap.Int("seat", seat))
	return reg, nil
}

// RestoreAttendee undoes a soft delete unless the email was registered
// again in the meantime.
func (s *Service) RestoreAttendee(ctx context.Context, tableID string, seat int) (*model.Registration, error) {
	if err := checkSeatRef(tableID, seat); err != nil {
		return nil, err
	}

	var reg *model.Registration
	err := s.runTx(ctx, "restore attendee", func(ctx context.Context, tx repository.Tx) error {
		tables, err := tx.ListTables(ctx)
		if err != nil {
			return err
		}
		t, err := findSeat(tables, tableID, seat)
		if err != nil {
			return err
		}
		a := &t.Attendees[seat-1]
		if !a.Deleted {
			return ErrNotDeleted
		}
		if _, _, ok := locate(tables, a.Email); ok {
			return ErrEmailTaken
		}
		a.Deleted = false
		a.DeletedAt = nil
		if err := tx.UpdateTable(ctx, t); err != nil {
			return err
		}
		r := model.NewRegistration(t, seat)
		reg = &r
		return nil
	})
	if err != nil {
		return nil, s.adminErr("restore attendee", err)
	}

	s.record(ctx, model.ActionRestore, reg, "admin", "Attendee restored")
	s.logger.Info("attendee restored", zap.String("table_id", tableID), zap.Int("seat", seat))
	return reg, nil
}

// ResendConfirmation sends the confirmation email of a live attendee again.
// It returns the message or job id.
func (s *Service) ResendConfirmation(ctx context.Context, email string) (string, *model.Registration, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", nil, err
	}
	reg, err := s.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	id, err := s.dispatch(ctx, s.result(reg, true))
	if err != nil {
		return "", reg, fmt.Errorf("resend confirmation: %w", err)
	}
	s.logger.Info("confirmation resent", zap.String("email", email), zap.String("message_id", id))
	return id, reg, nil
}

// ResetAll removes every table and activity entry.
func (s *Service) ResetAll(ctx context.Context) (tables, activities int, err error) {
	tables, err = s.store.Reset(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reset tables: %w", err)
	}
	if s.activity != nil {
		activities, err = s.activity.Reset(ctx)
		if err != nil {
			return tables, 0, fmt.Errorf("reset activity: %w", err)
		}
	}
	s.logger.Warn("all registration data deleted", zap.Int("tables", tables), zap.Int("activities", activities))
	return tables, activities, nil
}

// Activity returns the newest log entries. An empty action or "all"
// matches every entry.
func (s *Service) Activity(ctx context.Context, action string, limit int) ([]model.Activity, error) {
	if s.activity == nil {
		return []model.Activity{}, nil
	}
	a, err := parseAction(action)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultActivityLimit
	case limit > maxActivityLimit:
		limit = maxActivityLimit
	}
	out, err := s.activity.List(ctx, a, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	if out == nil {
		out = []model.Activity{}
	}
	return out, nil
}

func parseAction(s string) (model.ActivityAction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return "", nil
	}
	switch a := model.ActivityAction(s); a {
	case model.ActionRegister, model.ActionEdit, model.ActionDelete,
		model.ActionRestore, model.ActionCheckIn, model.ActionEmailSent:
		return a, nil
	}
	return "", invalid("action", "Unknown activity action "+s)
}

// sanitizedPatch is an AttendeePatch after validation.
type sanitizedPatch struct {
	Name   *string
	Email  *string
	Phone  *string
	Gender *model.Gender
}

func sanitizePatch(p model.AttendeePatch) (sanitizedPatch, error) {
	var out sanitizedPatch
	if p.Name != nil {
		name := Sanitize(*p.Name)
		if err := validateName(name); err != nil {
			return out, err
		}
		out.Name = &name
	}
	if p.Email != nil {
		email := NormalizeEmail(*p.Email)
		if err := validateEmail(email); err != nil {
			return out, err
		}
		out.Email = &email
	}
	if p.Phone != nil {
		phone := Sanitize(*p.Phone)
		out.Phone = &phone
	}
	if p.Gender != nil {
		g, err := ParseGender(*p.Gender)
		if err != nil {
			return out, err
		}
		out.Gender = &g
	}
	return out, nil
}

func checkSeatRef(tableID string, seat int) error {
	if strings.TrimSpace(tableID) == "" {
		return invalid("tableId", "Table id is required")
	}
	if seat < 1 {
		return invalid("seat", "Seat number must be positive")
	}
	return nil
}

func findSeat(tables []model.Table, tableID string, seat int) (*model.Table, error) {
	for i := range tables {
		if tables[i].ID != tableID {
			continue
		}
		if seat > len(tables[i].Attendees) {
			return nil, ErrAttendeeNotFound
		}
		return &tables[i], nil
	}
	return nil, ErrAttendeeNotFound
}

// adminErr passes domain errors through and wraps the rest.
func (s *Service) adminErr(op string, err error) error {
	for _, target := range []error{
		ErrInvalidInput, ErrAttendeeNotFound, ErrEmailTaken,
		ErrAlreadyDeleted, ErrNotDeleted, ErrRetriesExhausted,
	} {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
