package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/feast-seating/internal/metrics"
	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
	"github.com/Shivanand-hulikatti/feast-seating/internal/repository"
)

// ErrAlreadyCheckedIn is returned together with the registration when the
// attendee was checked in before.
var ErrAlreadyCheckedIn = errors.New("attendee already checked in")

// CheckIn marks the attendee holding email as arrived. On a repeat scan the
// registration is returned alongside ErrAlreadyCheckedIn.
func (s *Service) CheckIn(ctx context.Context, email string) (*model.Registration, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	var (
		reg     *model.Registration
		already bool
	)
	err := s.runTx(ctx, "check-in", func(ctx context.Context, tx repository.Tx) error {
		reg, already = nil, false

		tables, err := tx.ListTables(ctx)
		if err != nil {
			return err
		}
		t, seat, ok := locate(tables, email)
		if !ok {
			return ErrNotRegistered
		}

		a := &t.Attendees[seat-1]
		if !a.CheckedIn {
			now := s.opts.Now()
			a.CheckedIn = true
			a.CheckedInAt = &now
			if err := tx.UpdateTable(ctx, t); err != nil {
				return err
			}
		} else {
			already = true
		}
		r := model.NewRegistration(t, seat)
		reg = &r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotRegistered) || errors.Is(err, ErrRetriesExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("check in: %w", err)
	}
	if already {
		return reg, ErrAlreadyCheckedIn
	}

	metrics.RecordCheckIn()
	s.record(ctx, model.ActionCheckIn, reg, "door", fmt.Sprintf("Checked in at %s", reg.TableName))
	s.logger.Info("attendee checked in", zap.String("email", reg.Email), zap.String("table_id", reg.TableID))
	return reg, nil
}

// CheckInStatus returns the registration, including its check-in state.
func (s *Service) CheckInStatus(ctx context.Context, email string) (*model.Registration, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	return s.FindByEmail(ctx, email)
}
