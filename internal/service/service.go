// Package service implements registration, seat allocation, check-in, and
// the admin operations on top of the repository layer.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/feast-seating/internal/mail"
	"github.com/Shivanand-hulikatti/feast-seating/internal/metrics"
	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
	"github.com/Shivanand-hulikatti/feast-seating/internal/repository"
	"github.com/Shivanand-hulikatti/feast-seating/internal/seating"
)

var (
	// ErrRegistrationFailed is returned when registration could not be
	// committed within the retry budget.
	ErrRegistrationFailed = errors.New("registration failed, please try again")
	// ErrRetriesExhausted wraps the last conflict once every attempt failed.
	ErrRetriesExhausted = errors.New("too much contention")
	// ErrNotRegistered is returned when no live attendee has the email.
	ErrNotRegistered = errors.New("registration not found")
)

// Notifier delivers, or enqueues for delivery, a confirmation email.
type Notifier interface {
	Send(ctx context.Context, c mail.Confirmation) (string, error)
}

// DefaultRetryBackoff is the base delay between registration attempts. The
// n-th retry waits n times this.
const DefaultRetryBackoff = 100 * time.Millisecond

// Options tune a Service. Zero fields fall back to defaults.
type Options struct {
	Layout       model.Layout
	Weights      seating.Weights
	EventName    string
	MaxAttempts  int
	RetryBackoff time.Duration
	EmailTimeout time.Duration
	// QueueEmails is set when the Notifier only enqueues and a worker
	// delivers later.
	QueueEmails bool
	NewRand     func() seating.Rand
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Layout == (model.Layout{}) {
		o.Layout = model.DefaultLayout
	}
	if o.Weights == (seating.Weights{}) {
		o.Weights = seating.DefaultWeights
	}
	if o.EventName == "" {
		o.EventName = "Love Feast"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.EmailTimeout <= 0 {
		o.EmailTimeout = 10 * time.Second
	}
	if o.NewRand == nil {
		o.NewRand = seating.NewRand
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service orchestrates registration and seating.
type Service struct {
	store    repository.Store
	activity repository.ActivityLog
	notifier Notifier
	selector *seating.Selector
	opts     Options
	logger   *zap.Logger
}

// New constructs a Service. activity and notifier may be nil.
func New(store repository.Store, activity repository.ActivityLog, notifier Notifier, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Service{
		store:    store,
		activity: activity,
		notifier: notifier,
		selector: seating.NewSelector(opts.Layout, opts.Weights),
		opts:     opts,
		logger:   logger,
	}
}

// Layout returns the venue layout.
func (s *Service) Layout() model.Layout {
	return s.opts.Layout
}

// Register validates the request, returns the existing seat for a known
// email, and otherwise allocates a new seat.
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.RegistrationResult, error) {
	in, err := Validate(req.Name, req.Email, req.Phone, req.Gender)
	if err != nil {
		metrics.RecordRegistration(metrics.OutcomeInvalid)
		return nil, err
	}

	existing, err := s.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		metrics.RecordRegistration(metrics.OutcomeExisting)
		return s.result(existing, true), nil
	case !errors.Is(err, ErrNotRegistered):
		metrics.RecordRegistration(metrics.OutcomeFailed)
		return nil, fmt.Errorf("lookup registration: %w", err)
	}

	reg, isExisting, err := s.allocate(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, seating.ErrCapacityExceeded):
			metrics.RecordRegistration(metrics.OutcomeCapacity)
			return nil, err
		case errors.Is(err, ErrRetriesExhausted):
			metrics.RecordRegistration(metrics.OutcomeFailed)
			return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
		}
		metrics.RecordRegistration(metrics.OutcomeFailed)
		return nil, fmt.Errorf("register: %w", err)
	}
	if isExisting {
		metrics.RecordRegistration(metrics.OutcomeExisting)
		return s.result(reg, true), nil
	}
	metrics.RecordRegistration(metrics.OutcomeCreated)

	res := s.result(reg, false)
	res.CapacityWarning = s.capacityWarning(ctx, reg.TableID)
	s.record(ctx, model.ActionRegister, reg, "self", fmt.Sprintf("Registered at %s, seat %d", reg.TableName, reg.SeatNumber))
	s.notify(ctx, res)

	s.logger.Info("attendee registered",
		zap.String("email", reg.Email),
		zap.String("table_id", reg.TableID),
		zap.Int("seat", reg.SeatNumber),
	)
	return res, nil
}

// CheckExistingRegistration looks up an email without registering. found
// is false when nobody holds it.
func (s *Service) CheckExistingRegistration(ctx context.Context, email string) (reg *model.RegistrationResult, found bool, err error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, false, err
	}
	existing, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotRegistered) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup registration: %w", err)
	}
	return s.result(existing, true), true, nil
}

// FindByEmail returns the live registration holding email, or
// ErrNotRegistered. email must already be normalized.
func (s *Service) FindByEmail(ctx context.Context, email string) (*model.Registration, error) {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	t, seat, ok := locate(tables, email)
	if !ok {
		return nil, ErrNotRegistered
	}
	reg := model.NewRegistration(t, seat)
	return &reg, nil
}

// allocate seats the attendee inside one transaction. The duplicate check
// is repeated against the transaction's snapshot so two concurrent
// requests for one email cannot both be seated.
func (s *Service) allocate(ctx context.Context, in Input) (*model.Registration, bool, error) {
	var (
		reg      *model.Registration
		existing bool
	)
	err := s.runTx(ctx, "register", func(ctx context.Context, tx repository.Tx) error {
		reg, existing = nil, false

		tables, err := tx.ListTables(ctx)
		if err != nil {
			return err
		}
		if t, seat, ok := locate(tables, in.Email); ok {
			r := model.NewRegistration(t, seat)
			reg, existing = &r, true
			return nil
		}

		decision, err := s.selector.Select(s.opts.NewRand(), in.Gender, tables)
		if err != nil {
			return err
		}

		attendee := model.Attendee{
			Name:         in.Name,
			Email:        in.Email,
			Phone:        in.Phone,
			Gender:       in.Gender,
			Tent:         decision.Tent,
			RegisteredAt: s.opts.Now(),
		}

		var t *model.Table
		if decision.Create {
			t = &model.Table{
				ID:          model.TableID(decision.TableNumber, decision.Tent),
				TableNumber: decision.TableNumber,
				Tent:        decision.Tent,
				TableName:   model.TableName(decision.TableNumber, decision.Tent),
				Attendees:   []model.Attendee{attendee},
				SeatCount:   1,
				MaxCapacity: s.opts.Layout.SeatsPerTable,
			}
			if err := tx.CreateTable(ctx, t); err != nil {
				return err
			}
		} else {
			t = decision.Table
			if !t.HasFreeSeat() {
				return seating.ErrCapacityExceeded
			}
			t.Attendees = append(t.Attendees, attendee)
			t.SeatCount = len(t.Attendees)
			if err := tx.UpdateTable(ctx, t); err != nil {
				return err
			}
		}

		if decision.Fallback {
			s.logger.Debug("tent exhausted, seated elsewhere", zap.Int("tent", decision.Tent))
		}
		r := model.NewRegistration(t, t.SeatCount)
		reg = &r
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return reg, existing, nil
}

// runTx runs fn in a transaction, retrying on ErrConflict with a linear
// backoff. Any other error ends the loop at once.
func (s *Service) runTx(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		err = s.store.RunInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return err
		}

		metrics.RecordConflict()
		s.logger.Warn("transaction conflict",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == s.opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, s.opts.RetryBackoff*time.Duration(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, op, s.opts.MaxAttempts, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// capacityWarning re-reads the committed table. A failed read only costs
// the warning.
func (s *Service) capacityWarning(ctx context.Context, tableID string) *model.CapacityWarning {
	t, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		s.logger.Warn("capacity check failed", zap.String("table_id", tableID), zap.Error(err))
		return nil
	}
	w := seating.CapacityWarning(t)
	if w != nil {
		metrics.RecordCapacityWarning(w.Level)
	}
	return w
}

func (s *Service) result(reg *model.Registration, existing bool) *model.RegistrationResult {
	return &model.RegistrationResult{
		Registration: *reg,
		IsExisting:   existing,
		QRPayload:    s.qrPayload(reg),
	}
}

func (s *Service) qrPayload(reg *model.Registration) string {
	b, err := json.Marshal(model.QRPayload{
		Name:   reg.Name,
		Email:  reg.Email,
		Table:  reg.TableNumber,
		Tent:   reg.Tent,
		Seat:   reg.SeatNumber,
		Phone:  reg.Phone,
		Gender: string(reg.Gender),
		Event:  s.opts.EventName,
	})
	if err != nil {
		return ""
	}
	return string(b)
}

// notify sends the confirmation email. Delivery failures are logged and
// never fail the registration.
func (s *Service) notify(ctx context.Context, res *model.RegistrationResult) {
	if s.notifier == nil {
		return
	}
	if _, err := s.dispatch(ctx, res); err != nil {
		s.logger.Warn("confirmation email failed", zap.String("email", res.Email), zap.Error(err))
	}
}

// dispatch hands the confirmation to the notifier. The send outlives a
// cancelled request but not the email timeout.
func (s *Service) dispatch(ctx context.Context, res *model.RegistrationResult) (string, error) {
	if s.notifier == nil {
		return "", mail.ErrNotConfigured
	}
	c := mail.Confirmation{
		To:          res.Email,
		Name:        res.Name,
		TableNumber: res.TableNumber,
		Tent:        res.Tent,
		TableName:   res.TableName,
		SeatNumber:  res.SeatNumber,
		Phone:       res.Phone,
		Gender:      string(res.Gender),
		QRPayload:   res.QRPayload,
		EventName:   s.opts.EventName,
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.EmailTimeout)
	defer cancel()
	id, err := s.notifier.Send(sendCtx, c)
	if err != nil {
		metrics.RecordEmail(metrics.EmailFailed)
		return "", err
	}
	if s.opts.QueueEmails {
		metrics.RecordEmail(metrics.EmailQueued)
		return id, nil
	}
	metrics.RecordEmail(metrics.EmailSent)
	s.record(ctx, model.ActionEmailSent, &res.Registration, "system", "Confirmation email sent "+id)
	return id, nil
}

// record appends to the activity log. Failures are logged only.
func (s *Service) record(ctx context.Context, action model.ActivityAction, reg *model.Registration, by, details string) {
	if s.activity == nil {
		return
	}
	entry := &model.Activity{
		Action:        action,
		PerformedBy:   by,
		AttendeeName:  reg.Name,
		AttendeeEmail: reg.Email,
		TableNumber:   reg.TableNumber,
		Tent:          reg.Tent,
		SeatNumber:    reg.SeatNumber,
		Details:       details,
		Timestamp:     s.opts.Now(),
	}
	if err := s.activity.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("record activity failed", zap.String("action", string(action)), zap.Error(err))
	}
}

// locate finds the live attendee holding email. The seat is 1-based.
func locate(tables []model.Table, email string) (*model.Table, int, bool) {
	for i := range tables {
		for j, a := range tables[i].Attendees {
			if !a.Deleted && a.Email == email {
				return &tables[i], j + 1, true
			}
		}
	}
	return nil, 0, false
}
