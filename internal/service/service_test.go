package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/feast-seating/internal/mail"
	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
	"github.com/Shivanand-hulikatti/feast-seating/internal/repository"
	"github.com/Shivanand-hulikatti/feast-seating/internal/seating"
)

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []mail.Confirmation
	err   error
	block bool
}

func (n *fakeNotifier) Send(ctx context.Context, c mail.Confirmation) (string, error) {
	if n.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return "", n.err
	}
	n.sent = append(n.sent, c)
	return fmt.Sprintf("msg-%d", len(n.sent)), nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// conflictStore fails the first n transactions with ErrConflict.
type conflictStore struct {
	*repository.MemoryStore
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (s *conflictStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.conflicts > 0
	if fail {
		s.conflicts--
	}
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("injected: %w", repository.ErrConflict)
	}
	return s.MemoryStore.RunInTx(ctx, fn)
}

type testEnv struct {
	svc      *Service
	store    repository.Store
	activity *repository.MemoryActivityLog
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T, store repository.Store, opts Options) *testEnv {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryStore()
	}
	var seed uint64
	var seedMu sync.Mutex
	if opts.NewRand == nil {
		opts.NewRand = func() seating.Rand {
			seedMu.Lock()
			defer seedMu.Unlock()
			seed++
			return seating.NewSeededRand(seed, 99)
		}
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Microsecond
	}
	env := &testEnv{
		store:    store,
		activity: repository.NewMemoryActivityLog(),
		notifier: &fakeNotifier{},
	}
	env.svc = New(store, env.activity, env.notifier, opts, nil)
	return env
}

func register(t *testing.T, svc *Service, name, email string, gender model.Gender) *model.RegistrationResult {
	t.Helper()
	res, err := svc.Register(context.Background(), model.RegisterRequest{Name: name, Email: email, Gender: string(gender)})
	require.NoError(t, err)
	return res
}

func allTables(t *testing.T, store repository.Store) []model.Table {
	t.Helper()
	tables, err := store.ListTables(context.Background())
	require.NoError(t, err)
	return tables
}

func TestRegisterSeatsNewAttendee(t *testing.T) {
	env := newTestEnv(t, nil, Options{EventName: "Spring Feast"})

	res := register(t, env.svc, "Ada Lovelace", "Ada@Example.com", model.GenderFemale)

	assert.False(t, res.IsExisting)
	assert.Equal(t, "ada@example.com", res.Email)
	assert.Equal(t, 1, res.SeatNumber)
	assert.Equal(t, model.TableID(res.TableNumber, res.Tent), res.TableID)
	assert.Equal(t, model.TableName(res.TableNumber, res.Tent), res.TableName)
	assert.Nil(t, res.CapacityWarning)

	var qr model.QRPayload
	require.NoError(t, json.Unmarshal([]byte(res.QRPayload), &qr))
	assert.Equal(t, model.QRPayload{
		Name: "Ada Lovelace", Email: "ada@example.com", Table: res.TableNumber,
		Tent: res.Tent, Seat: 1, Gender: "Female", Event: "Spring Feast",
	}, qr)

	tables := allTables(t, env.store)
	require.Len(t, tables, 1)
	assert.Equal(t, 1, tables[0].SeatCount)
	assert.Equal(t, model.DefaultLayout.SeatsPerTable, tables[0].MaxCapacity)
	assert.Equal(t, res.Tent, tables[0].Attendees[0].Tent)

	require.Equal(t, 1, env.notifier.count())
	assert.Equal(t, "ada@example.com", env.notifier.sent[0].To)
	assert.Equal(t, res.QRPayload, env.notifier.sent[0].QRPayload)

	entries, err := env.activity.List(context.Background(), model.ActionRegister, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ada@example.com", entries[0].AttendeeEmail)
}

func TestRegisterReturnsExistingSeat(t *testing.T) {
	env := newTestEnv(t, nil, Options{})

	first := register(t, env.svc, "Ada Lovelace", "ada@example.com", model.GenderFemale)
	second := register(t, env.svc, "Someone Else", " ADA@example.com ", model.GenderMale)

	assert.True(t, second.IsExisting)
	assert.Equal(t, first.TableID, second.TableID)
	assert.Equal(t, first.SeatNumber, second.SeatNumber)
	assert.Equal(t, "Ada Lovelace", second.Name)
	assert.Nil(t, second.CapacityWarning)

	tables := allTables(t, env.store)
	require.Len(t, tables, 1)
	assert.Len(t, tables[0].Attendees, 1)
	assert.Equal(t, 1, env.notifier.count(), "no second email")
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, nil, Options{})

	_, err := env.svc.Register(context.Background(), model.RegisterRequest{Name: "X", Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.Register(context.Background(), model.RegisterRequest{Name: "Xavier", Email: "nope"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, allTables(t, env.store))
}

// assertSeating checks that no seat and no email is used twice and returns
// the seated emails.
func assertSeating(t *testing.T, store repository.Store) map[string]bool {
	t.Helper()
	seats := map[string]string{}
	emails := map[string]bool{}
	for _, tbl := range allTables(t, store) {
		assert.LessOrEqual(t, tbl.SeatCount, tbl.MaxCapacity)
		assert.Equal(t, len(tbl.Attendees), tbl.SeatCount)
		for i, a := range tbl.Attendees {
			key := fmt.Sprintf("%s/%d", tbl.ID, i+1)
			_, dup := seats[key]
			assert.False(t, dup, "seat %s assigned twice", key)
			seats[key] = a.Email
			assert.False(t, emails[a.Email], "email %s seated twice", a.Email)
			emails[a.Email] = true
		}
	}
	return emails
}

func TestRegisterConcurrentDistinctEmails(t *testing.T) {
	const n = 60
	env := newTestEnv(t, nil, Options{MaxAttempts: 2 * n})

	genders := []model.Gender{model.GenderMale, model.GenderFemale, model.GenderOther, ""}
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			_, err := env.svc.Register(context.Background(), model.RegisterRequest{
				Name:   "Guest",
				Email:  fmt.Sprintf("guest%d@example.com", i),
				Gender: string(genders[i%len(genders)]),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, assertSeating(t, env.store), n)
}

func TestRegisterConcurrentDefaultAttempts(t *testing.T) {
	const n = 30
	store := repository.NewMemoryStore()
	svc := New(store, repository.NewMemoryActivityLog(), &fakeNotifier{}, Options{}, nil)
	require.Equal(t, 3, svc.opts.MaxAttempts)

	var (
		mu     sync.Mutex
		seated = map[string]bool{}
		g      errgroup.Group
	)
	for i := range n {
		g.Go(func() error {
			email := fmt.Sprintf("guest%d@example.com", i)
			_, err := svc.Register(context.Background(), model.RegisterRequest{Name: "Guest", Email: email})
			switch {
			case err == nil:
				mu.Lock()
				seated[email] = true
				mu.Unlock()
				return nil
			case errors.Is(err, ErrRegistrationFailed):
				// Out of attempts is an allowed outcome; a collision is not.
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, seated, assertSeating(t, store))
}

func TestOptionsDefaults(t *testing.T) {
	svc := New(repository.NewMemoryStore(), nil, nil, Options{}, nil)
	assert.Equal(t, 3, svc.opts.MaxAttempts)
	assert.Equal(t, DefaultRetryBackoff, svc.opts.RetryBackoff)
	assert.Equal(t, 10*time.Second, svc.opts.EmailTimeout)

	svc = New(repository.NewMemoryStore(), nil, nil, Options{RetryBackoff: -time.Second}, nil)
	assert.Equal(t, DefaultRetryBackoff, svc.opts.RetryBackoff)
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	const n = 20
	env := newTestEnv(t, nil, Options{MaxAttempts: 2 * n})

	results := make([]*model.RegistrationResult, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			res, err := env.svc.Register(context.Background(), model.RegisterRequest{Name: "Twin", Email: "twin@example.com"})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	created := 0
	for _, res := range results {
		if !res.IsExisting {
			created++
		}
		assert.Equal(t, results[0].TableID, res.TableID)
		assert.Equal(t, results[0].SeatNumber, res.SeatNumber)
	}
	assert.Equal(t, 1, created)

	total := 0
	for _, tbl := range allTables(t, env.store) {
		total += len(tbl.Attendees)
	}
	assert.Equal(t, 1, total)
}

func TestRegisterRetriesConflicts(t *testing.T) {
	store := &conflictStore{MemoryStore: repository.NewMemoryStore(), conflicts: 2}
	env := newTestEnv(t, store, Options{MaxAttempts: 3})

	res := register(t, env.svc, "Grace Hopper", "grace@example.com", model.GenderFemale)

	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 1, res.SeatNumber)
	assert.Len(t, allTables(t, store), 1)
}

func TestRegisterGivesUpAfterMaxAttempts(t *testing.T) {
	store := &conflictStore{MemoryStore: repository.NewMemoryStore(), conflicts: 3}
	env := newTestEnv(t, store, Options{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	_, err := env.svc.Register(context.Background(), model.RegisterRequest{Name: "Grace Hopper", Email: "grace@example.com"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationFailed)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, 3, store.calls)
	assert.Empty(t, allTables(t, store))
	assert.Zero(t, env.notifier.count())
}

func TestRegisterNeverOverfillsTable(t *testing.T) {
	layout := model.Layout{Tents: 1, TablesPerTent: 2, SeatsPerTable: 8}
	env := newTestEnv(t, nil, Options{Layout: layout})

	var last *model.RegistrationResult
	for i := range 9 {
		last = register(t, env.svc, "Guest", fmt.Sprintf("g%d@example.com", i), model.GenderMale)
		assert.LessOrEqual(t, last.SeatNumber, 8)
	}
	assert.Equal(t, 1, last.SeatNumber, "ninth attendee opens a new table")

	tables := allTables(t, env.store)
	require.Len(t, tables, 2)
	counts := []int{tables[0].SeatCount, tables[1].SeatCount}
	assert.ElementsMatch(t, []int{8, 1}, counts)
}

func TestRegisterCapacityExceeded(t *testing.T) {
	layout := model.Layout{Tents: 1, TablesPerTent: 1, SeatsPerTable: 2}
	env := newTestEnv(t, nil, Options{Layout: layout})

	register(t, env.svc, "Guest One", "one@example.com", "")
	register(t, env.svc, "Guest Two", "two@example.com", "")

	_, err := env.svc.Register(context.Background(), model.RegisterRequest{Name: "Guest Three", Email: "three@example.com"})
	assert.ErrorIs(t, err, seating.ErrCapacityExceeded)

	// A known email still gets its seat back when the venue is full.
	res := register(t, env.svc, "Guest One", "one@example.com", "")
	assert.True(t, res.IsExisting)
}

func TestRegisterAttachesCapacityWarning(t *testing.T) {
	layout := model.Layout{Tents: 1, TablesPerTent: 1, SeatsPerTable: 5}
	env := newTestEnv(t, nil, Options{Layout: layout})

	for i := range 3 {
		res := register(t, env.svc, "Guest", fmt.Sprintf("g%d@example.com", i), "")
		assert.Nil(t, res.CapacityWarning)
	}

	res := register(t, env.svc, "Guest", "g3@example.com", "")
	require.NotNil(t, res.CapacityWarning)
	assert.Equal(t, seating.LevelWarning, res.CapacityWarning.Level)
	assert.InDelta(t, 80, res.CapacityWarning.Percent, 1e-9)

	res = register(t, env.svc, "Guest", "g4@example.com", "")
	require.NotNil(t, res.CapacityWarning)
	assert.Equal(t, seating.LevelFull, res.CapacityWarning.Level)
	assert.Contains(t, res.CapacityWarning.Message, "FULL")
}

func TestRegisterSurvivesEmailFailure(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.notifier.err = errors.New("smtp down")

	res := register(t, env.svc, "Ada Lovelace", "ada@example.com", "")
	assert.Equal(t, 1, res.SeatNumber)
	assert.Len(t, allTables(t, env.store), 1)
}

func TestRegisterBoundsEmailTime(t *testing.T) {
	env := newTestEnv(t, nil, Options{EmailTimeout: 20 * time.Millisecond})
	env.notifier.block = true

	start := time.Now()
	register(t, env.svc, "Ada Lovelace", "ada@example.com", "")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRegisterEmailSentActivity(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	register(t, env.svc, "Ada Lovelace", "ada@example.com", "")

	entries, err := env.activity.List(context.Background(), model.ActionEmailSent, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "system", entries[0].PerformedBy)

	queued := newTestEnv(t, nil, Options{QueueEmails: true})
	register(t, queued.svc, "Ada Lovelace", "ada@example.com", "")
	entries, err = queued.activity.List(context.Background(), model.ActionEmailSent, 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "the worker records delivery of queued mail")
}

func TestCheckExistingRegistration(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	ctx := context.Background()

	res, found, err := env.svc.CheckExistingRegistration(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, res)

	created := register(t, env.svc, "Ada Lovelace", "ada@example.com", model.GenderFemale)

	res, found, err = env.svc.CheckExistingRegistration(ctx, "  ADA@EXAMPLE.COM")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, res.IsExisting)
	assert.Equal(t, created.TableID, res.TableID)
	assert.Equal(t, created.QRPayload, res.QRPayload)

	_, _, err = env.svc.CheckExistingRegistration(ctx, "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterStopsOnCancelledContext(t *testing.T) {
	store := &conflictStore{MemoryStore: repository.NewMemoryStore(), conflicts: 5}
	env := newTestEnv(t, store, Options{MaxAttempts: 5, RetryBackoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "Ada Lovelace", Email: "ada@example.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, store.calls)
}
