package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/feast-seating/internal/mail"
	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
	"github.com/Shivanand-hulikatti/feast-seating/internal/queue"
	"github.com/Shivanand-hulikatti/feast-seating/internal/repository"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []mail.Confirmation
}

func (s *fakeSender) Send(_ context.Context, c mail.Confirmation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, c)
	return "<id@test>", nil
}

// fakeSource hands out its jobs once, then reports an empty poll.
type fakeSource struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (s *fakeSource) Dequeue(ctx context.Context) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		time.Sleep(time.Millisecond)
		return nil, ctx.Err()
	}
	j := s.jobs[0]
	s.jobs = s.jobs[1:]
	return j, nil
}

func (s *fakeSource) Retry(_ context.Context, job *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Attempt++
	s.retried = append(s.retried, job)
	return nil
}

func confirmationJob(t *testing.T) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(mail.Confirmation{
		To: "grace@example.com", Name: "Grace Hopper", TableNumber: 2, Tent: 1, SeatNumber: 5, EventName: "Love Feast",
	})
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Type: queue.JobTypeConfirmationEmail, Payload: payload}
}

func TestProcessSendsAndRecordsActivity(t *testing.T) {
	sender := &fakeSender{}
	activity := repository.NewMemoryActivityLog()
	p := NewEmailProcessor(&fakeSource{}, sender, activity, time.Second, nil)

	require.NoError(t, p.Process(context.Background(), confirmationJob(t)))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "grace@example.com", sender.sent[0].To)

	entries, err := activity.List(context.Background(), model.ActionEmailSent, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].SeatNumber)
}

func TestProcessRejectsUnknownJob(t *testing.T) {
	p := NewEmailProcessor(&fakeSource{}, &fakeSender{}, nil, time.Second, nil)
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "other"})
	assert.ErrorContains(t, err, "unknown job type")
}

func TestRunRetriesFailedJobs(t *testing.T) {
	source := &fakeSource{jobs: []*queue.Job{confirmationJob(t)}}
	p := NewEmailProcessor(source, &fakeSender{err: errors.New("smtp down")}, nil, time.Second, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.retried) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 1, source.retried[0].Attempt)
}
