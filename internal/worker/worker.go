// Package worker delivers queued confirmation emails.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/feast-seating/internal/mail"
	"github.com/Shivanand-hulikatti/feast-seating/internal/metrics"
	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
	"github.com/Shivanand-hulikatti/feast-seating/internal/queue"
	"github.com/Shivanand-hulikatti/feast-seating/internal/repository"
)

// JobSource is the part of queue.Queue the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Sender delivers one confirmation email.
type Sender interface {
	Send(ctx context.Context, c mail.Confirmation) (string, error)
}

// EmailProcessor sends queued confirmation emails.
type EmailProcessor struct {
	jobs     JobSource
	sender   Sender
	activity repository.ActivityLog
	timeout  time.Duration
	backoff  time.Duration
	logger   *zap.Logger
}

// NewEmailProcessor creates an email processor. activity may be nil.
func NewEmailProcessor(jobs JobSource, sender Sender, activity repository.ActivityLog, timeout time.Duration, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailProcessor{
		jobs:     jobs,
		sender:   sender,
		activity: activity,
		timeout:  timeout,
		backoff:  queue.RetryBackoff,
		logger:   logger,
	}
}

// Process executes one job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	c, err := job.Confirmation()
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	messageID, err := p.sender.Send(sendCtx, c)
	if err != nil {
		metrics.RecordEmail(metrics.EmailFailed)
		return fmt.Errorf("send: %w", err)
	}
	metrics.RecordEmail(metrics.EmailSent)

	if p.activity != nil {
		entry := &model.Activity{
			Action:        model.ActionEmailSent,
			PerformedBy:   "system",
			AttendeeName:  c.Name,
			AttendeeEmail: c.To,
			TableNumber:   c.TableNumber,
			Tent:          c.Tent,
			SeatNumber:    c.SeatNumber,
			Details:       "Confirmation email sent " + messageID,
		}
		if err := p.activity.Record(ctx, entry); err != nil {
			p.logger.Warn("record email activity failed", zap.Error(err))
		}
	}
	p.logger.Info("confirmation email delivered", zap.String("job_id", job.ID), zap.String("to", c.To))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
