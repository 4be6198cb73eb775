// Package main runs the background worker that delivers queued
// confirmation emails.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Shivanand-hulikatti/feast-seating/internal/config"
	"github.com/Shivanand-hulikatti/feast-seating/internal/database"
	"github.com/Shivanand-hulikatti/feast-seating/internal/mail"
	"github.com/Shivanand-hulikatti/feast-seating/internal/queue"
	"github.com/Shivanand-hulikatti/feast-seating/internal/repository"
	"github.com/Shivanand-hulikatti/feast-seating/internal/worker"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Redis.Addr == "" {
		logger.Fatal("REDIS_ADDR is required by the email worker")
	}

	ctx := context.Background()
	rdb, err := queue.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var activity repository.ActivityLog
	if cfg.Database.Store == "postgres" {
		pool, err := database.NewPool(ctx, cfg.Database.DSN(), database.PoolConfig{MaxConns: 4, MinConns: 1}, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		activity = repository.NewActivityRepository(pool)
	}

	var sender worker.Sender = mail.NewLogSender(logger)
	if cfg.Email.Enabled() {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:        cfg.Email.SMTPHost,
			Port:        cfg.Email.SMTPPort,
			User:        cfg.Email.SMTPUser,
			Password:    cfg.Email.SMTPPass,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		}, logger)
	} else {
		logger.Warn("SMTP not configured, jobs will fail and land in the dead-letter queue")
	}

	jobQueue := queue.NewQueue(rdb, logger)
	processor := worker.NewEmailProcessor(jobQueue, sender, activity, cfg.Email.SendTimeout, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("email worker started", zap.String("queue", queue.QueueEmails))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
