// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Shivanand-hulikatti/feast-seating/internal/config"
	"github.com/Shivanand-hulikatti/feast-seating/internal/database"
	"github.com/Shivanand-hulikatti/feast-seating/internal/handler"
	"github.com/Shivanand-hulikatti/feast-seating/internal/mail"
	"github.com/Shivanand-hulikatti/feast-seating/internal/metrics"
	"github.com/Shivanand-hulikatti/feast-seating/internal/queue"
	"github.com/Shivanand-hulikatti/feast-seating/internal/repository"
	"github.com/Shivanand-hulikatti/feast-seating/internal/service"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	ctx := context.Background()

	// ── 1. Storage ────────────────────────────────────────────────────────
	var (
		store    repository.Store
		activity repository.ActivityLog
	)
	switch cfg.Database.Store {
	case "memory":
		store = repository.NewMemoryStore()
		activity = repository.NewMemoryActivityLog()
		logger.Warn("using in-memory store, data is lost on restart")
	default:
		pool, err := database.NewPool(ctx, cfg.Database.DSN(), database.PoolConfig{}, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		store = repository.NewPostgresStore(pool)
		activity = repository.NewActivityRepository(pool)
	}

	// ── 2. Confirmation email delivery ────────────────────────────────────
	var (
		notifier service.Notifier
		queued   bool
	)
	switch {
	case cfg.Redis.Addr != "":
		rdb, err := queue.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		notifier, queued = queue.NewQueue(rdb, logger), true
	case cfg.Email.Enabled():
		notifier = mail.NewSMTPSender(smtpConfig(cfg.Email), logger)
	default:
		logger.Warn("SMTP not configured, confirmation emails are only logged")
		notifier = mail.NewLogSender(logger)
	}

	// ── 3. Wire up layers ─────────────────────────────────────────────────
	metrics.Register(prometheus.DefaultRegisterer)
	svc := service.New(store, activity, notifier, service.Options{
		Layout:       cfg.Event.Layout,
		EventName:    cfg.Event.Name,
		MaxAttempts:  cfg.Registration.MaxAttempts,
		RetryBackoff: cfg.Registration.RetryBackoff,
		EmailTimeout: cfg.Email.SendTimeout,
		QueueEmails:  queued,
	}, logger)
	h := handler.New(svc, logger)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(logger))
	r.Use(handler.CORS(cfg.Server.CORSAllowedOrigins))

	r.Handle("/metrics", promhttp.Handler())
	h.Mount(r, cfg.Server.AdminToken)
	if cfg.Server.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin routes are disabled")
	}

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Database.Store),
			zap.Int("capacity", cfg.Event.Layout.Capacity()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

func smtpConfig(c config.EmailConfig) mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:        c.SMTPHost,
		Port:        c.SMTPPort,
		User:        c.SMTPUser,
		Password:    c.SMTPPass,
		FromAddress: c.FromAddress,
		FromName:    c.FromName,
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
