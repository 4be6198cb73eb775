// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Email        EmailConfig
	Event        EventConfig
	Registration RegistrationConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CORSAllowedOrigins []string
	AdminToken         string // bearer token for /api/admin; empty disables admin routes
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Store    string // "postgres" or "memory"
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// email queue and mails are sent inline.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	FromAddress string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	SendTimeout time.Duration
}

// Enabled reports whether SMTP delivery is configured.
func (c EmailConfig) Enabled() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPass != ""
}

// EventConfig describes the event and its seating layout.
type EventConfig struct {
	Name   string
	Layout model.Layout
}

// RegistrationConfig bounds the transactional retry loop.
type RegistrationConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        time.Duration(getEnvInt("READ_TIMEOUT_SEC", 15)) * time.Second,
			WriteTimeout:       time.Duration(getEnvInt("WRITE_TIMEOUT_SEC", 30)) * time.Second,
			CORSAllowedOrigins: splitTrim(getEnv("CORS_ALLOWED_ORIGINS", "*"), ","),
			AdminToken:         getEnv("ADMIN_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Store:    strings.ToLower(getEnv("STORE", "postgres")),
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "feast"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Love Feast"),
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
			SendTimeout: time.Duration(getEnvInt("EMAIL_TIMEOUT_SEC", 10)) * time.Second,
		},
		Event: EventConfig{
			Name: getEnv("EVENT_NAME", "Love Feast"),
			Layout: model.Layout{
				Tents:         getEnvInt("TENTS", model.DefaultLayout.Tents),
				TablesPerTent: getEnvInt("TABLES_PER_TENT", model.DefaultLayout.TablesPerTent),
				SeatsPerTable: getEnvInt("SEATS_PER_TABLE", model.DefaultLayout.SeatsPerTable),
			},
		},
		Registration: RegistrationConfig{
			MaxAttempts:  getEnvInt("REGISTRATION_MAX_ATTEMPTS", 3),
			RetryBackoff: time.Duration(getEnvInt("REGISTRATION_RETRY_BACKOFF_MS", 100)) * time.Millisecond,
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects layouts the allocator cannot serve.
func (c *Config) Validate() error {
	var errs []error
	l := c.Event.Layout
	if l.Tents <= 0 {
		errs = append(errs, errors.New("TENTS must be positive"))
	}
	if l.TablesPerTent <= 0 || l.TablesPerTent > len(model.TableNames) {
		errs = append(errs, fmt.Errorf("TABLES_PER_TENT must be between 1 and %d", len(model.TableNames)))
	}
	if l.SeatsPerTable <= 0 {
		errs = append(errs, errors.New("SEATS_PER_TABLE must be positive"))
	}
	if c.Registration.MaxAttempts <= 0 {
		errs = append(errs, errors.New("REGISTRATION_MAX_ATTEMPTS must be positive"))
	}
	switch c.Database.Store {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE must be postgres or memory, got %q", c.Database.Store))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
