package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, model.DefaultLayout, cfg.Event.Layout)
	assert.Equal(t, 216, cfg.Event.Layout.Capacity())
	assert.Equal(t, 3, cfg.Registration.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Registration.RetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.Email.SendTimeout)
	assert.False(t, cfg.Email.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("TENTS", "2")
	t.Setenv("TABLES_PER_TENT", "4")
	t.Setenv("SEATS_PER_TABLE", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, model.Layout{Tents: 2, TablesPerTent: 4, SeatsPerTable: 10}, cfg.Event.Layout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSAllowedOrigins)
}

func TestValidateRejectsBadLayout(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("TABLES_PER_TENT", "12")

	_, err := Load()
	assert.ErrorContains(t, err, "TABLES_PER_TENT")
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "feast", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=feast sslmode=disable", c.DSN())

	c.URL = "postgres://x"
	assert.Equal(t, "postgres://x", c.DSN())
}
