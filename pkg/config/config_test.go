package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("CONFIRM_WINDOW", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, PlaceholderCredential, cfg.Database.Password)
	assert.Equal(t, 3*time.Second, cfg.Admin.ConfirmWindow)
	assert.False(t, cfg.StoreConfigured())
}

func TestLoad_StoreConfigured(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PASSWORD", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.StoreConfigured())
	assert.Contains(t, cfg.Database.DatabaseDSN(), "host=db.internal")
}

func TestLoad_MemoryDriverIsAlwaysConfigured(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DB_PASSWORD", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.StoreConfigured())
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ParsesDurationsAndOrigins(t *testing.T) {
	t.Setenv("CONFIRM_WINDOW", "5s")
	t.Setenv("ADMIN_SESSION_TTL", "15m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Admin.ConfirmWindow)
	assert.Equal(t, 15*time.Minute, cfg.Admin.SessionTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}
