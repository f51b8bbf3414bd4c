package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithSecrets_VaultDisabled(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "")
	t.Setenv("ADMIN_SECRET", "local")

	cfg, err := LoadWithSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Admin.Secret)
}

func TestLoadWithSecrets_PullsCredentialsFromVault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"ADMIN_SECRET":"vault-admin","DB_PASSWORD":"vault-db"}}}`))
	}))
	defer server.Close()

	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", server.URL)
	t.Setenv("VAULT_TOKEN", "token")
	t.Setenv("VAULT_PATH", "reviewgate")
	t.Setenv("VAULT_KEYS", "")
	t.Setenv("ADMIN_SECRET", "")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := LoadWithSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "vault-admin", cfg.Admin.Secret)
	assert.Equal(t, "vault-db", cfg.Database.Password)
	assert.True(t, cfg.StoreConfigured())
}

func TestLoadWithSecrets_IncompleteVaultConfig(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "")
	t.Setenv("VAULT_PATH", "")

	_, err := LoadWithSecrets(context.Background())
	assert.Error(t, err)
}
