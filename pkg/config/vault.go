package config

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"github.com/zatekoja/reviewgate/backend/pkg/secrets"
)

// LoadWithSecrets pulls credentials from Vault into the environment when
// VAULT_ENABLED is set, then loads the configuration.
func LoadWithSecrets(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	if _, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv()); err != nil {
		return nil, fmt.Errorf("failed to load secrets from vault: %w", err)
	}
	return Load()
}
