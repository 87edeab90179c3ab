package config

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// vaultKeyFields maps Vault secret fields onto config destinations.
var vaultKeyFields = []string{
	"openrouter_api_key",
	"finnhub_api_key",
	"alpha_vantage_api_key",
	"telegram_bot_token",
}

// VaultClient wraps the HashiCorp Vault client for API-key retrieval.
type VaultClient struct {
	client     *vault.Client
	secretPath string
}

// NewVaultClient creates a Vault client from configuration. Callers should
// only construct one when cfg.Address is set; absent Vault the services run
// on environment-provided keys.
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address not configured")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	log.Info().
		Str("address", cfg.Address).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized")

	return &VaultClient{client: client, secretPath: cfg.SecretPath}, nil
}

// GetSecret reads the secret map at the configured path.
func (vc *VaultClient) GetSecret(ctx context.Context) (map[string]interface{}, error) {
	secret, err := vc.client.Logical().ReadWithContext(ctx, vc.secretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", vc.secretPath)
	}

	// KV v2 nests the payload under "data"
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

// LoadSecretsFromVault overlays API keys from Vault onto the config. Keys
// already present (from environment) are kept; Vault fills the gaps. When
// Vault is not configured this is a no-op.
func LoadSecretsFromVault(ctx context.Context, cfg *Config) error {
	if cfg.Vault.Address == "" {
		log.Debug().Msg("Vault not configured - using environment variables for secrets")
		return nil
	}

	vc, err := NewVaultClient(cfg.Vault)
	if err != nil {
		return err
	}

	data, err := vc.GetSecret(ctx)
	if err != nil {
		return err
	}

	get := func(field string) string {
		if v, ok := data[field].(string); ok {
			return v
		}
		return ""
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = get("openrouter_api_key")
	}
	if cfg.News.FinnhubAPIKey == "" {
		cfg.News.FinnhubAPIKey = get("finnhub_api_key")
	}
	if cfg.Market.FinnhubAPIKey == "" {
		cfg.Market.FinnhubAPIKey = get("finnhub_api_key")
	}
	if cfg.Market.AlphaVantageAPIKey == "" {
		cfg.Market.AlphaVantageAPIKey = get("alpha_vantage_api_key")
	}
	if cfg.Alerts.TelegramToken == "" {
		cfg.Alerts.TelegramToken = get("telegram_bot_token")
	}

	log.Info().Int("fields", len(vaultKeyFields)).Msg("Secrets loaded from Vault")
	return nil
}
