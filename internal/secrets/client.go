// Package secrets resolves provider credentials from HashiCorp Vault, with an
// environment fallback when Vault is disabled.
package secrets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/vault/api"

	"tradedesk/config"
)

// ProviderCredentials holds the market data provider credentials
type ProviderCredentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *ProviderCredentials
}

// NewClient creates a new Vault client. When Vault is disabled, the client
// serves credentials from the environment instead.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// ProviderCredentials returns the provider credentials, reading Vault once and
// caching the result. With Vault disabled, PROVIDER_API_KEY and
// PROVIDER_API_SECRET are used.
func (c *Client) ProviderCredentials(ctx context.Context) (*ProviderCredentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		creds := &ProviderCredentials{
			APIKey:    os.Getenv("PROVIDER_API_KEY"),
			APISecret: os.Getenv("PROVIDER_API_SECRET"),
		}
		c.mu.Lock()
		c.cached = creds
		c.mu.Unlock()
		return creds, nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("provider credentials not found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &ProviderCredentials{
		APIKey:    getString(data, "api_key"),
		APISecret: getString(data, "api_secret"),
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()

	return creds, nil
}

// StoreProviderCredentials writes provider credentials to Vault and updates
// the cache. No-op with Vault disabled.
func (c *Client) StoreProviderCredentials(ctx context.Context, creds ProviderCredentials) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cached = &creds
		c.mu.Unlock()
		return nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"api_secret": creds.APISecret,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store provider credentials in vault: %w", err)
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()

	return nil
}

// ClearCache drops the cached credentials so the next read hits Vault.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
