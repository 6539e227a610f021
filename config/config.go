package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	ProviderConfig ProviderConfig `json:"provider"`
	EngineConfig   EngineConfig   `json:"engine"`
	AccountConfig  AccountConfig  `json:"account"`
	JournalConfig  JournalConfig  `json:"journal"`
	RedisConfig    RedisConfig    `json:"redis"`
	VaultConfig    VaultConfig    `json:"vault"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds single-operator authentication configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	OperatorUser        string        `json:"operator_user"`
	OperatorPassHash    string        `json:"operator_pass_hash"` // bcrypt hash
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// ProviderConfig holds market/indicator provider configuration
type ProviderConfig struct {
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"api_key"`
	StreamURL         string `json:"stream_url"`         // WebSocket price stream
	ValidatorURL      string `json:"validator_url"`      // Remote validation endpoint, empty = local only
	RequestTimeout    int    `json:"request_timeout"`    // Seconds
	ReconnectInterval int    `json:"reconnect_interval"` // Seconds between stream reconnects
}

// EngineConfig holds decision engine configuration
type EngineConfig struct {
	Symbol         string   `json:"symbol"`
	Timeframes     []string `json:"timeframes"`      // Ordered highest to lowest
	RefreshSeconds int      `json:"refresh_seconds"` // Pipeline refresh interval
	BarLimit       int      `json:"bar_limit"`       // Bars fetched per timeframe
}

// AccountConfig holds default account settings for position sizing
type AccountConfig struct {
	Balance        float64 `json:"balance"`
	RiskPercentage float64 `json:"risk_percentage"`
}

// JournalConfig holds trade journal database configuration
type JournalConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds snapshot cache configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration for provider credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output vs console writer
}

// Load reads configuration from config.json (if present) and applies
// environment overrides on top.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat("config.json"); err == nil {
		loaded, err := loadFromFile("config.json")
		if err != nil {
			return nil, fmt.Errorf("failed to load config.json: %w", err)
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if len(cfg.EngineConfig.Timeframes) < 2 {
		return nil, fmt.Errorf("engine requires at least 2 timeframes, got %d", len(cfg.EngineConfig.Timeframes))
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			Enabled:             false,
			AccessTokenDuration: 12 * time.Hour,
		},
		ProviderConfig: ProviderConfig{
			BaseURL:           "http://localhost:9090",
			RequestTimeout:    10,
			ReconnectInterval: 5,
		},
		EngineConfig: EngineConfig{
			Symbol:         "BTCUSDT",
			Timeframes:     []string{"1d", "4h", "1h", "15m"},
			RefreshSeconds: 60,
			BarLimit:       200,
		},
		AccountConfig: AccountConfig{
			Balance:        10000,
			RiskPercentage: 1.0,
		},
		JournalConfig: JournalConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "tradedesk",
			Database: "tradedesk",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "tradedesk/provider",
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Auth config - always apply from environment
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.AuthConfig.Enabled = v == "true"
	}
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.OperatorUser = getEnvOrDefault("AUTH_OPERATOR_USER", cfg.AuthConfig.OperatorUser)
	cfg.AuthConfig.OperatorPassHash = getEnvOrDefault("AUTH_OPERATOR_PASS_HASH", cfg.AuthConfig.OperatorPassHash)

	// Provider config
	cfg.ProviderConfig.BaseURL = getEnvOrDefault("PROVIDER_BASE_URL", cfg.ProviderConfig.BaseURL)
	cfg.ProviderConfig.APIKey = getEnvOrDefault("PROVIDER_API_KEY", cfg.ProviderConfig.APIKey)
	cfg.ProviderConfig.StreamURL = getEnvOrDefault("PROVIDER_STREAM_URL", cfg.ProviderConfig.StreamURL)
	cfg.ProviderConfig.ValidatorURL = getEnvOrDefault("PROVIDER_VALIDATOR_URL", cfg.ProviderConfig.ValidatorURL)

	// Engine config
	cfg.EngineConfig.Symbol = getEnvOrDefault("ENGINE_SYMBOL", cfg.EngineConfig.Symbol)
	cfg.EngineConfig.RefreshSeconds = getEnvIntOrDefault("ENGINE_REFRESH_SECONDS", cfg.EngineConfig.RefreshSeconds)

	// Account defaults
	cfg.AccountConfig.Balance = getEnvFloatOrDefault("ACCOUNT_BALANCE", cfg.AccountConfig.Balance)
	cfg.AccountConfig.RiskPercentage = getEnvFloatOrDefault("ACCOUNT_RISK_PERCENT", cfg.AccountConfig.RiskPercentage)

	// Journal config
	if v := os.Getenv("JOURNAL_ENABLED"); v != "" {
		cfg.JournalConfig.Enabled = v == "true"
	}
	cfg.JournalConfig.Host = getEnvOrDefault("JOURNAL_DB_HOST", cfg.JournalConfig.Host)
	cfg.JournalConfig.Port = getEnvIntOrDefault("JOURNAL_DB_PORT", cfg.JournalConfig.Port)
	cfg.JournalConfig.User = getEnvOrDefault("JOURNAL_DB_USER", cfg.JournalConfig.User)
	cfg.JournalConfig.Password = getEnvOrDefault("JOURNAL_DB_PASSWORD", cfg.JournalConfig.Password)
	cfg.JournalConfig.Database = getEnvOrDefault("JOURNAL_DB_NAME", cfg.JournalConfig.Database)

	// Redis config
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	// Vault config
	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		cfg.VaultConfig.Enabled = v == "true"
	}
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LoggingConfig.JSONFormat = v == "true"
	}
}

func loadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config JSON: %w", err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
