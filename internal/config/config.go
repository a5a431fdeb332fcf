package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no flag or environment override is present.
const DefaultConfigPath = "config.yaml"

// Config holds the full service configuration.
//
// Values are read from an optional YAML file first, then overlaid with
// environment variables so deployments can keep secrets out of the file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Billing  BillingConfig  `yaml:"billing"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"SERVER_ADDR"`
}

// DatabaseConfig configures the persistent store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

// AuthConfig holds the shared secrets and panel session settings.
type AuthConfig struct {
	// APIKey authenticates the upstream gateway on billing endpoints.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// AccessToken authenticates panel administrators.
	AccessToken string `yaml:"access_token" env:"ACCESS_TOKEN"`
	// JWTSecret signs panel session tokens. Defaults to AccessToken.
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiry time.Duration `yaml:"jwt_expiry" env:"JWT_EXPIRY"`
}

// BillingConfig holds pricing defaults for lazily created rows.
type BillingConfig struct {
	// DefaultInputPrice and DefaultOutputPrice seed new model price rows,
	// in currency per 1,000,000 tokens.
	DefaultInputPrice  float64 `yaml:"default_input_price" env:"DEFAULT_MODEL_INPUT_PRICE"`
	DefaultOutputPrice float64 `yaml:"default_output_price" env:"DEFAULT_MODEL_OUTPUT_PRICE"`
	DefaultPerMsgPrice float64 `yaml:"default_per_msg_price" env:"DEFAULT_MODEL_PER_MSG_PRICE"`
	// InitBalance seeds newly provisioned user accounts, in currency units.
	InitBalance float64 `yaml:"init_balance" env:"INIT_BALANCE"`
}

// UpstreamConfig points at the open-webui instance whose model catalog is
// mirrored into the price table.
type UpstreamConfig struct {
	Domain string `yaml:"domain" env:"OPENWEBUI_DOMAIN"`
	APIKey string `yaml:"api_key" env:"OPENWEBUI_API_KEY"`
}

// LogConfig configures logrus output.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
	// File enables rotating file output when non-empty.
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
}

// ResolveConfigPath picks the config file path from the flag value or the
// CONFIG_PATH environment variable.
func ResolveConfigPath(flagValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if fromEnv := strings.TrimSpace(os.Getenv("CONFIG_PATH")); fromEnv != "" {
		return fromEnv
	}
	return DefaultConfigPath
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides, and fills defaults. A missing file is not an error so the
// service can run from environment variables alone.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if data, errRead := os.ReadFile(path); errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	if errEnv := env.Parse(cfg); errEnv != nil {
		return nil, fmt.Errorf("config: env overlay: %w", errEnv)
	}

	cfg.applyFallbacks()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":7878"},
		Database: DatabaseConfig{DSN: "data/usage-meter.db"},
		Auth:     AuthConfig{JWTExpiry: 24 * time.Hour},
		Billing: BillingConfig{
			DefaultInputPrice:  60,
			DefaultOutputPrice: 60,
			DefaultPerMsgPrice: -1,
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 5},
	}
}

func (c *Config) applyFallbacks() {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		c.Auth.JWTSecret = c.Auth.AccessToken
	}
	if c.Auth.JWTExpiry <= 0 {
		c.Auth.JWTExpiry = 24 * time.Hour
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database dsn is required")
	}
	if c.Billing.DefaultInputPrice < 0 || c.Billing.DefaultOutputPrice < 0 {
		return fmt.Errorf("config: default token prices must be non-negative")
	}
	return nil
}
