// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.kura/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Storage: PostgreSQL connection for the vector index (see storage.go)
//   - Embedder: model selection, retry policy, request timeout
//   - Refresh: interval or cron cadence for background ingestion
//   - Retrieval: top-k and minimum-score defaults
//   - Sources: external document feeds (Notion)
//
// Sensitive values (passwords, tokens) are masked in MarshalJSON and String.
// Validation is fail-fast: Load returns an error before any component is
// wired with a broken configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimension matches db/migrations: the documents table is
	// created with vector(768). Changing one requires changing the other.
	DefaultEmbedderDimension = 768

	// DefaultRefreshInterval is how often the background refresh runs when
	// no cron expression is configured.
	DefaultRefreshInterval = 24 * time.Hour

	// DefaultTopK is the number of matches returned when a query does not
	// specify k.
	DefaultTopK = 5
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Embedder configuration
	EmbedderModel          string        `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension      int           `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	EmbeddingRetryAttempts int           `mapstructure:"embedding_retry_attempts" json:"embedding_retry_attempts"`
	EmbeddingRetryBackoff  time.Duration `mapstructure:"embedding_retry_backoff" json:"embedding_retry_backoff"`
	RequestTimeout         time.Duration `mapstructure:"request_timeout" json:"request_timeout"`

	// Refresh configuration. RefreshCron, when set, takes precedence over
	// RefreshInterval (standard 5-field cron expression).
	RefreshInterval time.Duration `mapstructure:"refresh_interval" json:"refresh_interval"`
	RefreshCron     string        `mapstructure:"refresh_cron" json:"refresh_cron"`

	// Retrieval configuration
	TopKDefault     int     `mapstructure:"top_k_default" json:"top_k_default"`
	MinScoreDefault float32 `mapstructure:"min_score_default" json:"min_score_default"`

	// Source feed configuration
	NotionToken   string        `mapstructure:"notion_token" json:"notion_token"` // SENSITIVE: masked in MarshalJSON
	SourceMaxDocs int           `mapstructure:"source_max_docs" json:"source_max_docs"`
	SourceTimeout time.Duration `mapstructure:"source_timeout" json:"source_timeout"`

	// Observability configuration. Tracing is enabled when OTLPEndpoint is set.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	LogLevel     string `mapstructure:"log_level" json:"log_level"`
}

// SlogLevel converts the configured log level to a slog.Level.
// Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	// Optional .env in the working directory; missing file is not an error.
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".kura")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "kura")
	viper.SetDefault("postgres_password", "kura_dev_password")
	viper.SetDefault("postgres_db_name", "kura")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Embedder defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	viper.SetDefault("embedding_retry_attempts", 3)
	viper.SetDefault("embedding_retry_backoff", 500*time.Millisecond)
	viper.SetDefault("request_timeout", 30*time.Second)

	// Refresh defaults
	viper.SetDefault("refresh_interval", DefaultRefreshInterval)
	viper.SetDefault("refresh_cron", "")

	// Retrieval defaults
	viper.SetDefault("top_k_default", DefaultTopK)
	viper.SetDefault("min_score_default", 0.0)

	// Source defaults
	viper.SetDefault("source_max_docs", 0) // 0 = unlimited
	viper.SetDefault("source_timeout", 60*time.Second)

	// Observability defaults
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("environment", "dev")
	viper.SetDefault("service_name", "kura")
	viper.SetDefault("log_level", "info")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by the Genkit plugin, not via viper;
// its presence is checked in Validate.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("notion_token", "NOTION_TOKEN")
	mustBind("otlp_endpoint", "KURA_OTLP_ENDPOINT")
	mustBind("environment", "KURA_ENV")
	mustBind("service_name", "KURA_SERVICE_NAME")
	mustBind("embedder_model", "KURA_EMBEDDER_MODEL")
	mustBind("refresh_cron", "KURA_REFRESH_CRON")
	mustBind("refresh_interval", "KURA_REFRESH_INTERVAL")
	mustBind("log_level", "KURA_LOG_LEVEL")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 characters
// or fewer are fully masked to prevent substring matching; longer secrets
// keep the first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.NotionToken = maskSecret(a.NotionToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
