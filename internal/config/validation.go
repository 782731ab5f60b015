package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
)

// Sentinel errors for configuration validation. All are fatal at startup:
// a process with a broken configuration must not begin serving or refreshing.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the embedder API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder dimension is out of range.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidRetryPolicy indicates the embedding retry settings are out of range.
	ErrInvalidRetryPolicy = errors.New("invalid embedding retry policy")

	// ErrInvalidRequestTimeout indicates the external-call timeout is out of range.
	ErrInvalidRequestTimeout = errors.New("invalid request timeout")

	// ErrInvalidRefreshInterval indicates the refresh interval is out of range.
	ErrInvalidRefreshInterval = errors.New("invalid refresh interval")

	// ErrInvalidRefreshCron indicates the refresh cron expression does not parse.
	ErrInvalidRefreshCron = errors.New("invalid refresh cron expression")

	// ErrInvalidTopK indicates the default top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top-k default")

	// ErrInvalidMinScore indicates the default minimum score is out of range.
	ErrInvalidMinScore = errors.New("invalid min-score default")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// MaxTopK bounds the top-k default to prevent unbounded store scans.
const MaxTopK = 100

// Validate performs fail-fast validation of the full configuration.
// The first violation found is returned; callers treat any error as fatal.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateEmbedder(); err != nil {
		return err
	}
	if err := c.validateRefresh(); err != nil {
		return err
	}
	return c.validateRetrieval()
}

func (c *Config) validateStorage() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		return nil
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
}

func (c *Config) validateEmbedder() error {
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 8192 {
		return fmt.Errorf("%w: dimension must be 1-8192, got %d", ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}
	if c.EmbeddingRetryAttempts < 0 || c.EmbeddingRetryAttempts > 10 {
		return fmt.Errorf("%w: attempts must be 0-10, got %d", ErrInvalidRetryPolicy, c.EmbeddingRetryAttempts)
	}
	if c.EmbeddingRetryBackoff <= 0 {
		return fmt.Errorf("%w: backoff must be positive, got %v", ErrInvalidRetryPolicy, c.EmbeddingRetryBackoff)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: must be positive, got %v", ErrInvalidRequestTimeout, c.RequestTimeout)
	}
	// GEMINI_API_KEY is read directly by the Genkit plugin; fail here rather
	// than on the first embedding call.
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is not set", ErrMissingAPIKey)
	}
	return nil
}

func (c *Config) validateRefresh() error {
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRefreshCron, c.RefreshCron, err)
		}
		return nil
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("%w: must be positive, got %v", ErrInvalidRefreshInterval, c.RefreshInterval)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	if c.TopKDefault < 1 || c.TopKDefault > MaxTopK {
		return fmt.Errorf("%w: must be 1-%d, got %d", ErrInvalidTopK, MaxTopK, c.TopKDefault)
	}
	if c.MinScoreDefault < -1 || c.MinScoreDefault > 1 {
		return fmt.Errorf("%w: must be in [-1, 1], got %v", ErrInvalidMinScore, c.MinScoreDefault)
	}
	return nil
}
