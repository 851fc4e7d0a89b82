// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or ~/.pointstack/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Gateway: chat-completion endpoint URL, API key, per-call timeout
//   - Embedder: embedding model for semantic cache and retrieval
//   - Cache: response-cache TTL and semantic-match threshold
//   - Storage: PostgreSQL connection (see storage.go)
//   - Server: listen address, CORS origins
//
// Sensitive values (API key, database password) are masked in MarshalJSON so
// the config can be logged safely.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates the gateway API key is missing.
	ErrMissingAPIKey = errors.New("missing gateway API key")

	// ErrInvalidGatewayURL indicates the gateway base URL is invalid.
	ErrInvalidGatewayURL = errors.New("invalid gateway URL")

	// ErrInvalidThreshold indicates the cache similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid cache similarity threshold")

	// ErrInvalidCacheTTL indicates the cache TTL is out of range.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the pgvector schema uses 768 dimensions.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultCacheTTLHours is the default response-cache lifetime (7 days).
	DefaultCacheTTLHours = 168

	// DefaultSimilarityThreshold is the default cosine-similarity floor for a
	// semantic cache hit. Tuned to admit paraphrases while rejecting
	// topically-adjacent but materially different questions.
	DefaultSimilarityThreshold = 0.92
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Model gateway configuration
	GatewayBaseURL string `mapstructure:"gateway_base_url" json:"gateway_base_url"`
	GatewayAPIKey  string `mapstructure:"gateway_api_key" json:"gateway_api_key"` // SENSITIVE: masked in MarshalJSON

	// Embedder configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Response cache configuration
	CacheTTLHours            int     `mapstructure:"cache_ttl_hours" json:"cache_ttl_hours"`
	CacheSimilarityThreshold float64 `mapstructure:"cache_similarity_threshold" json:"cache_similarity_threshold"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".pointstack")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
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

	// DATABASE_URL overrides individual postgres_* settings.
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
	viper.SetDefault("gateway_base_url", "https://ai.gateway.lovable.dev/v1")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	viper.SetDefault("cache_ttl_hours", DefaultCacheTTLHours)
	viper.SetDefault("cache_similarity_threshold", DefaultSimilarityThreshold)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "pointstack")
	viper.SetDefault("postgres_password", "pointstack_dev_password")
	viper.SetDefault("postgres_db_name", "pointstack")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by the Genkit plugin, not via viper.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gateway_base_url", "POINTSTACK_GATEWAY_URL")
	mustBind("gateway_api_key", "POINTSTACK_GATEWAY_API_KEY")
	mustBind("embedder_model", "POINTSTACK_EMBEDDER_MODEL")
	mustBind("cache_ttl_hours", "POINTSTACK_CACHE_TTL_HOURS")
	mustBind("cache_similarity_threshold", "POINTSTACK_CACHE_THRESHOLD")
	mustBind("listen_addr", "POINTSTACK_LISTEN_ADDR")
	mustBind("cors_origins", "POINTSTACK_CORS_ORIGINS")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are fully
// masked to prevent substring matching; longer ones keep two edge characters
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GatewayAPIKey = maskSecret(a.GatewayAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
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
