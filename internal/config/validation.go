package config

import (
	"fmt"
	"net/url"
	"os"
)

// validSSLModes are the PostgreSQL SSL modes accepted by the pgx driver.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration for invalid values. Fail-fast: called by
// Load so a broken config never reaches component wiring.
func (c *Config) Validate() error {
	if c.GatewayBaseURL == "" {
		return fmt.Errorf("%w: gateway_base_url is empty", ErrInvalidGatewayURL)
	}
	parsed, err := url.Parse(c.GatewayBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidGatewayURL, c.GatewayBaseURL)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidEmbedderModel)
	}

	if c.CacheTTLHours < 1 {
		return fmt.Errorf("%w: cache_ttl_hours must be >= 1, got %d", ErrInvalidCacheTTL, c.CacheTTLHours)
	}
	if c.CacheSimilarityThreshold <= 0 || c.CacheSimilarityThreshold > 1 {
		return fmt.Errorf("%w: must be in (0, 1], got %v", ErrInvalidThreshold, c.CacheSimilarityThreshold)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be in [1, 65535], got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: postgres_db_name is empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// ValidateServe performs additional validation for serve mode: the gateway
// API key and the embedder API key must be present so the pipeline can reach
// its upstreams.
func (c *Config) ValidateServe() error {
	if c.GatewayAPIKey == "" {
		return fmt.Errorf("%w: set POINTSTACK_GATEWAY_API_KEY", ErrMissingAPIKey)
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY for the embedder", ErrMissingAPIKey)
	}
	return nil
}
