package tracker

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds configuration for one backend. Keys are looked up under the
// backend's prefix in the config store, falling back to environment variables.
type Config struct {
	// Prefix is the config key prefix for this backend (e.g., "jira", "sql")
	Prefix string

	// Store provides access to the config storage
	Store ConfigStore

	// Context for config operations
	Ctx context.Context
}

// ConfigStore provides read access to the defects configuration system.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

// MapStore is a ConfigStore backed by a plain map, keyed by full key
// ("jira.url"). Handy in tests and for programmatic setup.
type MapStore map[string]string

// GetConfig implements ConfigStore.
func (m MapStore) GetConfig(_ context.Context, key string) (string, error) {
	return m[key], nil
}

// NewConfig creates a new backend config with the given prefix and store.
func NewConfig(ctx context.Context, prefix string, store ConfigStore) *Config {
	return &Config{
		Prefix: prefix,
		Store:  store,
		Ctx:    ctx,
	}
}

// Get retrieves a config value by key, checking both the config store
// and environment variables. The key should not include the backend prefix.
// Example: cfg.Get("api_token") for "jira" prefix looks up "jira.api_token"
// and falls back to the "JIRA_API_TOKEN" env var.
func (c *Config) Get(key string) (string, error) {
	fullKey := c.Prefix + "." + key

	if c.Store != nil {
		value, err := c.Store.GetConfig(c.ctx(), fullKey)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", fullKey, err)
		}
		if value != "" {
			return value, nil
		}
	}

	if value := os.Getenv(c.envVarName(key)); value != "" {
		return value, nil
	}
	return "", nil
}

// GetRequired is like Get but returns an error if the value is empty.
func (c *Config) GetRequired(key string) (string, error) {
	value, err := c.Get(key)
	if err != nil {
		return "", err
	}
	if value == "" {
		fullKey := c.Prefix + "." + key
		return "", fmt.Errorf("%s not configured\nSet %s in .defects/config.yaml\nOr: export %s=VALUE",
			fullKey, fullKey, c.envVarName(key))
	}
	return value, nil
}

// GetInt returns an integer value, or def when unset.
func (c *Config) GetInt(key string, def int) (int, error) {
	value, err := c.Get(key)
	if err != nil || value == "" {
		return def, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, fmt.Errorf("%s.%s: %w", c.Prefix, key, err)
	}
	return n, nil
}

func (c *Config) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// envVarName converts a config key to its environment variable name.
// Example: for prefix "jira" and key "api_token", returns "JIRA_API_TOKEN"
func (c *Config) envVarName(key string) string {
	envKey := strings.ToUpper(c.Prefix + "_" + key)
	envKey = strings.ReplaceAll(envKey, ".", "_")
	return strings.ReplaceAll(envKey, "-", "_")
}
