// Package config loads realm-sync settings from defaults, an optional config.yaml and
// REALM_SYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/aileks/realm-sync/internal/chunker"
)

const (
	// DefaultMaxChunkSize is the default byte limit per extraction chunk.
	DefaultMaxChunkSize = 4000

	// DefaultConcurrency is the default number of concurrent extraction calls per document.
	DefaultConcurrency = 4

	// DefaultCacheTTLHours is how long extraction responses stay servable (7 days).
	DefaultCacheTTLHours = 168

	// DefaultPromptVersion tags cached responses produced by the current prompt.
	DefaultPromptVersion = "canon-v1"
)

// Config holds all configuration for realm-sync.
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Claude     ClaudeConfig     `mapstructure:"claude"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Blob       BlobConfig       `mapstructure:"blob"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	API        APIConfig        `mapstructure:"api"`
	MCP        MCPConfig        `mapstructure:"mcp"`
	CLI        CLIConfig        `mapstructure:"cli"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "memory"
	Path   string `mapstructure:"path"`
}

// ClaudeConfig holds Anthropic Claude API settings.
type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// String returns a safe representation of ClaudeConfig with the API key masked.
func (c ClaudeConfig) String() string {
	return fmt.Sprintf("ClaudeConfig{APIKey:%s, Model:%s}", maskSecret(c.APIKey), c.Model)
}

// ExtractionConfig tunes chunking, concurrency and the response cache.
type ExtractionConfig struct {
	PromptVersion     string `mapstructure:"prompt_version"`
	MaxChunkSize      int    `mapstructure:"max_chunk_size"`
	Concurrency       int    `mapstructure:"concurrency"`
	CacheTTLHours     int    `mapstructure:"cache_ttl_hours"`
	MinResponseTokens int    `mapstructure:"min_response_tokens"`
	MaxResponseTokens int    `mapstructure:"max_response_tokens"`
}

// BlobConfig selects where uploaded document bodies live.
type BlobConfig struct {
	Driver    string `mapstructure:"driver"` // "s3", "memory" or "" (disabled)
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}

// String returns a safe representation of BlobConfig with the secret key masked.
func (c BlobConfig) String() string {
	return fmt.Sprintf("BlobConfig{Driver:%s, Bucket:%s, Region:%s, Endpoint:%s, SecretKey:%s}",
		c.Driver, c.Bucket, c.Region, c.Endpoint, maskSecret(c.SecretKey))
}

// Neo4jConfig holds the canon graph connection.
type Neo4jConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// String returns a safe representation of Neo4jConfig with the password masked.
func (c Neo4jConfig) String() string {
	return fmt.Sprintf("Neo4jConfig{Enabled:%t, URI:%s, Username:%s, Password:%s}",
		c.Enabled, c.URI, c.Username, maskSecret(c.Password))
}

// maskSecret shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskSecret(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string     `mapstructure:"listen_addr"`
	Tokens     []APIToken `mapstructure:"tokens"`
	// Admins lists the user ids allowed to run operator routes such as cache
	// invalidation.
	Admins []string `mapstructure:"admins"`
}

// APIToken maps one bearer token to the user it authenticates. Tokens are a list
// rather than a map because viper lowercases map keys.
type APIToken struct {
	Token  string `mapstructure:"token"`
	UserID string `mapstructure:"user_id"`
}

// TokenMap returns the configured tokens keyed by token.
func (c APIConfig) TokenMap() map[string]string {
	out := make(map[string]string, len(c.Tokens))
	for _, t := range c.Tokens {
		out[t.Token] = t.UserID
	}
	return out
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	UserID string `mapstructure:"user_id"`
}

// CLIConfig holds command-line defaults.
type CLIConfig struct {
	UserID string `mapstructure:"user_id"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	return load("")
}

// LoadFile is Load with an explicit config file.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", filepath.Join(homeDir(), ".realm-sync", "realm-sync.db"))

	v.SetDefault("claude.model", "claude-haiku-4-5-20251001")

	v.SetDefault("extraction.prompt_version", DefaultPromptVersion)
	v.SetDefault("extraction.max_chunk_size", DefaultMaxChunkSize)
	v.SetDefault("extraction.concurrency", DefaultConcurrency)
	v.SetDefault("extraction.cache_ttl_hours", DefaultCacheTTLHours)
	v.SetDefault("extraction.min_response_tokens", 1024)
	v.SetDefault("extraction.max_response_tokens", 8192)

	v.SetDefault("blob.driver", "")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.prefix", "realm-sync")
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.path_style", false)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", ":8080")

	v.SetDefault("mcp.user_id", "")
	v.SetDefault("cli.user_id", "")

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(homeDir(), ".realm-sync"))
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("REALM_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("claude.api_key", "ANTHROPIC_API_KEY", "REALM_SYNC_CLAUDE_API_KEY")
	_ = v.BindEnv("blob.access_key", "REALM_SYNC_BLOB_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("blob.secret_key", "REALM_SYNC_BLOB_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("neo4j.password", "REALM_SYNC_NEO4J_PASSWORD", "NEO4J_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK: use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must not be empty for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or memory, got %q", c.Store.Driver)
	}
	if c.Extraction.PromptVersion == "" {
		return fmt.Errorf("extraction.prompt_version must not be empty")
	}
	if c.Extraction.MaxChunkSize < chunker.MinChunkSize {
		return fmt.Errorf("extraction.max_chunk_size must be at least %d", chunker.MinChunkSize)
	}
	if c.Extraction.Concurrency <= 0 {
		return fmt.Errorf("extraction.concurrency must be greater than 0")
	}
	if c.Extraction.CacheTTLHours <= 0 {
		return fmt.Errorf("extraction.cache_ttl_hours must be greater than 0")
	}
	if c.Extraction.MinResponseTokens <= 0 {
		return fmt.Errorf("extraction.min_response_tokens must be greater than 0")
	}
	if c.Extraction.MaxResponseTokens < c.Extraction.MinResponseTokens {
		return fmt.Errorf("extraction.max_response_tokens (%d) must be >= extraction.min_response_tokens (%d)",
			c.Extraction.MaxResponseTokens, c.Extraction.MinResponseTokens)
	}
	switch c.Blob.Driver {
	case "", "memory":
	case "s3":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket must not be empty for the s3 driver")
		}
	default:
		return fmt.Errorf("blob.driver must be s3, memory or empty, got %q", c.Blob.Driver)
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri must not be empty when neo4j is enabled")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	for i, t := range c.API.Tokens {
		if t.Token == "" || t.UserID == "" {
			return fmt.Errorf("api.tokens[%d] needs a token and a user_id", i)
		}
	}
	for i, a := range c.API.Admins {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("api.admins[%d] must not be empty", i)
		}
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
