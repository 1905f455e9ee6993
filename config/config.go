// Package config provides unified configuration for the inference client
// and the mock server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. Optional .env file in the working directory
//  3. YAML config file (discovered or explicitly specified)
//  4. Environment variable overrides (INFER_ prefix)
//  5. Validation
package config

// Config holds all configuration for inferctl and mockvllm.
type Config struct {
	Endpoint  EndpointConfig            `yaml:"endpoint"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
	Defaults  RequestDefaults           `yaml:"defaults"`
	Usage     UsageConfig               `yaml:"usage"`
	History   HistoryConfig             `yaml:"history"`
	Cache     CacheConfig               `yaml:"cache"`
	Mock      MockConfig                `yaml:"mock"`
	Log       LogConfig                 `yaml:"log"`
}

// EndpointConfig describes one OpenAI-compatible inference endpoint.
// BaseURL wins when set; otherwise the URL is derived from the port as
// http://localhost:<port>/v1, matching a kubectl port-forward session.
type EndpointConfig struct {
	Name    string `yaml:"name"`     // label used in usage and history records
	BaseURL string `yaml:"base_url"` // full base URL including /v1
	Port    string `yaml:"port"`     // default: "8000"
	APIKey  string `yaml:"api_key"`  // default: "token" (vLLM placeholder)
}

// RequestDefaults holds per-request defaults applied when flags are absent.
type RequestDefaults struct {
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`
}

// UsageConfig holds token usage accounting settings.
type UsageConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Storage              StorageConfig `yaml:"storage"`
	BufferSize           int           `yaml:"buffer_size"`            // default: 1000
	FlushIntervalSeconds int           `yaml:"flush_interval_seconds"` // default: 5
	RetentionDays        int           `yaml:"retention_days"`         // default: 30, 0 = keep forever
}

// StorageConfig selects and configures a storage backend.
type StorageConfig struct {
	Type       string           `yaml:"type"` // "sqlite", "postgresql", or "mongodb"
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: <data-dir>/usage.db
}

// PostgreSQLConfig holds PostgreSQL-specific settings.
type PostgreSQLConfig struct {
	DSN string `yaml:"dsn"`
}

// MongoDBConfig holds MongoDB-specific settings.
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"` // default: "inferctl"
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Path            string `yaml:"path"`             // default: <data-dir>/history.db
	EmbedModel      string `yaml:"embed_model"`      // embeddings model for semantic search; empty disables it
	EmbedDimensions int    `yaml:"embed_dimensions"` // default: 384, must match the embed model
}

// CacheConfig selects the model list cache backend.
type CacheConfig struct {
	Type  string      `yaml:"type"` // "local" or "redis"
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis cache settings.
type RedisConfig struct {
	URL        string `yaml:"url"` // redis://... as accepted by redis.ParseURL
	Key        string `yaml:"key"` // default: "inferctl:models"
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// MockConfig holds mockvllm server settings.
type MockConfig struct {
	Addr      string `yaml:"addr"`       // default: ":8000"
	APIKey    string `yaml:"api_key"`    // default: "token"
	Model     string `yaml:"model"`      // model ID advertised by /v1/models
	LatencyMs int    `yaml:"latency_ms"` // artificial per-request delay
	Seed      int64  `yaml:"seed"`       // generator seed; 0 keeps replies prompt-derived only
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, json, text
}

// Defaults returns a Config with all default values filled in.
// The endpoint defaults reproduce the ray-vllm blueprint client setup:
// a port-forwarded server on localhost:8000 with the placeholder token.
func Defaults() Config {
	return Config{
		Endpoint: EndpointConfig{
			Name:   "local",
			Port:   "8000",
			APIKey: "token",
		},
		Usage: UsageConfig{
			Storage: StorageConfig{
				Type:    "sqlite",
				MongoDB: MongoDBConfig{Database: "inferctl"},
			},
			BufferSize:           1000,
			FlushIntervalSeconds: 5,
			RetentionDays:        30,
		},
		History: HistoryConfig{},
		Cache: CacheConfig{
			Type: "local",
			Redis: RedisConfig{
				Key:        "inferctl:models",
				TTLSeconds: 86400,
			},
		},
		Mock: MockConfig{
			Addr:   ":8000",
			APIKey: "token",
			Model:  "meta-llama/Llama-3-8B",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}
