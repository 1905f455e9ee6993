package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks the configuration for valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Endpoint.BaseURL != "" {
		if _, err := url.Parse(c.Endpoint.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("endpoint.base_url is not a valid URL: %w", err))
		}
	}
	for name, ep := range c.Endpoints {
		if ep.BaseURL != "" {
			if _, err := url.Parse(ep.BaseURL); err != nil {
				errs = append(errs, fmt.Errorf("endpoints.%s.base_url is not a valid URL: %w", name, err))
			}
		}
	}

	switch c.Cache.Type {
	case "local", "redis", "none", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("cache.type must be \"local\", \"redis\", or \"none\", got %q", c.Cache.Type))
	}
	if c.Cache.Type == "redis" && c.Cache.Redis.URL == "" {
		errs = append(errs, fmt.Errorf("cache.redis.url is required when cache.type is \"redis\""))
	}

	switch c.Usage.Storage.Type {
	case "sqlite", "postgresql", "mongodb", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("usage.storage.type must be \"sqlite\", \"postgresql\", or \"mongodb\", got %q", c.Usage.Storage.Type))
	}
	if c.Usage.Enabled {
		switch c.Usage.Storage.Type {
		case "postgresql":
			if c.Usage.Storage.PostgreSQL.DSN == "" {
				errs = append(errs, fmt.Errorf("usage.storage.postgresql.dsn is required when usage.storage.type is \"postgresql\""))
			}
		case "mongodb":
			if c.Usage.Storage.MongoDB.URI == "" {
				errs = append(errs, fmt.Errorf("usage.storage.mongodb.uri is required when usage.storage.type is \"mongodb\""))
			}
		}
	}

	if c.Usage.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("usage.buffer_size must be > 0, got %d", c.Usage.BufferSize))
	}
	if c.Usage.FlushIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("usage.flush_interval_seconds must be > 0, got %d", c.Usage.FlushIntervalSeconds))
	}
	if c.Usage.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("usage.retention_days must be >= 0, got %d", c.Usage.RetentionDays))
	}

	if c.Mock.LatencyMs < 0 {
		errs = append(errs, fmt.Errorf("mock.latency_ms must be >= 0, got %d", c.Mock.LatencyMs))
	}

	switch c.Log.Format {
	case "auto", "json", "text", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"auto\", \"json\", or \"text\", got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
