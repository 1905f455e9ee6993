package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. .env file in the working directory (when present)
//  3. YAML config file (explicit path, INFER_CONFIG env, ./inferctl.yaml,
//     <data-dir>/config.yaml)
//  4. Environment variable overrides
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Load .env into the process environment; missing file is fine.
	_ = godotenv.Load()

	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDerivedDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// explicit argument, INFER_CONFIG env var, ./inferctl.yaml, then
// <data-dir>/config.yaml. Returns empty string when nothing is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("INFER_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"inferctl.yaml",
		filepath.Join(DataDir(), "config.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps INFER_* environment variables onto config fields.
// Environment values win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INFER_BASE_URL"); v != "" {
		cfg.Endpoint.BaseURL = v
	}
	if v := os.Getenv("INFER_PORT"); v != "" {
		cfg.Endpoint.Port = v
	}
	if v := os.Getenv("INFER_API_KEY"); v != "" {
		cfg.Endpoint.APIKey = v
	}
	if v := os.Getenv("INFER_ENDPOINT_NAME"); v != "" {
		cfg.Endpoint.Name = v
	}
	if v := os.Getenv("INFER_MODEL"); v != "" {
		cfg.Defaults.Model = v
	}
	if v := os.Getenv("INFER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("INFER_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("INFER_USAGE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Usage.Enabled = enabled
		}
	}
	if v := os.Getenv("INFER_HISTORY_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.History.Enabled = enabled
		}
	}
	if v := os.Getenv("INFER_MOCK_ADDR"); v != "" {
		cfg.Mock.Addr = v
	}
}

// applyDerivedDefaults fills in paths that depend on the data directory.
// These cannot live in Defaults() because INFER_DATA_DIR is read at load time.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Usage.Storage.SQLite.Path == "" {
		cfg.Usage.Storage.SQLite.Path = filepath.Join(DataDir(), "usage.db")
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(DataDir(), "history.db")
	}
	if cfg.Endpoint.Name == "" {
		cfg.Endpoint.Name = "local"
	}
	for name, ep := range cfg.Endpoints {
		if ep.Name == "" {
			ep.Name = name
			cfg.Endpoints[name] = ep
		}
	}
}

// DataDir returns the directory for local state (caches, history, usage).
// Uses $INFER_DATA_DIR if set, otherwise ./.inferctl in the working directory.
func DataDir() string {
	if dir := os.Getenv("INFER_DATA_DIR"); dir != "" {
		return dir
	}
	return ".inferctl"
}

// ResolveBaseURL returns the endpoint's effective base URL. An explicit
// base_url wins; otherwise the URL is interpolated from the port exactly as
// the blueprint client does: http://localhost:<port>/v1.
func (e EndpointConfig) ResolveBaseURL() string {
	if e.BaseURL != "" {
		return strings.TrimRight(e.BaseURL, "/")
	}
	port := e.Port
	if port == "" {
		port = "8000"
	}
	return fmt.Sprintf("http://localhost:%s/v1", port)
}
