package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tsahiduek/ai-on-eks/config"
	"github.com/tsahiduek/ai-on-eks/internal/app"
	"github.com/tsahiduek/ai-on-eks/internal/logging"
)

// shutdownTimeout bounds the final flush of usage buffers and store closes.
const shutdownTimeout = 5 * time.Second

// connFlags carries the connection flags every subcommand shares. Flag
// values are applied on top of the loaded configuration, so
// `-port 8000` and a config file behave identically.
type connFlags struct {
	configPath string
	port       string
	baseURL    string
	apiKey     string
	logLevel   string
}

func (c *connFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to config file")
	fs.StringVar(&c.port, "port", "", "local port of the endpoint; the base URL becomes http://localhost:<port>/v1")
	fs.StringVar(&c.baseURL, "base-url", "", "full base URL of the endpoint, including /v1 (overrides -port)")
	fs.StringVar(&c.apiKey, "api-key", "", "bearer token sent to the endpoint")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// load builds the effective configuration: defaults, .env, config file, and
// environment first, then the connection flags on top. It also initializes
// the process logger, so every command path calls it exactly once.
func (c *connFlags) load() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	c.apply(cfg)
	logging.Setup(cfg.Log.Level, logging.Format(cfg.Log.Format))
	return cfg, nil
}

// apply overrides the primary endpoint with the flag values. A -port beats
// a configured base URL, and -base-url beats both.
func (c *connFlags) apply(cfg *config.Config) {
	if c.port != "" {
		cfg.Endpoint.Port = c.port
		cfg.Endpoint.BaseURL = ""
	}
	if c.baseURL != "" {
		cfg.Endpoint.BaseURL = c.baseURL
	}
	if c.apiKey != "" {
		cfg.Endpoint.APIKey = c.apiKey
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
}

// withApp loads configuration, builds the application, runs fn under a
// signal-aware context, and shuts everything down. A shutdown failure after
// a successful fn is still reported; after a failed fn it is only logged so
// the original error stays visible.
func withApp(conn *connFlags, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := conn.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		if runErr == nil {
			return err
		}
		slog.Warn("shutdown error", "error", err)
	}
	return runErr
}

// resolvePrompt returns the prompt text, reading all of stdin when the flag
// value is "-" so prompts can be piped in. A trailing newline from the pipe
// is stripped; interior newlines are kept.
func resolvePrompt(value string, stdin io.Reader) (string, error) {
	if value != "-" {
		return value, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// flagsSeen reports which flags were set explicitly, so a zero value passed
// on the command line can be told apart from an absent flag.
func flagsSeen(fs *flag.FlagSet) map[string]bool {
	seen := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		seen[f.Name] = true
	})
	return seen
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// printJSON writes v as indented JSON. HTML escaping is off so reply
// content reaches the terminal exactly as the server sent it.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
