// Command mockvllm runs a deterministic OpenAI-compatible server that
// stands in for a vLLM deployment. inferctl's end-to-end tests and local
// demos point at it instead of a GPU-backed cluster.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tsahiduek/ai-on-eks/config"
	"github.com/tsahiduek/ai-on-eks/internal/logging"
	"github.com/tsahiduek/ai-on-eks/internal/mockserver"
	"github.com/tsahiduek/ai-on-eks/internal/version"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file")
		addr        = flag.String("addr", "", "listen address (overrides config)")
		showVersion = flag.Bool("version", false, "print version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mockvllm:", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, logging.Format(cfg.Log.Format))

	if *addr != "" {
		cfg.Mock.Addr = *addr
	}

	srv := mockserver.New(&mockserver.Config{
		APIKey:    cfg.Mock.APIKey,
		Model:     cfg.Mock.Model,
		LatencyMs: cfg.Mock.LatencyMs,
		Seed:      cfg.Mock.Seed,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("mockvllm listening",
		"addr", cfg.Mock.Addr,
		"model", cfg.Mock.Model,
		"version", version.Version,
	)

	if err := srv.Start(cfg.Mock.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
