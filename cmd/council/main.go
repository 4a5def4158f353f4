// Council deliberation server - coordinates a council of local models
// through a three-stage peer-review protocol over HTTP/WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/quorumlabs/council/pkg/api"
	"github.com/quorumlabs/council/pkg/config"
	"github.com/quorumlabs/council/pkg/deliberation"
	"github.com/quorumlabs/council/pkg/events"
	"github.com/quorumlabs/council/pkg/llm"
	"github.com/quorumlabs/council/pkg/store"
	"github.com/quorumlabs/council/pkg/titles"
	"github.com/quorumlabs/council/pkg/version"
)

// Startup validation exit codes.
const (
	exitOK               = 0
	exitConfigInvalid    = 1
	exitBackendDown      = 2
	exitModelsNotLoaded  = 3
	wsWriteTimeout       = 10 * time.Second
	shutdownGracePeriod  = 10 * time.Second
	startupValidateLimit = 15 * time.Second
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Info("No .env file loaded, using existing environment", "path", envPath)
	}

	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))

	slog.Info("Starting council server", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		fmt.Fprintln(os.Stderr, "hint: check council.yaml in the config directory")
		os.Exit(exitConfigInvalid)
	}

	resolver := func(model string) llm.Endpoint {
		ep := cfg.EndpointFor(model)
		return llm.Endpoint{BaseURL: ep.BaseURL, APIKey: ep.APIKey}
	}
	client := llm.NewOpenAIClient(resolver)

	// Fail fast when the backend is down or configured models are missing.
	validateCtx, cancelValidate := context.WithTimeout(ctx, startupValidateLimit)
	status, err := llm.ValidateBackend(validateCtx, resolver, cfg.AllModelNames())
	cancelValidate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "model backend unreachable: %v\n", err)
		fmt.Fprintln(os.Stderr, "hint: is the model server running at the configured endpoint?")
		os.Exit(exitBackendDown)
	}
	required := len(cfg.Models.CouncilMembers) + 1
	if len(status.Missing) > 0 || status.LoadedCount < required {
		fmt.Fprintf(os.Stderr, "required models not loaded (need %d, backend reports %d)\n",
			required, status.LoadedCount)
		for _, m := range status.Missing {
			fmt.Fprintf(os.Stderr, "  missing: %s\n", m)
		}
		fmt.Fprintln(os.Stderr, "hint: load the configured council and chairman models, then restart")
		os.Exit(exitModelsNotLoaded)
	}
	slog.Info("Model backend validated",
		"loaded_models", status.LoadedCount, "council_members", len(cfg.Models.CouncilMembers))

	st, err := store.New(cfg.Server.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: data directory: %v\n", err)
		os.Exit(exitConfigInvalid)
	}

	broker := events.NewBroker()
	connManager := events.NewConnectionManager(broker, wsWriteTimeout)

	titleService := titles.NewService(client, st, broker, cfg)
	titleService.Start(ctx)
	titleService.Rescan(ctx)

	tracker := llm.NewTokenTracker()
	runner := deliberation.NewRunner(client, tracker, cfg)

	var titleRequester deliberation.TitleRequester
	if cfg.Titles.TitlesEnabled() {
		titleRequester = titleService
	}
	controller := deliberation.NewController(st, runner, titleRequester, tracker)

	server := api.NewServer(cfg, st, controller, connManager, broker)

	addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- server.Start(addr)
	}()

	stopCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-stopCtx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	titleService.Stop()
	broker.Close()

	slog.Info("Server stopped")
	os.Exit(exitOK)
}
