// Inquest session engine: orchestrates alert-investigation sessions on the
// agent platform and serves their live event streams over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/inquest/pkg/agentruntime"
	"github.com/codeready-toolchain/inquest/pkg/api"
	"github.com/codeready-toolchain/inquest/pkg/cleanup"
	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/masking"
	"github.com/codeready-toolchain/inquest/pkg/persistence"
	"github.com/codeready-toolchain/inquest/pkg/session"
	"github.com/codeready-toolchain/inquest/pkg/worker"
)

const shutdownTimeout = 30 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envPath := flag.String("env-file",
		getEnv("ENV_FILE", ".env"),
		"Path to environment file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")

	ctx := context.Background()

	// 1. Engine configuration and scenario registry
	cfg, err := config.LoadEngineConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load engine configuration", "error", err)
		os.Exit(1)
	}

	scenariosPath := getEnv("SCENARIOS_PATH", "./deploy/scenarios.yaml")
	scenarios, err := config.LoadScenarios(scenariosPath)
	if err != nil {
		slog.Error("Failed to load scenarios", "path", scenariosPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Scenarios loaded", "count", scenarios.Len(), "names", scenarios.Names())

	// 2. Persistence adapter: PostgreSQL when DATABASE_URL is set,
	// in-memory otherwise.
	var adapter persistence.Adapter
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		pg, err := persistence.NewPostgresAdapter(ctx, persistence.DefaultPostgresConfig(databaseURL))
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		adapter = pg
		slog.Info("Connected to PostgreSQL database")
	} else {
		adapter = persistence.NewMemoryAdapter()
		slog.Warn("DATABASE_URL not set, using in-memory persistence")
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			slog.Error("Error closing persistence adapter", "error", err)
		}
	}()

	// 3. Agent platform client. Connection is lazy; failures surface per
	// run and go through the retry budget.
	platformURL := getEnv("AGENT_PLATFORM_URL", "http://localhost:9090")
	runtime := agentruntime.NewHTTPClient(platformURL)
	slog.Info("Agent platform client initialized", "url", platformURL)

	// 4. Engine core
	masker := masking.NewService()
	store := session.NewStore(cfg, scenarios, adapter)
	pool := worker.NewPool(runtime, cfg, masker, adapter)

	// 5. Retention loop
	cleanupSvc := cleanup.NewService(cfg, store, adapter)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	// 6. HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, store, pool, adapter, scenarios)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Inquest started",
		"max_live_sessions", cfg.MaxLiveSessions,
		"run_timeout", cfg.RunTimeout,
		"max_retries", cfg.MaxRetries)

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop accepting requests first, then cancel the
	// workers so in-flight sessions persist their cancelled state.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, shutdownTimeout)
	defer workerCancel()
	if err := pool.Stop(workerShutdownCtx); err != nil {
		slog.Warn("Worker shutdown timeout exceeded, some sessions may not be flushed")
	} else {
		slog.Info("Worker pool stopped gracefully")
	}

	slog.Info("Shutdown complete")
}
