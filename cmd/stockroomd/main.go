// Stockroom Core - Inventory Platform Authentication Service
//
// This is the main entry point for the Stockroom Core daemon. It owns
// the account directory, issues and validates identity tokens, and
// exposes the authentication REST API consumed by warehouse terminals
// and the web admin.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/stockroom/stockroom-core/migrations"

	"github.com/stockroom/stockroom-core/internal/api"
	"github.com/stockroom/stockroom-core/internal/audit"
	"github.com/stockroom/stockroom-core/internal/auth"
	"github.com/stockroom/stockroom-core/internal/infrastructure/config"
	"github.com/stockroom/stockroom-core/internal/infrastructure/database"
	"github.com/stockroom/stockroom-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Stockroom Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Build the auth service
	codec, err := auth.NewTokenCodec(cfg.Security.JWT.Secret, cfg.TokenTTL())
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	directory := auth.NewDirectory(db.DB)
	revocations := auth.NewRevocationList(db.DB)
	authService := auth.NewService(directory, revocations, codec, log)

	// First boot: create the initial admin account so the API is reachable
	if _, seedErr := auth.SeedAdmin(ctx, directory, log); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:      cfg.Server,
		Logger:      log,
		Auth:        authService,
		Revocations: revocations,
		Audit:       audit.NewSQLiteRepository(db.DB),
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.Server.Host, "port", cfg.Server.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (graceful drain)
	// 2. Database

	log.Info("Stockroom Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses STOCKROOM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("STOCKROOM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure components are healthy.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
