package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillforge/skill-badges/internal/api"
	"github.com/skillforge/skill-badges/internal/config"
	"github.com/skillforge/skill-badges/internal/database"
	"github.com/skillforge/skill-badges/internal/services"
	"github.com/skillforge/skill-badges/internal/utils"

	// Import swagger docs
	_ "github.com/skillforge/skill-badges/docs"
)

// @title Skill Badges API
// @version 1.0
// @description REST API for managing student skill badges

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8082
// @BasePath /

func main() {
	var (
		configPath string
		skipSchema bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&skipSchema, "skip-schema", false, "Skip provisioning the skill_badges schema at startup")
	flag.Parse()

	cfg, err := loadConfiguration(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	logger.Info().
		Str("version", "1.0.0").
		Int("port", cfg.HTTP.Port).
		Msg("Starting skill badges API server")

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	db, err := connectToDatabase(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}()

	badgeService := services.NewBadgeService(db.DB(), logger)

	// The /create-skill-badges-table endpoint remains the on-demand
	// provisioning path; doing it at boot as well keeps a fresh
	// deployment usable without the extra call.
	if !skipSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := badgeService.EnsureSchema(ctx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("Failed to provision skill_badges schema")
		}
		cancel()
	} else {
		logger.Warn().Msg("Skipping schema provisioning as requested")
	}

	server, err := api.NewServer(cfg, db, badgeService, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create HTTP server")
	}

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.HTTP.Port); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErrChan:
		logger.Error().Err(err).Msg("HTTP server error")
	}

	logger.Info().Msg("Starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to gracefully shutdown HTTP server")
	}

	logger.Info().Msg("Shutdown complete")
}

// loadConfiguration loads configuration from file or environment
func loadConfiguration(configPath string) (*config.Config, error) {
	cfg := config.LoadConfigOrDefault(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setupLogging configures the logger based on configuration
func setupLogging(cfg *config.Config) zerolog.Logger {
	// Log to stderr by default so process supervisors capture output;
	// file logging only when LOG_FILE is set.
	logConfig := utils.LoggerConfig{
		Level:      cfg.Server.LogLevel,
		Pretty:     cfg.Server.Debug,
		CallerInfo: cfg.Server.Debug,
		LogFile:    os.Getenv("LOG_FILE"),
	}

	utils.SetupGlobalLogger(logConfig)

	return utils.NewLogger(logConfig)
}

// connectToDatabase establishes database connection with retry logic
func connectToDatabase(cfg *config.Config, logger zerolog.Logger) (*database.Database, error) {
	logger.Info().Msg("Connecting to database")

	db := database.NewDatabase(map[string]interface{}{
		"host":               cfg.Database.Host,
		"port":               cfg.Database.Port,
		"user":               cfg.Database.User,
		"password":           cfg.Database.Password,
		"dbname":             cfg.Database.DBName,
		"sslmode":            cfg.Database.SSLMode,
		"max_idle_conns":     cfg.Database.MaxIdleConns,
		"max_open_conns":     cfg.Database.MaxConnections,
		"conn_max_lifetime":  cfg.Database.ConnMaxLifetime,
		"conn_max_idle_time": cfg.Database.ConnMaxIdleTime,
		"log_level":          cfg.Server.LogLevel,
	})

	if err := db.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	logger.Info().Msg("Database connection established")
	return db, nil
}
