package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"stars-imagegen-bot/internal/api"
	"stars-imagegen-bot/internal/database"
	"stars-imagegen-bot/internal/gateway"
	"stars-imagegen-bot/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService     *database.Service
	LedgerService *api.LedgerService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the ledger and wraps it in the validated service layer.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Services{
		DbService:     dbService,
		LedgerService: api.NewLedgerService(dbService),
	}, nil
}

// InitializeDatabaseOnly opens just the ledger database.
// Useful for read-only operations like printing balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database,
		database.WithStartingBalance(cfg.Ledger.StartingBalance))
}

// InitializeGateway builds the provider chain: Replicate first when an API
// key is set, then the plain render endpoint when configured.
func InitializeGateway(cfg models.GatewayConfig) (*gateway.Service, error) {
	client, err := gateway.NewHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway http client: %w", err)
	}

	var providers []gateway.Provider
	if cfg.ReplicateAPIKey != "" {
		providers = append(providers, gateway.NewReplicateProvider(
			cfg.ReplicateURL, cfg.ReplicateAPIKey, cfg.ReplicateModel, cfg.PollInterval, client))
	}
	if cfg.RenderURL != "" {
		providers = append(providers, gateway.NewHTTPProvider(cfg.RenderURL, client))
	}
	if len(providers) == 0 {
		return nil, errors.New("no generation provider configured: set REPLICATE_API_KEY or RENDER_URL")
	}

	service := gateway.NewService(cfg.Timeout, providers...)
	zap.L().Info("Generation gateway ready",
		zap.Strings("providers", service.Providers()),
		zap.Duration("timeout", cfg.Timeout))
	return service, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stderr: invalid argument")
}
