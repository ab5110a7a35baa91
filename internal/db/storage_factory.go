package db

import (
	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/db/memorystorage"
	"github.com/linkcut/linkcut/internal/db/postgres"
	"github.com/linkcut/linkcut/internal/db/sqlite"
	"go.uber.org/zap"
)

// GetStorage initializes and returns a storage manager based on the
// configured storage type.
func GetStorage(cfg *config.Config, logger *zap.SugaredLogger) ShortenerStorage {
	// Initialize PostgreSQL-based storage
	if cfg.StorageType == "postgres" {
		logger.Debug("using postgres storage")
		s, err := postgres.NewManager(cfg)
		if err != nil {
			logger.Fatalw("failed to initialize postgres storage", "error", err)
		}
		return s
	}

	// Initialize SQLite-based storage
	if cfg.StorageType == "sqlite" {
		logger.Debug("using sqlite storage")
		s, err := sqlite.NewManager(cfg)
		if err != nil {
			logger.Fatalw("failed to initialize sqlite storage", "error", err)
		}
		return s
	}

	// Initialize in-memory storage
	if cfg.StorageType == "memory" {
		logger.Debug("using memory storage")
		s, err := memorystorage.NewManager(cfg)
		if err != nil {
			logger.Fatalw("failed to initialize memory storage", "error", err)
		}
		return s
	}

	// Handle unknown storage types
	logger.Fatalw("unknown storage type", "type", cfg.StorageType)
	return nil
}
