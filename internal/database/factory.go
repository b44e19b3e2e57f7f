package database

import (
	"fmt"
	"os"
	"path/filepath"

	"fsindex/internal/config"
)

// NewDatabaseFromConfig opens the index database described by the config.
// Migrations are not applied; the caller decides whether to migrate or check.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, hostID string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		return NewSQLiteDatabase(DatabasePath(cfg, hostID))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// DatabasePath returns the on-disk location of the index for a host.
func DatabasePath(cfg config.DatabaseConfig, hostID string) string {
	return filepath.Join(cfg.DataDir, hostID+".db")
}
