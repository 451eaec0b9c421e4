package database

import (
	"fmt"
	"log/slog"
)

// NewDetectionStore creates a store for the configured database type and
// ensures its schema exists.
func NewDetectionStore(databaseType, connectionString string) (DetectionStore, error) {
	var store DetectionStore

	switch databaseType {
	case "sqlite":
		s, err := NewSQLiteStore(connectionString)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}

	// Schema creation is idempotent and runs on every startup, which also
	// covers in-memory SQLite databases.
	slog.Info("initializing database schema", "type", databaseType)
	if err := store.CreateSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}
