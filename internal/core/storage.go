package core

import (
	"fmt"
	"os"
	"strings"

	"rostercore/internal/infra/persistence/memory"
	"rostercore/internal/infra/persistence/postgres"
	"rostercore/internal/infra/persistence/sqlite"
	"rostercore/pkg/domain"
)

// Environment variables selecting and configuring the persistence backend.
const (
	// EnvStorageDriver selects the backend: memory (default), sqlite, postgres.
	EnvStorageDriver = "ROSTERCORE_STORAGE_DRIVER"
	// EnvSQLitePath points at the SQLite database file.
	EnvSQLitePath = "ROSTERCORE_SQLITE_PATH"
	// EnvPostgresDSN holds the Postgres connection string.
	EnvPostgresDSN = "ROSTERCORE_POSTGRES_DSN"
)

// OpenPersistentStore selects a durable backend from the environment. The
// zero-configuration default is the in-memory store so tests and local runs
// need no setup.
func OpenPersistentStore() (domain.PersistentStore, error) {
	driver := strings.ToLower(strings.TrimSpace(os.Getenv(EnvStorageDriver)))
	switch driver {
	case "", "memory":
		return memory.NewStore(), nil
	case "sqlite":
		return sqlite.NewStore(os.Getenv(EnvSQLitePath))
	case "postgres":
		return postgres.NewStore(os.Getenv(EnvPostgresDSN))
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
