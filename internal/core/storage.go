package core

import (
	"fmt"
	"os"

	"lifelab/internal/infra/persistence/memory"
	"lifelab/internal/infra/persistence/postgres"
	"lifelab/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	LIFELAB_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LIFELAB_SQLITE_PATH: path to sqlite file (default ./lifelab.db)
//	LIFELAB_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("LIFELAB_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("LIFELAB_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("LIFELAB_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// NewMemoryStore returns the in-memory store for tests and ephemeral use.
func NewMemoryStore(engine *RulesEngine) PersistentStore {
	return memory.NewStore(engine)
}

// NewSQLiteStore opens a sqlite-backed store persisting to path.
func NewSQLiteStore(path string, engine *RulesEngine) (PersistentStore, error) {
	return sqlite.NewStore(path, engine)
}

func newMemoryStore(engine *RulesEngine) PersistentStore {
	return memory.NewStore(engine)
}

func issueKey(labID int64, number int) string {
	return fmt.Sprintf("lab %d number %d", labID, number)
}
