package testutil

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"jackpot/internal/config"
	"jackpot/internal/store"
)

// NewTestStore returns a migrated ledger backed by a private in-memory SQLite
// database. A single connection serialises transactions the way a row lock
// would on a server database.
func NewTestStore(t testing.TB) *store.Store {
	t.Helper()

	return openTestStore(t, config.DBConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:ledger-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString()),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
}

// NewFileTestStore returns a migrated ledger in a SQLite file under a
// temporary directory, opened with the pool settings the service defaults to.
// Its connections really do race each other.
func NewFileTestStore(t testing.TB) *store.Store {
	t.Helper()

	return openTestStore(t, config.DBConfig{
		Driver:          "sqlite",
		DSN:             "file:" + filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	})
}

func openTestStore(t testing.TB, cfg config.DBConfig) *store.Store {
	t.Helper()

	db, err := store.Open(cfg, false)
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	t.Cleanup(func() { store.Close(db) })

	st := store.New(db)
	if err := st.AutoMigrate(); err != nil {
		t.Fatalf("Failed to migrate db: %v", err)
	}
	return st
}
