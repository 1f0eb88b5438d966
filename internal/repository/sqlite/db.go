package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the sqlite database holding the store snapshot.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// the store serializes saves behind its write lock, one connection is enough
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// a save that returned nil must survive a crash, so every commit syncs
	if _, err := db.Exec(`PRAGMA synchronous = FULL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}

	return db, nil
}
