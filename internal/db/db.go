// Package db opens the SQLite handle backing the optional secondary
// index (internal/index), under the board's data directory, with
// foreign keys enforced and the connection shared across goroutines.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const fileName = "index.db"

// Path returns the SQLite file path for the given data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, fileName)
}

// EnsureDataDir creates dataDir if missing.
func EnsureDataDir(dataDir string) error {
	return os.MkdirAll(dataDir, 0o755)
}

// Open opens the SQLite database with foreign keys on, creating
// dataDir first if needed.
func Open(dataDir string) (*sql.DB, error) {
	if err := EnsureDataDir(dataDir); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", Path(dataDir))
	return sql.Open("sqlite", dsn)
}
