package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	// DataDir is the service data directory. Empty opens an in-memory database.
	DataDir string
	DBName  string
}

// Open opens the DuckDB database under DataDir/duckdb.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.DataDir == "" {
		return sql.Open("duckdb", "")
	}

	duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
	if err := os.MkdirAll(duckdbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
	}

	name := cfg.DBName
	if name == "" {
		name = "quakemap"
	}
	db, err := sql.Open("duckdb", filepath.Join(duckdbDir, name+".duckdb"))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return db, nil
}
