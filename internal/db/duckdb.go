package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
	Logger  *zap.Logger
}

// Get returns the singleton DuckDB connection, creating
// <DataDir>/duckdb/<DBName>.duckdb on first use.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		logger := cfg.Logger
		if logger == nil {
			logger = zap.NewNop()
		}

		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create duckdb directory: %w", err)
			return
		}

		dbPath := filepath.Join(duckdbDir, cfg.DBName+".duckdb")
		instance, initErr = sql.Open("duckdb", dbPath)
		if initErr != nil {
			return
		}

		// The spatial extension is optional; the deal snapshot only needs core types.
		if _, err := instance.Exec("INSTALL spatial; LOAD spatial;"); err != nil {
			logger.Debug("duckdb spatial extension unavailable", zap.Error(err))
		}
		logger.Info("opened duckdb", zap.String("path", dbPath))
	})
	return instance, initErr
}

// Close closes the database connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}
