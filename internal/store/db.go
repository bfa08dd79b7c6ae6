// Package store is the sqlite origin store: raw product, store and
// transaction tables the pipeline fetches from, the run history written
// by the pipeline tracker, and exported predictions.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		product_id INTEGER PRIMARY KEY,
		product_name TEXT NOT NULL,
		category TEXT NOT NULL,
		gross_price REAL NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS stores (
		store_id INTEGER PRIMARY KEY,
		store_name TEXT NOT NULL,
		city TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS transactions (
		date TEXT NOT NULL,
		product_id INTEGER NOT NULL REFERENCES products(product_id),
		store_id INTEGER NOT NULL REFERENCES stores(store_id),
		nb_sold_pieces INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		begin_stage TEXT,
		final_stage TEXT,
		test INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS run_operators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		operator TEXT NOT NULL,
		target_stage TEXT,
		status TEXT NOT NULL,
		start_time DATETIME,
		end_time DATETIME,
		duration_ms INTEGER,
		error_message TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS demand_predictions (
		scenario TEXT NOT NULL,
		run_id TEXT,
		product_id INTEGER,
		store_id INTEGER,
		week_id INTEGER,
		prediction REAL,
		exported_at DATETIME
	);`,
}

// Store wraps the sqlite connection.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create database directory %s", dir)
		}
	}
	dsn := "file:" + path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: logger.Component(log, "store").With(logger.FieldPath, path)}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Debugw("Database ready")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
