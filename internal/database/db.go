package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Use WAL mode for better concurrency
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The engine is the single writer; keep the pool small
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)

	return &DB{
		conn: conn,
		path: dbPath,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Migrate creates the schema if it does not exist
func (db *DB) Migrate() error {
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS positions (
		asset               TEXT PRIMARY KEY,
		total_amount_bought REAL NOT NULL,
		total_cost          REAL NOT NULL,
		avg_buy_price       REAL NOT NULL,
		total_amount_sold   REAL NOT NULL DEFAULT 0,
		realized_value      REAL NOT NULL DEFAULT 0,
		open_date           TEXT NOT NULL,
		highest_price       REAL,
		lowest_price        REAL,
		entry_capital_pct   REAL,
		last_updated        TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS closed_trades (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		asset             TEXT NOT NULL,
		avg_buy_price     REAL NOT NULL,
		avg_sell_price    REAL NOT NULL,
		quantity          REAL NOT NULL,
		pnl               REAL NOT NULL,
		pnl_pct           REAL NOT NULL,
		duration_days     REAL NOT NULL,
		highest_price     REAL,
		lowest_price      REAL,
		entry_capital_pct REAL,
		closed_at         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_closed_trades_asset ON closed_trades(asset)`,
	`CREATE TABLE IF NOT EXISTS baseline (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		as_of      TEXT NOT NULL,
		quantities TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS portfolio_history (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		bucket      TEXT NOT NULL,
		label       TEXT NOT NULL,
		total_value REAL NOT NULL,
		recorded_at TEXT NOT NULL,
		UNIQUE(bucket, label)
	)`,
	`CREATE TABLE IF NOT EXISTS price_marks (
		asset      TEXT PRIMARY KEY,
		price      REAL NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}
