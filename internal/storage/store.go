package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// Store holds the sqlite handle and the per-key locks that serialize
// position upserts between execution and reconciliation.
type Store struct {
	db    *sql.DB
	locks *KeyedLock
}

// NewStore opens (or creates) the sqlite database with WAL mode enabled
// and ensures the schema exists.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Configure SQLite for durable concurrent access.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		return nil, err
	}

	return &Store{db: db, locks: NewKeyedLock()}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Locks exposes the per-(account,symbol) lock set shared by execution and
// reconciliation.
func (s *Store) Locks() *KeyedLock {
	return s.locks
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_paper INTEGER NOT NULL,
			leverage INTEGER NOT NULL,
			max_position_usd INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cooldowns (
			account_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			last_trade_at INTEGER NOT NULL,
			PRIMARY KEY (account_id, symbol)
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			requested_qty INTEGER NOT NULL,
			filled_qty INTEGER NOT NULL DEFAULT 0,
			avg_price INTEGER NOT NULL DEFAULT 0,
			trigger_price INTEGER NOT NULL DEFAULT 0,
			exchange_order_id TEXT,
			parent_order_id TEXT,
			is_paper INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			CHECK (filled_qty <= requested_qty)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id, symbol);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_exchange ON orders(exchange_order_id);`,
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			size INTEGER NOT NULL,
			entry_price INTEGER NOT NULL,
			mark_price INTEGER NOT NULL DEFAULT 0,
			unrealized_pnl INTEGER NOT NULL DEFAULT 0,
			realized_pnl INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			protection_pending INTEGER NOT NULL DEFAULT 0,
			is_paper INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			CHECK (size >= 0)
		);`,
		// Exactly one open position per (account, symbol, isPaper).
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open
			ON positions(account_id, symbol, is_paper) WHERE status = 'OPEN';`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price INTEGER NOT NULL,
			qty INTEGER NOT NULL,
			fee INTEGER NOT NULL DEFAULT 0,
			is_paper INTEGER NOT NULL,
			is_synthetic INTEGER NOT NULL DEFAULT 0,
			executed_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_order ON trades(order_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
