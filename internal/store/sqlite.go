package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"kline/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ StockStore = (*SQLiteStore)(nil)

// SQLiteStore implements StockStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs
// migrations and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stocks (
			symbol TEXT PRIMARY KEY,
			name   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stocks_name ON stocks(name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveStocks upserts stocks in a single transaction.
func (s *SQLiteStore) SaveStocks(ctx context.Context, stocks domain.Stocks) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stocks (symbol, name) VALUES (?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET name = excluded.name`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, st := range stocks {
		if _, err := stmt.ExecContext(ctx, st.Symbol, st.Name); err != nil {
			return fmt.Errorf("saving stock %s: %w", st.Symbol, err)
		}
	}
	return tx.Commit()
}

// ListStocks returns every stock ordered by symbol.
func (s *SQLiteStore) ListStocks(ctx context.Context) (domain.Stocks, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, name FROM stocks ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stocks domain.Stocks
	for rows.Next() {
		var st domain.Stock
		if err := rows.Scan(&st.Symbol, &st.Name); err != nil {
			return nil, err
		}
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}
