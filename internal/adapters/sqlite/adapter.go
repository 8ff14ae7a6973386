// Package sqlite provides a SQLite-backed implementation of the peak store port.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
	"github.com/ewilliams-labs/sessions/internal/core/ports"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously
)

// Adapter implements the peak store port for SQLite
type Adapter struct {
	db *sql.DB
}

// compile-time interface assertion
var _ ports.PeakStore = (*Adapter)(nil)

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if storagePath == ":memory:" || strings.Contains(storagePath, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	adapter := &Adapter{db: db}

	if err := adapter.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return adapter, nil
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	row := a.db.QueryRowContext(ctx, "SELECT peaks FROM peak_cache WHERE key = ?", key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load peaks: %w", err)
	}
	return value, nil
}

// Put upserts the entry. The seq column is left alone on conflict so a
// rewritten key keeps its place in the eviction order.
func (a *Adapter) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO peak_cache (key, peaks) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET peaks=excluded.peaks;
	`
	if _, err := a.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to save peaks: %w", err)
	}
	return nil
}

func (a *Adapter) Keys(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT key FROM peak_cache ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list peak keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan peak key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate peak keys: %w", err)
	}
	return keys, nil
}

func (a *Adapter) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safety net: auto-rollback if we error/panic before commit

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM peak_cache WHERE key = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key); err != nil {
			return fmt.Errorf("failed to delete peaks %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

func (a *Adapter) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS peak_cache (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL UNIQUE,
		peaks BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := a.db.Exec(query); err != nil {
		return err
	}

	if _, err := a.db.Exec("ALTER TABLE peak_cache ADD COLUMN created_at DATETIME"); err != nil {
		if !isDuplicateColumnError(err) {
			return err
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}
