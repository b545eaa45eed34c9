package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS holder_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	token_id TEXT NOT NULL,
	holder_count INTEGER NOT NULL,
	new_holders INTEGER NOT NULL DEFAULT 0,
	growth_rate REAL NOT NULL DEFAULT 0,
	holder_addresses TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_holder_history_token_time ON holder_history(token_id, created_at);
`

// HistoryStore persists holder snapshots in SQLite.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistory opens (or creates) the SQLite database at path and ensures the schema exists.
// Use ":memory:" for a throwaway store.
func OpenHistory(path string) (*HistoryStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single writer keeps sqlite from returning SQLITE_BUSY under the worker pool
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Save appends a snapshot. A zero CreatedAt is stamped with the current time.
func (h *HistoryStore) Save(ctx context.Context, snap HolderSnapshot) error {
	if snap.TokenID == "" {
		return errors.New("snapshot token id is required")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	addrs := snap.Addresses
	if addrs == nil {
		addrs = []string{}
	}
	encoded, err := json.Marshal(addrs)
	if err != nil {
		return fmt.Errorf("encode addresses: %w", err)
	}

	_, err = h.db.ExecContext(ctx,
		`INSERT INTO holder_history (token_id, holder_count, new_holders, growth_rate, holder_addresses, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.TokenID, snap.HolderCount, snap.NewHolders, snap.GrowthRate, string(encoded), snap.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Before returns the most recent snapshot of tokenID taken strictly before t.
// It returns nil, nil when no such snapshot exists.
func (h *HistoryStore) Before(ctx context.Context, tokenID string, t time.Time) (*HolderSnapshot, error) {
	row := h.db.QueryRowContext(ctx,
		`SELECT token_id, holder_count, new_holders, growth_rate, holder_addresses, created_at
		 FROM holder_history
		 WHERE token_id = ? AND created_at < ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		tokenID, t.UnixMilli(),
	)

	var (
		snap    HolderSnapshot
		addrs   string
		created int64
	)
	err := row.Scan(&snap.TokenID, &snap.HolderCount, &snap.NewHolders, &snap.GrowthRate, &addrs, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	if addrs != "" {
		if err := json.Unmarshal([]byte(addrs), &snap.Addresses); err != nil {
			return nil, fmt.Errorf("decode addresses: %w", err)
		}
	}
	snap.CreatedAt = time.UnixMilli(created)

	return &snap, nil
}

// Prune deletes snapshots older than cutoff and returns how many were removed.
func (h *HistoryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM holder_history WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}
