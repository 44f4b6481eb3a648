package receipt

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS receipts (
	receipt_id TEXT PRIMARY KEY,
	intent_id  TEXT NOT NULL,
	status     TEXT NOT NULL,
	reason     TEXT,
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_receipts_intent ON receipts(intent_id, status);
`

// SQLiteStore is an append-only audit table keyed by intent_id and status.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the audit database at path. Use
// ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("receipt: open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("receipt: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, r *Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("receipt: marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO receipts (receipt_id, intent_id, status, reason, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ReceiptID, r.IntentID, string(r.Status), r.FailureReason, string(body), r.Timestamp)
	if err != nil {
		return fmt.Errorf("receipt: insert: %w", err)
	}
	return nil
}

// ByIntent returns every receipt recorded for an intent, oldest first.
func (s *SQLiteStore) ByIntent(ctx context.Context, intentID string) ([]*Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM receipts WHERE intent_id = ? ORDER BY created_at`, intentID)
	if err != nil {
		return nil, fmt.Errorf("receipt: query: %w", err)
	}
	defer rows.Close()

	var out []*Receipt
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("receipt: scan: %w", err)
		}
		var r Receipt
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("receipt: decode: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
