/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Makes item state and journals survive restarts. The in-memory catalog is
  rebuilt from this store on startup (Processor.Restore).

KEY TABLES:
  items:            One row per item, current stock
  purchase_records: Live history, ordered by position within the item
  events:           Append-only journal, ordered by seq

COMMITS:
  Commit() runs in one SQL transaction: upsert the item row, rewrite its
  live records, append the journal event. Any failure rolls all of it back
  and the ledger keeps its previous in-memory state.

  The journal is append-only: no UPDATE or DELETE statements touch the
  events table.

CONCURRENCY:
  Uses sync.RWMutex around the handle and a single open connection, so
  ":memory:" databases behave like one database.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/store/memory.go: In-memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/stock-ledger/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		item_name TEXT PRIMARY KEY,
		current_stock INTEGER NOT NULL CHECK (current_stock >= 0),
		updated_at TEXT NOT NULL
	);

	-- Live purchase history. Rewritten per item on every commit.
	CREATE TABLE IF NOT EXISTS purchase_records (
		item_name TEXT NOT NULL REFERENCES items(item_name),
		log_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		purchased_count INTEGER NOT NULL CHECK (purchased_count > 0),
		timestamp TEXT NOT NULL,
		PRIMARY KEY (item_name, log_id)
	);

	CREATE INDEX IF NOT EXISTS idx_purchase_records_position
		ON purchase_records(item_name, position);

	-- Journal (append-only)
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		item_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		user_id TEXT,
		count INTEGER NOT NULL,
		log_id TEXT,
		consumed_json TEXT,
		stock_after INTEGER NOT NULL,
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_item
		ON events(item_name, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

// Commit persists the item state and journal event in one transaction.
func (s *Store) Commit(ctx context.Context, snap ledger.Snapshot, ev ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO items (item_name, current_stock, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(item_name) DO UPDATE SET
			current_stock = excluded.current_stock,
			updated_at = excluded.updated_at
	`, snap.ItemName, snap.CurrentStock, now)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx,
		"DELETE FROM purchase_records WHERE item_name = ?", snap.ItemName); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	for i, r := range snap.History {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO purchase_records
			(item_name, log_id, position, user_id, purchased_count, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`, snap.ItemName, r.LogID, i, r.UserID, r.PurchasedCount,
			r.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.LogID, err)
		}
	}

	if err := appendEvent(ctx, sqlTx, ev); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func appendEvent(ctx context.Context, tx *sql.Tx, ev ledger.Event) error {
	var consumed sql.NullString
	if len(ev.Consumed) > 0 {
		data, err := json.Marshal(ev.Consumed)
		if err != nil {
			return fmt.Errorf("failed to encode consumption: %w", err)
		}
		consumed = sql.NullString{String: string(data), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(id, item_name, kind, user_id, count, log_id, consumed_json, stock_after, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.ItemName, ev.Kind, nullString(string(ev.UserID)), ev.Count,
		nullString(string(ev.LogID)), consumed, ev.StockAfter,
		ev.OccurredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("duplicate event id %s: %w", ev.ID, err)
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Load returns every item with its live history in position order.
func (s *Store) Load(ctx context.Context) ([]ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT item_name, current_stock FROM items ORDER BY item_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}

	var snaps []ledger.Snapshot
	index := make(map[ledger.ItemName]int)
	for rows.Next() {
		var snap ledger.Snapshot
		if err := rows.Scan(&snap.ItemName, &snap.CurrentStock); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		snap.History = []ledger.PurchaseRecord{}
		index[snap.ItemName] = len(snaps)
		snaps = append(snaps, snap)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT item_name, log_id, user_id, purchased_count, timestamp
		FROM purchase_records
		ORDER BY item_name, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item ledger.ItemName
			r    ledger.PurchaseRecord
			ts   string
		)
		if err := rows.Scan(&item, &r.LogID, &r.UserID, &r.PurchasedCount, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("record %s: bad timestamp %q: %w", r.LogID, ts, err)
		}
		i, ok := index[item]
		if !ok {
			continue
		}
		snaps[i].History = append(snaps[i].History, r)
	}

	return snaps, rows.Err()
}

// Journal returns the item's events in commit order.
func (s *Store) Journal(ctx context.Context, item ledger.ItemName) ([]ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_name, kind, user_id, count, log_id, consumed_json, stock_after, occurred_at
		FROM events
		WHERE item_name = ?
		ORDER BY seq ASC
	`, item)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (ledger.Event, error) {
	var (
		ev         ledger.Event
		userID     sql.NullString
		logID      sql.NullString
		consumed   sql.NullString
		occurredAt string
	)

	err := rows.Scan(&ev.ID, &ev.ItemName, &ev.Kind, &userID, &ev.Count,
		&logID, &consumed, &ev.StockAfter, &occurredAt)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.UserID = ledger.UserID(userID.String)
	ev.LogID = ledger.LogID(logID.String)
	if ev.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt); err != nil {
		return ev, fmt.Errorf("event %s: bad occurred_at %q: %w", ev.ID, occurredAt, err)
	}
	if consumed.Valid && consumed.String != "" {
		if err := json.Unmarshal([]byte(consumed.String), &ev.Consumed); err != nil {
			return ev, fmt.Errorf("event %s: bad consumption: %w", ev.ID, err)
		}
	}
	return ev, nil
}

// Reset removes all data. Development only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"events", "purchase_records", "items"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
