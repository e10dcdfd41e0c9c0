package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/substratelabs/orbit/agent"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("store: key not found")

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS session_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	entry      BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_log_session ON session_log(session_id, id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, entry []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_log (session_id, entry, created_at) VALUES (?, ?, ?)`,
		sessionID, entry, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: append %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) ReadLog(ctx context.Context, sessionID string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM session_log WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: read log %s: %w", sessionID, err)
	}
	defer rows.Close()

	var entries [][]byte
	for rows.Next() {
		var entry []byte
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("store: read log %s: %w", sessionID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordTurn persists a turn to the session's log as JSON, satisfying
// agent.TurnRecorder.
func (s *SQLiteStore) RecordTurn(ctx context.Context, sessionID string, turn agent.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("store: encode turn: %w", err)
	}
	return s.Append(ctx, sessionID, data)
}

// LoadTurns replays a session's persisted turns.
func (s *SQLiteStore) LoadTurns(ctx context.Context, sessionID string) ([]agent.Turn, error) {
	entries, err := s.ReadLog(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns := make([]agent.Turn, 0, len(entries))
	for _, entry := range entries {
		var turn agent.Turn
		if err := json.Unmarshal(entry, &turn); err != nil {
			return nil, fmt.Errorf("store: decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
