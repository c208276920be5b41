/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    action     TEXT NOT NULL,
    parameters TEXT NOT NULL DEFAULT '{}',
    status     TEXT NOT NULL,
    timestamp  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp DESC);
`

// SQLStore persists audit entries in a SQLite database. It holds the same
// bounded, full-replacement history as FileStore but survives concurrent
// readers better and supports ad-hoc querying with standard tooling.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (or creates) a SQLite database at the given path and
// ensures the schema exists. Pass ":memory:" for an in-memory store.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Load reads all persisted entries ordered oldest first.
func (s *SQLStore) Load() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT action, parameters, status, timestamp FROM audit_entries ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var params, ts string
		if err := rows.Scan(&entry.Action, &params, &entry.Status, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if params != "" && params != "{}" {
			if err := json.Unmarshal([]byte(params), &entry.Parameters); err != nil {
				return nil, fmt.Errorf("failed to parse audit parameters: %w", err)
			}
		}
		entry.Timestamp, err = parseSQLTime(ts)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Save replaces the stored history with the given entries in a single
// transaction.
func (s *SQLStore) Save(entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM audit_entries`); err != nil {
		return fmt.Errorf("failed to clear audit entries: %w", err)
	}
	for _, entry := range entries {
		params := "{}"
		if len(entry.Parameters) > 0 {
			data, err := json.Marshal(entry.Parameters)
			if err != nil {
				return fmt.Errorf("failed to marshal audit parameters: %w", err)
			}
			params = string(data)
		}
		_, err := tx.Exec(
			`INSERT INTO audit_entries(action, parameters, status, timestamp) VALUES(?,?,?,?)`,
			entry.Action, params, entry.Status, entry.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

// parseSQLTime handles the datetime formats SQLite hands back.
func parseSQLTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse audit timestamp %q", s)
}
