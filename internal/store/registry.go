package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

// RegistryFile is the registry database filename inside the output directory.
const RegistryFile = ".registry.db"

const registrySchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	first_ts   TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_filename ON sessions(filename);
`

// Registry is the SQLite-backed session-id → artifact-path index. The current
// filename grammar does not encode the session id, so without the registry a
// cold start has to open every artifact to recover identity. The registry
// makes that a one-time cost per file.
type Registry struct {
	db *sql.DB
}

// Record is one registry row. Filename is relative to the output directory.
type Record struct {
	SessionID      string
	Filename       string
	FirstTimestamp string
	Title          string
}

// OpenRegistry opens or creates the registry database at the given path.
func OpenRegistry(dbPath string) (*Registry, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("opening registry db: %w", err)
	}
	if _, err := db.Exec(registrySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the registry database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// All returns every registry row keyed by session id.
func (r *Registry) All() (map[string]Record, error) {
	rows, err := r.db.Query("SELECT session_id, filename, first_ts, title FROM sessions")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]Record)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.Filename, &rec.FirstTimestamp, &rec.Title); err != nil {
			return nil, err
		}
		result[rec.SessionID] = rec
	}
	return result, rows.Err()
}

// Put inserts or replaces a registry row.
func (r *Registry) Put(rec Record) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`INSERT OR REPLACE INTO sessions
		(session_id, filename, first_ts, title, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Filename, rec.FirstTimestamp, rec.Title, now,
	)
	return err
}

// Delete removes a session's row.
func (r *Registry) Delete(sessionID string) error {
	_, err := r.db.Exec("DELETE FROM sessions WHERE session_id = ?", sessionID)
	return err
}

// DeleteByFilename removes whichever row points at the given artifact file.
func (r *Registry) DeleteByFilename(filename string) error {
	_, err := r.db.Exec("DELETE FROM sessions WHERE filename = ?", filename)
	return err
}
