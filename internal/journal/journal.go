// Package journal keeps an append-only SQLite log of the writes applied to a
// state directory. The journal is advisory: the state artifact stays the
// source of truth.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FileName is the journal database inside the state directory.
const FileName = "journal.db"

// Entry records one successful write.
type Entry struct {
	ID           string    `json:"id"`
	AppliedAt    time.Time `json:"applied_at"`
	Created      []string  `json:"created"`
	Updated      []string  `json:"updated"`
	Removed      []string  `json:"removed"`
	FeatureCount int       `json:"feature_count"`
}

// Recorder is the write-side view the engine depends on.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]*Entry, error)
	Close() error
}

// SQLiteJournal implements Recorder on a SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at dbPath.
func Open(dbPath string) (*SQLiteJournal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// one writer per process; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			applied_at INTEGER NOT NULL,
			created TEXT NOT NULL,
			updated TEXT NOT NULL,
			removed TEXT NOT NULL,
			feature_count INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS entries_applied_at ON entries(applied_at);`,
	}

	for _, query := range queries {
		if _, err := j.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init journal schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Record appends e. An empty e.ID is filled with a new UUID.
func (j *SQLiteJournal) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	created, err := encodeIDs(e.Created)
	if err != nil {
		return err
	}
	updated, err := encodeIDs(e.Updated)
	if err != nil {
		return err
	}
	removed, err := encodeIDs(e.Removed)
	if err != nil {
		return err
	}

	query := `INSERT INTO entries (id, applied_at, created, updated, removed, feature_count) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, query, e.ID, e.AppliedAt.Unix(), created, updated, removed, e.FeatureCount); err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A limit below one lists
// everything.
func (j *SQLiteJournal) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit < 1 {
		limit = -1
	}

	query := `SELECT id, applied_at, created, updated, removed, feature_count FROM entries ORDER BY seq DESC LIMIT ?`
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var (
			e                         Entry
			appliedAt                 int64
			created, updated, removed string
		)
		if err := rows.Scan(&e.ID, &appliedAt, &created, &updated, &removed, &e.FeatureCount); err != nil {
			return nil, err
		}
		e.AppliedAt = time.Unix(appliedAt, 0).UTC()
		if err := decodeIDs(created, &e.Created); err != nil {
			return nil, err
		}
		if err := decodeIDs(updated, &e.Updated); err != nil {
			return nil, err
		}
		if err := decodeIDs(removed, &e.Removed); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ids: %w", err)
	}
	return string(data), nil
}

func decodeIDs(raw string, out *[]string) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to unmarshal ids: %w", err)
	}
	if *out == nil {
		*out = []string{}
	}
	return nil
}
