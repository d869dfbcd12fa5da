package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// contextVersion is bumped whenever ExtractionContext's shape changes; a
// stored record with any other version is discarded like an expired one.
const contextVersion = 1

// ExtractionContext is the continuation state persisted before a navigation
// so extraction can resume on the next page load. It is read back exactly
// once and never trusted as-is: version and TTL are validated at the single
// point of consumption.
type ExtractionContext struct {
	Version       int       `json:"version"`
	TaskID        string    `json:"task_id"`
	Sender        string    `json:"sender"`
	Subject       string    `json:"subject"`
	ThreadID      string    `json:"thread_id"`
	OriginURL     string    `json:"origin_url"`
	TargetURL     string    `json:"target_url"`
	CreatedAt     time.Time `json:"created_at"`
	InProgress    bool      `json:"in_progress"`
	RestoreUnread bool      `json:"restore_unread"`
}

// ContextStore holds at most one serialized ExtractionContext per tab,
// backed by a local SQLite database so continuations survive the process
// teardown a full page navigation implies.
type ContextStore struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

// OpenContextStore opens (or creates) the database at path.
func OpenContextStore(path string, ttl time.Duration) (*ContextStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening context store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS continuations (
	tab_id     TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating context store: %w", err)
	}

	return &ContextStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *ContextStore) Close() error {
	return s.db.Close()
}

// Put writes the tab's continuation, replacing any previous one.
func (s *ContextStore) Put(tabID string, ctx *ExtractionContext) error {
	ctx.Version = contextVersion
	if ctx.CreatedAt.IsZero() {
		ctx.CreatedAt = s.now()
	}

	payload, err := json.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("serializing continuation: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO continuations (tab_id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tab_id) DO UPDATE SET
			payload    = excluded.payload,
			created_at = excluded.created_at
	`, tabID, string(payload), ctx.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("storing continuation: %w", err)
	}
	return nil
}

// Load returns the tab's continuation if one exists and is still live.
// Expired, unversioned, and undecodable records are removed and reported as
// absent; stale state must never be replayed after the user has moved on.
func (s *ContextStore) Load(tabID string) (*ExtractionContext, bool, error) {
	var payload string
	err := s.db.Get(&payload, "SELECT payload FROM continuations WHERE tab_id = ?", tabID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading continuation: %w", err)
	}

	var ctx ExtractionContext
	if err := json.Unmarshal([]byte(payload), &ctx); err != nil {
		debugLog("context store: discarding undecodable continuation for tab %s", tabID)
		s.Delete(tabID)
		return nil, false, nil
	}

	if ctx.Version != contextVersion || s.now().Sub(ctx.CreatedAt) > s.ttl {
		debugLog("context store: discarding stale continuation for tab %s", tabID)
		s.Delete(tabID)
		return nil, false, nil
	}

	return &ctx, true, nil
}

// ClearInProgress rewrites the continuation with its in-progress flag down.
// Called first thing on resumption so a crash mid-resume cannot loop.
func (s *ContextStore) ClearInProgress(tabID string, ctx *ExtractionContext) error {
	ctx.InProgress = false
	return s.Put(tabID, ctx)
}

// Delete removes the tab's continuation. Missing rows are not an error.
func (s *ContextStore) Delete(tabID string) {
	if _, err := s.db.Exec("DELETE FROM continuations WHERE tab_id = ?", tabID); err != nil {
		debugLog("context store: delete for tab %s failed: %v", tabID, err)
	}
}
