// Package analytics persists tool-call outcomes and session summaries in
// a local SQLite database. Recording is fire-and-forget: an unavailable
// store never blocks or fails a tool call.
package analytics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const busyTimeoutMillis = 5000

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tool_calls (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT    NOT NULL,
		ts         TEXT    NOT NULL,
		tool       TEXT    NOT NULL,
		latency_ms INTEGER NOT NULL,
		success    INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, ts)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id              TEXT PRIMARY KEY,
		ts              TEXT    NOT NULL,
		duration_ms     INTEGER NOT NULL,
		total_calls     INTEGER NOT NULL,
		tokens_estimate INTEGER NOT NULL
	)`,
}

// Store is the SQLite-backed analytics event log.
type Store struct {
	db *sql.DB
}

// CallRow is one recorded tool call.
type CallRow struct {
	SessionID string
	Timestamp time.Time
	Tool      string
	LatencyMs int64
	Success   bool
}

// SessionRow is one recorded session summary.
type SessionRow struct {
	ID             string
	Timestamp      time.Time
	DurationMs     int64
	TotalCalls     int
	TokensEstimate int64
}

// Summary aggregates the whole event log for the stats view.
type Summary struct {
	TotalCalls   int64
	FailedCalls  int64
	AvgLatencyMs float64
	Sessions     int64
}

// Open opens (creating if necessary) the analytics database at path with
// WAL mode, a busy timeout, and a single connection; SQLite serializes
// writes anyway.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("analytics: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("analytics: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("analytics: enable WAL: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis)); err != nil {
		db.Close()
		return nil, fmt.Errorf("analytics: set busy_timeout: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("analytics: migrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// InsertCall appends one tool-call record.
func (s *Store) InsertCall(row CallRow) error {
	_, err := s.db.Exec(
		`INSERT INTO tool_calls (session_id, ts, tool, latency_ms, success) VALUES (?, ?, ?, ?, ?)`,
		row.SessionID, row.Timestamp.UTC().Format(time.RFC3339Nano), row.Tool, row.LatencyMs, boolToInt(row.Success),
	)
	if err != nil {
		return fmt.Errorf("analytics: insert call: %w", err)
	}
	return nil
}

// InsertSession appends one session summary.
func (s *Store) InsertSession(row SessionRow) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sessions (id, ts, duration_ms, total_calls, tokens_estimate) VALUES (?, ?, ?, ?, ?)`,
		row.ID, row.Timestamp.UTC().Format(time.RFC3339Nano), row.DurationMs, row.TotalCalls, row.TokensEstimate,
	)
	if err != nil {
		return fmt.Errorf("analytics: insert session: %w", err)
	}
	return nil
}

// RecentCalls returns the most recent tool calls, newest first.
func (s *Store) RecentCalls(limit int) ([]CallRow, error) {
	rows, err := s.db.Query(
		`SELECT session_id, ts, tool, latency_ms, success FROM tool_calls ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("analytics: query calls: %w", err)
	}
	defer rows.Close()

	var calls []CallRow
	for rows.Next() {
		var row CallRow
		var ts string
		var success int
		if err := rows.Scan(&row.SessionID, &ts, &row.Tool, &row.LatencyMs, &success); err != nil {
			return nil, fmt.Errorf("analytics: scan call: %w", err)
		}
		row.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		row.Success = success != 0
		calls = append(calls, row)
	}
	return calls, rows.Err()
}

// Summarize aggregates the full event log.
func (s *Store) Summarize() (Summary, error) {
	var summary Summary
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(latency_ms), 0)
		 FROM tool_calls`,
	).Scan(&summary.TotalCalls, &summary.FailedCalls, &summary.AvgLatencyMs)
	if err != nil {
		return Summary{}, fmt.Errorf("analytics: summarize calls: %w", err)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&summary.Sessions); err != nil {
		return Summary{}, fmt.Errorf("analytics: summarize sessions: %w", err)
	}
	return summary, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
