// Package history persists one record per run attempt so past supervision
// activity can be inspected after the fact.
package history

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/simswarm/simswarm/internal/runner"
)

// Record is one persisted run attempt
type Record struct {
	RunID      string    `json:"run_id"`
	Slot       int       `json:"slot"`
	BinaryPath string    `json:"binary_path"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Outcome    string    `json:"outcome"`
	ExitCode   int       `json:"exit_code"`
	LogPath    string    `json:"log_path"`
}

// Summary aggregates attempt counts per outcome
type Summary struct {
	Total     int64            `json:"total"`
	ByOutcome map[string]int64 `json:"by_outcome"`
}

// Store is a SQLite-backed run history store
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens a run history database.
// WAL mode so the history command can read while the supervisor writes.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY under concurrent slot completions
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		slot INTEGER NOT NULL,
		binary_path TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		outcome TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		log_path TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_start_time ON runs(start_time);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordResult persists a finished attempt
func (s *Store) RecordResult(result *runner.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, slot, binary_path, start_time, end_time, outcome, exit_code, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Slot,
		result.BinaryPath,
		result.StartTime.UTC(),
		result.EndTime.UTC(),
		string(result.Outcome),
		result.ExitCode,
		result.LogPath,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", result.RunID, err)
	}
	return nil
}

// Recent returns the most recent attempts, newest first
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT run_id, slot, binary_path, start_time, end_time, outcome, exit_code, log_path
		FROM runs ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.RunID, &rec.Slot, &rec.BinaryPath, &rec.StartTime,
			&rec.EndTime, &rec.Outcome, &rec.ExitCode, &rec.LogPath); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Summarize returns attempt counts per outcome
func (s *Store) Summarize() (*Summary, error) {
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}
	defer rows.Close()

	summary := &Summary{ByOutcome: make(map[string]int64)}
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		summary.ByOutcome[outcome] = count
		summary.Total += count
	}

	return summary, rows.Err()
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
