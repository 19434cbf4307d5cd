// Package eventlog provides a SQLite-backed append-only record of workflow
// runs and their events, for post-hoc inspection of what each role did when.
package eventlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // database/sql driver

	"clockwork/pkg/logx"
)

// Event types recorded during a run.
const (
	EventRunStarted     = "run_started"
	EventRunFinished    = "run_finished"
	EventPlanProduced   = "plan_produced"
	EventIterationSaved = "iteration_saved"
	EventVerdict        = "critic_verdict"
	EventCheckpoint     = "checkpoint"
	EventStageRetry     = "stage_retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	ended_at   TEXT,
	status     TEXT NOT NULL DEFAULT 'running'
);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	created_at TEXT NOT NULL,
	event_type TEXT NOT NULL,
	stage      INTEGER,
	subtask    INTEGER,
	iteration  INTEGER,
	detail     TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, id);
`

// Event is one recorded occurrence within a run.
type Event struct {
	ID        int64
	RunID     string
	CreatedAt time.Time
	Type      string
	Stage     int
	Subtask   int
	Iteration int
	Detail    string
}

// Log is an open event log bound to one run. Safe for a single writer, which
// matches the workflow's single thread of control.
type Log struct {
	db     *sql.DB
	runID  string
	logger *logx.Logger
}

// Open creates (or reuses) the database at path and starts a new run record.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping event log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize event log schema: %w", err)
	}
	// SQLite supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	runID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, runID, now); err != nil {
		db.Close()
		return nil, fmt.Errorf("create run record: %w", err)
	}

	l := &Log{db: db, runID: runID, logger: logx.NewLogger("eventlog")}
	l.logger.Info("run %s started", runID)
	return l, nil
}

// RunID returns this run's identifier.
func (l *Log) RunID() string {
	return l.runID
}

// Record appends an event at the given workflow position. Failures are
// logged and swallowed; the event log is telemetry, not state.
func (l *Log) Record(eventType string, stage, subtask, iteration int, detail string) {
	_, err := l.db.Exec(
		`INSERT INTO events (run_id, created_at, event_type, stage, subtask, iteration, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.runID, time.Now().UTC().Format(time.RFC3339), eventType, stage, subtask, iteration, detail,
	)
	if err != nil {
		l.logger.Warn("record %s: %v", eventType, err)
	}
}

// Events returns every event of this run in insertion order.
func (l *Log) Events() ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT id, run_id, created_at, event_type, stage, subtask, iteration, detail
		 FROM events WHERE run_id = ? ORDER BY id`, l.runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.RunID, &created, &e.Type, &e.Stage, &e.Subtask, &e.Iteration, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close marks the run finished and releases the database.
func (l *Log) Close(status string) error {
	if status == "" {
		status = "completed"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := l.db.Exec(`UPDATE runs SET ended_at = ?, status = ? WHERE id = ?`, now, status, l.runID); err != nil {
		l.logger.Warn("finalize run: %v", err)
	}
	return l.db.Close()
}
