// Package history persists engine runs and their per-shot metrics in SQLite.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/studiowebux/loadcheck/internal/migrations"
)

// Run is one persisted engine run. Latency fields are nil when the run
// collected no finite samples.
type Run struct {
	ID            int64
	Name          string
	TargetURL     string
	StartedAt     time.Time
	CompletedAt   *time.Time
	Status        string // "running", "completed", "failed"
	TotalRequests int
	ErrorCount    int
	ErrorRate     float64
	AvgLatencyMs  *float64
	P50LatencyMs  *float64
	P95LatencyMs  *float64
	P99LatencyMs  *float64
	MinLatencyMs  *float64
	MaxLatencyMs  *float64
	// ResourceSummary is the JSON-encoded resource aggregate
	ResourceSummary string
	StressStatus    string
	StressReason    string

	RecoveryChecked       bool
	RecoveryWithinSLA     bool
	RecoveryLastLatencyMs *float64
	RecoveryWaitedSec     int
	RecoveryStatus        string
}

// Shot is one persisted request metric
type Shot struct {
	ID           int64
	RunID        int64
	Timestamp    time.Time
	ElapsedMs    int64
	StatusCode   int
	LatencyMs    float64
	ErrorMessage string
}

// Manager handles run history persistence
type Manager struct {
	db *sql.DB
}

// NewManager opens (and migrates) the history database at dbPath.
// ":memory:" is supported for tests.
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection avoids SQLITE_BUSY under concurrent writes and
	// keeps ":memory:" pointing at one database instead of one per pooled
	// connection
	db.SetMaxOpenConns(1)

	m := &Manager{db: db}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return m, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

// DB exposes the underlying handle for read-only aggregate queries
func (m *Manager) DB() *sql.DB {
	return m.db
}

// CreateRun inserts a new run record and fills in its ID
func (m *Manager) CreateRun(run *Run) error {
	result, err := m.db.Exec(`
		INSERT INTO runs (name, target_url, started_at, status)
		VALUES (?, ?, ?, ?)
	`, run.Name, run.TargetURL, run.StartedAt, run.Status)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// UpdateRun writes the final statistics and verdicts of a run
func (m *Manager) UpdateRun(run *Run) error {
	_, err := m.db.Exec(`
		UPDATE runs
		SET completed_at = ?, status = ?, total_requests = ?, error_count = ?, error_rate = ?,
		    avg_latency_ms = ?, p50_latency_ms = ?, p95_latency_ms = ?, p99_latency_ms = ?,
		    min_latency_ms = ?, max_latency_ms = ?, resource_summary = ?,
		    stress_status = ?, stress_reason = ?,
		    recovery_checked = ?, recovery_within_sla = ?, recovery_last_latency_ms = ?,
		    recovery_waited_sec = ?, recovery_status = ?
		WHERE id = ?
	`, run.CompletedAt, run.Status, run.TotalRequests, run.ErrorCount, run.ErrorRate,
		run.AvgLatencyMs, run.P50LatencyMs, run.P95LatencyMs, run.P99LatencyMs,
		run.MinLatencyMs, run.MaxLatencyMs, run.ResourceSummary,
		run.StressStatus, run.StressReason,
		run.RecoveryChecked, run.RecoveryWithinSLA, run.RecoveryLastLatencyMs,
		run.RecoveryWaitedSec, run.RecoveryStatus, run.ID)
	return err
}

const runColumns = `
	id, COALESCE(name, ''), target_url, started_at, completed_at, status,
	total_requests, error_count, error_rate,
	avg_latency_ms, p50_latency_ms, p95_latency_ms, p99_latency_ms,
	min_latency_ms, max_latency_ms, COALESCE(resource_summary, ''),
	COALESCE(stress_status, ''), COALESCE(stress_reason, ''),
	recovery_checked, recovery_within_sla, recovery_last_latency_ms,
	recovery_waited_sec, COALESCE(recovery_status, '')`

// scanRun reads one run row
func scanRun(scan func(dest ...any) error) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	var avg, p50, p95, p99, min, max, recLast sql.NullFloat64

	err := scan(&run.ID, &run.Name, &run.TargetURL, &run.StartedAt, &completedAt, &run.Status,
		&run.TotalRequests, &run.ErrorCount, &run.ErrorRate,
		&avg, &p50, &p95, &p99, &min, &max, &run.ResourceSummary,
		&run.StressStatus, &run.StressReason,
		&run.RecoveryChecked, &run.RecoveryWithinSLA, &recLast,
		&run.RecoveryWaitedSec, &run.RecoveryStatus)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.AvgLatencyMs = nullableFloat(avg)
	run.P50LatencyMs = nullableFloat(p50)
	run.P95LatencyMs = nullableFloat(p95)
	run.P99LatencyMs = nullableFloat(p99)
	run.MinLatencyMs = nullableFloat(min)
	run.MaxLatencyMs = nullableFloat(max)
	run.RecoveryLastLatencyMs = nullableFloat(recLast)
	return run, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(id int64) (*Run, error) {
	row := m.db.QueryRow("SELECT"+runColumns+" FROM runs WHERE id = ?", id)
	return scanRun(row.Scan)
}

// ListRuns returns the most recent runs, newest first
func (m *Manager) ListRuns(limit int) ([]*Run, error) {
	query := "SELECT" + runColumns + " FROM runs ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run and all its shots
func (m *Manager) DeleteRun(id int64) error {
	_, err := m.db.Exec("DELETE FROM runs WHERE id = ?", id)
	return err
}

// SaveShotsBatch saves multiple shot metrics in a single transaction
func (m *Manager) SaveShotsBatch(shots []*Shot) error {
	if len(shots) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO shots (run_id, timestamp, elapsed_ms, status_code, latency_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, shot := range shots {
		_, err := stmt.Exec(shot.RunID, shot.Timestamp, shot.ElapsedMs, shot.StatusCode,
			shot.LatencyMs, shot.ErrorMessage)
		if err != nil {
			return fmt.Errorf("failed to insert shot: %w", err)
		}
	}

	return tx.Commit()
}

// GetShots retrieves all shot metrics for a run, in elapsed order
func (m *Manager) GetShots(runID int64) ([]*Shot, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, timestamp, elapsed_ms, status_code, latency_ms, COALESCE(error_message, '')
		FROM shots
		WHERE run_id = ?
		ORDER BY elapsed_ms
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shots []*Shot
	for rows.Next() {
		shot := &Shot{}
		err := rows.Scan(&shot.ID, &shot.RunID, &shot.Timestamp, &shot.ElapsedMs,
			&shot.StatusCode, &shot.LatencyMs, &shot.ErrorMessage)
		if err != nil {
			return nil, err
		}
		shots = append(shots, shot)
	}
	return shots, rows.Err()
}
