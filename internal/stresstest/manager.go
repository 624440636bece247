package stresstest

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/loadgen/internal/migrations"
)

// targetSeparator joins the target list in the targets column
const targetSeparator = "\n"

// Manager handles load test run persistence
type Manager struct {
	db *sql.DB
}

// NewManager creates a new run history manager
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: sqlite serializes writers anyway, and ":memory:"
	// databases are per connection
	db.SetMaxOpenConns(1)

	m := &Manager{db: db}

	// Run database migrations (includes schema initialization)
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

// CreateRun creates a new run record
func (m *Manager) CreateRun(run *Run) error {
	result, err := m.db.Exec(`
		INSERT INTO load_test_runs
		(uuid, targets, workers, interval_sec, timeout_sec, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.UUID, strings.Join(run.Targets, targetSeparator), run.Workers, run.IntervalSec, run.TimeoutSec, run.StartedAt, run.Status)
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

// UpdateRun updates a run record with its final counters
func (m *Manager) UpdateRun(run *Run) error {
	_, err := m.db.Exec(`
		UPDATE load_test_runs
		SET completed_at = ?, status = ?, total_requests = ?, total_errors = ?,
		    non_ok_responses = ?, transport_failures = ?,
		    avg_duration_ms = ?, min_duration_ms = ?, max_duration_ms = ?
		WHERE id = ?
	`, run.CompletedAt, run.Status, run.TotalRequests, run.TotalErrors,
		run.NonOKResponses, run.TransportFailures,
		run.AvgDurationMs, run.MinDurationMs, run.MaxDurationMs, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

const runColumns = `
	id, uuid, targets, workers, interval_sec, timeout_sec, started_at, completed_at, status,
	total_requests, total_errors, non_ok_responses, transport_failures,
	COALESCE(avg_duration_ms, 0), COALESCE(min_duration_ms, 0), COALESCE(max_duration_ms, 0)
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var targets string
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.UUID, &targets, &run.Workers, &run.IntervalSec, &run.TimeoutSec,
		&run.StartedAt, &completedAt, &run.Status,
		&run.TotalRequests, &run.TotalErrors, &run.NonOKResponses, &run.TransportFailures,
		&run.AvgDurationMs, &run.MinDurationMs, &run.MaxDurationMs)
	if err != nil {
		return nil, err
	}

	if targets != "" {
		run.Targets = strings.Split(targets, targetSeparator)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return run, nil
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(id int64) (*Run, error) {
	row := m.db.QueryRow(`SELECT `+runColumns+` FROM load_test_runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns recorded runs, newest first
func (m *Manager) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM load_test_runs ORDER BY started_at DESC, id DESC`
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
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run and all its intervals
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM load_test_intervals WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete intervals: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM load_test_runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return tx.Commit()
}

// SaveInterval saves one progress line of a run
func (m *Manager) SaveInterval(interval *Interval) error {
	result, err := m.db.Exec(`
		INSERT INTO load_test_intervals (run_id, taken_at, total, delta, errors)
		VALUES (?, ?, ?, ?, ?)
	`, interval.RunID, interval.TakenAt, interval.Total, interval.Delta, interval.Errors)
	if err != nil {
		return fmt.Errorf("failed to save interval: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	interval.ID = id
	return nil
}

// GetIntervals retrieves all progress lines of a run in order
func (m *Manager) GetIntervals(runID int64) ([]*Interval, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, taken_at, total, delta, errors
		FROM load_test_intervals
		WHERE run_id = ?
		ORDER BY taken_at, id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []*Interval
	for rows.Next() {
		iv := &Interval{}
		if err := rows.Scan(&iv.ID, &iv.RunID, &iv.TakenAt, &iv.Total, &iv.Delta, &iv.Errors); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}
