// Package storage is the server-of-record persistence for case logs, report
// logs and progress snapshots.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/lehigh-university-libraries/radtrack/internal/models"
)

// ErrNoCase is returned when a checkpoint is recorded before any case exists.
var ErrNoCase = errors.New("no case found to checkpoint")

// Store wraps SQLite access for the server-of-record.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// CaseLog is one completed localization case.
type CaseLog struct {
	ID                int64
	AccessCode        string
	CaseID            string
	Selections        models.Selections
	TimeSpentMs       int64
	TimerCheckpointMs int64
	CorrectCount      int
	IncorrectCount    int
	LocalizeTotal     int64
	CreatedAt         time.Time
}

// ReportLog is one submitted report.
type ReportLog struct {
	ID                int64
	AccessCode        string
	CaseID            string
	Findings          string
	GreenScore        *float64
	TimeSpentMs       int64
	TimerCheckpointMs int64
	CreatedAt         time.Time
}

// Open opens or creates the database at path and applies migrations. Use
// ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS access_codes (
			code TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			localize_cases_completed INTEGER NOT NULL DEFAULT 0,
			report_cases_completed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS user_case_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			access_code TEXT NOT NULL,
			case_id TEXT NOT NULL,
			selections_json TEXT NOT NULL,
			time_spent_ms INTEGER NOT NULL,
			timer_checkpoint_ms INTEGER NOT NULL,
			correct_count INTEGER NOT NULL,
			incorrect_count INTEGER NOT NULL,
			localize_cases_completed_snapshot INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS report_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			access_code TEXT NOT NULL,
			case_id TEXT NOT NULL,
			findings TEXT NOT NULL,
			green_score REAL,
			time_spent_ms INTEGER NOT NULL,
			timer_checkpoint_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS progress_snapshots (
			access_code TEXT NOT NULL,
			kind TEXT NOT NULL,
			total_correct INTEGER NOT NULL,
			total_incorrect INTEGER NOT NULL,
			total_cases INTEGER NOT NULL,
			images_processed INTEGER NOT NULL,
			session_time_ms INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (access_code, kind)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_case_logs_code ON user_case_logs(access_code, id);`,
		`CREATE INDEX IF NOT EXISTS idx_report_logs_code ON report_logs(access_code, id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// EnsureAccessCode creates the access code row on first use.
func (s *Store) EnsureAccessCode(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO access_codes (code, created_at) VALUES (?, ?)`, code, s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to create access code: %w", err)
	}
	return nil
}

// RecordCase stores a completed case. Its timer checkpoint is the total time of
// every earlier case plus this one.
func (s *Store) RecordCase(ctx context.Context, log CaseLog) (CaseLog, error) {
	if err := s.EnsureAccessCode(ctx, log.AccessCode); err != nil {
		return log, err
	}
	selections, err := json.Marshal(log.Selections)
	if err != nil {
		return log, fmt.Errorf("failed to encode selections: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return log, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevTotal int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(time_spent_ms), 0) FROM user_case_logs WHERE access_code = ?`,
		log.AccessCode).Scan(&prevTotal); err != nil {
		return log, fmt.Errorf("failed to total case time: %w", err)
	}
	var completed int64
	if err := tx.QueryRowContext(ctx,
		`SELECT localize_cases_completed FROM access_codes WHERE code = ?`,
		log.AccessCode).Scan(&completed); err != nil {
		return log, fmt.Errorf("failed to read access code: %w", err)
	}

	log.TimeSpentMs = max(log.TimeSpentMs, 0)
	log.TimerCheckpointMs = prevTotal + log.TimeSpentMs
	log.LocalizeTotal = completed + 1
	createdAt := s.timestamp()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO user_case_logs (access_code, case_id, selections_json, time_spent_ms, timer_checkpoint_ms,
			correct_count, incorrect_count, localize_cases_completed_snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.AccessCode, log.CaseID, string(selections), log.TimeSpentMs, log.TimerCheckpointMs,
		log.CorrectCount, log.IncorrectCount, log.LocalizeTotal, createdAt)
	if err != nil {
		return log, fmt.Errorf("failed to insert case log: %w", err)
	}
	if log.ID, err = res.LastInsertId(); err != nil {
		return log, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE access_codes SET localize_cases_completed = ? WHERE code = ?`,
		log.LocalizeTotal, log.AccessCode); err != nil {
		return log, fmt.Errorf("failed to update access code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return log, fmt.Errorf("failed to commit case log: %w", err)
	}
	log.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return log, nil
}

// UpdateLatestCheckpoint overwrites the checkpoint of the most recent case.
func (s *Store) UpdateLatestCheckpoint(ctx context.Context, code string, ms int64) (int64, error) {
	ms = max(ms, 0)
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_case_logs SET timer_checkpoint_ms = ?
		 WHERE id = (SELECT MAX(id) FROM user_case_logs WHERE access_code = ?)`, ms, code)
	if err != nil {
		return 0, fmt.Errorf("failed to update checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNoCase
	}
	return ms, nil
}

// ProgressSummary aggregates the localization logs of code.
func (s *Store) ProgressSummary(ctx context.Context, code string) (models.ProgressSummary, error) {
	var sum models.ProgressSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(correct_count), 0), COALESCE(SUM(incorrect_count), 0),
			COALESCE(SUM(time_spent_ms), 0), COALESCE(MAX(timer_checkpoint_ms), 0)
		 FROM user_case_logs WHERE access_code = ?`, code).
		Scan(&sum.CasesTotal, &sum.CorrectCases, &sum.IncorrectCases, &sum.TotalTimeMs, &sum.LastTimerCheckpointMs)
	if err != nil {
		return sum, fmt.Errorf("failed to summarize cases: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT localize_cases_completed FROM access_codes WHERE code = ?`, code).Scan(&sum.ImagesTotal)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return sum, fmt.Errorf("failed to read access code: %w", err)
	}
	sum.Normalize()
	return sum, nil
}

// ReportSummary aggregates the report logs of code. The average GREEN score is
// nil until a scored report exists.
func (s *Store) ReportSummary(ctx context.Context, code string) (models.ReportSummary, error) {
	var sum models.ReportSummary
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(green_score), COALESCE(SUM(time_spent_ms), 0), COALESCE(MAX(timer_checkpoint_ms), 0)
		 FROM report_logs WHERE access_code = ?`, code).
		Scan(&sum.ReportCasesCompleted, &avg, &sum.TotalTimeMs, &sum.LastTimerCheckpointMs)
	if err != nil {
		return sum, fmt.Errorf("failed to summarize reports: %w", err)
	}
	if avg.Valid {
		v := avg.Float64
		sum.AvgGreenScore = &v
	}
	sum.Normalize()
	return sum, nil
}

// RecordReport stores a submitted report with a checkpoint computed the same
// way as for cases.
func (s *Store) RecordReport(ctx context.Context, log ReportLog) (ReportLog, error) {
	if err := s.EnsureAccessCode(ctx, log.AccessCode); err != nil {
		return log, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return log, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevTotal int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(time_spent_ms), 0) FROM report_logs WHERE access_code = ?`,
		log.AccessCode).Scan(&prevTotal); err != nil {
		return log, fmt.Errorf("failed to total report time: %w", err)
	}
	log.TimeSpentMs = max(log.TimeSpentMs, 0)
	log.TimerCheckpointMs = prevTotal + log.TimeSpentMs
	createdAt := s.timestamp()

	var green sql.NullFloat64
	if log.GreenScore != nil {
		green = sql.NullFloat64{Float64: *log.GreenScore, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO report_logs (access_code, case_id, findings, green_score, time_spent_ms, timer_checkpoint_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.AccessCode, log.CaseID, log.Findings, green, log.TimeSpentMs, log.TimerCheckpointMs, createdAt)
	if err != nil {
		return log, fmt.Errorf("failed to insert report log: %w", err)
	}
	if log.ID, err = res.LastInsertId(); err != nil {
		return log, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE access_codes SET report_cases_completed = report_cases_completed + 1 WHERE code = ?`,
		log.AccessCode); err != nil {
		return log, fmt.Errorf("failed to update access code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return log, fmt.Errorf("failed to commit report log: %w", err)
	}
	log.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return log, nil
}

// RecordSnapshot keeps the latest snapshot of each kind per access code.
func (s *Store) RecordSnapshot(ctx context.Context, code, kind string, snap models.ProgressSnapshot) error {
	if err := s.EnsureAccessCode(ctx, code); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress_snapshots (access_code, kind, total_correct, total_incorrect, total_cases,
			images_processed, session_time_ms, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(access_code, kind) DO UPDATE SET
			total_correct = excluded.total_correct,
			total_incorrect = excluded.total_incorrect,
			total_cases = excluded.total_cases,
			images_processed = excluded.images_processed,
			session_time_ms = excluded.session_time_ms,
			updated_at = excluded.updated_at`,
		code, kind, snap.CorrectCount, snap.IncorrectCount, snap.CaseCount,
		snap.ImagesProcessed, snap.ElapsedMs, s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the stored snapshot of kind, if any.
func (s *Store) LatestSnapshot(ctx context.Context, code, kind string) (models.ProgressSnapshot, bool, error) {
	var snap models.ProgressSnapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT total_correct, total_incorrect, total_cases, images_processed, session_time_ms
		 FROM progress_snapshots WHERE access_code = ? AND kind = ?`, code, kind).
		Scan(&snap.CorrectCount, &snap.IncorrectCount, &snap.CaseCount, &snap.ImagesProcessed, &snap.ElapsedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return snap, true, nil
}

// ListCaseLogs returns case logs oldest first. An empty code lists every code.
func (s *Store) ListCaseLogs(ctx context.Context, code string) ([]CaseLog, error) {
	query := `SELECT id, access_code, case_id, selections_json, time_spent_ms, timer_checkpoint_ms,
			correct_count, incorrect_count, localize_cases_completed_snapshot, created_at
		 FROM user_case_logs`
	var args []any
	if code != "" {
		query += ` WHERE access_code = ?`
		args = append(args, code)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list case logs: %w", err)
	}
	defer rows.Close()

	var logs []CaseLog
	for rows.Next() {
		var (
			log        CaseLog
			selections string
			createdAt  string
		)
		if err := rows.Scan(&log.ID, &log.AccessCode, &log.CaseID, &selections, &log.TimeSpentMs,
			&log.TimerCheckpointMs, &log.CorrectCount, &log.IncorrectCount, &log.LocalizeTotal, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(selections), &log.Selections); err != nil {
			return nil, fmt.Errorf("failed to decode selections of case log %d: %w", log.ID, err)
		}
		log.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
