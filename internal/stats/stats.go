// Package stats records per-tick match results in SQLite and aggregates
// them into per-task summaries. Ticks are high-volume and disposable;
// the maintenance job prunes old rows on a schedule.
package stats

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNoData is returned when a task has no recorded ticks.
var ErrNoData = errors.New("no stats recorded")

// Store wraps the SQLite stats database.
type Store struct {
	db *sql.DB
}

// Summary aggregates one task's recorded ticks.
type Summary struct {
	TaskID    string     `json:"task_id"`
	Ticks     int        `json:"ticks"`
	Clicks    int        `json:"clicks"`
	HitRate   float64    `json:"hit_rate"`
	AvgScore  float64    `json:"avg_score"`
	BestScore float64    `json:"best_score"`
	LastClick *time.Time `json:"last_click,omitempty"`
}

// Open opens (or creates) the stats database at path and runs
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure stats dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows only one writer; a single pooled connection keeps
	// WAL and busy_timeout consistently applied and serializes writes
	// within the process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	timeout := int((3 * time.Second) / time.Millisecond)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", timeout)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one tick result. It satisfies the scheduler's Recorder.
func (s *Store) Record(ctx context.Context, taskID string, clicked bool, score float64, elapsed time.Duration) error {
	clickedInt := 0
	if clicked {
		clickedInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticks (task_id, clicked, score, elapsed_ms, at)
		VALUES (?, ?, ?, ?, ?)
	`, taskID, clickedInt, score, elapsed.Milliseconds(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record tick: %w", err)
	}
	return nil
}

// TaskSummary aggregates the ticks of one task.
func (s *Store) TaskSummary(ctx context.Context, taskID string) (Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, COUNT(1), SUM(clicked), AVG(score), MAX(score),
		       MAX(CASE WHEN clicked = 1 THEN at END)
		FROM ticks
		WHERE task_id = ?
		GROUP BY task_id
	`, taskID)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, fmt.Errorf("%w: %s", ErrNoData, taskID)
	}
	return sum, err
}

// Summaries aggregates every task's ticks, most active first.
func (s *Store) Summaries(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, COUNT(1), SUM(clicked), AVG(score), MAX(score),
		       MAX(CASE WHEN clicked = 1 THEN at END)
		FROM ticks
		GROUP BY task_id
		ORDER BY COUNT(1) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Prune deletes ticks older than the retention window and reports how
// many rows went away.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM ticks WHERE at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune ticks: %w", err)
	}
	return res.RowsAffected()
}

func scanSummary(scanner interface{ Scan(dest ...any) error }) (Summary, error) {
	var (
		sum       Summary
		clicks    sql.NullInt64
		avg       sql.NullFloat64
		best      sql.NullFloat64
		lastClick sql.NullString
	)
	if err := scanner.Scan(&sum.TaskID, &sum.Ticks, &clicks, &avg, &best, &lastClick); err != nil {
		return Summary{}, err
	}
	sum.Clicks = int(clicks.Int64)
	sum.AvgScore = avg.Float64
	sum.BestScore = best.Float64
	if sum.Ticks > 0 {
		sum.HitRate = float64(sum.Clicks) / float64(sum.Ticks)
	}
	if lastClick.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastClick.String)
		if err != nil {
			return Summary{}, fmt.Errorf("invalid stored time %q: %w", lastClick.String, err)
		}
		sum.LastClick = &t
	}
	return sum, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	type mig struct {
		Version string
		SQL     string
	}
	entries := []mig{
		{Version: "0001_init", SQL: mustReadMigration("migrations/0001_init.sql")},
	}
	for _, entry := range entries {
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, entry.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := db.ExecContext(ctx, entry.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Version, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`,
			entry.Version, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Version, err)
		}
	}
	return nil
}

func mustReadMigration(path string) string {
	data, err := migrations.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("read migration %s: %v", path, err))
	}
	return string(data)
}
