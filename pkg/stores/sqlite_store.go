package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/matbridge/matbridge/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when an execution ID has no stored row.
var ErrNotFound = errors.New("execution not found")

// HistoryStore persists execution history in SQLite. It satisfies
// engine.HistoryRecorder.
type HistoryStore struct {
	db     *sql.DB
	path   string
	config Config
}

var _ engine.HistoryRecorder = (*HistoryStore)(nil)

// NewHistoryStore creates a new SQLite history store instance.
func NewHistoryStore(cfg Config) (*HistoryStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &HistoryStore{
		path:   cfg.Path,
		config: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *HistoryStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *HistoryStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordExecution stores one finished execution.
func (s *HistoryStore) RecordExecution(ctx context.Context, rec *engine.ExecutionRecord) error {
	query := `
		INSERT INTO executions (
			id, code, status, classification, error_class, error_detail,
			saw_debug_pause, desktop_auto_shown, probe_failures,
			started_at, finished_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Code,
		string(rec.Status),
		string(rec.Classification),
		rec.ErrorClass,
		rec.ErrorDetail,
		boolToInt(rec.SawDebugPause),
		boolToInt(rec.DesktopAutoShown),
		rec.ProbeFailures,
		rec.StartedAt.UTC(),
		rec.FinishedAt.UTC(),
		rec.Duration.Milliseconds(),
	)

	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}

	return nil
}

// GetExecution retrieves an execution by ID.
func (s *HistoryStore) GetExecution(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
	query := `
		SELECT id, code, status, classification, error_class, error_detail,
		       saw_debug_pause, desktop_auto_shown, probe_failures,
		       started_at, finished_at, duration_ms
		FROM executions
		WHERE id = ?
	`

	rec, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return rec, nil
}

// ListExecutions lists executions newest first.
func (s *HistoryStore) ListExecutions(ctx context.Context, opts ListOptions) ([]*engine.ExecutionRecord, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	query := `
		SELECT id, code, status, classification, error_class, error_detail,
		       saw_debug_pause, desktop_auto_shown, probe_failures,
		       started_at, finished_at, duration_ms
		FROM executions
		WHERE (? = '' OR status = ?)
		  AND (? = '' OR classification = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		string(opts.Status), string(opts.Status),
		string(opts.Classification), string(opts.Classification),
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	records := []*engine.ExecutionRecord{}
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return records, nil
}

// Prune deletes executions that started before the given cutoff and returns
// how many rows were removed.
func (s *HistoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM executions WHERE started_at < ?`

	result, err := s.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// GetStats summarizes the stored history.
func (s *HistoryStore) GetStats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN classification = 'reclassified_after_debug' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(saw_debug_pause), 0),
			COALESCE(SUM(desktop_auto_shown), 0)
		FROM executions
	`

	stats := &Stats{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.Total,
		&stats.Succeeded,
		&stats.Failed,
		&stats.Reclassified,
		&stats.DebugPausesSeen,
		&stats.DesktopAutoShown,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *HistoryStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*engine.ExecutionRecord, error) {
	rec := &engine.ExecutionRecord{}
	var status, classification string
	var sawDebug, desktopShown int
	var durationMs int64

	err := row.Scan(
		&rec.ID,
		&rec.Code,
		&status,
		&classification,
		&rec.ErrorClass,
		&rec.ErrorDetail,
		&sawDebug,
		&desktopShown,
		&rec.ProbeFailures,
		&rec.StartedAt,
		&rec.FinishedAt,
		&durationMs,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = engine.Status(status)
	rec.Classification = engine.Classification(classification)
	rec.SawDebugPause = sawDebug != 0
	rec.DesktopAutoShown = desktopShown != 0
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
