package migration

import (
	"context"

	"gocka/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the report store schema. The DDL sticks to types
// and clauses that both sqlite and postgres accept.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create runs table")
	}

	if err := r.createLogReportsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create log_reports table")
	}

	if err := r.createErrorRowsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create error_rows table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			folder TEXT NOT NULL,
			resamples INTEGER NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			seed BIGINT NOT NULL,
			failures INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createLogReportsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS log_reports (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			log_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			language TEXT NOT NULL,
			family TEXT NOT NULL DEFAULT '',
			fact_count INTEGER NOT NULL,
			true_count INTEGER NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			ci_lower DOUBLE PRECISION NOT NULL,
			ci_median DOUBLE PRECISION NOT NULL,
			ci_upper DOUBLE PRECISION NOT NULL,
			half_width DOUBLE PRECISION NOT NULL,
			std_error DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			resamples INTEGER NOT NULL,
			mean_p_true DOUBLE PRECISION NOT NULL,
			mean_p_false DOUBLE PRECISION NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createErrorRowsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS error_rows (
			report_id TEXT NOT NULL REFERENCES log_reports(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			model TEXT NOT NULL,
			dataset_id TEXT NOT NULL DEFAULT '',
			difference DOUBLE PRECISION NOT NULL,
			stem TEXT NOT NULL,
			fact TEXT NOT NULL,
			counterfacts TEXT NOT NULL,
			relation TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (report_id, position)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_log_reports_run ON log_reports(run_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
