package migration

import (
	"context"

	"gosegment/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations. The statements are
// portable between PostgreSQL and SQLite.
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
	if err := r.createSegmentationRunsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create segmentation_runs table", err)
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.DatabaseError("failed to create indexes", err)
	}

	return nil
}

func (r *MigrationRunner) createSegmentationRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS segmentation_runs (
			id TEXT PRIMARY KEY,
			wizard_id TEXT NOT NULL,
			variables TEXT NOT NULL,
			method TEXT NOT NULL,
			linkage TEXT NOT NULL DEFAULT '',
			clusters INTEGER NOT NULL,
			standardize BOOLEAN NOT NULL,
			total_classified INTEGER NOT NULL,
			silhouette DOUBLE PRECISION,
			segment_ids TEXT NOT NULL DEFAULT '[]',
			created_at BIGINT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_segmentation_runs_created_at ON segmentation_runs (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_segmentation_runs_wizard_id ON segmentation_runs (wizard_id)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
