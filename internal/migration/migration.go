package migration

import (
	"context"

	"gobayes/internal"
	"gobayes/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// step is one idempotent schema change
type step struct {
	name string
	sql  string
	// optional steps log failures instead of aborting the run
	optional bool
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
	logger  *internal.Logger
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "2.0.0",
		logger:  internal.DefaultLogger.With("migration"),
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order. Every step can run again
// on an up-to-date schema.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, s := range r.steps() {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			if s.optional {
				r.logger.Warn("%s: %v", s.name, err)
				continue
			}
			return errors.Wrapf(err, "failed to %s", s.name)
		}
		r.logger.Debug("applied: %s", s.name)
	}
	r.logger.Info("schema at version %s", r.version)
	return nil
}

func (r *MigrationRunner) steps() []step {
	return []step{
		{name: "create fits table", sql: createFitsTable},
		{name: "add fits columns", sql: addFitsColumns},
		{name: "create fit indexes", sql: createFitIndexes, optional: true},
	}
}

const createFitsTable = `
	CREATE TABLE IF NOT EXISTS fits (
		id UUID PRIMARY KEY,
		fingerprint VARCHAR(64) NOT NULL,
		family VARCHAR(64) NOT NULL,
		response VARCHAR(255) NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		warning_count INTEGER NOT NULL DEFAULT 0,
		model JSONB NOT NULL,
		summary JSONB NOT NULL,
		snapshot JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`

// columns added after the first schema release
const addFitsColumns = `
	DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'fits' AND column_name = 'dataset_fingerprint'
		) THEN
			ALTER TABLE fits ADD COLUMN dataset_fingerprint VARCHAR(64) NOT NULL DEFAULT '';
		END IF;

		IF NOT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'fits' AND column_name = 'elapsed_ms'
		) THEN
			ALTER TABLE fits ADD COLUMN elapsed_ms BIGINT NOT NULL DEFAULT 0;
		END IF;
	END $$;`

const createFitIndexes = `
	CREATE INDEX IF NOT EXISTS idx_fits_created_at ON fits(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_fits_fingerprint ON fits(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_fits_dataset_fingerprint ON fits(dataset_fingerprint);`
