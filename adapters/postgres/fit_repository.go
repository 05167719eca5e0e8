package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gobayes/domain/core"
	"gobayes/domain/fit"
	"gobayes/internal/errors"
	"gobayes/ports"

	"github.com/jmoiron/sqlx"
)

// DefaultListLimit caps List when the caller passes no limit
const DefaultListLimit = 50

// fitRepository stores fits in the fits table. The full result lives in the
// snapshot column; the other columns serve listings and lookups.
type fitRepository struct {
	db *sqlx.DB
}

// NewFitRepository creates a Postgres-backed fit repository
func NewFitRepository(db *sqlx.DB) ports.FitRepository {
	return &fitRepository{db: db}
}

// fitRow mirrors the listing columns of the fits table
type fitRow struct {
	ID           string         `db:"id"`
	Family       string         `db:"family"`
	Response     string         `db:"response"`
	RowCount     int            `db:"row_count"`
	WarningCount int            `db:"warning_count"`
	CreatedAt    core.Timestamp `db:"created_at"`
}

func (r fitRow) summary() ports.FitSummary {
	return ports.FitSummary{
		ID:        core.FitID(r.ID),
		Family:    r.Family,
		Response:  r.Response,
		Rows:      r.RowCount,
		Warnings:  r.WarningCount,
		CreatedAt: r.CreatedAt,
	}
}

// insertArgs lays out a result in column order of the insert statement
func insertArgs(result *fit.Result) ([]interface{}, error) {
	snapshot, err := result.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fit: %w", err)
	}
	spec, err := json.Marshal(result.Spec())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model: %w", err)
	}
	summary, err := json.Marshal(result.Summary())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	s := ports.SummarizeFit(result)
	return []interface{}{
		s.ID.String(), result.Fingerprint().String(), result.DatasetFingerprint().String(),
		s.Family, s.Response, s.Rows, s.Warnings,
		spec, summary, snapshot,
		result.Elapsed().Milliseconds(), s.CreatedAt,
	}, nil
}

// Save inserts a fit, replacing an earlier row with the same ID
func (r *fitRepository) Save(ctx context.Context, result *fit.Result) error {
	args, err := insertArgs(result)
	if err != nil {
		return err
	}

	query := `INSERT INTO fits (
		id, fingerprint, dataset_fingerprint, family, response, row_count, warning_count,
		model, summary, snapshot, elapsed_ms, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
	)
	ON CONFLICT (id) DO UPDATE SET
		summary = EXCLUDED.summary,
		snapshot = EXCLUDED.snapshot,
		warning_count = EXCLUDED.warning_count`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return errors.DatabaseError("failed to save fit", err)
	}
	return nil
}

// Get loads a fit by ID
func (r *fitRepository) Get(ctx context.Context, id core.FitID) (*fit.Result, error) {
	var snapshot []byte
	err := r.db.QueryRowContext(ctx, `SELECT snapshot FROM fits WHERE id = $1`, id.String()).Scan(&snapshot)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrFitNotFound, id)
		}
		return nil, errors.DatabaseError("failed to get fit", err)
	}

	result, err := fit.Decode(snapshot)
	if err != nil {
		return nil, errors.Wrapf(err, "stored fit %s is unreadable", id)
	}
	return result, nil
}

// List returns the newest fits first
func (r *fitRepository) List(ctx context.Context, limit int) ([]ports.FitSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, family, response, row_count, warning_count, created_at
		FROM fits ORDER BY created_at DESC LIMIT $1`

	var rows []fitRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.DatabaseError("failed to list fits", err)
	}

	out := make([]ports.FitSummary, len(rows))
	for i, row := range rows {
		out[i] = row.summary()
	}
	return out, nil
}

// Delete removes a fit
func (r *fitRepository) Delete(ctx context.Context, id core.FitID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM fits WHERE id = $1`, id.String())
	if err != nil {
		return errors.DatabaseError("failed to delete fit", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", core.ErrFitNotFound, id)
	}
	return nil
}
