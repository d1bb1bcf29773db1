package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"time"

	"gosegment/domain/core"
	"gosegment/domain/segmentation"
	"gosegment/internal/errors"
	"gosegment/ports"

	"github.com/jmoiron/sqlx"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// RunRepositoryImpl implements ports.RunRepository on sqlx
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a run-history repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// runRow is the storage form of a run. Slices are JSON text and the
// timestamp is unix milliseconds so both dialects store them alike.
type runRow struct {
	ID              string          `db:"id"`
	WizardID        string          `db:"wizard_id"`
	Variables       string          `db:"variables"`
	Method          string          `db:"method"`
	Linkage         string          `db:"linkage"`
	Clusters        int             `db:"clusters"`
	Standardize     bool            `db:"standardize"`
	TotalClassified int             `db:"total_classified"`
	Silhouette      sql.NullFloat64 `db:"silhouette"`
	SegmentIDs      string          `db:"segment_ids"`
	CreatedAt       int64           `db:"created_at"`
}

const runColumns = `id, wizard_id, variables, method, linkage, clusters, standardize, total_classified, silhouette, segment_ids, created_at`

// Save stores a completed run. ID and CreatedAt are assigned when empty.
func (r *RunRepositoryImpl) Save(ctx context.Context, run *ports.SegmentationRun) error {
	if run.ID == "" {
		run.ID = core.NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	row, err := toRow(run)
	if err != nil {
		return errors.Wrap(err, "failed to encode run")
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO segmentation_runs (`+runColumns+`)
		VALUES (:id, :wizard_id, :variables, :method, :linkage, :clusters, :standardize, :total_classified, :silhouette, :segment_ids, :created_at)
	`, row)
	if err != nil {
		return errors.DatabaseError("failed to save run", err)
	}
	return nil
}

// Get retrieves a run by ID
func (r *RunRepositoryImpl) Get(ctx context.Context, id core.RunID) (*ports.SegmentationRun, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT `+runColumns+`
		FROM segmentation_runs
		WHERE id = ?
	`), id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.WithCode(errors.CodeNotFound, fmt.Errorf("%w: %s", core.ErrRunNotFound, id))
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load run", err)
	}
	return fromRow(row)
}

// List returns the most recent runs, newest first
func (r *RunRepositoryImpl) List(ctx context.Context, limit int) ([]*ports.SegmentationRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+runColumns+`
		FROM segmentation_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}

	runs := make([]*ports.SegmentationRun, 0, len(rows))
	for _, row := range rows {
		run, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func toRow(run *ports.SegmentationRun) (runRow, error) {
	variables, err := json.Marshal(nonNil(run.Variables))
	if err != nil {
		return runRow{}, err
	}
	segments, err := json.Marshal(nonNil(run.SegmentIDs))
	if err != nil {
		return runRow{}, err
	}
	sil := run.Silhouette.Value()
	return runRow{
		ID:              run.ID.String(),
		WizardID:        run.WizardID.String(),
		Variables:       string(variables),
		Method:          run.Method,
		Linkage:         run.Linkage,
		Clusters:        run.Clusters,
		Standardize:     run.Standardize,
		TotalClassified: run.TotalClassified,
		Silhouette:      sql.NullFloat64{Float64: sil, Valid: !math.IsNaN(sil) && !math.IsInf(sil, 0)},
		SegmentIDs:      string(segments),
		CreatedAt:       run.CreatedAt.UnixMilli(),
	}, nil
}

func fromRow(row runRow) (*ports.SegmentationRun, error) {
	run := &ports.SegmentationRun{
		ID:              core.RunID(row.ID),
		WizardID:        core.WizardID(row.WizardID),
		Method:          row.Method,
		Linkage:         row.Linkage,
		Clusters:        row.Clusters,
		Standardize:     row.Standardize,
		TotalClassified: row.TotalClassified,
		Silhouette:      segmentation.Float(math.NaN()),
		CreatedAt:       time.UnixMilli(row.CreatedAt).UTC(),
	}
	if row.Silhouette.Valid {
		run.Silhouette = segmentation.Float(row.Silhouette.Float64)
	}
	if err := json.Unmarshal([]byte(row.Variables), &run.Variables); err != nil {
		return nil, errors.DatabaseError("corrupt variables column", err)
	}
	if err := json.Unmarshal([]byte(row.SegmentIDs), &run.SegmentIDs); err != nil {
		return nil, errors.DatabaseError("corrupt segment_ids column", err)
	}
	if len(run.SegmentIDs) == 0 {
		run.SegmentIDs = nil
	}
	return run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
