package ports

import (
	"context"
	"time"

	"gosegment/domain/core"
	"gosegment/domain/segmentation"
)

// SegmentationRun is the history record of one committed execution.
type SegmentationRun struct {
	ID              core.RunID         `json:"id"`
	WizardID        core.WizardID      `json:"wizard_id"`
	Variables       []string           `json:"variables"`
	Method          string             `json:"method"`
	Linkage         string             `json:"linkage,omitempty"`
	Clusters        int                `json:"clusters"`
	Standardize     bool               `json:"standardize"`
	TotalClassified int                `json:"total_classified"`
	Silhouette      segmentation.Float `json:"silhouette"`
	SegmentIDs      []string           `json:"segment_ids,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// RunRepository persists the history of executed segmentations
type RunRepository interface {
	// Save stores a completed run
	Save(ctx context.Context, run *SegmentationRun) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id core.RunID) (*SegmentationRun, error)

	// List returns the most recent runs, newest first
	List(ctx context.Context, limit int) ([]*SegmentationRun, error)
}
