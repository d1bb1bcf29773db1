package ports

import (
	"context"

	"gosegment/domain/segmentation"
)

// VariableCatalog supplies the candidate inputs of a segmentation with their
// type/subtype classification.
type VariableCatalog interface {
	ListVariables(ctx context.Context) ([]segmentation.Variable, error)
}

// ClusterableVariables filters a catalog listing down to numeric-compatible entries.
func ClusterableVariables(ctx context.Context, catalog VariableCatalog) ([]segmentation.Variable, error) {
	all, err := catalog.ListVariables(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]segmentation.Variable, 0, len(all))
	for _, v := range all {
		if v.Clusterable() {
			out = append(out, v)
		}
	}
	return out, nil
}
