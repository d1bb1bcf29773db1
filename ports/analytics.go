package ports

import (
	"context"
	"encoding/json"

	"gosegment/domain/segmentation"
)

// AnalyticsService is the remote analytics backend that performs the actual
// clustering computation. Errors are reported as generic failures carrying a message.
type AnalyticsService interface {
	// AutoDetectParameter sweeps the candidate cluster counts and recommends one
	AutoDetectParameter(ctx context.Context, req AutoDetectRequest) (*segmentation.AutoDetectResult, error)

	// ExecuteClustering runs the full segmentation with a resolved parameter
	ExecuteClustering(ctx context.Context, req ExecuteRequest) (*segmentation.ClusterResult, error)
}

// AutoDetectRequest specifies a cluster-count sweep.
// On the wire the range is a two-element array: {"range": [low, high]}.
type AutoDetectRequest struct {
	Variables   []string
	Standardize bool
	Range       segmentation.Range
}

type autoDetectWire struct {
	Variables   []string `json:"variables"`
	Standardize bool     `json:"standardize"`
	Range       [2]int   `json:"range"`
}

func (r AutoDetectRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(autoDetectWire{
		Variables:   r.Variables,
		Standardize: r.Standardize,
		Range:       [2]int{r.Range.Low, r.Range.High},
	})
}

func (r *AutoDetectRequest) UnmarshalJSON(data []byte) error {
	var w autoDetectWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Variables = w.Variables
	r.Standardize = w.Standardize
	r.Range = segmentation.Range{Low: w.Range[0], High: w.Range[1]}
	return nil
}

// ExecuteRequest specifies a full segmentation run.
// The method variant is flattened into "method" and, for hierarchical, "linkage".
type ExecuteRequest struct {
	Variables   []string
	Method      segmentation.Method
	Parameter   int
	Standardize bool
	Persist     bool
	NamePrefix  string
}

type executeWire struct {
	Variables   []string                `json:"variables"`
	Method      segmentation.MethodKind `json:"method"`
	Linkage     segmentation.Linkage    `json:"linkage,omitempty"`
	Parameter   int                     `json:"parameter"`
	Standardize bool                    `json:"standardize"`
	Persist     bool                    `json:"persist,omitempty"`
	NamePrefix  string                  `json:"namePrefix,omitempty"`
}

func (r ExecuteRequest) MarshalJSON() ([]byte, error) {
	m := r.Method
	if m == nil {
		m = segmentation.DefaultMethod()
	}
	w := executeWire{
		Variables:   r.Variables,
		Method:      m.Kind(),
		Parameter:   r.Parameter,
		Standardize: r.Standardize,
		Persist:     r.Persist,
		NamePrefix:  r.NamePrefix,
	}
	if l, ok := segmentation.LinkageOf(m); ok {
		w.Linkage = l
	}
	return json.Marshal(w)
}

func (r *ExecuteRequest) UnmarshalJSON(data []byte) error {
	var w executeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m, err := segmentation.ParseMethod(string(w.Method), string(w.Linkage))
	if err != nil {
		return err
	}
	*r = ExecuteRequest{
		Variables:   w.Variables,
		Method:      m,
		Parameter:   w.Parameter,
		Standardize: w.Standardize,
		Persist:     w.Persist,
		NamePrefix:  w.NamePrefix,
	}
	return nil
}
