package segmentation

import (
	"encoding/json"

	"gosegment/domain/segmentation"
	"gosegment/internal/wizard"
)

// Steps of the segmentation wizard, in order.
const (
	StepSelectInputs    wizard.StepID = "select-inputs"
	StepConfigureMethod wizard.StepID = "configure-method"
	StepDetectParameter wizard.StepID = "detect-parameter"
	StepExecute         wizard.StepID = "execute"
)

// DefaultNamePrefix prefixes persisted segment names when none is given.
const DefaultNamePrefix = "Segment"

// State is the parameter state collected by the segmentation wizard.
// Result is never mutated after it is committed and is shared between clones.
type State struct {
	Variables   []string
	Method      segmentation.Method
	Standardize bool
	AutoDetect  bool
	ManualK     *int
	Range       segmentation.Range
	Persist     bool
	NamePrefix  string
	Detection   *segmentation.AutoDetectResult
	Result      *segmentation.ClusterResult
}

// NewState returns the state a freshly opened wizard starts with.
func NewState(rng segmentation.Range) State {
	return State{
		Method:      segmentation.DefaultMethod(),
		Standardize: true,
		AutoDetect:  true,
		Range:       rng,
		NamePrefix:  DefaultNamePrefix,
	}
}

// Clone returns a deep copy of the editable parts of the state.
func (s State) Clone() State {
	s.Variables = append([]string(nil), s.Variables...)
	if s.ManualK != nil {
		k := *s.ManualK
		s.ManualK = &k
	}
	s.Detection = s.Detection.Clone()
	return s
}

// DistinctVariables returns the selected identifiers without duplicates,
// preserving selection order.
func (s State) DistinctVariables() []string {
	seen := make(map[string]bool, len(s.Variables))
	out := make([]string, 0, len(s.Variables))
	for _, v := range s.Variables {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// EffectiveK resolves the parameter submitted for execution: the manual
// value when set, else the detector's recommendation, else def.
func (s State) EffectiveK(def int) int {
	if s.ManualK != nil && *s.ManualK >= segmentation.MinClusters {
		return *s.ManualK
	}
	if s.Detection != nil && s.Detection.RecommendedIndex() >= 0 {
		return s.Detection.RecommendedK
	}
	return def
}

// SelectedRow is the score-table row chosen by the user, or -1.
func (s State) SelectedRow() int {
	if s.ManualK == nil {
		return -1
	}
	return s.Detection.IndexOf(*s.ManualK)
}

// invalidateDerived drops results computed from inputs that just changed.
func (s *State) invalidateDerived() {
	s.Detection = nil
	s.Result = nil
}

type stateJSON struct {
	Variables   []string                       `json:"variables"`
	Method      segmentation.MethodSpec        `json:"method"`
	Standardize bool                           `json:"standardize"`
	AutoDetect  bool                           `json:"auto_detect"`
	ManualK     *int                           `json:"manual_k,omitempty"`
	Range       segmentation.Range             `json:"range"`
	Persist     bool                           `json:"persist"`
	NamePrefix  string                         `json:"name_prefix"`
	Detection   *segmentation.AutoDetectResult `json:"detection,omitempty"`
	Result      *segmentation.ClusterResult    `json:"result,omitempty"`
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Variables:   s.Variables,
		Method:      segmentation.MethodSpec{Method: s.Method},
		Standardize: s.Standardize,
		AutoDetect:  s.AutoDetect,
		ManualK:     s.ManualK,
		Range:       s.Range,
		Persist:     s.Persist,
		NamePrefix:  s.NamePrefix,
		Detection:   s.Detection,
		Result:      s.Result,
	})
}
