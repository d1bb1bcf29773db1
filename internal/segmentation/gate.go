package segmentation

import (
	"gosegment/domain/segmentation"
	"gosegment/internal/wizard"
)

// CanAdvance decides whether forward navigation from step is allowed.
// It is pure and never panics; missing state yields false.
func CanAdvance(step wizard.StepID, s State) bool {
	switch step {
	case StepSelectInputs:
		return len(s.DistinctVariables()) >= 2
	case StepConfigureMethod:
		return true
	case StepDetectParameter:
		if !s.AutoDetect {
			return s.ManualK != nil && *s.ManualK >= segmentation.MinClusters
		}
		return s.Detection != nil
	default:
		// execute is terminal: completion is governed by the runner
		return false
	}
}

func gateFor(step wizard.StepID) func(State) bool {
	return func(s State) bool { return CanAdvance(step, s) }
}
