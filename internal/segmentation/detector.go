package segmentation

import (
	"context"
	"time"

	"gosegment/domain/segmentation"
	"gosegment/internal/errors"
	"gosegment/internal/logging"
	"gosegment/internal/wizard"
	"gosegment/ports"

	"go.uber.org/zap"
)

// Detector requests a cluster-count sweep from the analytics service.
type Detector struct {
	service ports.AnalyticsService
	logger  *zap.Logger
}

// NewDetector creates a detector backed by service.
func NewDetector(service ports.AnalyticsService, logger *zap.Logger) *Detector {
	return &Detector{service: service, logger: logging.OrNop(logger).Named("detector")}
}

// Detect performs one sweep over the state's range. A response that breaks
// the result invariants is reported as a contract violation.
func (d *Detector) Detect(ctx context.Context, s State) (*segmentation.AutoDetectResult, error) {
	variables := s.DistinctVariables()
	if len(variables) < 2 {
		return nil, errors.ValidationError("at least two input variables are required")
	}
	if err := s.Range.Validate(); err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	start := time.Now()
	result, err := d.service.AutoDetectParameter(ctx, ports.AutoDetectRequest{
		Variables:   variables,
		Standardize: s.Standardize,
		Range:       s.Range,
	})
	if err != nil {
		return nil, serviceFailure(err, "parameter detection failed")
	}
	if err := result.Validate(s.Range); err != nil {
		return nil, errors.ContractViolation("analytics", err.Error())
	}

	d.logger.Info("parameter detection completed",
		zap.Int("candidates", len(result.KValues)),
		zap.Int("recommended_k", result.RecommendedK),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// Action binds Detect to the detection step. Only the detection result is
// committed; the manual value is left alone on both success and failure.
func (d *Detector) Action() wizard.Action[State] {
	return func(ctx context.Context, snapshot State) (wizard.Commit[State], error) {
		result, err := d.Detect(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		return func(s *State) { s.Detection = result }, nil
	}
}

// serviceFailure keeps coded errors and classifies the rest as service errors.
func serviceFailure(err error, message string) error {
	if errors.IsAppError(err) {
		return errors.Wrap(err, message)
	}
	return errors.Wrap(errors.ExternalServiceError("analytics", err), message)
}
