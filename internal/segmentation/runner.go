package segmentation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gosegment/domain/core"
	"gosegment/domain/segmentation"
	"gosegment/internal/errors"
	"gosegment/internal/logging"
	"gosegment/internal/wizard"
	"gosegment/ports"

	"go.uber.org/zap"
)

// Runner submits the resolved parameter set for full computation.
type Runner struct {
	service  ports.AnalyticsService
	catalog  ports.VariableCatalog
	defaultK int
	logger   *zap.Logger
}

// NewRunner creates a runner. catalog may be nil, in which case inputs are
// not re-checked before submission.
func NewRunner(service ports.AnalyticsService, catalog ports.VariableCatalog, defaultK int, logger *zap.Logger) *Runner {
	if defaultK < segmentation.MinClusters {
		defaultK = segmentation.DefaultClusters
	}
	return &Runner{
		service:  service,
		catalog:  catalog,
		defaultK: defaultK,
		logger:   logging.OrNop(logger).Named("runner"),
	}
}

// DefaultK is the parameter used when neither a manual value nor a recommendation exists.
func (r *Runner) DefaultK() int { return r.defaultK }

// Resolve builds the execution request for s.
func (r *Runner) Resolve(s State) ports.ExecuteRequest {
	method := s.Method
	if method == nil {
		method = segmentation.DefaultMethod()
	}
	req := ports.ExecuteRequest{
		Variables:   s.DistinctVariables(),
		Method:      method,
		Parameter:   s.EffectiveK(r.defaultK),
		Standardize: s.Standardize,
		Persist:     s.Persist,
	}
	if s.Persist {
		req.NamePrefix = strings.TrimSpace(s.NamePrefix)
		if req.NamePrefix == "" {
			req.NamePrefix = DefaultNamePrefix
		}
	}
	return req
}

// Execute runs the segmentation for s. The returned result is validated and
// its profiles ordered by cluster id; no partial result is ever returned.
func (r *Runner) Execute(ctx context.Context, s State) (*segmentation.ClusterResult, error) {
	req := r.Resolve(s)
	if len(req.Variables) < 2 {
		return nil, errors.ValidationError("at least two input variables are required")
	}
	if r.catalog != nil {
		if err := checkClusterable(ctx, r.catalog, req.Variables); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result, err := r.service.ExecuteClustering(ctx, req)
	if err != nil {
		return nil, serviceFailure(err, "segmentation failed")
	}
	if err := result.Validate(); err != nil {
		return nil, errors.ContractViolation("analytics", err.Error())
	}
	result.SortProfiles()

	r.logger.Info("segmentation completed",
		zap.String("method", string(req.Method.Kind())),
		zap.Int("parameter", req.Parameter),
		zap.Int("clusters", result.NClusters),
		zap.Int("classified", result.TotalClassified),
		zap.Bool("dendrogram", result.Dendrogram != nil),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// Action binds Execute to the execution step.
func (r *Runner) Action() wizard.Action[State] {
	return func(ctx context.Context, snapshot State) (wizard.Commit[State], error) {
		result, err := r.Execute(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		return func(s *State) { s.Result = result }, nil
	}
}

// checkClusterable rejects identifiers the catalog does not know or that
// are not numeric-compatible.
func checkClusterable(ctx context.Context, catalog ports.VariableCatalog, names []string) error {
	all, err := catalog.ListVariables(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load variable catalog")
	}
	byName := make(map[string]segmentation.Variable, len(all))
	for _, v := range all {
		byName[v.Name] = v
	}
	for _, name := range names {
		v, ok := byName[name]
		if !ok {
			return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("%w: %s", core.ErrVariableNotFound, name))
		}
		if !v.Clusterable() {
			return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("%w: %s (%s/%s)", core.ErrNotClusterable, name, v.Type, v.Subtype))
		}
	}
	return nil
}
