package testkit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gosegment/domain/core"
	"gosegment/domain/segmentation"
	"gosegment/internal/errors"
	"gosegment/internal/logging"
	"gosegment/ports"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// StubAnalytics is an in-process ports.AnalyticsService over a synthetic
// survey. Results are deterministic for a given seed.
type StubAnalytics struct {
	survey  *Survey
	seed    int64
	latency time.Duration
	logger  *zap.Logger
}

var _ ports.AnalyticsService = (*StubAnalytics)(nil)

// StubOption configures a StubAnalytics
type StubOption func(*StubAnalytics)

// WithLatency delays every response, honouring cancellation.
func WithLatency(d time.Duration) StubOption {
	return func(s *StubAnalytics) { s.latency = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) StubOption {
	return func(s *StubAnalytics) { s.logger = logging.OrNop(logger) }
}

// NewStubAnalytics creates a stub service over survey.
func NewStubAnalytics(survey *Survey, seed int64, opts ...StubOption) *StubAnalytics {
	s := &StubAnalytics{survey: survey, seed: seed, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("stub")
	return s
}

// Survey returns the underlying dataset.
func (s *StubAnalytics) Survey() *Survey { return s.survey }

// AutoDetectParameter runs k-means for every k in the range and recommends
// the one with the highest silhouette score.
func (s *StubAnalytics) AutoDetectParameter(ctx context.Context, req ports.AutoDetectRequest) (*segmentation.AutoDetectResult, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	x, err := s.matrix(req.Variables, req.Standardize)
	if err != nil {
		return nil, err
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	dist := distanceMatrix(x)

	result := &segmentation.AutoDetectResult{}
	best := math.Inf(-1)
	for k := req.Range.Low; k <= req.Range.High && k < len(x); k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		labels, inertia := kmeans(x, k, rand.New(rand.NewSource(s.seed+int64(k))))
		score := silhouette(dist, labels, k)

		result.KValues = append(result.KValues, k)
		result.SilhouetteScores = append(result.SilhouetteScores, segmentation.Float(score))
		result.Inertias = append(result.Inertias, segmentation.Float(inertia))
		if !math.IsNaN(score) && score > best {
			best = score
			result.RecommendedK = k
		}
	}
	if len(result.KValues) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("range %d..%d exceeds the %d respondents", req.Range.Low, req.Range.High, len(x)))
	}
	if math.IsInf(best, -1) {
		result.RecommendedK = result.KValues[0]
		result.Reason = "No candidate produced a defined silhouette score; using the smallest"
	} else {
		result.Reason = fmt.Sprintf("Highest silhouette score (%.3f) at k=%d", best, result.RecommendedK)
	}

	s.logger.Debug("sweep finished",
		zap.Strings("variables", req.Variables),
		zap.Int("recommended", result.RecommendedK))
	return result, nil
}

// ExecuteClustering clusters the survey with the requested method.
func (s *StubAnalytics) ExecuteClustering(ctx context.Context, req ports.ExecuteRequest) (*segmentation.ClusterResult, error) {
	if req.Parameter < segmentation.MinClusters {
		return nil, errors.InvalidInput(fmt.Sprintf("parameter must be at least %d", segmentation.MinClusters))
	}
	x, err := s.matrix(req.Variables, req.Standardize)
	if err != nil {
		return nil, err
	}
	if req.Parameter >= len(x) {
		return nil, errors.InvalidInput(fmt.Sprintf("parameter %d exceeds the %d respondents", req.Parameter, len(x)))
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	dist := distanceMatrix(x)

	method := req.Method
	if method == nil {
		method = segmentation.DefaultMethod()
	}

	var labels []int
	var tree *segmentation.DendrogramData
	if linkage, ok := segmentation.LinkageOf(method); ok {
		merges := agglomerate(dist, linkage)
		labels = cutTree(merges, len(x), req.Parameter)
		tree = dendrogram(merges, len(x), truncateLeaves)
	} else {
		labels, _ = kmeans(x, req.Parameter, rand.New(rand.NewSource(s.seed+int64(req.Parameter))))
	}
	labels, k := compact(labels)

	result := &segmentation.ClusterResult{
		NClusters:       k,
		TotalClassified: len(x),
		Silhouette:      segmentation.Float(silhouette(dist, labels, k)),
		Profiles:        s.profiles(req.Variables, labels, k),
		Dendrogram:      tree,
	}
	if req.Persist {
		for i := 0; i < k; i++ {
			id := core.SegmentID(core.NewID())
			result.SegmentIDs = append(result.SegmentIDs, id.String())
			s.logger.Info("segment saved",
				zap.String("segment_id", id.String()),
				zap.String("name", fmt.Sprintf("%s %d", req.NamePrefix, i+1)))
		}
	}
	return result, nil
}

func (s *StubAnalytics) matrix(variables []string, standardize bool) ([][]float64, error) {
	if len(variables) < segmentation.MinClusters {
		return nil, errors.InvalidInput("at least two variables are required")
	}
	for _, name := range variables {
		v, ok := s.survey.Variable(name)
		if !ok {
			return nil, errors.InvalidInput(fmt.Sprintf("unknown variable %s", name))
		}
		if !v.Clusterable() {
			return nil, errors.InvalidInput(fmt.Sprintf("variable %s is not numeric", name))
		}
	}
	x, err := buildMatrix(s.survey, variables, standardize)
	if err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	return x, nil
}

func (s *StubAnalytics) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// profiles describes each cluster against the raw variable values.
func (s *StubAnalytics) profiles(variables []string, labels []int, k int) []segmentation.ClusterProfile {
	members := make([][]int, k)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}

	overall := make(map[string]float64, len(variables))
	for _, name := range variables {
		overall[name], _ = stats.Mean(s.survey.Numeric[name])
	}

	out := make([]segmentation.ClusterProfile, k)
	for c := 0; c < k; c++ {
		p := segmentation.ClusterProfile{
			ClusterID:  c,
			Label:      fmt.Sprintf("Cluster %d", c+1),
			Size:       len(members[c]),
			Percentage: segmentation.Float(100 * float64(len(members[c])) / float64(len(labels))),
		}

		for _, name := range variables {
			col := s.survey.Numeric[name]
			vals := make(stats.Float64Data, len(members[c]))
			for i, idx := range members[c] {
				vals[i] = col[idx]
			}
			mean, err := stats.Mean(vals)
			if err != nil {
				mean = math.NaN()
			}
			p.TopDifferentiators = append(p.TopDifferentiators, segmentation.Differentiator{
				Variable:    name,
				ClusterMean: segmentation.Float(mean),
				OverallMean: segmentation.Float(overall[name]),
				Delta:       segmentation.Float(mean - overall[name]),
			})
		}
		sort.SliceStable(p.TopDifferentiators, func(i, j int) bool {
			return math.Abs(p.TopDifferentiators[i].Delta.Value()) > math.Abs(p.TopDifferentiators[j].Delta.Value())
		})

		p.Demographics = make(map[string]map[string]segmentation.Float, len(s.survey.Demographics))
		for dim, values := range s.survey.Demographics {
			counts := map[string]int{}
			for _, idx := range members[c] {
				counts[values[idx]]++
			}
			shares := make(map[string]segmentation.Float, len(counts))
			for cat, n := range counts {
				shares[cat] = segmentation.Float(100 * float64(n) / float64(len(members[c])))
			}
			p.Demographics[dim] = shares
		}
		out[c] = p
	}
	return out
}

// compact renumbers labels to 0..k-1 in order of first appearance, dropping empty clusters.
func compact(labels []int) ([]int, int) {
	ids := map[int]int{}
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := ids[l]
		if !ok {
			id = len(ids)
			ids[l] = id
		}
		out[i] = id
	}
	return out, len(ids)
}
