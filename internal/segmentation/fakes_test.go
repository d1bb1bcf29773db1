package segmentation

import (
	"context"
	"fmt"
	"sync"

	"gosegment/domain/segmentation"
	"gosegment/ports"
)

// fakeService is an in-memory analytics backend. When block is set every
// call waits for it (or for cancellation) before answering.
type fakeService struct {
	mu          sync.Mutex
	detect      *segmentation.AutoDetectResult
	detectErr   error
	execErr     error
	block       chan struct{}
	detectReqs  []ports.AutoDetectRequest
	executeReqs []ports.ExecuteRequest
}

func newFakeService() *fakeService {
	return &fakeService{
		detect: &segmentation.AutoDetectResult{
			KValues:          []int{2, 3, 4, 5},
			SilhouetteScores: []segmentation.Float{0.2, 0.41, 0.38, 0.3},
			Inertias:         []segmentation.Float{900, 610, 480, 420},
			RecommendedK:     3,
			Reason:           "highest silhouette score",
		},
	}
}

func (f *fakeService) wait(ctx context.Context) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeService) AutoDetectParameter(ctx context.Context, req ports.AutoDetectRequest) (*segmentation.AutoDetectResult, error) {
	f.mu.Lock()
	f.detectReqs = append(f.detectReqs, req)
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.detect.Clone(), nil
}

func (f *fakeService) ExecuteClustering(ctx context.Context, req ports.ExecuteRequest) (*segmentation.ClusterResult, error) {
	f.mu.Lock()
	f.executeReqs = append(f.executeReqs, req)
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	result := &segmentation.ClusterResult{
		NClusters:       req.Parameter,
		TotalClassified: 100 * req.Parameter,
		Silhouette:      0.4,
	}
	// profiles deliberately out of id order
	for id := req.Parameter - 1; id >= 0; id-- {
		result.Profiles = append(result.Profiles, segmentation.ClusterProfile{
			ClusterID:  id,
			Label:      fmt.Sprintf("Cluster %d", id+1),
			Size:       100,
			Percentage: segmentation.Float(100 / float64(req.Parameter)),
		})
	}
	if req.Persist {
		result.SegmentIDs = []string{req.NamePrefix + "-1"}
	}
	if _, ok := req.Method.(segmentation.Hierarchical); ok {
		result.Dendrogram = &segmentation.DendrogramData{
			ICoord:    [][]float64{{5, 5, 15, 15}},
			DCoord:    [][]float64{{0, 2, 2, 0}},
			Leaves:    []string{"A", "B"},
			ColorList: []string{"C0"},
			NSamples:  2,
			NLeaves:   2,
		}
	}
	return result, nil
}

func (f *fakeService) setBlock(ch chan struct{}) {
	f.mu.Lock()
	f.block = ch
	f.mu.Unlock()
}

func (f *fakeService) setDetectErr(err error) {
	f.mu.Lock()
	f.detectErr = err
	f.mu.Unlock()
}

func (f *fakeService) setExecErr(err error) {
	f.mu.Lock()
	f.execErr = err
	f.mu.Unlock()
}

func (f *fakeService) detectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.detectReqs)
}

func (f *fakeService) lastExecute() (ports.ExecuteRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.executeReqs) == 0 {
		return ports.ExecuteRequest{}, false
	}
	return f.executeReqs[len(f.executeReqs)-1], true
}

type staticCatalog []segmentation.Variable

func (c staticCatalog) ListVariables(ctx context.Context) ([]segmentation.Variable, error) {
	return append([]segmentation.Variable(nil), c...), nil
}

var surveyCatalog = staticCatalog{
	{Name: "q1_satisfaction", Type: segmentation.TypeNumeric, Subtype: "likert"},
	{Name: "q2_value", Type: segmentation.TypeNumeric, Subtype: "likert"},
	{Name: "q3_spend", Type: segmentation.TypeNumeric},
	{Name: "region", Type: segmentation.TypeCategorical, Subtype: "nominal"},
}
