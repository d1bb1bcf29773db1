package segmentation

import (
	"fmt"
	"math"
	"sort"
)

// MinClusters is the smallest meaningful number of clusters.
const MinClusters = 2

// DefaultClusters is the parameter used when neither a manual value nor a
// recommendation exists.
const DefaultClusters = 3

// Range is an inclusive candidate range for the cluster count.
type Range struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// DefaultRange is the candidate sweep a fresh wizard requests.
func DefaultRange() Range { return Range{Low: 2, High: 8} }

// Validate checks 2 <= low <= high
func (r Range) Validate() error {
	if r.Low < MinClusters {
		return fmt.Errorf("range low must be at least %d, got %d", MinClusters, r.Low)
	}
	if r.High < r.Low {
		return fmt.Errorf("range high %d is below low %d", r.High, r.Low)
	}
	return nil
}

// Contains reports whether k lies inside the range
func (r Range) Contains(k int) bool {
	return k >= r.Low && k <= r.High
}

// AutoDetectResult is the score table returned by a cluster-count sweep.
// INVARIANTS:
// - KValues, SilhouetteScores and Inertias have equal, non-zero length
// - RecommendedK is one of KValues
type AutoDetectResult struct {
	KValues          []int     `json:"k_values"`
	SilhouetteScores []Float `json:"silhouette_scores"` // quality, higher is better; null when undefined
	Inertias         []Float `json:"inertias"`          // cost, lower is better
	RecommendedK     int       `json:"recommended_k"`
	Reason           string    `json:"reason"`
}

// Validate enforces the result invariants against the requested range.
func (r *AutoDetectResult) Validate(requested Range) error {
	if r == nil {
		return fmt.Errorf("empty detection result")
	}
	if len(r.KValues) == 0 {
		return fmt.Errorf("no candidate values returned")
	}
	if len(r.SilhouetteScores) != len(r.KValues) || len(r.Inertias) != len(r.KValues) {
		return fmt.Errorf("score sequences have mismatched lengths (k=%d, quality=%d, cost=%d)",
			len(r.KValues), len(r.SilhouetteScores), len(r.Inertias))
	}
	for _, k := range r.KValues {
		if !requested.Contains(k) {
			return fmt.Errorf("candidate %d outside requested range %d..%d", k, requested.Low, requested.High)
		}
	}
	if r.RecommendedIndex() < 0 {
		return fmt.Errorf("recommended value %d is not among the candidates", r.RecommendedK)
	}
	return nil
}

// RecommendedIndex returns the row of the recommended value, or -1.
func (r *AutoDetectResult) RecommendedIndex() int {
	if r == nil {
		return -1
	}
	return r.IndexOf(r.RecommendedK)
}

// IndexOf returns the row holding candidate k, or -1.
func (r *AutoDetectResult) IndexOf(k int) int {
	if r == nil {
		return -1
	}
	for i, v := range r.KValues {
		if v == k {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (r *AutoDetectResult) Clone() *AutoDetectResult {
	if r == nil {
		return nil
	}
	out := *r
	out.KValues = append([]int(nil), r.KValues...)
	out.SilhouetteScores = append([]Float(nil), r.SilhouetteScores...)
	out.Inertias = append([]Float(nil), r.Inertias...)
	return &out
}

// Differentiator characterises a cluster by one variable's deviation from the overall mean.
type Differentiator struct {
	Variable    string `json:"variable"`
	ClusterMean Float  `json:"cluster_mean"`
	OverallMean Float  `json:"overall_mean"`
	Delta       Float  `json:"delta"` // signed, cluster minus overall
}

// ClusterProfile describes one cluster of a segmentation result.
type ClusterProfile struct {
	ClusterID          int                         `json:"cluster_id"`
	Label              string                      `json:"label"`
	Size               int                         `json:"size"`
	Percentage         Float                       `json:"percentage"` // population share, 0-100
	TopDifferentiators []Differentiator            `json:"top_differentiators"`
	Demographics       map[string]map[string]Float `json:"demographics,omitempty"` // dimension -> category -> share
}

// DendrogramData is the coordinate payload of a hierarchical clustering in
// scipy's convention: each link is four corners in (index, distance) space.
// INVARIANT: len(ICoord) == len(DCoord) == len(ColorList)
type DendrogramData struct {
	ICoord    [][]float64 `json:"icoord"`
	DCoord    [][]float64 `json:"dcoord"`
	Leaves    []string    `json:"ivl"`
	ColorList []string    `json:"color_list"`
	NSamples  int         `json:"n_samples"`
	NLeaves   int         `json:"n_leaves"`
}

// Truncated reports whether leaves were collapsed for display.
func (d *DendrogramData) Truncated() bool {
	return d != nil && d.NSamples > d.NLeaves
}

// Validate enforces the payload invariants. Coordinates must be finite.
func (d *DendrogramData) Validate() error {
	if d == nil {
		return fmt.Errorf("missing dendrogram")
	}
	if len(d.ICoord) != len(d.DCoord) || len(d.ICoord) != len(d.ColorList) {
		return fmt.Errorf("link sequences have mismatched lengths (icoord=%d, dcoord=%d, color_list=%d)",
			len(d.ICoord), len(d.DCoord), len(d.ColorList))
	}
	for i := range d.ICoord {
		if len(d.ICoord[i]) != 4 || len(d.DCoord[i]) != 4 {
			return fmt.Errorf("link %d does not have four corners", i)
		}
		for j := 0; j < 4; j++ {
			if !finite(d.ICoord[i][j]) || !finite(d.DCoord[i][j]) {
				return fmt.Errorf("link %d has a non-finite coordinate", i)
			}
		}
	}
	if d.NSamples < 0 || d.NLeaves < 0 {
		return fmt.Errorf("negative sample or leaf count")
	}
	return nil
}

// ClusterResult is the outcome of an executed segmentation.
type ClusterResult struct {
	NClusters       int              `json:"n_clusters"`
	TotalClassified int              `json:"total_classified"`
	Silhouette      Float            `json:"silhouette_score"`
	Profiles        []ClusterProfile `json:"profiles"`
	SegmentIDs      []string         `json:"segment_ids,omitempty"`
	Dendrogram      *DendrogramData  `json:"dendrogram,omitempty"`
}

// Validate checks one profile per cluster with stable ids 0..n-1.
func (r *ClusterResult) Validate() error {
	if r == nil {
		return fmt.Errorf("empty clustering result")
	}
	if r.NClusters < 1 {
		return fmt.Errorf("cluster count must be positive, got %d", r.NClusters)
	}
	if len(r.Profiles) != r.NClusters {
		return fmt.Errorf("expected %d profiles, got %d", r.NClusters, len(r.Profiles))
	}
	seen := make(map[int]bool, len(r.Profiles))
	for _, p := range r.Profiles {
		if p.ClusterID < 0 || p.ClusterID >= r.NClusters || seen[p.ClusterID] {
			return fmt.Errorf("profile ids must be unique in 0..%d, got %d", r.NClusters-1, p.ClusterID)
		}
		seen[p.ClusterID] = true
	}
	if r.Dendrogram != nil {
		if err := r.Dendrogram.Validate(); err != nil {
			return fmt.Errorf("dendrogram: %w", err)
		}
	}
	return nil
}

// SortProfiles orders profiles by cluster id.
func (r *ClusterResult) SortProfiles() {
	sort.SliceStable(r.Profiles, func(i, j int) bool {
		return r.Profiles[i].ClusterID < r.Profiles[j].ClusterID
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
