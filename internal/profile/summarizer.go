// Package profile reduces returned cluster profiles to their display form.
// It performs no statistics: it only orders, truncates and cleans values.
package profile

import (
	"math"
	"sort"

	"gosegment/domain/segmentation"
)

// DisplayLimit caps differentiators and demographic categories per cluster.
const DisplayLimit = 5

// Differentiator is one displayed variable deviation.
type Differentiator struct {
	Variable    string  `json:"variable"`
	ClusterMean float64 `json:"cluster_mean"`
	OverallMean float64 `json:"overall_mean"`
	Delta       float64 `json:"delta"`
}

// Higher reports whether the cluster sits above the overall mean.
func (d Differentiator) Higher() bool { return d.Delta > 0 }

// Share is one demographic category's in-cluster share.
type Share struct {
	Category string  `json:"category"`
	Share    float64 `json:"share"`
}

// Dimension is one demographic dimension with its leading categories.
type Dimension struct {
	Name       string  `json:"name"`
	Categories []Share `json:"categories"`
}

// Summary is the display form of a ClusterProfile.
type Summary struct {
	ClusterID       int              `json:"cluster_id"`
	Label           string           `json:"label"`
	Size            int              `json:"size"`
	Percentage      float64          `json:"percentage"`
	Differentiators []Differentiator `json:"differentiators"`
	Demographics    []Dimension      `json:"demographics"`
}

// Summarize orders differentiators by absolute delta and categories by
// share, both descending, and keeps the first DisplayLimit of each. The
// remote ordering is never trusted. NaN values become 0.
func Summarize(p segmentation.ClusterProfile) Summary {
	s := Summary{
		ClusterID:  p.ClusterID,
		Label:      p.Label,
		Size:       p.Size,
		Percentage: clean(p.Percentage),
	}

	diffs := make([]Differentiator, 0, len(p.TopDifferentiators))
	for _, d := range p.TopDifferentiators {
		diffs = append(diffs, Differentiator{
			Variable:    d.Variable,
			ClusterMean: clean(d.ClusterMean),
			OverallMean: clean(d.OverallMean),
			Delta:       clean(d.Delta),
		})
	}
	sort.SliceStable(diffs, func(i, j int) bool {
		ai, aj := math.Abs(diffs[i].Delta), math.Abs(diffs[j].Delta)
		if ai != aj {
			return ai > aj
		}
		return diffs[i].Variable < diffs[j].Variable
	})
	s.Differentiators = truncate(diffs)

	names := make([]string, 0, len(p.Demographics))
	for name := range p.Demographics {
		names = append(names, name)
	}
	sort.Strings(names)

	s.Demographics = make([]Dimension, 0, len(names))
	for _, name := range names {
		cats := make([]Share, 0, len(p.Demographics[name]))
		for category, share := range p.Demographics[name] {
			cats = append(cats, Share{Category: category, Share: clean(share)})
		}
		sort.Slice(cats, func(i, j int) bool {
			if cats[i].Share != cats[j].Share {
				return cats[i].Share > cats[j].Share
			}
			return cats[i].Category < cats[j].Category
		})
		s.Demographics = append(s.Demographics, Dimension{Name: name, Categories: truncate(cats)})
	}
	return s
}

// SummarizeAll summarizes every profile of result in cluster id order.
func SummarizeAll(result *segmentation.ClusterResult) []Summary {
	if result == nil {
		return nil
	}
	profiles := append([]segmentation.ClusterProfile(nil), result.Profiles...)
	sort.SliceStable(profiles, func(i, j int) bool { return profiles[i].ClusterID < profiles[j].ClusterID })

	out := make([]Summary, len(profiles))
	for i, p := range profiles {
		out[i] = Summarize(p)
	}
	return out
}

func clean(f segmentation.Float) float64 {
	v := f.Value()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func truncate[T any](items []T) []T {
	if len(items) > DisplayLimit {
		return items[:DisplayLimit]
	}
	return items
}
