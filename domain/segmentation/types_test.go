package segmentation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		linkage  string
		expected Method
		hasError bool
	}{
		{"kmeans", "kmeans", "", KMeans{}, false},
		{"empty defaults to kmeans", "", "", KMeans{}, false},
		{"kmeans rejects linkage", "kmeans", "ward", nil, true},
		{"hierarchical default linkage", "hierarchical", "", Hierarchical{Linkage: LinkageWard}, false},
		{"hierarchical average", "Hierarchical", "AVERAGE", Hierarchical{Linkage: LinkageAverage}, false},
		{"unknown linkage", "hierarchical", "centroid", nil, true},
		{"unknown method", "dbscan", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMethod(tt.kind, tt.linkage)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)
		})
	}
}

func TestMethodSpecJSON(t *testing.T) {
	data, err := json.Marshal(MethodSpec{Method: Hierarchical{Linkage: LinkageComplete}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"hierarchical","linkage":"complete"}`, string(data))

	data, err = json.Marshal(MethodSpec{Method: KMeans{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"kmeans"}`, string(data))

	var spec MethodSpec
	assert.Error(t, json.Unmarshal([]byte(`{"method":"kmeans","linkage":"ward"}`), &spec))
}

func TestFloatDecodesUndefinedValues(t *testing.T) {
	var shares map[string]Float
	require.NoError(t, json.Unmarshal([]byte(`{"a":0.25,"b":null,"c":"NaN","d":"Infinity"}`), &shares))

	assert.Equal(t, 0.25, shares["a"].Value())
	assert.True(t, shares["b"].IsNaN())
	assert.True(t, shares["c"].IsNaN())
	assert.True(t, math.IsInf(shares["d"].Value(), 1))

	out, err := json.Marshal(Float(math.NaN()))
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestAutoDetectResultValidate(t *testing.T) {
	valid := &AutoDetectResult{
		KValues:          []int{2, 3, 4, 5},
		SilhouetteScores: []Float{0.2, 0.41, 0.38, 0.3},
		Inertias:         []Float{900, 610, 480, 420},
		RecommendedK:     3,
	}
	require.NoError(t, valid.Validate(Range{Low: 2, High: 8}))
	assert.Equal(t, 1, valid.RecommendedIndex())

	outside := valid.Clone()
	outside.RecommendedK = 9
	assert.Error(t, outside.Validate(Range{Low: 2, High: 8}))

	empty := &AutoDetectResult{RecommendedK: 3}
	assert.Error(t, empty.Validate(Range{Low: 2, High: 8}))

	mismatched := valid.Clone()
	mismatched.Inertias = mismatched.Inertias[:2]
	assert.Error(t, mismatched.Validate(Range{Low: 2, High: 8}))

	narrow := valid.Clone()
	assert.Error(t, narrow.Validate(Range{Low: 2, High: 4}))
}

func TestAutoDetectResultUndefinedScores(t *testing.T) {
	var r AutoDetectResult
	raw := `{"k_values":[2,3,4],"silhouette_scores":[null,"NaN",0.4],"inertias":[12.5,null,7],"recommended_k":4}`
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	require.NoError(t, r.Validate(Range{Low: 2, High: 4}))

	assert.True(t, r.SilhouetteScores[0].IsNaN())
	assert.True(t, r.SilhouetteScores[1].IsNaN())
	assert.True(t, r.Inertias[1].IsNaN())
	assert.Equal(t, "n/a", r.SilhouetteScores[0].Text(3))
	assert.Equal(t, "0.400", r.SilhouetteScores[2].Text(3))

	out, err := json.Marshal(r.SilhouetteScores)
	require.NoError(t, err)
	assert.Equal(t, `[null,null,0.4]`, string(out))
}

func TestDendrogramValidate(t *testing.T) {
	d := &DendrogramData{
		ICoord:    [][]float64{{5, 5, 15, 15}},
		DCoord:    [][]float64{{0, 2, 2, 0}},
		Leaves:    []string{"A", "B"},
		ColorList: []string{"C0"},
		NSamples:  2,
		NLeaves:   2,
	}
	require.NoError(t, d.Validate())
	assert.False(t, d.Truncated())

	d.ColorList = nil
	assert.Error(t, d.Validate())

	d.ColorList = []string{"C0"}
	d.DCoord[0][1] = math.NaN()
	assert.Error(t, d.Validate())
}

func TestClusterResultValidate(t *testing.T) {
	r := &ClusterResult{
		NClusters: 2,
		Profiles:  []ClusterProfile{{ClusterID: 1}, {ClusterID: 0}},
	}
	require.NoError(t, r.Validate())
	r.SortProfiles()
	assert.Equal(t, 0, r.Profiles[0].ClusterID)

	r.Profiles[1].ClusterID = 0
	assert.Error(t, r.Validate())
}

func TestVariableClusterable(t *testing.T) {
	tests := []struct {
		v        Variable
		expected bool
	}{
		{Variable{Name: "age", Type: TypeNumeric}, true},
		{Variable{Name: "q1", Type: TypeCategorical, Subtype: "likert"}, true},
		{Variable{Name: "region", Type: TypeCategorical}, false},
		{Variable{Name: "coded", Type: TypeNumeric, Subtype: "nominal"}, false},
		{Variable{Name: "comment", Type: TypeText}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.v.Clusterable(), tt.v.Name)
	}
}
