package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gosegment/domain/segmentation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `{"icoord":[[15,15,25,25],[5,5,20,20]],"dcoord":[[0,1,1,0],[0,4,4,1]],"ivl":["2","0","1"],"color_list":["C1","C0"],"n_samples":3,"n_leaves":3}`

func TestDecodeDendrogram(t *testing.T) {
	bare, err := decodeDendrogram([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "0", "1"}, bare.Leaves)

	nested, err := decodeDendrogram([]byte(`{"n_clusters":2,"dendrogram":` + payload + `}`))
	require.NoError(t, err)
	assert.Equal(t, bare, nested)

	none, err := decodeDendrogram([]byte(`{"n_clusters":2,"dendrogram":null}`))
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = decodeDendrogram([]byte(`[1,2`))
	assert.Error(t, err)
}

func TestRenderCommandWritesSVG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "dendrogram.json")
	out := filepath.Join(dir, "dendrogram.svg")
	require.NoError(t, os.WriteFile(in, []byte(payload), 0o644))

	rootCmd.SetArgs([]string{"render", in, "-o", out, "--width", "400", "--height", "200"})
	require.NoError(t, rootCmd.Execute())

	svg, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(svg), "<svg"))
	assert.Contains(t, string(svg), `width="400"`)
}

func TestWriteScoreTableMarksRecommendation(t *testing.T) {
	var buf bytes.Buffer
	writeScoreTable(&buf, &segmentation.AutoDetectResult{
		KValues:          []int{2, 3, 4},
		SilhouetteScores: []segmentation.Float{0.41, 0.52, 0.38},
		Inertias:         []segmentation.Float{1520.5, 980.25, 870},
		RecommendedK:     3,
		Reason:           "Highest silhouette score (0.520) at k=3",
	})

	lines := strings.Split(buf.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.True(t, strings.HasPrefix(lines[2], "*  3"))
	assert.Contains(t, lines[1], "1,520.5")
	assert.Contains(t, buf.String(), "Recommended: 3.")

	buf.Reset()
	writeScoreTable(&buf, &segmentation.AutoDetectResult{
		KValues:          []int{2, 3},
		SilhouetteScores: []segmentation.Float{segmentation.Float(math.NaN()), 0.3},
		Inertias:         []segmentation.Float{segmentation.Float(math.NaN()), 40},
		RecommendedK:     3,
	})
	lines = strings.Split(buf.String(), "\n")
	assert.Equal(t, 2, strings.Count(lines[1], "n/a"))
	assert.NotContains(t, buf.String(), "NaN")
}
