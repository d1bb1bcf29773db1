package dendrogram

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"gosegment/domain/core"
	"gosegment/domain/segmentation"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleLink() *segmentation.DendrogramData {
	return &segmentation.DendrogramData{
		ICoord:    [][]float64{{5, 5, 15, 15}},
		DCoord:    [][]float64{{0, 2, 2, 0}},
		Leaves:    []string{"A", "B"},
		ColorList: []string{"C0"},
		NSamples:  2,
		NLeaves:   2,
	}
}

func threeLinks() *segmentation.DendrogramData {
	return &segmentation.DendrogramData{
		ICoord: [][]float64{
			{5, 5, 15, 15},
			{25, 25, 35, 35},
			{10, 10, 30, 30},
		},
		DCoord: [][]float64{
			{0, 1.2, 1.2, 0},
			{0, 0.7, 0.7, 0},
			{1.2, 3.4, 3.4, 0.7},
		},
		Leaves:    []string{"(40)", "(25)", "(61)", "(12)"},
		ColorList: []string{"C1", "C2", "C0"},
		NSamples:  138,
		NLeaves:   4,
	}
}

func TestBuildSingleLinkEndToEnd(t *testing.T) {
	d, err := Build(singleLink(), DefaultOptions(600, 320))
	require.NoError(t, err)

	// plot area is 530x240 starting at (50,20)
	want := []Polyline{{
		Points: []Point{{X: 50, Y: 260}, {X: 50, Y: 20}, {X: 580, Y: 20}, {X: 580, Y: 260}},
		Color:  "#1f77b4",
	}}
	if diff := cmp.Diff(want, d.Links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}

	wantLeaves := []Text{
		{At: Point{X: 182.5, Y: 276}, Value: "A", Anchor: AnchorMiddle},
		{At: Point{X: 447.5, Y: 276}, Value: "B", Anchor: AnchorMiddle},
	}
	if diff := cmp.Diff(wantLeaves, d.Leaves); diff != "" {
		t.Errorf("leaves mismatch (-want +got):\n%s", diff)
	}

	assert.False(t, d.Truncated)
	assert.Equal(t, "Dendrogram of 2 samples", d.Caption)
	assert.NotContains(t, d.Caption, "truncated")
}

func TestScaleYIsDecreasing(t *testing.T) {
	d, err := Build(threeLinks(), DefaultOptions(800, 400))
	require.NoError(t, err)
	s := d.Scale
	require.Greater(t, s.YMax, 0.0)

	assert.Equal(t, s.Top+s.PlotH, s.Y(0))
	assert.Equal(t, s.Top, s.Y(s.YMax))

	prev := s.Y(0)
	for v := 0.1; v <= s.YMax; v += 0.1 {
		y := s.Y(v)
		assert.Less(t, y, prev, "Y(%v)", v)
		prev = y
	}
}

func TestScaleXEndpoints(t *testing.T) {
	d, err := Build(threeLinks(), DefaultOptions(800, 400))
	require.NoError(t, err)
	s := d.Scale

	assert.Equal(t, 5.0, s.XMin)
	assert.Equal(t, 35.0, s.XMax)
	assert.Equal(t, s.Left, s.X(s.XMin))
	assert.Equal(t, s.Left+s.PlotW, s.X(s.XMax))

	prev := s.X(s.XMin)
	for v := s.XMin; v <= s.XMax; v += 0.5 {
		x := s.X(v)
		assert.GreaterOrEqual(t, x, prev)
		prev = x
	}
}

func TestDegenerateScalesAreGuarded(t *testing.T) {
	data := &segmentation.DendrogramData{
		ICoord:    [][]float64{{5, 5, 5, 5}},
		DCoord:    [][]float64{{0, 0, 0, 0}},
		Leaves:    []string{"A"},
		ColorList: []string{"C0"},
		NSamples:  1,
		NLeaves:   1,
	}
	d, err := Build(data, DefaultOptions(600, 320))
	require.NoError(t, err)

	for _, p := range d.Links[0].Points {
		assert.Equal(t, d.Scale.Left, p.X)
		assert.Equal(t, d.Scale.Top+d.Scale.PlotH, p.Y)
	}
	for _, tick := range d.Ticks {
		assert.Equal(t, "0.0", tick.Label.Value)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	data := threeLinks()
	opts := DefaultOptions(640, 360)

	first, err := Build(data, opts)
	require.NoError(t, err)
	second, err := Build(data, opts)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated build differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, threeLinks(), data, "input must not be mutated")
}

func TestTicks(t *testing.T) {
	d, err := Build(singleLink(), DefaultOptions(600, 320))
	require.NoError(t, err)

	require.Len(t, d.Ticks, DefaultTicks+1)
	labels := make([]string, len(d.Ticks))
	for i, tick := range d.Ticks {
		labels[i] = tick.Label.Value
		assert.Equal(t, d.Scale.Left, tick.Gridline.From.X)
		assert.Equal(t, d.Scale.Left+d.Scale.PlotW, tick.Gridline.To.X)
		assert.Equal(t, tick.Gridline.From.Y, tick.Gridline.To.Y)
	}
	assert.Equal(t, []string{"0.0", "0.4", "0.8", "1.2", "1.6", "2.0"}, labels)
	assert.Equal(t, 260.0, d.Ticks[0].Gridline.From.Y)
	assert.Equal(t, 20.0, d.Ticks[DefaultTicks].Gridline.From.Y)
}

func TestCaptionReportsTruncation(t *testing.T) {
	data := threeLinks()
	data.NSamples = 1200
	d, err := Build(data, DefaultOptions(600, 320))
	require.NoError(t, err)

	assert.True(t, d.Truncated)
	assert.Equal(t, "Dendrogram of 1,200 samples, truncated to the last 4 merged clusters", d.Caption)
}

func TestPaletteFallback(t *testing.T) {
	assert.Equal(t, "#1f77b4", Color("C0"))
	assert.Equal(t, "#17becf", Color("c9"))
	assert.Equal(t, Neutral, Color("C10"))
	assert.Equal(t, Neutral, Color(""))
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, err := Build(nil, DefaultOptions(600, 320))
	assert.ErrorIs(t, err, core.ErrNothingToRender)

	bad := singleLink()
	bad.ColorList = nil
	_, err = Build(bad, DefaultOptions(600, 320))
	assert.ErrorIs(t, err, core.ErrInvalidPayload)

	_, err = Build(singleLink(), DefaultOptions(40, 40))
	assert.ErrorIs(t, err, core.ErrInvalidPayload)

	for _, size := range [][2]float64{
		{math.NaN(), 320},
		{600, math.NaN()},
		{math.Inf(1), 320},
		{600, math.Inf(1)},
		{math.Inf(-1), 320},
	} {
		_, err = Build(singleLink(), DefaultOptions(size[0], size[1]))
		assert.ErrorIs(t, err, core.ErrInvalidPayload, "canvas %vx%v", size[0], size[1])
	}
}

func TestWriteSVG(t *testing.T) {
	d, err := Build(singleLink(), DefaultOptions(600, 320))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSVG(&buf, d))
	svg := buf.String()

	assert.True(t, strings.HasPrefix(svg, "<svg "))
	assert.Equal(t, 1, strings.Count(svg, "<polyline"))
	assert.Contains(t, svg, `points="50,260 50,20 580,20 580,260"`)
	assert.Contains(t, svg, `stroke-linejoin="round"`)
	assert.Contains(t, svg, `>A</text>`)
	assert.Contains(t, svg, `>2.0</text>`)
}
