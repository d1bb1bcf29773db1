// Package dendrogram turns a hierarchical-clustering coordinate payload into
// absolutely positioned drawing primitives. The transform is pure: the same
// payload and canvas always produce the same Drawing.
package dendrogram

import (
	"fmt"
	"math"

	"gosegment/domain/core"
	"gosegment/domain/segmentation"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
)

// Margin is the space between the canvas edge and the plot area.
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Options controls the canvas layout.
type Options struct {
	Width  float64
	Height float64
	Margin Margin
	// Ticks is the number of intervals on the distance axis; n+1 ticks are drawn.
	Ticks int
}

const (
	DefaultWidth  = 600
	DefaultHeight = 320
	DefaultTicks  = 5
)

// DefaultMargin leaves room for the axis labels on the left and the leaf
// labels below the plot.
var DefaultMargin = Margin{Top: 20, Right: 20, Bottom: 60, Left: 50}

// DefaultOptions returns the layout for a canvas of the given size.
func DefaultOptions(width, height float64) Options {
	return Options{Width: width, Height: height, Margin: DefaultMargin, Ticks: DefaultTicks}
}

// Point is an absolute canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polyline is one merge link: four points drawn with round joins.
type Polyline struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
}

// Line is a straight segment, used for gridlines and axes.
type Line struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// Anchor is the horizontal alignment of a text primitive.
type Anchor string

const (
	AnchorStart  Anchor = "start"
	AnchorMiddle Anchor = "middle"
	AnchorEnd    Anchor = "end"
)

// Text is a label anchored at an absolute position.
type Text struct {
	At     Point  `json:"at"`
	Value  string `json:"value"`
	Anchor Anchor `json:"anchor"`
}

// Tick is one distance-axis tick with its gridline.
type Tick struct {
	Value    float64 `json:"value"`
	Label    Text    `json:"label"`
	Gridline Line    `json:"gridline"`
}

// Scale holds the linear mappings from payload space to canvas space.
type Scale struct {
	XMin  float64 `json:"x_min"`
	XMax  float64 `json:"x_max"`
	YMax  float64 `json:"y_max"`
	Left  float64 `json:"left"`
	Top   float64 `json:"top"`
	PlotW float64 `json:"plot_width"`
	PlotH float64 `json:"plot_height"`
}

// X maps an index-space value. Non-decreasing; a zero-width domain maps
// everything to the left edge.
func (s Scale) X(v float64) float64 {
	span := s.XMax - s.XMin
	if span == 0 {
		span = 1
	}
	return s.Left + (v-s.XMin)/span*s.PlotW
}

// Y maps a distance. Decreasing: distance 0 sits on the plot's bottom edge.
func (s Scale) Y(v float64) float64 {
	ymax := s.YMax
	if ymax == 0 {
		ymax = 1
	}
	return s.Top + s.PlotH - v/ymax*s.PlotH
}

// Drawing is the renderer-agnostic output of Build.
type Drawing struct {
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	Scale     Scale      `json:"scale"`
	Links     []Polyline `json:"links"`
	Ticks     []Tick     `json:"ticks"`
	Axis      []Line     `json:"axis"`
	Leaves    []Text     `json:"leaves"`
	Caption   string     `json:"caption"`
	Truncated bool       `json:"truncated"`
}

// usable reports whether a plot extent is positive and finite. NaN fails both.
func usable(extent float64) bool {
	return extent > 0 && !math.IsInf(extent, 1)
}

// Build computes the drawing of data on the canvas described by opts.
func Build(data *segmentation.DendrogramData, opts Options) (*Drawing, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: no dendrogram in result", core.ErrNothingToRender)
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidPayload, err)
	}
	if opts.Ticks <= 0 {
		opts.Ticks = DefaultTicks
	}
	plotW := opts.Width - opts.Margin.Left - opts.Margin.Right
	plotH := opts.Height - opts.Margin.Top - opts.Margin.Bottom
	if !usable(plotW) || !usable(plotH) {
		return nil, fmt.Errorf("%w: canvas %gx%g leaves no room for the plot", core.ErrInvalidPayload, opts.Width, opts.Height)
	}

	scale := Scale{
		Left:  opts.Margin.Left,
		Top:   opts.Margin.Top,
		PlotW: plotW,
		PlotH: plotH,
	}
	if xs := flatten(data.ICoord); len(xs) > 0 {
		scale.XMin = floats.Min(xs)
		scale.XMax = floats.Max(xs)
	}
	if ys := flatten(data.DCoord); len(ys) > 0 {
		scale.YMax = floats.Max(ys)
	}

	d := &Drawing{
		Width:     opts.Width,
		Height:    opts.Height,
		Scale:     scale,
		Links:     make([]Polyline, len(data.ICoord)),
		Truncated: data.Truncated(),
	}

	for i := range data.ICoord {
		pts := make([]Point, 4)
		for j := 0; j < 4; j++ {
			pts[j] = Point{X: scale.X(data.ICoord[i][j]), Y: scale.Y(data.DCoord[i][j])}
		}
		d.Links[i] = Polyline{Points: pts, Color: Color(data.ColorList[i])}
	}

	bottom := scale.Top + scale.PlotH
	right := scale.Left + scale.PlotW
	d.Ticks = make([]Tick, opts.Ticks+1)
	for i := 0; i <= opts.Ticks; i++ {
		v := scale.YMax * float64(i) / float64(opts.Ticks)
		y := scale.Y(v)
		d.Ticks[i] = Tick{
			Value:    v,
			Label:    Text{At: Point{X: scale.Left - 8, Y: y + 4}, Value: fmt.Sprintf("%.1f", v), Anchor: AnchorEnd},
			Gridline: Line{From: Point{X: scale.Left, Y: y}, To: Point{X: right, Y: y}},
		}
	}
	d.Axis = []Line{
		{From: Point{X: scale.Left, Y: scale.Top}, To: Point{X: scale.Left, Y: bottom}},
		{From: Point{X: scale.Left, Y: bottom}, To: Point{X: right, Y: bottom}},
	}

	if n := len(data.Leaves); n > 0 {
		slot := scale.PlotW / float64(n)
		d.Leaves = make([]Text, n)
		for i, label := range data.Leaves {
			d.Leaves[i] = Text{
				At:     Point{X: scale.Left + slot*(float64(i)+0.5), Y: bottom + 16},
				Value:  label,
				Anchor: AnchorMiddle,
			}
		}
	}

	d.Caption = Caption(data)
	return d, nil
}

// Caption describes the drawing and states whether leaves were truncated.
func Caption(data *segmentation.DendrogramData) string {
	if data.Truncated() {
		return fmt.Sprintf("Dendrogram of %s samples, truncated to the last %s merged clusters",
			humanize.Comma(int64(data.NSamples)), humanize.Comma(int64(data.NLeaves)))
	}
	return fmt.Sprintf("Dendrogram of %s samples", humanize.Comma(int64(data.NSamples)))
}

func flatten(rows [][]float64) []float64 {
	out := make([]float64, 0, len(rows)*4)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
