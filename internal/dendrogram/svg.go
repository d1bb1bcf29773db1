package dendrogram

import (
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
)

const (
	gridColor  = "#e5e7eb"
	axisColor  = "#374151"
	labelColor = "#4b5563"
)

// WriteSVG renders d as a standalone SVG document. Links are drawn with
// round joins and caps so adjacent merge segments read as one stroke.
func WriteSVG(w io.Writer, d *Drawing) error {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s" font-family="sans-serif">`+"\n",
		num(d.Width), num(d.Height), num(d.Width), num(d.Height))
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(d.Caption))

	b.WriteString(`<g class="grid" stroke="` + gridColor + `" stroke-width="1">` + "\n")
	for _, t := range d.Ticks {
		writeLine(&b, t.Gridline)
	}
	b.WriteString("</g>\n")

	b.WriteString(`<g class="axis" stroke="` + axisColor + `" stroke-width="1">` + "\n")
	for _, l := range d.Axis {
		writeLine(&b, l)
	}
	b.WriteString("</g>\n")

	b.WriteString(`<g class="links" fill="none" stroke-width="1.5" stroke-linejoin="round" stroke-linecap="round">` + "\n")
	for _, p := range d.Links {
		pts := make([]string, len(p.Points))
		for i, pt := range p.Points {
			pts[i] = num(pt.X) + "," + num(pt.Y)
		}
		fmt.Fprintf(&b, `<polyline points="%s" stroke="%s"/>`+"\n", strings.Join(pts, " "), p.Color)
	}
	b.WriteString("</g>\n")

	b.WriteString(`<g class="ticks" font-size="10" fill="` + labelColor + `">` + "\n")
	for _, t := range d.Ticks {
		writeText(&b, t.Label)
	}
	b.WriteString("</g>\n")

	b.WriteString(`<g class="leaves" font-size="10" fill="` + labelColor + `">` + "\n")
	for _, l := range d.Leaves {
		writeText(&b, l)
	}
	b.WriteString("</g>\n")

	writeText(&b, Text{At: Point{X: d.Width / 2, Y: d.Height - 8}, Value: d.Caption, Anchor: AnchorMiddle})
	b.WriteString("</svg>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeLine(b *strings.Builder, l Line) {
	fmt.Fprintf(b, `<line x1="%s" y1="%s" x2="%s" y2="%s"/>`+"\n", num(l.From.X), num(l.From.Y), num(l.To.X), num(l.To.Y))
}

func writeText(b *strings.Builder, t Text) {
	fmt.Fprintf(b, `<text x="%s" y="%s" text-anchor="%s">%s</text>`+"\n",
		num(t.At.X), num(t.At.Y), t.Anchor, html.EscapeString(t.Value))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
