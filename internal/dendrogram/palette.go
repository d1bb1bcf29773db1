package dendrogram

import "strings"

// Neutral is used for color tokens outside the palette.
const Neutral = "#808080"

// palette resolves scipy/matplotlib color tokens (C0..C9, tab10).
var palette = map[string]string{
	"C0": "#1f77b4",
	"C1": "#ff7f0e",
	"C2": "#2ca02c",
	"C3": "#d62728",
	"C4": "#9467bd",
	"C5": "#8c564b",
	"C6": "#e377c2",
	"C7": "#7f7f7f",
	"C8": "#bcbd22",
	"C9": "#17becf",
}

// Color resolves a link color token to a hex color.
func Color(token string) string {
	if c, ok := palette[strings.ToUpper(strings.TrimSpace(token))]; ok {
		return c
	}
	return Neutral
}
