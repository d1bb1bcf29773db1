package profile

import (
	"bytes"
	"fmt"
	"strings"

	"gosegment/domain/segmentation"

	"github.com/dustin/go-humanize"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown renders the cluster summaries of result as a markdown report.
func Markdown(result *segmentation.ClusterResult) string {
	var b bytes.Buffer
	if result == nil {
		return ""
	}

	b.WriteString("# Segmentation results\n\n")
	fmt.Fprintf(&b, "%d clusters over %s classified records, silhouette score %.3f.\n\n",
		result.NClusters, humanize.Comma(int64(result.TotalClassified)), clean(result.Silhouette))
	if len(result.SegmentIDs) > 0 {
		fmt.Fprintf(&b, "Saved segments: %s\n\n", strings.Join(result.SegmentIDs, ", "))
	}

	for _, s := range SummarizeAll(result) {
		writeSummary(&b, s)
	}
	return b.String()
}

func writeSummary(b *bytes.Buffer, s Summary) {
	label := s.Label
	if label == "" {
		label = fmt.Sprintf("Cluster %d", s.ClusterID+1)
	}
	fmt.Fprintf(b, "## %s\n\n", escape(label))
	fmt.Fprintf(b, "%s respondents (%.1f%%)\n\n", humanize.Comma(int64(s.Size)), s.Percentage)

	if len(s.Differentiators) > 0 {
		b.WriteString("| Variable | Cluster mean | Overall mean | Delta |\n")
		b.WriteString("|---|---:|---:|---:|\n")
		for _, d := range s.Differentiators {
			fmt.Fprintf(b, "| %s | %.2f | %.2f | %+.2f |\n", escape(d.Variable), d.ClusterMean, d.OverallMean, d.Delta)
		}
		b.WriteString("\n")
	}

	for _, dim := range s.Demographics {
		parts := make([]string, len(dim.Categories))
		for i, c := range dim.Categories {
			parts[i] = fmt.Sprintf("%s %.0f%%", escape(c.Category), c.Share)
		}
		fmt.Fprintf(b, "- **%s**: %s\n", escape(dim.Name), strings.Join(parts, ", "))
	}
	if len(s.Demographics) > 0 {
		b.WriteString("\n")
	}
}

// HTML converts a markdown report to an HTML fragment.
func HTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return markdown.Render(doc, renderer)
}

var mdEscaper = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "#", `\#`)

func escape(s string) string {
	return mdEscaper.Replace(s)
}
