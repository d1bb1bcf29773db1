package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gosegment/domain/segmentation"
	"gosegment/internal/dendrogram"

	"github.com/spf13/cobra"
)

var (
	renderWidth  float64
	renderHeight float64
	renderOut    string
	renderFormat string
)

var renderCmd = &cobra.Command{
	Use:   "render <dendrogram.json>",
	Short: "Render a dendrogram payload or clustering result as SVG",
	Long: `Reads either a bare dendrogram payload (icoord, dcoord, ivl, color_list)
or a full clustering result containing one, and writes the drawing.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().Float64Var(&renderWidth, "width", dendrogram.DefaultWidth, "canvas width")
	renderCmd.Flags().Float64Var(&renderHeight, "height", dendrogram.DefaultHeight, "canvas height")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "output file (default stdout)")
	renderCmd.Flags().StringVar(&renderFormat, "format", "svg", "output format: svg or json")
}

func runRender(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	data, err := decodeDendrogram(raw)
	if err != nil {
		return err
	}
	drawing, err := dendrogram.Build(data, dendrogram.DefaultOptions(renderWidth, renderHeight))
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if renderOut != "" {
		f, err := os.Create(renderOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch renderFormat {
	case "svg":
		return dendrogram.WriteSVG(out, drawing)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(drawing)
	default:
		return fmt.Errorf("unknown format %q", renderFormat)
	}
}

// decodeDendrogram accepts a bare payload or a clustering result.
func decodeDendrogram(raw []byte) (*segmentation.DendrogramData, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if nested, ok := probe["dendrogram"]; ok {
		raw = nested
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var data segmentation.DendrogramData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid dendrogram: %w", err)
	}
	return &data, nil
}
