package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gosegment/domain/segmentation"
	"gosegment/internal/profile"
	segwiz "gosegment/internal/segmentation"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var oneshot struct {
	variables     []string
	low, high     int
	noStandardize bool
	k             int
	method        string
	linkage       string
	persist       bool
	prefix        string
	format        string
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Sweep candidate cluster counts and print the score table",
	Args:  cobra.NoArgs,
	RunE:  runDetect,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a segmentation and print the cluster profiles",
	Args:  cobra.NoArgs,
	RunE:  runExecute,
}

func init() {
	for _, cmd := range []*cobra.Command{detectCmd, runCmd} {
		cmd.Flags().StringSliceVar(&oneshot.variables, "vars", nil, "comma-separated input variables (at least two)")
		cmd.Flags().BoolVar(&oneshot.noStandardize, "no-standardize", false, "cluster raw values")
		_ = cmd.MarkFlagRequired("vars")
	}
	def := segmentation.DefaultRange()
	detectCmd.Flags().IntVar(&oneshot.low, "low", def.Low, "lowest candidate")
	detectCmd.Flags().IntVar(&oneshot.high, "high", def.High, "highest candidate")

	runCmd.Flags().IntVarP(&oneshot.k, "clusters", "k", 0, "number of clusters (default: configured default)")
	runCmd.Flags().StringVar(&oneshot.method, "method", string(segmentation.MethodKMeans), "kmeans or hierarchical")
	runCmd.Flags().StringVar(&oneshot.linkage, "linkage", "", "linkage for hierarchical clustering")
	runCmd.Flags().BoolVar(&oneshot.persist, "persist", false, "save the clusters as segments")
	runCmd.Flags().StringVar(&oneshot.prefix, "prefix", segwiz.DefaultNamePrefix, "name prefix of saved segments")
	runCmd.Flags().StringVar(&oneshot.format, "format", "pretty", "output: pretty, markdown or json")
}

func oneshotState() segwiz.State {
	s := segwiz.NewState(segmentation.Range{Low: oneshot.low, High: oneshot.high})
	s.Variables = oneshot.variables
	s.Standardize = !oneshot.noStandardize
	return s
}

func runDetect(cmd *cobra.Command, args []string) error {
	c, err := loadContainer(false)
	if err != nil {
		return err
	}
	result, err := segwiz.NewDetector(c.Analytics, c.Logger).Detect(cmd.Context(), oneshotState())
	if err != nil {
		return err
	}
	writeScoreTable(cmd.OutOrStdout(), result)
	return nil
}

func writeScoreTable(w io.Writer, r *segmentation.AutoDetectResult) {
	fmt.Fprintf(w, "%4s  %10s  %12s\n", "k", "silhouette", "inertia")
	for i, k := range r.KValues {
		marker := " "
		if k == r.RecommendedK {
			marker = "*"
		}
		inertia := r.Inertias[i].Text(1)
		if r.Inertias[i].Finite() {
			inertia = humanize.CommafWithDigits(r.Inertias[i].Value(), 1)
		}
		fmt.Fprintf(w, "%s%3d  %10s  %12s\n", marker, k, r.SilhouetteScores[i].Text(3), inertia)
	}
	fmt.Fprintf(w, "\nRecommended: %d. %s\n", r.RecommendedK, r.Reason)
}

func runExecute(cmd *cobra.Command, args []string) error {
	c, err := loadContainer(false)
	if err != nil {
		return err
	}

	method, err := segmentation.ParseMethod(oneshot.method, oneshot.linkage)
	if err != nil {
		return err
	}
	s := oneshotState()
	s.Method = method
	s.AutoDetect = false
	if oneshot.k > 0 {
		k := oneshot.k
		s.ManualK = &k
	}
	s.Persist = oneshot.persist
	s.NamePrefix = oneshot.prefix

	runner := segwiz.NewRunner(c.Analytics, c.Catalog, c.Config.Wizard.DefaultClusters, c.Logger)
	result, err := runner.Execute(cmd.Context(), s)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(oneshot.format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "markdown":
		_, err := io.WriteString(out, profile.Markdown(result))
		return err
	case "pretty":
		rendered, err := glamour.Render(profile.Markdown(result), "auto")
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, rendered)
		return err
	default:
		return fmt.Errorf("unknown format %q", oneshot.format)
	}
}
