// Command segwiz is the command-line front end of the segmentation wizard.
package main

import (
	"fmt"
	"os"

	"gosegment/internal/config"
	"gosegment/internal/container"
	"gosegment/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "segwiz",
	Short:         "Segment survey respondents with a guided clustering wizard",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(renderCmd, tuiCmd, detectCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadContainer reads .env and the environment and wires the collaborators.
func loadContainer(quiet bool) (*container.Container, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if !quiet {
		if logger, err = logging.New(logLevel); err != nil {
			return nil, err
		}
	}
	return container.New(cfg, logger)
}
