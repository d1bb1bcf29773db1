package main

import (
	"gosegment/ui/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiHistory bool

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the segmentation wizard in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().BoolVar(&tuiHistory, "history", true, "record executions in the run store")
}

func runTUI(cmd *cobra.Command, args []string) error {
	c, err := loadContainer(true)
	if err != nil {
		return err
	}
	if tuiHistory {
		if err := c.InitWithDatabase(cmd.Context()); err != nil {
			return err
		}
	} else {
		c.InitWithoutDatabase()
	}
	defer c.Close()

	w, err := c.Segmentation.Open(cmd.Context())
	if err != nil {
		return err
	}
	vars, err := c.Segmentation.Variables(cmd.Context())
	if err != nil {
		return err
	}

	_, err = tea.NewProgram(tui.New(w, vars), tea.WithAltScreen()).Run()
	return err
}
