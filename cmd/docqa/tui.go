package main

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docqa/internal/logger"
	"docqa/internal/tui"
)

var tuiNoGenerate bool

var tuiCmd = &cobra.Command{
	Use:   "tui <corpus>",
	Short: "Query a corpus interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().BoolVar(&tuiNoGenerate, "no-generate", false, "only retrieve, do not call the language model")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	corpus := args[0]

	svc, cache, err := newService(cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := svc.Load(commandContext(cmd), corpus); err != nil {
		return err
	}
	h, err := svc.Handle(corpus)
	if err != nil {
		return err
	}

	// log lines would tear the alternate screen
	logger.SetOutput(io.Discard)
	m := tui.New(svc, corpus, h.Summary, !tuiNoGenerate)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
