// Command docqa answers questions from the single best-matching chunk of an
// indexed PDF or slide deck.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/logger"
)

var (
	cfgPath string
	verbose bool

	cfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Question answering over an indexed document and slide deck",
	Long: `docqa indexes a PDF and a PPTX into sentence-aligned chunks, retrieves the
single most similar chunk for a question and asks a language model to answer
from it.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(*cobra.Command, []string) { logger.Sync() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (default ./config.yaml or ~/.config/docqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	var err error
	if cfgPath == "" {
		var path string
		cfg, path, err = config.LoadDefault()
		if err == nil {
			logger.Debugf("using config %s", path)
		}
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	if verbose {
		logger.SetVerbose(true)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
