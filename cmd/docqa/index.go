package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexRebuild bool

var indexCmd = &cobra.Command{
	Use:   "index [corpus...]",
	Short: "Load or build corpus indexes",
	Long: `Loads each named corpus (all corpora when none are named) from its cache,
building and caching it from the source when the cache is missing or stale.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "ignore existing caches and rebuild")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	svc, cache, err := newService(cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx := commandContext(cmd)
	if indexRebuild {
		err = svc.Reindex(ctx, args...)
	} else {
		err = svc.Load(ctx, args...)
	}
	if err != nil {
		return err
	}

	names := args
	if len(names) == 0 {
		for _, c := range svc.Corpora() {
			names = append(names, c.Name)
		}
	}
	for _, name := range names {
		h, err := svc.Handle(name)
		if err != nil {
			return err
		}
		meta := h.Index.Meta()
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d documents, dimension %d, model %s\n", name, h.Index.Len(), h.Index.Dimension(), meta.Model)
		fmt.Fprintf(cmd.OutOrStdout(), "  source: %s\n  cache:  %s\n", h.Source.Path, h.Source.CachePath)
		if h.Summary != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  summary: %s\n", h.Summary)
		}
	}
	return nil
}
