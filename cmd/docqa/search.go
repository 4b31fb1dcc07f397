package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/search"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <corpus> <query>",
	Short: "Show the chunks most similar to a query",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	corpus, query := args[0], strings.Join(args[1:], " ")

	svc, cache, err := newService(cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx := commandContext(cmd)
	if err := svc.Load(ctx, corpus); err != nil {
		return err
	}
	results, err := svc.Search(ctx, corpus, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	outputSearchTable(cmd, results)
	return nil
}

func outputSearchJSON(cmd *cobra.Command, results []search.Match) error {
	if results == nil {
		results = []search.Match{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []search.Match) {
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s (%.3f)\n", i+1, r.Document.ID, r.Score)
		fmt.Fprintf(cmd.OutOrStdout(), "      %s\n\n", r.Document.Text)
	}
}
