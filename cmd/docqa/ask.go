package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askShowSource bool

var askCmd = &cobra.Command{
	Use:   "ask <corpus> <question>",
	Short: "Answer a question from the best-matching chunk",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowSource, "source", false, "also print the chunk the answer came from")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	corpus, question := args[0], strings.Join(args[1:], " ")

	svc, cache, err := newService(cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx := commandContext(cmd)
	if err := svc.Load(ctx, corpus); err != nil {
		return err
	}
	ans, err := svc.Ask(ctx, corpus, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
	if askShowSource {
		fmt.Fprintf(cmd.OutOrStdout(), "\n[%s, score %.3f]\n%s\n", ans.Match.Document.ID, ans.Match.Score, ans.Match.Document.Text)
	}
	return nil
}
