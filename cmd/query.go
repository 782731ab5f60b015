package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kurakb/kura/internal/app"
	"github.com/kurakb/kura/internal/config"
	"github.com/kurakb/kura/internal/log"
	"github.com/kurakb/kura/internal/retrieve"
)

var (
	queryK        int
	queryMinScore float32
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search the knowledge store from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, strings.Join(args, " "))
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryK, "k", 0, "number of matches to return (default: configured top_k_default)")
	queryCmd.Flags().Float32Var(&queryMinScore, "min-score", -2, "minimum similarity score in [-1, 1]")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, text string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	logger := log.New(log.Config{Level: cfg.SlogLevel()})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	q := retrieve.Query{Text: text, K: queryK}
	if queryMinScore >= -1 {
		q.MinScore = &queryMinScore
	}

	matches, err := a.Engine.Answer(ctx, q)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, "no matches")
		return nil
	}
	for i, m := range matches {
		fmt.Fprintf(out, "%d. %s (score %.4f)\n", i+1, m.Meta.Title, m.Score)
		fmt.Fprintf(out, "   %s\n", firstLine(m.Meta.Content))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		return s[:120] + "…"
	}
	return s
}
