// Package cmd implements the kura command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kura",
	Short: "Kura - a searchable knowledge store for grounding chatbot answers",
	Long: `Kura ingests documents from external sources, embeds them, and serves
nearest-neighbor retrieval over HTTP. Run "kura serve" to start the API
server, "kura refresh" for a one-shot ingestion, or "kura query" to search
from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
