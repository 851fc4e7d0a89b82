// Package cmd defines the pointstack CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pointstack",
	Short: "Pointstack - rewards dashboard AI chat backend",
	Long: `Pointstack serves the rewards dashboard's AI chat endpoint: a semantic
response cache, multi-source context retrieval, and cost-aware model routing
in front of a chat-completion gateway.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
