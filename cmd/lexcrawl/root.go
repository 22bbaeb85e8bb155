package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for lexcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexcrawl",
		Short: "Change-tracking crawler for legal publication sources",
		Long: `lexcrawl crawls official gazettes and other legal publication sites,
stores every document it finds, and records when a document changes.

Requests are paced per source with a token bucket and transient failures
are retried with exponential backoff. Run 'lexcrawl init' to create a
configuration file describing your sources.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
