package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/lexcrawl/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/lexcrawl.yaml
var configTemplate embed.FS

// templatePath is the path of the template inside configTemplate.
const templatePath = "templates/lexcrawl.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new lexcrawl configuration file",
		Long: `Initialize creates a new .lexcrawl configuration file in the current directory.

The generated file includes:
- Default timeouts, rate limits and retry settings
- An example source with listing selectors and an id pattern
- Documentation for all available options

Examples:
  # Create .lexcrawl in current directory
  lexcrawl init

  # Create config file at a specific path
  lexcrawl init -o ~/.config/lexcrawl/config.yaml

  # Force overwrite existing file
  lexcrawl init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Source headers may carry API keys.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to describe your sources:")
	fmt.Fprintln(out, "  - Listing URL and CSS selectors for document and next-page links")
	fmt.Fprintln(out, "  - External id pattern and document type")
	fmt.Fprintln(out, "  - Rate limits, retries and proxies per source")

	return nil
}
