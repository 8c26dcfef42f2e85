package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagemerge/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
	logFile      string
)

var rootCmd = &cobra.Command{
	Use:   "pagemerge",
	Short: "Reconcile PDF text layers with vision-model transcriptions",
	Long: `pagemerge extracts Markdown from PDFs by combining two candidates per page:
the embedded text layer and a vision model's transcription of the rendered page.

Both candidates are split into typed segments (headings, paragraphs, lists,
tables), scored for quality, aligned, and reconciled segment by segment:
  - structured vision output wins over flattened text
  - clearly better-scoring candidates win outright
  - ambiguous pairs can be escalated to an LLM that must pick one verbatim
  - everything else keeps the text layer

Every chosen segment is recorded in a provenance log.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.pagemerge/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "pagemerge home directory (default: ~/.pagemerge)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logFile, "log-file", "", "also write logs to this rotating file (overrides config)",
	)

	rootCmd.AddCommand(versionCmd)
}
