package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagemerge/internal/export"
)

var (
	extractOut           string
	extractReport        string
	extractHTML          bool
	extractMode          string
	extractNoAdjudicator bool
	extractWorkers       int
	extractNoCache       bool
	extractTimeout       time.Duration
	extractPages         string
)

var extractCmd = &cobra.Command{
	Use:   "extract <pdf>",
	Short: "Reconcile a PDF into Markdown with provenance",
	Long: `Extract a PDF by reconciling its text layer with a vision transcription.

Writes <name>.md and <name>.provenance.jsonl next to the PDF unless --out and
--report say otherwise, then prints a run summary. If the run is interrupted
nothing is written.

Examples:
  pagemerge extract report.pdf
  pagemerge extract report.pdf --mode text_only --out /tmp/report.md
  pagemerge extract scan.pdf --pages 1-3,7 --no-adjudicator --html`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pages, err := parsePages(extractPages)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.open(cmd.Context(), extractNoCache); err != nil {
			return err
		}

		targets := export.Targets{Markdown: extractOut, Provenance: extractReport}
		if extractHTML {
			md := extractOut
			if md == "" {
				md = args[0]
			}
			targets.HTML = strings.TrimSuffix(md, filepath.Ext(md)) + ".html"
		}

		summary, runErr := a.process(cmd.Context(), args[0], runOptions{
			mode:          extractMode,
			workers:       extractWorkers,
			pages:         pages,
			noAdjudicator: extractNoAdjudicator,
			timeout:       extractTimeout,
			targets:       targets,
		})
		if summary.RunID != "" {
			if err := a.print(cmd, summary); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractOut, "out", "", "Markdown output path (default: next to the PDF)")
	extractCmd.Flags().StringVar(&extractReport, "report", "", "provenance log path (default: next to the PDF)")
	extractCmd.Flags().BoolVar(&extractHTML, "html", false, "also write an HTML preview")
	extractCmd.Flags().StringVar(&extractMode, "mode", "", "hybrid, text_only or vision_only (default from config)")
	extractCmd.Flags().BoolVar(&extractNoAdjudicator, "no-adjudicator", false, "resolve ambiguous pairs heuristically")
	extractCmd.Flags().IntVar(&extractWorkers, "workers", 0, "pages processed in parallel (default from config)")
	extractCmd.Flags().BoolVar(&extractNoCache, "no-cache", false, "bypass the render and vision cache")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 0, "abort the run after this long")
	extractCmd.Flags().StringVar(&extractPages, "pages", "", "pages to process, e.g. 1-3,7 (default: all)")

	rootCmd.AddCommand(extractCmd)
}

// parsePages parses a page selection like "1-3,7" into ascending,
// de-duplicated page numbers.
func parsePages(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	seen := make(map[int]bool)
	var pages []int
	add := func(p int) {
		if !seen[p] {
			seen[p] = true
			pages = append(pages, p)
		}
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || from < 1 {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		to := from
		if isRange {
			to, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || to < from {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		for p := from; p <= to; p++ {
			add(p)
		}
	}
	slices.Sort(pages)
	return pages, nil
}
