package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagemerge/internal/score"
	"github.com/jackzampolin/pagemerge/internal/segment"
	"github.com/jackzampolin/pagemerge/internal/textlayer"
)

var segmentsPage int

var segmentsCmd = &cobra.Command{
	Use:   "segments <file>",
	Short: "Show how a page or Markdown file is segmented and scored",
	Long: `Print the typed segments of a text and the score of each.

For a PDF the text layer of --page is used, cleaned as during extraction.
Any other file is read as Markdown, which is useful for inspecting a saved
vision reply.

Examples:
  pagemerge segments report.pdf --page 4
  pagemerge segments reply.md -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		cfg := a.config.Get()

		var text string
		if isPDF(args[0]) {
			doc, err := textlayer.NewExtractor(textlayer.Config{Raw: cfg.Text.Raw, Logger: a.logger}).Open(args[0])
			if err != nil {
				return err
			}
			defer doc.Close()
			text, err = doc.PageText(cmd.Context(), segmentsPage)
			if err != nil {
				return err
			}
		} else {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text = string(data)
		}

		return a.print(cmd, describeSegments(text, score.New(cfg.Scoring)))
	},
}

func init() {
	segmentsCmd.Flags().IntVar(&segmentsPage, "page", 1, "page of a PDF to segment")

	rootCmd.AddCommand(segmentsCmd)
}

type segmentInfo struct {
	Index      int          `json:"index" yaml:"index"`
	Type       segment.Type `json:"type" yaml:"type"`
	Score      string       `json:"score" yaml:"score"`
	Runes      int          `json:"runes" yaml:"runes"`
	AlnumRatio string       `json:"alnum_ratio" yaml:"alnum_ratio"`
	WeirdRate  string       `json:"weird_rate" yaml:"weird_rate"`
	Text       string       `json:"text" yaml:"text"`
}

func describeSegments(text string, scorer *score.Scorer) []segmentInfo {
	segs := segment.Split(text)
	out := make([]segmentInfo, 0, len(segs))
	for _, s := range segs {
		f := score.Measure(s.Text)
		out = append(out, segmentInfo{
			Index:      s.Index,
			Type:       s.Type,
			Score:      fmt.Sprintf("%.4f", scorer.Score(s)),
			Runes:      f.Runes,
			AlnumRatio: fmt.Sprintf("%.3f", f.AlnumRatio),
			WeirdRate:  fmt.Sprintf("%.3f", f.WeirdRate),
			Text:       s.Text,
		})
	}
	return out
}
