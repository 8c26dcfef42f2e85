// Package report renders run summaries for the CLI.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/pagemerge/internal/pipeline"
)

// Format is a structured output format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name. Empty means YAML.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatYAML, "":
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// Write encodes data to w in the given format.
func Write(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// Outputs lists the files a run wrote.
type Outputs struct {
	Markdown   string `json:"markdown,omitempty" yaml:"markdown,omitempty"`
	Provenance string `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	HTML       string `json:"html,omitempty" yaml:"html,omitempty"`
}

// Summary is what the extract and watch commands print per document.
type Summary struct {
	RunID    string                 `json:"run_id" yaml:"run_id"`
	Source   string                 `json:"source" yaml:"source"`
	Mode     pipeline.Mode          `json:"mode" yaml:"mode"`
	Status   string                 `json:"status" yaml:"status"`
	Error    string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Outputs  Outputs                `json:"outputs" yaml:"outputs"`
	Stats    pipeline.Stats         `json:"stats" yaml:"stats"`
	Failures []pipeline.PageFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Cache    *CacheStats            `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// CacheStats reports cache effectiveness for the run.
type CacheStats struct {
	Hits   int64 `json:"hits" yaml:"hits"`
	Misses int64 `json:"misses" yaml:"misses"`
}

const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Summarize builds a Summary from a run result and the error Run returned.
func Summarize(res *pipeline.Result, runErr error, out Outputs) Summary {
	s := Summary{
		RunID:    res.RunID,
		Source:   res.Source,
		Mode:     res.Mode,
		Status:   StatusComplete,
		Outputs:  out,
		Stats:    res.Stats,
		Failures: res.Failures,
	}
	if runErr == nil {
		return s
	}
	s.Error = runErr.Error()
	switch {
	case !errors.Is(runErr, pipeline.ErrPagesFailed):
		s.Status = StatusCanceled
	case res.Stats.Pages > len(res.Failures):
		s.Status = StatusPartial
	default:
		s.Status = StatusFailed
	}
	return s
}
