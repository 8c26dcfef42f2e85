// Package provenance records which candidate was chosen for every output
// segment and assembles the chosen text into the final document.
package provenance

import (
	"fmt"
	"time"

	"github.com/jackzampolin/pagemerge/internal/selector"
)

// Record is one audit entry. Nullable fields are pointers so that an absent
// side serializes as null rather than zero.
type Record struct {
	PageNum    int             `json:"page_num"`
	SegmentIdx int             `json:"segment_idx"`
	Source     selector.Source `json:"source"`
	Rule       selector.Rule   `json:"rule"`

	TScore  *float64 `json:"t_score"`
	VScore  *float64 `json:"v_score"`
	LLMPick *string  `json:"llm_pick"`

	ChosenText string `json:"chosen_text"`

	// Backend is the adjudicator consulted for this segment, if any.
	Backend  *string `json:"backend_id"`
	Fallback bool    `json:"fallback"`

	Timestamp time.Time `json:"timestamp"`
}

// FromResult builds the record for segment idx of page from a selection.
func FromResult(page, idx int, r selector.Result, at time.Time) Record {
	rec := Record{
		PageNum:    page,
		SegmentIdx: idx,
		Source:     r.Source,
		Rule:       r.Rule,
		TScore:     r.TScore,
		VScore:     r.VScore,
		ChosenText: r.Text,
		Fallback:   r.Fallback,
		Timestamp:  at.UTC(),
	}
	if r.LLMPick != "" {
		pick := r.LLMPick
		rec.LLMPick = &pick
	}
	if r.Backend != "" {
		backend := r.Backend
		rec.Backend = &backend
	}
	return rec
}

// Marker returns the inline comment that precedes the record's text in the
// assembled document.
func (r Record) Marker() string {
	switch {
	case r.Source == selector.SourceLLM && r.LLMPick != nil:
		return fmt.Sprintf("<!-- src:LLM:%s -->", *r.LLMPick)
	case r.Fallback:
		return fmt.Sprintf("<!-- src:%s fallback -->", r.Source)
	default:
		return fmt.Sprintf("<!-- src:%s -->", r.Source)
	}
}

// PageMarker returns the comment emitted before a page when page markers are
// enabled.
func PageMarker(page int) string {
	return fmt.Sprintf("<!-- page:%d -->", page)
}
