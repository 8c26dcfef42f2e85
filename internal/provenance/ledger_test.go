package provenance

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/pagemerge/internal/selector"
)

var fixed = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func f(v float64) *float64 { return &v }

func TestRecordMarker(t *testing.T) {
	tests := []struct {
		name string
		res  selector.Result
		want string
	}{
		{"text", selector.Result{Source: selector.SourceText}, "<!-- src:T -->"},
		{"vision", selector.Result{Source: selector.SourceVision}, "<!-- src:V -->"},
		{"llm", selector.Result{Source: selector.SourceLLM, LLMPick: "B"}, "<!-- src:LLM:B -->"},
		{"fallback", selector.Result{Source: selector.SourceText, Fallback: true}, "<!-- src:T fallback -->"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromResult(1, 0, tt.res, fixed).Marker(); got != tt.want {
				t.Errorf("Marker() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPageAppend(t *testing.T) {
	p := NewPage(4)
	p.Append(selector.Result{Text: "# Title", Source: selector.SourceVision, Rule: selector.RuleStructural}, fixed)
	rec := p.Append(selector.Result{Text: "Body.", Source: selector.SourceText, Rule: selector.RuleDefault}, fixed)

	if rec.PageNum != 4 || rec.SegmentIdx != 1 {
		t.Errorf("record position = %d/%d, want 4/1", rec.PageNum, rec.SegmentIdx)
	}
	if p.Text() != "# Title\n\nBody." {
		t.Errorf("Text() = %q", p.Text())
	}
	want := "<!-- src:V -->\n# Title\n\n<!-- src:T -->\nBody."
	if got := p.Markdown(Options{Markers: true}); got != want {
		t.Errorf("Markdown() = %q, want %q", got, want)
	}
}

func TestDocumentOrdering(t *testing.T) {
	var d Document
	for _, num := range []int{3, 1, 2} {
		p := NewPage(num)
		p.Append(selector.Result{Text: strings.Repeat("x", num), Source: selector.SourceText}, fixed)
		d.Add(p)
	}
	d.Add(NewPage(5))

	recs := d.Records()
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec.PageNum != i+1 {
			t.Errorf("record %d is from page %d", i, rec.PageNum)
		}
	}

	if got := d.Markdown(Options{}); got != "x\n\nxx\n\nxxx\n" {
		t.Errorf("Markdown() = %q", got)
	}
	withPages := d.Markdown(Options{PageMarkers: true})
	if !strings.Contains(withPages, "<!-- page:5 -->") || !strings.HasPrefix(withPages, "<!-- page:1 -->\n\nx") {
		t.Errorf("page markers missing: %q", withPages)
	}
}

func TestDocumentAddReplaces(t *testing.T) {
	var d Document
	first := NewPage(1)
	first.Append(selector.Result{Text: "old", Source: selector.SourceText}, fixed)
	d.Add(first)
	second := NewPage(1)
	second.Append(selector.Result{Text: "new", Source: selector.SourceVision}, fixed)
	d.Add(second)

	if len(d.Pages()) != 1 || d.Records()[0].ChosenText != "new" {
		t.Errorf("expected page to be replaced, got %+v", d.Records())
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	var d Document
	p := NewPage(1)
	p.Append(selector.Result{Text: "<b>A & B</b>", Source: selector.SourceLLM, LLMPick: "A", Backend: "mock", TScore: f(0.5), VScore: f(0.52), Rule: selector.RuleAdjudicated}, fixed)
	p.Append(selector.Result{Text: "only", Source: selector.SourceText, Rule: selector.RuleSingleton, TScore: f(0.7)}, fixed)
	d.Add(p)

	var buf bytes.Buffer
	if err := d.WriteJSONL(&buf); err != nil {
		t.Fatalf("WriteJSONL() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"chosen_text":"<b>A & B</b>"`) {
		t.Errorf("html was escaped: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"v_score":null`) || !strings.Contains(lines[1], `"llm_pick":null`) || !strings.Contains(lines[1], `"backend_id":null`) {
		t.Errorf("absent fields should be null: %s", lines[1])
	}

	recs, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatalf("ReadJSONL() error = %v", err)
	}
	if len(recs) != 2 || *recs[0].LLMPick != "A" || *recs[0].Backend != "mock" || !recs[0].Timestamp.Equal(fixed) {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestStats(t *testing.T) {
	var d Document
	p := NewPage(1)
	p.Append(selector.Result{Source: selector.SourceText}, fixed)
	p.Append(selector.Result{Source: selector.SourceText, Fallback: true}, fixed)
	p.Append(selector.Result{Source: selector.SourceVision}, fixed)
	p.Append(selector.Result{Source: selector.SourceLLM, LLMPick: "B"}, fixed)
	d.Add(p)

	got := d.Stats()
	want := Stats{Segments: 4, Text: 2, Vision: 1, LLM: 1, Fallbacks: 1}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}
