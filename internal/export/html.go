// Package export writes reconciled documents to disk and renders an HTML
// preview that shows where every segment came from.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jackzampolin/pagemerge/internal/provenance"
	"github.com/jackzampolin/pagemerge/internal/selector"
)

// Previewer renders documents to standalone HTML. Candidate text comes
// from external models, so every rendered segment is sanitized.
type Previewer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewPreviewer creates a Previewer with GitHub-flavored Markdown enabled.
func NewPreviewer() *Previewer {
	return &Previewer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

// Fragment renders one Markdown snippet to sanitized HTML.
func (p *Previewer) Fragment(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := p.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(p.policy.SanitizeBytes(buf.Bytes())), nil
}

type previewSegment struct {
	Class string
	Label string
	Title string
	HTML  template.HTML
}

type previewPage struct {
	Num      int
	Segments []previewSegment
}

type previewData struct {
	Title string
	Stats provenance.Stats
	Pages []previewPage
}

// Render builds the preview page for doc.
func (p *Previewer) Render(doc *provenance.Document, title string) ([]byte, error) {
	data := previewData{Title: title, Stats: doc.Stats()}
	for _, page := range doc.Pages() {
		pp := previewPage{Num: page.Num}
		for _, rec := range page.Records {
			frag, err := p.Fragment(rec.ChosenText)
			if err != nil {
				return nil, fmt.Errorf("page %d segment %d: %w", rec.PageNum, rec.SegmentIdx, err)
			}
			pp.Segments = append(pp.Segments, previewSegment{
				Class: segmentClass(rec),
				Label: strings.TrimSuffix(strings.TrimPrefix(rec.Marker(), "<!-- src:"), " -->"),
				Title: segmentTitle(rec),
				HTML:  frag,
			})
		}
		data.Pages = append(data.Pages, pp)
	}

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render preview: %w", err)
	}
	return buf.Bytes(), nil
}

func segmentClass(rec provenance.Record) string {
	class := "seg src-" + strings.ToLower(string(rec.Source))
	if rec.Fallback {
		class += " fallback"
	}
	return class
}

func segmentTitle(rec provenance.Record) string {
	var parts []string
	parts = append(parts, "rule: "+string(rec.Rule))
	if rec.TScore != nil {
		parts = append(parts, fmt.Sprintf("T=%.3f", *rec.TScore))
	}
	if rec.VScore != nil {
		parts = append(parts, fmt.Sprintf("V=%.3f", *rec.VScore))
	}
	if rec.Backend != nil {
		parts = append(parts, "backend: "+*rec.Backend)
	}
	if rec.Source == selector.SourceLLM && rec.LLMPick != nil {
		parts = append(parts, "pick: "+*rec.LLMPick)
	}
	return strings.Join(parts, ", ")
}

var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 52em; margin: 2em auto; line-height: 1.5; }
.page { border-top: 1px solid #ccc; margin-top: 2em; }
.page > h6 { color: #888; margin: .5em 0; }
.seg { position: relative; padding: .25em .75em; margin: .5em 0; border-left: 4px solid; }
.seg .src { position: absolute; right: .5em; top: .25em; font-size: .75em; color: #666; }
.src-t { border-color: #4a90d9; }
.src-v { border-color: #7cb342; }
.src-llm { border-color: #ff9800; }
.fallback { border-style: dashed; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: .25em .5em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Stats.Segments}} segments: {{.Stats.Text}} text layer, {{.Stats.Vision}} vision, {{.Stats.LLM}} adjudicated, {{.Stats.Fallbacks}} fallbacks</p>
{{range .Pages}}<div class="page" id="page-{{.Num}}">
<h6>Page {{.Num}}</h6>
{{range .Segments}}<div class="{{.Class}}" title="{{.Title}}"><span class="src">{{.Label}}</span>
{{.HTML}}</div>
{{end}}</div>
{{end}}</body>
</html>
`))
