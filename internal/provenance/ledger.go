package provenance

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/jackzampolin/pagemerge/internal/selector"
)

// Options controls document assembly.
type Options struct {
	// Markers emits a source comment before each segment.
	Markers bool `mapstructure:"markers" yaml:"markers"`

	// PageMarkers emits a comment before each page.
	PageMarkers bool `mapstructure:"page_markers" yaml:"page_markers"`
}

// Page collects the records of one page in output order. A Page is built
// by a single goroutine and handed to a Document once complete.
type Page struct {
	Num     int
	Records []Record

	plain strings.Builder
}

// NewPage creates an empty page.
func NewPage(num int) *Page {
	return &Page{Num: num}
}

// Append records r as the next segment of the page and returns the record.
func (p *Page) Append(r selector.Result, at time.Time) Record {
	rec := FromResult(p.Num, len(p.Records), r, at)
	p.Records = append(p.Records, rec)
	if p.plain.Len() > 0 {
		p.plain.WriteString("\n\n")
	}
	p.plain.WriteString(rec.ChosenText)
	return rec
}

// Text returns the page's chosen text without markers.
func (p *Page) Text() string {
	return p.plain.String()
}

// Markdown assembles the page.
func (p *Page) Markdown(opts Options) string {
	var b strings.Builder
	p.writeTo(&b, opts)
	return b.String()
}

func (p *Page) writeTo(b *strings.Builder, opts Options) {
	if opts.PageMarkers {
		b.WriteString(PageMarker(p.Num))
		if len(p.Records) > 0 {
			b.WriteString("\n\n")
		}
	}
	for i, rec := range p.Records {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if opts.Markers {
			b.WriteString(rec.Marker())
			b.WriteByte('\n')
		}
		b.WriteString(rec.ChosenText)
	}
}

// Document is the ordered set of reconciled pages.
type Document struct {
	pages []*Page
}

// Add inserts a page, keeping pages ordered by number. Adding a page number
// twice replaces the earlier page.
func (d *Document) Add(p *Page) {
	i, found := slices.BinarySearchFunc(d.pages, p.Num, func(e *Page, num int) int {
		return e.Num - num
	})
	if found {
		d.pages[i] = p
		return
	}
	d.pages = slices.Insert(d.pages, i, p)
}

// Pages returns the pages in order.
func (d *Document) Pages() []*Page {
	return d.pages
}

// Records returns every record ordered by (page_num, segment_idx).
func (d *Document) Records() []Record {
	var out []Record
	for _, p := range d.pages {
		out = append(out, p.Records...)
	}
	return out
}

// Markdown assembles the document. Pages are separated by a blank line and
// pages without segments contribute nothing unless page markers are on.
func (d *Document) Markdown(opts Options) string {
	var b strings.Builder
	for _, p := range d.pages {
		if len(p.Records) == 0 && !opts.PageMarkers {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		p.writeTo(&b, opts)
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteJSONL writes one JSON object per record in output order.
func (d *Document) WriteJSONL(w io.Writer) error {
	return WriteJSONL(w, d.Records())
}

// Stats summarizes the document's records.
func (d *Document) Stats() Stats {
	var s Stats
	for _, p := range d.pages {
		for _, rec := range p.Records {
			s.Add(rec)
		}
	}
	return s
}

// WriteJSONL writes records as JSON lines. HTML is not escaped so that
// chosen_text round-trips byte for byte.
func WriteJSONL(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record %d/%d: %w", rec.PageNum, rec.SegmentIdx, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL reads records written by WriteJSONL.
func ReadJSONL(r io.Reader) ([]Record, error) {
	var out []Record
	dec := json.NewDecoder(r)
	for {
		var rec Record
		err := dec.Decode(&rec)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}

// Stats counts segments by source.
type Stats struct {
	Segments  int `json:"segments" yaml:"segments"`
	Text      int `json:"text" yaml:"text"`
	Vision    int `json:"vision" yaml:"vision"`
	LLM       int `json:"llm" yaml:"llm"`
	Fallbacks int `json:"fallbacks" yaml:"fallbacks"`
}

// Add counts one record.
func (s *Stats) Add(rec Record) {
	s.Segments++
	switch rec.Source {
	case selector.SourceText:
		s.Text++
	case selector.SourceVision:
		s.Vision++
	case selector.SourceLLM:
		s.LLM++
	}
	if rec.Fallback {
		s.Fallbacks++
	}
}
