// Package segment splits page text into typed Markdown blocks.
//
// Both candidate extractions of a page (the embedded text layer and the
// vision model output) pass through the same segmenter so that the aligner
// compares like with like.
package segment

import (
	"regexp"
	"strings"
)

// Type is the structural class of a segment.
type Type string

const (
	Heading   Type = "heading"
	List      Type = "list"
	Table     Type = "table"
	Paragraph Type = "paragraph"
)

// Structural reports whether the type carries Markdown structure
// (heading, list or table).
func (t Type) Structural() bool {
	return t == Heading || t == List || t == Table
}

// Segment is one block of page text.
type Segment struct {
	Type  Type   `json:"type"`
	Text  string `json:"text"`
	Index int    `json:"order_index"`
}

var (
	atxHeading    = regexp.MustCompile(`^#{1,6}\s+\S`)
	setextUnder   = regexp.MustCompile(`^(=+|-+)\s*$`)
	bulletMarker  = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+\S`)
	blankLine     = regexp.MustCompile(`^\s*$`)
	lineSeparator = regexp.MustCompile(`\r\n?`)
)

// minSetextUnderline is the shortest run of '=' or '-' treated as a Setext
// underline. Shorter runs are ordinary text ("--", "=").
const minSetextUnderline = 3

// Split segments text into an ordered list of typed blocks.
//
// Blocks are runs of non-blank lines. Inside a block, structure is detected
// in priority order: a heading line (ATX "#" marker, or a line followed by a
// Setext underline), then a run of two or more table rows (lines containing
// at least two '|'), then a run of two or more bullet or numbered lines.
// Remaining lines form paragraphs. Detection never consults neighbouring
// blocks, so Split is a pure function of its input.
//
// Index values are contiguous from zero in source order. Empty or
// whitespace-only input yields no segments.
func Split(text string) []Segment {
	text = lineSeparator.ReplaceAllString(text, "\n")

	var (
		out   []Segment
		block []string
	)
	emit := func(t Type, lines []string) {
		out = append(out, Segment{Type: t, Text: strings.Join(lines, "\n"), Index: len(out)})
	}
	flush := func() {
		if len(block) == 0 {
			return
		}
		splitBlock(block, emit)
		block = block[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if blankLine.MatchString(line) {
			flush()
			continue
		}
		block = append(block, strings.TrimRight(line, " \t"))
	}
	flush()
	return out
}

func splitBlock(lines []string, emit func(Type, []string)) {
	var para []string
	flushPara := func() {
		if len(para) > 0 {
			emit(Paragraph, para)
			para = nil
		}
	}

	for i := 0; i < len(lines); {
		if n := headingAt(lines, i); n > 0 {
			flushPara()
			emit(Heading, trimLines(lines[i:i+n]))
			i += n
			continue
		}
		if n := runLength(lines, i, isTableRow); n >= 2 {
			flushPara()
			emit(Table, trimLines(lines[i:i+n]))
			i += n
			continue
		}
		if n := runLength(lines, i, isListItem); n >= 2 {
			flushPara()
			emit(List, lines[i:i+n])
			i += n
			continue
		}
		para = append(para, strings.TrimSpace(lines[i]))
		i++
	}
	flushPara()
}

// headingAt returns the number of lines the heading starting at i spans,
// or zero.
func headingAt(lines []string, i int) int {
	line := strings.TrimSpace(lines[i])
	if atxHeading.MatchString(line) {
		return 1
	}
	if i+1 < len(lines) && isSetextUnderline(lines[i+1]) && !isListItem(lines[i]) && !isTableRow(lines[i]) {
		return 2
	}
	return 0
}

func isSetextUnderline(line string) bool {
	line = strings.TrimSpace(line)
	return len(line) >= minSetextUnderline && setextUnder.MatchString(line)
}

func isTableRow(line string) bool {
	return strings.Count(line, "|") >= 2
}

func isListItem(line string) bool {
	return bulletMarker.MatchString(line)
}

func runLength(lines []string, start int, match func(string) bool) int {
	n := 0
	for start+n < len(lines) && match(lines[start+n]) {
		n++
	}
	return n
}

func trimLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSpace(l)
	}
	return out
}
