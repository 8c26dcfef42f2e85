package textlayer

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	hyphenBreak = regexp.MustCompile(`([\p{L}\p{N}_]+)-[ \t]*\r?\n[ \t]*([\p{L}\p{N}_]+)`)
	spaceRun    = regexp.MustCompile(` {2,}`)
	blankRun    = regexp.MustCompile(`\n{3,}`)
)

// Clean applies RepairHyphenation then NormalizeWhitespace.
func Clean(text string) string {
	return NormalizeWhitespace(RepairHyphenation(text))
}

// RepairHyphenation joins words split across a line break by a hyphen.
// Uppercase acronyms keep the hyphen and the break.
func RepairHyphenation(text string) string {
	return hyphenBreak.ReplaceAllStringFunc(text, func(m string) string {
		parts := hyphenBreak.FindStringSubmatch(m)
		if isAcronym(parts[1]) {
			return m
		}
		return parts[1] + parts[2]
	})
}

func isAcronym(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 1
}

// NormalizeWhitespace collapses runs of spaces, trims every line and keeps
// at most one blank line between paragraphs.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", " ")
	text = spaceRun.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
