package vision

import "unicode/utf8"

// Inflated reports whether a vision reply looks like a hallucination
// relative to the page's text layer: on a near-blank page (text under 100
// runes) a reply over 1000 runes is inflated, otherwise a reply longer than
// threshold times the text is. An empty text layer gives no baseline, so
// scanned pages are never judged. threshold <= 0 disables the check.
func Inflated(text, vision string, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	t := utf8.RuneCountInString(text)
	v := utf8.RuneCountInString(vision)
	if t == 0 {
		return false
	}
	if t < 100 && v > 1000 {
		return true
	}
	return float64(v) > float64(t)*threshold
}
