package align

import (
	"math/bits"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	lineMarkup = regexp.MustCompile(`(?m)^\s*(#{1,6}\s+|[-*+]\s+|\d+[.)]\s+|>\s*)`)
	inlineMark = regexp.MustCompile("[*_`|~]+")
	tableRule  = regexp.MustCompile(`(?m)^[\s:|-]+$`)
)

// Normalize reduces text to a comparison form: NFKC-folded, lower-cased,
// Markdown markup removed and whitespace collapsed to single spaces.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = tableRule.ReplaceAllString(s, " ")
	s = lineMarkup.ReplaceAllString(s, "")
	s = inlineMark.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// Ratio is the normalized indel similarity of a and b: twice the length of
// their longest common subsequence over their combined length. It is 1 for
// identical inputs (including two empty ones) and 0 when nothing is shared.
func Ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(lcs(a, b)) / float64(total)
}

// RatioString is Ratio over the normalized forms of a and b.
func RatioString(a, b string) float64 {
	return Ratio([]rune(Normalize(a)), []rune(Normalize(b)))
}

// maxRatio is the best Ratio two inputs of these lengths could reach.
func maxRatio(la, lb int) float64 {
	if la+lb == 0 {
		return 1
	}
	return 2 * float64(min(la, lb)) / float64(la+lb)
}

// lcs computes the longest common subsequence length with the bit-parallel
// recurrence of Hyyrö (2004): the shorter input is the bit pattern and
// every rune of the longer one updates all 64-bit blocks at once, so the
// cost is O(⌈|short|/64⌉·|long|) time and O(|short|) memory.
func lcs(a, b []rune) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(a) == 0 {
		return 0
	}

	words := (len(a) + 63) / 64
	masks := make(map[rune][]uint64)
	for i, r := range a {
		m, ok := masks[r]
		if !ok {
			m = make([]uint64, words)
			masks[r] = m
		}
		m[i/64] |= 1 << (i % 64)
	}

	s := make([]uint64, words)
	for i := range s {
		s[i] = ^uint64(0)
	}
	for _, r := range b {
		m, ok := masks[r]
		if !ok {
			continue
		}
		var carry uint64
		for w := range s {
			u := s[w] & m[w]
			sum, c := bits.Add64(s[w], u, carry)
			carry = c
			s[w] = sum | (s[w] &^ u)
		}
	}

	n := 0
	for w, v := range s {
		unset := ^v
		if w == words-1 && len(a)%64 != 0 {
			unset &= 1<<(len(a)%64) - 1
		}
		n += bits.OnesCount64(unset)
	}
	return n
}
