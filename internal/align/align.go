// Package align pairs text-layer segments with vision segments.
package align

import (
	"github.com/jackzampolin/pagemerge/internal/segment"
)

// Options configure the aligner.
type Options struct {
	// Window is how many unconsumed vision segments ahead of the cursor
	// are considered for each text segment.
	Window int `mapstructure:"window" yaml:"window" validate:"gte=1"`

	// MinSimilarity is the similarity a candidate must exceed to match.
	MinSimilarity float64 `mapstructure:"min_similarity" yaml:"min_similarity" validate:"gte=0,lte=1"`
}

// DefaultOptions returns the aligner defaults.
func DefaultOptions() Options {
	return Options{Window: 3, MinSimilarity: 0.5}
}

// Pair is one aligned position. At least one of T and V is non-nil.
type Pair struct {
	T          *segment.Segment
	V          *segment.Segment
	Similarity float64
}

// Singleton reports whether only one side is present.
func (p Pair) Singleton() bool {
	return p.T == nil || p.V == nil
}

// Align walks the text-layer segments in order and, for each one, looks for
// the most similar vision segment among the next Window unconsumed vision
// segments. A match consumes the vision segment; vision segments skipped
// over on the way to it are emitted as vision-only pairs first so output
// order follows both inputs. Text segments without a match above
// MinSimilarity are emitted as text-only pairs. Trailing vision segments
// are emitted as vision-only pairs.
//
// Ties go to the lowest vision index. Every input segment appears in
// exactly one pair.
func Align(ts, vs []segment.Segment, opts Options) []Pair {
	if opts.Window < 1 {
		opts.Window = DefaultOptions().Window
	}

	tn := normalizeAll(ts)
	vn := normalizeAll(vs)

	pairs := make([]Pair, 0, max(len(ts), len(vs)))
	cursor := 0
	for i := range ts {
		best, bestSim := -1, 0.0
		end := min(cursor+opts.Window, len(vs))
		for j := cursor; j < end; j++ {
			if maxRatio(len(tn[i]), len(vn[j])) <= max(opts.MinSimilarity, bestSim) {
				continue
			}
			sim := Ratio(tn[i], vn[j])
			if sim > opts.MinSimilarity && sim > bestSim {
				best, bestSim = j, sim
			}
		}

		if best < 0 {
			pairs = append(pairs, Pair{T: &ts[i]})
			continue
		}
		for j := cursor; j < best; j++ {
			pairs = append(pairs, Pair{V: &vs[j]})
		}
		pairs = append(pairs, Pair{T: &ts[i], V: &vs[best], Similarity: bestSim})
		cursor = best + 1
	}
	for j := cursor; j < len(vs); j++ {
		pairs = append(pairs, Pair{V: &vs[j]})
	}
	return pairs
}

func normalizeAll(segs []segment.Segment) [][]rune {
	out := make([][]rune, len(segs))
	for i, s := range segs {
		out[i] = []rune(Normalize(s.Text))
	}
	return out
}
