// Package score assigns a bounded quality score to a segment.
package score

import (
	"strings"
	"unicode"

	"github.com/jackzampolin/pagemerge/internal/segment"
)

// Weights are the coefficients of the linear scoring model.
//
//	score = Alnum*alnum_ratio - Weird*weird_char_rate
//	      + Length*length_score + Structural*structural_bonus
//
// The result is clamped to [0, 1].
type Weights struct {
	Alnum      float64 `mapstructure:"alnum" yaml:"alnum" validate:"gte=0"`
	Weird      float64 `mapstructure:"weird" yaml:"weird" validate:"gte=0"`
	Length     float64 `mapstructure:"length" yaml:"length" validate:"gte=0"`
	Structural float64 `mapstructure:"structural" yaml:"structural" validate:"gte=0"`

	// StructuralBonus is the constant awarded to heading, list and table
	// segments before weighting.
	StructuralBonus float64 `mapstructure:"structural_bonus" yaml:"structural_bonus" validate:"gte=0,lte=1"`

	// Mean token length window (in runes) that earns a full length score.
	TargetTokenMin float64 `mapstructure:"target_token_min" yaml:"target_token_min" validate:"gt=0"`
	TargetTokenMax float64 `mapstructure:"target_token_max" yaml:"target_token_max" validate:"gtefield=TargetTokenMin"`
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{
		Alnum:           0.7,
		Weird:           1.0,
		Length:          0.2,
		Structural:      1.0,
		StructuralBonus: 0.1,
		TargetTokenMin:  3,
		TargetTokenMax:  8,
	}
}

// Scorer scores segments with a fixed set of weights.
type Scorer struct {
	w Weights
}

// New returns a scorer. Zero-valued token window bounds fall back to the
// defaults.
func New(w Weights) *Scorer {
	d := DefaultWeights()
	if w.TargetTokenMin <= 0 {
		w.TargetTokenMin = d.TargetTokenMin
	}
	if w.TargetTokenMax < w.TargetTokenMin {
		w.TargetTokenMax = w.TargetTokenMin
	}
	return &Scorer{w: w}
}

// Score returns the quality score of seg in [0, 1].
func (s *Scorer) Score(seg segment.Segment) float64 {
	f := Measure(seg.Text)
	bonus := 0.0
	if seg.Type.Structural() {
		bonus = s.w.StructuralBonus
	}
	v := s.w.Alnum*f.AlnumRatio -
		s.w.Weird*f.WeirdRate +
		s.w.Length*s.lengthScore(f.MeanTokenLen) +
		s.w.Structural*bonus
	return clamp(v)
}

// lengthScore is 1 inside the target window and falls off linearly on
// either side, reaching 0 at zero length and at twice the upper bound.
func (s *Scorer) lengthScore(mean float64) float64 {
	switch {
	case mean <= 0:
		return 0
	case mean < s.w.TargetTokenMin:
		return mean / s.w.TargetTokenMin
	case mean <= s.w.TargetTokenMax:
		return 1
	default:
		return clamp(1 - (mean-s.w.TargetTokenMax)/s.w.TargetTokenMax)
	}
}

// Features are the raw text measurements behind a score.
type Features struct {
	Runes        int
	AlnumRatio   float64
	WeirdRate    float64
	MeanTokenLen float64
}

// Measure computes scoring features for text. Ratios are over all runes,
// whitespace included.
func Measure(text string) Features {
	var f Features
	alnum, weird := 0, 0
	for _, r := range text {
		f.Runes++
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			alnum++
		case isWeird(r):
			weird++
		}
	}
	if f.Runes == 0 {
		return f
	}
	f.AlnumRatio = float64(alnum) / float64(f.Runes)
	f.WeirdRate = float64(weird) / float64(f.Runes)

	tokens := strings.Fields(text)
	if len(tokens) > 0 {
		total := 0
		for _, tok := range tokens {
			total += len([]rune(tok))
		}
		f.MeanTokenLen = float64(total) / float64(len(tokens))
	}
	return f
}

// isWeird reports replacement characters, control characters other than
// ordinary whitespace, and private-use code points. These are the usual
// residue of a broken font encoding in the text layer.
func isWeird(r rune) bool {
	switch {
	case r == unicode.ReplacementChar:
		return true
	case r == '\n' || r == '\t' || r == '\r':
		return false
	case unicode.IsControl(r):
		return true
	case unicode.In(r, unicode.Co):
		return true
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
