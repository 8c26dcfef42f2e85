// Package selector decides which candidate represents each aligned pair.
package selector

import (
	"context"
	"log/slog"
	"math"
	"unicode/utf8"

	"github.com/jackzampolin/pagemerge/internal/adjudicate"
	"github.com/jackzampolin/pagemerge/internal/align"
	"github.com/jackzampolin/pagemerge/internal/providers"
	"github.com/jackzampolin/pagemerge/internal/segment"
)

// Source identifies where chosen text came from.
type Source string

const (
	SourceText   Source = "T"
	SourceVision Source = "V"
	SourceLLM    Source = "LLM"
)

// Rule names the decision rule that produced a result.
type Rule string

const (
	RuleSingleton   Rule = "singleton"
	RuleAdjudicated Rule = "adjudicated"
	RuleStructural  Rule = "structural"
	RuleScoreMargin Rule = "score_margin"
	RuleDefault     Rule = "default_text"
)

// Config holds the selection thresholds.
type Config struct {
	// AmbiguityBand is the score difference below which a pair with
	// diverging lengths is escalated.
	AmbiguityBand float64 `mapstructure:"ambiguity_band" yaml:"ambiguity_band" validate:"gte=0,lte=1"`

	// ScoreThreshold is the margin one score needs over the other to win
	// outright.
	ScoreThreshold float64 `mapstructure:"score_threshold" yaml:"score_threshold" validate:"gte=0,lte=1"`

	// LengthRatioThreshold is the max/min rune-length ratio above which
	// the candidates are considered to disagree on content.
	LengthRatioThreshold float64 `mapstructure:"length_ratio_threshold" yaml:"length_ratio_threshold" validate:"gte=1"`

	// Adjudicate enables escalation of ambiguous pairs.
	Adjudicate bool `mapstructure:"adjudicate" yaml:"adjudicate"`
}

// DefaultConfig returns the selection defaults.
func DefaultConfig() Config {
	return Config{
		AmbiguityBand:        0.05,
		ScoreThreshold:       0.15,
		LengthRatioThreshold: 1.5,
		Adjudicate:           true,
	}
}

// Scorer scores one segment.
type Scorer interface {
	Score(seg segment.Segment) float64
}

// Escalator resolves ambiguous pairs. *adjudicate.Client implements it.
type Escalator interface {
	Adjudicate(ctx context.Context, req providers.AdjudicationRequest) (*adjudicate.Verdict, error)
	Backend() string
}

// Result is the decision for one pair.
type Result struct {
	Text   string
	Source Source
	Rule   Rule

	// TScore and VScore are nil when that side is absent.
	TScore *float64
	VScore *float64

	// LLMPick is "A" or "B" when an adjudicator decided.
	LLMPick string

	// Backend is the adjudicator consulted, if any, including on failure.
	Backend string

	// Fallback is set when an escalation failed and a deterministic rule
	// decided instead.
	Fallback bool
}

// Selector applies the decision rules to aligned pairs.
type Selector struct {
	cfg       Config
	scorer    Scorer
	escalator Escalator
	logger    *slog.Logger
}

// New creates a Selector. escalator may be nil, which behaves as if
// adjudication were disabled.
func New(cfg Config, scorer Scorer, escalator Escalator, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Selector{cfg: cfg, scorer: scorer, escalator: escalator, logger: logger}
}

// Select decides pair p. before and after are the context strings handed
// to the adjudicator if the pair is escalated.
//
// Rules, in order:
//  1. A one-sided pair takes the present side.
//  2. Scores within AmbiguityBand with a length ratio above
//     LengthRatioThreshold are escalated. A failed escalation falls
//     through to rules 3-5 with Fallback set.
//  3. A structural vision segment beats a non-structural text segment.
//  4. A score lead above ScoreThreshold wins.
//  5. Otherwise the text layer wins.
func (s *Selector) Select(ctx context.Context, p align.Pair, before, after string) Result {
	switch {
	case p.T == nil && p.V == nil:
		return Result{Rule: RuleSingleton, Source: SourceText}
	case p.V == nil:
		ts := s.scorer.Score(*p.T)
		return Result{Text: p.T.Text, Source: SourceText, Rule: RuleSingleton, TScore: &ts}
	case p.T == nil:
		vs := s.scorer.Score(*p.V)
		return Result{Text: p.V.Text, Source: SourceVision, Rule: RuleSingleton, VScore: &vs}
	}

	ts := s.scorer.Score(*p.T)
	vs := s.scorer.Score(*p.V)
	res := Result{TScore: &ts, VScore: &vs}

	if s.ambiguous(*p.T, *p.V, ts, vs) && s.cfg.Adjudicate && s.escalator != nil {
		res.Backend = s.escalator.Backend()
		verdict, err := s.escalator.Adjudicate(ctx, providers.AdjudicationRequest{
			ContextBefore: before,
			CandidateA:    p.T.Text,
			CandidateB:    p.V.Text,
			ContextAfter:  after,
			Deterministic: true,
		})
		if err == nil {
			res.Text = verdict.Text
			res.Source = SourceLLM
			res.Rule = RuleAdjudicated
			res.LLMPick = verdict.Pick
			res.Backend = verdict.Backend
			return res
		}
		s.logger.Debug("falling back to deterministic selection", "error", err)
		res.Fallback = true
	}

	switch {
	case p.V.Type.Structural() && !p.T.Type.Structural():
		res.Text, res.Source, res.Rule = p.V.Text, SourceVision, RuleStructural
	case math.Abs(ts-vs) > s.cfg.ScoreThreshold:
		res.Rule = RuleScoreMargin
		if ts > vs {
			res.Text, res.Source = p.T.Text, SourceText
		} else {
			res.Text, res.Source = p.V.Text, SourceVision
		}
	default:
		res.Text, res.Source, res.Rule = p.T.Text, SourceText, RuleDefault
	}
	return res
}

// ambiguous reports whether a two-sided pair should be escalated.
func (s *Selector) ambiguous(t, v segment.Segment, ts, vs float64) bool {
	return math.Abs(ts-vs) < s.cfg.AmbiguityBand && LengthRatio(t.Text, v.Text) > s.cfg.LengthRatioThreshold
}

// LengthRatio is max(len)/max(1, min(len)) over rune counts.
func LengthRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	lo, hi := min(la, lb), max(la, lb)
	return float64(hi) / float64(max(1, lo))
}
