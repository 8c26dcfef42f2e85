// Package pipeline reconciles the text-layer and vision candidates of every
// page of a document and assembles the result in page order.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackzampolin/pagemerge/internal/adjudicate"
	"github.com/jackzampolin/pagemerge/internal/align"
	"github.com/jackzampolin/pagemerge/internal/provenance"
	"github.com/jackzampolin/pagemerge/internal/score"
	"github.com/jackzampolin/pagemerge/internal/segment"
	"github.com/jackzampolin/pagemerge/internal/selector"
)

// DefaultContextChars is how much surrounding text the adjudicator sees on
// each side of an ambiguous pair.
const DefaultContextChars = 200

// EngineConfig wires an Engine.
type EngineConfig struct {
	Weights   score.Weights
	Alignment align.Options
	Selection selector.Config

	// ContextChars bounds context_before and context_after, in runes.
	ContextChars int

	// Escalator resolves ambiguous pairs. Nil runs heuristics only.
	Escalator selector.Escalator

	// Clock stamps provenance records. Defaults to time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// Engine reconciles one page at a time. It holds no per-page state and is
// safe for concurrent use.
type Engine struct {
	align     align.Options
	selector  *selector.Selector
	escalates bool
	context   int
	clock     func() time.Time
	logger    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	n := cfg.ContextChars
	if n <= 0 {
		n = DefaultContextChars
	}
	return &Engine{
		align:    cfg.Alignment,
		selector:  selector.New(cfg.Selection, score.New(cfg.Weights), cfg.Escalator, logger),
		escalates: cfg.Selection.Adjudicate && cfg.Escalator != nil,
		context:   n,
		clock:     clock,
		logger:    logger,
	}
}

// ReconcilePage segments both candidates, aligns them, selects a candidate
// for every pair and records the outcome. Either candidate may be empty.
//
// If ctx is done by the time the page is reconciled the partial page is
// discarded and ctx.Err() returned, so that no records are emitted for a
// page whose escalations were cut short.
func (e *Engine) ReconcilePage(ctx context.Context, num int, tText, vText string) (*provenance.Page, error) {
	return e.ReconcilePageAfter(ctx, num, "", tText, vText)
}

// ReconcilePageAfter is ReconcilePage for a page preceded by lead in the
// document. lead extends context_before until the page's own output is
// ContextChars long.
func (e *Engine) ReconcilePageAfter(ctx context.Context, num int, lead, tText, vText string) (*provenance.Page, error) {
	lead = adjudicate.Tail(lead, e.context)
	ts := segment.Split(tText)
	vs := segment.Split(vText)
	pairs := align.Align(ts, vs, e.align)

	page := provenance.NewPage(num)
	for i, p := range pairs {
		prior := page.Text()
		if lead != "" && utf8.RuneCountInString(prior) < e.context {
			if prior == "" {
				prior = lead
			} else {
				prior = lead + "\n\n" + prior
			}
		}
		before := adjudicate.Tail(prior, e.context)
		after := adjudicate.Head(followingText(pairs[i+1:], e.context), e.context)
		res := e.selector.Select(ctx, p, before, after)
		page.Append(res, e.clock())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.Debug("page reconciled",
		"page", num,
		"t_segments", len(ts),
		"v_segments", len(vs),
		"pairs", len(pairs),
	)
	return page, nil
}

// followingText joins the candidate text of the pairs after the current
// one until at least n runes are collected. The text-layer side is used
// where present since it is the default choice.
func followingText(pairs []align.Pair, n int) string {
	var b strings.Builder
	for _, p := range pairs {
		if b.Len() >= n*4 {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if p.T != nil {
			b.WriteString(p.T.Text)
		} else {
			b.WriteString(p.V.Text)
		}
	}
	return b.String()
}
