package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/pagemerge/internal/provenance"
	"github.com/jackzampolin/pagemerge/internal/render"
	"github.com/jackzampolin/pagemerge/internal/textlayer"
	"github.com/jackzampolin/pagemerge/internal/vision"
)

// Mode selects which candidates are extracted.
type Mode string

const (
	ModeHybrid     Mode = "hybrid"
	ModeTextOnly   Mode = "text_only"
	ModeVisionOnly Mode = "vision_only"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeHybrid, ModeTextOnly, ModeVisionOnly:
		return m, nil
	case "":
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want hybrid, text_only or vision_only)", s)
	}
}

// ErrPagesFailed is returned alongside a complete Result when some pages
// produced no usable output.
var ErrPagesFailed = errors.New("some pages produced no output")

// TextSource returns the text-layer candidate of a page.
type TextSource interface {
	PageText(ctx context.Context, page int) (string, error)
}

// VisionSource returns the vision candidate of a page.
type VisionSource interface {
	Fetch(ctx context.Context, doc *render.Info, page int) (string, error)
}

// Options control a run.
type Options struct {
	Mode Mode

	// Workers bounds how many pages are in flight.
	Workers int

	// Pages restricts the run to these page numbers. Empty means all.
	Pages []int

	// InflationThreshold enables the vision hallucination guard; see
	// vision.Inflated.
	InflationThreshold float64
}

// Runner processes documents page by page.
type Runner struct {
	engine *Engine
	vision VisionSource
	opts   Options
	logger *slog.Logger
}

// NewRunner creates a Runner. v may be nil in text_only mode.
func NewRunner(engine *Engine, v VisionSource, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	return &Runner{engine: engine, vision: v, opts: opts, logger: logger}
}

// PageFailure reports a page that produced no output although at least one
// candidate was attempted and failed.
type PageFailure struct {
	Page        int    `json:"page" yaml:"page"`
	TextError   string `json:"text_error,omitempty" yaml:"text_error,omitempty"`
	VisionError string `json:"vision_error,omitempty" yaml:"vision_error,omitempty"`
}

// Stats summarizes a run.
type Stats struct {
	Pages           int              `json:"pages" yaml:"pages"`
	PagesFailed     int              `json:"pages_failed" yaml:"pages_failed"`
	EmptyPages      int              `json:"empty_pages" yaml:"empty_pages"`
	TextErrors      int              `json:"text_errors" yaml:"text_errors"`
	VisionErrors    int              `json:"vision_errors" yaml:"vision_errors"`
	VisionDiscarded int              `json:"vision_discarded" yaml:"vision_discarded"`
	Escalations     int              `json:"escalations" yaml:"escalations"`
	Segments        provenance.Stats `json:"segments" yaml:"segments"`
	Duration        time.Duration    `json:"duration" yaml:"duration"`
}

// Result is the outcome of a run. Document holds only fully reconciled
// pages.
type Result struct {
	RunID    string               `json:"run_id" yaml:"run_id"`
	Source   string               `json:"source" yaml:"source"`
	Mode     Mode                 `json:"mode" yaml:"mode"`
	Document *provenance.Document `json:"-" yaml:"-"`
	Stats    Stats                `json:"stats" yaml:"stats"`
	Failures []PageFailure        `json:"failures,omitempty" yaml:"failures,omitempty"`
}

type pageOutcome struct {
	page      *provenance.Page
	failure   *PageFailure
	textErr   bool
	visionErr bool
	discarded bool
}

// Run reconciles doc. text may be nil in vision_only mode.
//
// Pages run concurrently up to Options.Workers and are reassembled in page
// order. When ctx is canceled no new pages are started, pages already
// reconciled are kept, and the context error is returned with the partial
// result. A page that fails on both sides is reported in Result.Failures
// and the run continues; Run then returns ErrPagesFailed with the result.
func (r *Runner) Run(ctx context.Context, doc *render.Info, text TextSource) (*Result, error) {
	if err := r.check(text); err != nil {
		return nil, err
	}
	pages, err := r.pageList(doc.PageCount)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:    uuid.New().String(),
		Source:   doc.Path,
		Mode:     r.opts.Mode,
		Document: &provenance.Document{},
	}
	logger := r.logger.With("run_id", res.RunID, "pdf", doc.Path)
	logger.Info("starting run", "mode", r.opts.Mode, "pages", len(pages), "workers", r.opts.Workers)
	start := time.Now()

	// Index-addressed so completion order never affects output order.
	outcomes := make([]*pageOutcome, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, num := range pages {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := r.processPage(gctx, doc, text, num)
			if err != nil {
				logger.Debug("page abandoned", "page", num, "error", err)
				return nil
			}
			outcomes[i] = out
			return nil
		})
	}
	g.Wait()

	for _, out := range outcomes {
		if out == nil {
			continue
		}
		res.Document.Add(out.page)
		res.Stats.Pages++
		if len(out.page.Records) == 0 {
			res.Stats.EmptyPages++
		}
		if out.textErr {
			res.Stats.TextErrors++
		}
		if out.visionErr {
			res.Stats.VisionErrors++
		}
		if out.discarded {
			res.Stats.VisionDiscarded++
		}
		if out.failure != nil {
			res.Failures = append(res.Failures, *out.failure)
		}
		for _, rec := range out.page.Records {
			if rec.Backend != nil {
				res.Stats.Escalations++
			}
		}
	}
	res.Stats.PagesFailed = len(res.Failures)
	res.Stats.Segments = res.Document.Stats()
	res.Stats.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		logger.Warn("run canceled", "completed_pages", res.Stats.Pages, "error", err)
		return res, err
	}

	logger.Info("run complete",
		"pages", res.Stats.Pages,
		"failed", res.Stats.PagesFailed,
		"segments", res.Stats.Segments.Segments,
		"llm", res.Stats.Segments.LLM,
		"fallbacks", res.Stats.Segments.Fallbacks,
		"duration", res.Stats.Duration,
	)
	if len(res.Failures) > 0 {
		return res, fmt.Errorf("%w: %d of %d", ErrPagesFailed, len(res.Failures), len(pages))
	}
	return res, nil
}

func (r *Runner) check(text TextSource) error {
	if r.opts.Mode != ModeVisionOnly && text == nil {
		return fmt.Errorf("mode %s requires a text source", r.opts.Mode)
	}
	if r.opts.Mode != ModeTextOnly && r.vision == nil {
		return fmt.Errorf("mode %s requires a vision source", r.opts.Mode)
	}
	return nil
}

func (r *Runner) pageList(count int) ([]int, error) {
	if len(r.opts.Pages) == 0 {
		pages := make([]int, count)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}
	for _, p := range r.opts.Pages {
		if p < 1 || p > count {
			return nil, fmt.Errorf("page %d out of range 1-%d", p, count)
		}
	}
	return r.opts.Pages, nil
}

// processPage fetches both candidates concurrently and reconciles them.
// Candidate failures degrade to empty text; only a done context is an
// error.
func (r *Runner) processPage(ctx context.Context, doc *render.Info, text TextSource, num int) (*pageOutcome, error) {
	var (
		tText, vText string
		tErr, vErr   error
		lead         string
		fetch        errgroup.Group
	)
	if r.opts.Mode != ModeVisionOnly {
		fetch.Go(func() error {
			tText, tErr = text.PageText(ctx, num)
			// Pages are reconciled concurrently, so the previous page's
			// assembled output is not known yet; its text layer stands in
			// as the adjudicator's leading context.
			if num > 1 && r.engine.escalates {
				if prev, err := text.PageText(ctx, num-1); err == nil {
					lead = prev
				}
			}
			return nil
		})
	}
	if r.opts.Mode != ModeTextOnly {
		fetch.Go(func() error {
			vText, vErr = r.vision.Fetch(ctx, doc, num)
			return nil
		})
	}
	fetch.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &pageOutcome{}
	if tErr != nil {
		tText = ""
		// A page without a text layer is expected for scans.
		if !errors.Is(tErr, textlayer.ErrNoText) {
			r.logger.Warn("text candidate unavailable", "page", num, "error", tErr)
			out.textErr = true
		}
	}
	if vErr != nil {
		r.logger.Warn("vision candidate unavailable", "page", num, "error", vErr)
		vText = ""
		out.visionErr = true
	}
	if r.opts.Mode == ModeHybrid && vision.Inflated(tText, vText, r.opts.InflationThreshold) {
		r.logger.Warn("discarding inflated vision candidate", "page", num, "text_chars", len(tText), "vision_chars", len(vText))
		vText = ""
		out.discarded = true
	}

	page, err := r.engine.ReconcilePageAfter(ctx, num, lead, tText, vText)
	if err != nil {
		return nil, err
	}
	out.page = page

	// A blank page is not a failure; an empty page with a failed
	// extraction is.
	if len(page.Records) == 0 && (out.textErr || out.visionErr) {
		out.failure = &PageFailure{Page: num}
		if out.textErr {
			out.failure.TextError = tErr.Error()
		}
		if out.visionErr {
			out.failure.VisionError = vErr.Error()
		}
	}
	return out, nil
}
