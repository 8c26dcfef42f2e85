package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagemerge/internal/adjudicate"
	"github.com/jackzampolin/pagemerge/internal/cache"
	"github.com/jackzampolin/pagemerge/internal/config"
	"github.com/jackzampolin/pagemerge/internal/export"
	"github.com/jackzampolin/pagemerge/internal/home"
	"github.com/jackzampolin/pagemerge/internal/logging"
	"github.com/jackzampolin/pagemerge/internal/pipeline"
	"github.com/jackzampolin/pagemerge/internal/providers"
	"github.com/jackzampolin/pagemerge/internal/render"
	"github.com/jackzampolin/pagemerge/internal/report"
	"github.com/jackzampolin/pagemerge/internal/selector"
	"github.com/jackzampolin/pagemerge/internal/textlayer"
	"github.com/jackzampolin/pagemerge/internal/vision"
)

// app holds what every processing command needs. Providers and the cache
// live as long as the process so that rate limits and single-flight
// deduplication span documents in watch mode.
type app struct {
	home     *home.Dir
	config   *config.Manager
	logger   *slog.Logger
	registry *providers.Registry
	cache    *cache.Cache
	format   report.Format

	logCloser io.Closer
}

// newApp loads config and sets up logging. Providers and cache are opened
// by open.
func newApp() (*app, error) {
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(config.Options{
		ConfigFile: cfgFile,
		SearchDir:  h.Path(),
		EnvFile:    h.EnvPath(),
	})
	if err != nil {
		return nil, err
	}

	logOpts := mgr.Get().Log
	if logLevel != "" {
		logOpts.Level = logLevel
	}
	if logFile != "" {
		logOpts.File = logFile
	}
	logger, closer, err := logging.New(logOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	slog.SetDefault(logger)
	mgr.SetLogger(logger)
	if f := mgr.File(); f != "" {
		logger.Debug("loaded config", "file", f)
	}

	return &app{home: h, config: mgr, logger: logger, format: format, logCloser: closer}, nil
}

// open builds the provider registry and the cache.
func (a *app) open(ctx context.Context, noCache bool) error {
	cfg := a.config.Get()

	a.registry = providers.NewRegistry()
	a.registry.SetLogger(a.logger)
	a.registry.Reload(cfg.ToProviderRegistryConfig())

	if noCache {
		return nil
	}
	cacheCfg := cfg.Cache
	if cacheCfg.Dir == "" {
		cacheCfg.Dir = a.home.CacheDir()
	}
	c, err := cache.Open(ctx, cacheCfg, a.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	a.cache = c
	return nil
}

func (a *app) Close() error {
	errs := []error{a.cache.Close()}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}

// runOptions are per-invocation overrides of the config.
type runOptions struct {
	mode          string
	workers       int
	pages         []int
	noAdjudicator bool
	timeout       time.Duration
	targets       export.Targets
}

// process reconciles one PDF and writes its outputs. Nothing is written when
// the run is canceled. The summary is returned even when err is non-nil.
func (a *app) process(ctx context.Context, path string, ro runOptions) (report.Summary, error) {
	cfg := a.config.Get()

	modeName := cfg.Mode
	if ro.mode != "" {
		modeName = ro.mode
	}
	mode, err := pipeline.ParseMode(modeName)
	if err != nil {
		return report.Summary{Source: path}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	needAdjudicator := !ro.noAdjudicator
	check := *cfg
	check.Selection.Adjudicate = cfg.Selection.Adjudicate && needAdjudicator
	if err := check.RequireProviders(string(mode)); err != nil {
		return report.Summary{Source: path, Mode: mode}, err
	}

	if ro.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ro.timeout)
		defer cancel()
	}
	logger := a.logger.With("pdf", filepath.Base(path))

	info, err := render.Inspect(path)
	if err != nil {
		return report.Summary{Source: path, Mode: mode}, err
	}

	runner, err := a.runner(cfg, mode, ro, check.Selection.Adjudicate, logger)
	if err != nil {
		return report.Summary{Source: path, Mode: mode}, err
	}

	var text pipeline.TextSource
	if mode != pipeline.ModeVisionOnly {
		extractor := textlayer.NewExtractor(textlayer.Config{Raw: cfg.Text.Raw, Logger: logger})
		doc, err := extractor.Open(path)
		if err != nil {
			logger.Warn("text layer unreadable", "error", err)
			text = unreadable{err: err}
		} else {
			defer doc.Close()
			text = doc
		}
	}

	res, runErr := runner.Run(ctx, info, text)
	if res == nil {
		return report.Summary{Source: path, Mode: mode}, runErr
	}

	targets := ro.targets
	if targets.Markdown == "" {
		targets.Markdown, _ = home.OutputPaths(path)
	}
	if targets.Provenance == "" {
		_, targets.Provenance = home.OutputPaths(path)
	}
	if targets.HTML == "" && cfg.Output.HTML {
		targets.HTML = targets.Markdown[:len(targets.Markdown)-len(filepath.Ext(targets.Markdown))] + ".html"
	}

	var out report.Outputs
	if ctx.Err() == nil {
		if err := export.Write(res.Document, targets, cfg.Output.Options); err != nil {
			return report.Summarize(res, err, out), err
		}
		out = report.Outputs{Markdown: targets.Markdown, Provenance: targets.Provenance, HTML: targets.HTML}
	}

	summary := report.Summarize(res, runErr, out)
	if a.cache != nil {
		hits, misses := a.cache.Stats()
		summary.Cache = &report.CacheStats{Hits: hits, Misses: misses}
	}
	return summary, runErr
}

// runner wires the reconciliation engine for one document from the
// current config.
func (a *app) runner(cfg *config.Config, mode pipeline.Mode, ro runOptions, adjudicateOn bool, logger *slog.Logger) (*pipeline.Runner, error) {
	policy := cfg.RetryPolicy(logger)

	var fetcher pipeline.VisionSource
	if mode != pipeline.ModeTextOnly {
		backend, err := a.registry.GetVision(cfg.Vision.Backend)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		renderer := render.NewPdftoppm(cfg.Render.Tool, logger)
		if !renderer.Available() {
			return nil, fmt.Errorf("%w: %s not found in PATH (install poppler-utils)", config.ErrConfiguration, cfg.Render.Tool)
		}
		fetcher = vision.NewFetcher(vision.FetcherConfig{
			Backend:  backend,
			Renderer: renderer,
			Render:   cfg.Render,
			Cache:    a.cache,
			Policy:   policy,
			Vision:   cfg.Vision,
			Logger:   logger,
		})
	}

	sel := cfg.Selection.Config
	sel.Adjudicate = adjudicateOn && mode == pipeline.ModeHybrid
	var esc selector.Escalator
	if sel.Adjudicate {
		adj, err := a.registry.GetAdjudicator(cfg.Adjudicator.Provider)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		esc = pipeline.Bound(adjudicate.New(adj, policy, logger), cfg.Concurrency.Adjudication)
	}

	clock, err := recordClock(os.Getenv("SOURCE_DATE_EPOCH"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	engine := pipeline.NewEngine(pipeline.EngineConfig{
		Weights:      cfg.Scoring,
		Alignment:    cfg.Alignment,
		Selection:    sel,
		ContextChars: cfg.Selection.ContextChars,
		Escalator:    esc,
		Clock:        clock,
		Logger:       logger,
	})

	workers := cfg.Concurrency.Workers
	if ro.workers > 0 {
		workers = ro.workers
	}
	return pipeline.NewRunner(engine, fetcher, pipeline.Options{
		Mode:               mode,
		Workers:            workers,
		Pages:              ro.pages,
		InflationThreshold: cfg.Vision.InflationThreshold,
	}, logger), nil
}

// recordClock stamps provenance records. With SOURCE_DATE_EPOCH set every
// record carries that instant, so repeated runs write identical logs.
func recordClock(epoch string) (func() time.Time, error) {
	if epoch == "" {
		return time.Now, nil
	}
	sec, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SOURCE_DATE_EPOCH %q", epoch)
	}
	at := time.Unix(sec, 0).UTC()
	return func() time.Time { return at }, nil
}

// unreadable stands in for a text layer no extractor could open.
type unreadable struct{ err error }

func (u unreadable) PageText(context.Context, int) (string, error) {
	return "", u.err
}

// print writes data to the command's stdout in the selected format.
func (a *app) print(cmd *cobra.Command, data any) error {
	return report.Write(cmd.OutOrStdout(), a.format, data)
}
