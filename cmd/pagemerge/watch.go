package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagemerge/internal/config"
	"github.com/jackzampolin/pagemerge/internal/home"
)

var (
	watchSettle   time.Duration
	watchExisting bool
	watchMode     string
	watchNoCache  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Reconcile PDFs as they appear in a directory",
	Long: `Watch a directory and extract every PDF written to it.

A PDF is processed once it has not changed for --settle. Outputs are written
next to each PDF. Config changes are picked up without restarting; provider
settings apply to the next document.

Examples:
  pagemerge watch ./inbox
  pagemerge watch ./inbox --existing --settle 5s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		if watchSettle < 0 {
			return fmt.Errorf("--settle must not be negative, got %s", watchSettle)
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.open(cmd.Context(), watchNoCache); err != nil {
			return err
		}

		a.config.OnChange(func(cfg *config.Config) {
			a.registry.Reload(cfg.ToProviderRegistryConfig())
		})
		a.config.WatchConfig()

		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Add(dir); err != nil {
			return err
		}

		q := newSettleQueue(watchSettle)
		if watchExisting {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return err
			}
			for _, e := range entries {
				path := filepath.Join(dir, e.Name())
				if isPDF(path) && stale(path) {
					q.touch(path, time.Time{})
				}
			}
		}

		a.logger.Info("watching for PDFs", "dir", dir, "settle", watchSettle)
		return a.watchLoop(cmd, w, q)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchSettle, "settle", 2*time.Second, "quiet period before a new PDF is processed")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also process PDFs already in the directory without up-to-date output")
	watchCmd.Flags().StringVar(&watchMode, "mode", "", "hybrid, text_only or vision_only (default from config)")
	watchCmd.Flags().BoolVar(&watchNoCache, "no-cache", false, "bypass the render and vision cache")

	rootCmd.AddCommand(watchCmd)
}

func (a *app) watchLoop(cmd *cobra.Command, w *fsnotify.Watcher, q *settleQueue) error {
	ctx := cmd.Context()
	tick := time.NewTicker(q.interval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create|fsnotify.Write) && isPDF(ev.Name) {
				q.touch(ev.Name, time.Now())
			}
			if ev.Has(fsnotify.Remove | fsnotify.Rename) {
				q.forget(ev.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watcher error", "error", err)
		case now := <-tick.C:
			for _, path := range q.ready(now) {
				a.watchOne(ctx, cmd, path)
			}
		}
	}
}

func (a *app) watchOne(ctx context.Context, cmd *cobra.Command, path string) {
	summary, err := a.process(ctx, path, runOptions{mode: watchMode})
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil && summary.RunID == "":
		a.logger.Error("extraction failed", "pdf", path, "error", err)
		return
	case err != nil:
		a.logger.Warn("extraction incomplete", "pdf", path, "error", err)
	}
	if err := a.print(cmd, summary); err != nil {
		a.logger.Warn("failed to print summary", "error", err)
	}
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// stale reports whether path has no Markdown output at least as new as it.
func stale(path string) bool {
	src, err := os.Stat(path)
	if err != nil {
		return false
	}
	md, _ := home.OutputPaths(path)
	out, err := os.Stat(md)
	return err != nil || out.ModTime().Before(src.ModTime())
}

// settleQueue tracks PDFs until they have been quiet for the settle period.
// It is only used from the watch loop goroutine.
type settleQueue struct {
	settle  time.Duration
	pending map[string]time.Time
}

func newSettleQueue(settle time.Duration) *settleQueue {
	if settle <= 0 {
		settle = time.Second
	}
	return &settleQueue{settle: settle, pending: make(map[string]time.Time)}
}

// minPoll bounds how often the queue is polled for very short settle times.
const minPoll = 10 * time.Millisecond

// interval is how often ready is polled: twice per settle period.
func (q *settleQueue) interval() time.Duration {
	return max(q.settle/2, minPoll)
}

func (q *settleQueue) touch(path string, at time.Time) {
	q.pending[path] = at
}

func (q *settleQueue) forget(path string) {
	delete(q.pending, path)
}

// ready removes and returns the paths quiet since now-settle, in name order.
func (q *settleQueue) ready(now time.Time) []string {
	var out []string
	for path, last := range q.pending {
		if now.Sub(last) >= q.settle {
			out = append(out, path)
			delete(q.pending, path)
		}
	}
	slices.Sort(out)
	return out
}
