package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// Pdftoppm renders pages with poppler's pdftoppm.
type Pdftoppm struct {
	Bin    string
	Logger *slog.Logger
}

// NewPdftoppm returns a renderer using bin, or "pdftoppm" from PATH.
func NewPdftoppm(bin string, logger *slog.Logger) *Pdftoppm {
	if bin == "" {
		bin = "pdftoppm"
	}
	return &Pdftoppm{Bin: bin, Logger: logger}
}

// Available reports whether the executable can be found.
func (p *Pdftoppm) Available() bool {
	_, err := exec.LookPath(p.Bin)
	return err == nil
}

// Render runs pdftoppm for a single page into a temp directory and returns
// the PNG bytes.
func (p *Pdftoppm) Render(ctx context.Context, path string, page, dpi int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "pagemerge-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	pageStr := strconv.Itoa(page)

	// -singlefile writes <prefix>.png with no page-number suffix.
	cmd := exec.CommandContext(ctx, p.Bin,
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		path,
		prefix,
	)

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm failed on page %d: %w (output: %s)", page, err, string(output))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	logger(p.Logger).Debug("rendered page", "page", page, "dpi", dpi, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}
