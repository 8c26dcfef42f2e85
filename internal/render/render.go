// Package render inspects PDFs and rasterizes single pages for the vision
// backend.
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Config controls rasterization.
type Config struct {
	// DPI is the requested render resolution.
	DPI int `mapstructure:"dpi" yaml:"dpi" validate:"gte=36,lte=1200"`

	// MaxLongEdge caps the long edge of the rendered image in pixels; the
	// DPI is lowered per page to honour it. Zero disables the cap.
	MaxLongEdge int `mapstructure:"max_long_edge" yaml:"max_long_edge" validate:"gte=0"`

	// Tool is the pdftoppm executable.
	Tool string `mapstructure:"tool" yaml:"tool"`
}

// DefaultConfig returns the render defaults.
func DefaultConfig() Config {
	return Config{DPI: 250, MaxLongEdge: 2400, Tool: "pdftoppm"}
}

// PageSize is a page's media box in PDF points (1/72 inch).
type PageSize struct {
	Width, Height float64
}

// LongEdge returns the larger dimension.
func (s PageSize) LongEdge() float64 {
	return math.Max(s.Width, s.Height)
}

// Info describes an opened PDF.
type Info struct {
	Path      string
	Hash      string
	PageCount int
	Sizes     []PageSize
}

// Size returns the size of page (1-based), or the zero PageSize if unknown.
func (i *Info) Size(page int) PageSize {
	if page < 1 || page > len(i.Sizes) {
		return PageSize{}
	}
	return i.Sizes[page-1]
}

// Inspect hashes the file and reads its page count and page sizes.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to hash PDF: %w", err)
	}
	info := &Info{Path: path, Hash: hex.EncodeToString(h.Sum(nil))}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	info.PageCount, err = api.PageCount(f, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	dims, err := api.PageDims(f, conf)
	if err == nil {
		for _, d := range dims {
			info.Sizes = append(info.Sizes, PageSize{Width: d.Width, Height: d.Height})
		}
	}
	return info, nil
}

// EffectiveDPI lowers dpi so that a page whose long edge is longEdgePt
// points renders no larger than maxLongEdge pixels. It never raises dpi and
// never returns less than 1.
func EffectiveDPI(dpi, maxLongEdge int, longEdgePt float64) int {
	if maxLongEdge <= 0 || longEdgePt <= 0 {
		return dpi
	}
	px := longEdgePt * float64(dpi) / 72
	if px <= float64(maxLongEdge) {
		return dpi
	}
	capped := int(math.Floor(float64(maxLongEdge) * 72 / longEdgePt))
	return max(1, capped)
}

// Renderer rasterizes one page to PNG bytes.
type Renderer interface {
	Render(ctx context.Context, path string, page, dpi int) ([]byte, error)
}

// logger returns l or the default logger.
func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
