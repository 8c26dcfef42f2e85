//go:build tesseract

package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/jackzampolin/pagemerge/internal/backoff"
)

// TesseractAvailable reports whether the binary was built with the
// tesseract tag.
const TesseractAvailable = true

// TesseractClient implements VisionBackend with a local Tesseract engine.
// Output is plain text; the segmenter sees it as paragraphs.
type TesseractClient struct {
	languages []string
	dpi       int
}

// NewTesseractClient creates a Tesseract backend.
func NewTesseractClient(cfg TesseractConfig) *TesseractClient {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	return &TesseractClient{languages: cfg.Languages, dpi: cfg.DPI}
}

// Name returns the provider identifier.
func (c *TesseractClient) Name() string {
	return TesseractName
}

// Model returns the configured language set.
func (c *TesseractClient) Model() string {
	return "tesseract:" + strings.Join(c.languages, "+")
}

// Extract runs OCR on the page image. A fresh engine handle is used per
// call because gosseract clients are not safe for concurrent use.
func (c *TesseractClient) Extract(ctx context.Context, req *VisionRequest) (*VisionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(req.Image); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("set image: %w", err))
	}
	if err := client.SetLanguage(c.languages...); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("set languages: %w", err))
	}
	if c.dpi > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(c.dpi)); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("set dpi: %w", err))
		}
	}
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	return &VisionResult{
		Markdown:      strings.TrimSpace(text),
		Model:         c.Model(),
		ExecutionTime: time.Since(start),
	}, nil
}

var _ VisionBackend = (*TesseractClient)(nil)
