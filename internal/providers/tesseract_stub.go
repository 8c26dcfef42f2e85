//go:build !tesseract

package providers

import (
	"context"
	"errors"

	"github.com/jackzampolin/pagemerge/internal/backoff"
)

// TesseractAvailable reports whether the binary was built with the
// tesseract tag.
const TesseractAvailable = false

var errTesseractUnavailable = errors.New("tesseract support not compiled in (build with -tags tesseract)")

// TesseractClient is a placeholder that always fails when the binary is
// built without cgo Tesseract bindings.
type TesseractClient struct{}

// NewTesseractClient returns a client whose Extract always fails.
func NewTesseractClient(TesseractConfig) *TesseractClient {
	return &TesseractClient{}
}

// Name returns the provider identifier.
func (c *TesseractClient) Name() string { return TesseractName }

// Model returns an empty model name.
func (c *TesseractClient) Model() string { return "" }

// Extract always returns a permanent error.
func (c *TesseractClient) Extract(context.Context, *VisionRequest) (*VisionResult, error) {
	return nil, backoff.Permanent(errTesseractUnavailable)
}

var _ VisionBackend = (*TesseractClient)(nil)
