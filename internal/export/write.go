package export

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/jackzampolin/pagemerge/internal/fsutil"
	"github.com/jackzampolin/pagemerge/internal/provenance"
)

// Targets are the output paths of one document. Empty paths are skipped.
type Targets struct {
	Markdown   string
	Provenance string
	HTML       string
}

// Write renders doc and writes every requested target. Each file is
// replaced atomically, so a reader never sees a partial output.
func Write(doc *provenance.Document, t Targets, opts provenance.Options) error {
	if t.Markdown != "" {
		if err := fsutil.WriteFileAtomic(t.Markdown, []byte(doc.Markdown(opts)), 0o644); err != nil {
			return fmt.Errorf("write markdown: %w", err)
		}
	}
	if t.Provenance != "" {
		var buf bytes.Buffer
		if err := doc.WriteJSONL(&buf); err != nil {
			return fmt.Errorf("encode provenance: %w", err)
		}
		if err := fsutil.WriteFileAtomic(t.Provenance, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write provenance: %w", err)
		}
	}
	if t.HTML != "" {
		title := filepath.Base(t.Markdown)
		if t.Markdown == "" {
			title = filepath.Base(t.HTML)
		}
		page, err := NewPreviewer().Render(doc, title)
		if err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(t.HTML, page, 0o644); err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
	}
	return nil
}
