// Package textlayer extracts the embedded text layer of PDF pages. Each
// page is read from the primary extractor and, when that fails or yields
// nothing, from the next extractor in the chain.
package textlayer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

var (
	// ErrNoText is returned when an extractor read a page and found no
	// text on it, as for a scanned page.
	ErrNoText = errors.New("no text layer")

	// ErrExtract is returned when no extractor could read a page at all.
	// It never wraps ErrNoText.
	ErrExtract = errors.New("text extraction failed")
)

// Source is one opened PDF read by one extraction library.
type Source interface {
	Name() string
	NumPage() int
	PageText(page int) (string, error)
	Close() error
}

// Opener opens path with a particular library.
type Opener struct {
	Name string
	Open func(path string) (Source, error)
}

// Ledongthuc is the primary opener.
var Ledongthuc = Opener{Name: LedongthucName, Open: OpenLedongthuc}

// RSC is the fallback opener.
var RSC = Opener{Name: RSCName, Open: OpenRSC}

// Extractor opens documents through an ordered chain of openers.
type Extractor struct {
	openers []Opener
	clean   bool
	logger  *slog.Logger
}

// Config for NewExtractor.
type Config struct {
	// Openers in priority order. Defaults to Ledongthuc then RSC.
	Openers []Opener

	// Raw disables hyphenation repair and whitespace normalization.
	Raw bool

	Logger *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg Config) *Extractor {
	openers := cfg.Openers
	if len(openers) == 0 {
		openers = []Opener{Ledongthuc, RSC}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{openers: openers, clean: !cfg.Raw, logger: logger}
}

// Open prepares path for per-page extraction. Sources are opened lazily, so
// a fallback that is never needed is never parsed. Open fails only if no
// opener can read the file.
func (e *Extractor) Open(path string) (*Document, error) {
	d := &Document{
		path:    path,
		clean:   e.clean,
		logger:  e.logger.With("pdf", path),
		slots:   make([]*slot, len(e.openers)),
		openers: e.openers,
	}
	for i := range d.slots {
		d.slots[i] = &slot{}
	}

	var errs []error
	for i := range e.openers {
		_, err := d.source(i)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	d.Close()
	return nil, fmt.Errorf("failed to open %s: %w", path, errors.Join(errs...))
}

// Document is an opened PDF. It is safe for concurrent use; calls into one
// library are serialized.
type Document struct {
	path    string
	clean   bool
	logger  *slog.Logger
	openers []Opener
	slots   []*slot
}

type slot struct {
	mu     sync.Mutex
	opened bool
	src    Source
	err    error
}

func (d *Document) source(i int) (Source, error) {
	s := d.slots[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		s.opened = true
		s.src, s.err = safeOpen(d.openers[i], d.path)
	}
	return s.src, s.err
}

func safeOpen(o Opener, path string) (src Source, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic opening pdf: %v", o.Name, r)
		}
	}()
	src, err = o.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Name, err)
	}
	return src, nil
}

// NumPage returns the page count reported by the first source that opens.
func (d *Document) NumPage() int {
	for i := range d.slots {
		if src, err := d.source(i); err == nil {
			return src.NumPage()
		}
	}
	return 0
}

// PageText returns the cleaned text of page (1-based). When at least one
// source read the page but none found text it returns ErrNoText; when no
// source could read the page it returns an error wrapping ErrExtract and
// each source's failure.
func (d *Document) PageText(ctx context.Context, page int) (string, error) {
	var (
		errs []error
		read bool
	)
	for i, o := range d.openers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		src, err := d.source(i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		text, err := d.read(i, src, page)
		if err != nil {
			d.logger.Debug("text extractor failed", "extractor", o.Name, "page", page, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", o.Name, err))
			continue
		}
		read = true
		if strings.TrimSpace(text) == "" {
			continue
		}
		if i > 0 {
			d.logger.Debug("used fallback text extractor", "extractor", o.Name, "page", page)
		}
		if d.clean {
			text = Clean(text)
		}
		return text, nil
	}
	if read || len(errs) == 0 {
		return "", fmt.Errorf("page %d: %w", page, ErrNoText)
	}
	return "", fmt.Errorf("page %d: %w: %w", page, ErrExtract, errors.Join(errs...))
}

func (d *Document) read(i int, src Source, page int) (text string, err error) {
	s := d.slots[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reading page %d: %v", page, r)
		}
	}()
	if page < 1 || page > src.NumPage() {
		return "", fmt.Errorf("page %d out of range 1-%d", page, src.NumPage())
	}
	return src.PageText(page)
}

// Close releases every opened source.
func (d *Document) Close() error {
	var errs []error
	for _, s := range d.slots {
		s.mu.Lock()
		if s.src != nil {
			errs = append(errs, s.src.Close())
			s.src = nil
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
