package textlayer

import (
	"os"

	lpdf "github.com/ledongthuc/pdf"
)

const LedongthucName = "ledongthuc"

type ledongthucSource struct {
	f     *os.File
	r     *lpdf.Reader
	fonts map[string]*lpdf.Font
}

// OpenLedongthuc opens path with github.com/ledongthuc/pdf.
func OpenLedongthuc(path string) (Source, error) {
	f, r, err := lpdf.Open(path)
	if err != nil {
		return nil, err
	}
	return &ledongthucSource{f: f, r: r, fonts: make(map[string]*lpdf.Font)}, nil
}

func (s *ledongthucSource) Name() string { return LedongthucName }

func (s *ledongthucSource) NumPage() int { return s.r.NumPage() }

func (s *ledongthucSource) PageText(page int) (string, error) {
	p := s.r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	// Fonts are shared across pages; cache them so each is decoded once.
	for _, name := range p.Fonts() {
		if _, ok := s.fonts[name]; !ok {
			font := p.Font(name)
			s.fonts[name] = &font
		}
	}
	return p.GetPlainText(s.fonts)
}

func (s *ledongthucSource) Close() error { return s.f.Close() }
