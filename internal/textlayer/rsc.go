package textlayer

import (
	"math"
	"os"
	"sort"
	"strings"

	rpdf "rsc.io/pdf"
)

const RSCName = "rsc"

type rscSource struct {
	f *os.File
	r *rpdf.Reader
}

// OpenRSC opens path with rsc.io/pdf.
func OpenRSC(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := rpdf.NewReader(f, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return &rscSource{f: f, r: r}, nil
}

func (s *rscSource) Name() string { return RSCName }

func (s *rscSource) NumPage() int { return s.r.NumPage() }

func (s *rscSource) PageText(page int) (string, error) {
	p := s.r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	return layoutText(p.Content().Text), nil
}

func (s *rscSource) Close() error { return s.f.Close() }

type textLine struct {
	y, size float64
	runs    []rpdf.Text
}

// layoutText rebuilds reading order from positioned glyph runs: runs are
// grouped into lines by baseline, lines are ordered top to bottom, and a
// blank line is inserted where the vertical gap suggests a paragraph break.
func layoutText(texts []rpdf.Text) string {
	if len(texts) == 0 {
		return ""
	}
	sorted := append([]rpdf.Text(nil), texts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var lines []*textLine
	for _, t := range sorted {
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		if n := len(lines); n > 0 && math.Abs(lines[n-1].y-t.Y) <= size*0.5 {
			lines[n-1].runs = append(lines[n-1].runs, t)
			continue
		}
		lines = append(lines, &textLine{y: t.Y, size: size, runs: []rpdf.Text{t}})
	}

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
			if lines[i-1].y-line.y > lines[i-1].size*1.8 {
				b.WriteByte('\n')
			}
		}
		sort.SliceStable(line.runs, func(a, c int) bool { return line.runs[a].X < line.runs[c].X })
		var end float64
		for j, run := range line.runs {
			if j > 0 && run.X-end > line.size*0.2 && !strings.HasPrefix(run.S, " ") {
				b.WriteByte(' ')
			}
			b.WriteString(run.S)
			end = run.X + run.W
		}
	}
	return b.String()
}
