package textlayer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	rpdf "rsc.io/pdf"
)

type fakeSource struct {
	name   string
	pages  map[int]string
	fail   map[int]error
	panics bool
	closed bool
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) NumPage() int { return 3 }
func (f *fakeSource) PageText(page int) (string, error) {
	if f.panics {
		panic("corrupt xref")
	}
	if err := f.fail[page]; err != nil {
		return "", err
	}
	return f.pages[page], nil
}
func (f *fakeSource) Close() error { f.closed = true; return nil }

func opener(src *fakeSource, openErr error) Opener {
	return Opener{Name: src.name, Open: func(string) (Source, error) {
		if openErr != nil {
			return nil, openErr
		}
		return src, nil
	}}
}

func TestDocument_Fallback(t *testing.T) {
	primary := &fakeSource{
		name:  "primary",
		pages: map[int]string{1: "primary text", 2: "   "},
		fail:  map[int]error{3: errors.New("bad stream")},
	}
	fallback := &fakeSource{
		name:  "fallback",
		pages: map[int]string{1: "fallback one", 2: "fallback two", 3: "fallback three"},
	}
	e := NewExtractor(Config{Openers: []Opener{opener(primary, nil), opener(fallback, nil)}})
	doc, err := e.Open("book.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	want := map[int]string{1: "primary text", 2: "fallback two", 3: "fallback three"}
	for page, w := range want {
		got, err := doc.PageText(context.Background(), page)
		if err != nil {
			t.Errorf("page %d error = %v", page, err)
		}
		if got != w {
			t.Errorf("page %d = %q, want %q", page, got, w)
		}
	}
	if doc.NumPage() != 3 {
		t.Errorf("NumPage() = %d", doc.NumPage())
	}

	doc.Close()
	if !primary.closed || !fallback.closed {
		t.Error("sources not closed")
	}
}

func TestDocument_LazyFallback(t *testing.T) {
	primary := &fakeSource{name: "primary", pages: map[int]string{1: "text"}}
	opened := false
	lazy := Opener{Name: "lazy", Open: func(string) (Source, error) {
		opened = true
		return &fakeSource{name: "lazy"}, nil
	}}
	doc, err := NewExtractor(Config{Openers: []Opener{opener(primary, nil), lazy}}).Open("x.pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	doc.PageText(context.Background(), 1)
	if opened {
		t.Error("fallback opened although primary succeeded")
	}
}

func TestDocument_AllFail(t *testing.T) {
	primary := &fakeSource{name: "primary", panics: true}
	fallback := &fakeSource{name: "fallback", pages: map[int]string{}}
	doc, err := NewExtractor(Config{Openers: []Opener{opener(primary, nil), opener(fallback, nil)}}).Open("x.pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	text, err := doc.PageText(context.Background(), 1)
	if text != "" || !errors.Is(err, ErrNoText) {
		t.Errorf("PageText() = %q, %v; want empty and ErrNoText", text, err)
	}

	if _, err := doc.PageText(context.Background(), 9); !errors.Is(err, ErrExtract) || errors.Is(err, ErrNoText) {
		t.Errorf("out of range page should fail with ErrExtract only, got %v", err)
	}
}

func TestDocument_ReadFailureIsNotMissingText(t *testing.T) {
	src := &fakeSource{
		name:  "primary",
		pages: map[int]string{1: "first", 3: ""},
		fail:  map[int]error{2: errors.New("corrupt content stream")},
	}
	doc, err := NewExtractor(Config{Openers: []Opener{opener(src, nil)}}).Open("x.pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	_, err = doc.PageText(context.Background(), 2)
	if !errors.Is(err, ErrExtract) {
		t.Errorf("expected ErrExtract, got %v", err)
	}
	if errors.Is(err, ErrNoText) {
		t.Errorf("read failure reported as missing text: %v", err)
	}

	if _, err := doc.PageText(context.Background(), 3); !errors.Is(err, ErrNoText) || errors.Is(err, ErrExtract) {
		t.Errorf("empty page should be ErrNoText only, got %v", err)
	}
}

func TestDocument_PrimaryOpenFails(t *testing.T) {
	fallback := &fakeSource{name: "fallback", pages: map[int]string{1: "from fallback"}}
	doc, err := NewExtractor(Config{Openers: []Opener{
		opener(&fakeSource{name: "primary"}, errors.New("malformed")),
		opener(fallback, nil),
	}}).Open("x.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, _ := doc.PageText(context.Background(), 1)
	if got != "from fallback" {
		t.Errorf("PageText() = %q", got)
	}
}

func TestDocument_Canceled(t *testing.T) {
	src := &fakeSource{name: "primary", pages: map[int]string{1: "text"}}
	doc, _ := NewExtractor(Config{Openers: []Opener{opener(src, nil)}}).Open("x.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := doc.PageText(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExtractor_RealLibrariesRejectGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewExtractor(Config{}).Open(path); err == nil {
		t.Error("expected error opening a non-PDF")
	}
}

func TestLayoutText(t *testing.T) {
	runs := []rpdf.Text{
		{S: "World", X: 40, Y: 700, W: 25, FontSize: 10},
		{S: "Hello", X: 10, Y: 700, W: 25, FontSize: 10},
		{S: "next", X: 10, Y: 688, W: 20, FontSize: 10},
		{S: "para", X: 10, Y: 650, W: 20, FontSize: 10},
	}
	want := "Hello World\nnext\n\npara"
	if got := layoutText(runs); got != want {
		t.Errorf("layoutText() = %q, want %q", got, want)
	}
}
