package segment

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Segment
	}{
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:  "whitespace only",
			input: "  \n\t\n   ",
			want:  nil,
		},
		{
			name:  "single paragraph",
			input: "The quick brown fox\njumps over the lazy dog.",
			want: []Segment{
				{Type: Paragraph, Text: "The quick brown fox\njumps over the lazy dog.", Index: 0},
			},
		},
		{
			name:  "atx heading then paragraph",
			input: "# Chapter One\n\nIt was a dark night.",
			want: []Segment{
				{Type: Heading, Text: "# Chapter One", Index: 0},
				{Type: Paragraph, Text: "It was a dark night.", Index: 1},
			},
		},
		{
			name:  "heading glued to paragraph",
			input: "## Results\nWe measured everything.",
			want: []Segment{
				{Type: Heading, Text: "## Results", Index: 0},
				{Type: Paragraph, Text: "We measured everything.", Index: 1},
			},
		},
		{
			name:  "setext heading",
			input: "Introduction\n============\n\nBody text.",
			want: []Segment{
				{Type: Heading, Text: "Introduction\n============", Index: 0},
				{Type: Paragraph, Text: "Body text.", Index: 1},
			},
		},
		{
			name:  "table block",
			input: "| a | b |\n|---|---|\n| 1 | 2 |",
			want: []Segment{
				{Type: Table, Text: "| a | b |\n|---|---|\n| 1 | 2 |", Index: 0},
			},
		},
		{
			name:  "single pipe row is a paragraph",
			input: "a | b | c",
			want: []Segment{
				{Type: Paragraph, Text: "a | b | c", Index: 0},
			},
		},
		{
			name:  "bullet list",
			input: "- one\n- two\n* three",
			want: []Segment{
				{Type: List, Text: "- one\n- two\n* three", Index: 0},
			},
		},
		{
			name:  "numbered list",
			input: "1. first\n2) second",
			want: []Segment{
				{Type: List, Text: "1. first\n2) second", Index: 0},
			},
		},
		{
			name:  "single bullet is a paragraph",
			input: "- lonely item",
			want: []Segment{
				{Type: Paragraph, Text: "- lonely item", Index: 0},
			},
		},
		{
			name:  "crlf and trailing spaces",
			input: "Line one   \r\nLine two\r\n\r\n# Next",
			want: []Segment{
				{Type: Paragraph, Text: "Line one\nLine two", Index: 0},
				{Type: Heading, Text: "# Next", Index: 1},
			},
		},
		{
			name:  "paragraph then list in one block",
			input: "Ingredients:\n- flour\n- water",
			want: []Segment{
				{Type: Paragraph, Text: "Ingredients:", Index: 0},
				{Type: List, Text: "- flour\n- water", Index: 1},
			},
		},
		{
			name:  "hash without space is not a heading",
			input: "#hashtag post",
			want: []Segment{
				{Type: Paragraph, Text: "#hashtag post", Index: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSplit_IndexContiguous(t *testing.T) {
	input := "# Title\n\nPara one.\n\n- a\n- b\n\n| x | y |\n| 1 | 2 |\n\nPara two."
	segs := Split(input)
	if len(segs) != 5 {
		t.Fatalf("expected 5 segments, got %d", len(segs))
	}
	for i, s := range segs {
		if s.Index != i {
			t.Errorf("segment %d has Index %d", i, s.Index)
		}
	}
	wantTypes := []Type{Heading, Paragraph, List, Table, Paragraph}
	for i, s := range segs {
		if s.Type != wantTypes[i] {
			t.Errorf("segment %d type = %s, want %s", i, s.Type, wantTypes[i])
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	input := "# A\n\ntext\n\n- x\n- y"
	first := Split(input)
	for i := 0; i < 10; i++ {
		if got := Split(input); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %#v vs %#v", i, got, first)
		}
	}
}

func TestTypeStructural(t *testing.T) {
	for _, tt := range []struct {
		typ  Type
		want bool
	}{
		{Heading, true},
		{List, true},
		{Table, true},
		{Paragraph, false},
	} {
		if got := tt.typ.Structural(); got != tt.want {
			t.Errorf("%s.Structural() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
