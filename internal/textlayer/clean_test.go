package textlayer

import "testing"

func TestRepairHyphenation(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"split word", "recon-\nciliation", "reconciliation"},
		{"trailing spaces", "exam- \n  ple text", "example text"},
		{"acronym kept", "NATO-\nled forces", "NATO-\nled forces"},
		{"inline hyphen untouched", "well-known", "well-known"},
		{"crlf", "hyphen-\r\nation", "hyphenation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepairHyphenation(tt.in); got != tt.want {
				t.Errorf("RepairHyphenation(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"spaces", "a   b\tc", "a b c"},
		{"blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"line trim", "  a  \n  b", "a\nb"},
		{"whitespace only", " \n\t\n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeWhitespace(tt.in); got != tt.want {
				t.Errorf("NormalizeWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	in := "The recon-\nciliation   step\n\n\n\nNext  paragraph"
	want := "The reconciliation step\n\nNext paragraph"
	if got := Clean(in); got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}
