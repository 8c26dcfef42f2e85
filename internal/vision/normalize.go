package vision

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var htmlTable = regexp.MustCompile(`(?is)<table\b.*?</table\s*>`)

// Normalizer rewrites HTML tables embedded in Markdown as pipe tables so
// the segmenter recognizes them. Everything outside a <table> element is
// left byte for byte.
type Normalizer struct {
	conv *converter.Converter
}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Normalize converts each <table> fragment. A fragment that fails to
// convert is kept as is.
func (n *Normalizer) Normalize(md string) string {
	if !strings.Contains(strings.ToLower(md), "<table") {
		return md
	}
	return htmlTable.ReplaceAllStringFunc(md, func(fragment string) string {
		out, err := n.conv.ConvertString(fragment)
		if err != nil || strings.TrimSpace(out) == "" {
			return fragment
		}
		// Blank lines keep the table its own block.
		return "\n\n" + strings.TrimSpace(out) + "\n\n"
	})
}
