package render

import (
	"slices"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chroma_html "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/debemdeboas/drafthouse/internal/cache"
)

func formatter() *chroma_html.Formatter {
	return chroma_html.New(
		chroma_html.WithClasses(true),
		chroma_html.TabWidth(4),
		chroma_html.WithLineNumbers(true),
		chroma_html.WrapLongLines(true),
	)
}

// SyntaxStyles lists the available chroma styles.
func SyntaxStyles() []string {
	names := styles.Names()
	slices.Sort(names)
	return names
}

func HasSyntaxStyle(name string) bool {
	_, ok := styles.Registry[name]
	return ok
}

// SyntaxCSS returns the stylesheet for the classes HighlightCode emits.
// Unknown styles fall back to chroma's default.
func SyntaxCSS(style string) string {
	if css, ok := cache.GetSyntaxCSS(style); ok {
		return css
	}

	var buf strings.Builder
	s := styles.Get(style)

	bg := s.Get(chroma.Background)
	if !bg.Colour.IsSet() {
		// Pick a readable text colour for styles that only set a background.
		luminance := (0.299*float64(bg.Background.Red()) +
			0.587*float64(bg.Background.Green()) +
			0.114*float64(bg.Background.Blue())) / 255
		if luminance > 0.5 {
			buf.WriteString(".chroma { color: #181818; }\n")
		}
	}

	if err := formatter().WriteCSS(&buf, s); err != nil {
		renderLogger.Error().Err(err).Str("style", style).Msg("Failed to write syntax CSS")
	}

	css := buf.String()
	cache.SetSyntaxCSS(style, css)
	return css
}
