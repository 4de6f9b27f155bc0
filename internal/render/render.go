// Package render turns post bodies into HTML previews with highlighted code
// blocks.
package render

import (
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	md_html "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mmarkdown/mmark/v2/lang"
	"github.com/mmarkdown/mmark/v2/mast"
	"github.com/mmarkdown/mmark/v2/mparser"
	"github.com/mmarkdown/mmark/v2/render/mhtml"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/drafthouse/internal/cache"
)

const (
	EngineMmark   = "mmark"
	EngineClassic = "classic"
)

var (
	renderLogger = zerolog.Nop()
	engine       = EngineMmark

	regexCallout = regexp.MustCompile(`//\s*<<(\d+)>>`)
)

func SetLogger(l zerolog.Logger) {
	renderLogger = l
}

// SetEngine selects the markdown dialect used by RenderMarkdown.
func SetEngine(name string) {
	engine = name
}

func init() {
	mparser.Extensions |= parser.NoIntraEmphasis
}

func HighlightCode(code, language, style string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter().Format(&buf, styles.Get(style), iterator); err != nil {
		return code
	}

	res := html.UnescapeString(buf.String())
	return regexCallout.ReplaceAllString(res, "<span class=\"callout\">$1</span>")
}

// RenderMarkdown renders md and returns the HTML and the title from the
// document's front matter, if it has one.
func RenderMarkdown(md []byte, style string) ([]byte, string) {
	if engine == EngineClassic {
		return RenderMarkdownClassic(md, style), ""
	}

	out, info := RenderMarkdownMmark(md, style)
	if info == nil {
		return out, ""
	}
	return out, info.Title
}

// Serializes the check-render-set sequence so a burst of identical requests
// renders once.
var renderCacheMutex sync.Mutex

func RenderMarkdownCached(md []byte, contentHash, style string) ([]byte, string) {
	if contentHash == "" {
		renderLogger.Warn().Msg("Content hash is empty, skipping cache check")
		return RenderMarkdown(md, style)
	}

	if cached, found := cache.GetRenderedMarkdown(contentHash, style); found {
		renderLogger.Debug().Str("content_hash", contentHash).Str("style", style).Msg("Cache hit for rendered markdown")
		return cached.HTML, cached.Title
	}

	renderCacheMutex.Lock()
	defer renderCacheMutex.Unlock()

	if cached, found := cache.GetRenderedMarkdown(contentHash, style); found {
		return cached.HTML, cached.Title
	}

	renderLogger.Debug().Str("content_hash", contentHash).Str("style", style).Msg("Cache miss for rendered markdown")
	out, title := RenderMarkdown(md, style)
	cache.SetRenderedMarkdown(contentHash, style, out, title)

	return out, title
}

// WarmCache renders md in the background so the first reader hits the cache.
func WarmCache(md []byte, contentHash, style string) {
	go func() {
		RenderMarkdownCached(md, contentHash, style)
		renderLogger.Debug().Str("content_hash", contentHash).Str("style", style).Msg("Cache warming completed")
	}()
}

func codeBlockHook(style string) func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
	return func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
		code, ok := node.(*ast.CodeBlock)
		if !ok || !entering {
			return ast.GoToNext, false
		}

		var lang string
		if info := code.Info; info != nil {
			lang = string(info)
		}
		fmt.Fprintf(w, "<div class=\"highlight\">%s</div>", HighlightCode(string(code.Literal), lang, style))
		return ast.GoToNext, true
	}
}

func RenderMarkdownClassic(md []byte, style string) []byte {
	highlight := codeBlockHook(style)

	opts := md_html.RendererOptions{
		Flags:    md_html.CommonFlags | md_html.HrefTargetBlank | md_html.FootnoteReturnLinks,
		Comments: [][]byte{[]byte("//"), []byte("#")},
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if status, handled := highlight(w, node, entering); handled {
				return status, true
			}

			if callout, ok := node.(*ast.Callout); ok && entering {
				fmt.Fprintf(w, "<span class=\"callout\">%s</span>", callout.ID)
				return ast.GoToNext, true
			}

			return ast.GoToNext, false
		},
	}

	doc := parser.NewWithExtensions(
		parser.Tables | parser.FencedCode | parser.Autolink | parser.Strikethrough | parser.SpaceHeadings |
			parser.HeadingIDs | parser.BackslashLineBreak | parser.SuperSubscript | parser.DefinitionLists |
			parser.MathJax | parser.AutoHeadingIDs | parser.Footnotes | parser.OrderedListStart |
			parser.Attributes | parser.NonBlockingSpace,
	).Parse(markdown.NormalizeNewlines(md))

	return markdown.Render(doc, md_html.NewRenderer(opts))
}

// RenderMarkdownMmark renders md as mmark. info is nil when the document has
// no %%% title block.
func RenderMarkdownMmark(md []byte, style string) ([]byte, *mast.TitleData) {
	md = markdown.NormalizeNewlines(md)

	p := parser.NewWithExtensions(mparser.Extensions)

	init := mparser.NewInitial("")
	var info *mast.TitleData

	p.Opts = parser.Options{
		ParserHook: func(data []byte) (ast.Node, []byte, int) {
			node, data, consumed := mparser.Hook(data)
			if t, ok := node.(*mast.Title); ok {
				info = t.TitleData
			}
			return node, data, consumed
		},
		ReadIncludeFn: init.ReadInclude,
		Flags:         parser.FlagsNone,
	}

	doc := markdown.Parse(md, p)
	mparser.AddIndex(doc)

	language := "en"
	if info != nil && info.Language != "" {
		language = info.Language
	}
	mhtmlOpts := mhtml.RendererOptions{
		Language: lang.New(language),
	}

	highlight := codeBlockHook(style)
	opts := md_html.RendererOptions{
		Comments: [][]byte{[]byte("//"), []byte("#")},
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if status, handled := highlight(w, node, entering); handled {
				return status, true
			}
			return mhtmlOpts.RenderHook(w, node, entering)
		},
		Flags: md_html.CommonFlags | md_html.FootnoteNoHRTag | md_html.FootnoteReturnLinks,
	}

	return markdown.Render(doc, md_html.NewRenderer(opts)), info
}
