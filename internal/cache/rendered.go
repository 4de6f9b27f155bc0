package cache

// RenderedContent is a post body rendered to HTML.
type RenderedContent struct {
	HTML []byte
	// Title from the body's front matter, if any.
	Title string
}

var renderedMarkdownCache = NewCache[string, *RenderedContent]()

func renderedKey(contentHash, syntaxTheme string) string {
	return contentHash + ":" + syntaxTheme
}

func GetRenderedMarkdown(contentHash, syntaxTheme string) (*RenderedContent, bool) {
	return renderedMarkdownCache.Get(renderedKey(contentHash, syntaxTheme))
}

func SetRenderedMarkdown(contentHash, syntaxTheme string, html []byte, title string) {
	renderedMarkdownCache.Set(renderedKey(contentHash, syntaxTheme), &RenderedContent{
		HTML:  html,
		Title: title,
	})
}

func ClearRenderedMarkdownCache() {
	renderedMarkdownCache.Clear()
}
