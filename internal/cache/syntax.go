package cache

var syntaxCache = NewCache[string, string]()

// GetSyntaxCSS returns the generated stylesheet for a chroma style.
func GetSyntaxCSS(style string) (string, bool) {
	return syntaxCache.Get(style)
}

func SetSyntaxCSS(style, css string) {
	syntaxCache.Set(style, css)
}
