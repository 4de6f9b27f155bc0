// Package routes defines HTTP route constants for the application.
package routes

// API routes. Patterns use net/http ServeMux syntax.
const (
	Blogs         = "/api/blogs"
	BlogSaveDraft = "/api/blogs/save-draft"
	BlogPublish   = "/api/blogs/publish"
	Blog          = "/api/blogs/{id}"
	BlogHTML      = "/api/blogs/{id}/html"
	BlogEvents    = "/api/blogs/{id}/events"

	Preview = "/api/preview"

	SyntaxTheme = "/syntax/{theme}"

	Health = "/healthz"
)
