package config

const (
	HCType        = "Content-Type"
	HCacheControl = "Cache-Control"
	HLocation     = "Location"

	CTypeCSS         = "text/css"
	CTypeHTML        = "text/html; charset=utf-8"
	CTypeJSON        = "application/json"
	CTypeEventStream = "text/event-stream"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)
