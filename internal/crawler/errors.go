package crawler

import "errors"

var (
	// ErrInvalidURL marks a start URL or link that cannot be parsed into an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrFetchFailure wraps network errors, timeouts and non-2xx responses.
	ErrFetchFailure = errors.New("fetch failed")
	// ErrExtractionEmpty is returned when a page yields no usable title or text.
	ErrExtractionEmpty = errors.New("extraction empty")
	// ErrIndexUnavailable signals the full-text index cannot serve a query.
	ErrIndexUnavailable = errors.New("search index unavailable")
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
)
