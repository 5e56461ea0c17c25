package videos

import "errors"

var (
	// ErrProviderUnavailable indicates the metadata provider is not configured.
	ErrProviderUnavailable = errors.New("video metadata provider unavailable")
	// ErrUnsupportedURL indicates a URL that is not an http(s) link.
	ErrUnsupportedURL = errors.New("unsupported video url")
)
