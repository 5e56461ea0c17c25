// Package videos resolves details of lesson videos so the course editor can
// pre-fill a video's title and running time from its URL.
package videos

import (
	"context"
	"math"
)

// Metadata captures the video details the course editor uses.
type Metadata struct {
	Title           string `json:"title"`
	DurationSeconds int    `json:"durationSeconds"`
	Thumbnail       string `json:"thumbnail,omitempty"`
}

// DurationMinutes rounds the running time to whole minutes, as stored on a course
// video. Anything shorter than a minute counts as one.
func (m Metadata) DurationMinutes() int {
	if m.DurationSeconds <= 0 {
		return 0
	}
	return int(math.Max(1, math.Round(float64(m.DurationSeconds)/60)))
}

// Provider returns metadata for the supplied video URL.
type Provider interface {
	Lookup(ctx context.Context, url string) (Metadata, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, url string) (Metadata, error)

// Lookup calls f.
func (f ProviderFunc) Lookup(ctx context.Context, url string) (Metadata, error) {
	return f(ctx, url)
}
