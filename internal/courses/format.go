package courses

import (
	"fmt"
	"regexp"
)

var youTubeID = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([^&\n?#]+)`)

// EmbedURL turns a YouTube watch or short link into its embeddable form. Other
// URLs are returned unchanged.
func EmbedURL(url string) string {
	m := youTubeID.FindStringSubmatch(url)
	if m == nil {
		return url
	}
	return "https://www.youtube.com/embed/" + m[1]
}

// DurationLabel formats minutes as "{h}h {m}m".
func DurationLabel(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
