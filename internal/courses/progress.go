// Package courses computes course progress and the presentation helpers shared by
// the catalog and the admin views.
package courses

import (
	"math"

	"github.com/youngacademy/platform/internal/models"
)

// Percentage returns how much of course the user completed, weighted by video
// duration, as a whole percent. It is 0 when the course has no aggregate duration.
// Completion records for videos no longer in the course are ignored, and a video
// completed more than once counts once. This deliberately differs from a raw sum
// over every matching completion record, which repeated completions push past 100.
func Percentage(progress []models.Progress, userID string, course models.Course) int {
	if course.Duration <= 0 {
		return 0
	}

	durations := make(map[string]int, len(course.Videos))
	for _, v := range course.Videos {
		durations[v.ID] = v.Duration
	}

	counted := make(map[string]struct{})
	completed := 0
	for _, p := range progress {
		if !matches(p, userID, course.ID) {
			continue
		}
		if _, seen := counted[p.VideoID]; seen {
			continue
		}
		counted[p.VideoID] = struct{}{}
		completed += durations[p.VideoID]
	}

	pct := math.Round(float64(completed) / float64(course.Duration) * 100)
	return int(math.Max(0, math.Min(100, pct)))
}

// IsVideoCompleted reports whether the user has a completion record for the video.
func IsVideoCompleted(progress []models.Progress, userID, courseID, videoID string) bool {
	for _, p := range progress {
		if matches(p, userID, courseID) && p.VideoID == videoID {
			return true
		}
	}
	return false
}

// CompletedCount counts the user's completion records for the course. Repeated
// completions of the same video are all counted.
func CompletedCount(progress []models.Progress, userID, courseID string) int {
	n := 0
	for _, p := range progress {
		if matches(p, userID, courseID) {
			n++
		}
	}
	return n
}

// IsPurchased reports whether any purchase references the course.
func IsPurchased(purchases []models.Purchase, courseID string) bool {
	for _, p := range purchases {
		if p.CourseID == courseID {
			return true
		}
	}
	return false
}

// TotalDuration sums video durations in minutes.
func TotalDuration(videos []models.CourseVideo) int {
	total := 0
	for _, v := range videos {
		total += v.Duration
	}
	return total
}

func matches(p models.Progress, userID, courseID string) bool {
	return p.Completed && p.UserID == userID && p.CourseID == courseID
}
