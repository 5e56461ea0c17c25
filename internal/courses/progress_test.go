package courses

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/youngacademy/platform/internal/models"
)

func sampleCourse() models.Course {
	return models.Course{
		ID:       "c1",
		Duration: 60,
		Videos: []models.CourseVideo{
			{ID: "v1", Duration: 10, Order: 1},
			{ID: "v2", Duration: 20, Order: 2},
			{ID: "v3", Duration: 30, Order: 3},
		},
	}
}

func done(userID, courseID, videoID string) models.Progress {
	return models.Progress{UserID: userID, CourseID: courseID, VideoID: videoID, Completed: true}
}

func TestPercentage(t *testing.T) {
	course := sampleCourse()

	cases := []struct {
		name     string
		progress []models.Progress
		course   func(models.Course) models.Course
		want     int
	}{
		{name: "first and third video", progress: []models.Progress{done("u1", "c1", "v1"), done("u1", "c1", "v3")}, want: 67},
		{name: "no progress", want: 0},
		{name: "everything", progress: []models.Progress{done("u1", "c1", "v1"), done("u1", "c1", "v2"), done("u1", "c1", "v3")}, want: 100},
		{name: "unknown video ignored", progress: []models.Progress{done("u1", "c1", "gone"), done("u1", "c1", "v2")}, want: 33},
		{name: "other user ignored", progress: []models.Progress{done("u2", "c1", "v3")}, want: 0},
		{name: "other course ignored", progress: []models.Progress{done("u1", "c2", "v3")}, want: 0},
		{name: "incomplete record ignored", progress: []models.Progress{{UserID: "u1", CourseID: "c1", VideoID: "v3"}}, want: 0},
		{name: "repeated completion counted once", progress: []models.Progress{done("u1", "c1", "v3"), done("u1", "c1", "v3"), done("u1", "c1", "v3")}, want: 50},
		{
			name:     "zero aggregate duration",
			progress: []models.Progress{done("u1", "c1", "v1")},
			course:   func(c models.Course) models.Course { c.Duration = 0; return c },
			want:     0,
		},
		{
			name:     "stale aggregate capped",
			progress: []models.Progress{done("u1", "c1", "v3")},
			course:   func(c models.Course) models.Course { c.Duration = 15; return c },
			want:     100,
		},
		{
			name:     "rounds half up",
			progress: []models.Progress{done("u1", "c1", "v1")},
			course:   func(c models.Course) models.Course { c.Duration = 8; c.Videos[0].Duration = 1; return c },
			want:     13,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := sampleCourse()
			c.Videos = append([]models.CourseVideo(nil), course.Videos...)
			if tc.course != nil {
				c = tc.course(c)
			}
			got := Percentage(tc.progress, "u1", c)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestCompletionHelpers(t *testing.T) {
	progress := []models.Progress{done("u1", "c1", "v1"), done("u1", "c1", "v1"), done("u1", "c2", "v2")}

	assert.True(t, IsVideoCompleted(progress, "u1", "c1", "v1"))
	assert.False(t, IsVideoCompleted(progress, "u1", "c1", "v2"))
	assert.False(t, IsVideoCompleted(progress, "u2", "c1", "v1"))
	assert.Equal(t, 2, CompletedCount(progress, "u1", "c1"))
	assert.Equal(t, 0, CompletedCount(progress, "u2", "c1"))
}

func TestIsPurchasedAndTotalDuration(t *testing.T) {
	purchases := []models.Purchase{{CourseID: "c1"}, {CourseID: "c1"}}
	assert.True(t, IsPurchased(purchases, "c1"))
	assert.False(t, IsPurchased(purchases, "c2"))
	assert.Equal(t, 60, TotalDuration(sampleCourse().Videos))
	assert.Equal(t, 0, TotalDuration(nil))
}
