// Package admin holds the two admin views of an application instance: the course
// editor and the user manager.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/youngacademy/platform/internal/courses"
	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/live"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/records"
	"github.com/youngacademy/platform/internal/videos"
)

var (
	// ErrConfirmationRequired is returned by Delete until the caller confirms.
	ErrConfirmationRequired = errors.New("course deletion must be confirmed")
	// ErrVideoIndex indicates a video position outside the form's video list.
	ErrVideoIndex = errors.New("video index out of range")
	// ErrUploadsDisabled indicates no object storage is configured.
	ErrUploadsDisabled = errors.New("thumbnail uploads are not configured")
)

// ThumbnailStore uploads course images.
type ThumbnailStore interface {
	UploadThumbnail(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// CourseFields are the scalar fields of the course form.
type CourseFields struct {
	Title        string       `json:"title" validate:"required"`
	Description  string       `json:"description"`
	Price        float64      `json:"price" validate:"gte=0"`
	TierRequired models.Tier  `json:"tierRequired" validate:"required,oneof=Starter Pro Ultra"`
	ThumbnailURL string       `json:"thumbnailUrl"`
	Instructor   string       `json:"instructor"`
	Level        models.Level `json:"level" validate:"required,oneof=Anfänger Fortgeschritten Experte"`
}

// VideoFields are the editable fields of one video row.
type VideoFields struct {
	Title      string `json:"title"`
	YouTubeURL string `json:"youtubeUrl"`
	Duration   int    `json:"duration" validate:"gte=0"`
}

// Form is the editor's in-memory state. CourseID is empty while creating.
type Form struct {
	CourseID string               `json:"courseId,omitempty"`
	Fields   CourseFields         `json:"fields"`
	Videos   []models.CourseVideo `json:"videos"`
}

// Duration is the aggregate the form would save.
func (f Form) Duration() int {
	return courses.TotalDuration(f.Videos)
}

func blankForm() Form {
	return Form{
		Fields: CourseFields{TierRequired: models.TierStarter, Level: models.LevelBeginner},
		Videos: []models.CourseVideo{},
	}
}

// EditorOption configures optional collaborators of the course editor.
type EditorOption func(*CourseEditor)

// WithThumbnails enables thumbnail uploads.
func WithThumbnails(store ThumbnailStore) EditorOption {
	return func(e *CourseEditor) { e.thumbnails = store }
}

// WithMetadata enables video metadata lookups.
func WithMetadata(provider videos.Provider) EditorOption {
	return func(e *CourseEditor) { e.metadata = provider }
}

// CourseEditor edits one course at a time. Changes stay in the form until Save.
type CourseEditor struct {
	store      docstore.Store
	courses    *live.Query[models.Course]
	thumbnails ThumbnailStore
	metadata   videos.Provider

	mu   sync.Mutex
	form Form
}

// NewCourseEditor opens the live course list. ctx bounds its subscription.
func NewCourseEditor(ctx context.Context, store docstore.Store, opts ...EditorOption) (*CourseEditor, error) {
	e := &CourseEditor{
		store:   store,
		courses: live.New(store, records.DecodeCourse),
		form:    blankForm(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.courses.Watch(ctx, models.CollectionCourses); err != nil {
		return nil, fmt.Errorf("watch courses: %w", err)
	}
	return e, nil
}

// Close releases the course subscription.
func (e *CourseEditor) Close() {
	e.courses.Close()
}

// Courses returns every course.
func (e *CourseEditor) Courses(ctx context.Context) ([]models.Course, error) {
	if err := e.courses.WaitReady(ctx); err != nil {
		return nil, err
	}
	return e.courses.Data(), nil
}

// CoursesQuery exposes the live course list.
func (e *CourseEditor) CoursesQuery() *live.Query[models.Course] { return e.courses }

// Form returns a copy of the current form.
func (e *CourseEditor) Form() Form {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyForm(e.form)
}

// New starts a blank course.
func (e *CourseEditor) New() {
	e.Reset()
}

// Reset discards the form.
func (e *CourseEditor) Reset() {
	e.mu.Lock()
	e.form = blankForm()
	e.mu.Unlock()
}

// Edit loads an existing course into the form.
func (e *CourseEditor) Edit(course models.Course) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.form = copyForm(Form{
		CourseID: course.ID,
		Fields: CourseFields{
			Title:        course.Title,
			Description:  course.Description,
			Price:        course.Price,
			TierRequired: course.TierRequired,
			ThumbnailURL: course.ThumbnailURL,
			Instructor:   course.Instructor,
			Level:        course.Level,
		},
		Videos: course.Videos,
	})
}

// EditByID loads the course with the given id from the live list.
func (e *CourseEditor) EditByID(ctx context.Context, id string) error {
	list, err := e.Courses(ctx)
	if err != nil {
		return err
	}
	for _, c := range list {
		if c.ID == id {
			e.Edit(c)
			return nil
		}
	}
	return fmt.Errorf("edit course %s: %w", id, docstore.ErrNotFound)
}

// SetFields replaces the scalar fields.
func (e *CourseEditor) SetFields(fields CourseFields) {
	e.mu.Lock()
	e.form.Fields = fields
	e.mu.Unlock()
}

// AddVideo appends an empty video row and returns its index.
func (e *CourseEditor) AddVideo() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.form.Videos = append(e.form.Videos, models.CourseVideo{
		ID:    uuid.NewString(),
		Order: len(e.form.Videos) + 1,
	})
	return len(e.form.Videos) - 1
}

// SetVideos replaces the video list. Rows without an id get a new one and every
// order is renumbered from the list position, so ids of kept videos survive.
func (e *CourseEditor) SetVideos(list []models.CourseVideo) {
	rows := make([]models.CourseVideo, len(list))
	for i, v := range list {
		if strings.TrimSpace(v.ID) == "" {
			v.ID = uuid.NewString()
		}
		v.Order = i + 1
		rows[i] = v
	}
	e.mu.Lock()
	e.form.Videos = rows
	e.mu.Unlock()
}

// UpdateVideo overwrites the editable fields of the video at index i.
func (e *CourseEditor) UpdateVideo(i int, fields VideoFields) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.form.Videos) {
		return ErrVideoIndex
	}
	v := &e.form.Videos[i]
	v.Title = fields.Title
	v.YouTubeURL = fields.YouTubeURL
	v.Duration = fields.Duration
	return nil
}

// RemoveVideo drops the video at index i. The order of the remaining rows is kept
// as it was.
func (e *CourseEditor) RemoveVideo(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.form.Videos) {
		return ErrVideoIndex
	}
	e.form.Videos = append(e.form.Videos[:i], e.form.Videos[i+1:]...)
	return nil
}

// MoveVideo moves the video at from to position to and renumbers every order.
func (e *CourseEditor) MoveVideo(from, to int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.form.Videos)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrVideoIndex
	}
	v := e.form.Videos[from]
	rest := append(e.form.Videos[:from:from], e.form.Videos[from+1:]...)
	moved := make([]models.CourseVideo, 0, n)
	moved = append(moved, rest[:to]...)
	moved = append(moved, v)
	moved = append(moved, rest[to:]...)
	for i := range moved {
		moved[i].Order = i + 1
	}
	e.form.Videos = moved
	return nil
}

// LookupVideo resolves metadata for url without touching the form.
func (e *CourseEditor) LookupVideo(ctx context.Context, url string) (videos.Metadata, error) {
	if e.metadata == nil {
		return videos.Metadata{}, videos.ErrProviderUnavailable
	}
	return e.metadata.Lookup(ctx, url)
}

// FillVideo looks the URL of video i up and fills in its duration, and its title
// when the row has none yet.
func (e *CourseEditor) FillVideo(ctx context.Context, i int) error {
	e.mu.Lock()
	if i < 0 || i >= len(e.form.Videos) {
		e.mu.Unlock()
		return ErrVideoIndex
	}
	url := e.form.Videos[i].YouTubeURL
	e.mu.Unlock()

	meta, err := e.LookupVideo(ctx, url)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if i >= len(e.form.Videos) || e.form.Videos[i].YouTubeURL != url {
		return ErrVideoIndex
	}
	v := &e.form.Videos[i]
	if strings.TrimSpace(v.Title) == "" {
		v.Title = meta.Title
	}
	v.Duration = meta.DurationMinutes()
	return nil
}

// UploadThumbnail stores an image and puts its URL into the form.
func (e *CourseEditor) UploadThumbnail(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if e.thumbnails == nil {
		return "", ErrUploadsDisabled
	}
	url, err := e.thumbnails.UploadThumbnail(ctx, filename, contentType, r)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	e.form.Fields.ThumbnailURL = url
	e.mu.Unlock()
	return url, nil
}

// Save validates the form, recomputes the aggregate duration from the videos and
// creates or updates the course. The video list is written wholesale. The form is
// reset after a successful save and the course id is returned.
func (e *CourseEditor) Save(ctx context.Context) (string, error) {
	form := e.Form()

	if err := records.Validate(form.Fields); err != nil {
		return "", err
	}
	for i := range form.Videos {
		if err := records.Validate(form.Videos[i]); err != nil {
			return "", fmt.Errorf("video %d: %w", i+1, err)
		}
	}

	course := models.Course{
		Title:        strings.TrimSpace(form.Fields.Title),
		Description:  form.Fields.Description,
		Price:        form.Fields.Price,
		TierRequired: form.Fields.TierRequired,
		ThumbnailURL: form.Fields.ThumbnailURL,
		Duration:     form.Duration(),
		Instructor:   form.Fields.Instructor,
		Level:        form.Fields.Level,
		Videos:       form.Videos,
	}
	data, err := records.Encode(course)
	if err != nil {
		return "", err
	}
	delete(data, docstore.FieldCreatedAt)
	delete(data, docstore.FieldUpdatedAt)

	ctx, span := logging.StartSpan(ctx, "admin.course.save")
	id := form.CourseID
	if id == "" {
		id, err = e.store.Add(ctx, models.CollectionCourses, data)
	} else {
		err = e.store.Update(ctx, models.CollectionCourses, id, data)
	}
	span.EndWithError(err)
	if err != nil {
		return "", fmt.Errorf("save course: %w", err)
	}

	logging.FromContext(ctx).Info("course saved",
		slog.String("course_id", id),
		slog.Int("videos", len(course.Videos)),
		slog.Int("duration", course.Duration),
	)
	e.Reset()
	return id, nil
}

// Delete removes the course document once confirmed. Purchases and progress
// records that reference it are left in place.
func (e *CourseEditor) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := e.store.Delete(ctx, models.CollectionCourses, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	e.mu.Lock()
	if e.form.CourseID == id {
		e.form = blankForm()
	}
	e.mu.Unlock()

	logging.FromContext(ctx).Info("course deleted", slog.String("course_id", id))
	return nil
}

func copyForm(f Form) Form {
	f.Videos = append([]models.CourseVideo{}, f.Videos...)
	return f
}
