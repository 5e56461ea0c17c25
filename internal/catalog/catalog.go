// Package catalog is the learner-facing view of one application instance: the
// course list with purchase and progress state, the player, and the two learner
// actions that write to the store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/youngacademy/platform/internal/courses"
	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/live"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/records"
	"github.com/youngacademy/platform/internal/session"
)

var (
	// ErrLoginRequired is returned when the catalog is used while signed out.
	ErrLoginRequired = errors.New("login required")
	// ErrCourseNotFound indicates an unknown course id.
	ErrCourseNotFound = errors.New("course not found")
	// ErrVideoNotFound indicates a video id that is not part of the course.
	ErrVideoNotFound = errors.New("video not found")
	// ErrNotPurchased is returned when the signed-in user has not acquired the course.
	ErrNotPurchased = errors.New("course not purchased")
)

// UserSource provides the signed-in user and reports changes to it.
type UserSource interface {
	User() *models.User
	OnChange(fn session.Listener) (unsubscribe func())
}

// Card is one entry of the course list.
type Card struct {
	Course          models.Course `json:"course"`
	Purchased       bool          `json:"purchased"`
	Progress        int           `json:"progress"`
	CompletedVideos int           `json:"completedVideos"`
	TotalVideos     int           `json:"totalVideos"`
	DurationLabel   string        `json:"durationLabel"`
}

// VideoState is a video of the player's playlist.
type VideoState struct {
	models.CourseVideo
	Completed bool `json:"completed"`
}

// Player is the state of the course player.
type Player struct {
	Card
	Selected *VideoState  `json:"selected,omitempty"`
	EmbedURL string       `json:"embedUrl,omitempty"`
	Videos   []VideoState `json:"videos"`
}

// View holds the live queries behind the catalog of one application instance.
type View struct {
	users   UserSource
	store   docstore.Store
	NowFunc func() time.Time

	ctx         context.Context
	courses     *live.Query[models.Course]
	purchases   *live.Query[models.Purchase]
	progress    *live.Query[models.Progress]
	unsubscribe func()
}

// NewView opens the course query and follows the signed-in user with the
// purchase and progress queries. ctx bounds the lifetime of every subscription.
func NewView(ctx context.Context, users UserSource, store docstore.Store) (*View, error) {
	v := &View{
		users:     users,
		store:     store,
		ctx:       ctx,
		courses:   live.New(store, records.DecodeCourse),
		purchases: live.New(store, records.DecodePurchase),
		progress:  live.New(store, records.DecodeProgress),
	}
	if err := v.courses.Watch(ctx, models.CollectionCourses); err != nil {
		return nil, fmt.Errorf("watch courses: %w", err)
	}
	v.unsubscribe = users.OnChange(v.follow)
	return v, nil
}

// Close releases every subscription of the view.
func (v *View) Close() {
	if v.unsubscribe != nil {
		v.unsubscribe()
	}
	v.courses.Close()
	v.purchases.Close()
	v.progress.Close()
}

// CoursesQuery exposes the live course list.
func (v *View) CoursesQuery() *live.Query[models.Course] { return v.courses }

// PurchasesQuery exposes the signed-in user's purchases.
func (v *View) PurchasesQuery() *live.Query[models.Purchase] { return v.purchases }

// ProgressQuery exposes the signed-in user's completion records.
func (v *View) ProgressQuery() *live.Query[models.Progress] { return v.progress }

// follow re-points the per-user queries whenever the signed-in user changes.
func (v *View) follow(user *models.User) {
	if user == nil {
		v.purchases.Release()
		v.progress.Release()
		return
	}

	byUser := docstore.Where("userId", docstore.OpEqual, user.UID)
	logger := logging.FromContext(v.ctx)
	if err := v.purchases.Watch(v.ctx, models.CollectionPurchases, byUser); err != nil {
		logger.Warn("watch purchases", slog.String("uid", user.UID), slog.Any("error", err))
	}
	if err := v.progress.Watch(v.ctx, models.CollectionProgress, byUser); err != nil {
		logger.Warn("watch progress", slog.String("uid", user.UID), slog.Any("error", err))
	}
}

// Courses lists every course with the user's purchase and progress state.
func (v *View) Courses(ctx context.Context) ([]Card, error) {
	user, err := v.ready(ctx)
	if err != nil {
		return nil, err
	}

	list := v.courses.Data()
	purchases := v.purchases.Data()
	progress := v.progress.Data()

	cards := make([]Card, 0, len(list))
	for _, c := range list {
		cards = append(cards, card(c, user.UID, purchases, progress))
	}
	return cards, nil
}

// Player returns the course with videoID selected, or its first video when
// videoID is empty. Only courses the user acquired can be played.
func (v *View) Player(ctx context.Context, courseID, videoID string) (Player, error) {
	user, err := v.ready(ctx)
	if err != nil {
		return Player{}, err
	}

	course, err := v.lookup(ctx, courseID)
	if err != nil {
		return Player{}, err
	}
	if err := v.entitled(ctx, user.UID, course.ID); err != nil {
		return Player{}, err
	}

	progress := v.progress.Data()
	p := Player{
		Card:   card(course, user.UID, v.purchases.Data(), progress),
		Videos: make([]VideoState, 0, len(course.Videos)),
	}
	for _, video := range course.Videos {
		p.Videos = append(p.Videos, VideoState{
			CourseVideo: video,
			Completed:   courses.IsVideoCompleted(progress, user.UID, course.ID, video.ID),
		})
	}

	switch {
	case videoID != "":
		for i := range p.Videos {
			if p.Videos[i].ID == videoID {
				p.Selected = &p.Videos[i]
				break
			}
		}
		if p.Selected == nil {
			return Player{}, ErrVideoNotFound
		}
	case len(p.Videos) > 0:
		p.Selected = &p.Videos[0]
	}
	if p.Selected != nil {
		p.EmbedURL = courses.EmbedURL(p.Selected.YouTubeURL)
	}
	return p, nil
}

// Acquire records a purchase of the course for the signed-in user. Nothing checks
// for an earlier purchase of the same course.
func (v *View) Acquire(ctx context.Context, courseID string) (string, error) {
	user := v.users.User()
	if user == nil {
		return "", ErrLoginRequired
	}

	course, err := v.lookup(ctx, courseID)
	if err != nil {
		return "", err
	}

	id, err := v.store.Add(ctx, models.CollectionPurchases, map[string]any{
		"userId":   user.UID,
		"courseId": course.ID,
		"amount":   course.Price,
	})
	if err != nil {
		return "", fmt.Errorf("record purchase: %w", err)
	}
	logging.FromContext(ctx).Info("course acquired",
		slog.String("uid", user.UID),
		slog.String("course_id", course.ID),
		slog.String("purchase_id", id),
	)
	return id, nil
}

// MarkVideoCompleted appends a completion record for a video of an acquired
// course.
func (v *View) MarkVideoCompleted(ctx context.Context, courseID, videoID string) (string, error) {
	user := v.users.User()
	if user == nil {
		return "", ErrLoginRequired
	}

	course, err := v.lookup(ctx, courseID)
	if err != nil {
		return "", err
	}
	if !hasVideo(course, videoID) {
		return "", ErrVideoNotFound
	}
	if err := v.entitled(ctx, user.UID, course.ID); err != nil {
		return "", err
	}

	id, err := v.store.Add(ctx, models.CollectionProgress, map[string]any{
		"userId":      user.UID,
		"courseId":    course.ID,
		"videoId":     videoID,
		"completed":   true,
		"completedAt": v.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("record progress: %w", err)
	}
	return id, nil
}

// ready waits for the first push of every query so a fresh instance never answers
// from empty lists.
func (v *View) ready(ctx context.Context) (*models.User, error) {
	user := v.users.User()
	if user == nil {
		return nil, ErrLoginRequired
	}
	for _, wait := range []func(context.Context) error{v.courses.WaitReady, v.purchases.WaitReady, v.progress.WaitReady} {
		if err := wait(ctx); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (v *View) find(courseID string) (models.Course, bool) {
	for _, c := range v.courses.Data() {
		if c.ID == courseID {
			return c, true
		}
	}
	return models.Course{}, false
}

func (v *View) lookup(ctx context.Context, courseID string) (models.Course, error) {
	if courseID == "" {
		return models.Course{}, ErrCourseNotFound
	}
	if c, ok := v.find(courseID); ok {
		return c, nil
	}
	doc, err := v.store.Get(ctx, models.CollectionCourses, courseID)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Course{}, ErrCourseNotFound
	}
	if err != nil {
		return models.Course{}, err
	}
	return records.DecodeCourse(doc)
}

// entitled checks the live purchases first and falls back to a one-shot query, so
// a purchase made a moment ago counts before the live query has caught up.
func (v *View) entitled(ctx context.Context, uid, courseID string) error {
	if courses.IsPurchased(v.purchases.Data(), courseID) {
		return nil
	}

	sub, err := v.store.Subscribe(ctx, models.CollectionPurchases,
		docstore.Where("userId", docstore.OpEqual, uid),
		docstore.Where("courseId", docstore.OpEqual, courseID),
	)
	if err != nil {
		return fmt.Errorf("query purchases: %w", err)
	}
	defer sub.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case snap, ok := <-sub.Updates():
		switch {
		case !ok:
			return docstore.ErrClosed
		case snap.Err != nil:
			return fmt.Errorf("query purchases: %w", snap.Err)
		case len(snap.Docs) == 0:
			return ErrNotPurchased
		}
		return nil
	}
}

func hasVideo(course models.Course, videoID string) bool {
	for _, video := range course.Videos {
		if video.ID == videoID {
			return true
		}
	}
	return false
}

func (v *View) now() time.Time {
	if v.NowFunc != nil {
		return v.NowFunc()
	}
	return time.Now().UTC()
}

func card(c models.Course, uid string, purchases []models.Purchase, progress []models.Progress) Card {
	return Card{
		Course:          c,
		Purchased:       courses.IsPurchased(purchases, c.ID),
		Progress:        courses.Percentage(progress, uid, c),
		CompletedVideos: courses.CompletedCount(progress, uid, c.ID),
		TotalVideos:     len(c.Videos),
		DurationLabel:   courses.DurationLabel(c.Duration),
	}
}
