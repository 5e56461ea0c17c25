package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/session"
)

type fakeUsers struct {
	mu        sync.Mutex
	user      *models.User
	listeners []session.Listener
}

func (f *fakeUsers) User() *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

func (f *fakeUsers) OnChange(fn session.Listener) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	user := f.user
	f.mu.Unlock()
	fn(user)
	return func() {}
}

func (f *fakeUsers) set(user *models.User) {
	f.mu.Lock()
	f.user = user
	listeners := append([]session.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(user)
	}
}

func seedCourse(t *testing.T, store docstore.Store) string {
	t.Helper()
	id, err := store.Add(context.Background(), models.CollectionCourses, map[string]any{
		"title":      "Go Basics",
		"price":      float64(0),
		"duration":   float64(60),
		"level":      "Anfänger",
		"instructor": "Ada",
		"videos": []any{
			map[string]any{"id": "v1", "title": "Intro", "youtubeUrl": "https://www.youtube.com/watch?v=aaa", "duration": float64(10), "order": float64(1)},
			map[string]any{"id": "v2", "title": "Types", "youtubeUrl": "https://youtu.be/bbb", "duration": float64(20), "order": float64(2)},
			map[string]any{"id": "v3", "title": "Funcs", "youtubeUrl": "https://youtu.be/ccc", "duration": float64(30), "order": float64(3)},
		},
	})
	require.NoError(t, err)
	return id
}

func newView(t *testing.T, store *docstore.MemoryStore, users *fakeUsers) *View {
	t.Helper()
	view, err := NewView(context.Background(), users, store)
	require.NoError(t, err)
	t.Cleanup(view.Close)
	return view
}

func TestCoursesRequiresLogin(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	view := newView(t, store, &fakeUsers{})

	_, err := view.Courses(context.Background())
	assert.ErrorIs(t, err, ErrLoginRequired)

	_, err = view.Acquire(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrLoginRequired)

	_, err = view.MarkVideoCompleted(context.Background(), "c1", "v1")
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestAcquireWithoutUserWritesNothing(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	courseID := seedCourse(t, store)
	view := newView(t, store, &fakeUsers{})

	_, err := view.Acquire(context.Background(), courseID)
	require.ErrorIs(t, err, ErrLoginRequired)

	sub, err := store.Subscribe(context.Background(), models.CollectionPurchases)
	require.NoError(t, err)
	defer sub.Close()
	snap := <-sub.Updates()
	assert.Empty(t, snap.Docs)
}

func TestCatalogFlow(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	courseID := seedCourse(t, store)

	users := &fakeUsers{}
	view := newView(t, store, users)
	users.set(&models.User{UID: "u1", Email: "u1@example.com"})

	cards, err := view.Courses(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, courseID, cards[0].Course.ID)
	assert.False(t, cards[0].Purchased)
	assert.Equal(t, 0, cards[0].Progress)
	assert.Equal(t, 3, cards[0].TotalVideos)
	assert.Equal(t, "1h 0m", cards[0].DurationLabel)

	_, err = view.Acquire(ctx, courseID)
	require.NoError(t, err)
	_, err = view.MarkVideoCompleted(ctx, courseID, "v1")
	require.NoError(t, err)
	_, err = view.MarkVideoCompleted(ctx, courseID, "v3")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cards, err := view.Courses(ctx)
		return err == nil && cards[0].Purchased && cards[0].Progress == 67
	}, 2*time.Second, 5*time.Millisecond)

	player, err := view.Player(ctx, courseID, "")
	require.NoError(t, err)
	require.NotNil(t, player.Selected)
	assert.Equal(t, "v1", player.Selected.ID)
	assert.Equal(t, "https://www.youtube.com/embed/aaa", player.EmbedURL)
	assert.True(t, player.Videos[0].Completed)
	assert.False(t, player.Videos[1].Completed)
	assert.True(t, player.Videos[2].Completed)
	assert.Equal(t, 2, player.CompletedVideos)

	player, err = view.Player(ctx, courseID, "v2")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/embed/bbb", player.EmbedURL)

	_, err = view.Player(ctx, courseID, "missing")
	assert.ErrorIs(t, err, ErrVideoNotFound)
	_, err = view.Player(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestAcquireTwiceCreatesTwoPurchases(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	courseID := seedCourse(t, store)

	users := &fakeUsers{}
	view := newView(t, store, users)
	users.set(&models.User{UID: "u1", Email: "u1@example.com"})

	first, err := view.Acquire(ctx, courseID)
	require.NoError(t, err)
	second, err := view.Acquire(ctx, courseID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.Eventually(t, func() bool { return len(view.PurchasesQuery().Data()) == 2 }, 2*time.Second, 5*time.Millisecond)

	_, err = view.Acquire(ctx, "unknown")
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestSignOutReleasesUserQueries(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	users := &fakeUsers{}
	view := newView(t, store, users)
	users.set(&models.User{UID: "u1", Email: "u1@example.com"})
	require.NoError(t, view.PurchasesQuery().WaitReady(ctx))
	assert.Equal(t, 1, store.Subscriptions(models.CollectionPurchases))
	assert.Equal(t, 1, store.Subscriptions(models.CollectionProgress))

	users.set(nil)
	assert.Equal(t, 0, store.Subscriptions(models.CollectionPurchases))
	assert.Equal(t, 0, store.Subscriptions(models.CollectionProgress))
	assert.Empty(t, view.PurchasesQuery().Key())

	users.set(&models.User{UID: "u2", Email: "u2@example.com"})
	assert.Contains(t, view.ProgressQuery().Key(), "u2")
}

func TestPlayerAndCompletionRequirePurchase(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	courseID := seedCourse(t, store)

	users := &fakeUsers{}
	view := newView(t, store, users)
	users.set(&models.User{UID: "u1", Email: "u1@example.com"})

	_, err := view.Player(ctx, courseID, "")
	assert.ErrorIs(t, err, ErrNotPurchased)
	_, err = view.MarkVideoCompleted(ctx, courseID, "v1")
	assert.ErrorIs(t, err, ErrNotPurchased)

	_, err = view.Acquire(ctx, "")
	assert.ErrorIs(t, err, ErrCourseNotFound)

	// Another user's purchase does not unlock the course.
	_, err = store.Add(ctx, models.CollectionPurchases, map[string]any{"userId": "u2", "courseId": courseID, "amount": float64(0)})
	require.NoError(t, err)
	_, err = view.Player(ctx, courseID, "")
	assert.ErrorIs(t, err, ErrNotPurchased)

	sub, err := store.Subscribe(ctx, models.CollectionProgress)
	require.NoError(t, err)
	defer sub.Close()
	snap := <-sub.Updates()
	assert.Empty(t, snap.Docs)
}

func TestAcquiredCourseIsPlayableImmediately(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	courseID := seedCourse(t, store)

	users := &fakeUsers{}
	view := newView(t, store, users)
	users.set(&models.User{UID: "u1", Email: "u1@example.com"})

	_, err := view.Acquire(ctx, courseID)
	require.NoError(t, err)

	player, err := view.Player(ctx, courseID, "")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/embed/aaa", player.EmbedURL)

	_, err = view.MarkVideoCompleted(ctx, courseID, "v2")
	assert.NoError(t, err)
}

func TestMarkVideoCompletedRejectsUnknownIDs(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	courseID := seedCourse(t, store)

	users := &fakeUsers{}
	view := newView(t, store, users)
	users.set(&models.User{UID: "u1", Email: "u1@example.com"})
	_, err := view.Acquire(ctx, courseID)
	require.NoError(t, err)

	_, err = view.MarkVideoCompleted(ctx, courseID, "no-such-video")
	assert.ErrorIs(t, err, ErrVideoNotFound)
	_, err = view.MarkVideoCompleted(ctx, "no-such-course", "v1")
	assert.ErrorIs(t, err, ErrCourseNotFound)
	_, err = view.MarkVideoCompleted(ctx, courseID, "")
	assert.ErrorIs(t, err, ErrVideoNotFound)

	sub, err := store.Subscribe(ctx, models.CollectionProgress)
	require.NoError(t, err)
	defer sub.Close()
	snap := <-sub.Updates()
	assert.Empty(t, snap.Docs)
}
