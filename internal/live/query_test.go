package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/records"
)

type countingReader struct {
	docstore.Reader
	opened int
}

func (r *countingReader) Subscribe(ctx context.Context, collection string, filters ...docstore.Filter) (*docstore.Subscription, error) {
	r.opened++
	return r.Reader.Subscribe(ctx, collection, filters...)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestQueryDeliversDecodedSnapshots(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	q := New(store, records.DecodeProgress)
	defer q.Close()
	assert.True(t, q.Loading())

	require.NoError(t, q.Watch(ctx, models.CollectionProgress, docstore.Where("userId", docstore.OpEqual, "u1")))
	require.NoError(t, q.WaitReady(ctx))
	assert.False(t, q.Loading())
	assert.Empty(t, q.Data())

	_, err := store.Add(ctx, models.CollectionProgress, map[string]any{
		"userId": "u1", "courseId": "c1", "videoId": "v1", "completed": true,
		"completedAt": time.Now().UTC(),
	})
	require.NoError(t, err)

	eventually(t, func() bool { return len(q.Data()) == 1 })
	got := q.Data()[0]
	assert.Equal(t, "v1", got.VideoID)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestQueryWatchSameKeyIsNoop(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	reader := &countingReader{Reader: store}
	ctx := context.Background()

	q := New(reader, records.DecodePurchase)
	defer q.Close()

	require.NoError(t, q.Watch(ctx, models.CollectionPurchases,
		docstore.Where("userId", docstore.OpEqual, "u1"),
		docstore.Where("courseId", docstore.OpEqual, "c1")))
	require.NoError(t, q.Watch(ctx, models.CollectionPurchases,
		docstore.Where("courseId", docstore.OpEqual, "c1"),
		docstore.Where("userId", docstore.OpEqual, "u1")))
	assert.Equal(t, 1, reader.opened)

	require.NoError(t, q.Watch(ctx, models.CollectionPurchases, docstore.Where("userId", docstore.OpEqual, "u2")))
	assert.Equal(t, 2, reader.opened)
}

func TestQueryKeyChangeReleasesPreviousSubscription(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.Add(ctx, models.CollectionPurchases, map[string]any{"userId": "u1", "courseId": "c1"})
	require.NoError(t, err)

	q := New(store, records.DecodePurchase)
	defer q.Close()

	require.NoError(t, q.Watch(ctx, models.CollectionPurchases, docstore.Where("userId", docstore.OpEqual, "u1")))
	require.NoError(t, q.WaitReady(ctx))
	require.Len(t, q.Data(), 1)

	require.NoError(t, q.Watch(ctx, models.CollectionPurchases, docstore.Where("userId", docstore.OpEqual, "u2")))
	require.NoError(t, q.WaitReady(ctx))
	assert.Empty(t, q.Data())

	_, err = store.Add(ctx, models.CollectionPurchases, map[string]any{"userId": "u1", "courseId": "c2"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, q.Data(), "pushes for the released key must be ignored")
}

func TestQueryRecordsSubscriptionError(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	store.Deny(models.CollectionUsers, docstore.ErrPermissionDenied)
	ctx := context.Background()

	q := New(store, records.DecodeUser)
	defer q.Close()

	require.NoError(t, q.Watch(ctx, models.CollectionUsers))
	err := q.WaitReady(ctx)
	assert.True(t, errors.Is(err, docstore.ErrPermissionDenied))

	state := q.Snapshot()
	assert.False(t, state.Loading)
	assert.Empty(t, state.Data)
	assert.Error(t, state.Err)
}

func TestQueryReleaseClearsData(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.Add(ctx, models.CollectionCourses, map[string]any{"title": "Go"})
	require.NoError(t, err)

	q := New(store, records.DecodeCourse)
	defer q.Close()
	require.NoError(t, q.Watch(ctx, models.CollectionCourses))
	require.NoError(t, q.WaitReady(ctx))
	require.Len(t, q.Data(), 1)

	q.Release()
	assert.Empty(t, q.Data())
	assert.Empty(t, q.Key())
	assert.False(t, q.Loading())
	assert.Equal(t, 0, store.Subscriptions(models.CollectionCourses))
}

func TestQueryChangesSignalsAndCloses(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	q := New(store, records.DecodeCourse)
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	changes := q.Changes(listenCtx)

	require.NoError(t, q.Watch(ctx, models.CollectionCourses))
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change signal")
	}

	q.Close()
	eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	})

	assert.ErrorIs(t, q.Watch(ctx, models.CollectionCourses), docstore.ErrClosed)
}

func TestQueryFrame(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	store.Deny(models.CollectionCourses, docstore.ErrPermissionDenied)
	ctx := context.Background()

	q := New(store, records.DecodeCourse)
	defer q.Close()

	frame := q.Frame()
	assert.True(t, frame.Loading)
	assert.Equal(t, []models.Course{}, frame.Data)

	require.NoError(t, q.Watch(ctx, models.CollectionCourses))
	_ = q.WaitReady(ctx)
	frame = q.Frame()
	assert.False(t, frame.Loading)
	assert.Contains(t, frame.Error, "permission denied")
}
