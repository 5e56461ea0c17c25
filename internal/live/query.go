// Package live keeps a typed, always-current view of one document collection
// query. A Query owns at most one store subscription at a time and swaps it only
// when the collection or filter set actually changes.
package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/records"
)

// State is a point-in-time copy of a query.
type State[T any] struct {
	Data    []T
	Loading bool
	Err     error
}

// Query is a live collection query decoded into T.
type Query[T any] struct {
	store  docstore.Reader
	decode records.Decoder[T]

	// watchMu serialises Watch, Release and Close so an old subscription is always
	// released before its replacement is opened.
	watchMu sync.Mutex

	mu        sync.Mutex
	key       string
	gen       uint64
	sub       *docstore.Subscription
	data      []T
	loading   bool
	err       error
	ready     chan struct{}
	listeners map[chan struct{}]struct{}
	closed    bool
}

// New constructs an idle Query. It reports Loading until the first Watch push.
func New[T any](store docstore.Reader, decode records.Decoder[T]) *Query[T] {
	return &Query[T]{
		store:     store,
		decode:    decode,
		loading:   true,
		ready:     make(chan struct{}),
		listeners: make(map[chan struct{}]struct{}),
	}
}

// Watch points the query at collection with the given equality filters. Calling it
// again with an equal collection and filter set is a no-op. ctx bounds the
// lifetime of the subscription, not just the call.
func (q *Query[T]) Watch(ctx context.Context, collection string, filters ...docstore.Filter) error {
	q.watchMu.Lock()
	defer q.watchMu.Unlock()

	key := docstore.Key(collection, filters)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return docstore.ErrClosed
	}
	if key == q.key && q.sub != nil {
		q.mu.Unlock()
		return nil
	}
	old := q.sub
	q.gen++
	gen := q.gen
	q.sub = nil
	q.key = key
	q.data = nil
	q.err = nil
	if !q.loading {
		q.loading = true
		q.ready = make(chan struct{})
	}
	q.mu.Unlock()

	old.Close()

	ctx = logging.With(ctx, slog.String("collection", collection))
	sub, err := q.store.Subscribe(ctx, collection, filters...)
	if err != nil {
		q.apply(gen, nil, err)
		return err
	}

	q.mu.Lock()
	q.sub = sub
	q.mu.Unlock()

	go q.consume(ctx, gen, sub)
	return nil
}

// Release drops the current subscription and clears the held data. The query can
// be pointed somewhere else with Watch afterwards.
func (q *Query[T]) Release() {
	q.watchMu.Lock()
	defer q.watchMu.Unlock()

	q.mu.Lock()
	old := q.sub
	q.gen++
	q.sub = nil
	q.key = ""
	q.data = nil
	q.err = nil
	q.finishLoadingLocked()
	q.mu.Unlock()

	old.Close()
	q.notify()
}

// Close releases the subscription for good and closes every change channel.
func (q *Query[T]) Close() {
	q.Release()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for ch := range q.listeners {
		close(ch)
		delete(q.listeners, ch)
	}
}

// Key identifies what the query currently watches. It is empty when idle.
func (q *Query[T]) Key() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// Data returns the latest decoded result set.
func (q *Query[T]) Data() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]T(nil), q.data...)
}

// Loading reports whether the current key has not delivered its first push yet.
func (q *Query[T]) Loading() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loading
}

// Err returns the error that ended the current subscription, if any.
func (q *Query[T]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Snapshot returns data, loading flag and error read atomically.
func (q *Query[T]) Snapshot() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return State[T]{Data: append([]T(nil), q.data...), Loading: q.loading, Err: q.err}
}

// WaitReady blocks until the current key delivered its first push or failed.
func (q *Query[T]) WaitReady(ctx context.Context) error {
	q.mu.Lock()
	ready := q.ready
	q.mu.Unlock()

	select {
	case <-ready:
		return q.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Changes returns a channel that receives a signal after every state change. It is
// coalescing: a reader that falls behind sees a single pending signal. The channel
// is closed when ctx ends or the query is closed.
func (q *Query[T]) Changes(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		close(ch)
		return ch
	}
	q.listeners[ch] = struct{}{}
	q.mu.Unlock()

	go func() {
		<-ctx.Done()
		q.mu.Lock()
		defer q.mu.Unlock()
		if _, ok := q.listeners[ch]; ok {
			delete(q.listeners, ch)
			close(ch)
		}
	}()
	return ch
}

func (q *Query[T]) consume(ctx context.Context, gen uint64, sub *docstore.Subscription) {
	for snap := range sub.Updates() {
		if snap.Err != nil {
			q.apply(gen, nil, snap.Err)
			continue
		}
		q.apply(gen, records.DecodeAll(ctx, snap.Docs, q.decode), nil)
	}
}

func (q *Query[T]) apply(gen uint64, data []T, err error) {
	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		return
	}
	if err != nil {
		q.err = err
	} else {
		q.data = data
		q.err = nil
	}
	q.finishLoadingLocked()
	q.mu.Unlock()

	q.notify()
}

func (q *Query[T]) finishLoadingLocked() {
	if q.loading {
		q.loading = false
		close(q.ready)
	}
}

func (q *Query[T]) notify() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for ch := range q.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
