package docstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/youngacademy/platform/internal/logging"
)

// Loader produces the current result set of one live query.
type Loader func(ctx context.Context) ([]Document, error)

// Subscription is a live query. Every change to its collection schedules a reload
// and the latest full result set is pushed on Updates. Snapshots are conflated: if
// the consumer has not read the previous push it is replaced by the newer one.
type Subscription struct {
	Collection string
	Filters    []Filter

	hub     *Hub
	load    Loader
	updates chan Snapshot
	dirty   chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Updates delivers snapshots until the subscription is closed or fails. The
// channel is closed afterwards.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Close releases the subscription and waits for its worker to stop. Pushes that
// were still in flight are dropped.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancel()
		if s.hub != nil {
			s.hub.remove(s)
		}
	})
	<-s.done
}

// Done is closed once the subscription worker has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	defer close(s.updates)

	logger := logging.FromContext(s.ctx)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.dirty:
		}

		docs, err := s.load(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		s.deliver(Snapshot{Docs: docs, Err: err})
		if err != nil {
			logger.Warn("live query failed", slog.String("collection", s.Collection), slog.Any("error", err))
			return
		}
	}
}

func (s *Subscription) deliver(snap Snapshot) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case s.updates <- snap:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// Hub fans change notifications out to the live queries of each collection. Store
// implementations call Publish after every successful write.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Open registers a live query and schedules its first push.
func (h *Hub) Open(ctx context.Context, collection string, filters []Filter, load Loader) (*Subscription, error) {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		Collection: collection,
		Filters:    append([]Filter(nil), filters...),
		hub:        h,
		load:       load,
		updates:    make(chan Snapshot, 1),
		dirty:      make(chan struct{}, 1),
		ctx:        subCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	set, ok := h.subs[collection]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[collection] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	sub.markDirty()
	go sub.run()

	return sub, nil
}

// Publish schedules a reload for every live query on the collection.
func (h *Hub) Publish(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[collection] {
		sub.markDirty()
	}
}

// Len returns the number of open live queries on the collection.
func (h *Hub) Len(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

// Close shuts every live query down and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.Collection]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.Collection)
	}
}
