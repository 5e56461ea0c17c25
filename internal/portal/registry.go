package portal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youngacademy/platform/internal/logging"
)

// ErrRegistryClosed is returned after Close.
var ErrRegistryClosed = errors.New("instance registry closed")

// Registry creates, finds and evicts application instances.
type Registry struct {
	deps     Deps
	idleTTL  time.Duration
	capacity int
	NowFunc  func() time.Time

	mu        sync.Mutex
	instances map[string]*Instance
	closed    bool
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithCapacity bounds the number of live instances. When full, Create evicts the
// instance that was seen least recently. Zero means unbounded.
func WithCapacity(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// NewRegistry constructs a Registry. Instances idle for longer than idleTTL are
// removed by Sweep.
func NewRegistry(deps Deps, idleTTL time.Duration, opts ...RegistryOption) *Registry {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	r := &Registry{
		deps:      deps,
		idleTTL:   idleTTL,
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a new instance under a random client id. The instance outlives
// ctx; only its values, such as the logger, are inherited.
func (r *Registry) Create(ctx context.Context) (*Instance, error) {
	logger := logging.FromContext(ctx)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}

	var evicted *Instance
	if r.capacity > 0 && len(r.instances) >= r.capacity {
		evicted = r.oldestLocked()
		delete(r.instances, evicted.ID)
	}

	id := uuid.NewString()
	inst, err := newInstance(context.WithoutCancel(ctx), id, r.deps, r.now())
	if err == nil {
		r.instances[id] = inst
	}
	r.mu.Unlock()

	if evicted != nil {
		evicted.Close()
		logger.Warn("instance capacity reached, evicted least recently seen instance",
			slog.String("client_id", evicted.ID),
			slog.Int("capacity", r.capacity),
		)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("application instance created", slog.String("client_id", id))
	return inst, nil
}

func (r *Registry) oldestLocked() *Instance {
	var oldest *Instance
	for _, inst := range r.instances {
		if oldest == nil || inst.LastSeen().Before(oldest.LastSeen()) {
			oldest = inst
		}
	}
	return oldest
}

// Get returns the instance and marks it as active.
func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.Lock()
	inst, ok := r.instances[id]
	r.mu.Unlock()
	if ok {
		inst.Touch(r.now())
	}
	return inst, ok
}

// Evict closes and removes one instance.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	inst, ok := r.instances[id]
	delete(r.instances, id)
	r.mu.Unlock()
	if ok {
		inst.Close()
	}
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Sweep evicts every instance idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Instance
	for id, inst := range r.instances {
		if inst.LastSeen().Before(cutoff) {
			idle = append(idle, inst)
			delete(r.instances, id)
		}
	}
	r.mu.Unlock()

	for _, inst := range idle {
		inst.Close()
	}
	return len(idle)
}

// Run sweeps periodically until ctx ends.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Info("evicted idle application instances", slog.Int("count", n))
			}
		}
	}
}

// Close evicts every instance and rejects new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Instance, 0, len(r.instances))
	for id, inst := range r.instances {
		all = append(all, inst)
		delete(r.instances, id)
	}
	r.mu.Unlock()

	for _, inst := range all {
		inst.Close()
	}
}

func (r *Registry) now() time.Time {
	if r.NowFunc != nil {
		return r.NowFunc()
	}
	return time.Now()
}
