package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used for local development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	denied      map[string]error
	hub         *Hub
	now         func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		denied:      make(map[string]error),
		hub:         NewHub(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithNowFunc allows tests to override the time source.
func (s *MemoryStore) WithNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Deny makes every read and write on the collection fail with err, mimicking
// access rules enforced by the backend. A nil err lifts the restriction.
func (s *MemoryStore) Deny(collection string, err error) {
	s.mu.Lock()
	if err == nil {
		delete(s.denied, collection)
	} else {
		s.denied[collection] = err
	}
	s.mu.Unlock()
	s.hub.Publish(collection)
}

// Add stores a new document under a generated id.
func (s *MemoryStore) Add(_ context.Context, collection string, data map[string]any) (string, error) {
	s.mu.Lock()
	if err := s.deniedLocked(collection); err != nil {
		s.mu.Unlock()
		return "", err
	}
	now := s.now()
	id := uuid.NewString()
	doc := Document{ID: id, Data: cloneData(data), CreateTime: now, UpdateTime: now}
	doc.Data[FieldCreatedAt] = now
	doc.Data[FieldUpdatedAt] = now
	s.collectionLocked(collection)[id] = doc
	s.mu.Unlock()

	s.hub.Publish(collection)
	return id, nil
}

// Set creates or replaces a document.
func (s *MemoryStore) Set(_ context.Context, collection, id string, data map[string]any) error {
	if id == "" {
		return fmt.Errorf("set %s: empty document id", collection)
	}
	s.mu.Lock()
	if err := s.deniedLocked(collection); err != nil {
		s.mu.Unlock()
		return err
	}
	now := s.now()
	docs := s.collectionLocked(collection)
	created := now
	if existing, ok := docs[id]; ok {
		created = existing.CreateTime
	}
	docs[id] = Document{ID: id, Data: cloneData(data), CreateTime: created, UpdateTime: now}
	s.mu.Unlock()

	s.hub.Publish(collection)
	return nil
}

// Update merges fields into an existing document.
func (s *MemoryStore) Update(_ context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	if err := s.deniedLocked(collection); err != nil {
		s.mu.Unlock()
		return err
	}
	docs := s.collectionLocked(collection)
	existing, ok := docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	now := s.now()
	existing.Data = MergeFields(existing.Data, data)
	existing.Data[FieldUpdatedAt] = now
	existing.UpdateTime = now
	docs[id] = existing
	s.mu.Unlock()

	s.hub.Publish(collection)
	return nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	if err := s.deniedLocked(collection); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.collectionLocked(collection), id)
	s.mu.Unlock()

	s.hub.Publish(collection)
	return nil
}

// Get returns a copy of the stored document.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.deniedLocked(collection); err != nil {
		return Document{}, err
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return cloneDocument(doc), nil
}

// Subscribe opens a live query over the collection.
func (s *MemoryStore) Subscribe(ctx context.Context, collection string, filters ...Filter) (*Subscription, error) {
	return s.hub.Open(ctx, collection, filters, func(context.Context) ([]Document, error) {
		return s.query(collection, filters)
	})
}

// Subscriptions returns the number of open live queries on the collection.
func (s *MemoryStore) Subscriptions(collection string) int {
	return s.hub.Len(collection)
}

// Close shuts all live queries down.
func (s *MemoryStore) Close() {
	s.hub.Close()
}

func (s *MemoryStore) query(collection string, filters []Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.deniedLocked(collection); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		if Matches(doc.Data, filters) {
			docs = append(docs, cloneDocument(doc))
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreateTime.Equal(docs[j].CreateTime) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreateTime.Before(docs[j].CreateTime)
	})
	return docs, nil
}

func (s *MemoryStore) collectionLocked(collection string) map[string]Document {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		s.collections[collection] = docs
	}
	return docs
}

func (s *MemoryStore) deniedLocked(collection string) error {
	if err, ok := s.denied[collection]; ok {
		return fmt.Errorf("%s: %w", collection, err)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
