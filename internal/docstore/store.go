// Package docstore defines the document database the application talks to: named
// collections of schemaless documents with create/update/delete calls and live
// queries that push the full matching result set whenever it changes.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrClosed indicates the store or subscription has been shut down.
	ErrClosed = errors.New("document store closed")
	// ErrPermissionDenied indicates the caller may not read or write the collection.
	ErrPermissionDenied = errors.New("permission denied")
)

// Field names stamped by Add and Update.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Document is a single stored record.
type Document struct {
	ID         string
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// Snapshot is one push of a live query: either the complete current result set or
// the error that ended the subscription.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Writer is the write half of a Store.
type Writer interface {
	// Add stores a new document under a generated id and stamps createdAt/updatedAt.
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	// Set creates or replaces the document with the given id.
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Update merges the given top-level fields into an existing document and stamps updatedAt.
	Update(ctx context.Context, collection, id string, data map[string]any) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// Reader is the read half of a Store.
type Reader interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Subscribe(ctx context.Context, collection string, filters ...Filter) (*Subscription, error)
}

// Store is the full document database surface.
type Store interface {
	Reader
	Writer
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func cloneDocument(doc Document) Document {
	doc.Data = cloneData(doc.Data)
	return doc
}

// MergeFields applies a shallow merge of update onto base: top-level keys in update
// replace the ones in base wholesale, nested values included.
func MergeFields(base, update map[string]any) map[string]any {
	out := cloneData(base)
	for k, v := range update {
		out[k] = v
	}
	return out
}
