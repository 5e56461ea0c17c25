package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/youngacademy/platform/internal/db"
	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/logging"
)

// ChangeChannel is the notification channel document writes are announced on. The
// payload is the collection name.
const ChangeChannel = "documents_changed"

// PostgresDocumentStore keeps every collection in one JSONB table. Live queries are
// reloaded after local writes and, when notifications are enabled, after writes
// made by other processes sharing the database.
type PostgresDocumentStore struct {
	pool   db.Pool
	hub    *docstore.Hub
	notify bool
	now    func() time.Time
}

// PostgresDocumentStoreOption customises a PostgresDocumentStore.
type PostgresDocumentStoreOption func(*PostgresDocumentStore)

// WithChangeNotifications makes every write announce itself on ChangeChannel.
func WithChangeNotifications() PostgresDocumentStoreOption {
	return func(s *PostgresDocumentStore) {
		s.notify = true
	}
}

// NewPostgresDocumentStore constructs a document store backed by PostgreSQL.
func NewPostgresDocumentStore(pool db.Pool, opts ...PostgresDocumentStoreOption) *PostgresDocumentStore {
	s := &PostgresDocumentStore{
		pool: pool,
		hub:  docstore.NewHub(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores a new document under a generated id.
func (s *PostgresDocumentStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	now := s.now()

	fields := docstore.MergeFields(data, map[string]any{
		docstore.FieldCreatedAt: now,
		docstore.FieldUpdatedAt: now,
	})
	body, err := marshalFields(fields)
	if err != nil {
		return "", err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO documents (collection, id, data, created_at, updated_at)
        VALUES ($1, $2, $3::jsonb, $4, $4)
    `, collection, id, body, now); err != nil {
		if isUniqueViolation(err) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("insert %s document: %w", collection, err)
	}

	s.changed(ctx, conn.Conn(), collection)
	return id, nil
}

// Set creates or replaces a document, keeping its original creation time.
func (s *PostgresDocumentStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if id == "" {
		return fmt.Errorf("set %s: empty document id", collection)
	}
	body, err := marshalFields(data)
	if err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO documents (collection, id, data, created_at, updated_at)
        VALUES ($1, $2, $3::jsonb, $4, $4)
        ON CONFLICT (collection, id)
        DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
    `, collection, id, body, s.now()); err != nil {
		return fmt.Errorf("upsert %s document: %w", collection, err)
	}

	s.changed(ctx, conn.Conn(), collection)
	return nil
}

// Update merges the given top-level fields into an existing document.
func (s *PostgresDocumentStore) Update(ctx context.Context, collection, id string, data map[string]any) error {
	now := s.now()
	body, err := marshalFields(docstore.MergeFields(data, map[string]any{docstore.FieldUpdatedAt: now}))
	if err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// jsonb || jsonb replaces top-level keys wholesale, nested values included.
	tag, err := conn.Exec(ctx, `
        UPDATE documents
        SET data = data || $3::jsonb, updated_at = $4
        WHERE collection = $1 AND id = $2
    `, collection, id, body, now)
	if err != nil {
		return fmt.Errorf("update %s document: %w", collection, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	s.changed(ctx, conn.Conn(), collection)
	return nil
}

// Delete removes a document. Missing documents are not an error.
func (s *PostgresDocumentStore) Delete(ctx context.Context, collection, id string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id); err != nil {
		return fmt.Errorf("delete %s document: %w", collection, err)
	}

	s.changed(ctx, conn.Conn(), collection)
	return nil
}

// Get loads a single document.
func (s *PostgresDocumentStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, data, created_at, updated_at
        FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, docstore.ErrNotFound)
		}
		return docstore.Document{}, fmt.Errorf("select %s document: %w", collection, err)
	}
	return doc, nil
}

// Subscribe opens a live query over the collection.
func (s *PostgresDocumentStore) Subscribe(ctx context.Context, collection string, filters ...docstore.Filter) (*docstore.Subscription, error) {
	contains, err := containment(filters)
	if err != nil {
		return nil, err
	}
	return s.hub.Open(ctx, collection, filters, func(ctx context.Context) ([]docstore.Document, error) {
		return s.query(ctx, collection, contains)
	})
}

// Listen reloads local live queries whenever another process announces a write.
// It blocks until ctx is cancelled.
func (s *PostgresDocumentStore) Listen(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}

	logger := logging.FromContext(ctx)
	logger.Info("listening for document changes", slog.String("channel", ChangeChannel))

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		s.hub.Publish(notification.Payload)
	}
}

// Close shuts all live queries down.
func (s *PostgresDocumentStore) Close() {
	s.hub.Close()
}

func (s *PostgresDocumentStore) query(ctx context.Context, collection, contains string) ([]docstore.Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, data, created_at, updated_at
        FROM documents
        WHERE collection = $1 AND data @> $2::jsonb
        ORDER BY created_at, id
    `, collection, contains)
	if err != nil {
		return nil, fmt.Errorf("query %s documents: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]docstore.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s document: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s documents: %w", collection, err)
	}
	return docs, nil
}

// changed schedules local reloads and announces the write to other processes.
func (s *PostgresDocumentStore) changed(ctx context.Context, conn *pgx.Conn, collection string) {
	s.hub.Publish(collection)
	if !s.notify {
		return
	}
	if _, err := conn.Exec(ctx, `SELECT pg_notify($1, $2)`, ChangeChannel, collection); err != nil {
		logging.FromContext(ctx).Warn("announce document change",
			slog.String("collection", collection),
			slog.Any("error", err),
		)
	}
}

func scanDocument(row pgx.Row) (docstore.Document, error) {
	var doc docstore.Document
	if err := row.Scan(&doc.ID, &doc.Data, &doc.CreateTime, &doc.UpdateTime); err != nil {
		return docstore.Document{}, err
	}
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}
	doc.CreateTime = doc.CreateTime.UTC()
	doc.UpdateTime = doc.UpdateTime.UTC()
	return doc, nil
}

func marshalFields(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(body), nil
}

// containment renders equality filters as a JSONB object for the @> operator.
func containment(filters []docstore.Filter) (string, error) {
	obj := make(map[string]any, len(filters))
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return "", err
		}
		obj[f.Field] = f.Value
	}
	return marshalFields(obj)
}

var _ docstore.Store = (*PostgresDocumentStore)(nil)
