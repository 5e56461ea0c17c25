// Package records converts between stored documents and the typed models. Documents
// come from a schemaless store, so every read is decoded, coerced and validated here
// instead of trusting the stored shape.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/models"
)

var timeType = reflect.TypeOf(time.Time{})

// Decoder maps one document to a typed record.
type Decoder[T any] func(doc docstore.Document) (T, error)

// Encode converts a struct into document fields using its json tags. The top-level
// id is left out since the store keeps it outside the document body.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	delete(out, "id")
	return out, nil
}

// DecodeInto decodes document fields into out, normalising timestamp-shaped values
// and coercing loosely typed scalars.
func DecodeInto(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       timestampHook,
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}

// timestampHook converts every representation a timestamp may have in a stored
// document into a time.Time in UTC.
func timestampHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	ts, err := ParseTimestamp(data)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// ParseTimestamp accepts time values, RFC 3339 strings, {seconds, nanoseconds}
// objects and bare unix numbers. A bare number below unixMillisCutoff is read as
// seconds, anything larger as milliseconds.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return t.UTC(), nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", t, err)
		}
		return parsed.UTC(), nil
	case float64:
		return fromUnix(t), nil
	case int64:
		return fromUnix(float64(t)), nil
	case int:
		return fromUnix(float64(t)), nil
	case map[string]any:
		secs, ok := number(t, "seconds", "_seconds")
		if !ok {
			return time.Time{}, fmt.Errorf("timestamp object without seconds")
		}
		nanos, _ := number(t, "nanoseconds", "nanos", "_nanoseconds")
		return time.Unix(int64(secs), int64(nanos)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

// unixMillisCutoff separates unix seconds from unix milliseconds. As seconds it is
// the year 5138, as milliseconds March 1973.
const unixMillisCutoff = 1e11

func fromUnix(n float64) time.Time {
	if math.Abs(n) < unixMillisCutoff {
		secs, frac := math.Modf(n)
		return time.Unix(int64(secs), int64(frac*1e9)).UTC()
	}
	return time.UnixMilli(int64(n)).UTC()
}

func number(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch n := m[k].(type) {
		case float64:
			return n, true
		case int64:
			return float64(n), true
		case int:
			return float64(n), true
		}
	}
	return 0, false
}

// DecodeUser decodes a users document. The document id is the uid.
func DecodeUser(doc docstore.Document) (models.User, error) {
	var u models.User
	if err := DecodeInto(doc.Data, &u); err != nil {
		return models.User{}, fmt.Errorf("decode user %s: %w", doc.ID, err)
	}
	if u.UID == "" {
		u.UID = doc.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = doc.CreateTime
	}
	if err := Validate(u); err != nil {
		return models.User{}, fmt.Errorf("user %s: %w", doc.ID, err)
	}
	return u, nil
}

// DecodeCourse decodes a courses document.
func DecodeCourse(doc docstore.Document) (models.Course, error) {
	var c models.Course
	if err := DecodeInto(doc.Data, &c); err != nil {
		return models.Course{}, fmt.Errorf("decode course %s: %w", doc.ID, err)
	}
	c.ID = doc.ID
	if err := Validate(c); err != nil {
		return models.Course{}, fmt.Errorf("course %s: %w", doc.ID, err)
	}
	return c, nil
}

// DecodePurchase decodes a purchases document.
func DecodePurchase(doc docstore.Document) (models.Purchase, error) {
	var p models.Purchase
	if err := DecodeInto(doc.Data, &p); err != nil {
		return models.Purchase{}, fmt.Errorf("decode purchase %s: %w", doc.ID, err)
	}
	p.ID = doc.ID
	if err := Validate(p); err != nil {
		return models.Purchase{}, fmt.Errorf("purchase %s: %w", doc.ID, err)
	}
	return p, nil
}

// DecodeProgress decodes a progress document.
func DecodeProgress(doc docstore.Document) (models.Progress, error) {
	var p models.Progress
	if err := DecodeInto(doc.Data, &p); err != nil {
		return models.Progress{}, fmt.Errorf("decode progress %s: %w", doc.ID, err)
	}
	p.ID = doc.ID
	if err := Validate(p); err != nil {
		return models.Progress{}, fmt.Errorf("progress %s: %w", doc.ID, err)
	}
	return p, nil
}

// DecodeAll maps docs through decode. Documents that fail are logged and skipped
// so one malformed record never hides the rest of a list.
func DecodeAll[T any](ctx context.Context, docs []docstore.Document, decode Decoder[T]) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := decode(doc)
		if err != nil {
			logging.FromContext(ctx).Warn("skipping malformed document",
				slog.String("document_id", doc.ID),
				slog.Any("error", err),
			)
			continue
		}
		out = append(out, v)
	}
	return out
}
