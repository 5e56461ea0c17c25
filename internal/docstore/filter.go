package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// OpEqual is the only comparison live queries need.
const OpEqual = "=="

// Filter restricts a live query to documents whose field satisfies the comparison.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Where builds a filter, e.g. Where("userId", "==", uid).
func Where(field, op string, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Validate reports unsupported operators or empty field names.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.Field) == "" {
		return fmt.Errorf("filter: empty field")
	}
	if f.Op != OpEqual {
		return fmt.Errorf("filter %s: unsupported operator %q", f.Field, f.Op)
	}
	return nil
}

// Matches reports whether data satisfies every filter.
func Matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok {
			return false
		}
		if !valuesEqual(v, f.Value) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	// JSON decoding turns every number into float64, so compare numbers by value.
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Key renders a collection and filter set into a canonical string so two queries can
// be compared by value regardless of filter order.
func Key(collection string, filters []Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, fmt.Sprintf("%s%s%#v", f.Field, f.Op, f.Value))
	}
	sort.Strings(parts)
	return collection + "?" + strings.Join(parts, "&")
}
