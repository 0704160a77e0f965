package domain

import (
	"maps"
	"reflect"
	"slices"
)

// Record is a field-name → value mapping used for both the read-only input of
// a sequence run and its accumulating output.
//
// A Record is treated as immutable once handed to the engine: updates go
// through With, which copies. Callers may read a Record concurrently.
type Record map[string]any

// Get returns the raw value stored under key.
func (r Record) Get(key string) any {
	return r[key]
}

// Has reports whether key holds a value. Nil and typed nils are unset.
func (r Record) Has(key string) bool {
	return !IsNil(r[key])
}

// IsNil reports whether v is nil or a nil pointer, map, slice, channel,
// function or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// With returns a copy of r with key set to value. r itself is never modified.
func (r Record) With(key string, value any) Record {
	next := make(Record, len(r)+1)
	maps.Copy(next, r)
	next[key] = value
	return next
}

// Clone returns a shallow copy of r. A nil record clones to an empty one.
func (r Record) Clone() Record {
	next := make(Record, len(r))
	maps.Copy(next, r)
	return next
}

// Keys returns the record's field names in sorted order.
func (r Record) Keys() []string {
	return slices.Sorted(maps.Keys(r))
}

// Field returns the value under key asserted to T. The boolean is false when
// the field is unset, nil, or holds a different type.
func Field[T any](r Record, key string) (T, bool) {
	value, ok := r[key].(T)
	return value, ok
}
