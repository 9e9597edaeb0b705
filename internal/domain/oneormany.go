package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OneOrMany holds a joined sub-object that the backend may render either as a
// single object or as an array, depending on the relationship's cardinality.
// Resolve it once with List or First; callers never inspect the shape.
type OneOrMany[T any] struct {
	items []T
	many  bool
}

// One wraps a single value that marshals as a JSON object.
func One[T any](v T) OneOrMany[T] {
	return OneOrMany[T]{items: []T{v}}
}

// Many wraps values that marshal as a JSON array.
func Many[T any](vs ...T) OneOrMany[T] {
	return OneOrMany[T]{items: vs, many: true}
}

// List returns the values as a slice. A null or missing field yields an
// empty slice.
func (o OneOrMany[T]) List() []T {
	if len(o.items) == 0 {
		return []T{}
	}
	out := make([]T, len(o.items))
	copy(out, o.items)
	return out
}

// First returns the first value, if any.
func (o OneOrMany[T]) First() (T, bool) {
	var zero T
	if len(o.items) == 0 {
		return zero, false
	}
	return o.items[0], true
}

func (o *OneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		o.items, o.many = nil, false
		return nil
	case trimmed[0] == '[':
		var vs []T
		if err := json.Unmarshal(trimmed, &vs); err != nil {
			return fmt.Errorf("decode array: %w", err)
		}
		o.items, o.many = vs, true
		return nil
	default:
		var v T
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return fmt.Errorf("decode object: %w", err)
		}
		o.items, o.many = []T{v}, false
		return nil
	}
}

func (o OneOrMany[T]) MarshalJSON() ([]byte, error) {
	if o.many {
		if o.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(o.items)
	}
	if len(o.items) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(o.items[0])
}
