package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

/* Value holds an arbitrary JSON document whose shape is owned by an external provider
 * Uses value semantics; the wrapped tree is never mutated after construction
 */
type Value struct {
	v any
}

// Kind describes which JSON type a Value holds
type Kind int

const (
	Null Kind = iota + 1
	Bool
	Number
	String
	Array
	Object
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// ErrInvalidJSON is returned when the input is not a single JSON document
var ErrInvalidJSON = errors.New("invalid JSON")

// Parse decodes a JSON document, keeping numbers as json.Number so ids survive untouched
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("%w: trailing data after document", ErrInvalidJSON)
	}
	return Value{v: v}, nil
}

// From wraps an already decoded tree (maps, slices, scalars)
func From(v any) Value {
	return Value{v: v}
}

// ObjectOf builds an object Value from a plain map
func ObjectOf(m map[string]any) Value {
	if m == nil {
		m = map[string]any{}
	}
	return Value{v: m}
}

// Kind returns the JSON type held by the value
func (v Value) Kind() Kind {
	switch v.v.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case json.Number, float64, float32, int, int32, int64, uint, uint32, uint64:
		return Number
	case string:
		return String
	case []any:
		return Array
	case map[string]any:
		return Object
	default:
		return Null
	}
}

// IsNull reports whether the value is JSON null (or empty)
func (v Value) IsNull() bool {
	return v.v == nil
}

// Raw exposes the underlying decoded tree for libraries that walk generic data
func (v Value) Raw() any {
	return v.v
}

// Map returns the object fields, or nil when the value is not an object
func (v Value) Map() map[string]any {
	m, _ := v.v.(map[string]any)
	return m
}

// Get returns the named field of an object, or a null Value
func (v Value) Get(key string) Value {
	m, ok := v.v.(map[string]any)
	if !ok {
		return Value{}
	}
	return Value{v: m[key]}
}

// Lookup walks nested object fields
func (v Value) Lookup(path ...string) Value {
	cur := v
	for _, key := range path {
		cur = cur.Get(key)
		if cur.IsNull() {
			return Value{}
		}
	}
	return cur
}

// AsString returns the value when it is a JSON string
func (v Value) AsString() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Text renders scalars as plain text and containers as compact JSON
func (v Value) Text() string {
	switch t := v.v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// StringField returns a trimmed string field of an object, empty when absent or not a string
func (v Value) StringField(key string) string {
	s, _ := v.Get(key).AsString()
	return strings.TrimSpace(s)
}

// MarshalJSON returns the JSON encoding of the wrapped tree
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.v)
}

// UnmarshalJSON decodes JSON keeping number precision
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
