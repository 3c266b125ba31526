// Package value implements the tagged-union JSON representation shared by the
// schema, template, and tree-execution layers. Every IO slot, leaf stdio
// payload, and interpolation result is expressed as a Value rather than a
// bare interface{}, so the rest of the runtime never has to re-discover a
// value's JSON shape with a type switch.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags the underlying shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged JSON value. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	Arr  []Value
	// Obj and Keys together preserve insertion order: Keys is the ordered
	// key sequence, Obj is the lookup table. Iterating Keys and indexing Obj
	// reproduces authoring order, which the interpolator's "key order
	// preserved" rule (spec.md §4.4) depends on.
	Obj  map[string]Value
	Keys []string
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// NewBool wraps a bool.
func NewBool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// NewNumber wraps a float64.
func NewNumber(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// NewString wraps a string.
func NewString(s string) Value { return Value{Kind: KindString, Str: s} }

// NewArray wraps a slice of Values.
func NewArray(vs []Value) Value { return Value{Kind: KindArray, Arr: vs} }

// NewObject builds an object value from an ordered key list and lookup map.
// Callers own both slices; NewObject does not copy them.
func NewObject(keys []string, obj map[string]Value) Value {
	return Value{Kind: KindObject, Keys: keys, Obj: obj}
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Get returns the value of object key k, or Null with ok=false if v is not
// an object or the key is absent.
func (v Value) Get(k string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	val, ok := v.Obj[k]
	return val, ok
}

// Index returns the element at position i, or Null with ok=false if v is not
// an array or i is out of bounds.
func (v Value) Index(i int) (Value, bool) {
	if v.Kind != KindArray || i < 0 || i >= len(v.Arr) {
		return Value{}, false
	}
	return v.Arr[i], true
}

// FromJSON decodes arbitrary JSON-decoded Go data (as produced by
// encoding/json.Unmarshal into interface{}, or json.Number when a decoder
// uses UseNumber) into a Value.
func FromJSON(data any) Value {
	switch v := data.(type) {
	case nil:
		return Null()
	case bool:
		return NewBool(v)
	case float64:
		return NewNumber(v)
	case json.Number:
		f, _ := v.Float64()
		return NewNumber(f)
	case string:
		return NewString(v)
	case []any:
		out := make([]Value, len(v))
		for i, e := range v {
			out[i] = FromJSON(e)
		}
		return NewArray(out)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(map[string]Value, len(v))
		for k, e := range v {
			obj[k] = FromJSON(e)
		}
		return NewObject(keys, obj)
	default:
		panic(fmt.Sprintf("value: unsupported JSON type %T", data))
	}
}

// ParseJSON decodes a JSON document into a Value, preserving object key
// order as encountered in the source text.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

// decodeValue reads one JSON value from dec using token-level decoding, so
// object key order is preserved exactly as written (encoding/json's
// map[string]any path discards it).
func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: invalid number %q: %w", t.String(), err)
		}
		return NewNumber(f), nil
	case string:
		return NewString(t), nil
	case json.Delim:
		switch t {
		case '[':
			var arr []Value
			for dec.More() {
				el, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr = append(arr, el)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return NewArray(arr), nil
		case '{':
			keys := make([]string, 0)
			obj := make(map[string]Value)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("value: object key is not a string: %v", keyTok)
				}
				el, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				if _, exists := obj[key]; !exists {
					keys = append(keys, key)
				}
				obj[key] = el
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return NewObject(keys, obj), nil
		}
	}
	return Value{}, fmt.Errorf("value: unexpected token %v", tok)
}

// ToInterface converts a Value back into plain Go data (map[string]any,
// []any, string, float64, bool, nil) suitable for json.Marshal.
func (v Value) ToInterface() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindArray:
		out := make([]any, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = e.ToInterface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Obj))
		for k, e := range v.Obj {
			out[k] = e.ToInterface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler, preserving key order for objects.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindString:
		return json.Marshal(v.Str)
	case KindArray:
		buf := []byte{'['}
		for i, e := range v.Arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		}
		buf = append(buf, ']')
		return buf, nil
	case KindObject:
		buf := []byte{'{'}
		for i, k := range v.Keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := v.Obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
