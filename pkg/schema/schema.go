// Package schema implements the Type Validator (spec.md §4.3, component C3):
// it compiles a manifest's structural type definitions into a Schema and
// validates a value.Value against it in strict mode.
package schema

import (
	"fmt"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/value"
)

// Kind tags the shape of a compiled Schema node.
type Kind int

const (
	KindPrimitive Kind = iota
	KindComposite
	KindArray
)

// Primitive names a JSON-shape primitive recognized by the type grammar.
type Primitive string

const (
	PrimitiveString Primitive = "string"
	PrimitiveNumber Primitive = "number"
	PrimitiveBool   Primitive = "bool"
	PrimitiveObject Primitive = "object" // accepts any shape
)

// Field is one member of a composite Schema.
type Field struct {
	Name     string
	Schema   *Schema
	Required bool
}

// Schema is a compiled structural type, ready to validate value.Value data.
type Schema struct {
	Kind      Kind
	Primitive Primitive

	// Composite
	Fields     map[string]*Field
	FieldOrder []string

	// Array
	Items *Schema
}

const maxCompileDepth = 64

// Compile compiles a raw type definition (as found in a manifest's "types"
// table, an IO slot's named type, or a nested "properties"/"items" value)
// into a Schema. types resolves named-type references.
func Compile(def value.Value, types map[string]value.Value) (*Schema, error) {
	return compile(def, types, 0)
}

// CompileNamed resolves typeName (a primitive name or a key into types) and
// compiles it, exactly as an IO slot's declared Type is resolved
// (spec.md §3: "Type references in IO slots are either primitives ... or
// keys in types").
func CompileNamed(typeName string, types map[string]value.Value) (*Schema, error) {
	return compileNamed(typeName, types, 0)
}

func compileNamed(name string, types map[string]value.Value, depth int) (*Schema, error) {
	switch Primitive(name) {
	case PrimitiveString, PrimitiveNumber, PrimitiveBool, PrimitiveObject:
		return &Schema{Kind: KindPrimitive, Primitive: Primitive(name)}, nil
	}
	def, ok := types[name]
	if !ok {
		return nil, fmt.Errorf("schema: unknown type %q", name)
	}
	return compile(def, types, depth+1)
}

func compile(def value.Value, types map[string]value.Value, depth int) (*Schema, error) {
	if depth > maxCompileDepth {
		return nil, fmt.Errorf("schema: type definition nesting exceeds %d levels", maxCompileDepth)
	}

	switch def.Kind {
	case value.KindString:
		// A bare string names a primitive or another named type.
		return compileNamed(def.Str, types, depth)

	case value.KindArray:
		// "Arrays compile their first element as the items schema."
		if len(def.Arr) == 0 {
			return nil, fmt.Errorf("schema: empty array type definition")
		}
		items, err := compile(def.Arr[0], types, depth+1)
		if err != nil {
			return nil, err
		}
		return &Schema{Kind: KindArray, Items: items}, nil

	case value.KindObject:
		if typeField, ok := def.Get("type"); ok {
			return compileField(def, typeField, types, depth)
		}
		return compileComposite(def, types, depth)

	default:
		return nil, fmt.Errorf("schema: cannot compile a type definition of kind %s", def.Kind)
	}
}

// compileField compiles an object carrying a "type" key: a field
// definition with an optional "properties" (refines an object type) and
// optional "items" (makes the field an array).
func compileField(def, typeField value.Value, types map[string]value.Value, depth int) (*Schema, error) {
	if items, ok := def.Get("items"); ok {
		itemSchema, err := compile(items, types, depth+1)
		if err != nil {
			return nil, err
		}
		return &Schema{Kind: KindArray, Items: itemSchema}, nil
	}

	if typeField.Kind != value.KindString {
		return nil, fmt.Errorf("schema: field \"type\" must be a string")
	}

	base, err := compileNamed(typeField.Str, types, depth)
	if err != nil {
		return nil, err
	}

	if props, ok := def.Get("properties"); ok && props.Kind == value.KindObject {
		composite, err := compileComposite(props, types, depth+1)
		if err != nil {
			return nil, err
		}
		return composite, nil
	}

	return base, nil
}

// compileComposite compiles an object whose keys are field names mapping
// to field definitions. The compiled schema requires exactly the keys
// marked required:true and rejects unknown properties at validate time.
func compileComposite(def value.Value, types map[string]value.Value, depth int) (*Schema, error) {
	s := &Schema{
		Kind:       KindComposite,
		Fields:     make(map[string]*Field, len(def.Keys)),
		FieldOrder: append([]string(nil), def.Keys...),
	}
	for _, name := range def.Keys {
		fieldDef := def.Obj[name]
		fieldSchema, err := compile(fieldDef, types, depth+1)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		required := false
		if fieldDef.Kind == value.KindObject {
			if r, ok := fieldDef.Get("required"); ok && r.Kind == value.KindBool {
				required = r.Bool
			}
		}
		s.Fields[name] = &Field{Name: name, Schema: fieldSchema, Required: required}
	}
	return s, nil
}

// Validate checks v against s, returning an *action.Error with code
// CodeTypeMismatch describing the first failing location, or nil.
func Validate(v value.Value, s *Schema, path string) error {
	if s == nil {
		return nil
	}
	switch s.Kind {
	case KindPrimitive:
		return validatePrimitive(v, s.Primitive, path)
	case KindComposite:
		return validateComposite(v, s, path)
	case KindArray:
		return validateArray(v, s, path)
	default:
		return action.InternalError("schema: unknown compiled kind %d", s.Kind)
	}
}

func validatePrimitive(v value.Value, p Primitive, path string) error {
	switch p {
	case PrimitiveObject:
		return nil
	case PrimitiveString:
		if v.Kind != value.KindString {
			return action.TypeMismatch(path, "string", v.Kind.String())
		}
	case PrimitiveNumber:
		if v.Kind != value.KindNumber {
			return action.TypeMismatch(path, "number", v.Kind.String())
		}
	case PrimitiveBool:
		if v.Kind != value.KindBool {
			return action.TypeMismatch(path, "bool", v.Kind.String())
		}
	}
	return nil
}

func validateComposite(v value.Value, s *Schema, path string) error {
	if v.Kind != value.KindObject {
		return action.TypeMismatch(path, "object", v.Kind.String())
	}
	for _, name := range s.FieldOrder {
		field := s.Fields[name]
		fv, present := v.Get(name)
		if !present {
			if field.Required {
				return action.TypeMismatch(joinPath(path, name), "required field", "missing")
			}
			continue
		}
		if err := Validate(fv, field.Schema, joinPath(path, name)); err != nil {
			return err
		}
	}
	// Strict mode: reject unknown properties.
	for _, key := range v.Keys {
		if _, known := s.Fields[key]; !known {
			return action.TypeMismatch(joinPath(path, key), "no such property", "unexpected")
		}
	}
	return nil
}

func validateArray(v value.Value, s *Schema, path string) error {
	if v.Kind != value.KindArray {
		return action.TypeMismatch(path, "array", v.Kind.String())
	}
	for i, el := range v.Arr {
		if err := Validate(el, s.Items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
