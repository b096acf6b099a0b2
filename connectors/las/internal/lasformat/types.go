// Package lasformat decodes LAS point-cloud files into typed, column-addressable
// records and reconciles the record layouts of different point formats into a
// single schema.
//
// The package performs no I/O. Callers hand it byte blocks (a header prefix, a
// run of point records) and get back headers, sections and decoded values.
package lasformat

import (
	"fmt"
	"strings"
)

// Kind tags the variant held by a DataType.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindStruct
	KindList
	KindMap
)

var kindNames = [...]string{
	KindNull:    "null",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindBool:    "bool",
	KindString:  "string",
	KindStruct:  "struct",
	KindList:    "list",
	KindMap:     "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsInteger reports whether k is one of the signed integer kinds.
func (k Kind) IsInteger() bool {
	return k >= KindInt8 && k <= KindInt64
}

// IsFloat reports whether k is one of the IEEE float kinds.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// IsNumeric reports whether k is an integer or float kind.
func (k Kind) IsNumeric() bool {
	return k.IsInteger() || k.IsFloat()
}

// DataType is a closed sum over the primitive and composite types a field may
// carry. Only the members relevant to Kind are populated:
//
//	KindStruct: Fields
//	KindList:   Elem, ElemNullable
//	KindMap:    Key, Elem, ElemNullable
type DataType struct {
	Kind         Kind
	Fields       []Field
	Key          *DataType
	Elem         *DataType
	ElemNullable bool
}

// Primitive types.
var (
	Null    = DataType{Kind: KindNull}
	Int8    = DataType{Kind: KindInt8}
	Int16   = DataType{Kind: KindInt16}
	Int32   = DataType{Kind: KindInt32}
	Int64   = DataType{Kind: KindInt64}
	Float32 = DataType{Kind: KindFloat32}
	Float64 = DataType{Kind: KindFloat64}
	Bool    = DataType{Kind: KindBool}
	String  = DataType{Kind: KindString}
)

// StructOf returns a struct type with the given fields.
func StructOf(fields ...Field) DataType {
	return DataType{Kind: KindStruct, Fields: fields}
}

// ListOf returns a list type with the given element type.
func ListOf(elem DataType, elemNullable bool) DataType {
	return DataType{Kind: KindList, Elem: &elem, ElemNullable: elemNullable}
}

// MapOf returns a map type with the given key and value types.
func MapOf(key, value DataType, valueNullable bool) DataType {
	return DataType{Kind: KindMap, Key: &key, Elem: &value, ElemNullable: valueNullable}
}

// Size returns the on-disk width of a primitive type in bytes. Null occupies
// zero bytes; non-fixed-width types report -1.
func (t DataType) Size() int {
	switch t.Kind {
	case KindNull:
		return 0
	case KindInt8:
		return 1
	case KindInt16:
		return 2
	case KindInt32, KindFloat32:
		return 4
	case KindInt64, KindFloat64:
		return 8
	default:
		return -1
	}
}

// Equal reports whether two types are structurally identical.
func (t DataType) Equal(o DataType) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindStruct:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if !t.Fields[i].Equal(o.Fields[i]) {
				return false
			}
		}
		return true
	case KindList:
		return t.ElemNullable == o.ElemNullable && t.Elem.Equal(*o.Elem)
	case KindMap:
		return t.ElemNullable == o.ElemNullable && t.Key.Equal(*o.Key) && t.Elem.Equal(*o.Elem)
	default:
		return true
	}
}

func (t DataType) String() string {
	switch t.Kind {
	case KindStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "struct<" + strings.Join(parts, ", ") + ">"
	case KindList:
		return "list<" + t.Elem.String() + ">"
	case KindMap:
		return "map<" + t.Key.String() + ", " + t.Elem.String() + ">"
	default:
		return t.Kind.String()
	}
}

// Field is a named, typed member of a schema or struct type.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
}

// Equal reports whether two fields have the same name, type and nullability.
func (f Field) Equal(o Field) bool {
	return f.Name == o.Name && f.Nullable == o.Nullable && f.Type.Equal(o.Type)
}

func (f Field) String() string {
	if f.Nullable {
		return f.Name + ": " + f.Type.String() + "?"
	}
	return f.Name + ": " + f.Type.String()
}

// Schema is a named, ordered sequence of fields. Point record schemas from the
// catalog and unified schemas produced by Merge share this representation.
type Schema struct {
	Name   string
	Fields []Field
}

// NewSchema builds a schema of non-nullable fields from name/type pairs.
func NewSchema(name string, fields ...Field) Schema {
	return Schema{Name: name, Fields: fields}
}

// Field returns the field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Length returns the sum of the field byte sizes, i.e. the packed record
// length. Non-fixed-width fields contribute nothing.
func (s Schema) Length() int {
	n := 0
	for _, f := range s.Fields {
		if sz := f.Type.Size(); sz > 0 {
			n += sz
		}
	}
	return n
}

// Equal reports whether two schemas have identical field sequences. Names are
// not compared.
func (s Schema) Equal(o Schema) bool {
	if len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if !s.Fields[i].Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}
	return s.Name + "(" + strings.Join(parts, ", ") + ")"
}

// IdentityField is the name of the synthetic per-record ordinal column.
const IdentityField = "id"

// WithIdentity returns a copy of s with the identity field prepended. A schema
// that already starts with the identity field is returned unchanged.
func WithIdentity(s Schema) Schema {
	if len(s.Fields) > 0 && s.Fields[0].Name == IdentityField {
		return s
	}
	fields := make([]Field, 0, len(s.Fields)+1)
	fields = append(fields, Field{Name: IdentityField, Type: Int64})
	fields = append(fields, s.Fields...)
	return Schema{Name: s.Name, Fields: fields}
}
