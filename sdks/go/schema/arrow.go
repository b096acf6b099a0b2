package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/ipc"
)

// ArrowSchemaManager provides utilities for working with Apache Arrow schemas
type ArrowSchemaManager struct{}

// NewArrowSchemaManager creates a new Arrow schema manager
func NewArrowSchemaManager() *ArrowSchemaManager {
	return &ArrowSchemaManager{}
}

// FieldJSON is the JSON form of one schema field. Struct members, the list
// element, and the map key and value are carried as Children.
type FieldJSON struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Nullable bool        `json:"nullable"`
	Children []FieldJSON `json:"children,omitempty"`
}

// SchemaJSON is the JSON form of a schema.
type SchemaJSON struct {
	SchemaID string      `json:"schema_id,omitempty"`
	Fields   []FieldJSON `json:"fields"`
}

// SchemaToJSON converts an Arrow schema to its JSON representation
func (m *ArrowSchemaManager) SchemaToJSON(schema *arrow.Schema, schemaID string) (string, error) {
	doc := SchemaJSON{SchemaID: schemaID, Fields: make([]FieldJSON, 0, schema.NumFields())}
	for _, f := range schema.Fields() {
		fj, err := m.fieldToJSON(f)
		if err != nil {
			return "", err
		}
		doc.Fields = append(doc.Fields, fj)
	}

	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema to JSON: %w", err)
	}
	return string(jsonBytes), nil
}

// SchemaFromJSON parses the representation produced by SchemaToJSON.
func (m *ArrowSchemaManager) SchemaFromJSON(data string) (*arrow.Schema, string, error) {
	var doc SchemaJSON
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, "", fmt.Errorf("failed to parse JSON schema: %w", err)
	}

	fields := make([]arrow.Field, 0, len(doc.Fields))
	for _, fj := range doc.Fields {
		f, err := m.fieldFromJSON(fj)
		if err != nil {
			return nil, "", err
		}
		fields = append(fields, f)
	}
	return arrow.NewSchema(fields, nil), doc.SchemaID, nil
}

func (m *ArrowSchemaManager) fieldToJSON(f arrow.Field) (FieldJSON, error) {
	fj := FieldJSON{Name: f.Name, Nullable: f.Nullable}
	switch dt := f.Type.(type) {
	case *arrow.StructType:
		fj.Type = "struct"
		for _, child := range dt.Fields() {
			c, err := m.fieldToJSON(child)
			if err != nil {
				return FieldJSON{}, err
			}
			fj.Children = append(fj.Children, c)
		}
	case *arrow.MapType:
		fj.Type = "map"
		key, err := m.fieldToJSON(dt.KeyField())
		if err != nil {
			return FieldJSON{}, err
		}
		item, err := m.fieldToJSON(dt.ItemField())
		if err != nil {
			return FieldJSON{}, err
		}
		fj.Children = []FieldJSON{key, item}
	case *arrow.ListType:
		fj.Type = "list"
		elem, err := m.fieldToJSON(dt.ElemField())
		if err != nil {
			return FieldJSON{}, err
		}
		fj.Children = []FieldJSON{elem}
	default:
		name, ok := primitiveNames[f.Type.ID()]
		if !ok {
			return FieldJSON{}, fmt.Errorf("unsupported arrow type %s for field %s", f.Type, f.Name)
		}
		fj.Type = name
	}
	return fj, nil
}

func (m *ArrowSchemaManager) fieldFromJSON(fj FieldJSON) (arrow.Field, error) {
	f := arrow.Field{Name: fj.Name, Nullable: fj.Nullable}
	switch fj.Type {
	case "struct":
		children := make([]arrow.Field, 0, len(fj.Children))
		for _, c := range fj.Children {
			child, err := m.fieldFromJSON(c)
			if err != nil {
				return arrow.Field{}, err
			}
			children = append(children, child)
		}
		f.Type = arrow.StructOf(children...)
	case "list":
		if len(fj.Children) != 1 {
			return arrow.Field{}, fmt.Errorf("list field %s needs one child, got %d", fj.Name, len(fj.Children))
		}
		elem, err := m.fieldFromJSON(fj.Children[0])
		if err != nil {
			return arrow.Field{}, err
		}
		f.Type = arrow.ListOfField(elem)
	case "map":
		if len(fj.Children) != 2 {
			return arrow.Field{}, fmt.Errorf("map field %s needs two children, got %d", fj.Name, len(fj.Children))
		}
		key, err := m.fieldFromJSON(fj.Children[0])
		if err != nil {
			return arrow.Field{}, err
		}
		item, err := m.fieldFromJSON(fj.Children[1])
		if err != nil {
			return arrow.Field{}, err
		}
		mt := arrow.MapOf(key.Type, item.Type)
		mt.SetItemNullable(item.Nullable)
		f.Type = mt
	default:
		dt, err := m.stringToArrowType(fj.Type)
		if err != nil {
			return arrow.Field{}, fmt.Errorf("field %s: %w", fj.Name, err)
		}
		f.Type = dt
	}
	return f, nil
}

var primitiveNames = map[arrow.Type]string{
	arrow.NULL:    "null",
	arrow.BOOL:    "bool",
	arrow.INT8:    "int8",
	arrow.INT16:   "int16",
	arrow.INT32:   "int32",
	arrow.INT64:   "int64",
	arrow.FLOAT32: "float32",
	arrow.FLOAT64: "float64",
	arrow.STRING:  "string",
	arrow.BINARY:  "binary",
}

// stringToArrowType converts string type names to Arrow types
func (m *ArrowSchemaManager) stringToArrowType(typeStr string) (arrow.DataType, error) {
	switch typeStr {
	case "null":
		return arrow.Null, nil
	case "bool", "boolean":
		return arrow.FixedWidthTypes.Boolean, nil
	case "int8":
		return arrow.PrimitiveTypes.Int8, nil
	case "int16", "smallint":
		return arrow.PrimitiveTypes.Int16, nil
	case "int32", "int", "integer":
		return arrow.PrimitiveTypes.Int32, nil
	case "int64", "bigint":
		return arrow.PrimitiveTypes.Int64, nil
	case "float32", "float":
		return arrow.PrimitiveTypes.Float32, nil
	case "float64", "double":
		return arrow.PrimitiveTypes.Float64, nil
	case "string":
		return arrow.BinaryTypes.String, nil
	case "binary", "bytes":
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, fmt.Errorf("unsupported type name: %s", typeStr)
	}
}

// ArrowSchemaToBytes serializes an Arrow schema to bytes for storage in payload
func (m *ArrowSchemaManager) ArrowSchemaToBytes(schema *arrow.Schema) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to serialize Arrow schema: %w", err)
	}
	return buf.Bytes(), nil
}

// ArrowSchemaFromBytes deserializes an Arrow schema from bytes
func (m *ArrowSchemaManager) ArrowSchemaFromBytes(data []byte) (*arrow.Schema, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow reader: %w", err)
	}
	defer reader.Release()
	return reader.Schema(), nil
}
