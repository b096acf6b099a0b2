package las

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/data-power-io/noesis-las/connectors/las/internal/lasformat"
)

// ToArrowSchema converts a record schema to its Arrow form. The schema name
// is kept as metadata.
func ToArrowSchema(s lasformat.Schema) (*arrow.Schema, error) {
	fields, err := toArrowFields(s.Fields)
	if err != nil {
		return nil, err
	}
	md := arrow.NewMetadata([]string{"name"}, []string{s.Name})
	return arrow.NewSchema(fields, &md), nil
}

// ProjectArrowSchema returns the Arrow schema of the named columns of s, in
// request order.
func ProjectArrowSchema(s lasformat.Schema, columns []string) (*arrow.Schema, error) {
	fields := make([]lasformat.Field, 0, len(columns))
	for _, name := range columns {
		f, ok := s.Field(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		fields = append(fields, f)
	}
	return ToArrowSchema(lasformat.Schema{Name: s.Name, Fields: fields})
}

func toArrowFields(fields []lasformat.Field) ([]arrow.Field, error) {
	out := make([]arrow.Field, len(fields))
	for i, f := range fields {
		t, err := toArrowType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out[i] = arrow.Field{Name: f.Name, Type: t, Nullable: f.Nullable}
	}
	return out, nil
}

func toArrowType(t lasformat.DataType) (arrow.DataType, error) {
	switch t.Kind {
	case lasformat.KindNull:
		return arrow.Null, nil
	case lasformat.KindInt8:
		return arrow.PrimitiveTypes.Int8, nil
	case lasformat.KindInt16:
		return arrow.PrimitiveTypes.Int16, nil
	case lasformat.KindInt32:
		return arrow.PrimitiveTypes.Int32, nil
	case lasformat.KindInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case lasformat.KindFloat32:
		return arrow.PrimitiveTypes.Float32, nil
	case lasformat.KindFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case lasformat.KindBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case lasformat.KindString:
		return arrow.BinaryTypes.String, nil
	case lasformat.KindStruct:
		fields, err := toArrowFields(t.Fields)
		if err != nil {
			return nil, err
		}
		return arrow.StructOf(fields...), nil
	case lasformat.KindList:
		elem, err := toArrowType(*t.Elem)
		if err != nil {
			return nil, err
		}
		return arrow.ListOfField(arrow.Field{Name: "element", Type: elem, Nullable: t.ElemNullable}), nil
	case lasformat.KindMap:
		key, err := toArrowType(*t.Key)
		if err != nil {
			return nil, err
		}
		value, err := toArrowType(*t.Elem)
		if err != nil {
			return nil, err
		}
		m := arrow.MapOf(key, value)
		m.SetItemNullable(t.ElemNullable)
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %s", lasformat.ErrUnsupportedType, t)
	}
}
