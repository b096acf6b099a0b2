package lasformat

import "fmt"

type castKey struct {
	from Kind
	to   Kind
}

type castFunc func(v any) any

// castTable holds every widening the merge lattice can produce. A successful
// Merge of two primitive types implies an entry from each input to the result.
var castTable = buildCastTable()

func buildCastTable() map[castKey]castFunc {
	table := make(map[castKey]castFunc)
	ints := []Kind{KindInt8, KindInt16, KindInt32, KindInt64}

	for i, from := range ints {
		for _, to := range ints[i+1:] {
			table[castKey{from, to}] = intWidener(to)
		}
		if from != KindInt64 {
			table[castKey{from, KindFloat64}] = func(v any) any {
				n, _ := toInt64(v)
				return float64(n)
			}
		}
	}
	table[castKey{KindFloat32, KindFloat64}] = func(v any) any {
		return float64(v.(float32))
	}
	return table
}

func intWidener(to Kind) castFunc {
	return func(v any) any {
		n, _ := toInt64(v)
		switch to {
		case KindInt16:
			return int16(n)
		case KindInt32:
			return int32(n)
		default:
			return n
		}
	}
}

// CanCast reports whether a value of type from can be converted to type to.
// Structs, lists and maps cast member-wise. A nested field or element may gain
// nullability but never lose it, and a struct field absent from the source
// must be nullable in the target.
func CanCast(from, to DataType) bool {
	if from.Kind == KindNull || from.Equal(to) {
		return true
	}
	switch {
	case from.Kind == KindStruct && to.Kind == KindStruct:
		return canCastFields(from.Fields, to.Fields)
	case from.Kind == KindList && to.Kind == KindList:
		return widensNullability(from.ElemNullable, to.ElemNullable) && CanCast(*from.Elem, *to.Elem)
	case from.Kind == KindMap && to.Kind == KindMap:
		return widensNullability(from.ElemNullable, to.ElemNullable) &&
			CanCast(*from.Key, *to.Key) && CanCast(*from.Elem, *to.Elem)
	}
	_, ok := castTable[castKey{from.Kind, to.Kind}]
	return ok
}

func canCastFields(from, to []Field) bool {
	target := make(map[string]Field, len(to))
	for _, f := range to {
		target[f.Name] = f
	}
	for _, f := range from {
		t, ok := target[f.Name]
		if !ok || !widensNullability(f.Nullable, t.Nullable) || !CanCast(f.Type, t.Type) {
			return false
		}
		delete(target, f.Name)
	}
	for _, t := range target {
		if !t.Nullable {
			return false
		}
	}
	return true
}

func widensNullability(from, to bool) bool {
	return to || !from
}

// Cast converts v, a value of type from, to type to. Nil and Null-typed values
// cast to nil. Struct values are map[string]any keyed by field name, list
// values are []any and map values are map[any]any. Struct fields missing from
// the source cast to nil.
func Cast(v any, from, to DataType) (any, error) {
	if v == nil || from.Kind == KindNull {
		return nil, nil
	}
	if from.Equal(to) {
		return v, nil
	}
	if !CanCast(from, to) {
		return nil, &UnsupportedCastError{From: from, To: to}
	}

	switch from.Kind {
	case KindStruct:
		src, ok := v.(map[string]any)
		if !ok {
			return nil, unexpectedValue(v, from)
		}
		types := make(map[string]DataType, len(from.Fields))
		for _, f := range from.Fields {
			types[f.Name] = f.Type
		}
		out := make(map[string]any, len(to.Fields))
		for _, f := range to.Fields {
			typ, ok := types[f.Name]
			if !ok {
				out[f.Name] = nil
				continue
			}
			cv, err := Cast(src[f.Name], typ, f.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			out[f.Name] = cv
		}
		return out, nil
	case KindList:
		src, ok := v.([]any)
		if !ok {
			return nil, unexpectedValue(v, from)
		}
		out := make([]any, len(src))
		for i, e := range src {
			cv, err := Cast(e, *from.Elem, *to.Elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	case KindMap:
		src, ok := v.(map[any]any)
		if !ok {
			return nil, unexpectedValue(v, from)
		}
		out := make(map[any]any, len(src))
		for k, e := range src {
			ck, err := Cast(k, *from.Key, *to.Key)
			if err != nil {
				return nil, fmt.Errorf("key %v: %w", k, err)
			}
			ce, err := Cast(e, *from.Elem, *to.Elem)
			if err != nil {
				return nil, fmt.Errorf("value at %v: %w", k, err)
			}
			out[ck] = ce
		}
		return out, nil
	}
	return castTable[castKey{from.Kind, to.Kind}](v), nil
}

func unexpectedValue(v any, t DataType) error {
	return fmt.Errorf("%w: %T is not a %s value", ErrUnsupportedType, v, t)
}
