package lasformat

// Merge unifies two schemas into one.
//
// A field present in both inputs keeps its name, takes the promoted common
// type of the two input types and is nullable if either side is. A field
// present on one side only is carried over as nullable. Left fields come first
// in left order, followed by right-only fields in right order.
//
// Promotion: integers widen to the wider integer; float32 and float64 give
// float64; an integer narrower than 64 bits and a float give float64. An int64
// and a float have no exact common representation and fail, as does any other
// mix of kinds. Null merges into whatever the other side is. Struct, list and
// map types merge member-wise with the same rules.
func Merge(left, right Schema) (Schema, error) {
	fields, err := mergeFields("", left.Fields, right.Fields)
	if err != nil {
		return Schema{}, err
	}
	name := left.Name
	if left.Name != right.Name {
		name = left.Name + "+" + right.Name
	}
	return Schema{Name: name, Fields: fields}, nil
}

// MergeAll folds Merge over schemas from left to right. It returns the empty
// schema when called with no arguments.
func MergeAll(schemas ...Schema) (Schema, error) {
	if len(schemas) == 0 {
		return Schema{}, nil
	}
	acc := schemas[0]
	for _, s := range schemas[1:] {
		merged, err := Merge(acc, s)
		if err != nil {
			return Schema{}, err
		}
		acc = merged
	}
	return acc, nil
}

func mergeFields(prefix string, left, right []Field) ([]Field, error) {
	leftIdx := make(map[string]int, len(left))
	for i, f := range left {
		leftIdx[f.Name] = i
	}
	rightIdx := make(map[string]int, len(right))
	for i, f := range right {
		rightIdx[f.Name] = i
	}

	out := make([]Field, 0, len(left)+len(right))
	for _, l := range left {
		i, ok := rightIdx[l.Name]
		if !ok {
			out = append(out, Field{Name: l.Name, Type: l.Type, Nullable: true})
			continue
		}
		r := right[i]
		t, err := mergeType(fieldPath(prefix, l.Name), l.Type, r.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, Field{Name: l.Name, Type: t, Nullable: l.Nullable || r.Nullable})
	}
	for _, r := range right {
		if _, ok := leftIdx[r.Name]; ok {
			continue
		}
		out = append(out, Field{Name: r.Name, Type: r.Type, Nullable: true})
	}
	return out, nil
}

func mergeType(name string, l, r DataType) (DataType, error) {
	if l.Kind == r.Kind {
		switch l.Kind {
		case KindStruct:
			fields, err := mergeFields(name, l.Fields, r.Fields)
			if err != nil {
				return DataType{}, err
			}
			return StructOf(fields...), nil
		case KindList:
			elem, err := mergeType(name+".element", *l.Elem, *r.Elem)
			if err != nil {
				return DataType{}, err
			}
			return ListOf(elem, l.ElemNullable || r.ElemNullable), nil
		case KindMap:
			key, err := mergeType(name+".key", *l.Key, *r.Key)
			if err != nil {
				return DataType{}, err
			}
			value, err := mergeType(name+".value", *l.Elem, *r.Elem)
			if err != nil {
				return DataType{}, err
			}
			return MapOf(key, value, l.ElemNullable || r.ElemNullable), nil
		default:
			return l, nil
		}
	}

	switch {
	case l.Kind == KindNull:
		return r, nil
	case r.Kind == KindNull:
		return l, nil
	}

	t, ok := promote(l.Kind, r.Kind)
	if !ok {
		return DataType{}, &IncompatibleFieldTypeError{Name: name, Left: l, Right: r}
	}
	return t, nil
}

// promote resolves two distinct numeric kinds to their common type. It is
// symmetric in its arguments.
func promote(a, b Kind) (DataType, bool) {
	switch {
	case a.IsInteger() && b.IsInteger():
		// integer kinds are declared in width order
		if a > b {
			return DataType{Kind: a}, true
		}
		return DataType{Kind: b}, true
	case a.IsFloat() && b.IsFloat():
		return Float64, true
	case a.IsInteger() && b.IsFloat():
		return Float64, a != KindInt64
	case a.IsFloat() && b.IsInteger():
		return Float64, b != KindInt64
	default:
		return DataType{}, false
	}
}

func fieldPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
