package lasformat

import "fmt"

// MaxPointFormat is the highest point data record format code in the catalog.
const MaxPointFormat = 10

// Field groups. Every point format is the base prefix followed by one of the
// two legacy/extended groups, then the optional groups in this order.
var (
	basePrefix = []Field{
		{Name: "x", Type: Int32},
		{Name: "y", Type: Int32},
		{Name: "z", Type: Int32},
		{Name: "intensity", Type: Int16},
	}

	// formats 0-5
	legacyGroup = []Field{
		{Name: "flags", Type: Int8},
		{Name: "classification", Type: Int8},
		{Name: "angle", Type: Int8},
		{Name: "user", Type: Int8},
		{Name: "source", Type: Int16},
	}

	// formats 6-10
	extendedGroup = []Field{
		{Name: "return", Type: Int8},
		{Name: "flags", Type: Int8},
		{Name: "classification", Type: Int8},
		{Name: "user", Type: Int8},
		{Name: "angle", Type: Int16},
		{Name: "source", Type: Int16},
		{Name: "time", Type: Float64},
	}

	timeGroup = []Field{
		{Name: "time", Type: Float64},
	}

	colorGroup = []Field{
		{Name: "red", Type: Int16},
		{Name: "green", Type: Int16},
		{Name: "blue", Type: Int16},
	}

	nirGroup = []Field{
		{Name: "nir", Type: Int16},
	}

	waveformGroup = []Field{
		{Name: "index", Type: Int8},
		{Name: "offset", Type: Int64},
		{Name: "size", Type: Int32},
		{Name: "location", Type: Float32},
		{Name: "xt", Type: Float32},
		{Name: "yt", Type: Float32},
		{Name: "zt", Type: Float32},
	}
)

// pointSchemas is built once at init and never mutated.
var pointSchemas = buildPointSchemas()

func buildPointSchemas() [MaxPointFormat + 1]Schema {
	var fields [MaxPointFormat + 1][]Field

	fields[0] = concat(basePrefix, legacyGroup)
	fields[6] = concat(basePrefix, extendedGroup)
	fields[1] = concat(fields[0], timeGroup)
	fields[2] = concat(fields[0], colorGroup)
	fields[3] = concat(fields[1], colorGroup)
	fields[4] = concat(fields[1], waveformGroup)
	fields[5] = concat(fields[3], waveformGroup)
	fields[7] = concat(fields[6], colorGroup)
	fields[8] = concat(fields[7], nirGroup)
	fields[9] = concat(fields[6], waveformGroup)
	fields[10] = concat(fields[8], waveformGroup)

	var schemas [MaxPointFormat + 1]Schema
	for code, f := range fields {
		schemas[code] = Schema{Name: fmt.Sprintf("pdr%d", code), Fields: f}
	}
	return schemas
}

func concat(groups ...[]Field) []Field {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]Field, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// SchemaFor returns the point record schema of a point data record format.
func SchemaFor(format int) (Schema, error) {
	if format < 0 || format > MaxPointFormat {
		return Schema{}, fmt.Errorf("%w: %d", ErrUnknownPointFormat, format)
	}
	s := pointSchemas[format]
	// callers must not alias the catalog's field slices
	return Schema{Name: s.Name, Fields: append([]Field(nil), s.Fields...)}, nil
}

// PointFormatLength returns the default record length in bytes of a point data
// record format.
func PointFormatLength(format int) (int, error) {
	s, err := SchemaFor(format)
	if err != nil {
		return 0, err
	}
	return s.Length(), nil
}
