package lasformat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func format1Values(x, y, z int32, intensity int16, tm float64) []any {
	return []any{x, y, z, intensity, int8(0x11), int8(2), int8(-5), int8(0), int16(7), tm}
}

func TestSection_Format3Offsets(t *testing.T) {
	schema, err := SchemaFor(3)
	require.NoError(t, err)
	sec, err := NewSection("f", 0, 1, 0, binary.LittleEndian, schema)
	require.NoError(t, err)

	want := map[string]int{
		"x": 0, "y": 4, "z": 8, "intensity": 12,
		"flags": 14, "classification": 15, "angle": 16, "user": 17, "source": 18,
		"time": 20,
		"red": 28, "green": 30, "blue": 32,
	}
	for name, off := range want {
		slot, ok := sec.Offsets().Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, off, slot.Offset, name)
	}
	assert.Len(t, sec.Offsets().Slots(), len(want))
	assert.Equal(t, 34, sec.Length())
	assert.Equal(t, 34, sec.Stride())

	absent := sec.Offsets().LookupOrDefault("nir")
	assert.True(t, absent.Absent())
	assert.Equal(t, -1, absent.Offset)
	assert.Equal(t, Null, absent.Type)
}

func TestNewSection_InvalidStride(t *testing.T) {
	schema, _ := SchemaFor(1)
	_, err := NewSection("f", 0, 1, 27, binary.LittleEndian, schema)
	require.ErrorIs(t, err, ErrInvalidStride)
	assert.Equal(t, "invalid_stride", ErrorKind(err))
}

func TestNewSection_UnsupportedType(t *testing.T) {
	schema := NewSchema("bad", Field{Name: "label", Type: String})
	_, err := NewSection("f", 0, 1, 0, nil, schema)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestSection_EndToEnd(t *testing.T) {
	h, err := NewHeader(1, 2, 1)
	require.NoError(t, err)
	h.PDRNumber = 2
	require.Equal(t, uint16(28), h.PDRLength)

	file, err := WriteHeader(h)
	require.NoError(t, err)

	layout, err := h.ToSection("mem")
	require.NoError(t, err)
	for _, vals := range [][]any{
		format1Values(1000, -2000, 300, 512, 12345.678),
		format1Values(-1, 2, -3, 4, 0.5),
	} {
		rec, err := layout.EncodeRecord(vals)
		require.NoError(t, err)
		require.Len(t, rec, 28)
		file = append(file, rec...)
	}

	got, err := ReadHeader(file)
	require.NoError(t, err)
	sec, err := got.ToSection("mem")
	require.NoError(t, err)
	block := file[sec.Offset():]

	target := WithIdentity(sec.Schema())
	columns := []string{"x", "y", "intensity", "time"}

	rec0, err := sec.Record(block, 0)
	require.NoError(t, err)
	values, err := sec.ExtractColumns(target, columns, 0, rec0)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(1000), int32(-2000), int16(512), 12345.678}, values)

	rec1, err := sec.Record(block, 1)
	require.NoError(t, err)
	row, err := sec.ExtractRow(rec1)
	require.NoError(t, err)
	assert.Equal(t, format1Values(-1, 2, -3, 4, 0.5), row)

	_, err = sec.Record(block, 2)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestSection_PaddedStride(t *testing.T) {
	schema, _ := SchemaFor(1)
	sec, err := NewSection("f", 100, 2, 32, binary.LittleEndian, schema)
	require.NoError(t, err)
	assert.Equal(t, int64(64), sec.Size())
	assert.Equal(t, int64(132), sec.RecordStart(1))

	var block []byte
	for i := int32(0); i < 2; i++ {
		rec, err := sec.EncodeRecord(format1Values(i, i, i, int16(i), float64(i)))
		require.NoError(t, err)
		require.Len(t, rec, 32)
		block = append(block, rec...)
	}

	rec, err := sec.Record(block, 1)
	require.NoError(t, err)
	values, err := sec.ExtractColumns(schema, []string{"x", "time"}, 1, rec)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(1), float64(1)}, values)
}

func TestSection_AbsentAndIdentityColumns(t *testing.T) {
	schema, _ := SchemaFor(0)
	sec, err := NewSection("f", 0, 1, 0, binary.LittleEndian, schema)
	require.NoError(t, err)

	rec := make([]byte, sec.Length())
	for i := range rec {
		rec[i] = 0xff
	}

	f3, _ := SchemaFor(3)
	target, err := Merge(schema, f3)
	require.NoError(t, err)
	target = WithIdentity(target)

	values, err := sec.ExtractColumns(target, []string{"id", "red", "not_a_field", "x"}, 7, rec)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7), nil, nil, int32(-1)}, values)
}

func TestSection_CastToTarget(t *testing.T) {
	schema, _ := SchemaFor(1)
	sec, err := NewSection("f", 0, 1, 0, binary.LittleEndian, schema)
	require.NoError(t, err)
	rec, err := sec.EncodeRecord(format1Values(10, 20, 30, 40, 1.25))
	require.NoError(t, err)

	target := NewSchema("t",
		Field{Name: "intensity", Type: Int32},
		Field{Name: "angle", Type: Int16},
		Field{Name: "source", Type: Float64},
	)
	values, err := sec.ExtractColumns(target, []string{"intensity", "angle", "source", "z"}, 0, rec)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(40), int16(-5), float64(7), int32(30)}, values)

	narrowing := NewSchema("t", Field{Name: "x", Type: Int16})
	_, err = sec.ExtractColumns(narrowing, []string{"x"}, 0, rec)
	require.ErrorIs(t, err, ErrUnsupportedCast)

	narrowID := NewSchema("t", Field{Name: IdentityField, Type: Int32})
	_, err = sec.ExtractColumns(narrowID, []string{IdentityField}, 0, rec)
	require.ErrorIs(t, err, ErrUnsupportedCast)
}

func TestSection_Projection(t *testing.T) {
	schema, _ := SchemaFor(1)
	sec, err := NewSection("f", 0, 1, 0, binary.LittleEndian, schema)
	require.NoError(t, err)

	target := WithIdentity(NewSchema("t", Field{Name: "intensity", Type: Int64}))
	p, err := sec.Project(target, []string{"id", "intensity", "nir"})
	require.NoError(t, err)
	assert.Equal(t, []DataType{Int64, Int64, Null}, p.Types())

	rec, err := sec.EncodeRecord(format1Values(0, 0, 0, 99, 0))
	require.NoError(t, err)
	values, err := p.Extract(3, rec)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3), int64(99), nil}, values)

	_, err = p.Extract(3, rec[:10])
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestSection_BigEndian(t *testing.T) {
	schema := NewSchema("be",
		Field{Name: "a", Type: Int16},
		Field{Name: "b", Type: Float32},
		Field{Name: "c", Type: Int64},
	)
	sec, err := NewSection("f", 0, 1, 0, binary.BigEndian, schema)
	require.NoError(t, err)

	rec, err := sec.EncodeRecord([]any{int16(0x0102), float32(2.5), int64(-9)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, rec[:2])

	row, err := sec.ExtractRow(rec)
	require.NoError(t, err)
	assert.Equal(t, []any{int16(0x0102), float32(2.5), int64(-9)}, row)
}

func TestSection_CloneIsIndependent(t *testing.T) {
	schema, _ := SchemaFor(0)
	sec, err := NewSection("f", 227, 10, 0, binary.LittleEndian, schema)
	require.NoError(t, err)

	c := sec.Clone()
	c.SetOffset(1000)
	assert.Equal(t, int64(227), sec.Offset())
	assert.Equal(t, int64(1000), c.Offset())
	assert.Equal(t, int64(1000+20*3), c.RecordStart(3))
}

func TestCodec_Null(t *testing.T) {
	dec, err := NewDecoder(Null, 0, binary.LittleEndian)
	require.NoError(t, err)
	assert.Nil(t, dec(nil))

	enc, err := NewEncoder(Null, 0, binary.LittleEndian)
	require.NoError(t, err)
	buf := []byte{}
	assert.NoError(t, enc(buf, 5))

	_, err = NewDecoder(ListOf(Int8, false), 0, binary.LittleEndian)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	enc, err = NewEncoder(Int8, 0, binary.LittleEndian)
	require.NoError(t, err)
	assert.ErrorIs(t, enc(make([]byte, 1), "nope"), ErrUnsupportedType)
}
