package lasformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHeader(t *testing.T, major, minor, format uint8) *Header {
	t.Helper()
	h, err := NewHeader(major, minor, format)
	require.NoError(t, err)

	h.FileSourceID = 17
	h.GlobalEncoding = 0x0011
	h.ProjectID1 = 0xdeadbeef
	h.ProjectID2 = 2
	h.ProjectID3 = 3
	h.ProjectID4 = [8]byte{'p', 'r', 'o', 'j', 'e', 'c', 't', '4'}
	h.SystemID = "noesis"
	h.GeneratingSoftware = "noesis-las test"
	h.FileCreationDay = 201
	h.FileCreationYear = 2024
	h.NumberOfVLRs = 0
	h.PDRNumber = 1234
	h.PDRReturns = [5]uint32{1000, 200, 30, 4, 0}
	h.Scale = [3]float64{0.01, 0.01, 0.001}
	h.Offset = [3]float64{500000, 4100000, 0}
	h.Max = [3]float64{500123.45, 4100456.78, 312.5}
	h.Min = [3]float64{500000.01, 4100000.02, -12.25}
	return h
}

func TestHeader_RoundTrip(t *testing.T) {
	tests := []struct {
		name         string
		major, minor uint8
		format       uint8
		size         int
	}{
		{"1.2 format 1", 1, 2, 1, 227},
		{"1.2 format 3", 1, 2, 3, 227},
		{"1.4 format 6", 1, 4, 6, 375},
		{"1.4 format 10", 1, 4, 10, 375},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := sampleHeader(t, tt.major, tt.minor, tt.format)

			data, err := WriteHeader(h)
			require.NoError(t, err)
			require.Len(t, data, tt.size)

			got, err := ReadHeader(data)
			require.NoError(t, err)
			assert.Equal(t, h, got)
		})
	}
}

func TestHeader_FieldOffsets(t *testing.T) {
	h := sampleHeader(t, 1, 2, 1)
	data, err := WriteHeader(h)
	require.NoError(t, err)

	assert.Equal(t, "LASF", string(data[0:4]))
	assert.Equal(t, []byte{1, 2}, data[24:26])
	assert.Equal(t, "noesis", string(data[26:32]))
	assert.Equal(t, byte(0), data[32], "system identifier is NUL-padded")
	assert.Equal(t, []byte{227, 0}, data[94:96])
	assert.Equal(t, byte(1), data[104])
	assert.Equal(t, []byte{28, 0}, data[105:107])
	assert.Equal(t, 500123.45, float64At(data, 179), "max x")
	assert.Equal(t, 500000.01, float64At(data, 187), "min x")
	assert.Equal(t, -12.25, float64At(data, 219), "min z")
}

func TestHeader_UnusedBytesZero(t *testing.T) {
	h := sampleHeader(t, 1, 4, 6)
	data, err := WriteHeader(h)
	require.NoError(t, err)
	require.Len(t, data, 375)

	for i := 227; i < len(data); i++ {
		if data[i] != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, data[i])
		}
	}
}

func TestReadHeader_Errors(t *testing.T) {
	valid, err := WriteHeader(sampleHeader(t, 1, 2, 1))
	require.NoError(t, err)

	badSignature := append([]byte(nil), valid...)
	copy(badSignature, "LASX")

	badVersion := append([]byte(nil), valid...)
	badVersion[25] = 3

	tests := []struct {
		name string
		data []byte
		want error
		kind string
	}{
		{"empty", nil, ErrNotRecognizedFormat, "not_recognized_format"},
		{"too short for signature", []byte("LAS"), ErrNotRecognizedFormat, "not_recognized_format"},
		{"bad signature", badSignature, ErrNotRecognizedFormat, "not_recognized_format"},
		{"unsupported version", badVersion, ErrUnsupportedVersion, "unsupported_version"},
		{"truncated", valid[:100], ErrShortBuffer, "short_buffer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHeader(tt.data)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, ErrorKind(err))
		})
	}
}

func TestWriteHeader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(h *Header)
		want   error
		msg    string
	}{
		{"foreign signature", func(h *Header) { h.FileSignature = "ABCD" }, ErrNotRecognizedFormat, ""},
		{"empty signature", func(h *Header) { h.FileSignature = "" }, ErrNotRecognizedFormat, ""},
		{"unsupported version", func(h *Header) { h.VersionMinor = 3 }, ErrUnsupportedVersion, ""},
		{"header size of another version", func(h *Header) { h.HeaderSize = 375 }, nil, "header size 375"},
		{"zero header size", func(h *Header) { h.HeaderSize = 0 }, nil, "header size 0"},
		{"system identifier too long", func(h *Header) { h.SystemID = "0123456789abcdef0123456789abcdefX" }, nil, "system identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := sampleHeader(t, 1, 2, 0)
			tt.modify(h)
			_, err := WriteHeader(h)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			if tt.msg != "" {
				assert.ErrorContains(t, err, tt.msg)
			}
		})
	}
}

func TestHeader_DerivedAccessors(t *testing.T) {
	h := &Header{VersionMajor: 1, VersionMinor: 4, PDRFormat: 7}
	assert.Equal(t, int64(375), h.RecordByteOffset())
	length, err := h.RecordLength()
	require.NoError(t, err)
	assert.Equal(t, 36, length)

	h.PDROffset = 1024
	h.PDRLength = 40
	assert.Equal(t, int64(1024), h.RecordByteOffset())
	length, err = h.RecordLength()
	require.NoError(t, err)
	assert.Equal(t, 40, length)

	schema, err := h.RecordSchema()
	require.NoError(t, err)
	assert.Equal(t, "pdr7", schema.Name)

	h.PDRFormat = 11
	assert.ErrorIs(t, h.Validate(), ErrUnknownPointFormat)
	_, err = h.ToSection("file.las")
	assert.ErrorIs(t, err, ErrUnknownPointFormat)
}

func TestHeader_ToSection_ShortRecordLength(t *testing.T) {
	tests := []struct {
		name   string
		format uint8
		length uint16
	}{
		{"format 1 with 10 byte records", 1, 10},
		{"format 1 one byte short", 1, 27},
		{"format 6 with format 0 length", 6, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := sampleHeader(t, 1, 4, tt.format)
			h.PDRLength = tt.length

			_, err := h.ToSection("tile.las")
			require.ErrorIs(t, err, ErrRecordLength)
			assert.True(t, IsFileLocal(err))
			assert.Equal(t, "record_length", ErrorKind(err))
		})
	}
}

func TestHeader_ToSection(t *testing.T) {
	h := sampleHeader(t, 1, 2, 1)
	h.PDRLength = 32

	sec, err := h.ToSection("s3://bucket/tile.las")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/tile.las", sec.Location())
	assert.Equal(t, int64(227), sec.Offset())
	assert.Equal(t, int64(1234), sec.Count())
	assert.Equal(t, 32, sec.Stride())
	assert.Equal(t, 28, sec.Length())
	assert.Equal(t, int64(1234*32), sec.Size())
}
