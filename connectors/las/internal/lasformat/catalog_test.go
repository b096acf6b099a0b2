package lasformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFor_Composition(t *testing.T) {
	base := []string{"x", "y", "z", "intensity"}
	legacy := []string{"flags", "classification", "angle", "user", "source"}
	extended := []string{"return", "flags", "classification", "user", "angle", "source", "time"}
	timeF := []string{"time"}
	color := []string{"red", "green", "blue"}
	nir := []string{"nir"}
	waveform := []string{"index", "offset", "size", "location", "xt", "yt", "zt"}

	join := func(groups ...[]string) []string {
		var out []string
		for _, g := range groups {
			out = append(out, g...)
		}
		return out
	}

	tests := []struct {
		format int
		names  []string
		length int
	}{
		{0, join(base, legacy), 20},
		{1, join(base, legacy, timeF), 28},
		{2, join(base, legacy, color), 26},
		{3, join(base, legacy, timeF, color), 34},
		{4, join(base, legacy, timeF, waveform), 57},
		{5, join(base, legacy, timeF, color, waveform), 63},
		{6, join(base, extended), 30},
		{7, join(base, extended, color), 36},
		{8, join(base, extended, color, nir), 38},
		{9, join(base, extended, waveform), 59},
		{10, join(base, extended, color, nir, waveform), 67},
	}

	for _, tt := range tests {
		schema, err := SchemaFor(tt.format)
		require.NoError(t, err, "format %d", tt.format)

		assert.Equal(t, tt.names, schema.Names(), "format %d field names", tt.format)

		sum := 0
		for _, f := range schema.Fields {
			sum += f.Type.Size()
		}
		assert.Equal(t, tt.length, sum, "format %d field sizes", tt.format)
		assert.Equal(t, tt.length, schema.Length(), "format %d length", tt.format)

		length, err := PointFormatLength(tt.format)
		require.NoError(t, err)
		assert.Equal(t, tt.length, length)
	}
}

func TestSchemaFor_UnknownFormat(t *testing.T) {
	for _, code := range []int{-1, 11, 255} {
		_, err := SchemaFor(code)
		assert.ErrorIs(t, err, ErrUnknownPointFormat, "format %d", code)
		assert.True(t, IsFileLocal(err))
	}
}

func TestSchemaFor_ReturnsCopy(t *testing.T) {
	s, err := SchemaFor(0)
	require.NoError(t, err)
	s.Fields[0].Name = "mutated"

	again, err := SchemaFor(0)
	require.NoError(t, err)
	assert.Equal(t, "x", again.Fields[0].Name)
}

func TestWithIdentity(t *testing.T) {
	s, err := SchemaFor(0)
	require.NoError(t, err)

	withID := WithIdentity(s)
	require.Len(t, withID.Fields, len(s.Fields)+1)
	assert.Equal(t, Field{Name: IdentityField, Type: Int64}, withID.Fields[0])
	assert.Equal(t, s.Length(), withID.Length()-8)

	assert.Equal(t, withID, WithIdentity(withID), "identity is not prepended twice")
}
