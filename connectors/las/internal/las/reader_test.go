package las

import (
	"context"
	"sort"
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/data-power-io/noesis-las/libs/go/metrics"
	"github.com/data-power-io/noesis-las/sdks/go/cursor"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// twoFormatSource holds a format 1 file without color and a format 3 file
// with it.
func twoFormatSource(t *testing.T) (*Client, *Catalog) {
	t.Helper()
	dir := t.TempDir()
	writeLAS(t, dir, "a.las", 2, 1, 10)
	writeLAS(t, dir, "b.las", 4, 3, 6)
	return buildCatalog(t, dir)
}

func planTokens(t *testing.T, catalog *Catalog, target int64) []*SplitToken {
	t.Helper()
	splits, _, err := NewSplitter(target, zap.NewNop()).GenerateSplits(catalog.Files, 0)
	require.NoError(t, err)
	return parseTokens(t, splits)
}

func TestNewProjection(t *testing.T) {
	_, catalog := twoFormatSource(t)

	p, err := NewProjection(catalog.Schema, nil)
	require.NoError(t, err)
	assert.Equal(t, catalog.Schema.Names(), p.Columns)
	assert.Equal(t, len(catalog.Schema.Fields), p.Schema.NumFields())

	p, err = NewProjection(catalog.Schema, []string{"red", "id"})
	require.NoError(t, err)
	assert.Equal(t, "red", p.Schema.Field(0).Name)
	assert.True(t, p.Schema.Field(0).Nullable)
	assert.Equal(t, arrow.PrimitiveTypes.Int64, p.Schema.Field(1).Type)

	_, err = NewProjection(catalog.Schema, []string{"x", "nir"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestReader_ReadSplit(t *testing.T) {
	client, catalog := twoFormatSource(t)
	m := testMetrics(t)
	reader := NewReader(client, ReaderOptions{BatchSize: 100}, m, zap.NewNop())

	p, err := NewProjection(catalog.Schema, []string{"id", "x", "red", "intensity"})
	require.NoError(t, err)

	tokens := planTokens(t, catalog, 4)
	// a.las: [0,4) [4,8) [8,10); b.las: [0,4) [4,6)
	require.Len(t, tokens, 5)

	t.Run("file without the column", func(t *testing.T) {
		stream := newCaptureStream()
		defer stream.release()

		n, err := reader.ReadSplit(context.Background(), tokens[1], p, stream)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		recs := stream.records()
		require.Len(t, recs, 1)
		rec := recs[0]
		assert.Equal(t, []int64{4, 5, 6, 7}, rec.Column(0).(*array.Int64).Int64Values())
		assert.Equal(t, []int32{4, 5, 6, 7}, rec.Column(1).(*array.Int32).Int32Values())
		assert.Equal(t, 4, rec.Column(2).NullN(), "format 1 stores no color")
	})

	t.Run("file with the column", func(t *testing.T) {
		stream := newCaptureStream()
		defer stream.release()

		_, err := reader.ReadSplit(context.Background(), tokens[4], p, stream)
		require.NoError(t, err)

		rec := stream.records()[0]
		assert.Equal(t, []int64{4, 5}, rec.Column(0).(*array.Int64).Int64Values())
		red := rec.Column(2).(*array.Int16)
		assert.Equal(t, 0, red.NullN())
		assert.Equal(t, []int16{4, 5}, red.Int16Values())
	})

	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.RecordsExtracted.WithLabelValues(ConnectorName, t.Name(), EntityPoints)))
	assert.Equal(t, float64(4*28+2*34), testutil.ToFloat64(metrics.BytesExtracted.WithLabelValues(ConnectorName, t.Name(), EntityPoints)))
}

func TestReader_ReadSplit_WidensToUnifiedType(t *testing.T) {
	dir := t.TempDir()
	writeLAS(t, dir, "legacy.las", 2, 0, 3)
	writeLAS(t, dir, "extended.las", 4, 6, 3)
	client, catalog := buildCatalog(t, dir)

	p, err := NewProjection(catalog.Schema, []string{"angle", "time"})
	require.NoError(t, err)
	assert.Equal(t, arrow.PrimitiveTypes.Int16, p.Schema.Field(0).Type)

	tokens := planTokens(t, catalog, 100)
	var legacy *SplitToken
	for _, tok := range tokens {
		if tok.Path == "legacy.las" {
			legacy = tok
		}
	}
	require.NotNil(t, legacy)

	stream := newCaptureStream()
	defer stream.release()
	reader := NewReader(client, ReaderOptions{}, testMetrics(t), zap.NewNop())
	_, err = reader.ReadSplit(context.Background(), legacy, p, stream)
	require.NoError(t, err)

	rec := stream.records()[0]
	_, ok := rec.Column(0).(*array.Int16)
	assert.True(t, ok, "int8 angle is cast to int16")
	assert.Equal(t, 3, rec.Column(1).NullN(), "format 0 has no time")
}

func TestReader_ReadSplit_TruncatedFile(t *testing.T) {
	dir := t.TempDir()
	data := lasFile(t, 2, 1, 10)
	writeFile(t, dir, "short.las", data[:len(data)-40])
	client, catalog := buildCatalog(t, dir)

	p, err := NewProjection(catalog.Schema, []string{"x"})
	require.NoError(t, err)

	stream := newCaptureStream()
	defer stream.release()
	reader := NewReader(client, ReaderOptions{}, testMetrics(t), zap.NewNop())
	_, err = reader.ReadSplit(context.Background(), planTokens(t, catalog, 100)[0], p, stream)
	assert.ErrorContains(t, err, "short.las")
	assert.Equal(t, codes.DataLoss, status.Code(toStatus(err, testMetrics(t))))
}

func TestReader_ReadPlan(t *testing.T) {
	client, catalog := twoFormatSource(t)
	reader := NewReader(client, ReaderOptions{BatchSize: 3, Parallelism: 2}, testMetrics(t), zap.NewNop())
	tokens := planTokens(t, catalog, 4)

	p, err := NewProjection(catalog.Schema, []string{"id", "y"})
	require.NoError(t, err)

	stream := newCaptureStream()
	defer stream.release()
	require.NoError(t, reader.ReadPlan(context.Background(), tokens, p, stream, nil))

	assert.Equal(t, int64(16), stream.totalRows())

	var ids []int64
	for _, rec := range stream.records() {
		assert.LessOrEqual(t, rec.NumRows(), int64(3))
		ids = append(ids, rec.Column(0).(*array.Int64).Int64Values()...)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []int64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 7, 8, 9}, ids)

	states := stream.states()
	require.NotEmpty(t, states)
	for i := 1; i < len(states); i++ {
		assert.Greater(t, states[i].Watermark, states[i-1].Watermark)
	}
	last := states[len(states)-1]
	assert.Equal(t, int64(len(tokens)), last.Watermark)

	oc, err := cursor.NewManager().ParseOffsetCursor(last.Cursor)
	require.NoError(t, err)
	assert.Equal(t, int64(len(tokens)), oc.Offset)
	assert.Equal(t, int64(len(tokens)), oc.Limit)
}

func TestReader_ReadPlan_Resume(t *testing.T) {
	client, catalog := twoFormatSource(t)
	reader := NewReader(client, ReaderOptions{Parallelism: 3}, testMetrics(t), zap.NewNop())
	tokens := planTokens(t, catalog, 4)

	p, err := NewProjection(catalog.Schema, []string{"id"})
	require.NoError(t, err)

	resume, err := cursor.NewManager().CreateOffsetCursor(2, int64(len(tokens)), EntityPoints)
	require.NoError(t, err)

	stream := newCaptureStream()
	defer stream.release()
	require.NoError(t, reader.ReadPlan(context.Background(), tokens, p, stream, resume))

	// the first two splits cover a.las records [0,8)
	assert.Equal(t, int64(16-8), stream.totalRows())
	assert.Equal(t, int64(len(tokens)), stream.states()[len(stream.states())-1].Watermark)

	t.Run("cursor from another plan", func(t *testing.T) {
		other, err := cursor.NewManager().CreateOffsetCursor(1, 99, EntityPoints)
		require.NoError(t, err)
		err = reader.ReadPlan(context.Background(), tokens, p, newCaptureStream(), other)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("cursor for another entity", func(t *testing.T) {
		lines, err := cursor.NewManager().CreateOffsetCursor(1, int64(len(tokens)), "lines")
		require.NoError(t, err)
		err = reader.ReadPlan(context.Background(), tokens, p, newCaptureStream(), lines)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("offset past the end", func(t *testing.T) {
		past, err := cursor.NewManager().CreateOffsetCursor(int64(len(tokens)+1), 0, EntityPoints)
		require.NoError(t, err)
		err = reader.ReadPlan(context.Background(), tokens, p, newCaptureStream(), past)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("completed plan", func(t *testing.T) {
		done, err := cursor.NewManager().CreateOffsetCursor(int64(len(tokens)), int64(len(tokens)), EntityPoints)
		require.NoError(t, err)
		s := newCaptureStream()
		require.NoError(t, reader.ReadPlan(context.Background(), tokens, p, s, done))
		assert.Zero(t, s.totalRows())
	})
}

func TestReader_ReadPlan_Canceled(t *testing.T) {
	client, catalog := twoFormatSource(t)
	reader := NewReader(client, ReaderOptions{}, testMetrics(t), zap.NewNop())
	p, err := NewProjection(catalog.Schema, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = reader.ReadPlan(ctx, planTokens(t, catalog, 4), p, newCaptureStream(), nil)
	require.Error(t, err)
	assert.Equal(t, codes.Canceled, status.Code(toStatus(err, testMetrics(t))))
}
