package streaming

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/arrow/util"
	"github.com/data-power-io/noesis-las/sdks/go/protocol"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of rows per emitted record unless changed
// with SetBatchSize.
const DefaultBatchSize = 1000

// RecordStream defines the interface for sending streaming messages
type RecordStream interface {
	Send(msg *protocol.ReadMessage) error
	Context() context.Context
}

type syncStream struct {
	mu     sync.Mutex
	stream RecordStream
}

// NewSyncStream wraps stream so that Send may be called from several
// goroutines.
func NewSyncStream(stream RecordStream) RecordStream {
	return &syncStream{stream: stream}
}

func (s *syncStream) Send(msg *protocol.ReadMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.Send(msg)
}

func (s *syncStream) Context() context.Context {
	return s.stream.Context()
}

// RecordStreamer accumulates rows into Arrow records of batchSize rows and
// sends each full record to a stream. A RecordStreamer is used by a single
// goroutine; share the underlying stream with NewSyncStream instead.
type RecordStreamer struct {
	stream    RecordStream
	logger    *zap.Logger
	schema    *arrow.Schema
	schemaID  string
	batchSize int
	builder   *RecordBuilder

	recordsEmitted int64
	bytesEmitted   int64
	startTime      time.Time
}

// NewRecordStreamer creates a new record streamer
func NewRecordStreamer(stream RecordStream, logger *zap.Logger, schema *arrow.Schema, schemaID string) *RecordStreamer {
	return &RecordStreamer{
		stream:    stream,
		logger:    logger,
		schema:    schema,
		schemaID:  schemaID,
		batchSize: DefaultBatchSize,
		builder:   NewRecordBuilder(schema, memory.DefaultAllocator),
		startTime: time.Now(),
	}
}

// SetBatchSize sets the batch size for record streaming
func (rs *RecordStreamer) SetBatchSize(size int) {
	if size > 0 {
		rs.batchSize = size
	}
}

// Append adds one row, in schema field order, and flushes when the batch is
// full.
func (rs *RecordStreamer) Append(values []any) error {
	if err := rs.builder.AppendRow(values); err != nil {
		return err
	}
	if rs.builder.Len() >= rs.batchSize {
		return rs.Flush()
	}
	return nil
}

// Flush sends the pending rows, if any, as one record.
func (rs *RecordStreamer) Flush() error {
	if rs.builder.Len() == 0 {
		return nil
	}
	rec := rs.builder.Build()
	defer rec.Release()

	if err := rs.stream.Send(&protocol.ReadMessage{Record: rec}); err != nil {
		return fmt.Errorf("failed to send record batch: %w", err)
	}

	rs.recordsEmitted += rec.NumRows()
	rs.bytesEmitted += util.TotalRecordSize(rec)

	rs.logger.Debug("Record batch sent",
		zap.String("schema_id", rs.schemaID),
		zap.Int64("rows", rec.NumRows()),
		zap.Int64("records_emitted", rs.recordsEmitted))
	return nil
}

// Close releases the builder. Pending rows are discarded; call Flush first.
func (rs *RecordStreamer) Close() {
	rs.builder.Release()
}

// RecordsEmitted returns the number of rows sent so far.
func (rs *RecordStreamer) RecordsEmitted() int64 { return rs.recordsEmitted }

// BytesEmitted returns the Arrow buffer bytes sent so far.
func (rs *RecordStreamer) BytesEmitted() int64 { return rs.bytesEmitted }

// SendSchema sends the streamer's schema for an entity.
func (rs *RecordStreamer) SendSchema(entity string) error {
	return rs.stream.Send(&protocol.ReadMessage{
		Schema: &protocol.SchemaMsg{
			Entity: entity,
			Schema: rs.schema,
		},
	})
}

// SendState sends a state checkpoint message
func (rs *RecordStreamer) SendState(cursor *protocol.Cursor, watermark int64, groupID string) error {
	return rs.stream.Send(&protocol.ReadMessage{
		State: &protocol.StateMsg{
			Cursor:    cursor,
			Watermark: watermark,
			GroupID:   groupID,
		},
	})
}

// SendLog sends a log message
func (rs *RecordStreamer) SendLog(level, message string, kv map[string]string) error {
	return rs.stream.Send(&protocol.ReadMessage{
		Log: &protocol.LogMsg{
			Level:   level,
			Message: message,
			KV:      kv,
		},
	})
}

// SendMetric sends a metric message
func (rs *RecordStreamer) SendMetric(name string, value float64, tags map[string]string) error {
	return rs.stream.Send(&protocol.ReadMessage{
		Metric: &protocol.MetricMsg{
			Name:  name,
			Value: value,
			Tags:  tags,
		},
	})
}

// SendBatchMetrics sends current streaming metrics
func (rs *RecordStreamer) SendBatchMetrics() error {
	tags := map[string]string{
		"schema_id": rs.schemaID,
	}

	if err := rs.SendMetric("records_emitted", float64(rs.recordsEmitted), tags); err != nil {
		return err
	}
	if err := rs.SendMetric("bytes_emitted", float64(rs.bytesEmitted), tags); err != nil {
		return err
	}

	if elapsed := time.Since(rs.startTime); elapsed > 0 {
		throughput := float64(rs.recordsEmitted) / elapsed.Seconds()
		if err := rs.SendMetric("records_per_second", throughput, tags); err != nil {
			return err
		}
	}
	return nil
}

// RecordBuilder helps build Arrow records for streaming
type RecordBuilder struct {
	schema  *arrow.Schema
	builder *array.RecordBuilder
	rows    int
}

// NewRecordBuilder creates a new record builder
func NewRecordBuilder(schema *arrow.Schema, pool memory.Allocator) *RecordBuilder {
	return &RecordBuilder{
		schema:  schema,
		builder: array.NewRecordBuilder(pool, schema),
	}
}

// AppendRow adds one row whose values are in schema field order. A nil value
// appends a null. The row is checked in full before anything is appended, so
// a rejected row leaves the builder unchanged.
func (rb *RecordBuilder) AppendRow(values []any) error {
	if len(values) != rb.schema.NumFields() {
		return fmt.Errorf("row has %d values, schema has %d fields", len(values), rb.schema.NumFields())
	}
	for i, value := range values {
		if !accepts(rb.schema.Field(i).Type, value) {
			return fmt.Errorf("failed to append value for field %s: cannot append %T to %s column",
				rb.schema.Field(i).Name, value, rb.schema.Field(i).Type)
		}
	}
	for i, value := range values {
		if err := appendValue(rb.builder.Field(i), value); err != nil {
			return fmt.Errorf("failed to append value for field %s: %w", rb.schema.Field(i).Name, err)
		}
	}
	rb.rows++
	return nil
}

// Len returns the number of rows appended since the last Build.
func (rb *RecordBuilder) Len() int {
	return rb.rows
}

// Build creates an Arrow record from the accumulated rows and resets the
// builder. The caller owns the record and must release it.
func (rb *RecordBuilder) Build() arrow.Record {
	rb.rows = 0
	return rb.builder.NewRecord()
}

// Release frees the underlying builders.
func (rb *RecordBuilder) Release() {
	rb.builder.Release()
}

func appendValue(b array.Builder, value any) error {
	if value == nil {
		b.AppendNull()
		return nil
	}

	switch builder := b.(type) {
	case *array.Int8Builder:
		v, ok := value.(int8)
		if !ok {
			return mismatch(b, value)
		}
		builder.Append(v)
	case *array.Int16Builder:
		v, ok := value.(int16)
		if !ok {
			return mismatch(b, value)
		}
		builder.Append(v)
	case *array.Int32Builder:
		v, ok := value.(int32)
		if !ok {
			return mismatch(b, value)
		}
		builder.Append(v)
	case *array.Int64Builder:
		switch v := value.(type) {
		case int64:
			builder.Append(v)
		case int:
			builder.Append(int64(v))
		default:
			return mismatch(b, value)
		}
	case *array.Float32Builder:
		v, ok := value.(float32)
		if !ok {
			return mismatch(b, value)
		}
		builder.Append(v)
	case *array.Float64Builder:
		v, ok := value.(float64)
		if !ok {
			return mismatch(b, value)
		}
		builder.Append(v)
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return mismatch(b, value)
		}
		builder.Append(v)
	case *array.StringBuilder:
		if s, ok := value.(string); ok {
			builder.Append(s)
		} else {
			builder.Append(fmt.Sprintf("%v", value))
		}
	case *array.NullBuilder:
		builder.AppendNull()
	default:
		return fmt.Errorf("unsupported column type %s", b.Type())
	}
	return nil
}

func accepts(dt arrow.DataType, value any) bool {
	if value == nil {
		return true
	}
	switch dt.ID() {
	case arrow.INT8:
		_, ok := value.(int8)
		return ok
	case arrow.INT16:
		_, ok := value.(int16)
		return ok
	case arrow.INT32:
		_, ok := value.(int32)
		return ok
	case arrow.INT64:
		switch value.(type) {
		case int64, int:
			return true
		}
		return false
	case arrow.FLOAT32:
		_, ok := value.(float32)
		return ok
	case arrow.FLOAT64:
		_, ok := value.(float64)
		return ok
	case arrow.BOOL:
		_, ok := value.(bool)
		return ok
	case arrow.STRING, arrow.NULL:
		return true
	default:
		return false
	}
}

func mismatch(b array.Builder, value any) error {
	return fmt.Errorf("cannot append %T to %s column", value, b.Type())
}
