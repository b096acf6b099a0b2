package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/data-power-io/noesis-las/sdks/go/protocol"
	"go.uber.org/zap"
)

// ipcStream writes the records of a read stream as one Arrow IPC stream.
// The writer is created from the schema message that opens every read.
type ipcStream struct {
	ctx    context.Context
	out    io.Writer
	logger *zap.Logger
	writer *ipc.Writer

	cursor  *protocol.Cursor
	rows    int64
	batches int
}

func newIPCStream(ctx context.Context, out io.Writer, logger *zap.Logger) *ipcStream {
	return &ipcStream{ctx: ctx, out: out, logger: logger}
}

func (s *ipcStream) Context() context.Context { return s.ctx }

func (s *ipcStream) Send(msg *protocol.ReadMessage) error {
	switch {
	case msg.Schema != nil:
		if s.writer != nil {
			return errors.New("schema sent twice")
		}
		s.writer = ipc.NewWriter(s.out, ipc.WithSchema(msg.Schema.Schema))
	case msg.Record != nil:
		if s.writer == nil {
			return errors.New("record sent before schema")
		}
		if err := s.writer.Write(msg.Record); err != nil {
			return fmt.Errorf("failed to write record batch: %w", err)
		}
		s.rows += msg.Record.NumRows()
		s.batches++
	case msg.State != nil:
		s.cursor = msg.State.Cursor
		s.logger.Debug("Checkpoint", zap.Int64("completed_splits", msg.State.Watermark))
	case msg.Metric != nil:
		s.logger.Info("Read metric",
			zap.String("name", msg.Metric.Name),
			zap.Float64("value", msg.Metric.Value))
	case msg.Log != nil:
		s.logger.Info(msg.Log.Message, zap.String("level", msg.Log.Level), zap.Any("kv", msg.Log.KV))
	}
	return nil
}

// Close ends the IPC stream. It is a no-op when no schema arrived.
func (s *ipcStream) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
