package las

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/data-power-io/noesis-las/connectors/las/internal/lasformat"
	"github.com/data-power-io/noesis-las/libs/go/metrics"
	"github.com/data-power-io/noesis-las/sdks/go/cursor"
	"github.com/data-power-io/noesis-las/sdks/go/protocol"
	"github.com/data-power-io/noesis-las/sdks/go/streaming"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultBatchSize   = 4096
	defaultParallelism = 4
	// records decoded between context checks
	cancelCheckInterval = 1024
)

// ReaderOptions tunes a Reader.
type ReaderOptions struct {
	BatchSize   int
	Parallelism int
}

// Projection is a validated column request against the unified schema.
type Projection struct {
	Target  lasformat.Schema
	Columns []string
	Schema  *arrow.Schema
}

// NewProjection resolves columns against target. An empty column list selects
// every column of target.
func NewProjection(target lasformat.Schema, columns []string) (*Projection, error) {
	if len(columns) == 0 {
		columns = target.Names()
	}
	out, err := ProjectArrowSchema(target, columns)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	return &Projection{Target: target, Columns: columns, Schema: out}, nil
}

// Reader decodes splits into Arrow record batches.
type Reader struct {
	client  *Client
	opts    ReaderOptions
	cursors *cursor.Manager
	metrics *metrics.ConnectorMetrics
	logger  *zap.Logger
}

func NewReader(client *Client, opts ReaderOptions, m *metrics.ConnectorMetrics, logger *zap.Logger) *Reader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	return &Reader{
		client:  client,
		opts:    opts,
		cursors: cursor.NewManager(),
		metrics: m,
		logger:  logger,
	}
}

// ReadSplit fetches the split's byte range and streams the projected columns
// of every record in it. Record ids are file ordinals. It returns the number
// of rows sent.
func (r *Reader) ReadSplit(ctx context.Context, token *SplitToken, p *Projection, stream streaming.RecordStream) (int64, error) {
	timer := metrics.NewTimer()

	section, err := token.Section()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", token.Path, err)
	}
	proj, err := section.Project(p.Target, p.Columns)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", token.Path, err)
	}

	data, err := r.client.ReadRange(ctx, token.Path, token.ByteOffset, token.ByteLength())
	if err != nil {
		return 0, err
	}

	streamer := streaming.NewRecordStreamer(stream, r.logger, p.Schema, p.Target.Name)
	streamer.SetBatchSize(r.opts.BatchSize)
	defer streamer.Close()

	for i := int64(0); i < token.RecordCount; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return streamer.RecordsEmitted(), err
			}
		}
		record, err := section.Record(data, i)
		if err != nil {
			return streamer.RecordsEmitted(), fmt.Errorf("%s: %w", token.Path, err)
		}
		values, err := proj.Extract(token.FirstRecord+i, record)
		if err != nil {
			return streamer.RecordsEmitted(), fmt.Errorf("%s record %d: %w", token.Path, token.FirstRecord+i, err)
		}
		if err := streamer.Append(values); err != nil {
			return streamer.RecordsEmitted(), err
		}
	}
	if err := streamer.Flush(); err != nil {
		return streamer.RecordsEmitted(), err
	}

	rows := streamer.RecordsEmitted()
	r.metrics.RecordSplitRead(EntityPoints, rows, int64(len(data)), timer.Duration())
	r.logger.Debug("Split read",
		zap.String("path", token.Path),
		zap.Int("split_index", token.SplitIndex),
		zap.Int64("first_record", token.FirstRecord),
		zap.Int64("rows", rows),
		zap.Int("bytes", len(data)))
	return rows, nil
}

// ReadPlan reads splits concurrently. A state message carrying a resume
// cursor follows each split that extends the completed prefix of the plan;
// resuming from that cursor skips the prefix. Rows from different splits may
// interleave.
func (r *Reader) ReadPlan(ctx context.Context, tokens []*SplitToken, p *Projection, stream streaming.RecordStream, resumeFrom *protocol.Cursor) error {
	if err := r.cursors.Validate(resumeFrom); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid resume cursor: %v", err)
	}
	start, err := r.cursors.ParseOffsetCursor(resumeFrom)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid resume cursor: %v", err)
	}
	if start.Scope != "" && start.Scope != EntityPoints {
		return status.Errorf(codes.InvalidArgument, "resume cursor belongs to %q, not %q", start.Scope, EntityPoints)
	}
	total := int64(len(tokens))
	if start.Limit != 0 && start.Limit != total {
		return status.Errorf(codes.InvalidArgument,
			"resume cursor covers a plan of %d splits, current plan has %d", start.Limit, total)
	}
	if start.Offset > total {
		return status.Errorf(codes.InvalidArgument, "resume cursor offset %d is past the last split", start.Offset)
	}

	shared := streaming.NewSyncStream(stream)
	progress := &planProgress{
		reader: r,
		state:  streaming.NewRecordStreamer(shared, r.logger, p.Schema, p.Target.Name),
		next:   start.Offset,
		total:  total,
		done:   make(map[int64]bool),
	}
	defer progress.state.Close()

	r.logger.Info("Reading splits",
		zap.Int64("splits", total),
		zap.Int64("resume_offset", start.Offset),
		zap.Int("parallelism", r.opts.Parallelism),
		zap.Strings("columns", p.Columns))

	var rows atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for i := start.Offset; i < total; i++ {
		i := i
		token := tokens[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := r.ReadSplit(gctx, token, p, shared)
			rows.Add(n)
			if err != nil {
				return fmt.Errorf("split %04d: %w", token.SplitIndex, err)
			}
			return progress.complete(i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return progress.state.SendMetric("records_emitted", float64(rows.Load()), map[string]string{
		"entity": EntityPoints,
	})
}

// planProgress tracks the completed prefix of a plan.
type planProgress struct {
	reader *Reader
	state  *streaming.RecordStreamer

	mu    sync.Mutex
	next  int64
	total int64
	done  map[int64]bool
}

func (p *planProgress) complete(index int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done[index] = true
	advanced := false
	for p.done[p.next] {
		delete(p.done, p.next)
		p.next++
		advanced = true
	}
	if !advanced {
		return nil
	}

	c, err := p.reader.cursors.CreateOffsetCursor(p.next, p.total, EntityPoints)
	if err != nil {
		return err
	}
	return p.state.SendState(c, p.next, EntityPoints)
}
