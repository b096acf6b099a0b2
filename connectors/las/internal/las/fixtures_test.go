package las

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/data-power-io/noesis-las/connectors/las/internal/lasformat"
	"github.com/data-power-io/noesis-las/libs/go/metrics"
	"github.com/data-power-io/noesis-las/sdks/go/protocol"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// lasFile builds the bytes of a LAS file with count records. Record i stores
// x=i, y=2i, z=3i, intensity=i%100 and red=i when the format has color; every
// other field is zero.
func lasFile(t *testing.T, minor, format uint8, count int) []byte {
	t.Helper()

	h, err := lasformat.NewHeader(1, minor, format)
	require.NoError(t, err)
	h.PDRNumber = uint32(count)
	h.SystemID = "fixture"
	head, err := lasformat.WriteHeader(h)
	require.NoError(t, err)

	section, err := h.ToSection("fixture")
	require.NoError(t, err)
	slots := section.Offsets().Slots()

	var buf bytes.Buffer
	buf.Write(head)
	for i := 0; i < count; i++ {
		values := make([]any, len(slots))
		for j, s := range slots {
			switch s.Name {
			case "x":
				values[j] = i
			case "y":
				values[j] = 2 * i
			case "z":
				values[j] = 3 * i
			case "intensity":
				values[j] = i % 100
			case "red":
				values[j] = i
			default:
				values[j] = 0
			}
		}
		rec, err := section.EncodeRecord(values)
		require.NoError(t, err)
		buf.Write(rec)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func writeLAS(t *testing.T, dir, name string, minor, format uint8, count int) {
	t.Helper()
	writeFile(t, dir, name, lasFile(t, minor, format, count))
}

func testMetrics(t *testing.T) *metrics.ConnectorMetrics {
	return metrics.NewConnectorMetrics(ConnectorName, t.Name())
}

func buildCatalog(t *testing.T, dir string) (*Client, *Catalog) {
	t.Helper()
	m := testMetrics(t)
	client := NewLocalClient(dir, m, zap.NewNop())
	catalog, err := NewCatalogBuilder(client, 2, m, zap.NewNop()).Build(context.Background())
	require.NoError(t, err)
	return client, catalog
}

// sourceFile describes an in-memory file for planning tests.
func sourceFile(t *testing.T, path string, format uint8, count uint32) SourceFile {
	t.Helper()
	h, err := lasformat.NewHeader(1, 4, format)
	require.NoError(t, err)
	h.PDRNumber = count
	section, err := h.ToSection(path)
	require.NoError(t, err)
	return SourceFile{Path: path, Header: h, Section: section}
}

type captureStream struct {
	ctx  context.Context
	mu   sync.Mutex
	msgs []*protocol.ReadMessage
}

func newCaptureStream() *captureStream {
	return &captureStream{ctx: context.Background()}
}

func (s *captureStream) Send(msg *protocol.ReadMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Record != nil {
		msg.Record.Retain()
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *captureStream) Context() context.Context { return s.ctx }

func (s *captureStream) records() []arrow.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []arrow.Record
	for _, m := range s.msgs {
		if m.Record != nil {
			out = append(out, m.Record)
		}
	}
	return out
}

func (s *captureStream) states() []*protocol.StateMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*protocol.StateMsg
	for _, m := range s.msgs {
		if m.State != nil {
			out = append(out, m.State)
		}
	}
	return out
}

func (s *captureStream) release() {
	for _, r := range s.records() {
		r.Release()
	}
}

func (s *captureStream) totalRows() int64 {
	var n int64
	for _, r := range s.records() {
		n += r.NumRows()
	}
	return n
}
