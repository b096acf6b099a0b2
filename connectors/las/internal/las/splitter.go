package las

import (
	"encoding/json"
	"fmt"

	"github.com/data-power-io/noesis-las/connectors/las/internal/lasformat"
	"github.com/data-power-io/noesis-las/sdks/go/protocol"
	"go.uber.org/zap"
)

// SplitStrategy defines the strategy used to split a file
type SplitStrategy string

const (
	// SplitStrategyRowNumber slices a file's point records into contiguous
	// record ranges.
	SplitStrategyRowNumber SplitStrategy = "row_number"
)

// Default split configuration
const (
	DefaultTargetSplitSize    = 1000000 // 1 million records per split
	DefaultMaxSplitsPerFile   = 32
	DefaultMinRecordsPerSplit = 1
)

// SplitToken contains everything needed to read one split without re-reading
// the file header.
type SplitToken struct {
	Strategy    SplitStrategy `json:"strategy"`
	Path        string        `json:"path"`
	SplitIndex  int           `json:"split_index"`
	PointFormat uint8         `json:"point_format"`
	Stride      int           `json:"stride"`
	FirstRecord int64         `json:"first_record"`
	RecordCount int64         `json:"record_count"`
	ByteOffset  int64         `json:"byte_offset"`
}

// ParseSplitToken decodes a token produced by the splitter.
func ParseSplitToken(data []byte) (*SplitToken, error) {
	var token SplitToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal split token: %w", err)
	}
	if token.Strategy != SplitStrategyRowNumber {
		return nil, fmt.Errorf("unsupported split strategy: %q", token.Strategy)
	}
	if token.Path == "" {
		return nil, fmt.Errorf("split token has no path")
	}
	if token.FirstRecord < 0 || token.RecordCount < 0 {
		return nil, fmt.Errorf("split token has negative record range [%d,+%d)", token.FirstRecord, token.RecordCount)
	}
	return &token, nil
}

// Section describes the records the split covers. Record 0 of the section is
// record FirstRecord of the file.
func (t *SplitToken) Section() (*lasformat.Section, error) {
	schema, err := lasformat.SchemaFor(int(t.PointFormat))
	if err != nil {
		return nil, err
	}
	return lasformat.NewSection(t.Path, t.ByteOffset, t.RecordCount, t.Stride, nil, schema)
}

// ByteLength is the number of bytes the split spans in its file.
func (t *SplitToken) ByteLength() int64 {
	return t.RecordCount * int64(t.Stride)
}

// Splitter handles split planning for parallel extraction
type Splitter struct {
	targetSplitSize int64
	logger          *zap.Logger
}

// NewSplitter creates a Splitter aiming at targetSplitSize records per split.
// A non-positive target uses DefaultTargetSplitSize.
func NewSplitter(targetSplitSize int64, logger *zap.Logger) *Splitter {
	if targetSplitSize <= 0 {
		targetSplitSize = DefaultTargetSplitSize
	}
	return &Splitter{
		targetSplitSize: targetSplitSize,
		logger:          logger,
	}
}

// GenerateSplits plans the splits of a set of files. Splits never cross a file
// boundary and empty files contribute none. When desiredParallelism is set the
// records are spread over roughly that many splits instead of using the target
// split size.
func (s *Splitter) GenerateSplits(files []SourceFile, desiredParallelism int32) ([]*protocol.ExtractionSplit, int64, error) {
	var totalRecords int64
	for _, f := range files {
		totalRecords += f.Section.Count()
	}

	perSplit := s.targetSplitSize
	if desiredParallelism > 0 && totalRecords > 0 {
		perSplit = ceilDiv(totalRecords, int64(desiredParallelism))
	}
	if perSplit < DefaultMinRecordsPerSplit {
		perSplit = DefaultMinRecordsPerSplit
	}

	splits := make([]*protocol.ExtractionSplit, 0, len(files))
	for _, f := range files {
		fileSplits, err := s.splitFile(f, perSplit, len(splits))
		if err != nil {
			return nil, 0, err
		}
		splits = append(splits, fileSplits...)
	}

	s.logger.Info("Generated splits",
		zap.String("strategy", string(SplitStrategyRowNumber)),
		zap.Int("files", len(files)),
		zap.Int("num_splits", len(splits)),
		zap.Int64("records_per_split", perSplit),
		zap.Int64("total_records", totalRecords))

	return splits, totalRecords, nil
}

func (s *Splitter) splitFile(f SourceFile, perSplit int64, firstIndex int) ([]*protocol.ExtractionSplit, error) {
	count := f.Section.Count()
	if count == 0 {
		return nil, nil
	}

	numSplits := ceilDiv(count, perSplit)
	if numSplits > DefaultMaxSplitsPerFile {
		numSplits = DefaultMaxSplitsPerFile
		perSplit = ceilDiv(count, numSplits)
	}

	splits := make([]*protocol.ExtractionSplit, 0, numSplits)
	for first := int64(0); first < count; first += perSplit {
		n := perSplit
		if first+n > count {
			n = count - first
		}
		index := firstIndex + len(splits)

		token := &SplitToken{
			Strategy:    SplitStrategyRowNumber,
			Path:        f.Path,
			SplitIndex:  index,
			PointFormat: f.Header.PDRFormat,
			Stride:      f.Section.Stride(),
			FirstRecord: first,
			RecordCount: n,
			ByteOffset:  f.Section.RecordStart(first),
		}

		tokenBytes, err := json.Marshal(token)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal split token: %w", err)
		}

		splits = append(splits, &protocol.ExtractionSplit{
			SplitID:       fmt.Sprintf("split-%04d", index),
			SplitToken:    tokenBytes,
			EstimatedRows: n,
			Metadata: map[string]string{
				"strategy":     string(SplitStrategyRowNumber),
				"path":         f.Path,
				"first_record": fmt.Sprintf("%d", first),
				"record_count": fmt.Sprintf("%d", n),
				"split_index":  fmt.Sprintf("%d", index),
			},
		})
	}
	return splits, nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
