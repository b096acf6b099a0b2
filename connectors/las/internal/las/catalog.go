package las

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/data-power-io/noesis-las/connectors/las/internal/lasformat"
	"github.com/data-power-io/noesis-las/libs/go/logging"
	"github.com/data-power-io/noesis-las/libs/go/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SourceFile is one readable LAS file: its header and the section holding its
// point records.
type SourceFile struct {
	Path    string
	Header  *lasformat.Header
	Section *lasformat.Section
}

// SkippedFile is a file left out of the catalog because of a problem confined
// to that file.
type SkippedFile struct {
	Path string
	Kind string
	Err  error
}

// Catalog is the set of readable files in a source and the schema that covers
// all of them.
type Catalog struct {
	Files   []SourceFile
	Skipped []SkippedFile
	// Schema is the unified record schema with the identity column first.
	Schema lasformat.Schema
}

// PointFormats returns the distinct point formats in the catalog, ascending.
func (c *Catalog) PointFormats() []int {
	seen := make(map[int]bool)
	var formats []int
	for _, f := range c.Files {
		code := int(f.Header.PDRFormat)
		if !seen[code] {
			seen[code] = true
			formats = append(formats, code)
		}
	}
	sort.Ints(formats)
	return formats
}

// TotalRecords returns the number of point records across all files.
func (c *Catalog) TotalRecords() int64 {
	var n int64
	for _, f := range c.Files {
		n += f.Section.Count()
	}
	return n
}

// File returns the catalog entry for a path.
func (c *Catalog) File(path string) (SourceFile, bool) {
	for _, f := range c.Files {
		if f.Path == path {
			return f, true
		}
	}
	return SourceFile{}, false
}

// Attributes summarises the catalog for an entity descriptor.
func (c *Catalog) Attributes() map[string]string {
	formats := c.PointFormats()
	codes := make([]string, len(formats))
	for i, f := range formats {
		codes[i] = strconv.Itoa(f)
	}
	return map[string]string{
		"file_count":    strconv.Itoa(len(c.Files)),
		"skipped_files": strconv.Itoa(len(c.Skipped)),
		"point_formats": strings.Join(codes, ","),
		"total_records": strconv.FormatInt(c.TotalRecords(), 10),
	}
}

// CatalogBuilder scans a source's headers and unifies their record schemas.
type CatalogBuilder struct {
	client      *Client
	parallelism int
	metrics     *metrics.ConnectorMetrics
	log         *logging.ConnectorLogger
}

// NewCatalogBuilder reads up to parallelism headers at a time.
func NewCatalogBuilder(client *Client, parallelism int, m *metrics.ConnectorMetrics, logger *zap.Logger) *CatalogBuilder {
	if parallelism < 1 {
		parallelism = 1
	}
	return &CatalogBuilder{
		client:      client,
		parallelism: parallelism,
		metrics:     m,
		log:         logging.Wrap(logger),
	}
}

// Build lists the source, reads every header and merges the record schemas.
// Files with a file-local problem are skipped, logged and counted. Any other
// failure aborts the build.
func (b *CatalogBuilder) Build(ctx context.Context) (*Catalog, error) {
	listed, err := b.client.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*SourceFile, len(listed))
	var (
		mu      sync.Mutex
		skipped []SkippedFile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i, meta := range listed {
		i, meta := i, meta
		g.Go(func() error {
			f, err := b.open(gctx, meta.Path)
			if err == nil {
				results[i] = f
				b.log.LogFileAccepted(meta.Path,
					fmt.Sprintf("%d.%d", f.Header.VersionMajor, f.Header.VersionMinor),
					int(f.Header.PDRFormat), int64(f.Header.PDRNumber))
				b.metrics.RecordFileDiscovered(metrics.FileStatusOK)
				b.metrics.RecordPointFormat(int(f.Header.PDRFormat))
				return nil
			}
			if !lasformat.IsFileLocal(err) {
				return err
			}

			kind := lasformat.ErrorKind(err)
			b.log.LogFileSkipped(meta.Path, kind, err)
			b.metrics.RecordFileDiscovered(metrics.FileStatusSkipped)
			mu.Lock()
			skipped = append(skipped, SkippedFile{Path: meta.Path, Kind: kind, Err: err})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	catalog := &Catalog{}
	schemas := make([]lasformat.Schema, 0, len(results))
	for _, f := range results {
		if f == nil {
			continue
		}
		catalog.Files = append(catalog.Files, *f)
		schemas = append(schemas, f.Section.Schema())
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })
	catalog.Skipped = skipped

	unified, err := lasformat.MergeAll(schemas...)
	if err != nil {
		return nil, fmt.Errorf("failed to unify record schemas: %w", err)
	}
	if unified.Name == "" {
		unified.Name = EntityPoints
	}
	catalog.Schema = lasformat.WithIdentity(unified)

	b.log.Info("Catalog built",
		zap.Int("files", len(catalog.Files)),
		zap.Int("skipped", len(catalog.Skipped)),
		zap.Ints("point_formats", catalog.PointFormats()),
		zap.String("schema", catalog.Schema.Name))

	return catalog, nil
}

func (b *CatalogBuilder) open(ctx context.Context, path string) (*SourceFile, error) {
	ctx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()

	h, err := b.client.ReadHeader(ctx, path)
	if err != nil {
		return nil, err
	}
	section, err := h.ToSection(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &SourceFile{Path: path, Header: h, Section: section}, nil
}
