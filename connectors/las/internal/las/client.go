package las

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	configpkg "github.com/data-power-io/noesis-las/connectors/las/internal/config"
	"github.com/data-power-io/noesis-las/connectors/las/internal/lasformat"
	"github.com/data-power-io/noesis-las/libs/go/metrics"
	"go.uber.org/zap"
)

const fileExtension = ".las"

// FileMetadata describes one LAS file in the source.
type FileMetadata struct {
	Path         string
	Name         string
	Size         int64
	ModifiedTime int64
}

// SourceError is an I/O failure talking to the file source.
type SourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// objectStore is the byte-level access a Client needs from a backend.
type objectStore interface {
	ping(ctx context.Context) error
	list(ctx context.Context) ([]FileMetadata, error)
	readRange(ctx context.Context, name string, offset, length int64) ([]byte, error)
	endpoint() string
}

// Client reads LAS files from a local directory tree or an S3 bucket.
type Client struct {
	store   objectStore
	metrics *metrics.ConnectorMetrics
	logger  *zap.Logger
}

// NewClient builds a client from a normalized source config.
func NewClient(cfg map[string]string, m *metrics.ConnectorMetrics, logger *zap.Logger) (*Client, error) {
	if m == nil {
		m = metrics.NewConnectorMetrics(ConnectorName, "")
	}

	var store objectStore
	switch source := cfg["source"]; source {
	case "", configpkg.SourceLocal:
		root := cfg["root"]
		if root == "" {
			return nil, errors.New("local source requires a root directory")
		}
		store = &localStore{root: root}
	case configpkg.SourceS3:
		s, err := newS3Store(cfg)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}

	return &Client{
		store:   store,
		metrics: m,
		logger:  logger,
	}, nil
}

// NewLocalClient reads the LAS files under root.
func NewLocalClient(root string, m *metrics.ConnectorMetrics, logger *zap.Logger) *Client {
	c, _ := NewClient(map[string]string{"source": configpkg.SourceLocal, "root": root}, m, logger)
	return c
}

func (c *Client) Close() {
	// neither backend holds open handles between calls
}

func (c *Client) Ping(ctx context.Context) error {
	return c.call("ping", func() error {
		return c.store.ping(ctx)
	})
}

// ListFiles returns the .las files in the source, sorted by path. The
// extension match is case-insensitive.
func (c *Client) ListFiles(ctx context.Context) ([]FileMetadata, error) {
	var files []FileMetadata
	err := c.call("list", func() error {
		var err error
		files, err = c.store.list(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	c.logger.Debug("Listed source files",
		zap.String("endpoint", c.store.endpoint()),
		zap.Int("files", len(files)))
	return files, nil
}

// ReadHeader fetches and parses the public header block of a file.
func (c *Client) ReadHeader(ctx context.Context, name string) (*lasformat.Header, error) {
	data, err := c.ReadRange(ctx, name, 0, lasformat.HeaderPrefixSize)
	if err != nil {
		return nil, err
	}
	h, err := lasformat.ReadHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return h, nil
}

// ReadRange returns up to length bytes of a file starting at offset. Fewer
// bytes are returned when the file ends first.
func (c *Client) ReadRange(ctx context.Context, name string, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range [%d,+%d) for %s", offset, length, name)
	}
	if length == 0 {
		return nil, nil
	}
	var data []byte
	err := c.call("read_range", func() error {
		var err error
		data, err = c.store.readRange(ctx, name, offset, length)
		return err
	})
	return data, err
}

func (c *Client) call(endpoint string, fn func() error) error {
	timer := metrics.NewTimer()
	err := fn()
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordAPICall(endpoint, status, timer.Duration())
	return err
}

type localStore struct {
	root string
}

func (s *localStore) endpoint() string { return "file://" + filepath.ToSlash(s.root) }

func (s *localStore) ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return &SourceError{Op: "stat", Path: s.root, Err: err}
	}
	if !info.IsDir() {
		return &SourceError{Op: "stat", Path: s.root, Err: errors.New("not a directory")}
	}
	return nil
}

func (s *localStore) list(ctx context.Context) ([]FileMetadata, error) {
	var files []FileMetadata
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), fileExtension) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		files = append(files, FileMetadata{
			Path:         filepath.ToSlash(rel),
			Name:         d.Name(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().UnixMicro(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &SourceError{Op: "list", Path: s.root, Err: err}
	}
	return files, nil
}

func (s *localStore) resolve(name string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the source root", name)
	}
	return p, nil
}

func (s *localStore) readRange(ctx context.Context, name string, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, &SourceError{Op: "open", Path: name, Err: err}
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &SourceError{Op: "read", Path: name, Err: err}
	}
	return buf[:n], nil
}

type s3Store struct {
	client *s3.Client
	bucket string
	prefix string
	url    string
}

func newS3Store(cfg map[string]string) (*s3Store, error) {
	useSSL := true
	if sslStr := cfg["use_ssl"]; sslStr != "" {
		if parsed, err := strconv.ParseBool(sslStr); err == nil {
			useSSL = parsed
		}
	}

	endpoint := cfg["endpoint"]
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}

	region := cfg["region"]
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg["access_key_id"],
			cfg["secret_access_key"],
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// path-style addressing for MinIO and other S3-compatible endpoints
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &s3Store{
		client: client,
		bucket: cfg["bucket"],
		prefix: cfg["prefix"],
		url:    strings.TrimSuffix(endpoint, "/") + "/" + cfg["bucket"],
	}, nil
}

func (s *s3Store) endpoint() string { return s.url }

func (s *s3Store) ping(ctx context.Context) error {
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return &SourceError{Op: "list", Path: s.url, Err: err}
	}
	return nil
}

func (s *s3Store) list(ctx context.Context) ([]FileMetadata, error) {
	var files []FileMetadata
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &SourceError{Op: "list", Path: s.url, Err: err}
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.EqualFold(path.Ext(key), fileExtension) {
				continue
			}

			var modifiedTime int64
			if obj.LastModified != nil {
				modifiedTime = obj.LastModified.UnixMicro()
			}

			files = append(files, FileMetadata{
				Path:         key,
				Name:         path.Base(key),
				Size:         aws.ToInt64(obj.Size),
				ModifiedTime: modifiedTime,
			})
		}
	}
	return files, nil
}

func (s *s3Store) readRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		return nil, &SourceError{Op: "get", Path: key, Err: err}
	}
	defer result.Body.Close()

	data, err := io.ReadAll(io.LimitReader(result.Body, length))
	if err != nil {
		return nil, &SourceError{Op: "read", Path: key, Err: err}
	}
	return data, nil
}

// sourceTimeout bounds a single header fetch during discovery.
const sourceTimeout = 30 * time.Second
