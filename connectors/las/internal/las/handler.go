package las

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	configpkg "github.com/data-power-io/noesis-las/connectors/las/internal/config"
	"github.com/data-power-io/noesis-las/connectors/las/internal/lasformat"
	"github.com/data-power-io/noesis-las/libs/go/metrics"
	"github.com/data-power-io/noesis-las/sdks/go/protocol"
	"github.com/data-power-io/noesis-las/sdks/go/server"
	"github.com/data-power-io/noesis-las/sdks/go/streaming"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// ConnectorName labels metrics and platform info.
	ConnectorName = "las"
	// EntityPoints is the single entity a LAS source exposes.
	EntityPoints = "points"
)

type session struct {
	id        string
	tenantID  string
	client    *Client
	metrics   *metrics.ConnectorMetrics
	openedAt  time.Time
	expiresAt time.Time

	mu      sync.Mutex
	catalog *Catalog
}

type Handler struct {
	config *configpkg.Config
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewHandler(cfg *configpkg.Config, logger *zap.Logger) (*Handler, error) {
	if cfg == nil {
		cfg = configpkg.FromMap(nil)
	}
	handler := &Handler{
		config:   cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
	return handler, nil
}

// Close releases every open session.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		s.client.Close()
		s.metrics.RecordSessionEnd(time.Since(s.openedAt))
		delete(h.sessions, id)
	}
	return nil
}

func (h *Handler) CheckConnection(ctx context.Context, rawConfig map[string]string) error {
	client, _, err := h.newClient(rawConfig, "")
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to source: %w", err)
	}

	h.logger.Info("LAS connection check successful")
	return nil
}

func (h *Handler) Discover(ctx context.Context, req *protocol.DiscoverRequest) (*protocol.DiscoverResponse, error) {
	h.logger.Info("Starting discovery", zap.String("tenant_id", req.TenantID))

	response := &protocol.DiscoverResponse{
		Platform: &protocol.PlatformInfo{
			Name:    "LAS Point Cloud",
			Vendor:  "ASPRS",
			Version: "1.4",
		},
	}
	if !wantsEntity(req.EntityFilter, EntityPoints) {
		return response, nil
	}

	client, m, err := h.newClient(req.Config, req.TenantID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	defer client.Close()

	catalog, err := NewCatalogBuilder(client, h.config.Parallelism(), m, h.logger).Build(ctx)
	if err != nil {
		return nil, toStatus(err, m)
	}

	entity, err := h.buildPointsEntity(catalog, req.IncludeSchemas)
	if err != nil {
		return nil, toStatus(err, m)
	}
	response.Entities = []*protocol.EntityDescriptor{entity}

	h.logger.Info("Discovery completed",
		zap.String("tenant_id", req.TenantID),
		zap.Int("files", len(catalog.Files)),
		zap.Int("skipped_files", len(catalog.Skipped)))

	return response, nil
}

func (h *Handler) buildPointsEntity(catalog *Catalog, includeSchema bool) (*protocol.EntityDescriptor, error) {
	entity := &protocol.EntityDescriptor{
		Name:        EntityPoints,
		Kind:        protocol.EntityKindNode,
		DisplayName: "Points",
		Description: "Point records of every LAS file in the source, in one schema",
		SchemaID:    SchemaID(catalog.Schema),
		PrimaryKey:  []string{lasformat.IdentityField},
		Capabilities: &protocol.ExtractionCapabilities{
			SupportsFullTable:    true,
			SupportsChangeStream: false,
			SupportsSubgraph:     false,
			SupportsSplits:       true,
		},
		Attributes: catalog.Attributes(),
	}
	if includeSchema {
		s, err := ToArrowSchema(catalog.Schema)
		if err != nil {
			return nil, err
		}
		entity.Schema = s
	}
	return entity, nil
}

// SchemaID derives a stable identifier from a schema's fields.
func SchemaID(s lasformat.Schema) string {
	return "points_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.String())).String()
}

func (h *Handler) OpenSession(ctx context.Context, req *protocol.OpenRequest) (string, time.Time, error) {
	client, m, err := h.newClient(req.Config, req.TenantID)
	if err != nil {
		return "", time.Time{}, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	timer := metrics.NewTimer()
	if err := client.Ping(ctx); err != nil {
		m.RecordConnection("failure", timer.Duration())
		client.Close()
		return "", time.Time{}, toStatus(err, m)
	}
	m.RecordConnection("success", timer.Duration())
	m.RecordSessionStart()

	now := time.Now()
	s := &session{
		id:        uuid.New().String(),
		tenantID:  req.TenantID,
		client:    client,
		metrics:   m,
		openedAt:  now,
		expiresAt: now.Add(h.config.SessionTTL()),
	}

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.logger.Info("Session opened",
		zap.String("session_id", s.id),
		zap.String("tenant_id", req.TenantID),
		zap.Time("expires_at", s.expiresAt))

	return s.id, s.expiresAt, nil
}

func (h *Handler) CloseSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	if !ok {
		return status.Errorf(codes.NotFound, "session not found: %s", sessionID)
	}
	s.client.Close()
	s.metrics.RecordSessionEnd(time.Since(s.openedAt))

	h.logger.Info("Session closed", zap.String("session_id", sessionID))
	return nil
}

func (h *Handler) PlanSplits(ctx context.Context, req *protocol.PlanRequest) (*protocol.PlanResponse, error) {
	s, err := h.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.Entity != EntityPoints {
		return nil, status.Errorf(codes.NotFound, "unknown entity: %s", req.Entity)
	}

	catalog, err := h.catalog(ctx, s)
	if err != nil {
		return nil, toStatus(err, s.metrics)
	}

	splits, total, err := NewSplitter(h.config.TargetSplitRecords(), h.logger).GenerateSplits(catalog.Files, req.DesiredParallelism)
	if err != nil {
		return nil, toStatus(err, s.metrics)
	}

	return &protocol.PlanResponse{
		Splits:    splits,
		TotalRows: total,
	}, nil
}

func (h *Handler) Read(ctx context.Context, req *protocol.ReadRequest, stream server.ReadStream) error {
	s, err := h.session(req.SessionID)
	if err != nil {
		return err
	}
	if req.Entity != EntityPoints {
		return status.Errorf(codes.NotFound, "unknown entity: %s", req.Entity)
	}

	catalog, err := h.catalog(ctx, s)
	if err != nil {
		return toStatus(err, s.metrics)
	}

	p, err := NewProjection(catalog.Schema, req.Columns)
	if err != nil {
		return err
	}

	reader := NewReader(s.client, ReaderOptions{
		BatchSize:   h.config.BatchSize(),
		Parallelism: h.config.Parallelism(),
	}, s.metrics, h.logger)

	header := streaming.NewRecordStreamer(stream, h.logger, p.Schema, SchemaID(catalog.Schema))
	defer header.Close()
	if err := header.SendSchema(EntityPoints); err != nil {
		return status.Errorf(codes.Internal, "failed to send schema: %v", err)
	}

	if len(req.SplitToken) > 0 {
		token, err := ParseSplitToken(req.SplitToken)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "invalid split token: %v", err)
		}
		f, ok := catalog.File(token.Path)
		if !ok {
			return status.Errorf(codes.NotFound, "split token names unknown file: %s", token.Path)
		}
		if f.Header.PDRFormat != token.PointFormat {
			return status.Errorf(codes.InvalidArgument, "split token point format %d does not match %s (format %d)",
				token.PointFormat, token.Path, f.Header.PDRFormat)
		}
		if _, err := reader.ReadSplit(ctx, token, p, stream); err != nil {
			return toStatus(err, s.metrics)
		}
		return nil
	}

	splits, _, err := NewSplitter(h.config.TargetSplitRecords(), h.logger).GenerateSplits(catalog.Files, 0)
	if err != nil {
		return toStatus(err, s.metrics)
	}
	tokens := make([]*SplitToken, len(splits))
	for i, split := range splits {
		if tokens[i], err = ParseSplitToken(split.SplitToken); err != nil {
			return status.Errorf(codes.Internal, "invalid split token: %v", err)
		}
	}

	if err := reader.ReadPlan(ctx, tokens, p, stream, req.ResumeFrom); err != nil {
		return toStatus(err, s.metrics)
	}
	return nil
}

// catalog returns the session's catalog, building it on first use.
func (h *Handler) catalog(ctx context.Context, s *session) (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalog != nil {
		return s.catalog, nil
	}
	c, err := NewCatalogBuilder(s.client, h.config.Parallelism(), s.metrics, h.logger).Build(ctx)
	if err != nil {
		return nil, err
	}
	s.catalog = c
	return c, nil
}

func (h *Handler) session(sessionID string) (*session, error) {
	if sessionID == "" {
		return nil, status.Errorf(codes.FailedPrecondition, "no active session - reads require an open session")
	}
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "session not found: %s", sessionID)
	}
	if time.Now().After(s.expiresAt) {
		return nil, status.Errorf(codes.DeadlineExceeded, "session expired: %s", sessionID)
	}
	return s, nil
}

// newClient builds a client from request config, falling back to the
// environment's source settings when the request carries none.
func (h *Handler) newClient(rawConfig map[string]string, tenantID string) (*Client, *metrics.ConnectorMetrics, error) {
	if len(rawConfig) == 0 {
		rawConfig = h.config.GetSourceConfig()
	}
	cfg, err := configpkg.NormalizeConfig(rawConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m := metrics.NewConnectorMetrics(ConnectorName, tenantID)
	client, err := NewClient(cfg, m, h.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, m, nil
}

func wantsEntity(filter []string, name string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == name {
			return true
		}
	}
	return false
}

// toStatus maps a decode or source failure to a status error and counts it.
// Errors that already carry a status pass through.
func toStatus(err error, m *metrics.ConnectorMetrics) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	var sourceErr *SourceError
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, lasformat.ErrIncompatibleFieldType), errors.Is(err, lasformat.ErrInvalidStride):
		code = codes.FailedPrecondition
	case errors.Is(err, lasformat.ErrUnsupportedCast):
		code = codes.InvalidArgument
	case lasformat.IsFileLocal(err):
		code = codes.DataLoss
	case errors.As(err, &sourceErr):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}

	kind := lasformat.ErrorKind(err)
	if sourceErr != nil {
		kind = "source_" + sourceErr.Op
	}
	m.RecordError(kind, EntityPoints)
	return status.Error(code, err.Error())
}
