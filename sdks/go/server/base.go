package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/data-power-io/noesis-las/sdks/go/protocol"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ConnectorHandler defines the interface that connector implementations must provide
type ConnectorHandler interface {
	// CheckConnection validates the connector configuration and connectivity
	CheckConnection(ctx context.Context, config map[string]string) error

	// Discover returns platform information and available entities
	Discover(ctx context.Context, req *protocol.DiscoverRequest) (*protocol.DiscoverResponse, error)

	// OpenSession creates a new session for data extraction
	OpenSession(ctx context.Context, req *protocol.OpenRequest) (string, time.Time, error)

	// CloseSession closes an existing session
	CloseSession(ctx context.Context, sessionID string) error

	// PlanSplits divides an entity into independently readable splits
	PlanSplits(ctx context.Context, req *protocol.PlanRequest) (*protocol.PlanResponse, error)

	// Read streams data for an entity or one of its splits
	Read(ctx context.Context, req *protocol.ReadRequest, stream ReadStream) error
}

// ReadStream defines the interface for streaming data back to clients
type ReadStream interface {
	Send(msg *protocol.ReadMessage) error
	Context() context.Context
}

// BaseServer fronts a ConnectorHandler with session bookkeeping and maps
// handler failures to status errors.
type BaseServer struct {
	handler   ConnectorHandler
	logger    *zap.Logger
	sessions  map[string]*Session
	sessionMu sync.RWMutex
}

// Session represents an active connector session
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Config    map[string]string
}

// NewBaseServer creates a new base connector server
func NewBaseServer(handler ConnectorHandler, logger *zap.Logger) *BaseServer {
	return &BaseServer{
		handler:  handler,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Check validates a configuration without opening a session. A failed check is
// reported in the response, not as an error.
func (s *BaseServer) Check(ctx context.Context, req *protocol.CheckRequest) (*protocol.CheckResponse, error) {
	s.logger.Info("Check request received", zap.String("tenant_id", req.TenantID))

	err := s.handler.CheckConnection(ctx, req.Config)
	if err != nil {
		s.logger.Warn("Connection check failed",
			zap.String("tenant_id", req.TenantID),
			zap.Error(err))
		return &protocol.CheckResponse{
			OK:      false,
			Message: err.Error(),
		}, nil
	}

	return &protocol.CheckResponse{
		OK:      true,
		Message: "Connection successful",
	}, nil
}

func (s *BaseServer) Discover(ctx context.Context, req *protocol.DiscoverRequest) (*protocol.DiscoverResponse, error) {
	s.logger.Info("Discover request received",
		zap.String("tenant_id", req.TenantID),
		zap.Strings("entity_filter", req.EntityFilter),
		zap.Bool("include_schemas", req.IncludeSchemas))

	resp, err := s.handler.Discover(ctx, req)
	if err != nil {
		s.logger.Error("Discovery failed",
			zap.String("tenant_id", req.TenantID),
			zap.Error(err))
		return nil, toStatus(err, codes.Internal, "discovery failed")
	}

	return resp, nil
}

func (s *BaseServer) Open(ctx context.Context, req *protocol.OpenRequest) (*protocol.OpenResponse, error) {
	s.logger.Info("Open request received", zap.String("tenant_id", req.TenantID))

	sessionID, expiresAt, err := s.handler.OpenSession(ctx, req)
	if err != nil {
		s.logger.Error("Session open failed",
			zap.String("tenant_id", req.TenantID),
			zap.Error(err))
		return nil, toStatus(err, codes.Internal, "failed to open session")
	}

	session := &Session{
		ID:        sessionID,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
		Config:    req.Config,
	}

	s.sessionMu.Lock()
	s.sessions[sessionID] = session
	s.sessionMu.Unlock()

	return &protocol.OpenResponse{
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *BaseServer) Close(ctx context.Context, req *protocol.CloseRequest) (*protocol.CloseResponse, error) {
	s.logger.Info("Close request received", zap.String("session_id", req.SessionID))

	s.sessionMu.Lock()
	delete(s.sessions, req.SessionID)
	s.sessionMu.Unlock()

	err := s.handler.CloseSession(ctx, req.SessionID)
	if err != nil {
		s.logger.Warn("Session close failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		// session is already gone from memory
	}

	return &protocol.CloseResponse{}, nil
}

func (s *BaseServer) Plan(ctx context.Context, req *protocol.PlanRequest) (*protocol.PlanResponse, error) {
	s.logger.Info("Plan request received",
		zap.String("session_id", req.SessionID),
		zap.String("entity", req.Entity),
		zap.Int32("desired_parallelism", req.DesiredParallelism))

	if err := s.checkSession(req.SessionID); err != nil {
		return nil, err
	}

	resp, err := s.handler.PlanSplits(ctx, req)
	if err != nil {
		s.logger.Error("Split planning failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return nil, toStatus(err, codes.Internal, "split planning failed")
	}
	return resp, nil
}

func (s *BaseServer) Read(req *protocol.ReadRequest, stream ReadStream) error {
	s.logger.Info("Read request received",
		zap.String("session_id", req.SessionID),
		zap.String("entity", req.Entity))

	if err := s.checkSession(req.SessionID); err != nil {
		return err
	}

	err := s.handler.Read(stream.Context(), req, stream)
	if err != nil {
		s.logger.Error("Read operation failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return toStatus(err, codes.Internal, "read operation failed")
	}

	return nil
}

// checkSession validates a session if one is named. Expired sessions are
// dropped on sight.
func (s *BaseServer) checkSession(sessionID string) error {
	if sessionID == "" {
		return nil
	}

	s.sessionMu.RLock()
	session, exists := s.sessions[sessionID]
	s.sessionMu.RUnlock()

	if !exists {
		return status.Errorf(codes.NotFound, "session not found: %s", sessionID)
	}

	if time.Now().After(session.ExpiresAt) {
		s.sessionMu.Lock()
		delete(s.sessions, sessionID)
		s.sessionMu.Unlock()

		return status.Errorf(codes.DeadlineExceeded, "session expired: %s", sessionID)
	}
	return nil
}

// GetSession returns session information for a given session ID
func (s *BaseServer) GetSession(sessionID string) (*Session, bool) {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()

	session, exists := s.sessions[sessionID]
	return session, exists
}

// CleanupExpiredSessions removes expired sessions from memory
func (s *BaseServer) CleanupExpiredSessions() {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	now := time.Now()
	for sessionID, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, sessionID)
			s.logger.Info("Cleaned up expired session", zap.String("session_id", sessionID))
		}
	}
}

// StartSessionCleanup runs CleanupExpiredSessions every interval until ctx is
// done.
func (s *BaseServer) StartSessionCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpiredSessions()
			}
		}
	}()
}

// toStatus keeps a handler's own status code and wraps anything else.
func toStatus(err error, code codes.Code, msg string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}
	return status.Errorf(code, "%s: %v", msg, err)
}
