// Package cursor encodes resume positions as opaque tokens.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/data-power-io/noesis-las/sdks/go/protocol"
)

// DefaultMaxAge is the age beyond which Validate rejects a cursor.
const DefaultMaxAge = 24 * time.Hour

const kindOffset = "offset"

// ErrExpired is returned for a cursor older than the manager's max age.
var ErrExpired = errors.New("cursor is too old")

// Manager creates and parses cursor tokens.
type Manager struct {
	maxAge time.Duration
	now    func() time.Time
}

func NewManager() *Manager {
	return &Manager{maxAge: DefaultMaxAge, now: time.Now}
}

// envelope is the decoded form of a token. Position is kept raw until the
// caller names the kind it expects.
type envelope struct {
	Kind     string          `json:"kind"`
	Position json.RawMessage `json:"position"`
	IssuedAt time.Time       `json:"issued_at"`
}

func (m *Manager) encode(kind string, position any) (*protocol.Cursor, error) {
	raw, err := json.Marshal(position)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cursor position: %w", err)
	}
	data, err := json.Marshal(envelope{Kind: kind, Position: raw, IssuedAt: m.now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cursor: %w", err)
	}
	token := make([]byte, base64.RawURLEncoding.EncodedLen(len(data)))
	base64.RawURLEncoding.Encode(token, data)
	return &protocol.Cursor{Token: token}, nil
}

// decode returns nil for a nil or empty cursor.
func (m *Manager) decode(c *protocol.Cursor) (*envelope, error) {
	if c == nil || len(c.Token) == 0 {
		return nil, nil
	}
	data := make([]byte, base64.RawURLEncoding.DecodedLen(len(c.Token)))
	n, err := base64.RawURLEncoding.Decode(data, c.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cursor token: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data[:n], &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cursor: %w", err)
	}
	return &env, nil
}

// OffsetCursor counts completed units of work, such as splits, out of Limit.
// Scope names what is being counted.
type OffsetCursor struct {
	Offset int64  `json:"offset"`
	Limit  int64  `json:"limit,omitempty"`
	Scope  string `json:"scope,omitempty"`
}

func (m *Manager) CreateOffsetCursor(offset, limit int64, scope string) (*protocol.Cursor, error) {
	return m.encode(kindOffset, OffsetCursor{Offset: offset, Limit: limit, Scope: scope})
}

// ParseOffsetCursor parses an offset cursor. A nil or empty cursor is the
// start position.
func (m *Manager) ParseOffsetCursor(c *protocol.Cursor) (*OffsetCursor, error) {
	env, err := m.decode(c)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return &OffsetCursor{}, nil
	}
	if env.Kind != kindOffset {
		return nil, fmt.Errorf("expected offset cursor, got %q", env.Kind)
	}

	var oc OffsetCursor
	if err := json.Unmarshal(env.Position, &oc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal offset cursor: %w", err)
	}
	if oc.Offset < 0 || oc.Limit < 0 {
		return nil, fmt.Errorf("negative cursor offset %d or limit %d", oc.Offset, oc.Limit)
	}
	return &oc, nil
}

// Validate checks that a cursor decodes and is not older than the max age.
// A nil cursor is valid.
func (m *Manager) Validate(c *protocol.Cursor) error {
	env, err := m.decode(c)
	if err != nil {
		return fmt.Errorf("invalid cursor: %w", err)
	}
	if env == nil {
		return nil
	}
	if age := m.now().Sub(env.IssuedAt); age > m.maxAge {
		return fmt.Errorf("%w: issued %s ago", ErrExpired, age.Round(time.Second))
	}
	return nil
}

// Age returns how long ago a cursor was issued. A nil cursor has age zero.
func (m *Manager) Age(c *protocol.Cursor) (time.Duration, error) {
	env, err := m.decode(c)
	if err != nil || env == nil {
		return 0, err
	}
	return m.now().Sub(env.IssuedAt), nil
}
