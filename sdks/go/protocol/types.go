// Package protocol defines the request, response and stream message types
// exchanged between a connector host and a connector.
package protocol

import (
	"time"

	"github.com/apache/arrow/go/v18/arrow"
)

// EntityKind classifies a discovered entity.
type EntityKind int

const (
	EntityKindUnspecified EntityKind = iota
	EntityKindNode
	EntityKindEdge
)

func (k EntityKind) String() string {
	switch k {
	case EntityKindNode:
		return "NODE"
	case EntityKindEdge:
		return "EDGE"
	default:
		return "UNSPECIFIED"
	}
}

// Cursor is an opaque resume position.
type Cursor struct {
	Token []byte
}

type CheckRequest struct {
	TenantID string
	Config   map[string]string
}

type CheckResponse struct {
	OK      bool
	Message string
}

type DiscoverRequest struct {
	TenantID       string
	Config         map[string]string
	EntityFilter   []string
	IncludeSchemas bool
}

type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
}

// ExtractionCapabilities advertises the read modes an entity supports.
type ExtractionCapabilities struct {
	SupportsFullTable    bool
	SupportsChangeStream bool
	SupportsSubgraph     bool
	SupportsSplits       bool
}

type EntityDescriptor struct {
	Name         string
	Kind         EntityKind
	DisplayName  string
	Description  string
	SchemaID     string
	Schema       *arrow.Schema
	PrimaryKey   []string
	Capabilities *ExtractionCapabilities
	Attributes   map[string]string
}

type DiscoverResponse struct {
	Platform *PlatformInfo
	Entities []*EntityDescriptor
}

type OpenRequest struct {
	TenantID string
	Config   map[string]string
}

type OpenResponse struct {
	SessionID string
	ExpiresAt time.Time
}

type CloseRequest struct {
	SessionID string
}

type CloseResponse struct{}

// PlanRequest asks for the splits of one entity.
type PlanRequest struct {
	SessionID          string
	Entity             string
	DesiredParallelism int32
}

// ExtractionSplit is one independently readable slice of an entity.
type ExtractionSplit struct {
	SplitID       string
	SplitToken    []byte
	EstimatedRows int64
	Metadata      map[string]string
}

type PlanResponse struct {
	Splits    []*ExtractionSplit
	TotalRows int64
}

// ReadRequest reads an entity, or a single split of it when SplitToken is set.
// An empty Columns list selects every column.
type ReadRequest struct {
	SessionID  string
	Entity     string
	Columns    []string
	SplitToken []byte
	ResumeFrom *Cursor
}

type SchemaMsg struct {
	Entity string
	Schema *arrow.Schema
}

type StateMsg struct {
	Cursor    *Cursor
	Watermark int64
	GroupID   string
}

type LogMsg struct {
	Level   string
	Message string
	KV      map[string]string
}

type MetricMsg struct {
	Name  string
	Value float64
	Tags  map[string]string
}

// ReadMessage is one element of a read stream. Exactly one member is set.
type ReadMessage struct {
	Record arrow.Record
	Schema *SchemaMsg
	State  *StateMsg
	Log    *LogMsg
	Metric *MetricMsg
}
