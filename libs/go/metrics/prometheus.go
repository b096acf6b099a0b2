// Package metrics provides Prometheus metrics for connectors
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "noesis"

var (
	// Connection metrics
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_connections_total",
			Help:      "Source connection attempts by outcome",
		},
		[]string{"connector", "tenant", "status"},
	)

	ConnectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connector_connection_duration_seconds",
			Help:      "Time taken to reach the source",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"connector", "tenant"},
	)

	// Session metrics
	SessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connector_sessions_active",
			Help:      "Open read sessions",
		},
		[]string{"connector", "tenant"},
	)

	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connector_session_duration_seconds",
			Help:      "Lifetime of closed read sessions",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
		[]string{"connector", "tenant"},
	)

	// Source file metrics
	FilesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_files_discovered_total",
			Help:      "Source files examined during discovery, by outcome",
		},
		[]string{"connector", "tenant", "status"},
	)

	FilesByPointFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_files_by_point_format_total",
			Help:      "Accepted source files by point record format",
		},
		[]string{"connector", "tenant", "point_format"},
	)

	// Split read metrics
	SplitsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_splits_read_total",
			Help:      "Splits decoded to completion",
		},
		[]string{"connector", "tenant", "entity"},
	)

	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_records_extracted_total",
			Help:      "Point records decoded and sent",
		},
		[]string{"connector", "tenant", "entity"},
	)

	BytesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_bytes_extracted_total",
			Help:      "Record bytes read from the source",
		},
		[]string{"connector", "tenant", "entity"},
	)

	SplitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connector_split_duration_seconds",
			Help:      "Time to fetch and decode one split",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"connector", "tenant", "entity"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_errors_total",
			Help:      "Failed requests by error kind",
		},
		[]string{"connector", "tenant", "type", "entity"},
	)

	// Source API metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_api_calls_total",
			Help:      "Calls made to the file source (list, ranged reads)",
		},
		[]string{"connector", "tenant", "endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connector_api_call_duration_seconds",
			Help:      "Duration of calls to the file source",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"connector", "tenant", "endpoint"},
	)
)

// File discovery outcomes.
const (
	FileStatusOK      = "ok"
	FileStatusSkipped = "skipped"
)

// ConnectorMetrics records metrics under one connector and tenant label pair.
type ConnectorMetrics struct {
	connectorName string
	tenantID      string
}

func NewConnectorMetrics(connectorName, tenantID string) *ConnectorMetrics {
	return &ConnectorMetrics{
		connectorName: connectorName,
		tenantID:      tenantID,
	}
}

func (m *ConnectorMetrics) RecordConnection(status string, duration time.Duration) {
	ConnectionsTotal.WithLabelValues(m.connectorName, m.tenantID, status).Inc()
	ConnectionDuration.WithLabelValues(m.connectorName, m.tenantID).Observe(duration.Seconds())
}

func (m *ConnectorMetrics) RecordSessionStart() {
	SessionsActive.WithLabelValues(m.connectorName, m.tenantID).Inc()
}

func (m *ConnectorMetrics) RecordSessionEnd(duration time.Duration) {
	SessionsActive.WithLabelValues(m.connectorName, m.tenantID).Dec()
	SessionDuration.WithLabelValues(m.connectorName, m.tenantID).Observe(duration.Seconds())
}

// RecordFileDiscovered counts one examined source file with its outcome.
func (m *ConnectorMetrics) RecordFileDiscovered(status string) {
	FilesDiscovered.WithLabelValues(m.connectorName, m.tenantID, status).Inc()
}

// RecordPointFormat counts an accepted file under its point record format.
func (m *ConnectorMetrics) RecordPointFormat(format int) {
	FilesByPointFormat.WithLabelValues(m.connectorName, m.tenantID, strconv.Itoa(format)).Inc()
}

// RecordSplitRead records one fully decoded split.
func (m *ConnectorMetrics) RecordSplitRead(entity string, records int64, bytes int64, duration time.Duration) {
	SplitsRead.WithLabelValues(m.connectorName, m.tenantID, entity).Inc()
	RecordsExtracted.WithLabelValues(m.connectorName, m.tenantID, entity).Add(float64(records))
	BytesExtracted.WithLabelValues(m.connectorName, m.tenantID, entity).Add(float64(bytes))
	SplitDuration.WithLabelValues(m.connectorName, m.tenantID, entity).Observe(duration.Seconds())
}

func (m *ConnectorMetrics) RecordError(errorType string, entity string) {
	ErrorsTotal.WithLabelValues(m.connectorName, m.tenantID, errorType, entity).Inc()
}

func (m *ConnectorMetrics) RecordAPICall(endpoint string, status string, duration time.Duration) {
	APICallsTotal.WithLabelValues(m.connectorName, m.tenantID, endpoint, status).Inc()
	APICallDuration.WithLabelValues(m.connectorName, m.tenantID, endpoint).Observe(duration.Seconds())
}

// Timer measures elapsed time from its creation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
