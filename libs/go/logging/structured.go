// Package logging wraps zap with the fields and events the connector emits.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ConnectorLogger is a zap.Logger that remembers its context fields.
type ConnectorLogger struct {
	*zap.Logger
	fields map[string]interface{}
}

// Config selects level, encoding and destination of a logger.
type Config struct {
	Level       string            `json:"level"`
	Format      string            `json:"format"` // "json" or "console"
	OutputPath  string            `json:"output_path"`
	Fields      map[string]string `json:"fields"`
	Development bool              `json:"development"`
}

// NewLogger builds a logger writing to stderr unless OutputPath is set. An
// unparseable level falls back to info.
func NewLogger(cfg Config) (*ConnectorLogger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapCfg.Level = level

	zapCfg.Encoding = "json"
	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	if cfg.OutputPath != "" {
		zapCfg.OutputPaths = []string{cfg.OutputPath}
	}

	base, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	l := Wrap(base)
	for k, v := range cfg.Fields {
		l = l.WithField(k, v)
	}
	return l, nil
}

// Wrap adapts an existing zap logger. A nil logger discards everything.
func Wrap(logger *zap.Logger) *ConnectorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectorLogger{
		Logger: logger,
		fields: make(map[string]interface{}),
	}
}

// Fields returns a copy of the context fields attached to the logger.
func (l *ConnectorLogger) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}

// WithField returns a child logger carrying key.
func (l *ConnectorLogger) WithField(key string, value interface{}) *ConnectorLogger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a child logger carrying fields. The parent is unchanged.
func (l *ConnectorLogger) WithFields(fields map[string]interface{}) *ConnectorLogger {
	merged := l.Fields()
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		merged[k] = v
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return &ConnectorLogger{
		Logger: l.Logger.With(zapFields...),
		fields: merged,
	}
}

// ForFile scopes a logger to one source file.
func (l *ConnectorLogger) ForFile(path string) *ConnectorLogger {
	return l.WithField("path", path)
}

// LogFileAccepted records a file whose header was read and kept.
func (l *ConnectorLogger) LogFileAccepted(path, version string, pointFormat int, records int64) {
	l.Debug("Accepted file",
		zap.String("path", path),
		zap.String("version", version),
		zap.Int("point_format", pointFormat),
		zap.Int64("records", records))
}

// LogFileSkipped records that a source file was left out of a multi-file
// operation. kind is a short stable label for the failure.
func (l *ConnectorLogger) LogFileSkipped(path string, kind string, err error) {
	l.Warn("Skipping file",
		zap.String("path", path),
		zap.String("error_kind", kind),
		zap.String("severity", "warning"),
		zap.String("type", "data_quality"),
		zap.Error(err))
}

// LogScanSummary reports the outcome of a completed read.
func (l *ConnectorLogger) LogScanSummary(entity string, rows int64, batches int, elapsed time.Duration) {
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(rows) / secs
	}
	l.Info("Scan completed",
		zap.String("entity", entity),
		zap.Int64("rows", rows),
		zap.Int("batches", batches),
		zap.Duration("elapsed", elapsed),
		zap.Float64("rows_per_second", rate),
		zap.String("type", "performance"))
}

// Sync flushes any buffered log entries.
func (l *ConnectorLogger) Sync() error {
	return l.Logger.Sync()
}
