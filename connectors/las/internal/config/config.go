package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Source kinds.
const (
	SourceLocal = "local"
	SourceS3    = "s3"
)

// Scan tuning defaults.
const (
	DefaultBatchSize          = 4096
	DefaultParallelism        = 4
	DefaultTargetSplitRecords = 1000000
	DefaultSessionTTL         = time.Hour
)

var envVars = []string{
	"LAS_SOURCE",
	"LAS_ROOT",
	"LAS_S3_ENDPOINT",
	"LAS_S3_ACCESS_KEY_ID",
	"LAS_S3_SECRET_ACCESS_KEY",
	"LAS_S3_BUCKET",
	"LAS_S3_PREFIX",
	"LAS_S3_REGION",
	"LAS_S3_USE_SSL",
	"LAS_BATCH_SIZE",
	"LAS_PARALLELISM",
	"LAS_TARGET_SPLIT_RECORDS",
	"LAS_SESSION_TTL",
	"LAS_LOG_LEVEL",
	"LAS_LOG_FORMAT",
	"LAS_METRICS_ADDR",
	"PORT",
}

type Config struct {
	values map[string]string
}

// Load reads an optional .env file from the working directory and then the
// LAS_* environment. Real environment variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		values: make(map[string]string),
	}
	cfg.loadFromEnv()
	return cfg, nil
}

// FromMap builds a Config from explicit values, keyed like the environment.
func FromMap(values map[string]string) *Config {
	cfg := &Config{values: make(map[string]string, len(values))}
	for k, v := range values {
		cfg.values[k] = v
	}
	return cfg
}

func (c *Config) loadFromEnv() {
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			c.values[envVar] = value
		}
	}
}

// NormalizeConfig converts request config keys to the internal form, filling
// defaults for optional keys.
func NormalizeConfig(rawConfig map[string]string) (map[string]string, error) {
	if err := ValidateConfig(rawConfig); err != nil {
		return nil, err
	}

	config := make(map[string]string)

	source := rawConfig["source"]
	if source == "" {
		source = SourceLocal
	}
	config["source"] = source

	mapping := map[string]string{
		"root":            "root",
		"endpoint":        "endpoint",
		"accessKeyId":     "access_key_id",
		"secretAccessKey": "secret_access_key",
		"bucket":          "bucket",
		"prefix":          "prefix",
	}
	for from, to := range mapping {
		if v := rawConfig[from]; v != "" {
			config[to] = v
		}
	}

	if useSsl := rawConfig["useSsl"]; useSsl != "" {
		config["use_ssl"] = useSsl
	} else {
		config["use_ssl"] = "true"
	}
	if region := rawConfig["region"]; region != "" {
		config["region"] = region
	} else {
		config["region"] = "us-east-1"
	}

	return config, nil
}

// ValidateConfig validates required fields are present for the source kind
func ValidateConfig(config map[string]string) error {
	var requiredFields []string
	switch source := config["source"]; source {
	case "", SourceLocal:
		requiredFields = []string{"root"}
	case SourceS3:
		requiredFields = []string{"endpoint", "accessKeyId", "secretAccessKey", "bucket"}
	default:
		return fmt.Errorf("unknown source %q, want %q or %q", source, SourceLocal, SourceS3)
	}

	for _, field := range requiredFields {
		if value := config[field]; value == "" {
			return fmt.Errorf("required field '%s' is missing or empty", field)
		}
	}

	if useSsl := config["useSsl"]; useSsl != "" {
		if _, err := strconv.ParseBool(useSsl); err != nil {
			return fmt.Errorf("field 'useSsl' must be a boolean: %w", err)
		}
	}

	return nil
}

func (c *Config) GetString(key, defaultValue string) string {
	if value, exists := c.values[key]; exists {
		return value
	}
	return defaultValue
}

func (c *Config) GetInt(key string, defaultValue int) int {
	if value, exists := c.values[key]; exists {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) GetBool(key string, defaultValue bool) bool {
	if value, exists := c.values[key]; exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (c *Config) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := c.values[key]; exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// GetSourceConfig returns the source settings from the environment in request
// form, ready for NormalizeConfig.
func (c *Config) GetSourceConfig() map[string]string {
	raw := map[string]string{
		"source":          c.GetString("LAS_SOURCE", SourceLocal),
		"root":            c.GetString("LAS_ROOT", ""),
		"endpoint":        c.GetString("LAS_S3_ENDPOINT", ""),
		"accessKeyId":     c.GetString("LAS_S3_ACCESS_KEY_ID", ""),
		"secretAccessKey": c.GetString("LAS_S3_SECRET_ACCESS_KEY", ""),
		"bucket":          c.GetString("LAS_S3_BUCKET", ""),
		"prefix":          c.GetString("LAS_S3_PREFIX", ""),
		"useSsl":          c.GetString("LAS_S3_USE_SSL", "true"),
		"region":          c.GetString("LAS_S3_REGION", "us-east-1"),
	}
	for k, v := range raw {
		if v == "" {
			delete(raw, k)
		}
	}
	return raw
}

// BatchSize is the number of rows per emitted record batch.
func (c *Config) BatchSize() int {
	return c.GetInt("LAS_BATCH_SIZE", DefaultBatchSize)
}

// Parallelism is the number of concurrent split workers.
func (c *Config) Parallelism() int {
	return c.GetInt("LAS_PARALLELISM", DefaultParallelism)
}

// TargetSplitRecords is the preferred number of records per split.
func (c *Config) TargetSplitRecords() int64 {
	return int64(c.GetInt("LAS_TARGET_SPLIT_RECORDS", DefaultTargetSplitRecords))
}

// SessionTTL is the lifetime of an opened session.
func (c *Config) SessionTTL() time.Duration {
	return c.GetDuration("LAS_SESSION_TTL", DefaultSessionTTL)
}
