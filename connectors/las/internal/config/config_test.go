package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeConfig_Local(t *testing.T) {
	cfg, err := NormalizeConfig(map[string]string{"root": "/data/tiles"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"source":  SourceLocal,
		"root":    "/data/tiles",
		"use_ssl": "true",
		"region":  "us-east-1",
	}, cfg)
}

func TestNormalizeConfig_S3(t *testing.T) {
	cfg, err := NormalizeConfig(map[string]string{
		"source":          "s3",
		"endpoint":        "minio:9000",
		"accessKeyId":     "key",
		"secretAccessKey": "secret",
		"bucket":          "lidar",
		"prefix":          "survey/2024",
		"useSsl":          "false",
		"region":          "eu-west-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg["source"])
	assert.Equal(t, "key", cfg["access_key_id"])
	assert.Equal(t, "secret", cfg["secret_access_key"])
	assert.Equal(t, "survey/2024", cfg["prefix"])
	assert.Equal(t, "false", cfg["use_ssl"])
	assert.Equal(t, "eu-west-1", cfg["region"])
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]string
		wantErr string
	}{
		{"local without root", map[string]string{}, "'root'"},
		{"s3 without bucket", map[string]string{"source": "s3", "endpoint": "e", "accessKeyId": "a", "secretAccessKey": "s"}, "'bucket'"},
		{"unknown source", map[string]string{"source": "ftp"}, "unknown source"},
		{"bad ssl flag", map[string]string{"root": "/d", "useSsl": "maybe"}, "useSsl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Getters(t *testing.T) {
	cfg := FromMap(map[string]string{
		"LAS_BATCH_SIZE":  "512",
		"LAS_PARALLELISM": "zero",
		"LAS_SESSION_TTL": "15m",
		"LAS_S3_USE_SSL":  "false",
	})

	assert.Equal(t, 512, cfg.BatchSize())
	assert.Equal(t, DefaultParallelism, cfg.Parallelism(), "unparseable values fall back")
	assert.Equal(t, int64(DefaultTargetSplitRecords), cfg.TargetSplitRecords())
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL())
	assert.False(t, cfg.GetBool("LAS_S3_USE_SSL", true))
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LAS_ROOT=/from/dotenv\nLAS_BATCH_SIZE=64\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("LAS_BATCH_SIZE", "128")
	t.Setenv("LAS_ROOT", "")
	os.Unsetenv("LAS_ROOT")

	cfg, err := Load()
	require.NoError(t, err)
	t.Cleanup(func() { os.Unsetenv("LAS_ROOT") })

	assert.Equal(t, 128, cfg.BatchSize(), "environment wins over .env")
	assert.Equal(t, "/from/dotenv", cfg.GetString("LAS_ROOT", ""))

	src, err := NormalizeConfig(cfg.GetSourceConfig())
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", src["root"])
}
