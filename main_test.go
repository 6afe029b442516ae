package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server_config": {"host": "127.0.0.1", "port": 8080},
		"upload_dir": "/var/lib/reader",
		"max_upload_bytes": 1048576,
		"log_level": "debug",
		"log_format": "json",
		"allowed_origins": ["https://app.example"],
		"ocr_config": {"languages": ["eng", "ocrb"], "tessdata_prefix": "/usr/share/tessdata"},
		"storage_type": "redis",
		"redis_config": {"host": "redis", "port": 6379, "namespace": "reader"},
		"sweep_interval_seconds": 30,
		"sweep_min_age_seconds": 120
	}`), 0o600))

	config, err := readConfigFile(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", config.ServerConfig.Host)
	require.Equal(t, 8080, config.ServerConfig.Port)
	require.Equal(t, "/var/lib/reader", config.UploadDir)
	require.Equal(t, int64(1048576), config.MaxUploadBytes)
	require.Equal(t, "json", config.LogFormat)
	require.Equal(t, []string{"https://app.example"}, config.AllowedOrigins)
	require.Equal(t, []string{"eng", "ocrb"}, config.OcrConfig.Languages)
	require.Equal(t, "redis", config.StorageType)
	require.Equal(t, "reader", config.RedisConfig.Namespace)
	require.Equal(t, 30, config.SweepIntervalSeconds)
}

func TestReadConfigFileErrors(t *testing.T) {
	_, err := readConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_config":`), 0o600))
	_, err = readConfigFile(path)
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	config := defaultConfig()

	require.Equal(t, "0.0.0.0", config.ServerConfig.Host)
	require.Equal(t, 5000, config.ServerConfig.Port)
	require.Equal(t, defaultUploadDir, config.UploadDir)
	require.Equal(t, int64(20<<20), config.MaxUploadBytes)
	require.Equal(t, []string{"*"}, config.AllowedOrigins)
	require.Equal(t, "memory", config.StorageType)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("HOST", "10.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("UPLOAD_DIR", "/tmp/reader")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("TESSDATA_PREFIX", "/opt/tessdata")

	config := defaultConfig()
	applyEnvOverrides(&config)

	require.Equal(t, "10.0.0.1", config.ServerConfig.Host)
	require.Equal(t, 9090, config.ServerConfig.Port)
	require.Equal(t, "/tmp/reader", config.UploadDir)
	require.Equal(t, "warn", config.LogLevel)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, config.AllowedOrigins)
	require.Equal(t, "secret", config.RedisConfig.Password)
	require.Equal(t, "secret", config.RedisSentinelConfig.Password)
	require.Equal(t, "/opt/tessdata", config.OcrConfig.TessdataPrefix)
}

func TestApplyEnvOverridesIgnoresBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	config := defaultConfig()
	applyEnvOverrides(&config)
	require.Equal(t, 5000, config.ServerConfig.Port)
}

func TestCreateUploadRegistry(t *testing.T) {
	config := defaultConfig()
	registry, err := createUploadRegistry(&config)
	require.NoError(t, err)
	require.IsType(t, &InMemoryUploadRegistry{}, registry)

	config.StorageType = "sqlite"
	_, err = createUploadRegistry(&config)
	require.ErrorContains(t, err, "not a valid storage type")

	config.StorageType = "redis"
	_, err = createUploadRegistry(&config)
	require.ErrorContains(t, err, "host and port are required")
}
