package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Harvest.BatchSize)
	assert.Equal(t, 1, cfg.Harvest.Workers)
	assert.Equal(t, 60*time.Second, cfg.Harvest.CallTimeout)
	assert.Equal(t, int64(10<<30), cfg.Harvest.DiskCeiling)
	assert.True(t, cfg.Harvest.DeleteAfterUpload)
	assert.False(t, cfg.Harvest.SkipFailed)
	assert.Equal(t, "1952-06-18", cfg.Sources.Karnataka.StartDate)
	assert.Equal(t, int64(30000000), cfg.Sources.RajyaSabha.EndID)
	assert.Equal(t, "https://s3.us.archive.org", cfg.Archive.UploadURL)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LEGMIRROR_IA_ACCESS_KEY", "access")
	t.Setenv("LEGMIRROR_IA_SECRET_KEY", "secret")
	t.Setenv("LEGMIRROR_BATCH_SIZE", "25")
	t.Setenv("LEGMIRROR_WORKERS", "4")
	t.Setenv("LEGMIRROR_MIN_INTERVAL", "750ms")
	t.Setenv("LEGMIRROR_DISK_CEILING", "1048576")
	t.Setenv("LEGMIRROR_SKIP_FAILED", "true")
	t.Setenv("LEGMIRROR_SKIP_NOT_FOUND", "false")
	t.Setenv("LEGMIRROR_DELETE_AFTER_UPLOAD", "0")
	t.Setenv("LEGMIRROR_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "access", cfg.Archive.AccessKey)
	assert.Equal(t, "secret", cfg.Archive.SecretKey)
	assert.Equal(t, 25, cfg.Harvest.BatchSize)
	assert.Equal(t, 4, cfg.Harvest.Workers)
	assert.Equal(t, 750*time.Millisecond, cfg.Harvest.MinInterval)
	assert.Equal(t, int64(1048576), cfg.Harvest.DiskCeiling)
	assert.True(t, cfg.Harvest.SkipFailed)
	assert.False(t, cfg.Harvest.SkipNotFound)
	assert.False(t, cfg.Harvest.DeleteAfterUpload)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("LEGMIRROR_BATCH_SIZE", "ten")
	t.Setenv("LEGMIRROR_CALL_TIMEOUT", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEGMIRROR_BATCH_SIZE")
	assert.Contains(t, err.Error(), "LEGMIRROR_CALL_TIMEOUT")
	assert.Equal(t, 10, cfg.Harvest.BatchSize)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
archive:
  collection: test_collection
  dry_run: true
harvest:
  batch_size: 5
  workers: 2
  min_interval: 500ms
  skip_not_found: false
retry:
  max_attempts: 6
  base_delay: 1s
sources:
  karnataka:
    start_date: "2020-01-01"
    end_date: "2020-01-05"
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "test_collection", cfg.Archive.Collection)
	assert.True(t, cfg.Archive.DryRun)
	assert.Equal(t, 5, cfg.Harvest.BatchSize)
	assert.Equal(t, 2, cfg.Harvest.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Harvest.MinInterval)
	assert.False(t, cfg.Harvest.SkipNotFound)
	assert.Equal(t, 6, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, "2020-01-05", cfg.Sources.Karnataka.EndDate)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// untouched sections keep their defaults
	assert.Equal(t, "https://rsdebate.nic.in", cfg.Sources.RajyaSabha.BaseURL)
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("harvest: [unclosed"), 0644))
	assert.Error(t, cfg.LoadFromFile(bad))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero batch size", func(c *Config) { c.Harvest.BatchSize = 0 }, "batch size"},
		{"too many workers", func(c *Config) { c.Harvest.Workers = 64 }, "workers"},
		{"negative ceiling", func(c *Config) { c.Harvest.DiskCeiling = -1 }, "disk ceiling"},
		{"bad id range", func(c *Config) { c.Sources.RajyaSabha.EndID = 0 }, "rajyasabha"},
		{"bad start date", func(c *Config) { c.Sources.Karnataka.StartDate = "18/06/1952" }, "karnataka start date"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"jitter out of range", func(c *Config) { c.Retry.Jitter = 2 }, "jitter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"batch-size":   3,
		"workers":      2,
		"min-interval": 2 * time.Second,
		"dry-run":      true,
		"log-level":    "error",
		"unknown":      "ignored",
	})

	assert.Equal(t, 3, cfg.Harvest.BatchSize)
	assert.Equal(t, 2, cfg.Harvest.Workers)
	assert.Equal(t, 2*time.Second, cfg.Harvest.MinInterval)
	assert.True(t, cfg.Archive.DryRun)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("harvest:\n  batch_size: 7\n  workers: 3\n"), 0644))
	t.Setenv("LEGMIRROR_WORKERS", "5")

	cfg, err := Load(path, map[string]interface{}{"workers": 6})
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Harvest.BatchSize, "file overrides default")
	assert.Equal(t, 6, cfg.Harvest.Workers, "flag overrides env and file")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Harvest.MinInterval = 1500 * time.Millisecond
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var loaded Config
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, cfg.Harvest, loaded.Harvest)
}
