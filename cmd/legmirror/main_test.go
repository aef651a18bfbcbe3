package main

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"legmirror/pkg/auth"
	"legmirror/pkg/config"
	"legmirror/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Harvest.DataDir = filepath.Join(dir, "data")
	cfg.Harvest.StagingDir = filepath.Join(dir, "raw")
	cfg.Archive.DryRun = true
	return cfg
}

func fileManager(t *testing.T) *auth.Manager {
	t.Helper()
	t.Setenv(auth.PassphraseEnv, "cmd-test-passphrase")
	t.Setenv(auth.EnvAccessKey, "")
	t.Setenv(auth.EnvSecretKey, "")
	store, err := auth.NewEncryptedFileStore(filepath.Join(t.TempDir(), "credentials.enc"))
	require.NoError(t, err)
	return auth.NewManagerWithStores(store, auth.NewEnvironmentStore())
}

func TestIsKnownCommand(t *testing.T) {
	for _, name := range []string{"run", "status", "reset", "sources", "auth", "config"} {
		assert.True(t, isKnownCommand(name), name)
	}
	assert.False(t, isKnownCommand("rajyasabha"))
}

func TestRunFlagsOnlyChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().IntVar(&workers, "workers", 0, "")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "")
	cmd.Flags().DurationVar(&minInterval, "min-interval", 0, "")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--workers", "4", "--min-interval", "2s"}))

	flags := runFlags(cmd)
	assert.Equal(t, map[string]interface{}{
		"workers":      4,
		"min-interval": 2 * time.Second,
	}, flags)
}

func TestBuildPipeline(t *testing.T) {
	cfg := testConfig(t)
	log := logger.NewTestLogger()

	p, err := buildPipeline(cfg, "rajyasabha", log, nil, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "rajyasabha", p.entry.Name)
	assert.Equal(t, filepath.Join(cfg.Harvest.StagingDir, "rajyasabha"), p.staging.Dir())
	assert.Equal(t,
		filepath.Join(cfg.Harvest.DataDir, "checkpoints", "rajyasabha.checkpoint.json"),
		p.store.Path())
	assert.False(t, p.store.Exists(), "nothing is written before a run")

	_, err = buildPipeline(cfg, "lok-sabha", log, nil, time.Now())
	assert.Error(t, err)
}

func TestResolveCredentials(t *testing.T) {
	log := logger.NewNopLogger()

	t.Run("config keys win", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Archive.AccessKey, cfg.Archive.SecretKey = "cfg-a", "cfg-s"
		require.NoError(t, resolveCredentials(cfg, fileManager(t), "", log))
		assert.Equal(t, "cfg-a", cfg.Archive.AccessKey)
	})

	t.Run("stored default profile", func(t *testing.T) {
		cfg := testConfig(t)
		m := fileManager(t)
		require.NoError(t, m.Store(&auth.Account{Name: auth.DefaultProfile, AccessKey: "def-a", SecretKey: "def-s"}))

		require.NoError(t, resolveCredentials(cfg, m, "", log))
		assert.Equal(t, "def-a", cfg.Archive.AccessKey)
		assert.Equal(t, "def-s", cfg.Archive.SecretKey)
	})

	t.Run("named profile overrides config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Archive.AccessKey, cfg.Archive.SecretKey = "cfg-a", "cfg-s"
		m := fileManager(t)
		require.NoError(t, m.Store(&auth.Account{Name: "bot2", AccessKey: "bot-a", SecretKey: "bot-s"}))

		require.NoError(t, resolveCredentials(cfg, m, "bot2", log))
		assert.Equal(t, "bot-a", cfg.Archive.AccessKey)
	})

	t.Run("dry run tolerates missing keys", func(t *testing.T) {
		cfg := testConfig(t)
		assert.NoError(t, resolveCredentials(cfg, fileManager(t), "", log))
		assert.Empty(t, cfg.Archive.AccessKey)
	})

	t.Run("real run needs keys", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Archive.DryRun = false
		err := resolveCredentials(cfg, fileManager(t), "", log)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrCredentialsNotFound))
	})
}

func TestMaskedConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Archive.AccessKey = "AKIAEXAMPLE1234"
	cfg.Archive.SecretKey = "short"

	display := maskedConfig(cfg)
	assert.Equal(t, "AKIA...1234", display.Archive.AccessKey)
	assert.Equal(t, "********", display.Archive.SecretKey)
	assert.Equal(t, "AKIAEXAMPLE1234", cfg.Archive.AccessKey, "input config untouched")
}
