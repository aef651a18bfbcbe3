package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"legmirror/pkg/archive"
	"legmirror/pkg/auth"
	"legmirror/pkg/checkpoint"
	"legmirror/pkg/config"
	"legmirror/pkg/harvest"
	"legmirror/pkg/httpclient"
	"legmirror/pkg/logger"
	"legmirror/pkg/ratelimit"
	"legmirror/pkg/retry"
	"legmirror/pkg/sources"
	"legmirror/pkg/storage"
)

// pipeline is everything one run of one source needs.
type pipeline struct {
	entry     sources.Entry
	harvester *harvest.Harvester
	store     *checkpoint.Store
	staging   *storage.Manager
}

// openStore opens the checkpoint for a registered source under dataDir.
func openStore(cfg *config.Config, dataDir, name string, log logger.Logger) (*checkpoint.Store, error) {
	path, err := checkpoint.PathFor(dataDir, name)
	if err != nil {
		return nil, err
	}
	return checkpoint.Open(path,
		checkpoint.WithLogger(log),
		checkpoint.WithSource(name),
		checkpoint.WithSkipFailed(cfg.Harvest.SkipFailed),
	), nil
}

// buildPipeline wires source, transform, sink and checkpoint for name.
func buildPipeline(cfg *config.Config, name string, log logger.Logger, observer harvest.Observer, now time.Time) (*pipeline, error) {
	entry, ok := sources.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", name)
	}

	client := httpclient.New(httpclient.Options{
		UserAgent: cfg.Sources.UserAgent,
		Timeout:   cfg.Harvest.CallTimeout,
		Logger:    log,
	})
	source, transform, err := sources.Build(entry.Name, cfg, client, log, now)
	if err != nil {
		return nil, err
	}

	// A dry run uploads nothing, so its records must never reach the real
	// checkpoint where they would mark units as archived.
	dataDir := cfg.Harvest.DataDir
	sinkOpts := archive.OptionsFromConfig(cfg.Archive)
	sinkOpts.Logger = log
	if sinkOpts.DryRun {
		dataDir = filepath.Join(cfg.Harvest.StagingDir, "dry-run")
		sinkOpts.DryRunDir = filepath.Join(dataDir, entry.Name)
	}
	sink := archive.New(sinkOpts)

	store, err := openStore(cfg, dataDir, entry.Name, log)
	if err != nil {
		return nil, err
	}

	staging, err := storage.NewManager(filepath.Join(cfg.Harvest.StagingDir, entry.Name))
	if err != nil {
		return nil, err
	}

	h := harvest.New(source, sink, transform, store, harvest.Options{
		BatchSize:         cfg.Harvest.BatchSize,
		Workers:           cfg.Harvest.Workers,
		CallTimeout:       cfg.Harvest.CallTimeout,
		MaxUnits:          cfg.Harvest.MaxUnits,
		DiskCeiling:       cfg.Harvest.DiskCeiling,
		DeleteAfterUpload: cfg.Harvest.DeleteAfterUpload,
		SkipNotFound:      cfg.Harvest.SkipNotFound,
		SeedFromSink:      cfg.Harvest.SeedFromSink && entry.Seedable,
		Retry:             retry.FromSettings(cfg.Retry, log),
		Throttle:          ratelimit.NewThrottle(sources.MinInterval(entry, cfg)),
		Staging:           staging,
		Logger:            log,
		Observer:          observer,
	})

	return &pipeline{entry: entry, harvester: h, store: store, staging: staging}, nil
}

// resolveCredentials fills the archive keys from the credential store when
// the config and environment left them empty. Dry runs need no keys.
func resolveCredentials(cfg *config.Config, manager *auth.Manager, profile string, log logger.Logger) error {
	if cfg.Archive.AccessKey != "" && cfg.Archive.SecretKey != "" && profile == "" {
		return nil
	}

	var (
		account *auth.Account
		err     error
	)
	if profile != "" {
		account, err = manager.Retrieve(profile)
	} else {
		account, err = manager.RetrieveDefault()
	}
	if err != nil {
		if cfg.Archive.DryRun && errors.Is(err, auth.ErrCredentialsNotFound) {
			return nil
		}
		return fmt.Errorf("no archive.org keys found, run 'legmirror auth login': %w", err)
	}

	cfg.Archive.AccessKey = account.AccessKey
	cfg.Archive.SecretKey = account.SecretKey
	log.InfoWithFields("using stored archive.org keys", map[string]interface{}{
		"profile": account.Name,
	})
	return nil
}
