package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"legmirror/pkg/auth"
	"legmirror/pkg/config"
	"legmirror/pkg/ui"
)

const defaultConfigName = ".legmirror.yaml"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, inspect and check configuration files",
	Long: `Settings are merged from, highest priority first: command line flags,
LEGMIRROR_* environment variables, a .env file, the YAML config file and
built-in defaults.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented example config",
	Long:  "Write a commented example to " + defaultConfigName + ", or to the --config path. An existing file is never overwritten.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = defaultConfigName
		}
		if err := writeExampleConfig(path); err != nil {
			return err
		}
		ui.PrintSuccess("Wrote " + path)
		fmt.Println("\nNext: store keys with 'legmirror auth login', check with 'legmirror config validate',")
		fmt.Println("then start with 'legmirror run <source>'.")
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with keys masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		display := maskedConfig(cfg)
		data, err := yaml.Marshal(&display)
		if err != nil {
			return fmt.Errorf("format configuration: %w", err)
		}

		ui.PrintHighlight("Effective configuration")
		fmt.Printf("\n%s\n", data)

		file := "(none found)"
		if path := configPath(); path != "" {
			file = path
		}
		ui.PrintInfo("Config file", file)
		ui.PrintInfo("Environment prefix", config.EnvPrefix)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if path == "" {
			return errors.New("no configuration file found, pass one with --config")
		}
		ui.PrintInfo("Validating", path)

		cfg, err := config.Load(path, nil)
		if err != nil {
			return err
		}

		warnings, problems := checkConfig(cfg)
		for _, w := range warnings {
			ui.PrintWarning("warning", w)
		}
		if len(problems) > 0 {
			for _, p := range problems {
				ui.PrintError("error", p)
			}
			return fmt.Errorf("%d configuration problem(s)", len(problems))
		}

		ui.PrintSuccess("Configuration is valid")
		fmt.Printf("  staging: %s\n", cfg.Harvest.StagingDir)
		for _, line := range configSummary(cfg) {
			fmt.Printf("  %s\n", line)
		}
		fmt.Printf("  log level: %s\n", cfg.Logging.Level)
		return nil
	},
}

func init() {
	configCmd.AddCommand(initCmd, showCmd, validateCmd)
	rootCmd.AddCommand(configCmd)
}

const exampleConfig = `# legmirror configuration file
#
# Every option can also be set with an environment variable prefixed with
# LEGMIRROR_, for example LEGMIRROR_BATCH_SIZE or LEGMIRROR_IA_ACCESS_KEY.

# Internet Archive
archive:
  # S3 keys from https://archive.org/account/s3.php
  # Prefer 'legmirror auth login' over storing them here
  access_key: ""
  secret_key: ""

  # Collection for items whose metadata names none
  collection: "opensource"

  # Ask archive.org to derive OCR text and thumbnails
  queue_derive: true

  # File uploads per minute, 0 for no cap
  uploads_per_minute: 30

  # Log uploads instead of performing them
  dry_run: false

# Harvest loop
harvest:
  # Checkpoints live under <data_dir>/checkpoints
  # Default: the platform data directory
  data_dir: ""

  # Downloaded files wait here until uploaded
  staging_dir: "./raw"

  # Units between checkpoint commits
  batch_size: 10

  # Units processed in parallel
  # Range: 1-16
  workers: 1

  # Minimum gap between calls to a source, 0 for the source default
  min_interval: 0s

  # Deadline for a single source or sink call
  call_timeout: 60s

  # Stop after this many processed units, 0 for no limit
  max_units: 0

  # Stop when the staging directory grows past this many bytes, 0 for no limit
  disk_ceiling: 10737418240

  delete_after_upload: true

  # Do not retry units that failed in earlier runs
  skip_failed: false

  # Record a unit the source reports as missing instead of failing it
  skip_not_found: true

  # Import items already in the archive before harvesting
  seed_from_sink: false

# Retry policy around every source and sink call
retry:
  max_attempts: 3
  base_delay: 2s
  max_delay: 60s
  multiplier: 2.0
  jitter: 0.1

sources:
  rajyasabha:
    base_url: "https://rsdebate.nic.in"
    start_id: 1
    end_id: 30000000
  karnataka:
    base_url: "http://103.138.196.55:9200"
    start_date: "1952-06-18"
    # Empty means today
    end_date: ""
  telangana:
    base_url: "https://legislature.telangana.gov.in"
    min_year: 2014

notifications:
  enabled: false
  on_complete: true
  on_error: true

logging:
  # debug, info, warn, error
  level: "info"
  # Optional log file
  file: ""
  json: false
`

// configPath is --config, else the first config file found in the usual
// places.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.FindConfigFile()
}

func writeExampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, remove it first", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(exampleConfig), 0600)
}

// maskedConfig returns a copy of cfg safe to print.
func maskedConfig(cfg *config.Config) config.Config {
	display := *cfg
	masked := auth.SanitizeAccount(&auth.Account{
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
	})
	if cfg.Archive.AccessKey != "" {
		display.Archive.AccessKey = masked.AccessKey
	}
	if cfg.Archive.SecretKey != "" {
		display.Archive.SecretKey = masked.SecretKey
	}
	return display
}

// checkConfig reports settings that will not work (problems) and settings
// that probably are not what the user wants (warnings). It creates the
// staging and log directories as a side effect.
func checkConfig(cfg *config.Config) (warnings, problems []string) {
	if cfg.Archive.AccessKey == "" || cfg.Archive.SecretKey == "" {
		warnings = append(warnings, "archive.org keys not in the config, they must come from 'legmirror auth login' or the environment")
	}
	if cfg.Harvest.DiskCeiling > 0 && cfg.Harvest.DiskCeiling < 100<<20 {
		warnings = append(warnings, "disk_ceiling below 100 MB will stop most runs after a few units")
	}

	if err := os.MkdirAll(cfg.Harvest.StagingDir, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create staging directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	return warnings, problems
}
