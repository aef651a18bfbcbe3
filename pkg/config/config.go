package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the harvester reads.
const EnvPrefix = "LEGMIRROR_"

// Config holds all configuration options for legmirror
type Config struct {
	// Internet Archive endpoints and credentials
	Archive ArchiveConfig `yaml:"archive" json:"archive"`

	// Harvest loop behaviour
	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`

	// Retry policy applied around every source and sink call
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Per-source settings
	Sources SourcesConfig `yaml:"sources" json:"sources"`

	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ArchiveConfig configures the Internet Archive sink
type ArchiveConfig struct {
	AccessKey   string        `yaml:"access_key" json:"access_key"`
	SecretKey   string        `yaml:"secret_key" json:"-"`
	MetadataURL string        `yaml:"metadata_url" json:"metadata_url"`
	UploadURL   string        `yaml:"upload_url" json:"upload_url"`
	SearchURL   string        `yaml:"search_url" json:"search_url"`
	Collection  string        `yaml:"collection" json:"collection"`
	QueueDerive bool          `yaml:"queue_derive" json:"queue_derive"`
	DryRun      bool          `yaml:"dry_run" json:"dry_run"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	// UploadsPerMinute caps file PUTs; zero disables the cap.
	UploadsPerMinute int `yaml:"uploads_per_minute" json:"uploads_per_minute"`
}

// HarvestConfig holds the loop's batching, pacing and stop conditions
type HarvestConfig struct {
	// DataDir holds checkpoints; empty means the platform data directory.
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	StagingDir string `yaml:"staging_dir" json:"staging_dir"`

	BatchSize int `yaml:"batch_size" json:"batch_size"`
	Workers   int `yaml:"workers" json:"workers"`

	// MinInterval of zero falls back to the source's own default.
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout"`

	MaxUnits    int   `yaml:"max_units" json:"max_units"`
	DiskCeiling int64 `yaml:"disk_ceiling" json:"disk_ceiling"`

	DeleteAfterUpload bool `yaml:"delete_after_upload" json:"delete_after_upload"`
	SkipFailed        bool `yaml:"skip_failed" json:"skip_failed"`
	SkipNotFound      bool `yaml:"skip_not_found" json:"skip_not_found"`
	SeedFromSink      bool `yaml:"seed_from_sink" json:"seed_from_sink"`
}

// RetryConfig holds exponential backoff settings
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
	Jitter      float64       `yaml:"jitter" json:"jitter"`
}

// SourcesConfig groups the per-portal settings
type SourcesConfig struct {
	UserAgent  string           `yaml:"user_agent" json:"user_agent"`
	RajyaSabha RajyaSabhaConfig `yaml:"rajyasabha" json:"rajyasabha"`
	Karnataka  KarnatakaConfig  `yaml:"karnataka" json:"karnataka"`
	Telangana  TelanganaConfig  `yaml:"telangana" json:"telangana"`
}

type RajyaSabhaConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	StartID int64  `yaml:"start_id" json:"start_id"`
	EndID   int64  `yaml:"end_id" json:"end_id"`
}

type KarnatakaConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	StartDate string `yaml:"start_date" json:"start_date"`
	// EndDate empty means the run's start day.
	EndDate string `yaml:"end_date" json:"end_date"`
}

type TelanganaConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	MinYear int    `yaml:"min_year" json:"min_year"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
	// JSON switches console output from the colored writer to raw zerolog lines.
	JSON bool `yaml:"json" json:"json"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			MetadataURL: "https://archive.org/metadata",
			UploadURL:   "https://s3.us.archive.org",
			SearchURL:   "https://archive.org/advancedsearch.php",
			Collection:  "opensource",
			QueueDerive: true,
			UserAgent:   "legmirror/1.0 (+https://archive.org)",
			Timeout:     10 * time.Minute,

			UploadsPerMinute: 30,
		},
		Harvest: HarvestConfig{
			StagingDir:        "./raw",
			BatchSize:         10,
			Workers:           1,
			CallTimeout:       60 * time.Second,
			DiskCeiling:       10 << 30,
			DeleteAfterUpload: true,
			SkipNotFound:      true,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    60 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.1,
		},
		Sources: SourcesConfig{
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			RajyaSabha: RajyaSabhaConfig{
				BaseURL: "https://rsdebate.nic.in",
				StartID: 1,
				EndID:   30000000,
			},
			Karnataka: KarnatakaConfig{
				BaseURL:   "http://103.138.196.55:9200",
				StartDate: "1952-06-18",
			},
			Telangana: TelanganaConfig{
				BaseURL: "https://legislature.telangana.gov.in",
				MinYear: 2014,
			},
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from LEGMIRROR_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	int64v := func(name string, dst *int64) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = strings.ToLower(v) == "true" || v == "1"
		}
	}

	str("IA_ACCESS_KEY", &c.Archive.AccessKey)
	str("IA_SECRET_KEY", &c.Archive.SecretKey)
	str("IA_COLLECTION", &c.Archive.Collection)
	boolean("DRY_RUN", &c.Archive.DryRun)
	integer("IA_UPLOADS_PER_MINUTE", &c.Archive.UploadsPerMinute)

	str("DATA_DIR", &c.Harvest.DataDir)
	str("STAGING_DIR", &c.Harvest.StagingDir)
	integer("BATCH_SIZE", &c.Harvest.BatchSize)
	integer("WORKERS", &c.Harvest.Workers)
	duration("MIN_INTERVAL", &c.Harvest.MinInterval)
	duration("CALL_TIMEOUT", &c.Harvest.CallTimeout)
	integer("MAX_UNITS", &c.Harvest.MaxUnits)
	int64v("DISK_CEILING", &c.Harvest.DiskCeiling)
	boolean("DELETE_AFTER_UPLOAD", &c.Harvest.DeleteAfterUpload)
	boolean("SKIP_FAILED", &c.Harvest.SkipFailed)
	boolean("SKIP_NOT_FOUND", &c.Harvest.SkipNotFound)
	boolean("SEED_FROM_SINK", &c.Harvest.SeedFromSink)

	integer("RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts)

	boolean("NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile returns the first config file found in the usual locations,
// or "" when there is none.
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".legmirror.yaml",
		".legmirror.yml",
		filepath.Join(home, ".config", "legmirror", "config.yaml"),
		filepath.Join(home, ".config", "legmirror", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Archive credentials are
// checked at run time since they may come from the credential store.
func (c *Config) Validate() error {
	var errs []error

	if c.Harvest.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.Harvest.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Harvest.Workers > 16 {
		errs = append(errs, errors.New("workers should not exceed 16"))
	}
	if c.Harvest.MinInterval < 0 {
		errs = append(errs, errors.New("min interval cannot be negative"))
	}
	if c.Harvest.CallTimeout <= 0 {
		errs = append(errs, errors.New("call timeout must be positive"))
	}
	if c.Harvest.MaxUnits < 0 {
		errs = append(errs, errors.New("max units cannot be negative"))
	}
	if c.Harvest.DiskCeiling < 0 {
		errs = append(errs, errors.New("disk ceiling cannot be negative"))
	}
	if c.Harvest.StagingDir == "" {
		errs = append(errs, errors.New("staging directory is required"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("retry jitter must be between 0 and 1"))
	}

	if c.Archive.UploadsPerMinute < 0 {
		errs = append(errs, errors.New("uploads per minute cannot be negative"))
	}
	if c.Archive.MetadataURL == "" || c.Archive.UploadURL == "" {
		errs = append(errs, errors.New("archive metadata and upload URLs are required"))
	}

	rs := c.Sources.RajyaSabha
	if rs.StartID <= 0 || rs.EndID < rs.StartID {
		errs = append(errs, fmt.Errorf("rajyasabha id range %d..%d is invalid", rs.StartID, rs.EndID))
	}
	if _, err := time.Parse(time.DateOnly, c.Sources.Karnataka.StartDate); err != nil {
		errs = append(errs, fmt.Errorf("karnataka start date: %w", err))
	}
	if end := c.Sources.Karnataka.EndDate; end != "" {
		if _, err := time.Parse(time.DateOnly, end); err != nil {
			errs = append(errs, fmt.Errorf("karnataka end date: %w", err))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges values set on the command line. Only keys
// present in flags are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["batch-size"].(int); ok && v > 0 {
		c.Harvest.BatchSize = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Harvest.Workers = v
	}
	if v, ok := flags["max-units"].(int); ok && v >= 0 {
		c.Harvest.MaxUnits = v
	}
	if v, ok := flags["min-interval"].(time.Duration); ok && v > 0 {
		c.Harvest.MinInterval = v
	}
	if v, ok := flags["staging-dir"].(string); ok && v != "" {
		c.Harvest.StagingDir = v
	}
	if v, ok := flags["data-dir"].(string); ok && v != "" {
		c.Harvest.DataDir = v
	}
	if v, ok := flags["skip-failed"].(bool); ok {
		c.Harvest.SkipFailed = v
	}
	if v, ok := flags["seed"].(bool); ok {
		c.Harvest.SeedFromSink = v
	}
	if v, ok := flags["dry-run"].(bool); ok {
		c.Archive.DryRun = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".legmirror.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
