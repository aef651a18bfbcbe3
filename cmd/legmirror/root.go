package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"legmirror/pkg/config"
	"legmirror/pkg/logger"
	"legmirror/pkg/ui"
)

var (
	// Version information, set with -ldflags at build time
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "legmirror",
	Short: "Mirror Indian legislature debates to the Internet Archive",
	Long: `legmirror walks the debate archives of Indian legislatures and uploads every
document it finds to the Internet Archive.

Progress is checkpointed per source, so an interrupted run resumes where it
stopped and a finished run can be repeated to pick up new sittings without
uploading anything twice.

Sources:
  rajyasabha   Rajya Sabha debates digital library
  karnataka    Karnataka Legislative Assembly debates
  telangana    Telangana Legislature proceedings`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version
		if noColor {
			ui.SetColor(false)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default .legmirror.yaml or ~/.config/legmirror/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress the progress display")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print one line per finished unit")

	rootCmd.SetVersionTemplate(`legmirror {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration with the global flags merged on top.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return config.Load(configFile, flags)
}

// setupLogger initializes the global logger from cfg.
func setupLogger(cfg *config.Config) (logger.Logger, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.GetLogger(), nil
}
