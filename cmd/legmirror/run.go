package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"legmirror/pkg/auth"
	"legmirror/pkg/config"
	"legmirror/pkg/harvest"
	"legmirror/pkg/logger"
	"legmirror/pkg/sources"
	"legmirror/pkg/ui"
	"legmirror/pkg/ui/tui"
)

var (
	// Run command flags
	batchSize   int
	workers     int
	maxUnits    int
	minInterval time.Duration
	stagingDir  string
	dataDir     string
	skipFailed  bool
	seed        bool
	dryRun      bool
	accountName string
	useTUI      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Harvest a source into the Internet Archive",
	Long: `Harvest every pending unit of a source and upload what it finds.

Units already recorded as uploaded are skipped, so running the same command
again continues where the last run stopped. Ctrl-C stops after the batch in
flight has been checkpointed.

archive.org keys are taken from the config file, the LEGMIRROR_IA_ACCESS_KEY
and LEGMIRROR_IA_SECRET_KEY variables, or the credential store
('legmirror auth login'), in that order.`,
	Example: `  # Harvest Rajya Sabha debates
  legmirror run rajyasabha

  # The source name alone works too
  legmirror karnataka

  # Try a few units without uploading
  legmirror run telangana --dry-run --max-units 5

  # Rebuild the checkpoint from what is already archived, then continue
  legmirror run rajyasabha --seed

  # Watch the run in a full-screen dashboard
  legmirror run karnataka --tui`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: sources.Names(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	for _, fs := range []*cobra.Command{runCmd, rootCmd} {
		fs.Flags().IntVar(&batchSize, "batch-size", 0, "units between checkpoint commits")
		fs.Flags().IntVar(&workers, "workers", 0, "units processed in parallel")
		fs.Flags().IntVar(&maxUnits, "max-units", 0, "stop after this many processed units")
		fs.Flags().DurationVar(&minInterval, "min-interval", 0, "minimum gap between calls to the source")
		fs.Flags().StringVar(&stagingDir, "staging-dir", "", "directory for downloaded files awaiting upload")
		fs.Flags().StringVar(&dataDir, "data-dir", "", "directory holding checkpoints")
		fs.Flags().BoolVar(&skipFailed, "skip-failed", false, "do not retry units that failed in earlier runs")
		fs.Flags().BoolVar(&seed, "seed", false, "import items already in the archive before harvesting")
		fs.Flags().BoolVar(&dryRun, "dry-run", false, "log uploads instead of performing them")
		fs.Flags().StringVarP(&accountName, "account", "a", "", "stored archive.org key profile to use")
		fs.Flags().BoolVar(&useTUI, "tui", false, "show a full-screen dashboard")
	}

	// A bare source name runs it.
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && !isKnownCommand(args[0]) {
			if _, ok := sources.Lookup(args[0]); ok {
				return runHarvest(cmd, args[0])
			}
			return fmt.Errorf("unknown source or command %q", args[0])
		}
		return cmd.Help()
	}
}

func isKnownCommand(arg string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == arg || cmd.HasAlias(arg) {
			return true
		}
	}
	return false
}

// runFlags collects the flags the user actually set.
func runFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := cmd.Flags().Changed
	if set("batch-size") {
		flags["batch-size"] = batchSize
	}
	if set("workers") {
		flags["workers"] = workers
	}
	if set("max-units") {
		flags["max-units"] = maxUnits
	}
	if set("min-interval") {
		flags["min-interval"] = minInterval
	}
	if set("staging-dir") {
		flags["staging-dir"] = stagingDir
	}
	if set("data-dir") {
		flags["data-dir"] = dataDir
	}
	if set("skip-failed") {
		flags["skip-failed"] = skipFailed
	}
	if set("seed") {
		flags["seed"] = seed
	}
	if set("dry-run") {
		flags["dry-run"] = dryRun
	}
	return flags
}

func runHarvest(cmd *cobra.Command, name string) error {
	entry, ok := sources.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown source %q, known sources: %s", name, strings.Join(sources.Names(), ", "))
	}

	cfg, err := loadConfig(runFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var (
		dashboard *tui.TUI
		log       logger.Logger
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI {
		dashboard = tui.New(tui.Options{
			Source:           entry.Name,
			MaxUnits:         cfg.Harvest.MaxUnits,
			UploadsPerMinute: cfg.Archive.UploadsPerMinute,
			MinInterval:      sources.MinInterval(entry, cfg),
			Cancel:           stop,
		})
		logCfg := cfg.Logging
		logCfg.JSON = true
		log, err = logger.NewWithWriter(&logCfg, dashboard.LogWriter())
		if err == nil {
			logger.SetLogger(log)
		}
	} else {
		log, err = setupLogger(cfg)
	}
	if err != nil {
		return err
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := resolveCredentials(cfg, manager, accountName, log); err != nil {
		return err
	}

	var observer harvest.Observer
	var display *ui.ProgressDisplay
	switch {
	case dashboard != nil:
		observer = dashboard
	case !quiet:
		display = ui.NewProgressDisplay(os.Stdout, entry.Name, cfg.Harvest.MaxUnits, verbose)
		observer = display
	}

	p, err := buildPipeline(cfg, entry.Name, log, observer, time.Now())
	if err != nil {
		return err
	}

	notifier := ui.NewNotifier(cfg.Notifications)

	if dashboard != nil {
		return runWithDashboard(ctx, stop, p, dashboard, notifier)
	}

	if !quiet {
		ui.PrintLogo()
		ui.PrintInfo("Source", entry.Description)
		ui.PrintInfo("Checkpoint", p.store.Path())
		if verbose {
			for _, line := range configSummary(cfg) {
				ui.PrintInfo("Settings", line)
			}
		}
		if cfg.Archive.DryRun {
			ui.PrintWarning("Dry run, nothing will be uploaded")
		}
		fmt.Println()
	}

	sum, err := p.harvester.Run(ctx)
	if display != nil && err == nil {
		display.Complete(sum)
	}
	notifier.RunFinished(sum, err)
	return err
}

// runWithDashboard runs the harvest in the background while the dashboard
// owns the terminal.
func runWithDashboard(ctx context.Context, stop context.CancelFunc, p *pipeline, dashboard *tui.TUI, notifier *ui.Notifier) error {
	type result struct {
		sum *harvest.Summary
		err error
	}
	done := make(chan result, 1)
	go func() {
		sum, err := p.harvester.Run(ctx)
		dashboard.Finish(sum, err)
		done <- result{sum, err}
	}()

	if _, err := dashboard.Start(); err != nil {
		stop()
		<-done
		return fmt.Errorf("dashboard failed: %w", err)
	}

	// Leaving the dashboard early interrupts the run; wait for its last
	// batch to be checkpointed.
	stop()
	res := <-done

	if res.err == nil {
		ui.NewProgressDisplay(os.Stdout, p.entry.Name, 0, true).Complete(res.sum)
	}
	notifier.RunFinished(res.sum, res.err)
	return res.err
}

// configSummary renders the settings a run will use.
func configSummary(cfg *config.Config) []string {
	return []string{
		fmt.Sprintf("batch size %d, %d workers", cfg.Harvest.BatchSize, cfg.Harvest.Workers),
		fmt.Sprintf("retry %d attempts, %s..%s backoff", cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay),
		fmt.Sprintf("staging %s, ceiling %s", cfg.Harvest.StagingDir, ui.FormatBytes(cfg.Harvest.DiskCeiling)),
	}
}
