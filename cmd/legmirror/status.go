package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"legmirror/pkg/checkpoint"
	"legmirror/pkg/sources"
	"legmirror/pkg/ui"
	"legmirror/pkg/workunit"
)

var (
	// Status and reset flags
	showFailed  bool
	resetFailed bool
	resetAll    bool
	assumeYes   bool
)

var statusCmd = &cobra.Command{
	Use:   "status <source>",
	Short: "Show checkpoint progress for a source",
	Example: `  legmirror status rajyasabha
  legmirror status karnataka --failed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore(args[0])
		if err != nil {
			return err
		}
		entry, _ := sources.Lookup(args[0])
		printStatus(store, entry.Kind, showFailed)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <source> [keys...]",
	Short: "Forget checkpoint records so units are harvested again",
	Long: `Remove records from a source's checkpoint. The next run treats the removed
units as new work. A copy of the checkpoint is kept at <checkpoint>.backup.`,
	Example: `  # Retry a single sitting
  legmirror reset karnataka 2019-07-23

  # Retry every failed unit, permanent failures included
  legmirror reset rajyasabha --failed

  # Start over
  legmirror reset telangana --all`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := args[1:]
		modes := 0
		for _, on := range []bool{len(keys) > 0, resetFailed, resetAll} {
			if on {
				modes++
			}
		}
		if modes != 1 {
			return fmt.Errorf("give unit keys, --failed or --all")
		}

		store, err := loadStore(args[0])
		if err != nil {
			return err
		}
		if !store.Exists() {
			ui.PrintWarning(fmt.Sprintf("No checkpoint for %s", args[0]))
			return nil
		}

		if resetAll && !assumeYes && !newPrompt().yes(fmt.Sprintf("Delete all %d records for %s?", store.Stats().Total, args[0])) {
			fmt.Println("Cancelled")
			return nil
		}

		if err := store.Backup(); err != nil {
			return err
		}

		switch {
		case resetAll:
			if err := store.Delete(); err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Checkpoint for %s deleted", args[0]))
			return nil
		case resetFailed:
			n, err := store.ResetFailed()
			if err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Removed %d failed records", n))
		default:
			n, err := store.Reset(keys...)
			if err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Removed %d of %d records", n, len(keys)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)

	statusCmd.Flags().BoolVar(&showFailed, "failed", false, "list failed units")
	statusCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding checkpoints")

	resetCmd.Flags().BoolVar(&resetFailed, "failed", false, "remove every failed record")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "delete the whole checkpoint")
	resetCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
	resetCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding checkpoints")
}

// loadStore opens and loads the checkpoint of a registered source.
func loadStore(name string) (*checkpoint.Store, error) {
	entry, ok := sources.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown source %q, known sources: %s", name, strings.Join(sources.Names(), ", "))
	}

	flags := map[string]interface{}{}
	if dataDir != "" {
		flags["data-dir"] = dataDir
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, cfg.Harvest.DataDir, entry.Name, log)
	if err != nil {
		return nil, err
	}
	if _, err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func printStatus(store *checkpoint.Store, kind workunit.Kind, listFailed bool) {
	st := store.Stats()

	ui.PrintInfo("Checkpoint", store.Path())
	if !store.Exists() {
		ui.PrintWarning("No checkpoint yet, nothing has been harvested")
		return
	}
	ui.PrintInfo("Units", fmt.Sprintf("%d", st.Total))
	ui.PrintInfo("Uploaded", fmt.Sprintf("%d", st.Uploaded))
	if st.Fetched+st.Transformed > 0 {
		ui.PrintInfo("In progress", fmt.Sprintf("%d fetched, %d transformed", st.Fetched, st.Transformed))
	}
	if st.Failed > 0 {
		ui.PrintInfo("Failed", fmt.Sprintf("%d (%d permanent)", st.Failed, st.Permanent))
	}

	if !listFailed || st.Failed == 0 {
		return
	}

	fmt.Println()
	for _, rec := range failedInUnitOrder(store.Records(), kind) {
		mark := ui.Yellow("↻")
		if rec.Permanent {
			mark = ui.Red("✗")
		}
		fmt.Printf("%s %s %s %s\n", mark, rec.Key,
			ui.Dim(fmt.Sprintf("(%d attempts, %s)", rec.Attempts, rec.Timestamp.Format("2006-01-02 15:04"))),
			rec.Error)
	}
}

// failedInUnitOrder returns the failed records in enumeration order, so
// numeric ids list 2 before 10. Keys that do not parse as kind go last.
func failedInUnitOrder(records []checkpoint.Record, kind workunit.Kind) []checkpoint.Record {
	byKey := map[string]checkpoint.Record{}
	var units []workunit.Unit
	var rest []checkpoint.Record
	for _, rec := range records {
		if rec.Status != checkpoint.StatusFailed {
			continue
		}
		u, err := workunit.Parse(kind, rec.Key)
		if err != nil {
			rest = append(rest, rec)
			continue
		}
		byKey[u.Key()] = rec
		units = append(units, u)
	}

	workunit.Sort(units)
	out := make([]checkpoint.Record, 0, len(units)+len(rest))
	for _, u := range units {
		out = append(out, byKey[u.Key()])
	}
	return append(out, rest...)
}
