// Package runctl implements the operator CLI: inspecting run logs on disk
// and talking to a running metricd daemon.
package runctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"metricd/internal/runlog"
)

// Config carries the CLI's persistent settings.
type Config struct {
	ServerURL string
	RunRoot   string
}

func defaultConfig() *Config {
	cfg := &Config{
		ServerURL: "http://127.0.0.1:8787",
		RunRoot:   "~/.metricd/runs",
	}
	if v := os.Getenv("METRICD_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("METRICD_RUN_ROOT"); v != "" {
		cfg.RunRoot = v
	}
	return cfg
}

// Execute runs the CLI and returns a process exit code.
func Execute(args []string) int {
	root := buildRootCmdWith(defaultConfig())
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// buildRootCmdWith constructs the command tree wired to cfg.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "runctl",
		Short:         "Inspect training runs and manage the metricd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("server", cfg.ServerURL, "Daemon base URL (defaults METRICD_URL)")
	root.PersistentFlags().String("run-root", cfg.RunRoot, "Run log directory (defaults METRICD_RUN_ROOT)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if f := cmd.InheritedFlags().Lookup("server"); f != nil && f.Value.String() != "" {
			cfg.ServerURL = f.Value.String()
		}
		if f := cmd.InheritedFlags().Lookup("run-root"); f != nil && f.Value.String() != "" {
			cfg.RunRoot = f.Value.String()
		}
	}

	runsCmd := &cobra.Command{Use: "runs", Short: "List recorded runs, newest first", Example: "  runctl runs", RunE: func(cmd *cobra.Command, args []string) error {
		return fnListRuns(cmd, cfg)
	}}

	tailCmd := &cobra.Command{Use: "tail <run-id>", Short: "Read a run's metric events from disk", Example: "  runctl tail mnist-1712345678-a1b2c3d4 --offset 0 --max 100\n  runctl tail mnist-1712345678-a1b2c3d4 --follow", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt64("offset")
		maxRecords, _ := cmd.Flags().GetInt("max")
		follow, _ := cmd.Flags().GetBool("follow")
		return fnTailRun(cmd, cfg, args[0], offset, maxRecords, follow)
	}}
	tailCmd.Flags().Int64("offset", 0, "Byte offset to resume from")
	tailCmd.Flags().Int("max", 0, "Maximum records to return (0 = unlimited)")
	tailCmd.Flags().Bool("follow", false, "Keep polling for new records")

	watchCmd := &cobra.Command{Use: "watch <experiment>", Short: "Stream an experiment's live events from the daemon", Example: "  runctl watch mnist", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return fnWatch(cmd, cfg, args[0])
	}}

	expCmd := &cobra.Command{Use: "experiments", Short: "List experiments the daemon is caching", RunE: func(cmd *cobra.Command, args []string) error {
		return fnListExperiments(cmd, cfg)
	}}

	clearCmd := &cobra.Command{Use: "clear", Short: "Drop all cached experiments on the daemon", RunE: func(cmd *cobra.Command, args []string) error {
		return fnClear(cmd, cfg)
	}}

	deleteCmd := &cobra.Command{Use: "delete <experiment>", Short: "Drop one cached experiment on the daemon", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return fnDelete(cmd, cfg, args[0])
	}}

	root.AddCommand(runsCmd, tailCmd, watchCmd, expCmd, clearCmd, deleteCmd)
	return root
}

func fnListRuns(cmd *cobra.Command, cfg *Config) error {
	runs := runlog.ListRuns(cfg.RunRoot)
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.RunID, r.Name, r.ModelType)
	}
	return nil
}

func fnTailRun(cmd *cobra.Command, cfg *Config, runID string, offset int64, maxRecords int, follow bool) error {
	dir, ok := runlog.FindRunDir(cfg.RunRoot, runID)
	if !ok {
		return fmt.Errorf("run %q not found under %s", runID, cfg.RunRoot)
	}
	path := filepath.Join(dir, runlog.MetricsFilename)
	for {
		records, next, err := runlog.ReadChunk(path, offset, maxRecords)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Fprintln(cmd.OutOrStdout(), formatRecord(rec))
		}
		offset = next
		if !follow {
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func formatRecord(rec map[string]any) string {
	b, err := jsonMarshal(rec)
	if err != nil {
		return strconv.Quote(fmt.Sprint(rec))
	}
	return string(b)
}
