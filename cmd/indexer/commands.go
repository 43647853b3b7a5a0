package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"campusconnect/api/internal/search"
)

var (
	waitForSync  bool
	confirmClear bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the index and apply its settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		if err := engine.Initialize(ctx); err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Index %q configured on %s\n", cfg.MeiliIndex, engine.Host())
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push every public note into the index",
	Long: `Read all public notes from the database and upsert them in one batch.

Documents for notes that no longer exist are not removed; run "clear"
first for a clean rebuild.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()
		notes, closeDB, err := openNotes(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := engine.Initialize(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		result, err := search.NewSyncer(engine, notes, notes, nil, cfg.SyncPageSize).SyncAll(ctx)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Read %d notes, enqueued %d\n", result.Total, result.Synced)
		if result.TaskUID == nil {
			return nil
		}
		fmt.Fprintf(out, "Task: %d\n", *result.TaskUID)
		if !waitForSync {
			return nil
		}
		status, err := waitForTask(ctx, engine, *result.TaskUID, time.Second)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Task %d %s\n", status.UID, status.Status)
		if status.Error != "" {
			return fmt.Errorf("indexing failed: %s", status.Error)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show document counts for the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		stats, err := engine.Stats(ctx)
		if err != nil {
			return err
		}
		printStats(cmd, stats)
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:   "task <uid>",
	Short: "Show the status of an indexing task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := parseTaskUID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		status, err := engine.Task(ctx, uid)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %d (%s) on %s: %s\n", status.UID, status.Type, status.IndexUID, status.Status)
		if status.Error != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", status.Error)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete and recreate the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmClear {
			return fmt.Errorf("refusing to clear index %q without --yes", cfg.MeiliIndex)
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		if err := engine.ClearIndex(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Index %q cleared; run \"indexer sync\" to repopulate\n", cfg.MeiliIndex)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&waitForSync, "wait", false, "wait for the indexing task to finish")
	clearCmd.Flags().BoolVar(&confirmClear, "yes", false, "confirm deleting every document")
	rootCmd.AddCommand(setupCmd, syncCmd, statsCmd, taskCmd, clearCmd)
}

func parseTaskUID(value string) (int64, error) {
	uid, err := strconv.ParseInt(value, 10, 64)
	if err != nil || uid < 0 {
		return 0, fmt.Errorf("task uid must be a non-negative integer, got %q", value)
	}
	return uid, nil
}

type taskPoller interface {
	Task(ctx context.Context, uid int64) (search.TaskStatus, error)
}

// waitForTask polls until the task leaves the enqueued and processing
// states or ctx expires.
func waitForTask(ctx context.Context, poller taskPoller, uid int64, every time.Duration) (search.TaskStatus, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		status, err := poller.Task(ctx, uid)
		if err != nil {
			return search.TaskStatus{}, err
		}
		switch status.Status {
		case "enqueued", "processing":
		default:
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, fmt.Errorf("task %d still %s: %w", uid, status.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printStats(cmd *cobra.Command, stats search.IndexStats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Documents:  %d\n", stats.NumberOfDocuments)
	fmt.Fprintf(out, "Indexing:   %t\n", stats.IsIndexing)

	fields := make([]string, 0, len(stats.FieldDistribution))
	for field := range stats.FieldDistribution {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(out, "  %-14s %d\n", field, stats.FieldDistribution[field])
	}
}
