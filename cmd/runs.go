package main

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cwbudde/cltoolkit/internal/format"
	"github.com/cwbudde/cltoolkit/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	showTrace     bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage recorded kernel runs",
	Long: `Inspect and clean the run records written by the run command. Each record
keeps the kernel, device, arguments and output buffers of one dispatch.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old runs",
	Long: `Delete runs based on a retention policy. Keep the newest N runs,
delete runs older than N days, or both.`,
	Args: cobra.NoArgs,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	showRunCmd.Flags().BoolVar(&showTrace, "trace", false, "Also print the command trace")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openRunStore() (*store.FSStore, error) {
	s, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}
	return s, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runStore, err := openRunStore()
	if err != nil {
		return err
	}
	infos, err := runStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	w := stdout(cmd)
	if len(infos) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	var data [][]string
	for _, info := range infos {
		size := "unknown"
		if n, err := runStore.RunSize(info.ID); err == nil {
			size = format.Bytes(uint64(n))
		}
		status := "ok"
		if info.Failed {
			status = "failed"
		}
		data = append(data, []string{
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Kernel,
			info.Device,
			fmt.Sprint(info.Threads),
			info.Elapsed.Round(time.Microsecond).String(),
			status,
			size,
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "TIMESTAMP", "KERNEL", "DEVICE", "THREADS", "ELAPSED", "STATUS", "SIZE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\nTotal runs: %d\n", len(infos))
	return nil
}

// findRun resolves a full ID or a unique ID prefix.
func findRun(runStore *store.FSStore, id string) (string, error) {
	infos, err := runStore.ListRecords()
	if err != nil {
		return "", err
	}
	var match string
	for _, info := range infos {
		if info.ID == id {
			return id, nil
		}
		if len(id) >= 4 && len(info.ID) >= len(id) && info.ID[:len(id)] == id {
			if match != "" {
				return "", fmt.Errorf("run id %q is ambiguous", id)
			}
			match = info.ID
		}
	}
	if match == "" {
		return "", &store.NotFoundError{ID: id}
	}
	return match, nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	runStore, err := openRunStore()
	if err != nil {
		return err
	}
	id, err := findRun(runStore, args[0])
	if err != nil {
		return err
	}
	rec, err := runStore.LoadRecord(id)
	if err != nil {
		return err
	}

	w := stdout(cmd)
	fmt.Fprintf(w, "Run:       %s\n", rec.ID)
	fmt.Fprintf(w, "Kernel:    %s (%s)\n", rec.Kernel, rec.Source)
	fmt.Fprintf(w, "Device:    %s on %s [%s]\n", rec.Device, rec.Platform, rec.Driver)
	fmt.Fprintf(w, "Threads:   %d\n", rec.Threads)
	fmt.Fprintf(w, "Elapsed:   %s\n", rec.Elapsed)
	fmt.Fprintf(w, "Timestamp: %s\n", rec.Timestamp.Format(time.RFC3339))
	for i, a := range rec.Args {
		fmt.Fprintf(w, "Arg %d:     %s\n", i, a)
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", rec.Error)
	}
	for _, o := range rec.Outputs {
		text, _ := formatOutput(o.Data, "hex")
		fmt.Fprintf(w, "Output %d:  %s\n", o.Index, text)
	}

	if !showTrace {
		return nil
	}
	tr, err := store.NewTraceReader(runStore.BaseDir(), id)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(w, "\nNo trace recorded.")
		return nil
	}
	if err != nil {
		return err
	}
	defer tr.Close()
	entries, err := tr.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	fmt.Fprintln(w)
	for _, e := range entries {
		line := fmt.Sprintf("%3d  %-8s %10s", e.Seq, e.Op, e.Duration)
		switch e.Op {
		case "execute":
			line += fmt.Sprintf("  %s x%d", e.Kernel, e.Threads)
		default:
			line += fmt.Sprintf("  %s", format.Bytes(uint64(e.Bytes)))
		}
		if e.Error != "" {
			line += "  error: " + e.Error
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runStore, err := openRunStore()
	if err != nil {
		return err
	}
	infos, err := runStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	w := stdout(cmd)
	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(w, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(w, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(w, "  - %s (%s, %s)\n", shortID(info.ID), info.Kernel, info.Timestamp.Format("2006-01-02 15:04:05"))
	}

	if !forceClean {
		fmt.Fprint(w, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := runStore.DeleteRecord(info.ID); err != nil {
			slog.Error("Failed to delete run", "run", info.ID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted run", "run", info.ID)
		deleted++
	}

	fmt.Fprintf(w, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion returns the runs older than olderThanDays plus the
// oldest runs beyond the newest keepLast, oldest first. Zero disables a rule.
func selectRunsForDeletion(infos []store.RecordInfo, keepLast, olderThanDays int, now time.Time) []store.RecordInfo {
	sorted := slices.Clone(infos)
	slices.SortStableFunc(sorted, func(a, b store.RecordInfo) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var toDelete []store.RecordInfo
	for i, info := range sorted {
		if i < excess || (olderThanDays > 0 && info.Timestamp.Before(cutoff)) {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}
