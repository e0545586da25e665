package main

import (
	"fmt"
	"time"

	"gdrive-downloader/internal/config"
	"gdrive-downloader/internal/history"

	"github.com/docker/go-units"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyFileID string
	historyRunID  string
	historySince  string
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show previously downloaded files",
	Long: `Lists files recorded in the history database, newest first. The history is
informational only; it never changes what a download step fetches.`,
	RunE: runHistoryCommand,
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent download runs",
	RunE:  runHistoryRunsCommand,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals over the history database",
	RunE:  runHistoryStatsCommand,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyRunsCmd)
	historyCmd.AddCommand(historyStatsCmd)

	historyCmd.PersistentFlags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
	historyCmd.PersistentFlags().StringVar(&historyFormat, "format", "table", "Output format: table or json")
	historyCmd.Flags().StringVar(&historyFileID, "file-id", "", "Only downloads of this Drive file")
	historyCmd.Flags().StringVar(&historyRunID, "run-id", "", "Only downloads from this run")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only downloads after this date (2006-01-02, 7d, yesterday, ...)")
}

func openHistoryStore() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	path, err := config.GetHistoryDBPath(cfg.History.DBPath)
	if err != nil {
		return nil, err
	}

	return history.NewStore(path)
}

func runHistoryCommand(cmd *cobra.Command, args []string) error {
	filter := history.Filter{RunID: historyRunID, FileID: historyFileID, Limit: historyLimit}

	if historySince != "" {
		since, err := parseDateTime(historySince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}

		filter.Since = since
	}

	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	downloads, err := store.ListDownloads(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if historyFormat == "json" {
		return printJSON(downloads)
	}

	fmt.Print(downloadsTable(downloads))

	return nil
}

func downloadsTable(downloads []history.Download) string {
	if len(downloads) == 0 {
		return "No downloads recorded.\n"
	}

	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("DOWNLOADED", "NAME", "FILE ID", "SIZE", "PATH")

	for _, d := range downloads {
		name := d.Name
		if d.Exported {
			name += " (exported)"
		}

		table.AddRow(d.DownloadedAt.Local().Format(time.DateTime), name, d.FileID,
			units.HumanSize(float64(d.SizeBytes)), d.LocalPath)
	}

	return table.String() + "\n"
}

func runHistoryRunsCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if historyFormat == "json" {
		return printJSON(runs)
	}

	fmt.Print(runsTable(runs))

	return nil
}

func runsTable(runs []history.Run) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}

	table := uitable.New()
	table.MaxColWidth = 50
	table.AddRow("STARTED", "RUN ID", "STATUS", "FILES", "DURATION", "ERROR")

	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}

		table.AddRow(r.StartedAt.Local().Format(time.DateTime), r.ID, r.Status, r.FileCount, duration, r.Error)
	}

	return table.String() + "\n"
}

func runHistoryStatsCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.GetStats(cmd.Context())
	if err != nil {
		return err
	}

	if historyFormat == "json" {
		return printJSON(stats)
	}

	fmt.Printf("Runs:       %d (%d failed)\n", stats.Runs, stats.FailedRuns)
	fmt.Printf("Downloads:  %d\n", stats.Downloads)
	fmt.Printf("Total size: %s\n", units.HumanSize(float64(stats.TotalBytes)))

	if !stats.LastDownloadAt.IsZero() {
		fmt.Printf("Last:       %s\n", stats.LastDownloadAt.Local().Format(time.DateTime))
	}

	return nil
}
