package main

import (
	"fmt"
	"os"
	"time"

	"gdrive-downloader/internal/config"
	"gdrive-downloader/internal/download"
	"gdrive-downloader/pkg/models"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

// downloadFlags holds the download command's flag values. Only flags the user set
// override the configuration.
type downloadFlags struct {
	workspace      string
	folderID       string
	clientSecret   string
	query          string
	modifiedAfter  string
	maxResults     int
	workspaceFiles string
	downloadDir    string
	dryRun         bool
	noHistory      bool
	format         string
}

var dlFlags downloadFlags

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download files matching a Drive query into <workspace>/googledrive",
	Long: `Authorizes against Google Drive, lists the files matching the configured query and
downloads each one into <workspace>/googledrive/. The directory is created when
missing and reused when present; files with the same name are overwritten.

The workspace defaults to $WORKSPACE (set by Jenkins) and then to the current
directory. The step fails on the first file that cannot be downloaded.`,
	Example: `  gdrive-downloader download --folder-id 1AbC... -q "name contains 'release'"
  gdrive-downloader download -w /var/jenkins/workspace/job --modified-after 7d
  gdrive-downloader download --workspace-files export --dry-run`,
	RunE: runDownloadCommand,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	f := downloadCmd.Flags()
	f.StringVarP(&dlFlags.workspace, "workspace", "w", "", "Build workspace (default $WORKSPACE, then the current directory)")
	addQueryFlags(downloadCmd, &dlFlags)
	f.StringVar(&dlFlags.clientSecret, "client-secret", "", "Inline OAuth client secret JSON")
	f.StringVar(&dlFlags.workspaceFiles, "workspace-files", "", "Google Docs/Sheets/Slides handling: fail, skip or export")
	f.StringVar(&dlFlags.downloadDir, "download-dir", "", "Directory under the workspace (default googledrive)")
	f.BoolVar(&dlFlags.dryRun, "dry-run", false, "List files and target paths without downloading")
	f.BoolVar(&dlFlags.noHistory, "no-history", false, "Do not record this run in the history database")
	f.StringVar(&dlFlags.format, "format", "", "Output format: summary or json")
}

// addQueryFlags registers the flags shared by download and list.
func addQueryFlags(cmd *cobra.Command, fl *downloadFlags) {
	f := cmd.Flags()
	f.StringVar(&fl.folderID, "folder-id", "", "Drive folder ID or URL to search in")
	f.StringVarP(&fl.query, "query", "q", "", "Drive search query, e.g. \"name contains 'build'\"")
	f.StringVar(&fl.modifiedAfter, "modified-after", "", "Only files modified after this date (2006-01-02, 7d, 24h, yesterday, ...)")
	f.IntVar(&fl.maxResults, "max-results", 0, "Maximum number of files (0 = unlimited)")
}

// apply merges the flags the user set into cfg.
func (fl *downloadFlags) apply(cfg *models.Config, changed func(name string) bool) {
	if changed("folder-id") {
		cfg.Download.FolderID = fl.folderID
	}

	if changed("client-secret") {
		cfg.Download.ClientSecretJSON = fl.clientSecret
	}

	if changed("query") {
		cfg.Download.Query = fl.query
	}

	if changed("max-results") {
		cfg.Download.MaxResults = fl.maxResults
	}

	if changed("workspace-files") {
		cfg.Download.WorkspaceFiles = fl.workspaceFiles
	}

	if changed("download-dir") {
		cfg.Download.DownloadDir = fl.downloadDir
	}

	if changed("no-history") && fl.noHistory {
		cfg.History.Enabled = false
	}

	if changed("format") {
		cfg.App.OutputFormat = fl.format
	}
}

// modifiedAfterTime parses --modified-after; an empty value means no filter.
func (fl *downloadFlags) modifiedAfterTime() (time.Time, error) {
	if fl.modifiedAfter == "" {
		return time.Time{}, nil
	}

	t, err := parseDateTime(fl.modifiedAfter)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --modified-after: %w", err)
	}

	return t, nil
}

// resolveWorkspace picks the workspace from the flag, then $WORKSPACE, then cwd.
func resolveWorkspace(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if ws := os.Getenv("WORKSPACE"); ws != "" {
		return ws, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("unable to determine workspace: %w", err)
	}

	return wd, nil
}

func runDownloadCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dlFlags.apply(cfg, cmd.Flags().Changed)

	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	workspace, err := resolveWorkspace(dlFlags.workspace)
	if err != nil {
		return err
	}

	modifiedAfter, err := dlFlags.modifiedAfterTime()
	if err != nil {
		return err
	}

	list, err := listOptions(cfg, modifiedAfter)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	service, err := newDriveService(ctx, cfg)
	if err != nil {
		return err
	}

	recorder, closeHistory, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	result, err := download.New(service, recorder, nil).Run(ctx, download.Options{
		Workspace:         workspace,
		DownloadDir:       cfg.Download.DownloadDir,
		List:              list,
		WorkspaceFiles:    cfg.Download.WorkspaceFiles,
		DocExportFormat:   cfg.Download.DocExportFormat,
		SheetExportFormat: cfg.Download.SheetExportFormat,
		SlideExportFormat: cfg.Download.SlideExportFormat,
		PreserveModTime:   cfg.Download.PreserveModTime,
		DryRun:            dlFlags.dryRun,
	})
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	if cfg.App.OutputFormat == "json" {
		return printJSON(result)
	}

	printDownloadSummary(result)

	return nil
}

func printDownloadSummary(result *download.Result) {
	if result.DryRun {
		fmt.Printf("Dry run: %d file(s) would be written to %s\n", len(result.Files)-result.Skipped, result.Dir)

		for _, fr := range result.Files {
			if fr.Skipped {
				continue
			}

			fmt.Printf("  %s -> %s\n", fr.File.Name, fr.LocalPath)
		}
	} else {
		fmt.Printf("Downloaded %d file(s) (%s) to %s\n",
			result.Downloaded, units.HumanSize(float64(result.Bytes)), result.Dir)
	}

	if result.Skipped > 0 {
		fmt.Printf("Skipped %d file(s):\n", result.Skipped)

		for _, fr := range result.Files {
			if fr.Skipped {
				fmt.Printf("  %s (%s)\n", fr.File.Name, fr.SkipReason)
			}
		}
	}
}
