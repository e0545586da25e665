package main

import (
	"fmt"
	"strings"
	"time"

	"gdrive-downloader/internal/config"
	"gdrive-downloader/internal/sources/google/drive"

	"github.com/docker/go-units"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var (
	lsFlags  downloadFlags
	lsFormat string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files a Drive query matches without downloading them",
	RunE:  runListCommand,
}

func init() {
	rootCmd.AddCommand(listCmd)
	addQueryFlags(listCmd, &lsFlags)
	listCmd.Flags().StringVar(&lsFormat, "format", "table", "Output format: table or json")
}

func runListCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lsFlags.apply(cfg, cmd.Flags().Changed)

	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	modifiedAfter, err := lsFlags.modifiedAfterTime()
	if err != nil {
		return err
	}

	opts, err := listOptions(cfg, modifiedAfter)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	service, err := newDriveService(ctx, cfg)
	if err != nil {
		return err
	}

	files, err := service.ListFiles(ctx, opts)
	if err != nil {
		return err
	}

	switch lsFormat {
	case "json":
		return printJSON(files)
	case "table", "":
		fmt.Print(filesTable(files))

		return nil
	default:
		return fmt.Errorf("unknown format '%s': use table or json", lsFormat)
	}
}

func filesTable(files []*drive.FileInfo) string {
	if len(files) == 0 {
		return "No files found.\n"
	}

	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("ID", "NAME", "MODIFIED", "SIZE", "PARENTS")

	for _, f := range files {
		size := "-"
		if drive.IsDownloadable(f.MimeType) {
			size = units.HumanSize(float64(f.Size))
		}

		table.AddRow(f.ID, f.Name, f.ModifiedTime.Local().Format(time.DateTime), size, strings.Join(f.Parents, ","))
	}

	return table.String() + "\n"
}
