package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gdrive-downloader/internal/history"
	"gdrive-downloader/internal/sources/google/drive"
	"gdrive-downloader/pkg/models"

	"github.com/google/uuid"
)

// DefaultDir is the directory under the workspace that receives downloads.
const DefaultDir = "googledrive"

// FileService is the part of the Drive client the downloader needs.
type FileService interface {
	ListFiles(ctx context.Context, opts drive.ListFilesOptions) ([]*drive.FileInfo, error)
	Download(ctx context.Context, fileID string, w io.Writer) (int64, error)
	Export(ctx context.Context, fileID, fileMimeType, format string, w io.Writer) (int64, error)
}

// Recorder receives a record of every run and every file written.
type Recorder interface {
	StartRun(ctx context.Context, run history.Run) error
	RecordDownload(ctx context.Context, dl history.Download) error
	FinishRun(ctx context.Context, runID string, fileCount int, runErr error) error
}

// Options describes one download step.
type Options struct {
	// Workspace is the build workspace; files land in Workspace/DownloadDir.
	Workspace   string
	DownloadDir string

	List drive.ListFilesOptions

	// WorkspaceFiles is the policy for Docs, Sheets, Slides and folders.
	WorkspaceFiles    string
	DocExportFormat   string
	SheetExportFormat string
	SlideExportFormat string

	PreserveModTime bool

	// DryRun lists and resolves paths without writing anything.
	DryRun bool
}

// FileResult is the outcome for a single remote file.
type FileResult struct {
	File       *drive.FileInfo `json:"file"`
	LocalPath  string          `json:"local_path,omitempty"`
	Bytes      int64           `json:"bytes"`
	Exported   bool            `json:"exported,omitempty"`
	Skipped    bool            `json:"skipped,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
}

// Result summarises a completed run.
type Result struct {
	RunID      string       `json:"run_id"`
	Dir        string       `json:"dir"`
	DryRun     bool         `json:"dry_run,omitempty"`
	Files      []FileResult `json:"files"`
	Downloaded int          `json:"downloaded"`
	Skipped    int          `json:"skipped"`
	Bytes      int64        `json:"bytes"`
}

// Downloader runs the list-then-download sequence against Drive.
type Downloader struct {
	files    FileService
	recorder Recorder
	logger   *slog.Logger
}

// New creates a Downloader. recorder and logger may be nil.
func New(files FileService, recorder Recorder, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Downloader{files: files, recorder: recorder, logger: logger}
}

// Run creates the target directory, lists matching files and downloads each one in
// list order. The first failure aborts the run; files already written stay on disk.
// An empty listing is not an error.
func (d *Downloader) Run(ctx context.Context, opts Options) (*Result, error) {
	dir, err := TargetDir(opts.Workspace, opts.DownloadDir)
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString(), Dir: dir, DryRun: opts.DryRun}

	if !opts.DryRun {
		if err := EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	recording := d.recorder != nil && !opts.DryRun
	if recording {
		run := history.Run{
			ID:        result.RunID,
			FolderID:  opts.List.FolderID,
			Query:     opts.List.Query,
			Dir:       dir,
			StartedAt: time.Now(),
		}

		if err := d.recorder.StartRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	runErr := d.run(ctx, dir, opts, result)

	if recording {
		if err := d.recorder.FinishRun(ctx, result.RunID, result.Downloaded, runErr); err != nil {
			d.logger.Warn("Failed to record run completion", "run_id", result.RunID, "error", err)
		}
	}

	if runErr != nil {
		return nil, runErr
	}

	return result, nil
}

func (d *Downloader) run(ctx context.Context, dir string, opts Options, result *Result) error {
	d.logger.Debug("Listing Drive files", "folder_id", opts.List.FolderID, "query", opts.List.Query)

	files, err := d.files.ListFiles(ctx, opts.List)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		d.logger.Info("no files in Google Drive.")

		return nil
	}

	d.logger.Info("Found matching files", "count", len(files), "dir", dir)

	written := make(map[string]string, len(files))

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		fr, err := d.fetch(ctx, result.RunID, dir, f, opts)
		if err != nil {
			return err
		}

		result.Files = append(result.Files, fr)

		if fr.Skipped {
			result.Skipped++

			continue
		}

		if prev, ok := written[fr.LocalPath]; ok {
			d.logger.Warn("Overwrote file downloaded earlier in this run",
				"path", fr.LocalPath, "previous_id", prev, "id", f.ID)
		}

		written[fr.LocalPath] = f.ID
		result.Downloaded++
		result.Bytes += fr.Bytes
	}

	return nil
}

// fetch handles a single remote file according to its type and the options.
func (d *Downloader) fetch(
	ctx context.Context,
	runID, dir string,
	f *drive.FileInfo,
	opts Options,
) (FileResult, error) {
	fr := FileResult{File: f}
	name := LocalName(f.Name, f.ID)

	var fill func(w io.Writer) (int64, error)

	if drive.IsDownloadable(f.MimeType) {
		fill = func(w io.Writer) (int64, error) {
			return d.files.Download(ctx, f.ID, w)
		}
	} else {
		policy := opts.WorkspaceFiles
		if policy == "" {
			policy = models.WorkspaceFilesFail
		}

		switch {
		case policy == models.WorkspaceFilesFail:
			return fr, fmt.Errorf("%w: %s (%s, id %s)", drive.ErrNotDownloadable, f.Name, f.MimeType, f.ID)
		case policy == models.WorkspaceFilesExport && drive.IsGoogleWorkspaceFile(f.MimeType):
			format := exportFormat(f.MimeType, opts)
			name += "." + format
			fr.Exported = true
			fill = func(w io.Writer) (int64, error) {
				return d.files.Export(ctx, f.ID, f.MimeType, format, w)
			}
		default:
			fr.Skipped = true
			fr.SkipReason = "not downloadable: " + f.MimeType
			d.logger.Info("Skipping file", "name", f.Name, "id", f.ID, "mime_type", f.MimeType)

			return fr, nil
		}
	}

	if opts.DryRun {
		fr.LocalPath = filepath.Join(dir, name)

		return fr, nil
	}

	path, n, err := writeAtomic(dir, name, fill)
	if err != nil {
		return fr, fmt.Errorf("failed to download %s (%s): %w", f.Name, f.ID, err)
	}

	fr.LocalPath = path
	fr.Bytes = n

	if opts.PreserveModTime && !f.ModifiedTime.IsZero() {
		if err := os.Chtimes(path, f.ModifiedTime, f.ModifiedTime); err != nil {
			d.logger.Warn("Failed to set modification time", "path", path, "error", err)
		}
	}

	d.logger.Info("Downloaded", "name", f.Name, "id", f.ID, "path", path, "bytes", n)

	if d.recorder != nil {
		rec := history.Download{
			RunID:        runID,
			FileID:       f.ID,
			Name:         f.Name,
			LocalPath:    path,
			MimeType:     f.MimeType,
			ModifiedTime: f.ModifiedTime,
			SizeBytes:    n,
			Exported:     fr.Exported,
		}

		if err := d.recorder.RecordDownload(ctx, rec); err != nil {
			d.logger.Warn("Failed to record download", "id", f.ID, "error", err)
		}
	}

	return fr, nil
}

// exportFormat picks the configured output format for a Workspace document.
func exportFormat(mimeType string, opts Options) string {
	switch mimeType {
	case drive.MimeTypeGoogleSheet:
		if opts.SheetExportFormat != "" {
			return opts.SheetExportFormat
		}

		return drive.FormatCSV
	case drive.MimeTypeGooglePresentation:
		if opts.SlideExportFormat != "" {
			return opts.SlideExportFormat
		}

		return drive.FormatTXT
	default:
		if opts.DocExportFormat != "" {
			return opts.DocExportFormat
		}

		return drive.FormatMD
	}
}
