package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gdrive-downloader/internal/history"
	"gdrive-downloader/internal/sources/google/drive"
	"gdrive-downloader/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDrive is an in-memory FileService.
type fakeDrive struct {
	files      []*drive.FileInfo
	content    map[string]string
	listErr    error
	failOn     string
	listOpts   drive.ListFilesOptions
	downloaded []string
	exported   []string
}

func (f *fakeDrive) ListFiles(_ context.Context, opts drive.ListFilesOptions) ([]*drive.FileInfo, error) {
	f.listOpts = opts

	return f.files, f.listErr
}

func (f *fakeDrive) Download(_ context.Context, fileID string, w io.Writer) (int64, error) {
	if fileID == f.failOn {
		return 0, errors.New("connection reset")
	}

	f.downloaded = append(f.downloaded, fileID)
	n, err := io.WriteString(w, f.content[fileID])

	return int64(n), err
}

func (f *fakeDrive) Export(_ context.Context, fileID, _, format string, w io.Writer) (int64, error) {
	f.exported = append(f.exported, fileID)
	n, err := fmt.Fprintf(w, "exported %s as %s", fileID, format)

	return int64(n), err
}

// fakeRecorder captures history calls.
type fakeRecorder struct {
	started   []history.Run
	downloads []history.Download
	finished  map[string]error
	counts    map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{finished: map[string]error{}, counts: map[string]int{}}
}

func (r *fakeRecorder) StartRun(_ context.Context, run history.Run) error {
	r.started = append(r.started, run)

	return nil
}

func (r *fakeRecorder) RecordDownload(_ context.Context, dl history.Download) error {
	r.downloads = append(r.downloads, dl)

	return nil
}

func (r *fakeRecorder) FinishRun(_ context.Context, runID string, fileCount int, runErr error) error {
	r.finished[runID] = runErr
	r.counts[runID] = fileCount

	return nil
}

func file(id, name string) *drive.FileInfo {
	return &drive.FileInfo{
		ID:           id,
		Name:         name,
		MimeType:     "application/octet-stream",
		ModifiedTime: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		Parents:      []string{"folder"},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func TestRun_EmptyResultDownloadsNothing(t *testing.T) {
	ws := t.TempDir()

	var logs bytes.Buffer

	d := New(&fakeDrive{}, nil, testLogger(&logs))

	res, err := d.Run(context.Background(), Options{Workspace: ws})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Downloaded)
	assert.Empty(t, res.Files)
	assert.Contains(t, logs.String(), "no files in Google Drive.")

	entries, err := os.ReadDir(filepath.Join(ws, DefaultDir))
	require.NoError(t, err, "target directory is created even when nothing matches")
	assert.Empty(t, entries)
}

func TestRun_OneLocalFilePerRemoteFile(t *testing.T) {
	ws := t.TempDir()
	fd := &fakeDrive{
		files:   []*drive.FileInfo{file("1", "report.pdf"), file("2", "notes.txt")},
		content: map[string]string{"1": "pdf-bytes", "2": "hello"},
	}

	res, err := New(fd, nil, nil).Run(context.Background(), Options{Workspace: ws})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Downloaded)
	assert.Equal(t, int64(len("pdf-bytes")+len("hello")), res.Bytes)
	assert.Equal(t, []string{"1", "2"}, fd.downloaded, "downloads follow list order")

	dir := filepath.Join(ws, "googledrive")
	assert.Equal(t, "pdf-bytes", readFile(t, filepath.Join(dir, "report.pdf")))
	assert.Equal(t, "hello", readFile(t, filepath.Join(dir, "notes.txt")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestRun_ReusesExistingDirectoryAndOverwrites(t *testing.T) {
	ws := t.TempDir()
	dir := filepath.Join(ws, "googledrive")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("untouched"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte("old"), 0644))

	fd := &fakeDrive{
		files:   []*drive.FileInfo{file("1", "data.csv")},
		content: map[string]string{"1": "new"},
	}

	_, err := New(fd, nil, nil).Run(context.Background(), Options{Workspace: ws})
	require.NoError(t, err)

	assert.Equal(t, "new", readFile(t, filepath.Join(dir, "data.csv")))
	assert.Equal(t, "untouched", readFile(t, filepath.Join(dir, "keep.txt")))
}

func TestRun_DuplicateNamesLastWins(t *testing.T) {
	ws := t.TempDir()
	fd := &fakeDrive{
		files:   []*drive.FileInfo{file("1", "same.txt"), file("2", "same.txt")},
		content: map[string]string{"1": "first", "2": "second"},
	}

	res, err := New(fd, nil, nil).Run(context.Background(), Options{Workspace: ws})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Downloaded)
	assert.Equal(t, "second", readFile(t, filepath.Join(ws, "googledrive", "same.txt")))
}

func TestRun_FailureAbortsRemainingFiles(t *testing.T) {
	ws := t.TempDir()
	rec := newFakeRecorder()
	fd := &fakeDrive{
		files:   []*drive.FileInfo{file("1", "a"), file("2", "b"), file("3", "c")},
		content: map[string]string{"1": "A", "3": "C"},
		failOn:  "2",
	}

	res, err := New(fd, rec, nil).Run(context.Background(), Options{Workspace: ws})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []string{"1"}, fd.downloaded)

	dir := filepath.Join(ws, "googledrive")
	assert.FileExists(t, filepath.Join(dir, "a"))
	assert.NoFileExists(t, filepath.Join(dir, "b"))
	assert.NoFileExists(t, filepath.Join(dir, "c"))

	require.Len(t, rec.started, 1)
	runID := rec.started[0].ID
	assert.Error(t, rec.finished[runID])
	assert.Equal(t, 1, rec.counts[runID])
}

func TestRun_ListErrorPropagates(t *testing.T) {
	fd := &fakeDrive{listErr: errors.New("invalid query")}

	_, err := New(fd, nil, nil).Run(context.Background(), Options{Workspace: t.TempDir()})
	assert.ErrorContains(t, err, "invalid query")
}

func TestRun_PassesListOptionsThrough(t *testing.T) {
	fd := &fakeDrive{}
	opts := Options{
		Workspace: t.TempDir(),
		List:      drive.ListFilesOptions{FolderID: "abc", Query: "name contains 'x'", MaxResults: 100},
	}

	_, err := New(fd, nil, nil).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, opts.List, fd.listOpts)
}

func TestRun_PreservesModTime(t *testing.T) {
	ws := t.TempDir()
	f := file("1", "a.bin")
	fd := &fakeDrive{files: []*drive.FileInfo{f}, content: map[string]string{"1": "x"}}

	_, err := New(fd, nil, nil).Run(context.Background(), Options{Workspace: ws, PreserveModTime: true})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(ws, "googledrive", "a.bin"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(f.ModifiedTime))
}

func TestRun_WorkspaceFilePolicies(t *testing.T) {
	doc := &drive.FileInfo{ID: "d1", Name: "Design", MimeType: drive.MimeTypeGoogleDoc}
	sheet := &drive.FileInfo{ID: "s1", Name: "Budget", MimeType: drive.MimeTypeGoogleSheet}
	folder := &drive.FileInfo{ID: "f1", Name: "Sub", MimeType: drive.MimeTypeFolder}

	t.Run("fail is the default", func(t *testing.T) {
		fd := &fakeDrive{files: []*drive.FileInfo{doc}}

		_, err := New(fd, nil, nil).Run(context.Background(), Options{Workspace: t.TempDir()})
		require.Error(t, err)
		assert.ErrorIs(t, err, drive.ErrNotDownloadable)
	})

	t.Run("skip", func(t *testing.T) {
		ws := t.TempDir()
		fd := &fakeDrive{files: []*drive.FileInfo{doc, file("1", "a.txt")}, content: map[string]string{"1": "a"}}

		res, err := New(fd, nil, nil).Run(context.Background(), Options{
			Workspace:      ws,
			WorkspaceFiles: models.WorkspaceFilesSkip,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Downloaded)
		assert.Equal(t, 1, res.Skipped)
		assert.NoFileExists(t, filepath.Join(ws, "googledrive", "Design"))
	})

	t.Run("export", func(t *testing.T) {
		ws := t.TempDir()
		fd := &fakeDrive{files: []*drive.FileInfo{doc, sheet, folder}}

		res, err := New(fd, nil, nil).Run(context.Background(), Options{
			Workspace:       ws,
			WorkspaceFiles:  models.WorkspaceFilesExport,
			DocExportFormat: "txt",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Downloaded)
		assert.Equal(t, 1, res.Skipped, "folders cannot be exported")
		assert.Equal(t, []string{"d1", "s1"}, fd.exported)

		dir := filepath.Join(ws, "googledrive")
		assert.Equal(t, "exported d1 as txt", readFile(t, filepath.Join(dir, "Design.txt")))
		assert.Equal(t, "exported s1 as csv", readFile(t, filepath.Join(dir, "Budget.csv")))
	})
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	ws := t.TempDir()
	rec := newFakeRecorder()
	fd := &fakeDrive{files: []*drive.FileInfo{file("1", "a.txt")}}

	res, err := New(fd, rec, nil).Run(context.Background(), Options{Workspace: ws, DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, filepath.Join(ws, "googledrive", "a.txt"), res.Files[0].LocalPath)
	assert.Empty(t, fd.downloaded)
	assert.Empty(t, rec.started)
	assert.NoDirExists(t, filepath.Join(ws, "googledrive"))
}

func TestRun_RecordsHistory(t *testing.T) {
	rec := newFakeRecorder()
	fd := &fakeDrive{
		files:   []*drive.FileInfo{file("1", "a.txt"), file("2", "b.txt")},
		content: map[string]string{"1": "a", "2": "bb"},
	}

	res, err := New(fd, rec, nil).Run(context.Background(), Options{
		Workspace: t.TempDir(),
		List:      drive.ListFilesOptions{FolderID: "folder", Query: "q"},
	})
	require.NoError(t, err)

	require.Len(t, rec.started, 1)
	assert.Equal(t, res.RunID, rec.started[0].ID)
	assert.Equal(t, "folder", rec.started[0].FolderID)
	assert.Equal(t, "q", rec.started[0].Query)

	require.Len(t, rec.downloads, 2)
	assert.Equal(t, res.RunID, rec.downloads[0].RunID)
	assert.Equal(t, int64(2), rec.downloads[1].SizeBytes)

	assert.NoError(t, rec.finished[res.RunID])
	assert.Equal(t, 2, rec.counts[res.RunID])
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fd := &fakeDrive{files: []*drive.FileInfo{file("1", "a")}}

	_, err := New(fd, nil, nil).Run(ctx, Options{Workspace: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fd.downloaded)
}
