package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one invocation of the download step.
type Run struct {
	ID         string
	FolderID   string
	Query      string
	Dir        string
	StartedAt  time.Time
	FinishedAt time.Time
	FileCount  int
	Status     string
	Error      string
}

// Download is a single file written to disk.
type Download struct {
	RunID        string
	FileID       string
	Name         string
	LocalPath    string
	MimeType     string
	ModifiedTime time.Time
	SizeBytes    int64
	Exported     bool
	DownloadedAt time.Time
}

// Filter narrows ListDownloads. Zero values mean no restriction.
type Filter struct {
	RunID  string
	FileID string
	Since  time.Time
	Limit  int
}

// Stats contains totals over the whole ledger.
type Stats struct {
	Runs           int
	FailedRuns     int
	Downloads      int
	TotalBytes     int64
	LastDownloadAt time.Time
}

// Store is a SQLite-backed ledger of download runs. It is informational only;
// nothing reads it to decide what to download.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the history database at dbPath, running migrations as needed.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Enable WAL mode so a concurrent `history` listing does not block a running build.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.createSchema(); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return store, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id       TEXT PRIMARY KEY,
			folder_id    TEXT NOT NULL DEFAULT '',
			query        TEXT NOT NULL DEFAULT '',
			dir          TEXT NOT NULL DEFAULT '',
			started_at   DATETIME NOT NULL,
			finished_at  DATETIME,
			file_count   INTEGER NOT NULL DEFAULT 0,
			status       TEXT NOT NULL DEFAULT 'running',
			error        TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS downloads (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT NOT NULL REFERENCES runs(run_id),
			file_id        TEXT NOT NULL,
			name           TEXT NOT NULL DEFAULT '',
			local_path     TEXT NOT NULL DEFAULT '',
			mime_type      TEXT NOT NULL DEFAULT '',
			modified_time  DATETIME,
			size_bytes     INTEGER NOT NULL DEFAULT 0,
			exported       BOOLEAN NOT NULL DEFAULT 0,
			downloaded_at  DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_downloads_run_id        ON downloads(run_id);
		CREATE INDEX IF NOT EXISTS idx_downloads_file_id       ON downloads(file_id);
		CREATE INDEX IF NOT EXISTS idx_downloads_downloaded_at ON downloads(downloaded_at);
	`

	_, err := s.db.Exec(schema)

	return err
}

// StartRun records the beginning of a run.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, folder_id, query, dir, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.FolderID, run.Query, run.Dir, formatTime(run.StartedAt), StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	return nil
}

// RecordDownload appends a downloaded file to its run.
func (s *Store) RecordDownload(ctx context.Context, dl Download) error {
	if dl.DownloadedAt.IsZero() {
		dl.DownloadedAt = time.Now()
	}

	var modified any
	if !dl.ModifiedTime.IsZero() {
		modified = formatTime(dl.ModifiedTime)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (
			run_id, file_id, name, local_path, mime_type,
			modified_time, size_bytes, exported, downloaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		dl.RunID, dl.FileID, dl.Name, dl.LocalPath, dl.MimeType,
		modified, dl.SizeBytes, dl.Exported, formatTime(dl.DownloadedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record download of %s: %w", dl.FileID, err)
	}

	return nil
}

// FinishRun marks a run as succeeded, or failed when runErr is non-nil.
func (s *Store) FinishRun(ctx context.Context, runID string, fileCount int, runErr error) error {
	status := StatusSucceeded
	errText := ""

	if runErr != nil {
		status = StatusFailed
		errText = runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, file_count = ?, status = ?, error = ?
		WHERE run_id = ?
	`, formatTime(time.Now()), fileCount, status, errText, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}

	return nil
}

// GetRun returns a single run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, folder_id, query, dir, started_at, finished_at, file_count, status, error
		FROM runs WHERE run_id = ?
	`, runID)

	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}

	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, folder_id, query, dir, started_at, finished_at, file_count, status, error
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// ListDownloads returns recorded downloads, newest first.
func (s *Store) ListDownloads(ctx context.Context, f Filter) ([]Download, error) {
	var (
		where []string
		args  []any
	)

	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}

	if f.FileID != "" {
		where = append(where, "file_id = ?")
		args = append(args, f.FileID)
	}

	if !f.Since.IsZero() {
		where = append(where, "downloaded_at >= ?")
		args = append(args, formatTime(f.Since))
	}

	query := `
		SELECT run_id, file_id, name, local_path, mime_type,
			modified_time, size_bytes, exported, downloaded_at
		FROM downloads`

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY downloaded_at DESC, id DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var downloads []Download

	for rows.Next() {
		var (
			dl           Download
			modified     sql.NullString
			downloadedAt string
		)

		if err := rows.Scan(
			&dl.RunID, &dl.FileID, &dl.Name, &dl.LocalPath, &dl.MimeType,
			&modified, &dl.SizeBytes, &dl.Exported, &downloadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}

		if modified.Valid {
			dl.ModifiedTime = parseTime(modified.String)
		}

		dl.DownloadedAt = parseTime(downloadedAt)
		downloads = append(downloads, dl)
	}

	return downloads, rows.Err()
}

// GetStats returns totals over all runs and downloads.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM runs
	`, StatusFailed).Scan(&stats.Runs, &stats.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	var last sql.NullString

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0), MAX(downloaded_at) FROM downloads
	`).Scan(&stats.Downloads, &stats.TotalBytes, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
	}

	if last.Valid {
		stats.LastDownloadAt = parseTime(last.String)
	}

	return stats, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)

	if err := sc.Scan(
		&run.ID, &run.FolderID, &run.Query, &run.Dir, &startedAt, &finishedAt,
		&run.FileCount, &run.Status, &run.Error,
	); err != nil {
		return nil, err
	}

	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTime(finishedAt.String)
	}

	return &run, nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t
}
