package models

// Config represents the application configuration.
type Config struct {
	// Download step settings
	Download DownloadConfig `json:"download" yaml:"download"`

	// Authentication settings
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Download history ledger
	History HistoryConfig `json:"history" yaml:"history"`

	// General application settings
	App AppConfig `json:"app" yaml:"app"`
}

// Workspace file policies control what happens to Google Docs, Sheets, Slides and
// folders, which the Drive API cannot serve as raw content.
const (
	WorkspaceFilesFail   = "fail"
	WorkspaceFilesSkip   = "skip"
	WorkspaceFilesExport = "export"
)

// DownloadConfig defines what to fetch from Google Drive and where to put it.
type DownloadConfig struct {
	// Drive folder to search in; empty = search the whole Drive
	FolderID string `json:"folder_id" yaml:"folder_id"`

	// Inline OAuth client secret JSON. Takes precedence over auth.credentials_file.
	ClientSecretJSON string `json:"client_secret_json,omitempty" yaml:"client_secret_json,omitempty"`

	// Drive API search query (q parameter), e.g. "name contains 'release'"
	Query string `json:"query" yaml:"query"`

	// Directory under the workspace that receives the files
	DownloadDir string `json:"download_dir" yaml:"download_dir"` // default "googledrive"

	PageSize   int    `json:"page_size"   yaml:"page_size"`   // 1..1000, default 100
	MaxResults int    `json:"max_results" yaml:"max_results"` // 0 = unlimited, default 100
	OrderBy    string `json:"order_by"    yaml:"order_by"`    // default "modifiedTime"

	IncludeTrashed      bool `json:"include_trashed"       yaml:"include_trashed"`
	IncludeSharedDrives bool `json:"include_shared_drives" yaml:"include_shared_drives"`

	// "fail" (default), "skip" or "export"
	WorkspaceFiles string `json:"workspace_files" yaml:"workspace_files"`

	// Export format preferences for workspace_files: export
	DocExportFormat   string `json:"doc_export_format"   yaml:"doc_export_format"`   // "md" (default), "txt", "html"
	SheetExportFormat string `json:"sheet_export_format" yaml:"sheet_export_format"` // "csv" (default), "html"
	SlideExportFormat string `json:"slide_export_format" yaml:"slide_export_format"` // "txt" (default), "html"

	// Set local modification time to the remote modifiedTime
	PreserveModTime bool `json:"preserve_mod_time" yaml:"preserve_mod_time"`
}

type AuthConfig struct {
	// OAuth client secret file (used when download.client_secret_json is empty)
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`

	// Token cache directory; empty = ~/.credentials/jenkins-google-drive-downloader
	TokenDir string `json:"token_dir" yaml:"token_dir"`
	// Key of the cached credential inside TokenDir
	User string `json:"user" yaml:"user"`

	Scopes []string `json:"scopes" yaml:"scopes"`

	// Loopback address for the authorization code receiver
	ListenAddr  string `json:"listen_addr"  yaml:"listen_addr"` // default "127.0.0.1:0"
	OpenBrowser bool   `json:"open_browser" yaml:"open_browser"`
}

// HistoryConfig defines the SQLite ledger of completed downloads.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"db_path" yaml:"db_path"` // empty = <config dir>/history.db
}

type AppConfig struct {
	LogLevel string `json:"log_level" yaml:"log_level"` // "debug", "info", "warn", "error"
	// Plain-text summary vs JSON on stdout
	OutputFormat string `json:"output_format" yaml:"output_format"` // "summary", "json"
}
