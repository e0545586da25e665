package drive

import "time"

// ListFilesOptions controls how files are listed from Google Drive.
type ListFilesOptions struct {
	// FolderID limits listing to a specific folder; empty means no folder filter.
	FolderID string
	// Query is the user's Drive search expression, ANDed with the generated filters.
	Query string
	// ModifiedAfter filters files to those modified after this time (zero = no filter).
	ModifiedAfter time.Time
	// MimeTypes restricts results to these MIME types (empty = no filter).
	MimeTypes []string
	// IncludeTrashed drops the implicit "trashed = false" filter.
	IncludeTrashed bool
	// IncludeSharedDrives includes results from shared drives.
	IncludeSharedDrives bool
	// OrderBy is passed through to the API (default "modifiedTime").
	OrderBy string
	// PageSize is the number of results per page (default 100, max 1000).
	PageSize int
	// MaxResults caps total results; 0 means unlimited.
	MaxResults int
}

// FileInfo holds the metadata of a remote Drive file.
type FileInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type"`
	ModifiedTime time.Time `json:"modified_time"`
	Parents      []string  `json:"parents"`
	Size         int64     `json:"size"`
}
