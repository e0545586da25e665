package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mdconverter "github.com/JohannesKaufmann/html-to-markdown/v2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ErrNotDownloadable is returned for Google Workspace documents and folders, which
// have no binary content to download.
var ErrNotDownloadable = errors.New("file has no downloadable content")

const listFields = "nextPageToken, files(id, name, mimeType, modifiedTime, parents, size)"

type Service struct {
	client *drive.Service
}

// NewService builds a Drive client on top of an authorized HTTP client. Extra options
// (such as option.WithEndpoint) are passed through to the API library.
func NewService(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Service, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)

	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return &Service{client: driveService}, nil
}

// GetFileMetadata fetches a single file by ID.
func (s *Service) GetFileMetadata(ctx context.Context, fileID string) (*FileInfo, error) {
	file, err := s.client.Files.Get(fileID).
		Fields("id, name, mimeType, modifiedTime, parents, size").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve file metadata: %w", err)
	}

	return convertFileInfo(file), nil
}

// Download streams the binary content of fileID into w.
func (s *Service) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	resp, err := s.client.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return 0, fmt.Errorf("unable to download file %s: %w", fileID, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("unable to write content of file %s: %w", fileID, err)
	}

	return n, nil
}

// Export writes a Google Workspace document into w in the given output format
// (md, txt, html, csv). Markdown is produced by converting the HTML export.
func (s *Service) Export(ctx context.Context, fileID, fileMimeType, format string, w io.Writer) (int64, error) {
	exportMimeType, err := GetExportMimeType(fileMimeType, format)
	if err != nil {
		return 0, err
	}

	body, err := s.ExportDocument(ctx, fileID, exportMimeType)
	if err != nil {
		return 0, err
	}

	defer func() {
		_ = body.Close()
	}()

	if format != FormatMD {
		n, err := io.Copy(w, body)
		if err != nil {
			return n, fmt.Errorf("unable to write exported content: %w", err)
		}

		return n, nil
	}

	htmlBytes, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("failed to read HTML content: %w", err)
	}

	markdown, err := mdconverter.ConvertString(string(htmlBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}

	n, err := io.WriteString(w, markdown)
	if err != nil {
		return int64(n), fmt.Errorf("unable to write exported content: %w", err)
	}

	return int64(n), nil
}

// ExportDocument returns the export of fileID in exportMimeType. The caller closes it.
func (s *Service) ExportDocument(ctx context.Context, fileID, exportMimeType string) (io.ReadCloser, error) {
	resp, err := s.client.Files.Export(fileID, exportMimeType).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("unable to export document: %w", err)
	}

	return resp.Body, nil
}

// Workspace document types.
const (
	MimeTypeGoogleDoc          = "application/vnd.google-apps.document"
	MimeTypeGoogleSheet        = "application/vnd.google-apps.spreadsheet"
	MimeTypeGooglePresentation = "application/vnd.google-apps.presentation"
	MimeTypeFolder             = "application/vnd.google-apps.folder"

	googleAppsPrefix = "application/vnd.google-apps."
)

// Export MIME types.
const (
	MimeTypePlainText = "text/plain"
	MimeTypeHTML      = "text/html"
	MimeTypeCSV       = "text/csv"
)

// Format constants.
const (
	FormatHTML = "html"
	FormatMD   = "md"
	FormatTXT  = "txt"
	FormatCSV  = "csv"
)

// GetExportMimeType maps a Workspace document type and output format to the MIME type
// the export endpoint expects.
func GetExportMimeType(fileMimeType, format string) (string, error) {
	switch fileMimeType {
	case MimeTypeGoogleDoc:
		switch format {
		case FormatTXT:
			return MimeTypePlainText, nil
		case FormatHTML, FormatMD:
			return MimeTypeHTML, nil
		default:
			return "", fmt.Errorf("unsupported format '%s' for Google Docs (supported: txt, html, md)", format)
		}
	case MimeTypeGoogleSheet:
		switch format {
		case FormatCSV:
			return MimeTypeCSV, nil
		case FormatHTML:
			return MimeTypeHTML, nil
		default:
			return "", fmt.Errorf("unsupported format '%s' for Google Sheets (supported: csv, html)", format)
		}
	case MimeTypeGooglePresentation:
		switch format {
		case FormatTXT:
			return MimeTypePlainText, nil
		case FormatHTML:
			return MimeTypeHTML, nil
		default:
			return "", fmt.Errorf("unsupported format '%s' for Google Slides (supported: txt, html)", format)
		}
	default:
		return "", fmt.Errorf("unsupported file type: %s (only Google Docs, Sheets, and Slides can be exported)", fileMimeType)
	}
}

// IsGoogleWorkspaceFile returns true if the MIME type is one of the three exportable Workspace types.
func IsGoogleWorkspaceFile(mimeType string) bool {
	switch mimeType {
	case MimeTypeGoogleDoc, MimeTypeGoogleSheet, MimeTypeGooglePresentation:
		return true
	}

	return false
}

// IsDownloadable reports whether files.get?alt=media can serve the file. Every
// "application/vnd.google-apps.*" type (Docs, folders, shortcuts, forms) is
// metadata-only.
func IsDownloadable(mimeType string) bool {
	return !strings.HasPrefix(mimeType, googleAppsPrefix)
}

// ExtractFolderID accepts a bare folder ID or a Drive folder URL such as
// https://drive.google.com/drive/folders/{ID}?usp=sharing or
// https://drive.google.com/open?id={ID}.
func ExtractFolderID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}

	if !strings.Contains(ref, "/") && !strings.Contains(ref, "?") {
		return ref, nil
	}

	if idx := strings.Index(ref, "/folders/"); idx != -1 {
		id := ref[idx+len("/folders/"):]
		if cut := strings.IndexAny(id, "/?#"); cut != -1 {
			id = id[:cut]
		}

		if id != "" {
			return id, nil
		}
	}

	if idx := strings.Index(ref, "id="); idx != -1 {
		id := ref[idx+len("id="):]
		if cut := strings.IndexAny(id, "&#"); cut != -1 {
			id = id[:cut]
		}

		if id != "" {
			return id, nil
		}
	}

	return "", fmt.Errorf("unable to extract folder ID from: %s", ref)
}

// buildQuery ANDs the filters in opts into a single q expression.
func buildQuery(opts ListFilesOptions) string {
	var parts []string

	if !opts.IncludeTrashed {
		parts = append(parts, "trashed = false")
	}

	if opts.FolderID != "" {
		parts = append(parts, fmt.Sprintf("'%s' in parents", escapeQueryValue(opts.FolderID)))
	}

	if !opts.ModifiedAfter.IsZero() {
		parts = append(parts, fmt.Sprintf("modifiedTime > '%s'", opts.ModifiedAfter.UTC().Format(time.RFC3339)))
	}

	if len(opts.MimeTypes) == 1 {
		parts = append(parts, fmt.Sprintf("mimeType = '%s'", opts.MimeTypes[0]))
	} else if len(opts.MimeTypes) > 1 {
		mimeFilters := make([]string, len(opts.MimeTypes))
		for i, mt := range opts.MimeTypes {
			mimeFilters[i] = fmt.Sprintf("mimeType = '%s'", mt)
		}

		parts = append(parts, "("+strings.Join(mimeFilters, " or ")+")")
	}

	if q := strings.TrimSpace(opts.Query); q != "" {
		// A lone user query is passed through verbatim; combined with generated
		// filters it is parenthesised so its own "or" terms keep their meaning.
		if len(parts) == 0 {
			return q
		}

		parts = append(parts, "("+q+")")
	}

	return strings.Join(parts, " and ")
}

func escapeQueryValue(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}

// ListFiles runs the search described by opts, following page tokens until the
// listing ends or MaxResults is reached.
func (s *Service) ListFiles(ctx context.Context, opts ListFilesOptions) ([]*FileInfo, error) {
	pageSize := int64(100)
	if opts.PageSize > 0 {
		pageSize = int64(opts.PageSize)
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "modifiedTime"
	}

	query := buildQuery(opts)

	var files []*FileInfo

	pageToken := ""

	for {
		req := s.client.Files.List().
			Fields(listFields).
			OrderBy(orderBy).
			PageSize(pageSize).
			Context(ctx)

		if query != "" {
			req = req.Q(query)
		}

		if opts.IncludeSharedDrives {
			req = req.IncludeItemsFromAllDrives(true).SupportsAllDrives(true)
		}

		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		result, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list drive files: %w", err)
		}

		for _, f := range result.Files {
			files = append(files, convertFileInfo(f))

			if opts.MaxResults > 0 && len(files) >= opts.MaxResults {
				return files, nil
			}
		}

		if result.NextPageToken == "" {
			break
		}

		pageToken = result.NextPageToken
	}

	return files, nil
}

// convertFileInfo converts a Drive API File object to a FileInfo.
func convertFileInfo(f *drive.File) *FileInfo {
	info := &FileInfo{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
		Parents:  f.Parents,
	}

	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			info.ModifiedTime = t
		}
	}

	return info
}
