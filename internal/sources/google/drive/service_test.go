package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"
)

func TestIsGoogleWorkspaceFile(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		want     bool
	}{
		{"google doc", MimeTypeGoogleDoc, true},
		{"google sheet", MimeTypeGoogleSheet, true},
		{"google slides", MimeTypeGooglePresentation, true},
		{"pdf", "application/pdf", false},
		{"plain text", "text/plain", false},
		{"empty", "", false},
		{"folder", MimeTypeFolder, false},
		{"jpeg", "image/jpeg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGoogleWorkspaceFile(tt.mimeType); got != tt.want {
				t.Errorf("IsGoogleWorkspaceFile(%q) = %v, want %v", tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestIsDownloadable(t *testing.T) {
	tests := []struct {
		mimeType string
		want     bool
	}{
		{"application/pdf", true},
		{"application/zip", true},
		{"", true},
		{MimeTypeGoogleDoc, false},
		{MimeTypeFolder, false},
		{"application/vnd.google-apps.shortcut", false},
	}

	for _, tt := range tests {
		if got := IsDownloadable(tt.mimeType); got != tt.want {
			t.Errorf("IsDownloadable(%q) = %v, want %v", tt.mimeType, got, tt.want)
		}
	}
}

func TestBuildQuery(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		opts     ListFilesOptions
		wantPart string // substring that must appear in result
		notWant  string // substring that must NOT appear in result
	}{
		{
			name:     "includes trashed filter by default",
			opts:     ListFilesOptions{},
			wantPart: "trashed = false",
		},
		{
			name:    "include trashed drops the filter",
			opts:    ListFilesOptions{IncludeTrashed: true, FolderID: "abc"},
			notWant: "trashed",
		},
		{
			name:     "folder filter",
			opts:     ListFilesOptions{FolderID: "abc123"},
			wantPart: "'abc123' in parents",
		},
		{
			name:     "folder id quotes escaped",
			opts:     ListFilesOptions{FolderID: "ab'c"},
			wantPart: `'ab\'c' in parents`,
		},
		{
			name:    "no folder filter when empty",
			opts:    ListFilesOptions{},
			notWant: "in parents",
		},
		{
			name:     "modified after filter",
			opts:     ListFilesOptions{ModifiedAfter: now},
			wantPart: "modifiedTime > '2025-06-01T12:00:00Z'",
		},
		{
			name:    "no modified after when zero",
			opts:    ListFilesOptions{},
			notWant: "modifiedTime",
		},
		{
			name: "multiple mime types use OR",
			opts: ListFilesOptions{MimeTypes: []string{
				MimeTypeGoogleDoc,
				MimeTypeGoogleSheet,
			}},
			wantPart: "mimeType = 'application/vnd.google-apps.document' or mimeType = 'application/vnd.google-apps.spreadsheet'",
		},
		{
			name:     "user query parenthesised when combined",
			opts:     ListFilesOptions{FolderID: "abc", Query: "name contains 'a' or name contains 'b'"},
			wantPart: "and (name contains 'a' or name contains 'b')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.opts)

			if tt.wantPart != "" {
				if !strings.Contains(got, tt.wantPart) {
					t.Errorf("buildQuery() = %q, want it to contain %q", got, tt.wantPart)
				}
			}

			if tt.notWant != "" {
				if strings.Contains(got, tt.notWant) {
					t.Errorf("buildQuery() = %q, want it NOT to contain %q", got, tt.notWant)
				}
			}
		})
	}
}

func TestBuildQuery_LoneUserQueryVerbatim(t *testing.T) {
	got := buildQuery(ListFilesOptions{IncludeTrashed: true, Query: "  name = 'x'  "})
	if got != "name = 'x'" {
		t.Errorf("buildQuery() = %q, want %q", got, "name = 'x'")
	}

	if got := buildQuery(ListFilesOptions{IncludeTrashed: true}); got != "" {
		t.Errorf("buildQuery() = %q, want empty", got)
	}
}

func TestGetExportMimeType(t *testing.T) {
	tests := []struct {
		name     string
		fileMime string
		format   string
		wantMime string
		wantErr  bool
	}{
		{"doc to txt", MimeTypeGoogleDoc, "txt", MimeTypePlainText, false},
		{"doc to md", MimeTypeGoogleDoc, "md", MimeTypeHTML, false},
		{"doc to html", MimeTypeGoogleDoc, "html", MimeTypeHTML, false},
		{"doc to csv invalid", MimeTypeGoogleDoc, "csv", "", true},
		{"sheet to csv", MimeTypeGoogleSheet, "csv", MimeTypeCSV, false},
		{"sheet to html", MimeTypeGoogleSheet, "html", MimeTypeHTML, false},
		{"sheet to md invalid", MimeTypeGoogleSheet, "md", "", true},
		{"slides to txt", MimeTypeGooglePresentation, "txt", MimeTypePlainText, false},
		{"slides to html", MimeTypeGooglePresentation, "html", MimeTypeHTML, false},
		{"slides to csv invalid", MimeTypeGooglePresentation, "csv", "", true},
		{"unsupported type", "application/pdf", "txt", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetExportMimeType(tt.fileMime, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetExportMimeType(%q, %q) error = %v, wantErr %v", tt.fileMime, tt.format, err, tt.wantErr)

				return
			}

			if !tt.wantErr && got != tt.wantMime {
				t.Errorf("GetExportMimeType(%q, %q) = %q, want %q", tt.fileMime, tt.format, got, tt.wantMime)
			}
		})
	}
}

func TestExtractFolderID(t *testing.T) {
	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"1AbCdEf", "1AbCdEf", false},
		{"https://drive.google.com/drive/folders/1AbCdEf", "1AbCdEf", false},
		{"https://drive.google.com/drive/u/0/folders/1AbCdEf?usp=sharing", "1AbCdEf", false},
		{"https://drive.google.com/open?id=1AbCdEf&authuser=0", "1AbCdEf", false},
		{"https://example.com/nothing/here", "", true},
	}

	for _, tt := range tests {
		got, err := ExtractFolderID(tt.ref)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExtractFolderID(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)

			continue
		}

		if got != tt.want {
			t.Errorf("ExtractFolderID(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

// fakeDriveAPI serves the subset of the Drive v3 REST API the service uses.
func fakeDriveAPI(t *testing.T, pages []map[string]any, contents map[string]string) (*Service, *[]string) {
	t.Helper()

	var queries []string

	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)

		page := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			page = int(tok[0] - '0')
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pages[page])
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/files/")

		if id, ok := strings.CutSuffix(rest, "/export"); ok {
			w.Header().Set("Content-Type", r.URL.Query().Get("mimeType"))
			_, _ = w.Write([]byte(contents[id+":export"]))

			return
		}

		if r.URL.Query().Get("alt") != "media" {
			http.Error(w, "metadata not served", http.StatusBadRequest)

			return
		}

		body, ok := contents[rest]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"File not found"}}`, http.StatusNotFound)

			return
		}

		_, _ = w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc, err := NewService(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	return svc, &queries
}

func TestListFiles_PaginatesAndConverts(t *testing.T) {
	pages := []map[string]any{
		{
			"nextPageToken": "1",
			"files": []map[string]any{
				{"id": "a", "name": "a.txt", "mimeType": "text/plain", "modifiedTime": "2026-09-01T10:00:00Z", "parents": []string{"p"}, "size": "3"},
			},
		},
		{
			"files": []map[string]any{
				{"id": "b", "name": "b.txt", "mimeType": "text/plain", "modifiedTime": "2026-09-02T10:00:00Z"},
			},
		},
	}

	svc, queries := fakeDriveAPI(t, pages, nil)

	files, err := svc.ListFiles(context.Background(), ListFilesOptions{FolderID: "p", Query: "name contains 'txt'"})
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("ListFiles() returned %d files, want 2", len(files))
	}

	if files[0].ID != "a" || files[0].Size != 3 || files[0].Parents[0] != "p" {
		t.Errorf("unexpected first file: %+v", files[0])
	}

	wantTime := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if !files[0].ModifiedTime.Equal(wantTime) {
		t.Errorf("ModifiedTime = %v, want %v", files[0].ModifiedTime, wantTime)
	}

	if len(*queries) != 2 {
		t.Fatalf("expected 2 list requests, got %d", len(*queries))
	}

	first := (*queries)[0]
	for _, want := range []string{"orderBy=modifiedTime", "pageSize=100", "q="} {
		if !strings.Contains(first, want) {
			t.Errorf("list request %q missing %q", first, want)
		}
	}
}

func TestListFiles_MaxResultsStopsPaging(t *testing.T) {
	pages := []map[string]any{
		{
			"nextPageToken": "1",
			"files": []map[string]any{
				{"id": "a", "name": "a"},
				{"id": "b", "name": "b"},
			},
		},
	}

	svc, queries := fakeDriveAPI(t, pages, nil)

	files, err := svc.ListFiles(context.Background(), ListFilesOptions{MaxResults: 1})
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}

	if len(files) != 1 || len(*queries) != 1 {
		t.Errorf("got %d files over %d requests, want 1 over 1", len(files), len(*queries))
	}
}

func TestDownload(t *testing.T) {
	svc, _ := fakeDriveAPI(t, nil, map[string]string{"abc": "binary content"})

	var buf bytes.Buffer

	n, err := svc.Download(context.Background(), "abc", &buf)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	if buf.String() != "binary content" || n != int64(len("binary content")) {
		t.Errorf("Download() wrote %q (%d bytes)", buf.String(), n)
	}

	if _, err := svc.Download(context.Background(), "missing", &buf); err == nil {
		t.Error("Download() of missing file succeeded, want error")
	}
}

func TestExport_Markdown(t *testing.T) {
	svc, _ := fakeDriveAPI(t, nil, map[string]string{"doc:export": "<h1>Title</h1><p>Body</p>"})

	var buf bytes.Buffer

	if _, err := svc.Export(context.Background(), "doc", MimeTypeGoogleDoc, FormatMD, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if !strings.Contains(buf.String(), "# Title") {
		t.Errorf("Export() = %q, want markdown heading", buf.String())
	}
}

func TestExport_UnsupportedFormat(t *testing.T) {
	svc, _ := fakeDriveAPI(t, nil, nil)

	var buf bytes.Buffer

	if _, err := svc.Export(context.Background(), "doc", MimeTypeGoogleSheet, FormatMD, &buf); err == nil {
		t.Error("Export() sheet as md succeeded, want error")
	}
}
