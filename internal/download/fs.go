package download

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// TargetDir joins the workspace and the download directory and returns an absolute path.
func TargetDir(workspace, downloadDir string) (string, error) {
	if workspace == "" {
		return "", fmt.Errorf("workspace is required")
	}

	if downloadDir == "" {
		downloadDir = DefaultDir
	}

	abs, err := filepath.Abs(filepath.Join(workspace, downloadDir))
	if err != nil {
		return "", fmt.Errorf("unable to resolve download directory: %w", err)
	}

	return abs, nil
}

// EnsureDir creates dir if it is absent and reuses it if present. An existing
// non-directory at that path is an error.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("download path %s exists and is not a directory", dir)
		}

		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("unable to stat download directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create download directory: %w", err)
	}

	return nil
}

// LocalName maps a remote file name to a file name inside the download directory.
// Drive names may contain path separators; those are replaced so every file lands
// directly in the target directory. Names that cannot be used at all fall back to
// the file ID.
func LocalName(remoteName, fileID string) string {
	name := strings.NewReplacer("/", "-", "\\", "-", "\x00", "").Replace(remoteName)
	name = strings.TrimSpace(name)

	switch name {
	case "", ".", "..":
		return fileID
	}

	return name
}

// writeAtomic streams content produced by fill into dir/name. The data goes to a
// temporary file in the same directory first and is renamed over the destination,
// so an existing file of the same name is replaced only by complete content.
func writeAtomic(dir, name string, fill func(w io.Writer) (int64, error)) (string, int64, error) {
	dest := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, ".gdrive-*.part")
	if err != nil {
		return "", 0, fmt.Errorf("unable to create file in %s: %w", dir, err)
	}

	tmpName := tmp.Name()
	committed := false

	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	n, err := fill(tmp)
	if err != nil {
		_ = tmp.Close()

		return "", n, err
	}

	if err := tmp.Close(); err != nil {
		return "", n, fmt.Errorf("unable to write %s: %w", dest, err)
	}

	if err := os.Chmod(tmpName, 0644); err != nil {
		return "", n, fmt.Errorf("unable to set mode on %s: %w", dest, err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return "", n, fmt.Errorf("unable to move download into place at %s: %w", dest, err)
	}

	committed = true

	return dest, n, nil
}
