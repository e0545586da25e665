package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppName = "gdrive-downloader"

	// DefaultDownloadDir is the directory under the build workspace that receives files.
	DefaultDownloadDir = "googledrive"

	// CredentialsFileName is the conventional name of the OAuth client secret file.
	CredentialsFileName = "credentials.json"

	// HistoryFileName is the SQLite ledger kept in the config directory.
	HistoryFileName = "history.db"

	defaultTokenSubdir = ".credentials/jenkins-google-drive-downloader"
)

var (
	customConfigDir       string
	customCredentialsPath string
)

// SetCustomConfigDir overrides the global configuration directory.
func SetCustomConfigDir(dir string) {
	customConfigDir = dir
}

// SetCustomCredentialsPath overrides the client secret file location.
func SetCustomCredentialsPath(path string) {
	customCredentialsPath = path
}

// GetConfigDir returns the directory holding config.yaml and the history database.
func GetConfigDir() (string, error) {
	if customConfigDir != "" {
		return customConfigDir, nil
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".config", AppName), nil
}

// GetTokenDir returns the OAuth token cache directory. An empty configured value
// resolves to a directory under the invoking user's home.
func GetTokenDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, defaultTokenSubdir), nil
}

// GetHistoryDBPath resolves the history database location.
func GetHistoryDBPath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, HistoryFileName), nil
}

// FindCredentialsFile locates the OAuth client secret file. The --credentials flag
// wins, then the configured path, then credentials.json in the config dir and cwd.
func FindCredentialsFile(configured string) (string, error) {
	var candidates []string

	if customCredentialsPath != "" {
		candidates = append(candidates, customCredentialsPath)
	}

	if configured != "" {
		candidates = append(candidates, configured)
	}

	if configDir, err := GetConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(configDir, CredentialsFileName))
	}

	candidates = append(candidates, CredentialsFileName)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no client secret file found in: %v", candidates)
}
