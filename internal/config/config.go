package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gdrive-downloader/pkg/models"

	"gopkg.in/yaml.v3"
)

const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from the standard search paths.
func LoadConfig() (*models.Config, error) {
	// Search for config file in order:
	// 1. Custom config dir (if set)
	// 2. Global config directory
	// 3. Current directory
	configPaths := getConfigSearchPaths()

	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	return nil, fmt.Errorf("no config file found in search paths: %v", configPaths)
}

// LoadConfigOrDefault returns the loaded configuration, or the defaults when no
// config file exists. Parse errors are still returned.
func LoadConfigOrDefault() (*models.Config, error) {
	for _, configPath := range getConfigSearchPaths() {
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	return GetDefaultConfig(), nil
}

// FindConfigFile returns the first existing config file on the search path, or "".
func FindConfigFile() string {
	for _, configPath := range getConfigSearchPaths() {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return ""
}

// SaveConfig saves configuration to the appropriate location.
func SaveConfig(cfg *models.Config) (string, error) {
	configPath, err := getConfigFilePath()
	if err != nil {
		return "", fmt.Errorf("failed to get config file path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold an inline client secret.
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return configPath, nil
}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() *models.Config {
	return &models.Config{
		Download: models.DownloadConfig{
			DownloadDir:       DefaultDownloadDir,
			PageSize:          100,
			MaxResults:        100,
			OrderBy:           "modifiedTime",
			WorkspaceFiles:    models.WorkspaceFilesFail,
			DocExportFormat:   "md",
			SheetExportFormat: "csv",
			SlideExportFormat: "txt",
			PreserveModTime:   true,
		},
		Auth: models.AuthConfig{
			User:       "user",
			Scopes:     []string{"https://www.googleapis.com/auth/drive"},
			ListenAddr: "127.0.0.1:0",
		},
		History: models.HistoryConfig{
			Enabled: true,
			DBPath:  "", // Will be resolved to ~/.config/gdrive-downloader/history.db at runtime
		},
		App: models.AppConfig{
			LogLevel:     "info",
			OutputFormat: "summary",
		},
	}
}

// getConfigSearchPaths returns the list of paths to search for config files.
func getConfigSearchPaths() []string {
	var paths []string

	// Custom config dir (if set via --config-dir flag)
	if customConfigDir != "" {
		paths = append(paths, filepath.Join(customConfigDir, ConfigFileName))
	}

	// Global config directory
	if globalConfigDir, err := GetConfigDir(); err == nil {
		paths = append(paths, filepath.Join(globalConfigDir, ConfigFileName))
	}

	// Current directory
	paths = append(paths, ConfigFileName)

	return paths
}

// getConfigFilePath returns the path where config should be saved.
func getConfigFilePath() (string, error) {
	if customConfigDir != "" {
		return filepath.Join(customConfigDir, ConfigFileName), nil
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, ConfigFileName), nil
}

// loadConfigFromFile loads configuration from a specific file. Fields missing from
// the file keep their default values.
func loadConfigFromFile(configPath string) (*models.Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	expandEnv(cfg)

	return cfg, nil
}

// expandEnv resolves ${VAR} references in the string fields a CI job usually
// injects from its environment.
func expandEnv(cfg *models.Config) {
	cfg.Download.FolderID = os.ExpandEnv(cfg.Download.FolderID)
	cfg.Download.ClientSecretJSON = os.ExpandEnv(cfg.Download.ClientSecretJSON)
	cfg.Download.Query = os.ExpandEnv(cfg.Download.Query)
	cfg.Auth.CredentialsFile = os.ExpandEnv(cfg.Auth.CredentialsFile)
	cfg.Auth.TokenDir = os.ExpandEnv(cfg.Auth.TokenDir)
	cfg.History.DBPath = os.ExpandEnv(cfg.History.DBPath)
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validateDownloadConfig(&cfg.Download); err != nil {
		return fmt.Errorf("download configuration error: %w", err)
	}

	if err := validateAuthConfig(&cfg.Auth); err != nil {
		return fmt.Errorf("auth configuration error: %w", err)
	}

	return nil
}

// validateDownloadConfig validates the download section.
func validateDownloadConfig(dl *models.DownloadConfig) error {
	if err := ValidateDownloadDir(dl.DownloadDir); err != nil {
		return err
	}

	if dl.PageSize < 1 || dl.PageSize > 1000 {
		return fmt.Errorf("page_size must be between 1 and 1000, got %d", dl.PageSize)
	}

	if dl.MaxResults < 0 {
		return fmt.Errorf("max_results must not be negative, got %d", dl.MaxResults)
	}

	switch dl.WorkspaceFiles {
	case models.WorkspaceFilesFail, models.WorkspaceFilesSkip, models.WorkspaceFilesExport, "":
	default:
		return fmt.Errorf("invalid workspace_files %q (supported: fail, skip, export)", dl.WorkspaceFiles)
	}

	validDocFormats := map[string]bool{"md": true, "txt": true, "html": true, "": true}
	if !validDocFormats[dl.DocExportFormat] {
		return fmt.Errorf("invalid doc_export_format %q (supported: md, txt, html)", dl.DocExportFormat)
	}

	validSheetFormats := map[string]bool{"csv": true, "html": true, "": true}
	if !validSheetFormats[dl.SheetExportFormat] {
		return fmt.Errorf("invalid sheet_export_format %q (supported: csv, html)", dl.SheetExportFormat)
	}

	validSlideFormats := map[string]bool{"txt": true, "html": true, "": true}
	if !validSlideFormats[dl.SlideExportFormat] {
		return fmt.Errorf("invalid slide_export_format %q (supported: txt, html)", dl.SlideExportFormat)
	}

	return nil
}

// ValidateDownloadDir rejects download directories that would escape the workspace.
func ValidateDownloadDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("download_dir is required")
	}

	if filepath.IsAbs(dir) {
		return fmt.Errorf("download_dir %q must be relative to the workspace", dir)
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("download_dir %q must not contain '..'", dir)
		}
	}

	return nil
}

func validateAuthConfig(auth *models.AuthConfig) error {
	if len(auth.Scopes) == 0 {
		return fmt.Errorf("at least one OAuth scope is required")
	}

	if auth.User == "" {
		return fmt.Errorf("user is required")
	}

	return nil
}
