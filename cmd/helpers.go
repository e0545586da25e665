package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gdrive-downloader/internal/config"
	"gdrive-downloader/internal/download"
	"gdrive-downloader/internal/history"
	"gdrive-downloader/internal/sources/google/auth"
	"gdrive-downloader/internal/sources/google/drive"
	"gdrive-downloader/pkg/models"

	"golang.org/x/term"
)

// loadConfig loads the configuration and applies its log level.
func loadConfig() (*models.Config, error) {
	cfg, err := config.LoadConfigOrDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyLogLevel(cfg.App.LogLevel)

	return cfg, nil
}

// clientSecret returns the OAuth client secret JSON. An inline secret wins over a file.
func clientSecret(cfg *models.Config) ([]byte, error) {
	if cfg.Download.ClientSecretJSON != "" {
		return []byte(cfg.Download.ClientSecretJSON), nil
	}

	path, err := config.FindCredentialsFile(cfg.Auth.CredentialsFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", path, err)
	}

	return data, nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func tokenStore(cfg *models.Config) (*auth.TokenStore, error) {
	dir, err := config.GetTokenDir(cfg.Auth.TokenDir)
	if err != nil {
		return nil, err
	}

	return auth.NewTokenStore(dir), nil
}

func authOptions(cfg *models.Config) (auth.Options, error) {
	secret, err := clientSecret(cfg)
	if err != nil {
		return auth.Options{}, err
	}

	store, err := tokenStore(cfg)
	if err != nil {
		return auth.Options{}, err
	}

	opts := auth.Options{
		ClientSecretJSON: secret,
		Scopes:           cfg.Auth.Scopes,
		Store:            store,
		User:             cfg.Auth.User,
		ListenAddr:       cfg.Auth.ListenAddr,
		OpenBrowser:      cfg.Auth.OpenBrowser,
		Prompt:           os.Stderr,
		Logger:           slog.Default(),
	}

	if stdinIsTerminal() {
		opts.Input = os.Stdin
	}

	return opts, nil
}

// newDriveService authorizes and returns a Drive client.
func newDriveService(ctx context.Context, cfg *models.Config) (*drive.Service, error) {
	opts, err := authOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := auth.GetClient(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize: %w", err)
	}

	return drive.NewService(ctx, client)
}

// openHistory opens the ledger. It returns a nil Recorder when history is disabled
// so the downloader never sees a typed nil.
func openHistory(cfg *models.Config) (download.Recorder, func(), error) {
	if !cfg.History.Enabled {
		return nil, func() {}, nil
	}

	path, err := config.GetHistoryDBPath(cfg.History.DBPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := history.NewStore(path)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close history database", "error", err)
		}
	}

	return store, closeFn, nil
}

func listOptions(cfg *models.Config, modifiedAfter time.Time) (drive.ListFilesOptions, error) {
	folderID := cfg.Download.FolderID
	if folderID != "" {
		id, err := drive.ExtractFolderID(folderID)
		if err != nil {
			return drive.ListFilesOptions{}, err
		}

		folderID = id
	}

	return drive.ListFilesOptions{
		FolderID:            folderID,
		Query:               cfg.Download.Query,
		ModifiedAfter:       modifiedAfter,
		IncludeTrashed:      cfg.Download.IncludeTrashed,
		IncludeSharedDrives: cfg.Download.IncludeSharedDrives,
		OrderBy:             cfg.Download.OrderBy,
		PageSize:            cfg.Download.PageSize,
		MaxResults:          cfg.Download.MaxResults,
	}, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	fmt.Println(string(out))

	return nil
}
