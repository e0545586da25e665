package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gdrive-downloader/internal/config"

	"github.com/spf13/cobra"
)

var (
	credentialsPath string
	configDir       string
	debugMode       bool
)

var rootCmd = &cobra.Command{
	Use:   "gdrive-downloader",
	Short: "Download files matching a Google Drive query into a build workspace",
	Long: `gdrive-downloader is a build step that authenticates against Google Drive,
runs a Drive search query and downloads every matching file into
<workspace>/googledrive/.

Commands:
  download  Download matching files into the workspace (the build step)
  list      Show the files a query matches without downloading
  auth      Authorize access and manage the cached OAuth token
  history   Show previously downloaded files
  config    Manage configuration files`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if debugMode {
			level = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		if credentialsPath != "" {
			config.SetCustomCredentialsPath(credentialsPath)
		}

		if configDir != "" {
			config.SetCustomConfigDir(configDir)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&credentialsPath, "credentials", "c", "", "Path to the OAuth client secret JSON file")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Custom configuration directory")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "Enable debug logging")
}

// applyLogLevel switches the default logger to the configured level unless --debug
// already forced debug output.
func applyLogLevel(level string) {
	if debugMode || level == "" {
		return
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		slog.Warn("Ignoring unknown log level", "log_level", level)

		return
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func Execute() {
	// Jenkins aborts a build with SIGTERM; stop in-flight requests cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
