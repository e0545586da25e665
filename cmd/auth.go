package main

import (
	"fmt"
	"time"

	"gdrive-downloader/internal/sources/google/auth"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to Google Drive and cache the token",
	Long: `Runs the OAuth authorization flow and stores the resulting token under the
token directory (default ~/.credentials/jenkins-google-drive-downloader).

Run this once interactively on the build agent; later download steps reuse and
refresh the cached token without a browser.`,
	RunE: runAuthCommand,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a cached token exists and when it expires",
	RunE:  runAuthStatusCommand,
}

var authRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Delete the cached token",
	RunE:  runAuthRevokeCommand,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRevokeCmd)
}

func runAuthCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts, err := authOptions(cfg)
	if err != nil {
		return err
	}

	oauthCfg, err := auth.Config(opts)
	if err != nil {
		return err
	}

	tok, err := auth.Authorize(cmd.Context(), oauthCfg, opts)
	if err != nil {
		return err
	}

	if err := opts.Store.Save(opts.User, tok); err != nil {
		return err
	}

	fmt.Printf("Token cached at %s\n", opts.Store.Path(opts.User))

	return nil
}

func runAuthStatusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := tokenStore(cfg)
	if err != nil {
		return err
	}

	st, err := auth.TokenStatus(store, cfg.Auth.User)
	if err != nil {
		return err
	}

	fmt.Print(formatAuthStatus(st, time.Now()))

	return nil
}

func formatAuthStatus(st *auth.Status, now time.Time) string {
	if !st.Cached {
		return fmt.Sprintf("No cached token at %s\nRun 'gdrive-downloader auth' to authorize.\n", st.Path)
	}

	out := fmt.Sprintf("Token: %s\n", st.Path)

	switch {
	case st.Expiry.IsZero():
		out += "Expires: never\n"
	case st.Expired:
		out += fmt.Sprintf("Expired: %s ago\n", now.Sub(st.Expiry).Round(time.Second))
	default:
		out += fmt.Sprintf("Expires: in %s\n", st.Expiry.Sub(now).Round(time.Second))
	}

	if st.Refreshable {
		out += "Refresh token: present\n"
	} else {
		out += "Refresh token: missing (re-run 'gdrive-downloader auth' once the access token expires)\n"
	}

	return out
}

func runAuthRevokeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := tokenStore(cfg)
	if err != nil {
		return err
	}

	if err := store.Delete(cfg.Auth.User); err != nil {
		return err
	}

	fmt.Printf("Removed cached token %s\n", store.Path(cfg.Auth.User))

	return nil
}
