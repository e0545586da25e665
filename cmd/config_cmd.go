package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"gdrive-downloader/internal/config"
	"gdrive-downloader/pkg/models"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Writes config.yaml into the configuration directory. When stdin is a terminal
an interactive form asks for the folder, query and workspace file policy;
otherwise the defaults are written.`,
	RunE: runConfigInitCommand,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShowCommand,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE:  runConfigPathCommand,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing configuration file")
}

func runConfigInitCommand(cmd *cobra.Command, args []string) error {
	if existing := config.FindConfigFile(); existing != "" && !configInitForce {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", existing)
	}

	cfg := config.GetDefaultConfig()

	if stdinIsTerminal() {
		form, commit := configForm(cfg)
		if err := form.Run(); err != nil {
			return fmt.Errorf("configuration form aborted: %w", err)
		}

		commit()
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	path, err := config.SaveConfig(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)

	return nil
}

// configForm edits cfg in place. The returned func copies the fields that need
// conversion back into cfg once the form has run.
func configForm(cfg *models.Config) (*huh.Form, func()) {
	maxResults := strconv.Itoa(cfg.Download.MaxResults)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Drive folder").
				Description("Folder ID or URL to search in. Leave empty to search the whole Drive.").
				Value(&cfg.Download.FolderID),
			huh.NewInput().
				Title("Search query").
				Description("Drive query, e.g. name contains 'release'.").
				Value(&cfg.Download.Query),
			huh.NewInput().
				Title("Maximum files").
				Description("0 downloads every match.").
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative number")
					}

					return nil
				}).
				Value(&maxResults),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Google Docs, Sheets and Slides").
				Options(
					huh.NewOption("Fail the build", models.WorkspaceFilesFail),
					huh.NewOption("Skip them", models.WorkspaceFilesSkip),
					huh.NewOption("Export them (md/csv/txt)", models.WorkspaceFilesExport),
				).
				Value(&cfg.Download.WorkspaceFiles),
			huh.NewInput().
				Title("Client secret file").
				Description("Leave empty to use credentials.json from the config directory.").
				Value(&cfg.Auth.CredentialsFile),
			huh.NewConfirm().
				Title("Record downloads in the history database?").
				Value(&cfg.History.Enabled),
		),
	)

	return form, func() {
		// Validated by the form.
		cfg.Download.MaxResults, _ = strconv.Atoi(maxResults)
	}
}

func runConfigShowCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Download.ClientSecretJSON != "" {
		cfg.Download.ClientSecretJSON = "<redacted>"
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if path := config.FindConfigFile(); path != "" {
		fmt.Printf("# %s\n", path)
	} else {
		fmt.Println("# defaults (no configuration file found)")
	}

	fmt.Print(string(out))

	return nil
}

func runConfigPathCommand(cmd *cobra.Command, args []string) error {
	if path := config.FindConfigFile(); path != "" {
		fmt.Println(path)

		return nil
	}

	dir, err := config.GetConfigDir()
	if err != nil {
		return err
	}

	fmt.Printf("%s (not created yet)\n", filepath.Join(dir, config.ConfigFileName))

	return nil
}
