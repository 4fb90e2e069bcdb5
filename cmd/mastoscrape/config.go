package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mastoscrape/pkg/config"
	"mastoscrape/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage mastoscrape configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (MASTOSCRAPE_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file with every option set to its default.

The file is created as $HOME/.config/mastoscrape/config.yaml unless a
different path is given with --config.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from all sources and check it:
  - YAML syntax
  - Value ranges
  - Output and log paths are writable`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = filepath.Join(os.Getenv("HOME"), ".config", "mastoscrape", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Printf("\nTo overwrite, first remove the existing file:\n  rm %s\n", configPath)
		return &reportedError{fmt.Errorf("%s exists", configPath)}
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set default_instance to the instance you export from most")
	fmt.Println("2. Run 'mastoscrape config validate' to check the configuration")
	fmt.Println("3. Export a profile with 'mastoscrape scrape <username>@<instance>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	display := *cfg
	if t := display.Mastodon.AccessToken; t != "" {
		if len(t) > 8 {
			display.Mastodon.AccessToken = t[:4] + "..." + t[len(t)-4:]
		} else {
			display.Mastodon.AccessToken = "***"
		}
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Printf("2. Environment variables (%s*)\n", config.EnvPrefix)
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in default locations)")
	}
	fmt.Println("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		return &reportedError{err}
	}

	var problems []string
	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return &reportedError{fmt.Errorf("%d configuration errors", len(problems))}
	}

	if cfg.Mastodon.AccessToken == "" {
		ui.PrintWarning("No access token configured; only public data will be exported")
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Default instance: %s\n", cfg.Mastodon.DefaultInstance)
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Post batch size: %d\n", cfg.Scrape.PostBatchSize)
	fmt.Printf("  Account batch size: %d\n", cfg.Scrape.AccountBatchSize)
	fmt.Printf("  Page delay: %s\n", cfg.Scrape.RequestDelay)
	fmt.Printf("  Media downloads: %t (%d/minute)\n", cfg.Scrape.DownloadMedia, cfg.RateLimit.MediaRequestsPerMinute)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
