package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mastoscrape/pkg/auth"
	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/mastodon"
	"mastoscrape/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage instance access tokens",
	Long: `Manage stored access tokens, one per instance.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - MASTOSCRAPE_ACCESS_TOKEN (read only)

Public profiles can be exported without any token.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [instance]",
	Short: "Store an access token for an instance",
	Example: `  # Interactive login
  mastoscrape auth login

  # Login for a specific instance
  mastoscrape auth login fosstodon.org`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var skipVerify bool

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout <instance>",
	Short: "Remove the stored token of an instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances with stored tokens",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "store the token without checking it against the instance")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if !skipVerify {
		manager.SetVerifier(auth.APIVerifier(mastodon.Options{
			Timeout:   cfg.Mastodon.RequestTimeout,
			UserAgent: cfg.Mastodon.UserAgent,
		}, logger.GetLogger()))
	}
	reader := bufio.NewReader(os.Stdin)

	var host string
	if len(args) > 0 {
		host = auth.NormalizeInstance(args[0])
	}
	if host == "" {
		fmt.Print("Instance (e.g. mastodon.social): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read instance: %w", err)
		}
		host = auth.NormalizeInstance(input)
	}
	if host == "" {
		return fmt.Errorf("instance is required")
	}

	auth.ShowTokenGuide(os.Stdout, host)

	if existing, _ := manager.Retrieve(host); existing != nil {
		fmt.Printf("\nA token for %s is already stored. Replace it? (y/N): ", host)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("\nAccess token (hidden): ")
	accessToken, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	fmt.Println()
	if len(accessToken) < 20 {
		return fmt.Errorf("that does not look like an access token")
	}

	cred := &auth.Credential{Instance: host, AccessToken: accessToken}
	if err := manager.Store(cmd.Context(), cred); err != nil {
		if errors.Is(err, auth.ErrInsufficientScope) {
			fmt.Println("Create the token with the read scopes listed above.")
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	if cred.Username != "" {
		ui.PrintSuccess(fmt.Sprintf("Token stored for @%s@%s", cred.Username, host))
	} else {
		ui.PrintSuccess("Token stored for " + host)
	}
	fmt.Println("\nExport a profile with:")
	fmt.Printf("  $ mastoscrape scrape <username>@%s\n", host)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	host := auth.NormalizeInstance(args[0])
	if err := manager.Delete(host); err != nil {
		return fmt.Errorf("failed to remove token for %s: %w", host, err)
	}
	ui.PrintSuccess("Token removed for " + host)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	creds, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(creds) == 0 {
		ui.PrintWarning("No stored tokens")
		fmt.Println("Run 'mastoscrape auth login' to add one.")
		return nil
	}

	ui.PrintHighlight("Stored tokens")
	for _, cred := range creds {
		safe := auth.SanitizeCredential(cred)
		line := fmt.Sprintf("  %-28s %s", safe.Instance, safe.AccessToken)
		if safe.Username != "" {
			line += "  @" + safe.Username
		}
		if len(safe.Scopes) > 0 {
			line += "  [" + strings.Join(safe.Scopes, " ") + "]"
		}
		if !safe.SavedAt.IsZero() {
			line += "  " + ui.Dim(safe.SavedAt.Local().Format("2006-01-02"))
		}
		fmt.Println(line)
	}
	return nil
}

// readPassword reads a line without echo when stdin is a terminal
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
