package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ladderharvest/pkg/auth"
	"ladderharvest/pkg/ui"
)

var devKey bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Riot API key",
	Long: `Manage the stored Riot API key.

Keys are stored using, in order:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables RIOT_API_KEY / LADDERHARVEST_API_KEY (read only)

Never commit your key or share config files that contain it.`,
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store an API key securely",
	Long: `Store a Riot API key in the system keychain or the encrypted file.

The key is read from the terminal without echo. When stdin is not a terminal
the first line of stdin is used, so the key can be piped in.`,
	Example: `  # Interactive
  ladderharvest auth set-key --dev

  # Store under a named profile from a secret manager
  vault read -field=key secret/riot | ladderharvest auth set-key --profile prod`,
	Args: cobra.NoArgs,
	RunE: runSetKey,
}

var clearKeyCmd = &cobra.Command{
	Use:   "clear-key",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE:  runClearKey,
}

var showKeyCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored API keys (masked)",
	Args:  cobra.NoArgs,
	RunE:  runShowKey,
}

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to obtain an API key",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowAPIKeyGuide(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(setKeyCmd)
	authCmd.AddCommand(clearKeyCmd)
	authCmd.AddCommand(showKeyCmd)
	authCmd.AddCommand(guideCmd)

	setKeyCmd.Flags().BoolVar(&devKey, "dev", false, "development key (expires after 24 hours)")
}

func runSetKey(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	key, err := readKey()
	if err != nil {
		return err
	}

	cred := &auth.Credential{
		Profile:     profile,
		APIKey:      key,
		Development: devKey,
	}
	if err := manager.Store(cred); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			auth.ShowQuickKeyGuide(os.Stderr)
		}
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("API key stored for profile %q", cred.Profile))
	if cred.Development {
		ui.PrintInfo("Expires", cred.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// readKey reads the key without echo from a terminal, or the first line of piped stdin
func readKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print("Riot API key: ")
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read key from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runClearKey(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if err := manager.Delete(profile); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("API key removed for profile %q", profile))
	return nil
}

func runShowKey(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		ui.PrintWarning("No API key stored")
		auth.ShowQuickKeyGuide(os.Stdout)
		return nil
	}

	now := timeNow()
	rows := make([][]string, 0, len(creds))
	for _, c := range creds {
		masked := auth.SanitizeCredential(c)
		expires := "never"
		switch {
		case c.Expired(now):
			expires = "expired"
		case !c.ExpiresAt.IsZero():
			expires = c.ExpiresAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{masked.Profile, masked.APIKey, expires})
	}
	ui.PrintTable([]string{"PROFILE", "KEY", "EXPIRES"}, rows)
	return nil
}
