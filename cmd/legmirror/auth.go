package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"legmirror/pkg/archive"
	"legmirror/pkg/auth"
	"legmirror/pkg/ui"
)

var checkKeys bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage archive.org keys",
	Long: `Manage the archive.org S3 keys legmirror uploads with.

Profiles are kept in the system keychain when one is reachable and in an
encrypted file in the user config directory otherwise. LEGMIRROR_IA_ACCESS_KEY
and LEGMIRROR_IA_SECRET_KEY take precedence over any stored profile.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store archive.org keys",
	Example: `  legmirror auth login
  legmirror auth login bot2 --check`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager()
		if err != nil {
			return fmt.Errorf("credential manager: %w", err)
		}
		var profile string
		if len(args) == 1 {
			profile = args[0]
		}
		return login(newPrompt(), manager, profile)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove stored keys",
	Long: `Remove a stored key profile. Without an argument a menu of stored
profiles is shown, including an entry that removes all of them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager()
		if err != nil {
			return fmt.Errorf("credential manager: %w", err)
		}
		if len(args) == 1 {
			return removeProfile(manager, args[0])
		}
		return logout(newPrompt(), manager)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored key profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager()
		if err != nil {
			return fmt.Errorf("credential manager: %w", err)
		}
		accounts, err := manager.List()
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			ui.PrintWarning("No stored profiles, add one with 'legmirror auth login'")
			return nil
		}
		ui.PrintHighlight("Stored profiles")
		for _, a := range accounts {
			m := auth.SanitizeAccount(a)
			fmt.Printf("\n%s\n", ui.Cyan(m.Name))
			fmt.Printf("  access key  %s\n", m.AccessKey)
			fmt.Printf("  secret key  %s\n", m.SecretKey)
			fmt.Printf("  modified    %s\n", m.LastModified.Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd)
	rootCmd.AddCommand(authCmd)

	loginCmd.Flags().BoolVar(&checkKeys, "check", false, "verify the keys with archive.org before storing them")
}

func login(p *prompt, manager *auth.Manager, profile string) error {
	auth.ShowKeysGuide()

	if profile == "" {
		profile = p.line("Profile name", auth.DefaultProfile)
	}
	if existing, _ := manager.Retrieve(profile); existing != nil && existing.Name == profile {
		if !p.yes(fmt.Sprintf("Profile %q exists. Replace its keys?", profile)) {
			return nil
		}
	}

	account := &auth.Account{Name: profile}
	var err error
	if account.AccessKey, err = p.secret("Access key"); err != nil {
		return fmt.Errorf("read access key: %w", err)
	}
	if account.SecretKey, err = p.secret("Secret key"); err != nil {
		return fmt.Errorf("read secret key: %w", err)
	}
	if err := account.Validate(); err != nil {
		return err
	}

	if checkKeys {
		if err := verifyKeys(account); err != nil {
			return fmt.Errorf("archive.org rejected the keys: %w", err)
		}
		ui.PrintSuccess("Keys accepted by archive.org")
	}

	if err := manager.Store(account); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Saved profile %s (%s)", profile, auth.SanitizeAccount(account).AccessKey))

	run := "legmirror run rajyasabha"
	if profile != auth.DefaultProfile {
		run += " --account " + profile
	}
	fmt.Fprintf(p.out, "\nStart harvesting:\n  $ %s\n", run)
	return nil
}

// verifyKeys asks archive.org whether the keys may upload.
func verifyKeys(account *auth.Account) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	opts := archive.OptionsFromConfig(cfg.Archive)
	opts.DryRun = false
	opts.Credentials = archive.Credentials{AccessKey: account.AccessKey, SecretKey: account.SecretKey}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return archive.New(opts).Verify(ctx)
}

func logout(p *prompt, manager *auth.Manager) error {
	accounts, err := manager.List()
	if err != nil {
		return err
	}
	switch len(accounts) {
	case 0:
		ui.PrintWarning("No stored profiles")
		return nil
	case 1:
		if p.yes(fmt.Sprintf("Remove profile %q?", accounts[0].Name)) {
			return removeProfile(manager, accounts[0].Name)
		}
		return nil
	}

	options := make([]string, 0, len(accounts)+1)
	for _, a := range accounts {
		options = append(options, a.Name)
	}
	options = append(options, "Remove all profiles")

	i, err := p.choose("Select the profile to remove:", options)
	switch {
	case err != nil:
		return err
	case i < 0:
		return nil
	case i < len(accounts):
		return removeProfile(manager, accounts[i].Name)
	}

	if !p.yes("Remove ALL stored profiles?") {
		return nil
	}
	if err := manager.DeleteAll(); err != nil {
		return fmt.Errorf("remove profiles: %w", err)
	}
	ui.PrintSuccess("All profiles removed")
	return nil
}

func removeProfile(manager *auth.Manager, name string) error {
	err := manager.Delete(name)
	if errors.Is(err, auth.ErrCredentialsNotFound) {
		ui.PrintWarning("No profile named " + name)
		return nil
	}
	if err != nil {
		return err
	}
	ui.PrintSuccess("Profile removed: " + name)
	return nil
}
