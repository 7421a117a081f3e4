package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/simrelease/simrelease/internal/config"
	"github.com/simrelease/simrelease/internal/console"
	"github.com/simrelease/simrelease/internal/session"
	"github.com/spf13/cobra"
)

// RegisterSettingsCommands adds theme and config.
func RegisterSettingsCommands(root *cobra.Command) {
	root.AddCommand(newThemeCmd())

	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings in ~/.simrelease/config.json",
	}
	cfgCmd.AddCommand(newConfigShowCmd())
	cfgCmd.AddCommand(newConfigSetCmd())
	root.AddCommand(cfgCmd)
}

func newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "theme [light|dark]",
		Short: "Show or set the console color theme",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			store := session.NewStore(engine.Vault)
			if len(args) == 0 {
				theme, _ := console.ParseTheme(store.Theme())
				fmt.Println(theme)
				return nil
			}

			theme, ok := console.ParseTheme(args[0])
			if !ok {
				return fmt.Errorf("unknown theme %q (use light or dark)", args[0])
			}
			if err := store.SetTheme(string(theme)); err != nil {
				return fmt.Errorf("saving theme: %w", err)
			}
			fmt.Printf("Theme set to %s\n", theme)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value. Keys: auth_url, provision_url, log_level,
session_check_interval_minutes, http_timeout_seconds, export_file_name,
state_dir, success_phrases (comma-separated).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Printf("%s updated\n", args[0])
			return nil
		},
	}
}
