package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

var configShowRaw bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configShowCmd.Flags().BoolVar(&configShowRaw, "raw", false, "Print the file as stored, session token included")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage forumchat configuration",
	Long:  "View or modify the forumchat configuration stored in ~/.forumchat/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if configShowRaw {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "No configuration file found.")
					return nil
				}
				return fmt.Errorf("cannot read config file: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Config file:   %s\n", path)
		fmt.Fprintf(out, "Server:        %s\n", valueOrDefault(cfg.Default.BaseURL, "(default)"))
		fmt.Fprintf(out, "Log level:     %s\n", valueOrDefault(cfg.Default.LogLevel, "warn"))
		fmt.Fprintf(out, "Username:      %s\n", valueOrDefault(cfg.Auth.Username, "(not logged in)"))
		fmt.Fprintf(out, "Session token: %s\n", valueOrDefault(maskKey(cfg.Auth.SessionToken), "(none)"))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value using dot notation.\n" +
		"Keys: default.base_url, default.log_level, auth.session_token, auth.username\n" +
		"Example: forumchat config set default.base_url http://localhost:8080",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		if key == "auth.session_token" {
			value = maskKey(value)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

// ============================================================================
// Value checks
// ============================================================================

var validate = validator.New()

// logLevels are the names slog accepts for --log-level and default.log_level.
var logLevels = []string{"debug", "info", "warn", "error"}

// normalizeBaseURL accepts an http or https server URL and drops a trailing slash.
func normalizeBaseURL(value string) (string, error) {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if err := validate.Var(value, "required,http_url"); err != nil {
		return "", fmt.Errorf("invalid base_url %q: must be an http:// or https:// URL", value)
	}
	return value, nil
}

// normalizeLogLevel lowercases a level name and checks it is known.
func normalizeLogLevel(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if err := validate.Var(value, "oneof="+strings.Join(logLevels, " ")); err != nil {
		return "", fmt.Errorf("invalid log_level %q (valid: %s)", value, strings.Join(logLevels, ", "))
	}
	return value, nil
}
