package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and session status",
	Long:  "Display the current configuration and check with the server whether the stored session is still valid.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out := cmd.OutOrStdout()

		client, err := newClient(cfg, false)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, "Configuration:")
		fmt.Fprintf(out, "  Base URL:  %s\n", client.BaseURL())
		fmt.Fprintf(out, "  Channel:   %s\n", client.WSURL())
		fmt.Fprintf(out, "  Log level: %s\n", valueOrDefault(cfg.Default.LogLevel, "(default)"))

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Auth:")
		fmt.Fprintf(out, "  Username:  %s\n", valueOrDefault(cfg.Auth.Username, "(not logged in)"))
		if cfg.Auth.SessionToken == "" {
			fmt.Fprintln(out, "  Session:   none")
			return nil
		}
		fmt.Fprintf(out, "  Session:   %s\n", maskKey(cfg.Auth.SessionToken))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Live status:")
		me, err := client.Logged(ctx)
		if err != nil {
			fmt.Fprintf(out, "  Session invalid: %v\n", err)
			return nil
		}
		fmt.Fprintf(out, "  Logged in as %s\n", me.Username)
		return nil
	},
}
