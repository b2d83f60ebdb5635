package main

import (
	"context"
	"fmt"
	"os"
	"time"

	forumchat "github.com/RealTimeForum/forum/sdk/golang"
	"github.com/spf13/cobra"
)

// passwordEnv supplies the password when --password is not given.
const passwordEnv = "FORUMCHAT_PASSWORD"

var loginPassword string

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password (default $"+passwordEnv+")")
}

var loginCmd = &cobra.Command{
	Use:   "login <nickname-or-email>",
	Short: "Log in and store the session in ~/.forumchat/config.toml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		password := loginPassword
		if password == "" {
			password = os.Getenv(passwordEnv)
		}

		cfg.Auth = ConfigAuth{}
		client, err := newClient(cfg, false)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		me, err := client.Login(ctx, &forumchat.LoginOptions{Identifier: args[0], Password: password})
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		cfg.Auth.SessionToken = client.SessionToken()
		cfg.Auth.Username = me.Username
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", me.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored cookie",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Auth.SessionToken == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
			return nil
		}

		client, err := newClient(cfg, true)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.Logout(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Server logout failed: %v\n", err)
		}

		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}
