package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	historyOffset int
	historyJSON   bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of most recent messages to skip")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output raw JSON")
}

var historyCmd = &cobra.Command{
	Use:   "history <peer>",
	Short: "Print one page of the conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client, err := newClient(cfg, true)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		me, err := client.Logged(ctx)
		if err != nil {
			return fmt.Errorf("session check failed: %w", err)
		}
		page, err := client.FetchMessages(ctx, me.Username, args[0], historyOffset)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			b, err := json.MarshalIndent(page, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}

		if len(page) == 0 {
			fmt.Fprintln(out, "No messages found.")
			return nil
		}
		for _, msg := range page {
			fmt.Fprintf(out, "[%s] %s: %s\n", msg.Timestamp.Local().Format(time.DateTime), msg.From, msg.Content)
		}
		return nil
	},
}
