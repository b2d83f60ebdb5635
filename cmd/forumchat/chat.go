package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	forumchat "github.com/RealTimeForum/forum/sdk/golang"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

const chatHelp = `Commands:
  /open <peer>  switch conversation
  /close        close the conversation
  /scroll       load older messages
  /who          list online users and unread counts
  /quit         leave
Anything else is sent to the open conversation.`

var errQuit = errors.New("quit")

var chatCmd = &cobra.Command{
	Use:   "chat [peer]",
	Short: "Chat interactively with online users",
	Long:  "Connect to the chat channel and read commands and messages from stdin.\n\n" + chatHelp,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client, err := newClient(cfg, true)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		me, err := client.Logged(ctx)
		if err != nil {
			return fmt.Errorf("session check failed, log in again: %w", err)
		}

		view := newTerminalView(cmd.OutOrStdout())
		session, err := client.NewSession(&forumchat.SessionConfig{
			User:   me.Username,
			View:   view,
			Logger: newLogger(cfg),
		})
		if err != nil {
			return err
		}
		if err := session.Start(ctx); err != nil {
			return fmt.Errorf("chat unavailable: %w", err)
		}
		defer session.Logout()

		view.printf("Logged in as %s. Type /help for commands.", me.Username)
		if len(args) == 1 {
			if err := session.Open(ctx, args[0]); err != nil {
				view.printf("open failed: %v", err)
			}
		}

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return errQuit
					}
					if err := handleLine(gctx, session, view, line); err != nil {
						return err
					}
				}
			}
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-view.loggedOut:
				return forumchat.ErrAuthExpired
			}
		})

		err = g.Wait()
		if errors.Is(err, errQuit) {
			return nil
		}
		return err
	},
}

func handleLine(ctx context.Context, s *forumchat.Session, view *terminalView, line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "":
		return nil
	case "/quit":
		return errQuit
	case "/help":
		view.printf("%s", chatHelp)
	case "/open":
		if err := s.Open(ctx, strings.TrimSpace(arg)); err != nil {
			view.printf("open failed: %v", err)
		}
	case "/close":
		s.Close()
	case "/scroll":
		n, err := s.LoadOlder(ctx)
		switch {
		case err != nil:
			view.printf("load failed: %v", err)
		case n == 0 && s.Exhausted(s.Active()):
			view.printf("(no older messages)")
		}
	case "/who":
		for _, e := range s.Roster() {
			view.printf("  %s (%d unread)", e.Username, s.Badge(e.Username))
		}
	default:
		if s.Active() == "" {
			view.printf("No open conversation. Use /open <peer>.")
			return nil
		}
		s.Input(line)
		if err := s.Send(ctx, line); err != nil {
			if errors.Is(err, forumchat.ErrAuthExpired) {
				return err
			}
			view.printf("send failed: %v", err)
		}
	}
	return nil
}
