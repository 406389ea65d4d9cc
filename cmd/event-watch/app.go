package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"event-chat-service/internal/cache"
	"event-chat-service/internal/client"
	"event-chat-service/internal/models"
)

type settings struct {
	Server     string
	Token      string
	Attempts   uint64
	RetryDelay time.Duration
	LogLevel   slog.Level
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "event-watch",
		Short:        "Follow event chats over the push channel",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("server", "http://localhost:8083", "event chat service base URL")
	flags.String("token", "", "bearer token")
	flags.Uint64("attempts", 5, "connection attempts before giving up")
	flags.Duration("retry-delay", time.Second, "initial delay between connection attempts")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	bindFlags(v, flags)

	cmd.AddCommand(
		newChatCommand(v),
		newSendCommand(v),
		newEventsCommand(v),
	)
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(flag *pflag.Flag) {
		_ = v.BindPFlag(flag.Name, flag)
	})
	v.SetEnvPrefix("EVENTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		Server:     strings.TrimSpace(v.GetString("server")),
		Token:      strings.TrimSpace(v.GetString("token")),
		Attempts:   v.GetUint64("attempts"),
		RetryDelay: v.GetDuration("retry-delay"),
	}
	if s.Server == "" {
		return settings{}, fmt.Errorf("--server is required")
	}
	if s.Token == "" {
		return settings{}, fmt.Errorf("--token or EVENTWATCH_TOKEN is required")
	}
	if err := s.LogLevel.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return settings{}, fmt.Errorf("invalid log level: %w", err)
	}
	return s, nil
}

func (s settings) logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: s.LogLevel}))
}

func (s settings) supervisor(logger *slog.Logger) *client.Supervisor {
	opts := client.Options{
		MaxAttempts:     s.Attempts,
		InitialInterval: s.RetryDelay,
		Logger:          logger,
	}
	return client.NewSupervisor(opts, client.NewWebSocketTransport(s.Server), client.NewPollTransport(s.Server))
}

func parseEventArg(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid event id %q", arg)
	}
	return id, nil
}

func newChatCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "chat EVENT_ID",
		Short: "Print an event chat and follow new messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseEventArg(args[0])
			if err != nil {
				return err
			}
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			logger := s.logger(cmd.ErrOrStderr())

			sup := s.supervisor(logger)
			conn, err := sup.Acquire(ctx, s.Token)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Logout(context.WithoutCancel(ctx)) }()

			store := cache.NewStore()
			unbind := client.Bind(conn, store, logger)
			defer unbind()

			stopWatch := conn.Watch(func(state client.State) {
				fmt.Fprintf(out, "-- %s\n", state)
			})
			defer stopWatch()

			printed := map[int]bool{}
			printNew := func() {
				current := map[int]bool{}
				for _, m := range store.Messages(eventID) {
					current[m.ID] = true
					if !printed[m.ID] {
						printed[m.ID] = true
						printMessage(out, m)
					}
				}
				for id := range printed {
					if !current[id] {
						delete(printed, id)
						fmt.Fprintf(out, "-- message %d deleted\n", id)
					}
				}
			}

			changes := make(chan struct{}, 1)
			gone := make(chan struct{})
			var goneOnce sync.Once
			cancel := store.Subscribe(func(ch cache.Change) {
				if ch.EventID != 0 && ch.EventID != eventID {
					return
				}
				if ch.Type == models.FrameEventDeleted {
					goneOnce.Do(func() { close(gone) })
					return
				}
				select {
				case changes <- struct{}{}:
				default:
				}
			})
			defer cancel()

			api := client.NewAPI(s.Server, s.Token, nil)
			view, err := client.OpenChat(ctx, api, conn, store, eventID, logger)
			if err != nil {
				return err
			}
			defer func() { _ = view.Close(context.WithoutCancel(ctx)) }()
			printNew()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-conn.Done():
					return conn.Err()
				case <-gone:
					fmt.Fprintf(out, "-- event %d was deleted\n", eventID)
					return nil
				case <-changes:
					printNew()
				}
			}
		},
	}
}

func newSendCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "send EVENT_ID TEXT...",
		Short: "Post a message to an event chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseEventArg(args[0])
			if err != nil {
				return err
			}
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			api := client.NewAPI(s.Server, s.Token, nil)
			msg, err := api.CreateMessage(cmd.Context(), eventID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printMessage(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newEventsCommand(v *viper.Viper) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "events USER_ID",
		Short: "List the events a user created or attends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseEventArg(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			k := models.UserEventsKind(kind)
			if !k.Valid() {
				return fmt.Errorf("--type must be created or attending")
			}
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			api := client.NewAPI(s.Server, s.Token, nil)
			events, err := api.FetchUserEvents(cmd.Context(), userID, k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ev := range events {
				fmt.Fprintf(out, "%d\t%s\t%s\t%d participants\n", ev.ID, ev.EventDate.Format(time.RFC3339), ev.Title, len(ev.Participants))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "type", string(models.UserEventsCreated), "list kind: created or attending")
	return cmd
}

func printMessage(w io.Writer, m models.Message) {
	author := "unknown"
	if m.User != nil {
		author = m.User.DisplayName()
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), author, m.Message)
}
