package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/manimchat/manimchat/internal/session"
	"github.com/manimchat/manimchat/internal/tui"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage saved chat sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withHistory(func(h *session.History) error {
					return listSessions(cmd.OutOrStdout(), h.Sessions())
				})
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a saved session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid session id %q", args[0])
				}
				return withHistory(func(h *session.History) error {
					s, ok := h.Get(id)
					if !ok {
						return fmt.Errorf("no session with id %d", id)
					}
					showSession(cmd.OutOrStdout(), s)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a saved session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid session id %q", args[0])
				}
				return withHistory(func(h *session.History) error {
					if _, ok := h.Get(id); !ok {
						return fmt.Errorf("no session with id %d", id)
					}
					if err := h.Remove(context.Background(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %d.\n", id)
					return nil
				})
			},
		},
	)
	return cmd
}

// withHistory opens and loads the configured history for fn.
func withHistory(fn func(h *session.History) error) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	kv, err := openHistory(cfg, log)
	if err != nil {
		return err
	}
	defer kv.Close()

	h := session.NewHistory(kv, session.HistoryOptions{TitleLength: cfg.Limits.TitleLength, Logger: log})
	h.Load(context.Background())
	return fn(h)
}

func listSessions(w io.Writer, sessions []session.Session) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No saved sessions.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", s.ID, s.Title, len(s.Messages),
			time.UnixMilli(s.Timestamp).Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func showSession(w io.Writer, s session.Session) {
	fmt.Fprintf(w, "#%d %s\n", s.ID, s.Title)
	ui := tui.NewPlainIO(tui.PlainOptions{Out: w})
	for _, t := range s.Messages {
		if t.IsUser() {
			fmt.Fprintf(w, "\nYou: %s\n", t.Text)
			continue
		}
		ui.TurnSettled(t)
	}
}
