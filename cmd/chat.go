package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/manimchat/manimchat/internal/backend"
	"github.com/manimchat/manimchat/internal/chat"
	"github.com/manimchat/manimchat/internal/config"
	"github.com/manimchat/manimchat/internal/conversation"
	"github.com/manimchat/manimchat/internal/orchestrator"
	"github.com/manimchat/manimchat/internal/session"
	"github.com/manimchat/manimchat/internal/tui"
)

// runChat starts the interactive chat against the generation backend.
func runChat() error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg, useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	kv, err := openHistory(cfg, log)
	if err != nil {
		return err
	}
	defer kv.Close()

	hist := session.NewHistory(kv, session.HistoryOptions{
		TitleLength: cfg.Limits.TitleLength,
		Logger:      log,
	})
	stored := hist.Load(context.Background())
	log.WithField("sessions", len(stored)).Info("history loaded")

	client := backend.NewClient(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(log),
	)
	ids := turnIDs(stored)

	run := func(ui tui.IO, ctx context.Context) error {
		loop := chat.New(ui, chat.Options{
			WarnOnSaveError: cfg.History.WarnOnSaveError,
			Logger:          log,
		})
		orch := orchestrator.New(client,
			orchestrator.WithObserver(loop),
			orchestrator.WithLogger(log),
		)
		mgr := orchestrator.NewManager(orch, hist, orchestrator.ManagerOptions{
			IDs:              ids,
			MaxMessageLength: cfg.Limits.MaxMessageLength,
			Logger:           log,
		})
		return loop.Run(ctx, mgr)
	}

	if useTUI {
		return tui.RunTUI(tui.TUIConfig{
			Version:     displayVersion(),
			Backend:     client.BaseURL(),
			ShowWelcome: true,
		}, run)
	}
	return runPlain(cfg, client.BaseURL(), log, run)
}

func runPlain(cfg *config.Config, videoBase string, log logrus.FieldLogger, run func(tui.IO, context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	style := "notty"
	if term.IsTerminal(int(os.Stdout.Fd())) {
		style = "dark"
	}
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	ui := tui.NewPlainIO(tui.PlainOptions{
		VideoBase: videoBase,
		Markdown:  style,
		Width:     width,
	})
	fmt.Printf("manimchat %s  backend: %s  (/help for commands)\n", displayVersion(), videoBase)
	log.WithField("backend", cfg.Backend.URL).Debug("plain chat started")
	return run(ui, ctx)
}

// turnIDs returns an allocator that continues past every stored turn id, so
// turns created now never collide with turns loaded later.
func turnIDs(stored []session.Session) *conversation.IDAllocator {
	ids := conversation.NewIDAllocator(1)
	for _, s := range stored {
		for _, t := range s.Messages {
			ids.Advance(t.ID)
		}
	}
	return ids
}
