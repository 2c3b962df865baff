// Package chat runs the interactive loop: it reads user input, routes slash
// commands to the session lifecycle and sends everything else to the
// generation backend.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manimchat/manimchat/internal/conversation"
	"github.com/manimchat/manimchat/internal/logging"
	"github.com/manimchat/manimchat/internal/orchestrator"
	"github.com/manimchat/manimchat/internal/session"
	"github.com/manimchat/manimchat/internal/tui"
)

// Options configures a Loop.
type Options struct {
	// WarnOnSaveError shows history write failures in the chat. They are
	// always logged.
	WarnOnSaveError bool
	Logger          logrus.FieldLogger
}

// Loop drives one chat session against a Manager. It also implements
// orchestrator.Observer, so pass it to orchestrator.WithObserver.
type Loop struct {
	ui   tui.IO
	opts Options
	log  logrus.FieldLogger
	mgr  *orchestrator.Manager

	wg sync.WaitGroup

	mu       sync.Mutex
	accepted func() // signals that the current send appended its turns
}

var _ orchestrator.Observer = (*Loop)(nil)

// New creates a Loop that talks to the user through ui.
func New(ui tui.IO, opts Options) *Loop {
	l := &Loop{ui: ui, opts: opts, log: opts.Logger}
	if l.log == nil {
		l.log = logging.Discard()
	}
	return l
}

// Run reads input until the user quits or input ends, then archives the
// active conversation. Replies still in flight are awaited first.
func (l *Loop) Run(ctx context.Context, mgr *orchestrator.Manager) error {
	l.mgr = mgr
	l.ui.SetSession(l.sessionLabel())

	for {
		line, err := l.ui.ReadInput()
		if errors.Is(err, io.EOF) {
			return l.shutdown(ctx)
		}
		if err != nil {
			l.wg.Wait()
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := l.command(ctx, line); quit {
				return l.shutdown(ctx)
			}
			continue
		}
		l.send(ctx, line)
	}
}

// send dispatches text on its own goroutine and returns once the message
// has been appended to the active conversation, or rejected. Commands typed
// afterwards therefore always see the message.
func (l *Loop) send(ctx context.Context, text string) {
	done := make(chan struct{})
	var once sync.Once
	signal := func() { once.Do(func() { close(done) }) }

	l.mu.Lock()
	l.accepted = signal
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer signal()
		out, err := l.mgr.Send(ctx, text)
		l.report(out, err)
	}()
	<-done
}

func (l *Loop) report(out orchestrator.Outcome, err error) {
	var verr *conversation.ValidationError
	var serr *session.SaveError
	switch {
	case err == nil:
		if out.Failed() {
			l.log.WithError(out.Err).WithField("conversation", out.ConversationKey).Debug("reply failed")
		}
	case errors.Is(err, orchestrator.ErrBusy):
		l.ui.Error("still waiting for the previous reply")
	case errors.As(err, &verr):
		l.ui.Error(verr.Error())
	case errors.As(err, &serr):
		l.saveFailed(serr)
	default:
		l.ui.Error(err.Error())
	}
}

func (l *Loop) saveFailed(err error) {
	l.log.WithError(err).Warn("history not saved")
	if l.opts.WarnOnSaveError {
		l.ui.Error(fmt.Sprintf("could not save chat history: %v", err))
	}
}

// ---------- orchestrator.Observer ----------

func (l *Loop) TurnAppended(key string, t conversation.Turn) {
	if !l.isActive(key) {
		return
	}
	if t.IsUser() {
		l.ui.UserMessage(t.Text)
		return
	}
	if t.IsPending() {
		l.ui.Pending()
		l.mu.Lock()
		signal := l.accepted
		l.accepted = nil
		l.mu.Unlock()
		if signal != nil {
			signal()
		}
	}
}

func (l *Loop) TurnSettled(key string, t conversation.Turn) {
	if l.isActive(key) {
		l.ui.TurnSettled(t)
		return
	}
	if t.IsFailed() {
		l.ui.SystemMessage("A reply for an earlier chat failed: " + t.Error)
		return
	}
	l.ui.SystemMessage("A reply for an earlier chat arrived and was saved to its session.")
}

func (l *Loop) isActive(key string) bool {
	return l.mgr != nil && l.mgr.Active().Key() == key
}

// ---------- slash commands ----------

// command runs a slash command and reports whether the loop should stop.
func (l *Loop) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		l.help()
	case "/new":
		if err := l.mgr.StartNewSession(ctx); err != nil {
			l.transitionFailed(err)
			return false
		}
		l.ui.SystemMessage("Started a new chat.")
		l.ui.SetSession(l.sessionLabel())
	case "/sessions":
		l.listSessions()
	case "/switch":
		id, ok := l.sessionArg(name, args)
		if !ok {
			return false
		}
		if err := l.mgr.SwitchToSession(ctx, id); err != nil {
			l.transitionFailed(err)
			return false
		}
		l.ui.SetSession(l.sessionLabel())
		l.ui.SystemMessage("Switched to: " + l.sessionLabel())
		l.replay()
	case "/delete":
		id, ok := l.sessionArg(name, args)
		if !ok {
			return false
		}
		if err := l.mgr.DeleteSession(ctx, id); err != nil {
			l.transitionFailed(err)
			return false
		}
		l.ui.SystemMessage(fmt.Sprintf("Deleted session %d.", id))
		l.ui.SetSession(l.sessionLabel())
		if l.mgr.Busy() {
			l.ui.Pending()
		}
	case "/history":
		if l.mgr.Active().Len() == 0 {
			l.ui.SystemMessage("This chat is empty.")
			return false
		}
		l.replay()
	case "/clear":
		l.mgr.ClearActive()
		l.ui.SystemMessage("Chat cleared.")
		l.ui.SetSession(l.sessionLabel())
	default:
		l.ui.Error(fmt.Sprintf("unknown command %s (type /help)", name))
	}
	return false
}

func (l *Loop) transitionFailed(err error) {
	var serr *session.SaveError
	switch {
	case errors.Is(err, orchestrator.ErrUnknownSession), errors.Is(err, orchestrator.ErrSessionBusy):
		l.ui.Error(err.Error())
	case errors.As(err, &serr):
		l.saveFailed(serr)
		if !l.opts.WarnOnSaveError {
			l.ui.Error("could not save this chat; it is still open")
		}
	default:
		l.ui.Error(err.Error())
	}
}

func (l *Loop) sessionArg(cmd string, args []string) (int64, bool) {
	if len(args) != 1 {
		l.ui.Error(fmt.Sprintf("usage: %s <id>", cmd))
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		l.ui.Error(fmt.Sprintf("invalid session id %q", args[0]))
		return 0, false
	}
	return id, true
}

func (l *Loop) help() {
	var b strings.Builder
	b.WriteString("Describe a concept to get an animation or an explanation. Commands:")
	for _, it := range tui.BuiltinSlashCommands() {
		fmt.Fprintf(&b, "\n  %-10s %s", it.Name, it.Desc)
	}
	l.ui.SystemMessage(b.String())
}

func (l *Loop) listSessions() {
	sessions := l.mgr.Sessions()
	if len(sessions) == 0 {
		l.ui.SystemMessage("No saved sessions.")
		return
	}
	active, hasActive := l.mgr.ActiveSessionID()
	var b strings.Builder
	b.WriteString("Saved sessions:")
	for _, s := range sessions {
		mark := " "
		if hasActive && s.ID == active {
			mark = "*"
		}
		fmt.Fprintf(&b, "\n %s #%d  %s  (%d messages, %s)", mark, s.ID, s.Title,
			len(s.Messages), time.UnixMilli(s.Timestamp).Format("2006-01-02 15:04"))
	}
	l.ui.SystemMessage(b.String())
}

// replay shows the active conversation's turns.
func (l *Loop) replay() {
	for _, t := range l.mgr.Active().Turns() {
		switch {
		case t.IsUser():
			l.ui.SystemMessage("You: " + t.Text)
		case t.IsPending():
			l.ui.SystemMessage("(reply pending)")
		default:
			l.ui.TurnSettled(t)
		}
	}
}

func (l *Loop) sessionLabel() string {
	id, ok := l.mgr.ActiveSessionID()
	if !ok {
		return "new chat"
	}
	for _, s := range l.mgr.Sessions() {
		if s.ID == id {
			return fmt.Sprintf("#%d %s", s.ID, s.Title)
		}
	}
	return "new chat"
}

// shutdown waits for outstanding replies and archives the active chat.
func (l *Loop) shutdown(ctx context.Context) error {
	l.wg.Wait()
	if err := l.mgr.StartNewSession(context.WithoutCancel(ctx)); err != nil {
		l.log.WithError(err).Warn("could not archive chat on exit")
		return fmt.Errorf("save chat on exit: %w", err)
	}
	return nil
}
