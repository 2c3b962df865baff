package tui

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/manimchat/manimchat/internal/conversation"
)

// TuiIO implements the IO interface by sending messages to a bubbletea Program.
// All methods are safe to call from any goroutine.
type TuiIO struct {
	program *tea.Program
	inputCh chan inputResult
	done    chan struct{} // closed when the program exits
}

var _ IO = (*TuiIO)(nil)

// send is a nil-safe helper that sends a message to the bubbletea program.
func (t *TuiIO) send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TuiIO) ReadInput() (string, error) {
	if t.program == nil {
		return "", io.EOF
	}
	// Tell the TUI to activate the text input
	t.program.Send(readInputMsg{})

	// Block until the user submits or the TUI exits
	select {
	case res := <-t.inputCh:
		if res.err != nil {
			return "", io.EOF
		}
		return res.text, nil
	case <-t.done:
		return "", io.EOF
	}
}

func (t *TuiIO) UserMessage(text string) {
	t.send(userMsg{text: text})
}

func (t *TuiIO) Pending() {
	t.send(pendingMsg{})
}

func (t *TuiIO) TurnSettled(turn conversation.Turn) {
	t.send(settledMsg{turn: turn})
}

func (t *TuiIO) SystemMessage(text string) {
	t.send(systemMsg{text: text})
}

func (t *TuiIO) Error(msg string) {
	t.send(errorMsg{text: msg})
}

func (t *TuiIO) SetSession(label string) {
	t.send(sessionMsg{label: label})
}

// shutdownGrace bounds how long RunTUI waits for the chat loop after the
// program has exited.
const shutdownGrace = 3 * time.Second

// RunTUI starts the bubbletea program and runs fn against it on a separate
// goroutine. Leaving the UI cancels ctx; fn returning closes the UI.
func RunTUI(cfg TUIConfig, fn func(ui IO, ctx context.Context) error) error {
	inputCh := make(chan inputResult, 1)
	p := tea.NewProgram(NewModel(inputCh, cfg))
	ui := &TuiIO{program: p, inputCh: inputCh, done: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		err := fn(ui, ctx)
		p.Send(loopDoneMsg{err: err})
		errCh <- err
	}()

	_, runErr := p.Run()
	close(ui.done)
	cancel()
	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(shutdownGrace):
		return nil
	}
}
