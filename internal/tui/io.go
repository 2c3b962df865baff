// Package tui is the presentation layer of the chat client: a plain
// line-oriented REPL and a bubbletea terminal UI behind one IO interface.
package tui

import "github.com/manimchat/manimchat/internal/conversation"

// IO abstracts all user interaction for the chat loop.
// Implementations: PlainIO (stdin/stdout), TuiIO (bubbletea).
// Methods other than ReadInput may be called from any goroutine.
type IO interface {
	// ReadInput blocks until the user submits a line.
	// io.EOF means the user is done.
	ReadInput() (string, error)

	// UserMessage echoes an accepted user message.
	UserMessage(text string)

	// Pending shows that an assistant reply is being generated.
	Pending()

	// TurnSettled shows an assistant turn that was resolved or failed.
	TurnSettled(t conversation.Turn)

	SystemMessage(text string)
	Error(msg string)

	// SetSession updates the label of the active session.
	SetSession(label string)
}
