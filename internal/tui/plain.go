package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/manimchat/manimchat/internal/conversation"
)

// PlainOptions configures a PlainIO. Zero values read stdin and write stdout.
type PlainOptions struct {
	In  io.Reader
	Out io.Writer
	// VideoBase is prepended to relative video paths.
	VideoBase string
	// Markdown selects a glamour style ("dark", "light", "notty").
	// Empty prints Markdown as is.
	Markdown string
	Width    int
}

// PlainIO implements IO with line-oriented terminal output. It is used
// when stdin is not a terminal or the TUI is disabled.
type PlainIO struct {
	scanner   *bufio.Scanner
	out       io.Writer
	videoBase string
	width     int

	mu sync.Mutex // output may come from the reply goroutine
	md *markdown
}

var _ IO = (*PlainIO)(nil)

// NewPlainIO creates a PlainIO.
func NewPlainIO(opts PlainOptions) *PlainIO {
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	p := &PlainIO{scanner: s, out: out, videoBase: opts.VideoBase, width: opts.Width}
	if opts.Markdown != "" {
		p.md = &markdown{style: opts.Markdown}
	}
	return p
}

func (p *PlainIO) ReadInput() (string, error) {
	p.print("\n> ")
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) UserMessage(_ string) {
	// The user already sees what they typed.
}

func (p *PlainIO) Pending() {
	p.print("… generating\n")
}

func (p *PlainIO) TurnSettled(t conversation.Turn) {
	if t.IsFailed() {
		p.print(FailureText(t) + "\n")
		return
	}
	if t.Result == nil {
		return
	}
	text := ResultMarkdown(*t.Result, p.videoBase)
	if p.md != nil {
		p.mu.Lock()
		text = p.md.render(text, p.width)
		p.mu.Unlock()
	}
	p.print(text + "\n")
}

func (p *PlainIO) SystemMessage(text string) {
	p.print(text + "\n")
}

func (p *PlainIO) Error(msg string) {
	p.print("Error: " + msg + "\n")
}

func (p *PlainIO) SetSession(label string) {
	p.print(fmt.Sprintf("[%s]\n", label))
}

func (p *PlainIO) print(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, s)
}
