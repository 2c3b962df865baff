// Package provider defines the unified interface for the LLM providers the
// generation server can call. Each adapter (openai.go, anthropic.go)
// normalizes the vendor's streaming response into a sequence of Events.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single text message in the conversation history.
type Message struct {
	Role    Role
	Content string
}

// ── Request types ────────────────────────────────────────────────────────────

// ChatRequest is the unified request format sent to a provider.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output from the LLM.
	EventTextDelta EventType = iota

	// EventDone: end of this message turn, includes token usage.
	EventDone

	// EventError: an error occurred.
	EventError
)

// Event is the unified streaming event emitted by a provider.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all LLM providers.
type Provider interface {
	// Chat initiates a streaming conversation.
	// The returned channel emits Events until EventDone or EventError, then closes.
	// The caller must fully consume the channel to avoid goroutine leaks.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai", "deepseek".
	Name() string

	// DefaultModel returns the model used when a request does not name one.
	DefaultModel() string
}

// ErrEmptyCompletion is returned by Collect when the model produced no text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Collect runs req and drains the stream into the full completion text.
func Collect(ctx context.Context, p Provider, req *ChatRequest) (string, *Usage, error) {
	ch, err := p.Chat(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", p.Name(), err)
	}

	var (
		sb     strings.Builder
		usage  *Usage
		runErr error
	)
	for ev := range ch {
		switch ev.Type {
		case EventTextDelta:
			sb.WriteString(ev.TextDelta)
		case EventDone:
			if ev.Usage != nil {
				usage = ev.Usage
			}
		case EventError:
			if runErr == nil {
				runErr = ev.Error
			}
		}
	}
	if runErr != nil {
		return "", usage, fmt.Errorf("%s: %w", p.Name(), runErr)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", usage, ErrEmptyCompletion
	}
	return text, usage, nil
}
