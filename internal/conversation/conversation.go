package conversation

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultMaxMessageLength bounds user input, in characters.
const DefaultMaxMessageLength = 1000

// Conversation is the active, in-memory ordered log of turns.
// Insertion order is significant: it is the context sent to the backend.
// All methods are safe for concurrent use.
type Conversation struct {
	key    string
	ids    *IDAllocator
	maxLen int

	mu    sync.Mutex
	turns []Turn
}

// New creates an empty conversation. ids may be shared with other
// conversations so identifiers stay unique across a session switch;
// a nil ids gets a private allocator starting at 1. maxLen <= 0 uses
// DefaultMaxMessageLength.
func New(ids *IDAllocator, maxLen int) *Conversation {
	if ids == nil {
		ids = NewIDAllocator(1)
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &Conversation{
		key:    uuid.Must(uuid.NewV7()).String(),
		ids:    ids,
		maxLen: maxLen,
	}
}

// Key uniquely identifies this conversation object for its whole lifetime,
// including after it has been reset and archived.
func (c *Conversation) Key() string { return c.key }

// MaxLength returns the input bound enforced by AppendUser.
func (c *Conversation) MaxLength() int { return c.maxLen }

// Validate trims text and checks it against max (in characters).
// It returns the trimmed text.
func Validate(text string, max int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &ValidationError{Err: ErrEmptyMessage}
	}
	if n := utf8.RuneCountInString(trimmed); max > 0 && n > max {
		return "", &ValidationError{Err: ErrMessageTooLong, Length: n, Max: max}
	}
	return trimmed, nil
}

// AppendUser appends a user turn. Empty or oversized text is rejected
// and the conversation is left untouched.
func (c *Conversation) AppendUser(text string) (Turn, error) {
	trimmed, err := Validate(text, c.maxLen)
	if err != nil {
		return Turn{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	t := Turn{ID: c.ids.Next(), Role: RoleUser, Text: trimmed}
	c.turns = append(c.turns, t)
	return t, nil
}

// AppendPendingAssistant appends an assistant turn in pending status and
// returns its identifier for a later Resolve or Fail.
func (c *Conversation) AppendPendingAssistant() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.ids.Next()
	c.turns = append(c.turns, Turn{ID: id, Role: RoleAssistant, Status: StatusPending})
	return id
}

// Resolve moves a pending assistant turn to resolved and attaches result.
func (c *Conversation) Resolve(id int64, result Result) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("resolve turn %d: %w", id, err)
	}
	return c.settle(id, func(t *Turn) {
		t.Status = StatusResolved
		r := result
		t.Result = &r
	})
}

// Fail moves a pending assistant turn to failed with message.
func (c *Conversation) Fail(id int64, message string) error {
	return c.settle(id, func(t *Turn) {
		t.Status = StatusFailed
		t.Error = message
	})
}

// settle applies fn to the pending assistant turn with the given id.
// A turn leaves pending exactly once.
func (c *Conversation) settle(id int64, fn func(*Turn)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.turns {
		t := &c.turns[i]
		if t.ID != id || !t.IsAssistant() {
			continue
		}
		if t.Status != StatusPending {
			return fmt.Errorf("turn %d is %s: %w", id, t.Status, ErrTurnNotPending)
		}
		fn(t)
		return nil
	}
	return fmt.Errorf("turn %d: %w", id, ErrTurnNotFound)
}

// Reset returns the current turns for archival and empties the conversation.
func (c *Conversation) Reset() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.turns
	c.turns = nil
	return out
}

// Clear empties the conversation without handing the turns to anyone.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.turns = nil
	c.mu.Unlock()
}

// Load replaces the contents with turns, e.g. when switching to a stored
// session. The allocator is advanced past every loaded id.
func (c *Conversation) Load(turns []Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = make([]Turn, 0, len(turns))
	for _, t := range turns {
		c.ids.Advance(t.ID)
		c.turns = append(c.turns, t.clone())
	}
}

// Turns returns a copy of the turns in insertion order.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.clone()
	}
	return out
}

// Turn looks up a single turn by id.
func (c *Conversation) Turn(id int64) (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.turns {
		if t.ID == id {
			return t.clone(), true
		}
	}
	return Turn{}, false
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// HasPending reports whether an assistant reply is still outstanding.
func (c *Conversation) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.turns {
		if t.IsPending() {
			return true
		}
	}
	return false
}
