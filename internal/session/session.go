package session

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/manimchat/manimchat/internal/conversation"
)

const (
	// DefaultTitleLength bounds derived session titles, in characters.
	DefaultTitleLength = 30

	// PlaceholderTitle is used when a conversation has no user turn.
	PlaceholderTitle = "New Chat"
)

// Session is a named, timestamped snapshot of a finished conversation.
// Only deletion changes the stored collection once a session is created.
type Session struct {
	ID        int64               `json:"id"`
	Title     string              `json:"title"`
	Messages  []conversation.Turn `json:"messages"`
	Timestamp int64               `json:"timestamp"` // epoch milliseconds
}

// CreatedAt converts the stored timestamp back into a time.Time.
func (s Session) CreatedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// DeriveTitle returns the first user turn's text cut to max characters,
// or PlaceholderTitle when there is no user turn.
func DeriveTitle(turns []conversation.Turn, max int) string {
	if max <= 0 {
		max = DefaultTitleLength
	}
	for _, t := range turns {
		if !t.IsUser() {
			continue
		}
		text := strings.TrimSpace(t.Text)
		if utf8.RuneCountInString(text) <= max {
			return text
		}
		return string([]rune(text)[:max])
	}
	return PlaceholderTitle
}

// Archivable reports whether a conversation snapshot is worth keeping.
// A conversation whose only exchanges are still pending or have failed is
// discarded; at least one resolved assistant turn is required.
func Archivable(turns []conversation.Turn) bool {
	return conversation.HasResolved(turns)
}
