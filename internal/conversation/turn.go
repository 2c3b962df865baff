// Package conversation holds the active chat: an ordered log of user and
// assistant turns plus the lifecycle rules for assistant replies.
package conversation

import "fmt"

// ── Turn types ───────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the lifecycle state of an assistant turn.
// User turns leave it empty.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// ResultKind tags the variant carried by a resolved assistant turn.
type ResultKind string

const (
	ResultAnimation ResultKind = "animation"
	ResultText      ResultKind = "text"
)

// Result is what a resolved assistant turn produced: either a rendered
// animation or a block of Markdown text.
type Result struct {
	Kind ResultKind `json:"kind"`

	// animation
	VideoURL  string `json:"video_url,omitempty"`
	SceneName string `json:"scene_name,omitempty"`

	// text
	Content string `json:"content,omitempty"`
}

// AnimationResult builds an animation variant.
func AnimationResult(videoURL, sceneName string) Result {
	return Result{Kind: ResultAnimation, VideoURL: videoURL, SceneName: sceneName}
}

// TextResult builds a text variant.
func TextResult(content string) Result {
	return Result{Kind: ResultText, Content: content}
}

// Validate reports whether r is a well-formed variant.
func (r Result) Validate() error {
	switch r.Kind {
	case ResultAnimation:
		if r.VideoURL == "" {
			return fmt.Errorf("animation result without video url")
		}
	case ResultText:
	default:
		return fmt.Errorf("unknown result kind %q", r.Kind)
	}
	return nil
}

// Turn is one message unit in a conversation.
type Turn struct {
	ID     int64   `json:"id"`
	Role   Role    `json:"role"`
	Text   string  `json:"text,omitempty"`
	Status Status  `json:"status,omitempty"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

func (t Turn) IsUser() bool      { return t.Role == RoleUser }
func (t Turn) IsAssistant() bool { return t.Role == RoleAssistant }
func (t Turn) IsPending() bool   { return t.IsAssistant() && t.Status == StatusPending }
func (t Turn) IsResolved() bool  { return t.IsAssistant() && t.Status == StatusResolved }
func (t Turn) IsFailed() bool    { return t.IsAssistant() && t.Status == StatusFailed }

// clone returns a deep copy so callers never share the Result pointer.
func (t Turn) clone() Turn {
	if t.Result != nil {
		r := *t.Result
		t.Result = &r
	}
	return t
}

// Completed returns the turns that are no longer waiting on the backend.
// Pending assistant turns are dropped; everything else keeps its order.
func Completed(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.IsPending() {
			continue
		}
		out = append(out, t.clone())
	}
	return out
}

// HasResolved reports whether any assistant turn in turns was resolved.
func HasResolved(turns []Turn) bool {
	for _, t := range turns {
		if t.IsResolved() {
			return true
		}
	}
	return false
}
