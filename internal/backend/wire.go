// Package backend defines the wire protocol between the chat client and the
// Generation Backend, and an HTTP client that speaks it.
package backend

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ── Request shapes ───────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role/content entry of the conversation payload.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries the conversation so far plus the new message.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// PromptRequest is the legacy single-shot shape with no history.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// DecodeRequest accepts either request shape and normalizes it to a list
// of messages. A bare prompt becomes a single user message.
func DecodeRequest(data []byte) ([]Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}

	switch {
	case gjson.GetBytes(data, "messages").Exists():
		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		if len(req.Messages) == 0 {
			return nil, fmt.Errorf("messages must not be empty")
		}
		for i, m := range req.Messages {
			if m.Role != RoleUser && m.Role != RoleAssistant {
				return nil, fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
			}
		}
		return req.Messages, nil

	case gjson.GetBytes(data, "prompt").Exists():
		prompt := gjson.GetBytes(data, "prompt")
		if prompt.Type != gjson.String || prompt.Str == "" {
			return nil, fmt.Errorf("prompt must be a non-empty string")
		}
		return []Message{{Role: RoleUser, Content: prompt.Str}}, nil
	}
	return nil, fmt.Errorf("request must carry either messages or prompt")
}

// ── Response shapes ──────────────────────────────────────────────────────────

// ReplyType is the explicit discriminator on a successful response.
type ReplyType string

const (
	ReplyText      ReplyType = "text"
	ReplyAnimation ReplyType = "animation"
)

// Reply is the tagged union returned on success.
type Reply struct {
	Type ReplyType `json:"type"`

	// text
	Content string `json:"content,omitempty"`

	// animation
	VideoURL  string `json:"video_url,omitempty"`
	SceneName string `json:"scene_name,omitempty"`
}

// TextReply builds a text variant.
func TextReply(content string) Reply {
	return Reply{Type: ReplyText, Content: content}
}

// AnimationReply builds an animation variant.
func AnimationReply(videoURL, sceneName string) Reply {
	return Reply{Type: ReplyAnimation, VideoURL: videoURL, SceneName: sceneName}
}

// ErrorBody is returned with every non-success status.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// DecodeReply validates the discriminator before decoding the variant.
// An untagged body with a string video_url is the older animation shape.
// Any other missing or unknown tag, or a variant missing its fields, is a
// *MalformedResponseError.
func DecodeReply(data []byte) (Reply, error) {
	if !gjson.ValidBytes(data) {
		return Reply{}, &MalformedResponseError{Reason: "body is not valid JSON"}
	}
	tag := gjson.GetBytes(data, "type")
	if !tag.Exists() {
		video := gjson.GetBytes(data, "video_url")
		if video.Type == gjson.String && video.String() != "" {
			return AnimationReply(video.String(), gjson.GetBytes(data, "scene_name").String()), nil
		}
		return Reply{}, &MalformedResponseError{Reason: "missing type tag"}
	}

	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		return Reply{}, &MalformedResponseError{Reason: err.Error()}
	}

	switch r.Type {
	case ReplyText:
		if !gjson.GetBytes(data, "content").Exists() {
			return Reply{}, &MalformedResponseError{Reason: "text reply without content"}
		}
	case ReplyAnimation:
		if r.VideoURL == "" {
			return Reply{}, &MalformedResponseError{Reason: "animation reply without video_url"}
		}
	default:
		return Reply{}, &MalformedResponseError{Reason: fmt.Sprintf("unknown type tag %q", tag.String())}
	}
	return r, nil
}
