package orchestrator

import (
	"fmt"

	"github.com/manimchat/manimchat/internal/backend"
	"github.com/manimchat/manimchat/internal/conversation"
)

// AnimationPlaceholder stands in for a rendered video in the context sent
// back to the model.
func AnimationPlaceholder(sceneName string) string {
	return fmt.Sprintf("[Generated animation: %s]", sceneName)
}

// BuildPayload converts prior turns plus a new user message into the
// ordered role/content list for one backend call. Pending and failed
// assistant turns are skipped; the new message is always last.
func BuildPayload(turns []conversation.Turn, text string) []backend.Message {
	out := make([]backend.Message, 0, len(turns)+1)
	for _, t := range turns {
		switch {
		case t.IsUser():
			out = append(out, backend.Message{Role: backend.RoleUser, Content: t.Text})
		case t.IsResolved() && t.Result != nil:
			out = append(out, backend.Message{Role: backend.RoleAssistant, Content: resultContent(*t.Result)})
		}
	}
	return append(out, backend.Message{Role: backend.RoleUser, Content: text})
}

func resultContent(r conversation.Result) string {
	if r.Kind == conversation.ResultAnimation {
		return AnimationPlaceholder(r.SceneName)
	}
	return r.Content
}

// resultFromReply maps a validated reply onto a turn result.
func resultFromReply(r backend.Reply) (conversation.Result, error) {
	switch r.Type {
	case backend.ReplyText:
		return conversation.TextResult(r.Content), nil
	case backend.ReplyAnimation:
		return conversation.AnimationResult(r.VideoURL, r.SceneName), nil
	}
	return conversation.Result{}, &backend.MalformedResponseError{Reason: fmt.Sprintf("unknown type tag %q", r.Type)}
}
