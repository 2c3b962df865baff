package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/manimchat/manimchat/internal/conversation"
)

// FailureMarker prefixes a failed assistant turn.
const FailureMarker = "✗"

// VideoLink resolves a video path served by the backend against base.
// Absolute URLs are returned unchanged.
func VideoLink(base, videoURL string) string {
	if base == "" || strings.Contains(videoURL, "://") {
		return videoURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(videoURL, "/")
}

// ResultMarkdown renders a resolved result as Markdown.
func ResultMarkdown(r conversation.Result, videoBase string) string {
	if r.Kind == conversation.ResultAnimation {
		name := r.SceneName
		if name == "" {
			name = "Animation"
		}
		return fmt.Sprintf("🎬 **%s**\n\n%s", name, VideoLink(videoBase, r.VideoURL))
	}
	return NormalizeMath(r.Content)
}

// FailureText is the inline marker shown for a failed turn.
func FailureText(t conversation.Turn) string {
	return FailureMarker + " " + t.Error
}

// markdown caches a glamour renderer for one wrap width.
type markdown struct {
	style    string
	renderer *glamour.TermRenderer
	width    int
}

func (md *markdown) render(text string, width int) string {
	if width <= 0 {
		width = 80
	}
	wrap := width - 4
	if md.renderer == nil || md.width != wrap {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(md.style),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return text
		}
		md.renderer, md.width = r, wrap
	}
	out, err := md.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
