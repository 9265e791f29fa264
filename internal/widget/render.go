// ABOUTME: Markdown rendering for assistant replies
// ABOUTME: Converts reply text to HTML with goldmark, dropping raw HTML

package widget

import (
	"bytes"
	"html"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/2389/chatia-gateway/internal/session"
)

// messageView is a message as sent to the widget.
type messageView struct {
	session.Message
	HTML template.HTML `json:"html,omitempty"`
}

// stateView is a snapshot as sent to the widget.
type stateView struct {
	SessionID string        `json:"session_id"`
	Messages  []messageView `json:"messages"`
	Pending   bool          `json:"pending"`
	PanelOpen bool          `json:"panel_open"`
	Unread    bool          `json:"unread"`
	Draft     string        `json:"draft"`
	Version   uint64        `json:"version"`
}

// newMarkdown builds the converter. Without goldhtml.WithUnsafe, raw HTML
// and javascript: links are replaced rather than emitted.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(goldhtml.WithHardWraps()),
	)
}

// renderMarkdown converts text, falling back to an escaped paragraph.
func (h *Handler) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(text), &buf); err != nil {
		h.logger.Error("failed to convert markdown", "error", err)
		return template.HTML("<p>" + html.EscapeString(text) + "</p>")
	}
	return template.HTML(buf.String())
}

func (h *Handler) view(snap *session.Snapshot) stateView {
	v := stateView{
		SessionID: snap.SessionID,
		Messages:  make([]messageView, 0, len(snap.Messages)),
		Pending:   snap.Pending,
		PanelOpen: snap.PanelOpen,
		Unread:    snap.Unread,
		Draft:     snap.Draft,
		Version:   snap.Version,
	}
	for _, m := range snap.Messages {
		mv := messageView{Message: m}
		if m.Role == session.RoleAssistant {
			mv.HTML = h.renderMarkdown(m.Text)
		}
		v.Messages = append(v.Messages, mv)
	}
	return v
}
