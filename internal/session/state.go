// ABOUTME: Session state value and its named transitions
// ABOUTME: Only the controller goroutine calls these methods

package session

import (
	"strings"
	"time"
)

// Outcome reports what happened to a submit command.
type Outcome int

const (
	// OutcomeAccepted means a request was dispatched.
	OutcomeAccepted Outcome = iota
	// OutcomeIgnoredEmpty means the text was blank.
	OutcomeIgnoredEmpty
	// OutcomeIgnoredPending means another request was still outstanding.
	OutcomeIgnoredPending
	// OutcomeIgnoredDuplicate is reported by callers that deduplicate
	// resent submissions before they reach the controller.
	OutcomeIgnoredDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeIgnoredEmpty:
		return "ignored_empty"
	case OutcomeIgnoredPending:
		return "ignored_pending"
	case OutcomeIgnoredDuplicate:
		return "ignored_duplicate"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// state is owned by exactly one controller goroutine.
type state struct {
	messages  []Message
	pending   bool
	panelOpen bool
	unread    bool
	draft     string
	version   uint64
}

// beginSubmit appends the user message and marks the session pending.
// Blank text and a pending session leave the state untouched.
func (s *state) beginSubmit(text string, now time.Time) Outcome {
	if strings.TrimSpace(text) == "" {
		return OutcomeIgnoredEmpty
	}
	if s.pending {
		return OutcomeIgnoredPending
	}
	s.messages = append(s.messages, Message{Role: RoleUser, Text: text, CreatedAt: now})
	s.draft = ""
	s.pending = true
	s.version++
	return OutcomeAccepted
}

// resolve appends the assistant reply and clears pending.
func (s *state) resolve(text string, now time.Time) {
	s.messages = append(s.messages, Message{Role: RoleAssistant, Text: text, CreatedAt: now})
	if !s.panelOpen {
		s.unread = true
	}
	s.pending = false
	s.version++
}

// setDraft replaces the draft. It reports whether anything changed.
func (s *state) setDraft(text string) bool {
	if s.draft == text {
		return false
	}
	s.draft = text
	s.version++
	return true
}

// togglePanel flips visibility. Opening always acknowledges unread.
func (s *state) togglePanel() {
	s.panelOpen = !s.panelOpen
	if s.panelOpen {
		s.unread = false
	}
	s.version++
}

// closePanel hides the panel. It reports whether anything changed.
func (s *state) closePanel() bool {
	if !s.panelOpen {
		return false
	}
	s.panelOpen = false
	s.version++
	return true
}

func (s *state) snapshot(sessionID string) Snapshot {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		SessionID: sessionID,
		Messages:  msgs,
		Pending:   s.pending,
		PanelOpen: s.panelOpen,
		Unread:    s.unread,
		Draft:     s.draft,
		Version:   s.version,
	}
}
