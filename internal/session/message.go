// ABOUTME: Message and role types for the conversation log
// ABOUTME: Messages are immutable once appended

package session

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation log.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a copy of a session's state. It shares nothing with the
// controller and may be kept or sent anywhere.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Pending   bool      `json:"pending"`
	PanelOpen bool      `json:"panel_open"`
	Unread    bool      `json:"unread"`
	Draft     string    `json:"draft"`
	Version   uint64    `json:"version"`
}
