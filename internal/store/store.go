// ABOUTME: Ledger interfaces and data types for chatia-gateway persistence
// ABOUTME: Records widget session lifetimes and generation usage, never message text

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Unmount reasons recorded in the session ledger.
const (
	UnmountClient   = "client"   // the widget asked to be unmounted
	UnmountIdle     = "idle"     // the idle sweeper expired it
	UnmountShutdown = "shutdown" // the gateway stopped
)

// WidgetSession is the ledger row for one mounted widget.
type WidgetSession struct {
	ID            string     `json:"id"`
	Origin        string     `json:"origin,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
	MountedAt     time.Time  `json:"mounted_at"`
	UnmountedAt   *time.Time `json:"unmounted_at,omitempty"`
	UnmountReason string     `json:"unmount_reason,omitempty"`
	Submissions   int        `json:"submissions"`
}

// Active reports whether the session has not been unmounted.
func (w *WidgetSession) Active() bool {
	return w.UnmountedAt == nil
}

// GenerationOutcome is how a generation call resolved.
type GenerationOutcome string

const (
	OutcomeReply   GenerationOutcome = "reply"
	OutcomeEmpty   GenerationOutcome = "empty"
	OutcomeFailure GenerationOutcome = "failure"
)

// Generation is the ledger row for one generation call.
type Generation struct {
	ID           string
	SessionID    string
	RequestID    string
	Outcome      GenerationOutcome
	Model        string
	PromptTokens int32
	ReplyTokens  int32
	TotalTokens  int32
	Latency      time.Duration
	CreatedAt    time.Time
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	ActiveOnly bool
	Limit      int // 0 means no limit
}

// UsageFilter narrows GetUsageStats. Nil fields are not applied.
type UsageFilter struct {
	SessionID *string
	Since     *time.Time
	Until     *time.Time
}

// UsageStats aggregates generation rows.
type UsageStats struct {
	Requests     int64   `json:"requests"`
	Replies      int64   `json:"replies"`
	Empty        int64   `json:"empty"`
	Failures     int64   `json:"failures"`
	PromptTokens int64   `json:"prompt_tokens"`
	ReplyTokens  int64   `json:"reply_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// SessionStore records widget session lifetimes.
type SessionStore interface {
	RecordMount(ctx context.Context, session *WidgetSession) error
	RecordUnmount(ctx context.Context, id, reason string, at time.Time) error
	IncrementSubmissions(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*WidgetSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*WidgetSession, error)
}

// UsageStore records generation calls.
type UsageStore interface {
	SaveGeneration(ctx context.Context, gen *Generation) error
	GetSessionGenerations(ctx context.Context, sessionID string) ([]*Generation, error)
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)
}

// Store is the full ledger.
type Store interface {
	SessionStore
	UsageStore
	Ping(ctx context.Context) error
	Close() error
}
