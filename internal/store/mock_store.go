// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	sessions    map[string]*WidgetSession // keyed by session ID
	generations []*Generation             // in insertion order
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*WidgetSession),
	}
}

// RecordMount stores a new session.
func (m *MockStore) RecordMount(ctx context.Context, session *WidgetSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Make a copy to avoid external modification
	s := *session
	s.MountedAt = s.MountedAt.UTC().Truncate(time.Second)
	m.sessions[s.ID] = &s
	return nil
}

// RecordUnmount marks a session unmounted once.
func (m *MockStore) RecordUnmount(ctx context.Context, id, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.UnmountedAt != nil {
		return nil
	}
	t := at.UTC().Truncate(time.Second)
	s.UnmountedAt = &t
	s.UnmountReason = reason
	return nil
}

// IncrementSubmissions bumps a session's submission counter.
func (m *MockStore) IncrementSubmissions(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Submissions++
	return nil
}

// GetSession returns a copy of a session.
func (m *MockStore) GetSession(ctx context.Context, id string) (*WidgetSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s
	return &out, nil
}

// ListSessions returns sessions newest first.
func (m *MockStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*WidgetSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*WidgetSession
	for _, s := range m.sessions {
		if filter.ActiveOnly && !s.Active() {
			continue
		}
		c := *s
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].MountedAt.Equal(out[j].MountedAt) {
			return out[i].MountedAt.After(out[j].MountedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SaveGeneration stores a generation record.
func (m *MockStore) SaveGeneration(ctx context.Context, gen *Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := *gen
	m.generations = append(m.generations, &g)
	return nil
}

// GetSessionGenerations returns the records for a session in insertion order.
func (m *MockStore) GetSessionGenerations(ctx context.Context, sessionID string) ([]*Generation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Generation
	for _, g := range m.generations {
		if g.SessionID == sessionID {
			c := *g
			out = append(out, &c)
		}
	}
	return out, nil
}

// GetUsageStats aggregates the stored records.
func (m *MockStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats UsageStats
	var latencyMs int64
	for _, g := range m.generations {
		if filter.SessionID != nil && g.SessionID != *filter.SessionID {
			continue
		}
		if filter.Since != nil && g.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !g.CreatedAt.Before(*filter.Until) {
			continue
		}

		stats.Requests++
		switch g.Outcome {
		case OutcomeReply:
			stats.Replies++
		case OutcomeEmpty:
			stats.Empty++
		case OutcomeFailure:
			stats.Failures++
		}
		stats.PromptTokens += int64(g.PromptTokens)
		stats.ReplyTokens += int64(g.ReplyTokens)
		stats.TotalTokens += int64(g.TotalTokens)
		latencyMs += g.Latency.Milliseconds()
	}
	if stats.Requests > 0 {
		stats.AvgLatencyMs = float64(latencyMs) / float64(stats.Requests)
	}
	return &stats, nil
}

// Close is a no-op.
// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements the full ledger.
var _ Store = (*MockStore)(nil)
