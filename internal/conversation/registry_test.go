// ABOUTME: Tests for the mounted session registry
// ABOUTME: Covers lookup, removal, idle sweeping and draining

package conversation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatia-gateway/internal/session"
)

func newRegistryController(t *testing.T, id string) *session.Controller {
	t.Helper()
	c := session.NewController(id, &fakeGenerator{}, session.Options{})
	t.Cleanup(c.Close)
	return c
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry(time.Hour, nil)
	defer r.drain()

	ctrl := newRegistryController(t, "a")
	r.add(ctrl)

	got, ok := r.get("a")
	require.True(t, ok)
	assert.Same(t, ctrl, got)
	assert.Equal(t, 1, r.Len())

	removed, ok := r.remove("a")
	require.True(t, ok)
	assert.Same(t, ctrl, removed)

	_, ok = r.get("a")
	assert.False(t, ok)
	_, ok = r.remove("a")
	assert.False(t, ok)
}

func TestRegistry_SweepExpiresIdleSessions(t *testing.T) {
	var mu sync.Mutex
	var expired []string

	r := NewRegistry(30*time.Minute, func(id string, ctrl *session.Controller) {
		mu.Lock()
		expired = append(expired, id)
		mu.Unlock()
	})
	defer r.drain()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.add(newRegistryController(t, "stale"))
	r.add(newRegistryController(t, "fresh"))

	now = now.Add(20 * time.Minute)
	r.get("fresh")

	now = now.Add(15 * time.Minute)
	r.sweep()

	mu.Lock()
	assert.Equal(t, []string{"stale"}, expired)
	mu.Unlock()

	_, ok := r.get("fresh")
	assert.True(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Drain(t *testing.T) {
	r := NewRegistry(0, nil)
	assert.Equal(t, DefaultIdleTimeout, r.idleTimeout)

	r.add(newRegistryController(t, "a"))
	r.add(newRegistryController(t, "b"))

	drained := r.drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, r.Len())
}
