// ABOUTME: Tests that MockStore behaves like the SQLite ledger
// ABOUTME: Runs the same scenarios against both implementations

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerImplementations(t *testing.T) {
	impls := map[string]func(t *testing.T) Store{
		"sqlite": func(t *testing.T) Store { return setupTestStore(t) },
		"mock":   func(t *testing.T) Store { return NewMockStore() },
	}

	for name, newStore := range impls {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)

			mountTestSession(t, s, "x", now)
			require.NoError(t, s.IncrementSubmissions(ctx, "x"))
			require.NoError(t, s.SaveGeneration(ctx, newGeneration("x", OutcomeReply, 8, 10*time.Millisecond, now)))
			require.NoError(t, s.RecordUnmount(ctx, "x", UnmountClient, now))

			got, err := s.GetSession(ctx, "x")
			require.NoError(t, err)
			assert.Equal(t, 1, got.Submissions)
			assert.Equal(t, UnmountClient, got.UnmountReason)

			active, err := s.ListSessions(ctx, SessionFilter{ActiveOnly: true})
			require.NoError(t, err)
			assert.Empty(t, active)

			stats, err := s.GetUsageStats(ctx, UsageFilter{})
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.Replies)
			assert.Equal(t, int64(8), stats.TotalTokens)

			_, err = s.GetSession(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
