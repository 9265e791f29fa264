// ABOUTME: Tests for the conversation service
// ABOUTME: Covers mounting, command routing, streaming, dedupe and ledger records

package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatia-gateway/internal/generation"
	"github.com/2389/chatia-gateway/internal/session"
	"github.com/2389/chatia-gateway/internal/store"
)

// fakeGenerator replies with text (or err). A non-nil gate blocks each call
// until it receives a value.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	text    string
	err     error
	gate    chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (*generation.Response, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &generation.Response{
		Candidates: []generation.Candidate{
			{Content: &generation.Content{Parts: []generation.Part{{Text: f.text}}}},
		},
		UsageMetadata: &generation.UsageMetadata{PromptTokenCount: 5, CandidatesTokenCount: 2, TotalTokenCount: 7},
	}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newTestService(t *testing.T, gen session.Generator) (*Service, *store.MockStore) {
	t.Helper()
	ledger := store.NewMockStore()
	b := NewEventBroadcaster(nil)
	svc := New(gen, ledger, b, Options{Instruction: "Sé breve.", Model: "test-model"})
	t.Cleanup(func() {
		svc.Close()
		b.Close()
	})
	return svc, ledger
}

func mount(t *testing.T, svc *Service) string {
	t.Helper()
	snap, err := svc.Mount(t.Context(), MountRequest{Origin: "https://shop.example", UserAgent: "test"})
	require.NoError(t, err)
	return snap.SessionID
}

func waitForMessages(t *testing.T, svc *Service, id string, n int) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = svc.Snapshot(t.Context(), id)
		require.NoError(t, err)
		return !snap.Pending && len(snap.Messages) == n
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func strPtr(s string) *string { return &s }

func TestService_MountRecordsSession(t *testing.T) {
	svc, ledger := newTestService(t, &fakeGenerator{text: "hola"})

	snap, err := svc.Mount(t.Context(), MountRequest{Origin: "https://shop.example", UserAgent: "ua"})
	require.NoError(t, err)
	assert.NotEmpty(t, snap.SessionID)
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.PanelOpen)
	assert.Equal(t, 1, svc.ActiveSessions())

	rec, err := ledger.GetSession(t.Context(), snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example", rec.Origin)
	assert.True(t, rec.Active())
}

func TestService_SubmitRoundTrip(t *testing.T) {
	gen := &fakeGenerator{text: "Hi there"}
	svc, ledger := newTestService(t, gen)
	id := mount(t, svc)

	outcome, err := svc.Submit(t.Context(), id, SubmitRequest{Text: strPtr("Hello")})
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeAccepted, outcome)

	snap := waitForMessages(t, svc, id, 2)
	assert.Equal(t, "Hello", snap.Messages[0].Text)
	assert.Equal(t, "Hi there", snap.Messages[1].Text)
	assert.True(t, snap.Unread)

	rec, err := ledger.GetSession(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Submissions)

	require.Eventually(t, func() bool {
		gens, _ := ledger.GetSessionGenerations(t.Context(), id)
		return len(gens) == 1
	}, time.Second, 5*time.Millisecond)
	gens, _ := ledger.GetSessionGenerations(t.Context(), id)
	assert.Equal(t, store.OutcomeReply, gens[0].Outcome)
	assert.Equal(t, "test-model", gens[0].Model)
	assert.Equal(t, int32(7), gens[0].TotalTokens)

	assert.Equal(t, []string{"Sé breve.\n\nUsuario: Hello"}, gen.prompts)
}

func TestService_SubmitDraftWhenTextOmitted(t *testing.T) {
	svc, _ := newTestService(t, &fakeGenerator{text: "ok"})
	id := mount(t, svc)

	require.NoError(t, svc.SetDraft(t.Context(), id, "desde el borrador"))
	outcome, err := svc.Submit(t.Context(), id, SubmitRequest{})
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeAccepted, outcome)

	snap := waitForMessages(t, svc, id, 2)
	assert.Equal(t, "desde el borrador", snap.Messages[0].Text)
	assert.Empty(t, snap.Draft)
}

func TestService_FailureIsRecorded(t *testing.T) {
	svc, ledger := newTestService(t, &fakeGenerator{err: errors.New("unavailable")})
	id := mount(t, svc)

	_, err := svc.Submit(t.Context(), id, SubmitRequest{Text: strPtr("Hello")})
	require.NoError(t, err)

	snap := waitForMessages(t, svc, id, 2)
	assert.Equal(t, session.FailureReply, snap.Messages[1].Text)

	require.Eventually(t, func() bool {
		stats, _ := ledger.GetUsageStats(t.Context(), store.UsageFilter{})
		return stats.Failures == 1
	}, time.Second, 5*time.Millisecond)
}

func TestService_DuplicateClientMessageID(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	svc, _ := newTestService(t, gen)
	id := mount(t, svc)

	outcome, err := svc.Submit(t.Context(), id, SubmitRequest{Text: strPtr("uno"), ClientMessageID: "m-1"})
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeAccepted, outcome)
	waitForMessages(t, svc, id, 2)

	outcome, err = svc.Submit(t.Context(), id, SubmitRequest{Text: strPtr("uno"), ClientMessageID: "m-1"})
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeIgnoredDuplicate, outcome)

	outcome, err = svc.Submit(t.Context(), id, SubmitRequest{Text: strPtr("dos"), ClientMessageID: "m-2"})
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeAccepted, outcome)

	waitForMessages(t, svc, id, 4)
	assert.Equal(t, 2, gen.callCount())
}

func TestService_UndeliveredSubmitCanBeRetried(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	svc, ledger := newTestService(t, gen)
	id := mount(t, svc)

	cancelled, cancel := context.WithCancel(t.Context())
	cancel()

	// A cancelled caller races delivery; keep going until one is refused.
	var lostID string
	accepted := 0
	for i := 0; i < 200 && lostID == ""; i++ {
		cid := fmt.Sprintf("m-%d", i)
		_, err := svc.Submit(cancelled, id, SubmitRequest{Text: strPtr("Hola"), ClientMessageID: cid})
		if err != nil {
			require.ErrorIs(t, err, context.Canceled)
			lostID = cid
			continue
		}
		accepted++
		waitForMessages(t, svc, id, 2*accepted)
	}
	require.NotEmpty(t, lostID, "no submission was refused")

	outcome, err := svc.Submit(t.Context(), id, SubmitRequest{Text: strPtr("Hola"), ClientMessageID: lostID})
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeAccepted, outcome)

	snap := waitForMessages(t, svc, id, 2*(accepted+1))
	assert.Equal(t, "Hola", snap.Messages[len(snap.Messages)-2].Text)

	rec, err := ledger.GetSession(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, accepted+1, rec.Submissions)
}

func TestService_PendingSubmitIsNotCounted(t *testing.T) {
	gen := &fakeGenerator{text: "ok", gate: make(chan struct{})}
	svc, ledger := newTestService(t, gen)
	id := mount(t, svc)

	_, err := svc.Submit(t.Context(), id, SubmitRequest{Text: strPtr("A")})
	require.NoError(t, err)
	outcome, err := svc.Submit(t.Context(), id, SubmitRequest{Text: strPtr("B")})
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeIgnoredPending, outcome)

	gen.gate <- struct{}{}
	waitForMessages(t, svc, id, 2)

	rec, err := ledger.GetSession(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Submissions)
}

func TestService_PanelCommands(t *testing.T) {
	svc, _ := newTestService(t, &fakeGenerator{text: "ok"})
	id := mount(t, svc)

	require.NoError(t, svc.TogglePanel(t.Context(), id))
	snap, err := svc.Snapshot(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, snap.PanelOpen)

	require.NoError(t, svc.ClosePanel(t.Context(), id))
	require.NoError(t, svc.ClosePanel(t.Context(), id))
	snap, err = svc.Snapshot(t.Context(), id)
	require.NoError(t, err)
	assert.False(t, snap.PanelOpen)
}

func TestService_SubscribeStreamsChanges(t *testing.T) {
	svc, _ := newTestService(t, &fakeGenerator{text: "ok"})
	id := mount(t, svc)

	ch, err := svc.Subscribe(t.Context(), id)
	require.NoError(t, err)

	require.NoError(t, svc.TogglePanel(t.Context(), id))

	select {
	case snap := <-ch:
		require.NotNil(t, snap)
		assert.True(t, snap.PanelOpen)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestService_UnmountEndsSession(t *testing.T) {
	svc, ledger := newTestService(t, &fakeGenerator{text: "ok"})
	id := mount(t, svc)

	ch, err := svc.Subscribe(t.Context(), id)
	require.NoError(t, err)

	require.NoError(t, svc.Unmount(t.Context(), id))

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "stream closed on unmount")
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}

	_, err = svc.Snapshot(t.Context(), id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Unmount(t.Context(), id), ErrSessionNotFound)
	assert.Equal(t, 0, svc.ActiveSessions())

	rec, err := ledger.GetSession(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, store.UnmountClient, rec.UnmountReason)
}

func TestService_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t, &fakeGenerator{})

	_, err := svc.Submit(t.Context(), "missing", SubmitRequest{Text: strPtr("x")})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.SetDraft(t.Context(), "missing", "x"), ErrSessionNotFound)
	assert.ErrorIs(t, svc.TogglePanel(t.Context(), "missing"), ErrSessionNotFound)
	assert.ErrorIs(t, svc.ClosePanel(t.Context(), "missing"), ErrSessionNotFound)
	_, err = svc.Subscribe(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, svc.Touch("missing"))
}

func TestService_CloseRecordsShutdown(t *testing.T) {
	ledger := store.NewMockStore()
	b := NewEventBroadcaster(nil)
	defer b.Close()
	svc := New(&fakeGenerator{text: "ok"}, ledger, b, Options{})

	snap, err := svc.Mount(context.Background(), MountRequest{})
	require.NoError(t, err)

	svc.Close()

	rec, err := ledger.GetSession(context.Background(), snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.UnmountShutdown, rec.UnmountReason)
}

func TestService_IdleSweepRecordsIdle(t *testing.T) {
	svc, ledger := newTestService(t, &fakeGenerator{text: "ok"})
	id := mount(t, svc)

	base := time.Now()
	svc.registry.now = func() time.Time { return base.Add(time.Hour) }
	svc.registry.sweep()

	assert.False(t, svc.Touch(id))
	rec, err := ledger.GetSession(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, store.UnmountIdle, rec.UnmountReason)
}
