// ABOUTME: In-memory fan-out of session snapshots to stream subscribers
// ABOUTME: Keeps only the freshest snapshots for slow subscribers

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/chatia-gateway/internal/session"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 16
)

// EventBroadcaster fans session snapshots out to every subscriber of a
// session ID. Each snapshot is complete, so a slow subscriber loses its
// oldest queued snapshot rather than the newest.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *session.Snapshot // sessionID -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *session.Snapshot),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for snapshots of sessionID. The subscription ends when
// ctx is cancelled, Unsubscribe is called, or the session is closed; the
// channel is closed in all three cases.
func (b *EventBroadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan *session.Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan *session.Snapshot, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[string]chan *session.Snapshot)
	}
	b.subscribers[sessionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session_id", sessionID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish delivers snap to all subscribers of sessionID without blocking.
func (b *EventBroadcaster) Publish(sessionID string, snap *session.Snapshot) {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send. Every send is non-blocking.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers[sessionID] {
		select {
		case ch <- snap:
			continue
		default:
		}

		// Full: discard the oldest queued snapshot and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
			b.logger.Debug("dropped snapshot for slow subscriber",
				"session_id", sessionID,
				"sub_id", subID,
				"version", snap.Version)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("subscriber removed", "session_id", sessionID, "sub_id", subID)
}

// CloseSession ends every subscription for sessionID.
func (b *EventBroadcaster) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers[sessionID] {
		close(ch)
		delete(b.subscribers[sessionID], subID)
	}
	delete(b.subscribers, sessionID)
}

// SubscriberCount returns the number of live subscriptions for sessionID.
func (b *EventBroadcaster) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[sessionID])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("broadcaster closed")
}
