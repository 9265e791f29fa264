// Package conversation manages the widget sessions hosted by the gateway.
//
// # Overview
//
// The conversation package sits between the HTTP handlers and the session
// controllers. Each mounted widget gets its own session.Controller; the
// package keeps track of them, routes commands, and fans state changes out to
// stream subscribers.
//
// # Service
//
// The Service coordinates everything:
//
//	svc := conversation.New(generator, ledger, broadcaster, conversation.Options{})
//
// Key operations:
//
//   - Mount(ctx, req): start a session, record it in the ledger
//   - Submit(ctx, id, req): submit text or the current draft
//   - SetDraft / TogglePanel / ClosePanel: view state commands
//   - Subscribe(ctx, id): stream snapshots
//   - Unmount(ctx, id): stop the session
//
// Submissions may carry a client message ID. A resend with the same ID within
// the dedupe TTL is reported as ignored_duplicate and never reaches the
// controller.
//
// # Registry
//
// Mounted sessions live in a Registry keyed by session ID. A sweeper runs
// every minute and unmounts sessions untouched for longer than the idle
// timeout (30 minutes by default). Open streams keep a session alive by
// calling Touch on every heartbeat.
//
// # Event Broadcasting
//
// Every state change publishes a full snapshot to the EventBroadcaster.
// Snapshots supersede each other, so a slow subscriber drops its oldest
// queued snapshot instead of the newest. Unmounting closes every subscriber
// channel for the session.
//
// # Ledger
//
// Mounts, unmounts, accepted submission counts and one row per generation
// call are written to the store. Message text is never written.
package conversation
