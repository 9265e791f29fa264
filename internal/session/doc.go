// Package session implements the conversation session controller that backs
// one mounted chat widget.
//
// # State
//
// A session holds an append-only message log and four pieces of view state:
//
//   - pending: a generation request is outstanding
//   - panel open: the conversation panel is visible
//   - unread: a reply arrived while the panel was closed
//   - draft: text typed but not yet submitted
//
// All transitions live on one value type so the rules are enforced in one
// place: at most one request in flight, unread cleared only by opening the
// panel, pending always cleared when a request resolves.
//
// # Actor
//
// [Controller] owns the state on a single goroutine. Commands (Submit,
// SetDraft, TogglePanel, ClosePanel, Snapshot) are sent to it over a channel
// and run one at a time. An accepted submission starts the generation call on
// its own goroutine; the result is posted back to the actor, which applies it.
// While a request is pending the controller keeps serving panel and draft
// commands.
//
// A request is never cancelled because the panel changed. Its result is always
// applied. Only Close (unmount) cancels an outstanding call.
//
//	ctrl := session.NewController(id, client, session.Options{
//		OnChange: func(s session.Snapshot) { broadcaster.Publish(s.SessionID, &s, "") },
//	})
//	defer ctrl.Close()
//
//	outcome, err := ctrl.Submit(ctx, "Hola")
package session
