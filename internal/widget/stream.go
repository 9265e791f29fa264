// ABOUTME: Server-sent event stream of widget state
// ABOUTME: Sends connected, then state events, with a periodic heartbeat

package widget

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/chatia-gateway/internal/auth"
)

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	id := auth.SessionIDFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendJSONError(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before reading the snapshot so no change slips between them.
	events, err := h.sessions.Subscribe(r.Context(), id)
	if err != nil {
		h.sendCommandError(w, id, err)
		return
	}
	snap, err := h.sessions.Snapshot(r.Context(), id)
	if err != nil {
		h.sendCommandError(w, id, err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	fmt.Fprintf(w, "event: connected\ndata: {\"session_id\": %q}\n\n", id)
	lastVersion := snap.Version
	if err := h.writeSSEEvent(w, "state", h.view(&snap)); err != nil {
		return
	}
	flusher.Flush()

	h.logger.Debug("stream opened", "session_id", id)
	defer h.logger.Debug("stream closed", "session_id", id)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			if !h.sessions.Touch(id) {
				return
			}
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case s, ok := <-events:
			if !ok {
				// Session unmounted
				return
			}
			// Snapshots queued before the initial read are stale.
			if s.Version <= lastVersion {
				continue
			}
			lastVersion = s.Version
			if err := h.writeSSEEvent(w, "state", h.view(s)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) writeSSEEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal SSE event", "event", event, "error", err)
		return nil
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
