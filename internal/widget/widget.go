// ABOUTME: HTTP handlers for the chat widget host surface
// ABOUTME: Maps widget routes onto conversation service commands

package widget

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/chatia-gateway/internal/auth"
	"github.com/2389/chatia-gateway/internal/conversation"
	"github.com/2389/chatia-gateway/internal/session"
)

const (
	// maxBodyBytes bounds JSON request bodies.
	maxBodyBytes = 64 << 10

	// heartbeatInterval is how often an idle stream writes a comment line.
	heartbeatInterval = 30 * time.Second

	defaultTitle = "Asistente Virtual"
)

// Sessions is the part of the conversation service the widget drives.
type Sessions interface {
	Mount(ctx context.Context, req conversation.MountRequest) (session.Snapshot, error)
	Unmount(ctx context.Context, id string) error
	Snapshot(ctx context.Context, id string) (session.Snapshot, error)
	Submit(ctx context.Context, id string, req conversation.SubmitRequest) (session.Outcome, error)
	SetDraft(ctx context.Context, id, text string) error
	TogglePanel(ctx context.Context, id string) error
	ClosePanel(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan *session.Snapshot, error)
	Touch(id string) bool
}

// Tokens issues and verifies widget session tokens.
type Tokens interface {
	auth.TokenVerifier
	Generate(sessionID string, expiresIn time.Duration) (string, error)
}

// Config configures a Handler.
type Config struct {
	Sessions Sessions
	Tokens   Tokens
	TokenTTL time.Duration
	Title    string
	// AllowedOrigins lists origins that may call the API from a browser.
	// "*" allows any origin.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handler serves the widget page, assets and API.
type Handler struct {
	sessions  Sessions
	tokens    Tokens
	tokenTTL  time.Duration
	title     string
	origins   map[string]bool
	anyOrigin bool
	md        goldmark.Markdown
	page      *template.Template
	logger    *slog.Logger

	// heartbeat is overridden in tests.
	heartbeat time.Duration
}

// New creates a Handler.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	title := cfg.Title
	if title == "" {
		title = defaultTitle
	}

	h := &Handler{
		sessions:  cfg.Sessions,
		tokens:    cfg.Tokens,
		tokenTTL:  cfg.TokenTTL,
		title:     title,
		origins:   make(map[string]bool),
		md:        newMarkdown(),
		page:      template.Must(template.ParseFS(templateFS, "templates/widget.html")),
		logger:    logger.With("component", "widget"),
		heartbeat: heartbeatInterval,
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			h.anyOrigin = true
			continue
		}
		h.origins[o] = true
	}
	return h
}

// RegisterRoutes adds the widget routes to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /widget", h.handlePage)
	mux.Handle("GET /widget/static/", http.StripPrefix("/widget/static", staticHandler()))

	mux.Handle("POST /api/widget/sessions", h.cors(http.HandlerFunc(h.handleMount)))

	authed := func(fn http.HandlerFunc) http.Handler {
		return h.cors(auth.SessionMiddleware(h.tokens)(fn))
	}
	mux.Handle("DELETE /api/widget/session", authed(h.handleUnmount))
	mux.Handle("GET /api/widget/state", authed(h.handleState))
	mux.Handle("POST /api/widget/submit", authed(h.handleSubmit))
	mux.Handle("PUT /api/widget/draft", authed(h.handleDraft))
	mux.Handle("POST /api/widget/panel/toggle", authed(h.handleToggle))
	mux.Handle("POST /api/widget/panel/close", authed(h.handleClose))
	mux.Handle("GET /api/widget/stream", authed(h.handleStream))

	// Preflight requests carry no token.
	mux.Handle("OPTIONS /api/widget/", h.cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
}

type pageData struct {
	Title string
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(w, pageData{Title: h.title}); err != nil {
		h.logger.Error("failed to render widget page", "error", err)
	}
}

type mountResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	State     stateView `json:"state"`
}

func (h *Handler) handleMount(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Mount(r.Context(), conversation.MountRequest{
		Origin:    r.Header.Get("Origin"),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Error("failed to mount session", "error", err)
		sendJSONError(w, "failed to mount session", http.StatusInternalServerError)
		return
	}

	token, err := h.tokens.Generate(snap.SessionID, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to issue session token", "session_id", snap.SessionID, "error", err)
		_ = h.sessions.Unmount(r.Context(), snap.SessionID)
		sendJSONError(w, "failed to mount session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, mountResponse{
		SessionID: snap.SessionID,
		Token:     token,
		State:     h.view(&snap),
	})
}

func (h *Handler) handleUnmount(w http.ResponseWriter, r *http.Request) {
	id := auth.SessionIDFromContext(r.Context())
	if err := h.sessions.Unmount(r.Context(), id); err != nil {
		h.sendCommandError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	h.writeState(w, r, auth.SessionIDFromContext(r.Context()))
}

type submitRequest struct {
	Text            *string `json:"text"`
	ClientMessageID string  `json:"client_message_id"`
}

type submitResponse struct {
	Outcome session.Outcome `json:"outcome"`
	State   stateView       `json:"state"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := auth.SessionIDFromContext(r.Context())

	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	outcome, err := h.sessions.Submit(r.Context(), id, conversation.SubmitRequest{
		Text:            req.Text,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		h.sendCommandError(w, id, err)
		return
	}

	snap, err := h.sessions.Snapshot(r.Context(), id)
	if err != nil {
		h.sendCommandError(w, id, err)
		return
	}

	status := http.StatusOK
	if outcome == session.OutcomeAccepted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, submitResponse{Outcome: outcome, State: h.view(&snap)})
}

type draftRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	id := auth.SessionIDFromContext(r.Context())

	var req draftRequest
	if err := decodeBody(r, &req); err != nil {
		sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.sessions.SetDraft(r.Context(), id, req.Text); err != nil {
		h.sendCommandError(w, id, err)
		return
	}
	h.writeState(w, r, id)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := auth.SessionIDFromContext(r.Context())
	if err := h.sessions.TogglePanel(r.Context(), id); err != nil {
		h.sendCommandError(w, id, err)
		return
	}
	h.writeState(w, r, id)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	id := auth.SessionIDFromContext(r.Context())
	if err := h.sessions.ClosePanel(r.Context(), id); err != nil {
		h.sendCommandError(w, id, err)
		return
	}
	h.writeState(w, r, id)
}

func (h *Handler) writeState(w http.ResponseWriter, r *http.Request, id string) {
	snap, err := h.sessions.Snapshot(r.Context(), id)
	if err != nil {
		h.sendCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(&snap))
}

// sendCommandError maps service errors onto status codes.
func (h *Handler) sendCommandError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		sendJSONError(w, "session not found", http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		sendJSONError(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		h.logger.Error("widget command failed", "session_id", id, "error", err)
		sendJSONError(w, "internal error", http.StatusInternalServerError)
	}
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError sends a JSON error response.
func sendJSONError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
