// ABOUTME: Service that mounts widget sessions and routes commands to their controllers
// ABOUTME: Wires each controller to the broadcaster, the ledger and submission dedupe

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatia-gateway/internal/dedupe"
	"github.com/2389/chatia-gateway/internal/session"
	"github.com/2389/chatia-gateway/internal/store"
)

// ErrSessionNotFound is returned for commands aimed at an unknown or
// unmounted session.
var ErrSessionNotFound = errors.New("session not found")

const (
	defaultDedupeTTL   = 10 * time.Minute
	dedupeMaxEntries   = 10000
	ledgerWriteTimeout = 5 * time.Second
)

// Ledger is what the service records about sessions and generation calls.
type Ledger interface {
	RecordMount(ctx context.Context, session *store.WidgetSession) error
	RecordUnmount(ctx context.Context, id, reason string, at time.Time) error
	IncrementSubmissions(ctx context.Context, id string) error
	SaveGeneration(ctx context.Context, gen *store.Generation) error
}

// Options configures a Service.
type Options struct {
	// Instruction is prepended to every prompt.
	Instruction string
	// Model is recorded with each generation in the ledger.
	Model string
	// RequestTimeout bounds each generation call.
	RequestTimeout time.Duration
	// IdleTimeout unmounts sessions nobody has touched for this long.
	IdleTimeout time.Duration
	// DedupeTTL is how long a client message ID is remembered.
	DedupeTTL time.Duration
	Logger    *slog.Logger
}

// MountRequest describes the widget being mounted.
type MountRequest struct {
	Origin    string
	UserAgent string
}

// SubmitRequest is one submit command. A nil Text submits the draft.
type SubmitRequest struct {
	Text            *string
	ClientMessageID string
}

// Service is the entry point for every widget session operation.
type Service struct {
	gen         session.Generator
	ledger      Ledger
	broadcaster *EventBroadcaster
	registry    *Registry
	seen        *dedupe.Cache
	opts        Options
	logger      *slog.Logger
}

// New creates a Service. The broadcaster is owned by the caller.
func New(gen session.Generator, ledger Ledger, broadcaster *EventBroadcaster, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = defaultDedupeTTL
	}

	s := &Service{
		gen:         gen,
		ledger:      ledger,
		broadcaster: broadcaster,
		seen:        dedupe.New(opts.DedupeTTL, dedupeMaxEntries),
		opts:        opts,
		logger:      logger.With("component", "conversation"),
	}
	s.registry = NewRegistry(opts.IdleTimeout, func(id string, ctrl *session.Controller) {
		s.teardown(id, ctrl, store.UnmountIdle)
	})
	return s
}

// Mount starts a new widget session and returns its initial state.
func (s *Service) Mount(ctx context.Context, req MountRequest) (session.Snapshot, error) {
	id := uuid.New().String()

	if err := s.ledger.RecordMount(ctx, &store.WidgetSession{
		ID:        id,
		Origin:    req.Origin,
		UserAgent: req.UserAgent,
		MountedAt: time.Now().UTC(),
	}); err != nil {
		return session.Snapshot{}, fmt.Errorf("recording mount: %w", err)
	}

	ctrl := session.NewController(id, s.gen, session.Options{
		Instruction: s.opts.Instruction,
		Timeout:     s.opts.RequestTimeout,
		Logger:      s.logger,
		OnChange: func(snap session.Snapshot) {
			s.broadcaster.Publish(snap.SessionID, &snap)
		},
		OnResolve: s.recordResolution,
	})
	s.registry.add(ctrl)

	s.logger.Info("widget mounted", "session_id", id, "origin", req.Origin, "active", s.registry.Len())

	snap, err := ctrl.Snapshot(ctx)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("reading initial state: %w", err)
	}
	return snap, nil
}

// Unmount stops a session and ends its streams.
func (s *Service) Unmount(ctx context.Context, id string) error {
	ctrl, ok := s.registry.remove(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.teardown(id, ctrl, store.UnmountClient)
	return nil
}

// Snapshot returns the current state of a session.
func (s *Service) Snapshot(ctx context.Context, id string) (session.Snapshot, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	snap, err := ctrl.Snapshot(ctx)
	return snap, s.mapErr(err)
}

// Submit forwards a submission. A resent ClientMessageID is dropped with
// OutcomeIgnoredDuplicate before it reaches the controller. The ID is only
// kept once the controller has taken the submission.
func (s *Service) Submit(ctx context.Context, id string, req SubmitRequest) (session.Outcome, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return 0, err
	}

	key := dedupe.SubmissionKey(id, req.ClientMessageID)
	if req.ClientMessageID != "" && !s.seen.Claim(key) {
		s.logger.Debug("duplicate submission dropped", "session_id", id, "client_message_id", req.ClientMessageID)
		return session.OutcomeIgnoredDuplicate, nil
	}

	var outcome session.Outcome
	if req.Text != nil {
		outcome, err = ctrl.Submit(ctx, *req.Text)
	} else {
		outcome, err = ctrl.SubmitDraft(ctx)
	}
	if err != nil {
		// The controller never saw it; a retry must not count as a duplicate.
		if req.ClientMessageID != "" {
			s.seen.Release(key)
		}
		return 0, s.mapErr(err)
	}

	if outcome == session.OutcomeAccepted {
		if err := s.ledger.IncrementSubmissions(ctx, id); err != nil {
			s.logger.Warn("failed to count submission", "session_id", id, "error", err)
		}
	}
	return outcome, nil
}

// SetDraft replaces a session's draft.
func (s *Service) SetDraft(ctx context.Context, id, text string) error {
	ctrl, err := s.controller(id)
	if err != nil {
		return err
	}
	return s.mapErr(ctrl.SetDraft(ctx, text))
}

// TogglePanel flips a session's panel.
func (s *Service) TogglePanel(ctx context.Context, id string) error {
	ctrl, err := s.controller(id)
	if err != nil {
		return err
	}
	return s.mapErr(ctrl.TogglePanel(ctx))
}

// ClosePanel closes a session's panel.
func (s *Service) ClosePanel(ctx context.Context, id string) error {
	ctrl, err := s.controller(id)
	if err != nil {
		return err
	}
	return s.mapErr(ctrl.ClosePanel(ctx))
}

// Subscribe streams snapshots of a session until ctx ends or the session is
// unmounted.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan *session.Snapshot, error) {
	if _, err := s.controller(id); err != nil {
		return nil, err
	}
	ch, _ := s.broadcaster.Subscribe(ctx, id)
	return ch, nil
}

// Touch keeps a session from idling out. It reports whether it exists.
func (s *Service) Touch(id string) bool {
	_, ok := s.registry.get(id)
	return ok
}

// ActiveSessions returns the number of mounted sessions.
func (s *Service) ActiveSessions() int {
	return s.registry.Len()
}

// Close unmounts every session.
func (s *Service) Close() {
	for _, ctrl := range s.registry.drain() {
		s.teardown(ctrl.ID(), ctrl, store.UnmountShutdown)
	}
	s.seen.Close()
}

func (s *Service) controller(id string) (*session.Controller, error) {
	ctrl, ok := s.registry.get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

// mapErr turns a controller that stopped under us into ErrSessionNotFound.
func (s *Service) mapErr(err error) error {
	if errors.Is(err, session.ErrClosed) {
		return ErrSessionNotFound
	}
	return err
}

func (s *Service) teardown(id string, ctrl *session.Controller, reason string) {
	ctrl.Close()
	s.broadcaster.CloseSession(id)

	ctx, cancel := context.WithTimeout(context.Background(), ledgerWriteTimeout)
	defer cancel()
	if err := s.ledger.RecordUnmount(ctx, id, reason, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to record unmount", "session_id", id, "error", err)
	}

	s.logger.Info("widget unmounted", "session_id", id, "reason", reason)
}

// recordResolution runs on the request goroutine of a controller.
func (s *Service) recordResolution(_ context.Context, res session.Resolution) {
	gen := &store.Generation{
		ID:           uuid.New().String(),
		SessionID:    res.SessionID,
		RequestID:    res.RequestID,
		Outcome:      outcomeFor(res.Kind),
		Model:        s.opts.Model,
		PromptTokens: res.Usage.PromptTokenCount,
		ReplyTokens:  res.Usage.CandidatesTokenCount,
		TotalTokens:  res.Usage.TotalTokenCount,
		Latency:      res.Latency,
		CreatedAt:    time.Now().UTC(),
	}

	// The controller context is cancelled on unmount; the ledger row should
	// still be written.
	ctx, cancel := context.WithTimeout(context.Background(), ledgerWriteTimeout)
	defer cancel()
	if err := s.ledger.SaveGeneration(ctx, gen); err != nil {
		s.logger.Warn("failed to save generation", "session_id", res.SessionID, "error", err)
	}
}

func outcomeFor(kind session.ResultKind) store.GenerationOutcome {
	switch kind {
	case session.ResultReply:
		return store.OutcomeReply
	case session.ResultEmpty:
		return store.OutcomeEmpty
	default:
		return store.OutcomeFailure
	}
}
