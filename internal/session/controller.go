// ABOUTME: Actor that owns one widget session's state
// ABOUTME: Serializes commands and applies generation results on a single goroutine

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatia-gateway/internal/generation"
)

const (
	// FallbackReply is shown when the service answered without usable text.
	FallbackReply = "Sin respuesta."

	// FailureReply is shown when the service call failed.
	FailureReply = "Error al responder."
)

// ErrClosed is returned for commands sent after Close.
var ErrClosed = errors.New("session: controller closed")

// Generator produces a reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*generation.Response, error)
}

// ResultKind classifies how a submission resolved.
type ResultKind string

const (
	ResultReply   ResultKind = "reply"
	ResultEmpty   ResultKind = "empty"
	ResultFailure ResultKind = "failure"
)

// Resolution describes one finished generation call.
type Resolution struct {
	SessionID string
	RequestID string
	Kind      ResultKind
	Usage     generation.UsageMetadata
	Latency   time.Duration
	Err       error
}

// Options configures a Controller.
type Options struct {
	// Instruction is prepended to every prompt. Empty uses generation.DefaultInstruction.
	Instruction string

	// Timeout bounds each generation call. Zero means no bound.
	Timeout time.Duration

	// OnChange receives a snapshot after every state change. It runs on the
	// controller goroutine and must not block.
	OnChange func(Snapshot)

	// OnResolve runs on the request goroutine once a call finishes and
	// before its reply is applied.
	OnResolve func(context.Context, Resolution)

	Logger *slog.Logger

	// Now overrides the clock used for message timestamps.
	Now func() time.Time
}

// reply carries a finished call back to the actor.
type reply struct {
	requestID string
	text      string
}

// Controller is the single owner of a session's state.
type Controller struct {
	id          string
	gen         Generator
	instruction string
	timeout     time.Duration
	onChange    func(Snapshot)
	onResolve   func(context.Context, Resolution)
	now         func() time.Time
	logger      *slog.Logger

	state state

	commands chan func()
	replies  chan reply
	quit     chan struct{}
	stopped  chan struct{}

	// ctx bounds outstanding calls; cancelled by Close.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	inflight  sync.WaitGroup
}

// NewController starts the actor for session id.
func NewController(id string, gen Generator, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	instruction := opts.Instruction
	if instruction == "" {
		instruction = generation.DefaultInstruction
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:          id,
		gen:         gen,
		instruction: instruction,
		timeout:     opts.Timeout,
		onChange:    opts.OnChange,
		onResolve:   opts.OnResolve,
		now:         now,
		logger:      logger.With("component", "session", "session_id", id),
		commands:    make(chan func()),
		replies:     make(chan reply),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	go c.run()
	return c
}

// ID returns the session ID.
func (c *Controller) ID() string {
	return c.id
}

// Done is closed once the controller has stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

// Submit sends text to the generation service unless it is blank or a
// request is already pending. Ignored submissions are reported through the
// outcome, never as errors. An error means the submission never reached the
// session.
func (c *Controller) Submit(ctx context.Context, text string) (Outcome, error) {
	var out Outcome
	err := c.do(ctx, func() { out = c.startSubmission(text) })
	return out, err
}

// SubmitDraft submits whatever the draft currently holds.
func (c *Controller) SubmitDraft(ctx context.Context) (Outcome, error) {
	var out Outcome
	err := c.do(ctx, func() { out = c.startSubmission(c.state.draft) })
	return out, err
}

// SetDraft replaces the draft text.
func (c *Controller) SetDraft(ctx context.Context, text string) error {
	return c.do(ctx, func() {
		if c.state.setDraft(text) {
			c.notify()
		}
	})
}

// TogglePanel flips panel visibility and clears unread when opening.
func (c *Controller) TogglePanel(ctx context.Context) error {
	return c.do(ctx, func() {
		c.state.togglePanel()
		c.notify()
	})
}

// ClosePanel hides the panel. Closing a closed panel is a no-op.
func (c *Controller) ClosePanel(ctx context.Context) error {
	return c.do(ctx, func() {
		if c.state.closePanel() {
			c.notify()
		}
	})
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, func() { snap = c.state.snapshot(c.id) })
	return snap, err
}

// Close stops the actor, cancels any outstanding call and waits for it.
// It is safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.quit)
	})
	<-c.stopped
	c.inflight.Wait()
}

// do runs fn on the controller goroutine and waits for it to finish. ctx only
// bounds delivery.
func (c *Controller) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		fn()
		close(done)
	}

	select {
	case c.commands <- cmd:
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Commands never block, so a delivered command always finishes. An error
	// therefore means fn did not run.
	<-done
	return nil
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case cmd := <-c.commands:
			cmd()
		case r := <-c.replies:
			c.state.resolve(r.text, c.now())
			c.logger.Debug("reply applied", "request_id", r.requestID, "messages", len(c.state.messages))
			c.notify()
		case <-c.quit:
			return
		}
	}
}

// startSubmission runs on the controller goroutine.
func (c *Controller) startSubmission(text string) Outcome {
	out := c.state.beginSubmit(text, c.now())
	if out != OutcomeAccepted {
		c.logger.Debug("submission ignored", "outcome", out.String())
		return out
	}

	requestID := uuid.New().String()
	prompt := generation.ComposePrompt(c.instruction, text)
	c.logger.Debug("submission accepted", "request_id", requestID, "text_len", len(text))

	c.inflight.Add(1)
	go c.generate(requestID, prompt)

	c.notify()
	return out
}

// generate performs one call and posts its reply to the actor.
func (c *Controller) generate(requestID, prompt string) {
	defer c.inflight.Done()

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.gen.Generate(ctx, prompt)
	res := Resolution{
		SessionID: c.id,
		RequestID: requestID,
		Latency:   time.Since(start),
	}

	r := reply{requestID: requestID}
	if err != nil {
		c.logger.Warn("generation failed", "request_id", requestID, "error", err)
		r.text = FailureReply
		res.Kind = ResultFailure
		res.Err = err
	} else {
		res.Usage = resp.Usage()
		text, ok := resp.ReplyText()
		if ok {
			r.text = text
			res.Kind = ResultReply
		} else {
			r.text = FallbackReply
			res.Kind = ResultEmpty
		}
	}

	if c.onResolve != nil {
		c.onResolve(c.ctx, res)
	}

	select {
	case c.replies <- r:
	case <-c.stopped:
	}
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange(c.state.snapshot(c.id))
	}
}
