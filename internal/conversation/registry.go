// ABOUTME: Registry of mounted widget sessions keyed by session ID
// ABOUTME: Sweeps sessions that have been idle longer than the configured timeout

package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/2389/chatia-gateway/internal/session"
)

// DefaultIdleTimeout is how long a session may go untouched before it is
// unmounted by the sweeper.
const DefaultIdleTimeout = 30 * time.Minute

// mounted is one live widget session.
type mounted struct {
	ctrl      *session.Controller
	mountedAt time.Time

	mu       sync.Mutex
	lastUsed time.Time
}

func (m *mounted) touch(now time.Time) {
	m.mu.Lock()
	m.lastUsed = now
	m.mu.Unlock()
}

func (m *mounted) idleSince(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.lastUsed)
}

// Registry tracks mounted sessions. Expired sessions are handed to onExpire
// outside the registry lock.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*mounted
	idleTimeout time.Duration
	onExpire    func(id string, ctrl *session.Controller)
	now         func() time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewRegistry creates a registry and starts its sweeper.
func NewRegistry(idleTimeout time.Duration, onExpire func(id string, ctrl *session.Controller)) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		sessions:    make(map[string]*mounted),
		idleTimeout: idleTimeout,
		onExpire:    onExpire,
		now:         time.Now,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go r.cleanupLoop(ctx)
	return r
}

// add registers a controller under its ID.
func (r *Registry) add(ctrl *session.Controller) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[ctrl.ID()] = &mounted{ctrl: ctrl, mountedAt: now, lastUsed: now}
}

// get returns the controller for id and marks it used.
func (r *Registry) get(id string) (*session.Controller, bool) {
	r.mu.RLock()
	m, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	m.touch(r.now())
	return m.ctrl, true
}

// remove unregisters id and returns its controller.
func (r *Registry) remove(id string) (*session.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return m.ctrl, true
}

// Len returns the number of mounted sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) cleanupLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep unmounts sessions idle longer than the timeout.
func (r *Registry) sweep() {
	now := r.now()

	r.mu.Lock()
	var expired []*mounted
	for id, m := range r.sessions {
		if m.idleSince(now) > r.idleTimeout {
			expired = append(expired, m)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, m := range expired {
		if r.onExpire != nil {
			r.onExpire(m.ctrl.ID(), m.ctrl)
		}
	}
}

// drain stops the sweeper and removes every session, returning them.
func (r *Registry) drain() []*session.Controller {
	r.cancel()
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*session.Controller, 0, len(r.sessions))
	for id, m := range r.sessions {
		out = append(out, m.ctrl)
		delete(r.sessions, id)
	}
	return out
}
