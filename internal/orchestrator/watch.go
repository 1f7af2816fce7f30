package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
	"github.com/asheshgoplani/claude-orchestrator/internal/provider"
)

// pollInterval is the watcher's steady-state poll cadence (§6.3: 10-100ms,
// default 50ms). pollLimiter throttles repeated empty polls across every
// open watch so a burst of idle streams cannot hammer providers tighter
// than this rate.
const pollInterval = 50 * time.Millisecond

var pollLimiter = rate.NewLimiter(rate.Every(pollInterval), 4)

// watchers tracks the single-outstanding-watcher-per-session contract
// (§4.4.4): a second concurrent watch on the same session is rejected
// rather than silently sharing a cursor.
var watchers = struct {
	mu   sync.Mutex
	live map[string]struct{}
}{live: make(map[string]struct{})}

// Watch opens a pull-based output stream for sessionID. Callers repeatedly
// invoke Next until it returns an error or a terminal status, then must
// call Close.
type Watch struct {
	o         *Orchestrator
	sessionID string
	p         provider.Provider
	closed    bool
}

// OpenWatch claims the session's single watch slot and returns a cursor.
func (o *Orchestrator) OpenWatch(sessionID string) (*Watch, error) {
	entry, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	p, ok := o.router.Get(entry.ProviderID)
	if !ok {
		return nil, claudeerr.Unavailable("owning provider is no longer registered")
	}

	watchers.mu.Lock()
	if _, taken := watchers.live[sessionID]; taken {
		watchers.mu.Unlock()
		return nil, claudeerr.InvalidRequest("session already has an active watcher")
	}
	watchers.live[sessionID] = struct{}{}
	watchers.mu.Unlock()

	return &Watch{o: o, sessionID: sessionID, p: p}, nil
}

// Next blocks until a chunk is available, timeout elapses, or ctx is
// cancelled. A nil chunk with a nil error signals the timeout case; callers
// should poll again. Reaching a terminal session status triggers
// reconciliation before returning the chunk so a streaming reader never
// needs a separate status call to settle the budget.
func (w *Watch) Next(ctx context.Context, timeout time.Duration) (*provider.Chunk, error) {
	if w.closed {
		return nil, claudeerr.InvalidRequest("watch already closed")
	}

	deadline := time.Now().Add(timeout)
	for {
		if st, err := w.o.reconcile(ctx, w.sessionID); err == nil && st.Kind.Terminal() {
			chunk, err := w.p.PollOutput(ctx, w.sessionID)
			if err != nil {
				return nil, claudeerr.Wrap(err)
			}
			return chunk, nil
		}

		chunk, err := w.p.PollOutput(ctx, w.sessionID)
		if err != nil {
			return nil, claudeerr.Wrap(err)
		}
		if chunk != nil {
			return chunk, nil
		}

		logging.Aggregate(logging.CompOrchestrator, "watch_poll_empty")

		if time.Now().After(deadline) {
			return nil, nil
		}

		if err := pollLimiter.Wait(ctx); err != nil {
			return nil, claudeerr.Wrap(err)
		}
	}
}

// Close releases the session's watch slot so a future caller may watch it.
func (w *Watch) Close() {
	if w.closed {
		return
	}
	w.closed = true
	watchers.mu.Lock()
	delete(watchers.live, w.sessionID)
	watchers.mu.Unlock()
}
