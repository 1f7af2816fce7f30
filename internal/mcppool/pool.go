package mcppool

import (
	"fmt"
	"sync"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

var poolLog = logging.ForComponent(logging.CompPool)

// Config mirrors the teacher's PoolConfig shape, generalized from
// MCP-server pooling knobs to session-worker pooling knobs.
type Config struct {
	Enabled     bool     `json:"enabled"`
	MaxWorkers  int      `json:"max_workers"`
	ExcludeTags []string `json:"exclude_tags,omitempty"`
}

// worker is one warm worker slot a pool-provider session is dispatched to.
type worker struct {
	mu       sync.Mutex
	desc     WorkerDescriptor
	requests int64
	errors   int64
}

// Pool is a bounded set of warm workers, load-balanced by active session
// count, adapted from the teacher's internal/mcppool socket-proxy pool.
type Pool struct {
	mu      sync.RWMutex
	config  Config
	workers map[string]*worker
}

func NewPool(config Config) *Pool {
	p := &Pool{
		config:  config,
		workers: make(map[string]*worker),
	}
	p.Bootstrap()
	return p
}

// Bootstrap tops up the worker set to config.MaxWorkers, starting any
// missing workers as Running, mirroring the teacher's pool_simple.go
// Start() being invoked once per configured MCP server at boot time — here
// each "worker" is a warm dispatch slot rather than a spawned process, so
// starting one is just registering and immediately marking it Running. A
// disabled pool or a non-positive MaxWorkers bootstraps no workers, leaving
// Dispatch to fail Unavailable as before.
func (p *Pool) Bootstrap() {
	p.mu.RLock()
	enabled, want := p.config.Enabled, p.config.MaxWorkers
	have := len(p.workers)
	p.mu.RUnlock()

	if !enabled {
		return
	}
	for i := have; i < want; i++ {
		id := fmt.Sprintf("pool-worker-%d", i)
		p.EnsureWorker(id, WorkerIsolation{Mode: "none"})
		p.MarkRunning(id)
	}
}

// EnsureWorker starts (or returns an existing) worker slot by id.
func (p *Pool) EnsureWorker(id string, isolation WorkerIsolation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.workers[id]; ok {
		return
	}
	p.workers[id] = &worker{desc: WorkerDescriptor{ID: id, Status: StatusStarting, Isolation: isolation}}
	poolLog.Info("worker_starting", "worker_id", id)
}

// MarkRunning flips a worker to Running once its backing process is up.
func (p *Pool) MarkRunning(id string) {
	p.mu.RLock()
	w, ok := p.workers[id]
	p.mu.RUnlock()
	if !ok {
		return
	}
	w.mu.Lock()
	w.desc.Status = StatusRunning
	w.mu.Unlock()
}

// Dispatch picks the least-loaded running worker for a new session and
// returns its id. Fails Unavailable if no worker is running.
func (p *Pool) Dispatch(sessionID string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *worker
	for _, w := range p.workers {
		w.mu.Lock()
		running := w.desc.Status == StatusRunning
		load := len(w.desc.Sessions)
		w.mu.Unlock()
		if !running {
			continue
		}
		if best == nil {
			best = w
			continue
		}
		best.mu.Lock()
		bestLoad := len(best.desc.Sessions)
		best.mu.Unlock()
		if load < bestLoad {
			best = w
		}
	}
	if best == nil {
		return "", claudeerr.Unavailable("no running pool workers available")
	}

	best.mu.Lock()
	best.desc.Sessions = append(best.desc.Sessions, sessionID)
	best.requests++
	best.desc.Metrics = WorkerMetrics{
		ActiveSessions: len(best.desc.Sessions),
		TotalRequests:  best.requests,
		ErrorRate:      errorRate(best.errors, best.requests),
	}
	id := best.desc.ID
	best.mu.Unlock()

	return id, nil
}

func errorRate(errors, requests int64) float64 {
	if requests == 0 {
		return 0
	}
	return float64(errors) / float64(requests)
}

// ReleaseSession removes a completed session from its worker's load list.
func (p *Pool) ReleaseSession(workerID, sessionID string) {
	p.mu.RLock()
	w, ok := p.workers[workerID]
	p.mu.RUnlock()
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	filtered := w.desc.Sessions[:0]
	for _, s := range w.desc.Sessions {
		if s != sessionID {
			filtered = append(filtered, s)
		}
	}
	w.desc.Sessions = filtered
	w.desc.Metrics.ActiveSessions = len(filtered)
}

// List returns a snapshot of all worker descriptors, sorted by id at the
// caller's discretion (the namespace layer sorts for stable listing).
func (p *Pool) List() []WorkerDescriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]WorkerDescriptor, 0, len(p.workers))
	for _, w := range p.workers {
		w.mu.Lock()
		out = append(out, w.desc)
		w.mu.Unlock()
	}
	return out
}

// Get returns one worker's descriptor.
func (p *Pool) Get(id string) (WorkerDescriptor, bool) {
	p.mu.RLock()
	w, ok := p.workers[id]
	p.mu.RUnlock()
	if !ok {
		return WorkerDescriptor{}, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.desc, true
}

// Config returns the pool's current configuration.
func (p *Pool) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// SetConfig replaces the pool configuration wholesale (the /pool/config
// path is a full-replace write, matching every other config surface in this
// module), then tops up workers to the new MaxWorkers via Bootstrap.
func (p *Pool) SetConfig(c Config) {
	p.mu.Lock()
	p.config = c
	p.mu.Unlock()
	p.Bootstrap()
}

// PoolStatus is the /pool/status read shape.
type PoolStatus struct {
	Enabled      bool `json:"enabled"`
	WorkerCount  int  `json:"worker_count"`
	RunningCount int  `json:"running_count"`
}

func (p *Pool) PoolStatus() PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := PoolStatus{Enabled: p.config.Enabled, WorkerCount: len(p.workers)}
	for _, w := range p.workers {
		w.mu.Lock()
		if w.desc.Status == StatusRunning {
			st.RunningCount++
		}
		w.mu.Unlock()
	}
	return st
}

// PoolMetrics is the /pool/metrics read shape, aggregated across workers.
type PoolMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	ErrorRate     float64 `json:"error_rate"`
}

func (p *Pool) PoolMetrics() PoolMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var reqs, errs int64
	for _, w := range p.workers {
		w.mu.Lock()
		reqs += w.requests
		errs += w.errors
		w.mu.Unlock()
	}
	return PoolMetrics{TotalRequests: reqs, TotalErrors: errs, ErrorRate: errorRate(errs, reqs)}
}
