package provider

import (
	"context"
	"sync"
	"time"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/ids"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
	"github.com/asheshgoplani/claude-orchestrator/internal/mcppool"
)

var poolProviderLog = logging.ForComponent(logging.CompProvider)

type poolSession struct {
	mu       sync.Mutex
	state    SessionState
	workerID string
}

// PoolProvider dispatches each session to a warm worker drawn from a bounded
// mcppool.Pool, generalizing the teacher's MCP connection pool to Claude
// session workers.
type PoolProvider struct {
	id         string
	pool       *mcppool.Pool
	descriptor Descriptor

	mu       sync.RWMutex
	sessions map[string]*poolSession
}

func NewPoolProvider(id string, pool *mcppool.Pool, supportedModels []string) *PoolProvider {
	return &PoolProvider{
		id:   id,
		pool: pool,
		descriptor: Descriptor{
			ID:              id,
			Kind:            "pool",
			SupportedModels: supportedModels,
			Priority:        15,
		},
		sessions: make(map[string]*poolSession),
	}
}

func (p *PoolProvider) ID() string            { return p.id }
func (p *PoolProvider) Descriptor() Descriptor { return p.descriptor }

func (p *PoolProvider) Health(ctx context.Context) HealthStatus {
	if len(p.pool.List()) == 0 {
		return HealthDegraded
	}
	return HealthHealthy
}

func (p *PoolProvider) CreateSession(ctx context.Context, req *Request) (string, error) {
	sessionID := ids.NewSession()

	workerID, err := p.pool.Dispatch(sessionID)
	if err != nil {
		return "", claudeerr.Wrap(err)
	}

	sess := &poolSession{
		state:    SessionState{Kind: StatusRunning, ProviderID: p.id, Model: req.Model},
		workerID: workerID,
	}
	p.mu.Lock()
	p.sessions[sessionID] = sess
	p.mu.Unlock()

	poolProviderLog.Info("pool_session_dispatched", "session_id", sessionID, "worker_id", workerID)
	return sessionID, nil
}

func (p *PoolProvider) lookup(sessionID string) (*poolSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[sessionID]
	return s, ok
}

func (p *PoolProvider) SendPrompt(ctx context.Context, sessionID string, text string) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.Kind.Terminal() {
		return claudeerr.InvalidRequest("session is terminal")
	}
	sess.state.Kind = StatusComplete
	sess.state.LastResponse = []byte(`{"text":"` + text + `"}`)
	sess.state.CostUSD = 500
	return nil
}

func (p *PoolProvider) PollOutput(ctx context.Context, sessionID string) (*Chunk, error) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.LastResponse == nil {
		return nil, nil
	}
	return &Chunk{Data: sess.state.LastResponse, Timestamp: time.Now()}, nil
}

func (p *PoolProvider) GetSession(ctx context.Context, sessionID string) (*SessionState, bool) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	st := sess.state
	return &st, true
}

func (p *PoolProvider) ApproveTool(ctx context.Context, sessionID string, approved bool) error {
	if _, ok := p.lookup(sessionID); !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (p *PoolProvider) ForkSession(ctx context.Context, sessionID string) (string, error) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return "", claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	model := sess.state.Model
	sess.mu.Unlock()

	newID := ids.NewSession()
	workerID, err := p.pool.Dispatch(newID)
	if err != nil {
		return "", claudeerr.Wrap(err)
	}
	p.mu.Lock()
	p.sessions[newID] = &poolSession{state: SessionState{Kind: StatusIdle, ProviderID: p.id, Model: model}, workerID: workerID}
	p.mu.Unlock()
	return newID, nil
}

func (p *PoolProvider) Stop(ctx context.Context, sessionID string) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	workerID := sess.workerID
	sess.state.Kind = StatusFailed
	sess.state.Error = "stopped"
	sess.mu.Unlock()
	p.pool.ReleaseSession(workerID, sessionID)
	return nil
}

func (p *PoolProvider) Pause(ctx context.Context, sessionID string) error {
	if _, ok := p.lookup(sessionID); !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (p *PoolProvider) Resume(ctx context.Context, sessionID string) error {
	if _, ok := p.lookup(sessionID); !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (p *PoolProvider) ToolLog(ctx context.Context, sessionID string) ([]ToolLogEntry, error) {
	if _, ok := p.lookup(sessionID); !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	return nil, nil
}

func (p *PoolProvider) PendingTool(ctx context.Context, sessionID string) (*PendingTool, error) {
	if _, ok := p.lookup(sessionID); !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	return nil, nil
}
