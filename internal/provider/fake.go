package provider

import (
	"context"
	"sync"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/ids"
)

// Fake is a scriptable in-memory Provider used to drive the orchestrator's
// seed test scenarios (S1-S6) without spawning a real process or dialing a
// real tunnel.
type Fake struct {
	mu         sync.Mutex
	id         string
	descriptor Descriptor
	health     HealthStatus
	sessions   map[string]*SessionState
	toolLogs   map[string][]ToolLogEntry
	pending    map[string]*PendingTool

	// FailCreate, when set, makes CreateSession return this error.
	FailCreate error
	// AutoComplete, when set, makes CreateSession immediately mark the new
	// session Complete with this cost.
	AutoCompleteCostUSD int64
	AutoComplete        bool
}

func NewFake(id string, models []string) *Fake {
	return &Fake{
		id:         id,
		descriptor: Descriptor{ID: id, Kind: "fake", SupportedModels: models, Priority: 1},
		health:     HealthHealthy,
		sessions:   make(map[string]*SessionState),
		toolLogs:   make(map[string][]ToolLogEntry),
		pending:    make(map[string]*PendingTool),
	}
}

func (f *Fake) ID() string            { return f.id }
func (f *Fake) Descriptor() Descriptor { return f.descriptor }
func (f *Fake) SetHealth(h HealthStatus) { f.mu.Lock(); f.health = h; f.mu.Unlock() }
func (f *Fake) Health(ctx context.Context) HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *Fake) CreateSession(ctx context.Context, req *Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate != nil {
		return "", f.FailCreate
	}
	id := ids.NewSession()
	st := &SessionState{Kind: StatusRunning, ProviderID: f.id, Model: req.Model}
	if f.AutoComplete {
		st.Kind = StatusComplete
		st.CostUSD = f.AutoCompleteCostUSD
		st.LastResponse = []byte(`{"text":"done"}`)
	}
	f.sessions[id] = st
	return id, nil
}

func (f *Fake) SendPrompt(ctx context.Context, sessionID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.sessions[sessionID]
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	if st.Kind.Terminal() {
		return claudeerr.InvalidRequest("session is terminal")
	}
	return nil
}

func (f *Fake) PollOutput(ctx context.Context, sessionID string) (*Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.sessions[sessionID]
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	if st.LastResponse == nil {
		return nil, nil
	}
	return &Chunk{Data: st.LastResponse}, nil
}

func (f *Fake) GetSession(ctx context.Context, sessionID string) (*SessionState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.sessions[sessionID]
	if !ok {
		return nil, false
	}
	cp := *st
	return &cp, true
}

// SetState lets tests drive a session through its scripted lifecycle.
func (f *Fake) SetState(sessionID string, st SessionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID] = &st
}

// SetPendingTool scripts an AwaitingToolApproval state.
func (f *Fake) SetPendingTool(sessionID string, pt PendingTool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[sessionID] = &pt
	if st, ok := f.sessions[sessionID]; ok {
		st.Kind = StatusAwaitingToolApproval
		st.PendingTool = &pt
	}
}

func (f *Fake) ApproveTool(ctx context.Context, sessionID string, approved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pt, ok := f.pending[sessionID]
	if !ok {
		return claudeerr.InvalidRequest("no pending tool approval")
	}
	outcome := ToolOutcomeOK
	if !approved {
		outcome = ToolOutcomeDenied
	}
	f.toolLogs[sessionID] = append(f.toolLogs[sessionID], ToolLogEntry{
		ToolName: pt.Tool,
		Args:     pt.Args,
		Outcome:  outcome,
	})
	delete(f.pending, sessionID)
	if st, ok := f.sessions[sessionID]; ok {
		st.Kind = StatusRunning
		st.PendingTool = nil
	}
	return nil
}

func (f *Fake) ForkSession(ctx context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.sessions[sessionID]
	if !ok {
		return "", claudeerr.NotFound("session not found")
	}
	newID := ids.NewSession()
	f.sessions[newID] = &SessionState{Kind: StatusIdle, ProviderID: f.id, Model: st.Model}
	return newID, nil
}

func (f *Fake) Stop(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.sessions[sessionID]
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	st.Kind = StatusFailed
	st.Error = "stopped"
	return nil
}

func (f *Fake) Pause(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (f *Fake) Resume(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (f *Fake) ToolLog(ctx context.Context, sessionID string) ([]ToolLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toolLogs[sessionID], nil
}

func (f *Fake) PendingTool(ctx context.Context, sessionID string) (*PendingTool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[sessionID], nil
}
