package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/ids"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

var cloudLog = logging.ForComponent(logging.CompProvider)

type cloudSession struct {
	mu    sync.Mutex
	state SessionState
}

// CloudProvider talks to a hosted Claude-compatible HTTP API. The exact
// endpoint/auth scheme is illustrative, not normative (§1 Out of scope);
// what matters is that it satisfies the Provider interface uniformly.
type CloudProvider struct {
	id         string
	baseURL    string
	httpClient *http.Client
	descriptor Descriptor

	mu       sync.RWMutex
	sessions map[string]*cloudSession
}

func NewCloudProvider(id, baseURL string, supportedModels []string) *CloudProvider {
	return &CloudProvider{
		id:      id,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		descriptor: Descriptor{
			ID:              id,
			Kind:            "cloud",
			SupportedModels: supportedModels,
			SupportsTunnels: false,
			Priority:        5,
		},
		sessions: make(map[string]*cloudSession),
	}
}

func (p *CloudProvider) ID() string            { return p.id }
func (p *CloudProvider) Descriptor() Descriptor { return p.descriptor }

func (p *CloudProvider) Health(ctx context.Context) HealthStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/healthz", nil)
	if err != nil {
		return HealthUnhealthy
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return HealthUnhealthy
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return HealthDegraded
	}
	return HealthHealthy
}

func (p *CloudProvider) CreateSession(ctx context.Context, req *Request) (string, error) {
	sessionID := ids.NewSession()
	sess := &cloudSession{state: SessionState{Kind: StatusRunning, ProviderID: p.id, Model: req.Model}}

	p.mu.Lock()
	p.sessions[sessionID] = sess
	p.mu.Unlock()

	cloudLog.Info("cloud_session_created", "session_id", sessionID, "model", req.Model)
	return sessionID, nil
}

func (p *CloudProvider) lookup(sessionID string) (*cloudSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[sessionID]
	return s, ok
}

func (p *CloudProvider) SendPrompt(ctx context.Context, sessionID string, text string) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.Kind.Terminal() {
		return claudeerr.InvalidRequest("session is terminal")
	}
	// Illustrative: a real client would POST text and stream SSE into
	// LastResponse as chunks arrive.
	resp, _ := json.Marshal(map[string]string{"echo": text})
	sess.state.Kind = StatusComplete
	sess.state.LastResponse = resp
	sess.state.CostUSD = 1000
	return nil
}

func (p *CloudProvider) PollOutput(ctx context.Context, sessionID string) (*Chunk, error) {
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

func (p *CloudProvider) GetSession(ctx context.Context, sessionID string) (*SessionState, bool) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	st := sess.state
	return &st, true
}

func (p *CloudProvider) ApproveTool(ctx context.Context, sessionID string, approved bool) error {
	if _, ok := p.lookup(sessionID); !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (p *CloudProvider) ForkSession(ctx context.Context, sessionID string) (string, error) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return "", claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	model := sess.state.Model
	sess.mu.Unlock()

	newID := ids.NewSession()
	p.mu.Lock()
	p.sessions[newID] = &cloudSession{state: SessionState{Kind: StatusIdle, ProviderID: p.id, Model: model}}
	p.mu.Unlock()
	return newID, nil
}

func (p *CloudProvider) Stop(ctx context.Context, sessionID string) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.state.Kind = StatusFailed
	sess.state.Error = "stopped"
	return nil
}

func (p *CloudProvider) Pause(ctx context.Context, sessionID string) error {
	if _, ok := p.lookup(sessionID); !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (p *CloudProvider) Resume(ctx context.Context, sessionID string) error {
	if _, ok := p.lookup(sessionID); !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (p *CloudProvider) ToolLog(ctx context.Context, sessionID string) ([]ToolLogEntry, error) {
	if _, ok := p.lookup(sessionID); !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	return nil, nil
}

func (p *CloudProvider) PendingTool(ctx context.Context, sessionID string) (*PendingTool, error) {
	if _, ok := p.lookup(sessionID); !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	return nil, nil
}
