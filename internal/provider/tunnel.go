package provider

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/ids"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

var tunnelLog = logging.ForComponent(logging.CompProvider)

// Authorizer is the subset of the tunnel-auth state machine the tunnel
// provider depends on, so this package does not import tunnelauth directly
// (it is a peer package; the orchestrator wires them together).
type Authorizer interface {
	IsAuthorized(tunnelID string) bool
}

// wireFrame is the framing the tunnel provider exchanges with the remote
// peer over the websocket connection: a type tag plus a JSON payload.
type wireFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type tunnelSession struct {
	mu    sync.Mutex
	state SessionState
	conn  *websocket.Conn
}

// TunnelProvider relays prompt/output traffic to a remote peer over a
// gorilla/websocket connection. CreateSession is refused for tunnels whose
// auth is not satisfied per the Authorizer (§4.3.1).
type TunnelProvider struct {
	id         string
	endpointID string
	dialURL    string
	auth       Authorizer
	descriptor Descriptor

	mu       sync.RWMutex
	sessions map[string]*tunnelSession
}

func NewTunnelProvider(id, endpointID, dialURL string, auth Authorizer) *TunnelProvider {
	return &TunnelProvider{
		id:         id,
		endpointID: endpointID,
		dialURL:    dialURL,
		auth:       auth,
		descriptor: Descriptor{
			ID:              id,
			Kind:            "tunnel",
			SupportsTunnels: true,
			Priority:        20,
		},
		sessions: make(map[string]*tunnelSession),
	}
}

// Configure sets the supported-model list and selection priority, filled in
// by the caller from boot config since they aren't known at construction.
func (p *TunnelProvider) Configure(supportedModels []string, priority int) {
	p.descriptor.SupportedModels = supportedModels
	if priority != 0 {
		p.descriptor.Priority = priority
	}
}

func (p *TunnelProvider) ID() string            { return p.id }
func (p *TunnelProvider) Descriptor() Descriptor { return p.descriptor }

func (p *TunnelProvider) Health(ctx context.Context) HealthStatus {
	if !p.auth.IsAuthorized(p.endpointID) {
		return HealthDegraded
	}
	return HealthHealthy
}

func (p *TunnelProvider) CreateSession(ctx context.Context, req *Request) (string, error) {
	if !p.auth.IsAuthorized(p.endpointID) {
		return "", claudeerr.AuthRequired("tunnel is not authorized")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.dialURL, nil)
	if err != nil {
		return "", claudeerr.Unavailable("tunnel dial failed: " + err.Error())
	}

	sessionID := ids.NewSession()
	frame := wireFrame{Type: "create_session", SessionID: sessionID}
	payload, _ := json.Marshal(req)
	frame.Payload = payload
	if err := conn.WriteJSON(frame); err != nil {
		conn.Close()
		return "", claudeerr.Unavailable("tunnel write failed: " + err.Error())
	}

	sess := &tunnelSession{
		state: SessionState{Kind: StatusCreating, ProviderID: p.id, Model: req.Model, TunnelEndpoint: p.endpointID},
		conn:  conn,
	}
	p.mu.Lock()
	p.sessions[sessionID] = sess
	p.mu.Unlock()

	go p.readLoop(sessionID, sess)

	tunnelLog.Info("tunnel_session_created", "session_id", sessionID, "endpoint", p.endpointID)
	return sessionID, nil
}

func (p *TunnelProvider) readLoop(sessionID string, sess *tunnelSession) {
	for {
		var frame wireFrame
		if err := sess.conn.ReadJSON(&frame); err != nil {
			sess.mu.Lock()
			if !sess.state.Kind.Terminal() {
				sess.state.Kind = StatusFailed
				sess.state.Error = "tunnel connection closed"
			}
			sess.mu.Unlock()
			return
		}

		sess.mu.Lock()
		switch frame.Type {
		case "running":
			sess.state.Kind = StatusRunning
		case "output":
			sess.state.Kind = StatusIdle
			sess.state.LastResponse = frame.Payload
		case "complete":
			sess.state.Kind = StatusComplete
			sess.state.LastResponse = frame.Payload
		case "failed":
			sess.state.Kind = StatusFailed
			sess.state.Error = string(frame.Payload)
		}
		terminal := sess.state.Kind.Terminal()
		sess.mu.Unlock()

		if terminal {
			return
		}
	}
}

func (p *TunnelProvider) lookup(sessionID string) (*tunnelSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[sessionID]
	return s, ok
}

func (p *TunnelProvider) SendPrompt(ctx context.Context, sessionID string, text string) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	payload, _ := json.Marshal(text)
	frame := wireFrame{Type: "prompt", SessionID: sessionID, Payload: payload}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return claudeerr.Wrap(sess.conn.WriteJSON(frame))
}

func (p *TunnelProvider) PollOutput(ctx context.Context, sessionID string) (*Chunk, error) {
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

func (p *TunnelProvider) GetSession(ctx context.Context, sessionID string) (*SessionState, bool) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	st := sess.state
	return &st, true
}

func (p *TunnelProvider) ApproveTool(ctx context.Context, sessionID string, approved bool) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	payload, _ := json.Marshal(map[string]bool{"approved": approved})
	frame := wireFrame{Type: "approve_tool", SessionID: sessionID, Payload: payload}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return claudeerr.Wrap(sess.conn.WriteJSON(frame))
}

func (p *TunnelProvider) ForkSession(ctx context.Context, sessionID string) (string, error) {
	_, ok := p.lookup(sessionID)
	if !ok {
		return "", claudeerr.NotFound("session not found")
	}
	return "", claudeerr.Unavailable("fork is not supported across tunnel providers")
}

func (p *TunnelProvider) controlVerb(sessionID, verb string) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	frame := wireFrame{Type: verb, SessionID: sessionID}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return claudeerr.Wrap(sess.conn.WriteJSON(frame))
}

func (p *TunnelProvider) Stop(ctx context.Context, sessionID string) error   { return p.controlVerb(sessionID, "stop") }
func (p *TunnelProvider) Pause(ctx context.Context, sessionID string) error  { return p.controlVerb(sessionID, "pause") }
func (p *TunnelProvider) Resume(ctx context.Context, sessionID string) error { return p.controlVerb(sessionID, "resume") }

func (p *TunnelProvider) ToolLog(ctx context.Context, sessionID string) ([]ToolLogEntry, error) {
	if _, ok := p.lookup(sessionID); !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	return nil, nil
}

func (p *TunnelProvider) PendingTool(ctx context.Context, sessionID string) (*PendingTool, error) {
	if _, ok := p.lookup(sessionID); !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	return nil, nil
}
