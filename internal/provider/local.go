package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/ids"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

var localLog = logging.ForComponent(logging.CompProvider)

// localSession tracks one pty-backed Claude process and its transcript tail.
type localSession struct {
	mu      sync.Mutex
	state   SessionState
	cmd     *exec.Cmd
	ptyFile *os.File
	transcriptPath string
	offset  int64
	pending *PendingTool
	toolLog []ToolLogEntry
}

// LocalProvider spawns the Claude binary under a pty and tails its JSONL
// transcript file with fsnotify instead of busy-polling, grounded on the
// teacher's local-tool session/claude.go discovery pattern and its
// event_watcher.go fsnotify usage.
type LocalProvider struct {
	id          string
	binaryPath  string
	workDir     string
	descriptor  Descriptor

	mu       sync.RWMutex
	sessions map[string]*localSession
}

// NewLocalProvider constructs a local provider that spawns binaryPath for
// each session, writing transcripts under workDir.
func NewLocalProvider(id, binaryPath, workDir string, supportedModels []string) *LocalProvider {
	return &LocalProvider{
		id:         id,
		binaryPath: binaryPath,
		workDir:    workDir,
		descriptor: Descriptor{
			ID:              id,
			Kind:            "local",
			SupportedModels: supportedModels,
			SupportsTunnels: false,
			Priority:        10,
		},
		sessions: make(map[string]*localSession),
	}
}

// SetPriority overrides the router tie-break priority from boot config.
func (p *LocalProvider) SetPriority(priority int) {
	if priority != 0 {
		p.descriptor.Priority = priority
	}
}

func (p *LocalProvider) ID() string               { return p.id }
func (p *LocalProvider) Descriptor() Descriptor    { return p.descriptor }

func (p *LocalProvider) Health(ctx context.Context) HealthStatus {
	if _, err := os.Stat(p.binaryPath); err != nil {
		return HealthUnhealthy
	}
	return HealthHealthy
}

func (p *LocalProvider) CreateSession(ctx context.Context, req *Request) (string, error) {
	sessionID := ids.NewSession()
	transcriptPath := filepath.Join(p.workDir, sessionID+".jsonl")

	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return "", claudeerr.Unavailable("cannot create work dir: " + err.Error())
	}

	cmd := exec.CommandContext(ctx, p.binaryPath, "--model", req.Model, "--output-format", "jsonl", "--transcript", transcriptPath)
	ptyFile, err := pty.Start(cmd)
	if err != nil {
		return "", claudeerr.Unavailable("failed to spawn local provider process: " + err.Error())
	}

	sess := &localSession{
		state:          SessionState{Kind: StatusCreating, ProviderID: p.id, Model: req.Model},
		cmd:            cmd,
		ptyFile:        ptyFile,
		transcriptPath: transcriptPath,
	}

	p.mu.Lock()
	p.sessions[sessionID] = sess
	p.mu.Unlock()

	go p.watchTranscript(sessionID, sess)

	localLog.Info("local_session_created", "session_id", sessionID, "model", req.Model)
	return sessionID, nil
}

// watchTranscript tails the transcript file with fsnotify, falling back to a
// short poll if the file does not exist yet (the process may not have
// created it the instant the pty started).
func (p *LocalProvider) watchTranscript(sessionID string, sess *localSession) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		localLog.Error("fsnotify_init_failed", "error", err.Error())
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(sess.transcriptPath)
	if err := watcher.Add(dir); err != nil {
		localLog.Error("fsnotify_watch_failed", "dir", dir, "error", err.Error())
		return
	}

	sess.mu.Lock()
	sess.state.Kind = StatusRunning
	sess.mu.Unlock()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name == sess.transcriptPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				p.drainTranscript(sess)
			}
		case <-time.After(5 * time.Second):
			p.drainTranscript(sess)
		}

		sess.mu.Lock()
		terminal := sess.state.Kind.Terminal()
		sess.mu.Unlock()
		if terminal {
			return
		}
	}
}

// transcriptLine mirrors the shape the source's claude session JSONL lines
// carry: a type tag plus whichever payload goes with it.
type transcriptLine struct {
	Type    string          `json:"type"`
	Tool    string          `json:"tool,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Text    json.RawMessage `json:"text,omitempty"`
	CostUSD int64           `json:"cost_usd,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (p *LocalProvider) drainTranscript(sess *localSession) {
	f, err := os.Open(sess.transcriptPath)
	if err != nil {
		return
	}
	defer f.Close()

	sess.mu.Lock()
	offset := sess.offset
	sess.mu.Unlock()

	if _, err := f.Seek(offset, 0); err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	var newOffset int64 = offset
	for scanner.Scan() {
		line := scanner.Bytes()
		newOffset += int64(len(line)) + 1

		var tl transcriptLine
		if err := json.Unmarshal(line, &tl); err != nil {
			continue
		}

		sess.mu.Lock()
		switch tl.Type {
		case "tool_call":
			sess.pending = &PendingTool{Tool: tl.Tool, Args: tl.Args}
			sess.state.Kind = StatusAwaitingToolApproval
			sess.state.PendingTool = sess.pending
		case "complete":
			sess.state.Kind = StatusComplete
			sess.state.LastResponse = tl.Text
			sess.state.CostUSD = tl.CostUSD
		case "error":
			sess.state.Kind = StatusFailed
			sess.state.Error = tl.Error
		case "idle":
			sess.state.Kind = StatusIdle
			sess.state.LastResponse = tl.Text
		}
		sess.mu.Unlock()
	}

	sess.mu.Lock()
	sess.offset = newOffset
	sess.mu.Unlock()
}

func (p *LocalProvider) lookup(sessionID string) (*localSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[sessionID]
	return s, ok
}

func (p *LocalProvider) SendPrompt(ctx context.Context, sessionID string, text string) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	terminal := sess.state.Kind.Terminal()
	sess.mu.Unlock()
	if terminal {
		return claudeerr.InvalidRequest("session is terminal")
	}
	if _, err := fmt.Fprintln(sess.ptyFile, text); err != nil {
		return claudeerr.Wrap(err)
	}
	return nil
}

func (p *LocalProvider) PollOutput(ctx context.Context, sessionID string) (*Chunk, error) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.LastResponse == nil {
		return nil, nil
	}
	chunk := &Chunk{Data: sess.state.LastResponse, Timestamp: time.Now()}
	return chunk, nil
}

func (p *LocalProvider) GetSession(ctx context.Context, sessionID string) (*SessionState, bool) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	st := sess.state
	return &st, true
}

func (p *LocalProvider) ApproveTool(ctx context.Context, sessionID string, approved bool) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}

	sess.mu.Lock()
	pending := sess.pending
	sess.mu.Unlock()
	if pending == nil {
		return claudeerr.InvalidRequest("no pending tool approval")
	}

	entry := ToolLogEntry{
		ID:        ids.NewToolLogEntry(),
		ToolName:  pending.Tool,
		Args:      pending.Args,
		StartedAt: time.Now(),
	}

	if approved {
		if _, err := fmt.Fprintln(sess.ptyFile, "__approve_tool__"); err != nil {
			return claudeerr.Wrap(err)
		}
		entry.Outcome = ToolOutcomeOK
	} else {
		if _, err := fmt.Fprintln(sess.ptyFile, "__deny_tool__"); err != nil {
			return claudeerr.Wrap(err)
		}
		entry.Outcome = ToolOutcomeDenied
	}
	now := time.Now()
	entry.FinishedAt = &now

	sess.mu.Lock()
	sess.toolLog = append(sess.toolLog, entry)
	sess.pending = nil
	sess.state.PendingTool = nil
	sess.state.Kind = StatusRunning
	sess.mu.Unlock()

	return nil
}

func (p *LocalProvider) ForkSession(ctx context.Context, sessionID string) (string, error) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return "", claudeerr.NotFound("session not found")
	}

	sess.mu.Lock()
	parentTranscript := sess.transcriptPath
	model := sess.state.Model
	sess.mu.Unlock()

	newID := ids.NewSession()
	newTranscript := filepath.Join(p.workDir, newID+".jsonl")
	if err := copyFile(parentTranscript, newTranscript); err != nil {
		return "", claudeerr.Wrap(err)
	}

	newSess := &localSession{
		state:          SessionState{Kind: StatusIdle, ProviderID: p.id, Model: model},
		transcriptPath: newTranscript,
	}
	p.mu.Lock()
	p.sessions[newID] = newSess
	p.mu.Unlock()

	return newID, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return os.WriteFile(dst, nil, 0o644)
		}
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (p *LocalProvider) Stop(ctx context.Context, sessionID string) error {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cmd != nil && sess.cmd.Process != nil {
		_ = sess.cmd.Process.Kill()
	}
	sess.state.Kind = StatusFailed
	sess.state.Error = "stopped"
	return nil
}

func (p *LocalProvider) Pause(ctx context.Context, sessionID string) error {
	_, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (p *LocalProvider) Resume(ctx context.Context, sessionID string) error {
	_, ok := p.lookup(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	return nil
}

func (p *LocalProvider) ToolLog(ctx context.Context, sessionID string) ([]ToolLogEntry, error) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]ToolLogEntry, len(sess.toolLog))
	copy(out, sess.toolLog)
	return out, nil
}

func (p *LocalProvider) PendingTool(ctx context.Context, sessionID string) (*PendingTool, error) {
	sess, ok := p.lookup(sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.pending, nil
}
