// Package orchestrator glues budget, policy, router, registry, and journal
// together: it validates requests, selects a provider, reserves budget,
// records sessions, reconciles on terminal state, and is the thing the
// namespace surface calls into for every operation (§4.4).
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/asheshgoplani/claude-orchestrator/internal/budget"
	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/idempotency"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
	"github.com/asheshgoplani/claude-orchestrator/internal/policy"
	"github.com/asheshgoplani/claude-orchestrator/internal/provider"
	"github.com/asheshgoplani/claude-orchestrator/internal/registry"
	"github.com/asheshgoplani/claude-orchestrator/internal/router"
)

var log = logging.ForComponent(logging.CompOrchestrator)

// DefaultIdempotencyTTL is the recommended TTL from §6.3.
const DefaultIdempotencyTTL = time.Hour

// Orchestrator is the core subject of this module.
type Orchestrator struct {
	AgentID string

	policy   *policy.Store
	budget   *budget.Tracker
	router   *router.Router
	registry *registry.Registry
	journal  idempotency.Journal

	reconcileMu sync.Mutex
}

// New builds an Orchestrator over already-constructed collaborators. The
// caller wires providers into router before passing it in.
func New(agentID string, pol *policy.Store, b *budget.Tracker, r *router.Router, reg *registry.Registry, j idempotency.Journal) *Orchestrator {
	return &Orchestrator{
		AgentID:  agentID,
		policy:   pol,
		budget:   b,
		router:   r,
		registry: reg,
		journal:  j,
	}
}

// Submit implements §4.4.1's sixteen-step algorithm.
func (o *Orchestrator) Submit(ctx context.Context, req *provider.Request) (*Handle, error) {
	pol := o.policy.Get()

	// Step 1: idempotency pre-check.
	if pol.RequireIdempotency && req.IdempotencyKey == "" {
		return nil, claudeerr.IdempotencyRequired()
	}

	// Step 2: merge defaults.
	req.Autonomy = pol.ResolveAutonomy(req.Autonomy)
	req.MaxContextTokens = pol.ClampContextTokens(req.MaxContextTokens)

	// Step 3: cost cap.
	budgetState := o.budget.State()
	costCap, err := pol.ResolveCostCap(req.MaxCostUSD, budgetState.Tick.LimitUSD, budgetState.Day.LimitUSD)
	if err != nil {
		return nil, err
	}
	req.MaxCostUSD = costCap

	// Step 4: model gate.
	if err := pol.CheckModel(req.Model); err != nil {
		return nil, err
	}

	// Step 5: tunnel gate.
	if err := pol.CheckTunnel(req.TunnelEndpoint); err != nil {
		return nil, err
	}

	// Step 6: concurrency gate.
	activeCount := o.registry.CountNonTerminal(o.isTerminal(ctx))
	if err := pol.CheckConcurrency(activeCount); err != nil {
		return nil, err
	}

	// Step 7: tool gate.
	toolNames := req.ToolNames()
	if err := pol.CheckTools(toolNames); err != nil {
		return nil, err
	}

	// Step 8: synthesize effective tool policy.
	req.Internal.ToolPolicy = pol.SynthesizeToolPolicy(toolNames, req.Autonomy)

	// Step 9: provider selection.
	p, err := o.router.Select(ctx, req, pol)
	if err != nil {
		return nil, err
	}

	// Step 10: isolation resolution.
	if pol.IsolationMode == policy.IsolationContainer {
		kind := p.Descriptor().Kind
		if kind == "local" || kind == "cloud" {
			req.Internal.Isolation = &provider.IsolationConfig{Image: "claude-session:latest"}
		}
	}

	// Step 11: idempotency lookup.
	var scopedKey string
	if req.IdempotencyKey != "" {
		scopedKey = idempotency.ScopedKey(o.AgentID, p.ID(), req.IdempotencyKey)
		if cached, ok, err := o.journal.Get(ctx, scopedKey); err == nil && ok {
			var handle Handle
			if err := json.Unmarshal(cached, &handle); err == nil {
				if _, found := o.registry.Get(handle.SessionID); !found {
					o.registry.Insert(handle.SessionID, p.ID(), budget.Reservation{})
					o.registry.MarkReconciled(handle.SessionID)
				}
				return &handle, nil
			}
		}
	}

	// Step 12: reservation, with defensive post-reserve re-check.
	reservation, err := o.budget.Reserve(req.MaxCostUSD)
	if err != nil {
		return nil, err
	}
	live := o.policy.Get()
	after := o.budget.State()
	overTick := live.MaxCostUSDPerTick > 0 && after.Tick.ReservedUSD+after.Tick.SpentUSD > live.MaxCostUSDPerTick
	overDay := live.MaxCostUSDPerDay > 0 && after.Day.ReservedUSD+after.Day.SpentUSD > live.MaxCostUSDPerDay
	if !o.budget.WithinCeilings() || overTick || overDay {
		o.budget.Release(reservation)
		return nil, claudeerr.BudgetExceeded("policy ceilings tightened after reservation")
	}

	// Step 13: create session.
	sessionID, err := p.CreateSession(ctx, req)
	if err != nil {
		o.budget.Release(reservation)
		return nil, claudeerr.Wrap(err)
	}

	// Step 14: register.
	o.registry.Insert(sessionID, p.ID(), reservation)

	// Step 16 (the handle is built before step 15 since the journal entry
	// embeds it).
	handle := handleFor(sessionID)

	// Step 15: persist idempotent handle, best-effort.
	if scopedKey != "" {
		if raw, err := json.Marshal(handle); err == nil {
			if err := o.journal.Put(ctx, scopedKey, raw, DefaultIdempotencyTTL); err != nil {
				log.Warn("idempotency_put_failed", "session_id", sessionID, "error", err.Error())
			}
		}
	}

	log.Info("session_submitted", "session_id", sessionID, "provider_id", p.ID(), "model", req.Model)
	return &handle, nil
}

// isTerminal builds the predicate CountNonTerminal needs, scoped to this
// request's context. It must not block or re-enter the registry.
func (o *Orchestrator) isTerminal(ctx context.Context) func(sessionID, providerID string) bool {
	return func(sessionID, providerID string) bool {
		p, ok := o.router.Get(providerID)
		if !ok {
			return true
		}
		st, ok := p.GetSession(ctx, sessionID)
		if !ok {
			return true
		}
		return st.Kind.Terminal()
	}
}

// reconcile implements §4.4.2, guarded by a mutex so two concurrent readers
// never double-reconcile.
func (o *Orchestrator) reconcile(ctx context.Context, sessionID string) (*provider.SessionState, error) {
	o.reconcileMu.Lock()
	defer o.reconcileMu.Unlock()

	entry, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}

	p, ok := o.router.Get(entry.ProviderID)
	if !ok {
		return nil, claudeerr.Unavailable("owning provider is no longer registered")
	}

	state, ok := p.GetSession(ctx, sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found at provider")
	}

	if entry.Reconciled {
		return state, nil
	}

	switch state.Kind {
	case provider.StatusComplete:
		if err := o.budget.Reconcile(entry.Reservation, state.CostUSD); err != nil {
			return state, err
		}
		o.registry.MarkReconciled(sessionID)
	case provider.StatusFailed:
		o.budget.Release(entry.Reservation)
		o.registry.MarkReconciled(sessionID)
	}

	return state, nil
}

// Status returns the current (post-reconcile) session state.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (*provider.SessionState, error) {
	return o.reconcile(ctx, sessionID)
}

// Response returns the final/last response, reconciling first.
func (o *Orchestrator) Response(ctx context.Context, sessionID string) (json.RawMessage, error) {
	st, err := o.reconcile(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.Kind == provider.StatusFailed {
		return nil, claudeerr.Wrap(&claudeerr.ClaudeError{Kind: claudeerr.KindOther, Message: st.Error})
	}
	return st.LastResponse, nil
}

// Context returns the latest response without triggering reconciliation
// (§12's supplemented /sessions/<id>/context semantics).
func (o *Orchestrator) Context(ctx context.Context, sessionID string) (json.RawMessage, error) {
	entry, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	p, ok := o.router.Get(entry.ProviderID)
	if !ok {
		return nil, claudeerr.Unavailable("owning provider is no longer registered")
	}
	st, ok := p.GetSession(ctx, sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found at provider")
	}
	return st.LastResponse, nil
}

// SessionUsage is one session's usage and reservation, in JSON shape.
type SessionUsage struct {
	ReservedUSD int64           `json:"reserved_usd"`
	CostUSD     int64           `json:"cost_usd"`
	Usage       *provider.Usage `json:"usage,omitempty"`
}

func (o *Orchestrator) SessionUsage(ctx context.Context, sessionID string) (*SessionUsage, error) {
	state, err := o.reconcile(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entry, _ := o.registry.Get(sessionID)
	return &SessionUsage{
		ReservedUSD: entry.Reservation.Amount,
		CostUSD:     state.CostUSD,
		Usage:       state.Usage,
	}, nil
}

// Usage (budget) returns the top-level tick/day window state for /usage.
func (o *Orchestrator) Usage() budget.State {
	return o.budget.State()
}

// Policy returns/sets the live policy for /policy.
func (o *Orchestrator) Policy() policy.Policy          { return o.policy.Get() }
func (o *Orchestrator) SetPolicy(p policy.Policy) error { return o.policy.Set(p) }

// Prompt implements §4.4.3's prompt write path.
func (o *Orchestrator) Prompt(ctx context.Context, sessionID string, text string) error {
	if text == "" {
		return nil // empty buffer is a no-op
	}
	entry, ok := o.registry.Get(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	p, ok := o.router.Get(entry.ProviderID)
	if !ok {
		return claudeerr.Unavailable("owning provider is no longer registered")
	}
	if err := p.SendPrompt(ctx, sessionID, text); err != nil {
		return claudeerr.Wrap(err)
	}
	return nil
}

// ApproveTool implements §4.4.3's tool approval path.
func (o *Orchestrator) ApproveTool(ctx context.Context, sessionID string, approved bool) error {
	entry, ok := o.registry.Get(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	p, ok := o.router.Get(entry.ProviderID)
	if !ok {
		return claudeerr.Unavailable("owning provider is no longer registered")
	}
	if err := p.ApproveTool(ctx, sessionID, approved); err != nil {
		return claudeerr.Wrap(err)
	}
	return nil
}

// Fork implements §4.4.3's fork path: the new session is registered with a
// fresh zero-amount, already-reconciled reservation (§9 Open Question #2).
func (o *Orchestrator) Fork(ctx context.Context, sessionID string) (string, error) {
	entry, ok := o.registry.Get(sessionID)
	if !ok {
		return "", claudeerr.NotFound("session not found")
	}
	p, ok := o.router.Get(entry.ProviderID)
	if !ok {
		return "", claudeerr.Unavailable("owning provider is no longer registered")
	}

	newID, err := p.ForkSession(ctx, sessionID)
	if err != nil {
		return "", claudeerr.Wrap(err)
	}

	o.registry.Insert(newID, p.ID(), budget.Reservation{})
	o.registry.MarkReconciled(newID)
	return newID, nil
}

// Control implements §4.4.3's stop|pause|resume path.
func (o *Orchestrator) Control(ctx context.Context, sessionID string, command string) error {
	entry, ok := o.registry.Get(sessionID)
	if !ok {
		return claudeerr.NotFound("session not found")
	}
	p, ok := o.router.Get(entry.ProviderID)
	if !ok {
		return claudeerr.Unavailable("owning provider is no longer registered")
	}

	var err error
	switch command {
	case "stop":
		err = p.Stop(ctx, sessionID)
	case "pause":
		err = p.Pause(ctx, sessionID)
	case "resume":
		err = p.Resume(ctx, sessionID)
	default:
		return claudeerr.InvalidRequest("unknown command: " + command)
	}
	if err != nil {
		return claudeerr.Wrap(err)
	}
	return nil
}

// ToolLog and PendingTool implement the remaining §6.1 session observation paths.
func (o *Orchestrator) ToolLog(ctx context.Context, sessionID string) ([]provider.ToolLogEntry, error) {
	entry, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	p, ok := o.router.Get(entry.ProviderID)
	if !ok {
		return nil, claudeerr.Unavailable("owning provider is no longer registered")
	}
	return p.ToolLog(ctx, sessionID)
}

func (o *Orchestrator) PendingTool(ctx context.Context, sessionID string) (*provider.PendingTool, error) {
	entry, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, claudeerr.NotFound("session not found")
	}
	p, ok := o.router.Get(entry.ProviderID)
	if !ok {
		return nil, claudeerr.Unavailable("owning provider is no longer registered")
	}
	return p.PendingTool(ctx, sessionID)
}

// Providers exposes the router's provider set for the namespace's
// /providers/* read paths.
func (o *Orchestrator) Providers() []provider.Provider {
	return o.router.All()
}
