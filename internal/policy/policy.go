// Package policy holds the declarative constraints the orchestrator
// validates a request against before a provider is selected or budget is
// reserved: allowed/blocked models and tools, tunnel membership,
// concurrency, cost ceilings, and isolation mode.
package policy

import (
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
)

// IsolationMode controls whether sessions attach a container descriptor.
type IsolationMode string

const (
	IsolationNone      IsolationMode = "none"
	IsolationContainer IsolationMode = "container"
)

// Autonomy is a per-request level governing tool invocation policy.
type Autonomy string

const (
	AutonomyManual            Autonomy = "manual"
	AutonomyApproveEach       Autonomy = "approve-each"
	AutonomyApproveDestructive Autonomy = "approve-destructive"
	AutonomyFull              Autonomy = "full"
)

// Policy is the full set of recognized configuration options, round-tripped
// wholesale as JSON via the /policy namespace path.
type Policy struct {
	DefaultAutonomy       Autonomy      `json:"default_autonomy" validate:"omitempty,oneof=manual approve-each approve-destructive full"`
	AllowedModels         []string      `json:"allowed_models"`
	BlockedModels         []string      `json:"blocked_models"`
	AllowedTools          []string      `json:"allowed_tools"`
	BlockedTools          []string      `json:"blocked_tools"`
	ApprovalRequiredTools []string      `json:"approval_required_tools"`
	AllowedTunnels        []string      `json:"allowed_tunnels"`
	MaxConcurrent         int           `json:"max_concurrent" validate:"gte=0"`
	DefaultMaxCostUSD     int64         `json:"default_max_cost_usd" validate:"gte=0"`
	RequireMaxCost        bool          `json:"require_max_cost"`
	MaxCostUSDPerTick     int64         `json:"max_cost_usd_per_tick" validate:"gte=0"`
	MaxCostUSDPerDay      int64         `json:"max_cost_usd_per_day" validate:"gte=0"`
	MaxContextTokens      int           `json:"max_context_tokens" validate:"gte=0"`
	RequireIdempotency    bool          `json:"require_idempotency"`
	IsolationMode         IsolationMode `json:"isolation_mode" validate:"omitempty,oneof=none container"`
}

// Default returns a zero-value-safe starting policy: no restrictions beyond
// those the zero value already implies (empty allow-lists allow everything).
func Default() Policy {
	return Policy{
		DefaultAutonomy: AutonomyApproveEach,
		IsolationMode:   IsolationNone,
	}
}

var validate = validator.New()

// Validate checks struct-tag constraints (enums, non-negative numbers).
// Cross-field gate logic (model/tool/tunnel matching) lives in gate.go,
// since validator/v10 only covers shape, not the policy-vs-request relation.
func (p Policy) Validate() error {
	return validate.Struct(p)
}

// Store guards the live policy behind a reader-writer lock; policy is
// read-mostly with occasional full replacement via the /policy path.
type Store struct {
	mu sync.RWMutex
	p  Policy
}

func NewStore(initial Policy) *Store {
	return &Store{p: initial}
}

func (s *Store) Get() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

// Set replaces the policy wholesale, matching the source's write semantics
// for /policy (full replace, never merge).
func (s *Store) Set(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
	return nil
}

// matchAny reports whether name equals or matches any of the glob-like
// patterns. filepath.Match is used for the glob semantics (*, ?, [...]).
func matchAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if pat == name {
			return true
		}
		if ok, err := filepath.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}
