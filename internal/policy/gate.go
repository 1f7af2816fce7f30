package policy

import "github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"

// CheckModel enforces the allow/block model gate (§4.4.1 step 4): allow-list
// empty means allow all; the block-list is always enforced after.
func (p Policy) CheckModel(model string) error {
	if len(p.AllowedModels) > 0 && !matchAny(p.AllowedModels, model) {
		return claudeerr.InvalidRequest("model not allowed")
	}
	if matchAny(p.BlockedModels, model) {
		return claudeerr.InvalidRequest("model blocked")
	}
	return nil
}

// CheckTunnel enforces tunnel membership when a tunnel is requested and the
// allow-list is non-empty (§4.4.1 step 5).
func (p Policy) CheckTunnel(tunnelID string) error {
	if tunnelID == "" {
		return nil
	}
	if len(p.AllowedTunnels) > 0 && !matchAny(p.AllowedTunnels, tunnelID) {
		return claudeerr.InvalidRequest("tunnel not allowed")
	}
	return nil
}

// CheckConcurrency enforces the max_concurrent ceiling given the current
// count of non-terminal sessions for the agent (§4.4.1 step 6).
func (p Policy) CheckConcurrency(activeCount int) error {
	if p.MaxConcurrent > 0 && activeCount >= p.MaxConcurrent {
		return claudeerr.InvalidRequest("max_concurrent exceeded")
	}
	return nil
}

// CheckTools enforces the per-tool allow/block gate (§4.4.1 step 7).
func (p Policy) CheckTools(tools []string) error {
	for _, t := range tools {
		if len(p.AllowedTools) > 0 && !matchAny(p.AllowedTools, t) {
			return claudeerr.InvalidRequest("tool not allowed: " + t)
		}
		if matchAny(p.BlockedTools, t) {
			return claudeerr.InvalidRequest("tool blocked: " + t)
		}
	}
	return nil
}

// ToolPolicy is the effective, resolved tool policy synthesized at submit
// time and stored in the request's internal block (§4.4.1 step 8).
type ToolPolicy struct {
	Allowed          []string `json:"allowed"`
	Blocked          []string `json:"blocked"`
	ApprovalRequired []string `json:"approval_required"`
	Autonomy         Autonomy `json:"autonomy"`
}

// SynthesizeToolPolicy builds the effective tool policy for a request whose
// gates have already passed.
func (p Policy) SynthesizeToolPolicy(requestedTools []string, autonomy Autonomy) ToolPolicy {
	allowed := p.AllowedTools
	if len(allowed) == 0 {
		allowed = append(allowed, requestedTools...)
	}
	return ToolPolicy{
		Allowed:          allowed,
		Blocked:          p.BlockedTools,
		ApprovalRequired: p.ApprovalRequiredTools,
		Autonomy:         autonomy,
	}
}

// ResolveCostCap implements §4.4.1 step 3: if the request lacks a cost cap,
// fall back to the policy default, then to a required-field error, then to
// the smaller of the two non-zero budget limits.
func (p Policy) ResolveCostCap(requested int64, tickLimitUSD, dayLimitUSD int64) (int64, error) {
	if requested > 0 {
		return requested, nil
	}
	if p.DefaultMaxCostUSD > 0 {
		return p.DefaultMaxCostUSD, nil
	}
	if p.RequireMaxCost {
		return 0, claudeerr.MaxCostRequired()
	}
	return smallerNonZero(tickLimitUSD, dayLimitUSD), nil
}

func smallerNonZero(a, b int64) int64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// ResolveAutonomy implements §4.4.1 step 2's autonomy half: fill in the
// default when the request omits one.
func (p Policy) ResolveAutonomy(requested Autonomy) Autonomy {
	if requested == "" {
		return p.DefaultAutonomy
	}
	return requested
}

// ClampContextTokens implements §4.4.1 step 2's context-window half: clamp
// downward to the policy ceiling when set and exceeded (or when omitted).
func (p Policy) ClampContextTokens(requested int) int {
	if p.MaxContextTokens <= 0 {
		return requested
	}
	if requested <= 0 || requested > p.MaxContextTokens {
		return p.MaxContextTokens
	}
	return requested
}
