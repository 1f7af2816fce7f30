// Package tunnelauth implements the per-tunnel challenge/response state
// machine: challenge issuance on read, signature-verified response on
// write, and allow-list enforcement (§4.5).
package tunnelauth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

var log = logging.ForComponent(logging.CompTunnelAuth)

// AuthKind tags a tunnel endpoint's authentication requirement.
type AuthKind string

const (
	AuthNone  AuthKind = "none"
	AuthNostr AuthKind = "nostr"
	AuthPSK   AuthKind = "psk"
)

// Endpoint is a named relay endpoint forwarding provider traffic to a
// remote peer (§3 Tunnel endpoint).
type Endpoint struct {
	ID            string   `json:"id"`
	URL           string   `json:"url"`
	Auth          AuthKind `json:"auth"`
	AllowedAgents []string `json:"allowed_agents,omitempty"`
}

// Challenge is a per-tunnel outstanding challenge value and its expiry.
type Challenge struct {
	TunnelID  string    `json:"tunnel_id"`
	Value     string    `json:"challenge"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Response is the client's signed reply to a challenge.
type Response struct {
	TunnelID  string `json:"tunnel_id"`
	Challenge string `json:"challenge"`
	Pubkey    string `json:"pubkey"`
	Signature string `json:"signature"`
}

// Status is the per-tunnel authorization snapshot exposed at /auth/status.
type Status struct {
	TunnelID             string     `json:"tunnel_id"`
	Authorized           bool       `json:"authorized"`
	Pubkey               string     `json:"pubkey,omitempty"`
	ChallengeExpiresAt   *time.Time `json:"challenge_expires_at,omitempty"`
}

// Signer is the external collaborator verifying a signature over challenge
// bytes for a given pubkey; the signature primitive itself is out of scope
// (§1) — only this verify contract is specified.
type Signer interface {
	Verify(pubkey string, message []byte, signature string) bool
}

// State holds every tunnel's endpoint config, outstanding challenge, and
// last-accepted response, guarded by a single reader-writer lock whose read
// path may upgrade to write to regenerate an expired challenge (§5).
type State struct {
	mu         sync.RWMutex
	endpoints  map[string]Endpoint
	challenges map[string]Challenge
	responses  map[string]Response
	signer     Signer
	ttl        time.Duration
}

func NewState(signer Signer, challengeTTL time.Duration) *State {
	return &State{
		endpoints:  make(map[string]Endpoint),
		challenges: make(map[string]Challenge),
		responses:  make(map[string]Response),
		signer:     signer,
		ttl:        challengeTTL,
	}
}

// SetEndpoints replaces the tunnel list wholesale (the /auth/tunnels write
// contract) and drops any stored response whose tunnel id no longer exists,
// matching the source's retain-by-membership behavior exactly.
func (s *State) SetEndpoints(endpoints []Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoints = make(map[string]Endpoint, len(endpoints))
	for _, e := range endpoints {
		s.endpoints[e.ID] = e
	}

	for id := range s.responses {
		if _, ok := s.endpoints[id]; !ok {
			delete(s.responses, id)
			delete(s.challenges, id)
		}
	}
}

// Endpoints returns a snapshot of all tunnel endpoints.
func (s *State) Endpoints() []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		out = append(out, e)
	}
	return out
}

// Challenges returns, for every known tunnel, a fresh-or-existing challenge,
// regenerating and clearing the stored response for any that has expired
// (§4.5's read-path contract). Mirrors the source's eager-construction
// AuthChallengeReadHandle.
func (s *State) Challenges() []Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]Challenge, 0, len(s.endpoints))
	for id := range s.endpoints {
		c, ok := s.challenges[id]
		if !ok || !c.ExpiresAt.After(now) {
			c = Challenge{
				TunnelID:  id,
				Value:     uuid.NewString(),
				ExpiresAt: now.Add(s.ttl),
			}
			s.challenges[id] = c
			delete(s.responses, id)
			log.Debug("challenge_regenerated", "tunnel_id", id)
		}
		out = append(out, c)
	}
	return out
}

// VerifyResponse implements the write-path of §4.5: validate the response
// against the stored challenge, allow-list, and signer, storing it on
// success.
func (s *State) VerifyResponse(resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[resp.TunnelID]
	if !ok {
		return claudeerr.InvalidRequest("unknown tunnel")
	}

	c, ok := s.challenges[resp.TunnelID]
	if !ok {
		return claudeerr.InvalidRequest("no challenge issued for tunnel")
	}
	if c.Value != resp.Challenge {
		return claudeerr.InvalidRequest("challenge mismatch")
	}
	if !c.ExpiresAt.After(time.Now()) {
		return claudeerr.InvalidRequest("challenge expired")
	}

	if len(ep.AllowedAgents) > 0 && !memberOf(ep.AllowedAgents, resp.Pubkey) {
		return claudeerr.InvalidRequest("agent not allowed")
	}

	if !s.signer.Verify(resp.Pubkey, []byte(resp.Challenge), resp.Signature) {
		return claudeerr.InvalidRequest("invalid signature")
	}

	s.responses[resp.TunnelID] = resp
	log.Info("tunnel_authorized", "tunnel_id", resp.TunnelID, "pubkey", resp.Pubkey)
	return nil
}

func memberOf(agents []string, pubkey string) bool {
	for _, a := range agents {
		if strEqualFold(a, pubkey) {
			return true
		}
	}
	return false
}

func strEqualFold(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// expireStaleResponseLocked drops tunnelID's stored response once its
// challenge has passed ExpiresAt. Must be called with s.mu held for write.
func (s *State) expireStaleResponseLocked(tunnelID string) {
	if c, exists := s.challenges[tunnelID]; exists && !c.ExpiresAt.After(time.Now()) {
		delete(s.responses, tunnelID)
	}
}

// IsAuthorized reports whether tunnelID currently has an accepted response,
// or is auth-exempt (AuthNone). A stored response whose challenge has
// expired is dropped first; the challenge itself is regenerated only by
// Challenges. psk tunnels are never
// authorized via this flow (§4.5).
func (s *State) IsAuthorized(tunnelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[tunnelID]
	if !ok {
		return false
	}
	if ep.Auth == AuthNone {
		return true
	}
	if ep.Auth == AuthPSK {
		return false
	}

	s.expireStaleResponseLocked(tunnelID)
	_, authorized := s.responses[tunnelID]
	return authorized
}

// Status returns the per-tunnel authorization snapshot for /auth/status.
// Every call expires and clears any response whose challenge has passed its
// TTL first, so a client polling only this path (never /auth/challenge)
// still observes a tunnel fall back to unauthorized once its challenge goes
// stale, instead of reporting a response that /auth/challenge would have
// already discarded.
func (s *State) Status() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.endpoints))
	for id, ep := range s.endpoints {
		if ep.Auth != AuthNone {
			s.expireStaleResponseLocked(id)
		}

		st := Status{TunnelID: id}
		if ep.Auth == AuthNone {
			st.Authorized = true
		} else if resp, ok := s.responses[id]; ok {
			st.Authorized = true
			st.Pubkey = resp.Pubkey
		}
		if c, ok := s.challenges[id]; ok {
			exp := c.ExpiresAt
			st.ChallengeExpiresAt = &exp
		}
		out = append(out, st)
	}
	return out
}
