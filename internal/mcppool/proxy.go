package mcppool

import (
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Proxy enforces an allow-list over which destination addresses worker
// sessions may reach through the pool's socket proxy, and counts
// allowed/denied traffic for /proxy/metrics. Proxy only gates and counts;
// it does no stdio/socket bridging itself.
type Proxy struct {
	mu        sync.RWMutex
	allowlist []string

	allowed atomic.Int64
	denied  atomic.Int64
}

func NewProxy(allowlist []string) *Proxy {
	return &Proxy{allowlist: append([]string(nil), allowlist...)}
}

// SetAllowlist replaces the allow-list wholesale, the /proxy/allowlist write
// contract.
func (p *Proxy) SetAllowlist(patterns []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowlist = append([]string(nil), patterns...)
}

func (p *Proxy) Allowlist() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.allowlist...)
}

// Allow reports whether target is permitted, counting the decision for
// /proxy/metrics. An empty allow-list permits everything.
func (p *Proxy) Allow(target string) bool {
	p.mu.RLock()
	patterns := p.allowlist
	p.mu.RUnlock()

	if len(patterns) == 0 {
		p.allowed.Add(1)
		return true
	}
	for _, pat := range patterns {
		if ok, err := filepath.Match(pat, target); err == nil && ok {
			p.allowed.Add(1)
			return true
		}
	}
	p.denied.Add(1)
	return false
}

// Metrics is the /proxy/metrics read shape.
type Metrics struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (p *Proxy) Metrics() Metrics {
	return Metrics{Allowed: p.allowed.Load(), Denied: p.denied.Load()}
}

// Status is the /proxy/status read shape.
type Status struct {
	AllowlistSize int `json:"allowlist_size"`
}

func (p *Proxy) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Status{AllowlistSize: len(p.allowlist)}
}
