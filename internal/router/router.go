// Package router selects exactly one provider for a request given policy
// and provider health, per §4.2's deterministic ordering rules.
package router

import (
	"context"
	"log/slog"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
	"github.com/asheshgoplani/claude-orchestrator/internal/policy"
	"github.com/asheshgoplani/claude-orchestrator/internal/provider"
)

var log = logging.ForComponent(logging.CompRouter)

// RegistryLookup is the subset of the session registry the router's
// resume-session-id rule needs.
type RegistryLookup interface {
	ProviderIDFor(sessionID string) (string, error)
}

// Router holds the known provider set and a bounded health-result cache.
type Router struct {
	providers map[string]provider.Provider
	order     []string
	registry  RegistryLookup

	healthCache *lru.Cache[string, provider.HealthStatus]
	probeTimeout time.Duration
}

// New builds a Router over the given providers, kept in ascending id order
// (insertion order is not used).
func New(registry RegistryLookup, providers ...provider.Provider) *Router {
	m := make(map[string]provider.Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, p := range providers {
		m[p.ID()] = p
		order = append(order, p.ID())
	}
	sort.Strings(order)

	cache, _ := lru.New[string, provider.HealthStatus](256)
	return &Router{
		providers:    m,
		order:        order,
		registry:     registry,
		healthCache:  cache,
		probeTimeout: 2 * time.Second,
	}
}

// Get returns a provider by id.
func (r *Router) Get(id string) (provider.Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// All returns every known provider.
func (r *Router) All() []provider.Provider {
	out := make([]provider.Provider, 0, len(r.providers))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// RefreshHealth probes every provider concurrently with a bounded per-probe
// timeout via errgroup, caching results for Select's filter step.
func (r *Router) RefreshHealth(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range r.order {
		id := id
		p := r.providers[id]
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, r.probeTimeout)
			defer cancel()
			h := p.Health(probeCtx)
			if h != provider.HealthHealthy {
				logging.Aggregate(logging.CompRouter, "health_probe_unhealthy", slog.String("provider", id))
			}
			r.healthCache.Add(id, h)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Router) healthOf(id string) provider.HealthStatus {
	if h, ok := r.healthCache.Get(id); ok {
		return h
	}
	return provider.HealthHealthy
}

// Select implements §4.2's five-step ordering.
func (r *Router) Select(ctx context.Context, req *provider.Request, pol policy.Policy) (provider.Provider, error) {
	// Step 1: resume-session-id pins the provider.
	if req.ResumeSessionID != "" {
		providerID, err := r.registry.ProviderIDFor(req.ResumeSessionID)
		if err != nil {
			return nil, claudeerr.NotFound("resume_session_id not found in registry")
		}
		p, ok := r.providers[providerID]
		if !ok {
			return nil, claudeerr.Unavailable("resumed session's provider is no longer registered")
		}
		return p, nil
	}

	// Step 2: capability filter.
	var candidates []provider.Provider
	for _, id := range r.order {
		p := r.providers[id]
		d := p.Descriptor()
		if !modelSupported(d, req.Model) {
			continue
		}
		if req.TunnelEndpoint != "" && !d.SupportsTunnels {
			continue
		}
		// Tool-support capability filtering is provider-declared in the
		// distilled spec's Router contract, but no per-provider
		// tool-support descriptor field exists here; actual tool gating
		// happens in policy (§4.4.1 step 7) instead.
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return nil, claudeerr.Unavailable("no provider satisfies the request's capabilities")
	}

	// Step 3: health filter (healthy > degraded; unhealthy excluded unless
	// no alternatives).
	healthy := filterByHealth(candidates, r.healthOf, provider.HealthHealthy)
	degraded := filterByHealth(candidates, r.healthOf, provider.HealthDegraded)
	pool := healthy
	if len(pool) == 0 {
		pool = degraded
	}
	if len(pool) == 0 {
		pool = candidates // unhealthy, but no alternatives
	}

	// Step 4: prefer providers whose cost estimate <= request's max_cost_usd.
	if req.MaxCostUSD > 0 {
		affordable := make([]provider.Provider, 0, len(pool))
		for _, p := range pool {
			if p.Descriptor().CostEstimateUSD <= req.MaxCostUSD {
				affordable = append(affordable, p)
			}
		}
		if len(affordable) > 0 {
			pool = affordable
		}
	}

	// Step 5: stable tie-break — priority desc, then provider id ascending.
	sort.SliceStable(pool, func(i, j int) bool {
		di, dj := pool[i].Descriptor(), pool[j].Descriptor()
		if di.Priority != dj.Priority {
			return di.Priority > dj.Priority
		}
		return di.ID < dj.ID
	})

	chosen := pool[0]
	log.Debug("provider_selected", "provider_id", chosen.ID(), "model", req.Model)
	return chosen, nil
}

func modelSupported(d provider.Descriptor, model string) bool {
	if len(d.SupportedModels) == 0 {
		return true
	}
	for _, m := range d.SupportedModels {
		if m == model {
			return true
		}
	}
	return false
}

func filterByHealth(candidates []provider.Provider, healthOf func(string) provider.HealthStatus, status provider.HealthStatus) []provider.Provider {
	var out []provider.Provider
	for _, p := range candidates {
		if healthOf(p.ID()) == status {
			out = append(out, p)
		}
	}
	return out
}
