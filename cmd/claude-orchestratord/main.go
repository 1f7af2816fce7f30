package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asheshgoplani/claude-orchestrator/internal/budget"
	"github.com/asheshgoplani/claude-orchestrator/internal/config"
	"github.com/asheshgoplani/claude-orchestrator/internal/idempotency"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
	"github.com/asheshgoplani/claude-orchestrator/internal/mcppool"
	"github.com/asheshgoplani/claude-orchestrator/internal/namespace"
	"github.com/asheshgoplani/claude-orchestrator/internal/orchestrator"
	"github.com/asheshgoplani/claude-orchestrator/internal/policy"
	"github.com/asheshgoplani/claude-orchestrator/internal/provider"
	"github.com/asheshgoplani/claude-orchestrator/internal/registry"
	"github.com/asheshgoplani/claude-orchestrator/internal/router"
	"github.com/asheshgoplani/claude-orchestrator/internal/tunnelauth"
)

func main() {
	configPath := flag.String("config", "", "path to TOML boot config file")
	agentID := flag.String("agent-id", "default", "agent id this daemon serves requests for")
	journalPath := flag.String("journal-db", "", "sqlite path for the durable idempotency journal (empty disables the durable tier)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logging.Init(cfg.LoggingConfig())
	defer logging.Shutdown()
	log := logging.ForComponent(logging.CompOrchestrator)

	reg := registry.New()
	b := budget.NewTracker(cfg.TickBudgetUSD, cfg.DayBudgetUSD)
	ps := policy.NewStore(cfg.Policy)

	journal := buildJournal(*journalPath, log)

	tunnels := tunnelauth.NewState(tunnelauth.NewJWTSigner(noSecretLookup), time.Duration(cfg.ChallengeTTLSeconds)*time.Second)
	tunnels.SetEndpoints(cfg.TunnelEndpoints())

	pool := mcppool.NewPool(cfg.PoolConfig())
	proxy := mcppool.NewProxy(cfg.ProxyAllowlist)

	providers := buildProviders(cfg, tunnels, pool)
	if len(providers) == 0 {
		log.Warn("no_providers_configured", "hint", "every /new request will fail capability selection")
	}

	r := router.New(reg, providers...)
	orch := orchestrator.New(*agentID, ps, b, r, reg, journal)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RefreshHealth(ctx)
			}
		}
	}()

	server := namespace.NewServer(namespace.Config{ListenAddr: cfg.ListenAddr, Token: cfg.AuthToken}, orch, tunnels, pool, proxy)

	go func() {
		if err := server.Start(); err != nil {
			log.Error("namespace_server_error", "error", err.Error())
		}
	}()
	log.Info("listening", "addr", server.Addr())

	<-ctx.Done()
	log.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown_error", "error", err.Error())
	}
}

func buildJournal(sqlitePath string, log interface {
	Warn(string, ...any)
}) idempotency.Journal {
	memory := idempotency.NewMemoryJournal(1024)
	if sqlitePath == "" {
		return memory
	}
	durable, err := idempotency.OpenSQLiteJournal(sqlitePath)
	if err != nil {
		log.Warn("idempotency_sqlite_open_failed", "path", sqlitePath, "error", err.Error())
		return memory
	}
	return idempotency.NewTiered(memory, durable)
}

func buildProviders(cfg config.Config, tunnels *tunnelauth.State, pool *mcppool.Pool) []provider.Provider {
	var out []provider.Provider

	for _, lp := range cfg.LocalProviders {
		p := provider.NewLocalProvider(lp.ID, lp.BinaryPath, lp.WorkDir, lp.SupportedModels)
		p.SetPriority(lp.Priority)
		out = append(out, p)
	}

	for _, tp := range cfg.TunnelProviders {
		p := provider.NewTunnelProvider(tp.ID, tp.EndpointID, tp.DialURL, tunnels)
		p.Configure(tp.SupportedModels, tp.Priority)
		out = append(out, p)
	}

	for _, cp := range cfg.CloudProviders {
		out = append(out, provider.NewCloudProvider(cp.ID, cp.BaseURL, cp.SupportedModels))
	}

	if cfg.PoolConfig().Enabled {
		out = append(out, provider.NewPoolProvider("pool", pool, nil))
	}

	return out
}

// noSecretLookup is the default Signer secret resolver when no per-pubkey
// secret store is wired in; every verification fails closed until an
// operator supplies a real lookup (e.g. backed by the policy/config file).
func noSecretLookup(pubkey string) ([]byte, bool) {
	return nil, false
}
