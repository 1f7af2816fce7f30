// Package config loads the process-level boot configuration: listen
// address, auth token, provider roster, tunnel endpoints, pool sizing, and
// budget ceilings, from a TOML file (§10.2).
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
	"github.com/asheshgoplani/claude-orchestrator/internal/mcppool"
	"github.com/asheshgoplani/claude-orchestrator/internal/policy"
	"github.com/asheshgoplani/claude-orchestrator/internal/tunnelauth"
)

// LocalProviderConfig configures one pty-backed local provider instance.
type LocalProviderConfig struct {
	ID              string   `toml:"id"`
	BinaryPath      string   `toml:"binary_path"`
	WorkDir         string   `toml:"work_dir"`
	SupportedModels []string `toml:"supported_models"`
	Priority        int      `toml:"priority"`
}

// TunnelProviderConfig configures one websocket-relay provider instance.
type TunnelProviderConfig struct {
	ID              string   `toml:"id"`
	EndpointID      string   `toml:"endpoint_id"`
	DialURL         string   `toml:"dial_url"`
	SupportedModels []string `toml:"supported_models"`
	Priority        int      `toml:"priority"`
}

// CloudProviderConfig configures one illustrative HTTP-backed provider.
type CloudProviderConfig struct {
	ID              string   `toml:"id"`
	BaseURL         string   `toml:"base_url"`
	SupportedModels []string `toml:"supported_models"`
	Priority        int      `toml:"priority"`
}

// Config is the top-level boot configuration file shape.
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	AuthToken  string `toml:"auth_token"`

	TickBudgetUSD int64 `toml:"tick_budget_usd"`
	DayBudgetUSD  int64 `toml:"day_budget_usd"`

	Policy policy.Policy `toml:"policy"`

	LocalProviders  []LocalProviderConfig  `toml:"local_provider"`
	TunnelProviders []TunnelProviderConfig `toml:"tunnel_provider"`
	CloudProviders  []CloudProviderConfig  `toml:"cloud_provider"`

	PoolEnabled    bool     `toml:"pool_enabled"`
	PoolMaxWorkers int      `toml:"pool_max_workers"`
	ProxyAllowlist []string `toml:"proxy_allowlist"`

	ChallengeTTLSeconds int `toml:"challenge_ttl_seconds"`

	Log LogConfig `toml:"log"`
}

// LogConfig mirrors logging.Config's TOML-facing subset.
type LogConfig struct {
	Dir       string `toml:"dir"`
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	Debug     bool   `toml:"debug"`
	PProf     bool   `toml:"pprof_enabled"`
	PProfAddr string `toml:"pprof_addr"`
}

// Default returns a config that boots with no providers configured and a
// permissive, unbounded policy — the caller is expected to register at
// least one provider from a real file before starting the server.
func Default() Config {
	return Config{
		ListenAddr:          "127.0.0.1:8787",
		Policy:              policy.Default(),
		PoolMaxWorkers:      4,
		ChallengeTTLSeconds: 300,
		Log:                 LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads and parses a TOML config file, filling in defaults for
// anything left zero-valued.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return Config{}, err
	}
	if cfg.ChallengeTTLSeconds <= 0 {
		cfg.ChallengeTTLSeconds = 300
	}
	return cfg, nil
}

// LoggingConfig adapts the file's log section into logging.Config.
func (c Config) LoggingConfig() logging.Config {
	return logging.Config{
		LogDir:       c.Log.Dir,
		Level:        c.Log.Level,
		Format:       c.Log.Format,
		Debug:        c.Log.Debug,
		PprofEnabled: c.Log.PProf,
		PprofAddr:    c.Log.PProfAddr,
	}
}

// PoolConfig adapts the file's pool section into mcppool.Config.
func (c Config) PoolConfig() mcppool.Config {
	return mcppool.Config{Enabled: c.PoolEnabled, MaxWorkers: c.PoolMaxWorkers}
}

// TunnelEndpoints builds the tunnelauth.Endpoint list implied by the
// configured tunnel providers (auth kind defaults to none; operators add
// stronger auth via the live /auth/tunnels write path after boot).
func (c Config) TunnelEndpoints() []tunnelauth.Endpoint {
	out := make([]tunnelauth.Endpoint, 0, len(c.TunnelProviders))
	for _, tp := range c.TunnelProviders {
		out = append(out, tunnelauth.Endpoint{ID: tp.EndpointID, URL: tp.DialURL, Auth: tunnelauth.AuthNone})
	}
	return out
}
