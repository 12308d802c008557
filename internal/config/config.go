package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddr              = ":8080"
	defaultIntervalMs        = 3000
	defaultRefreshEvery      = 1
	defaultBlockTimeOffset   = 12
	defaultProbeTimeout      = 10
	defaultResolveTimeout    = 10
	defaultMaxParallelProbes = 16
	defaultFailoverThreshold = 2
	defaultExplorerURL       = "https://polkadot.js.org/apps/?rpc={url}"
	defaultOrchestratorLabel = "Orchestrator"
	defaultAppchainLabel     = "Appchain"
)

type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Dashboard struct {
		DefaultNetwork         string `yaml:"default_network"`
		IntervalMs             int64  `yaml:"interval_ms"`
		RefreshEvery           int    `yaml:"refresh_every"`
		BlockTimeOffsetSeconds int64  `yaml:"block_time_offset_seconds"`
		ProbeTimeoutSeconds    int64  `yaml:"probe_timeout_seconds"`
		ResolveTimeoutSeconds  int64  `yaml:"resolve_timeout_seconds"`
		MaxParallelProbes      int    `yaml:"max_parallel_probes"`
		FailoverThreshold      int    `yaml:"failover_threshold"`
	} `yaml:"dashboard"`
	Networks map[string]Network `yaml:"networks"`
}

// Network describes where to find a network's directory chain and how to
// map chain ids onto RPC urls. URL templates understand {id} and
// {network}; the explorer template understands {url}.
type Network struct {
	Title                string          `yaml:"title"`
	Directories          []string        `yaml:"directories"`
	SecondaryDirectories []string        `yaml:"secondary_directories"`
	OrchestratorURL      string          `yaml:"orchestrator_url"`
	OrchestratorLabel    string          `yaml:"orchestrator_label"`
	AppchainURL          string          `yaml:"appchain_url"`
	AppchainLabel        string          `yaml:"appchain_label"`
	Appchains            []AppchainRange `yaml:"appchains"`
	ExplorerURL          string          `yaml:"explorer_url"`
}

// AppchainRange overrides url and label for ids in [Min, Max].
type AppchainRange struct {
	Min   int    `yaml:"min"`
	Max   int    `yaml:"max"`
	URL   string `yaml:"url"`
	Label string `yaml:"label"`
}

func (r AppchainRange) Contains(id int) bool {
	return id >= r.Min && id <= r.Max
}

// Default returns the built-in configuration covering the public Tanssi
// test networks.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = defaultAddr
	cfg.Log.Level = "info"
	cfg.Dashboard.DefaultNetwork = "dancebox"
	cfg.Dashboard.IntervalMs = defaultIntervalMs
	cfg.Dashboard.RefreshEvery = defaultRefreshEvery
	cfg.Dashboard.BlockTimeOffsetSeconds = defaultBlockTimeOffset
	cfg.Dashboard.ProbeTimeoutSeconds = defaultProbeTimeout
	cfg.Dashboard.ResolveTimeoutSeconds = defaultResolveTimeout
	cfg.Dashboard.MaxParallelProbes = defaultMaxParallelProbes
	cfg.Dashboard.FailoverThreshold = defaultFailoverThreshold
	cfg.Networks = map[string]Network{
		"dancebox": {
			Title:       "Tanssi Dancebox",
			Directories: []string{"wss://dancebox.tanssi-api.network"},
			AppchainURL: "wss://fraa-{network}-{id}-rpc.a.dancebox.tanssi.network",
			Appchains: []AppchainRange{
				{Min: 2000, Max: 2999, Label: "Appchain"},
				{Min: 3000, Max: 3999, Label: "EVM appchain"},
			},
		},
		"flashbox": {
			Title:       "Tanssi Flashbox",
			Directories: []string{"wss://fraa-flashbox-rpc.a.stagenet.tanssi.network"},
			AppchainURL: "wss://fraa-{network}-{id}-rpc.a.stagenet.tanssi.network",
			Appchains: []AppchainRange{
				{Min: 2000, Max: 2999, Label: "Appchain"},
				{Min: 3000, Max: 3999, Label: "EVM appchain"},
			},
		},
	}
	return &cfg
}

// Load reads the yaml file at path (or CONFIG_PATH, or configs/config.yaml)
// on top of Default. A missing default file is not an error.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
		explicit = false
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// a networks section replaces the built-in networks instead of
		// merging into them
		builtin := cfg.Networks
		cfg.Networks = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(cfg.Networks) == 0 {
			cfg.Networks = builtin
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if len(c.Networks) == 0 {
		return errors.New("at least one network is required")
	}
	if _, ok := c.Networks[c.Dashboard.DefaultNetwork]; !ok {
		return fmt.Errorf("dashboard.default_network %q is not configured", c.Dashboard.DefaultNetwork)
	}
	if c.Dashboard.IntervalMs <= 0 {
		return errors.New("dashboard.interval_ms must be positive")
	}
	if c.Dashboard.RefreshEvery < 0 {
		return errors.New("dashboard.refresh_every must not be negative")
	}
	for name, n := range c.Networks {
		if len(n.Directories) == 0 {
			return fmt.Errorf("network %s: directories is required", name)
		}
		if n.AppchainURL == "" {
			return fmt.Errorf("network %s: appchain_url is required", name)
		}
		for _, r := range n.Appchains {
			if r.Min > r.Max {
				return fmt.Errorf("network %s: appchain range %d..%d is empty", name, r.Min, r.Max)
			}
		}
	}
	return nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Dashboard.IntervalMs) * time.Millisecond
}

func (c *Config) BlockTimeOffset() time.Duration {
	return time.Duration(c.Dashboard.BlockTimeOffsetSeconds) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Dashboard.ProbeTimeoutSeconds) * time.Second
}

func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Dashboard.ResolveTimeoutSeconds) * time.Second
}

// NetworkNames lists the configured networks, default first.
func (c *Config) NetworkNames() []string {
	names := []string{c.Dashboard.DefaultNetwork}
	rest := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		if name != c.Dashboard.DefaultNetwork {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func (c *Config) normalize() {
	c.Dashboard.DefaultNetwork = strings.ToLower(strings.TrimSpace(c.Dashboard.DefaultNetwork))
	networks := make(map[string]Network, len(c.Networks))
	for name, n := range c.Networks {
		name = strings.ToLower(strings.TrimSpace(name))
		if n.Title == "" {
			n.Title = name
		}
		if n.OrchestratorLabel == "" {
			n.OrchestratorLabel = defaultOrchestratorLabel
		}
		if n.AppchainLabel == "" {
			n.AppchainLabel = defaultAppchainLabel
		}
		if n.ExplorerURL == "" {
			n.ExplorerURL = defaultExplorerURL
		}
		networks[name] = n
	}
	c.Networks = networks
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCommaList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DEFAULT_NETWORK"); v != "" {
		cfg.Dashboard.DefaultNetwork = v
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		cfg.Dashboard.IntervalMs = atoi64Or(cfg.Dashboard.IntervalMs, v)
	}
	if v := os.Getenv("REFRESH_EVERY"); v != "" {
		cfg.Dashboard.RefreshEvery = atoiOr(cfg.Dashboard.RefreshEvery, v)
	}
	if v := os.Getenv("BLOCK_TIME_OFFSET_SECONDS"); v != "" {
		cfg.Dashboard.BlockTimeOffsetSeconds = atoi64Or(cfg.Dashboard.BlockTimeOffsetSeconds, v)
	}
	if v := os.Getenv("PROBE_TIMEOUT_SECONDS"); v != "" {
		cfg.Dashboard.ProbeTimeoutSeconds = atoi64Or(cfg.Dashboard.ProbeTimeoutSeconds, v)
	}
	if v := os.Getenv("RESOLVE_TIMEOUT_SECONDS"); v != "" {
		cfg.Dashboard.ResolveTimeoutSeconds = atoi64Or(cfg.Dashboard.ResolveTimeoutSeconds, v)
	}
	if v := os.Getenv("MAX_PARALLEL_PROBES"); v != "" {
		cfg.Dashboard.MaxParallelProbes = atoiOr(cfg.Dashboard.MaxParallelProbes, v)
	}
	if v := os.Getenv("FAILOVER_THRESHOLD"); v != "" {
		cfg.Dashboard.FailoverThreshold = atoiOr(cfg.Dashboard.FailoverThreshold, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
