// Package config loads the YAML configuration shared by the manager and
// gateway daemons.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelConfig describes one catalog entry as written in the `models:` map.
type ModelConfig struct {
	Type      string         `yaml:"type"`
	Path      string         `yaml:"path"`
	HotReload bool           `yaml:"hot_reload"`
	Params    map[string]any `yaml:"params"`
}

// MemoryConfig holds the `memory:` section. Only SafetyMarginGB feeds the
// admission policy; MaxUnifiedMemoryGB and EvictionThresholdPct are parsed
// but not read by either daemon.
type MemoryConfig struct {
	MaxUnifiedMemoryGB   float64 `yaml:"max_unified_memory_gb"`
	EvictionThresholdPct float64 `yaml:"eviction_threshold_percent"`
	SafetyMarginGB       float64 `yaml:"safety_margin_gb"`
}

// GatewayConfig configures the public-facing dispatcher.
type GatewayConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// WorkersConfig configures process-supervision policy.
type WorkersConfig struct {
	Ports                    map[string]uint16 `yaml:"ports"`
	HealthCheckIntervalSec   int               `yaml:"health_check_interval"`
	HealthCheckTimeoutSec    int               `yaml:"health_check_timeout"`
	StartupTimeoutSec        int               `yaml:"startup_timeout"`
	IdleTimeoutSec           int               `yaml:"idle_timeout_s"`
	MaxRequestsBeforeRestart int               `yaml:"max_requests_before_restart"`
	SweepIntervalSec         int               `yaml:"sweep_interval_s"`
	DrainOnEvict             bool              `yaml:"drain_on_evict"`
	DrainTimeoutSec          int               `yaml:"drain_timeout_s"`
}

// Config is the top-level shape of the YAML configuration file consumed by
// both daemons. The gateway only reads Models and Gateway; the manager reads
// Models, Memory and Workers.
type Config struct {
	Models  map[string]ModelConfig `yaml:"models"`
	Memory  MemoryConfig           `yaml:"memory"`
	Gateway GatewayConfig          `yaml:"gateway"`
	Workers WorkersConfig          `yaml:"workers"`

	path string `yaml:"-"`
}

// Path returns the filesystem path the configuration was loaded from.
func (c *Config) Path() string { return c.path }

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Load reads and parses the YAML configuration at path, applying defaults for
// any field the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		Memory: MemoryConfig{
			MaxUnifiedMemoryGB:   32,
			EvictionThresholdPct: 85,
			SafetyMarginGB:       4,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Workers: WorkersConfig{
			HealthCheckIntervalSec:   1,
			HealthCheckTimeoutSec:    5,
			StartupTimeoutSec:        60,
			IdleTimeoutSec:           300,
			MaxRequestsBeforeRestart: 50,
			SweepIntervalSec:         30,
			DrainOnEvict:             false,
			DrainTimeoutSec:          10,
		},
		path: path,
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for alias, m := range cfg.Models {
		m.Path = expandHome(m.Path)
		cfg.Models[alias] = m
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	for alias, m := range c.Models {
		if m.Type != "vlm" && m.Type != "diffusion" {
			return fmt.Errorf("model %q: type must be \"vlm\" or \"diffusion\", got %q", alias, m.Type)
		}
		if m.Path == "" {
			return fmt.Errorf("model %q: path is required", alias)
		}
	}
	if c.Memory.SafetyMarginGB < 0 {
		return fmt.Errorf("memory.safety_margin_gb must be >= 0")
	}
	return nil
}

// EnvOverrides applies IDLE_TIMEOUT and MAX_REQUESTS on top of a loaded
// Config; unset, unparsable or non-positive values leave the field untouched. The other
// environment variables (MANAGER_PORT, WORKER_HOST, WORKER_MANAGER_HOST,
// WORKER_MANAGER_PORT) are read directly by cmd/manager and cmd/gateway.
func (c *Config) EnvOverrides(getenv func(string) string) {
	if v := getenv("IDLE_TIMEOUT"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			c.Workers.IdleTimeoutSec = n
		}
	}
	if v := getenv("MAX_REQUESTS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			c.Workers.MaxRequestsBeforeRestart = n
		}
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive")
	}
	return n, nil
}
