package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Store   StoreConfig   `yaml:"store"`
	Web     WebConfig     `yaml:"web"`
	Swarm   SwarmConfig   `yaml:"swarm"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type NATSConfig struct {
	Port int `yaml:"port"`
	// Payloads larger than CompressAbove bytes are zstd-compressed on the bus.
	// Zero disables compression.
	CompressAbove int `yaml:"compress_above"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
	// Retention is how long archived samples are kept. Zero disables pruning.
	Retention time.Duration `yaml:"retention"`
	// PruneSchedule is a cron expression for the retention sweep.
	PruneSchedule string `yaml:"prune_schedule"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

// FreezePolicy controls what happens to sends that arrive while a topology
// reconfiguration is in flight.
type FreezePolicy string

const (
	// FreezeQueue blocks the send until the swap completes (or the caller's
	// context expires).
	FreezeQueue FreezePolicy = "queue"
	// FreezeReject fails the send immediately with a transition-in-progress
	// delivery result.
	FreezeReject FreezePolicy = "reject"
)

type SwarmConfig struct {
	// Initial topology: mesh, star, ring, hierarchical or adaptive.
	Topology     string        `yaml:"topology"`
	FreezePolicy FreezePolicy  `yaml:"freeze_policy"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	// EvalInterval is how often the adaptive policy re-checks monitor output.
	EvalInterval time.Duration `yaml:"eval_interval"`
}

type MonitorConfig struct {
	// WindowSize bounds the rolling window of per-message outcomes.
	WindowSize int `yaml:"window_size"`
	// SampleInterval is how often aggregated samples are cut and archived.
	SampleInterval time.Duration `yaml:"sample_interval"`
}

func defaults() Config {
	return Config{
		NATS: NATSConfig{
			Port:          4222,
			CompressAbove: 16 * 1024,
		},
		Store: StoreConfig{
			Path:          "data/swarmd.db",
			Retention:     7 * 24 * time.Hour,
			PruneSchedule: "0 * * * *",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Swarm: SwarmConfig{
			Topology:     "adaptive",
			FreezePolicy: FreezeQueue,
			DrainTimeout: 10 * time.Second,
			EvalInterval: 30 * time.Second,
		},
		Monitor: MonitorConfig{
			WindowSize:     512,
			SampleInterval: 60 * time.Second,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("SWARMD_CONFIG")
	if path == "" {
		path = "config/swarmd.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Swarm.FreezePolicy {
	case FreezeQueue, FreezeReject, "":
	default:
		return fmt.Errorf("invalid freeze_policy %q", c.Swarm.FreezePolicy)
	}
	if c.Swarm.FreezePolicy == "" {
		c.Swarm.FreezePolicy = FreezeQueue
	}
	if c.Monitor.WindowSize <= 0 {
		c.Monitor.WindowSize = 512
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SWARMD_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("SWARMD_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SWARMD_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("SWARMD_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("SWARMD_TOPOLOGY"); v != "" {
		cfg.Swarm.Topology = v
	}
}
