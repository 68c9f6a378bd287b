package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/burrow/pkg/availability"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/scheduler"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a burrow node
type Config struct {
	DataDir      string             `yaml:"dataDir"`
	HealthAddr   string             `yaml:"healthAddr"`
	Log          log.Config         `yaml:"log"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Raft         RaftConfig         `yaml:"raft"`
	Availability AvailabilityConfig `yaml:"availability"`
}

// SchedulerConfig controls the periodic scheduling pass
type SchedulerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	WorkingPeriod time.Duration `yaml:"workingPeriod"`
}

// RaftConfig controls replication of committed changes. A disabled raft
// section makes the node write straight to its local store.
type RaftConfig struct {
	Enabled      bool          `yaml:"enabled"`
	NodeID       string        `yaml:"nodeId"`
	BindAddr     string        `yaml:"bindAddr"`
	Bootstrap    bool          `yaml:"bootstrap"`
	ApplyTimeout time.Duration `yaml:"applyTimeout"`
}

// AvailabilityConfig controls the availability result cache.
// A zero CacheTTL disables caching.
type AvailabilityConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		DataDir:    "./burrow-data",
		HealthAddr: "127.0.0.1:9090",
		Log: log.Config{
			Level: log.InfoLevel,
		},
		Scheduler: SchedulerConfig{
			Interval:      scheduler.DefaultInterval,
			WorkingPeriod: scheduler.DefaultWorkingPeriod,
		},
		Raft: RaftConfig{
			NodeID:       "node-1",
			BindAddr:     "127.0.0.1:7946",
			Bootstrap:    true,
			ApplyTimeout: 5 * time.Second,
		},
		Availability: AvailabilityConfig{
			CacheTTL: availability.DefaultCacheTTL,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping the values of absent keys, and
// validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the configuration for values the node cannot run with
func (c *Config) Validate() error {
	var err error
	if c.DataDir == "" {
		err = multierr.Append(err, errors.New("dataDir is required"))
	}
	switch c.Log.Level {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if c.Scheduler.Interval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.interval must be positive"))
	}
	if c.Scheduler.WorkingPeriod <= 0 {
		err = multierr.Append(err, errors.New("scheduler.workingPeriod must be positive"))
	}
	if c.Availability.CacheTTL < 0 {
		err = multierr.Append(err, errors.New("availability.cacheTTL must not be negative"))
	}
	if c.Raft.Enabled {
		if c.Raft.NodeID == "" {
			err = multierr.Append(err, errors.New("raft.nodeId is required"))
		}
		if c.Raft.BindAddr == "" {
			err = multierr.Append(err, errors.New("raft.bindAddr is required"))
		}
		if c.Raft.ApplyTimeout <= 0 {
			err = multierr.Append(err, errors.New("raft.applyTimeout must be positive"))
		}
	}
	return err
}
