// Package config loads the YAML runner configuration. File values override
// defaults, command-line flags override file values; a missing file is not
// an error, a malformed or out-of-range one is.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region types
// Async tunes the engine's asynchronous ingestion runtime.
type Async struct {
	Enabled       bool `yaml:"enabled"`
	Shards        int  `yaml:"shards"`
	QueueCapacity int  `yaml:"queue_capacity"`
	CoalesceMS    int  `yaml:"coalesce_ms"`
}

// Storage names the on-disk artifacts.
type Storage struct {
	GraphDB   string `yaml:"graph_db"`
	EpisodeDB string `yaml:"episode_db"`
	Snapshot  string `yaml:"snapshot"`
}

// Audio holds the autonomy-loop defaults; flags on `agent audio` override.
type Audio struct {
	Duration   float64 `yaml:"duration"`
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
	SeedScale  float64 `yaml:"seed_scale"`
}

// Config is the full runner configuration.
type Config struct {
	Seed             int64   `yaml:"seed"`
	MaxSteps         int     `yaml:"max_steps"`
	ConsolidateEvery int     `yaml:"consolidate_every"`
	DefaultAction    int     `yaml:"default_action"`
	ObserveAddr      string  `yaml:"observe_addr"`
	Async            Async   `yaml:"async"`
	Storage          Storage `yaml:"storage"`
	Audio            Audio   `yaml:"audio"`
}

// #endregion types

// #region defaults
// Default returns the stock runner configuration.
func Default() Config {
	return Config{
		MaxSteps:         100,
		ConsolidateEvery: 20,
		DefaultAction:    108,
		Async: Async{
			Shards:        2,
			QueueCapacity: 4096,
			CoalesceMS:    50,
		},
		Storage: Storage{
			GraphDB:   "agent_graph.db",
			EpisodeDB: "agent_episodes.db",
			Snapshot:  "agent_graph.snap",
		},
		Audio: Audio{
			Duration:   0.5,
			SampleRate: 16000,
			Channels:   1,
			SeedScale:  1.0,
		},
	}
}

// #endregion defaults

// #region load
// Load reads path over the defaults. An absent file yields the defaults; a
// file that cannot be parsed or fails validation is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the runner cannot work with.
func (c Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.ConsolidateEvery <= 0 {
		return fmt.Errorf("consolidate_every must be positive, got %d", c.ConsolidateEvery)
	}
	if c.DefaultAction <= 0 {
		return fmt.Errorf("default_action must be a node ID, got %d", c.DefaultAction)
	}
	if c.Async.Shards < 0 || c.Async.QueueCapacity < 0 || c.Async.CoalesceMS < 0 {
		return errors.New("async settings must not be negative")
	}
	if c.Audio.Duration < 0 || c.Audio.SampleRate < 0 || c.Audio.SeedScale < 0 {
		return errors.New("audio settings must not be negative")
	}
	if c.Storage.GraphDB == "" || c.Storage.EpisodeDB == "" || c.Storage.Snapshot == "" {
		return errors.New("storage paths must not be empty")
	}
	return nil
}

// #endregion load
