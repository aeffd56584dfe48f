package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed: 42
max_steps: 250
async:
  enabled: true
  shards: 4
storage:
  graph_db: /tmp/graph.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 250, cfg.MaxSteps)
	assert.True(t, cfg.Async.Enabled)
	assert.Equal(t, 4, cfg.Async.Shards)
	assert.Equal(t, "/tmp/graph.db", cfg.Storage.GraphDB)
	// untouched fields keep their defaults
	assert.Equal(t, 20, cfg.ConsolidateEvery)
	assert.Equal(t, "agent_episodes.db", cfg.Storage.EpisodeDB)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_steps: [not an int"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
		ok   bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero max steps", func(c *Config) { c.MaxSteps = 0 }, false},
		{"zero consolidate interval", func(c *Config) { c.ConsolidateEvery = 0 }, false},
		{"no default action", func(c *Config) { c.DefaultAction = 0 }, false},
		{"negative shards", func(c *Config) { c.Async.Shards = -1 }, false},
		{"negative seed scale", func(c *Config) { c.Audio.SeedScale = -1 }, false},
		{"empty snapshot path", func(c *Config) { c.Storage.Snapshot = "" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mod(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
