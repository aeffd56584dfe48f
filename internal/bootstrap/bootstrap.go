// Package bootstrap prepares a fresh engine for survival runs: it loads the
// optional JSON bootstrap config, ensures the innate node registry, writes
// the innate seed links, and consolidates once so the seeds land in
// long-term storage. A missing or malformed config never fails startup;
// every field falls back to its built-in default.
package bootstrap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

// #region env
// Environment variables recognized by Load. Env values override file
// values, which override built-in defaults.
const (
	EnvConfigPath      = "AGENT_BOOTSTRAP_CONFIG"
	EnvRegistryVersion = "AGENT_REGISTRY_VERSION"
	EnvNodeMax         = "AGENT_NODE_MAX"
	EnvResetStorage    = "AGENT_RESET_STORAGE"
)

// DefaultConfigPath is used when EnvConfigPath is unset.
const DefaultConfigPath = "bootstrap.json"

// #endregion env

// #region schema
// configSchema rejects structurally broken bootstrap files before decoding.
// Validation failure is treated like a missing file: defaults apply.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "registry_version": {"type": "integer", "minimum": 1},
    "node_max": {"type": "integer", "minimum": 1},
    "extra_nodes": {"type": "array", "items": {"type": "integer", "minimum": 1}},
    "semantics": {
      "type": "object",
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "seed_links": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to", "weight"],
        "properties": {
          "from": {"type": "integer", "minimum": 1},
          "to": {"type": "integer", "minimum": 1},
          "weight": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  },
  "additionalProperties": false
}`

var compiledSchema = jsonschema.MustCompileString("bootstrap.schema.json", configSchema)

// #endregion schema

// #region config
// SeedLink is one innate association written during seeding.
type SeedLink struct {
	From   int     `json:"from"`
	To     int     `json:"to"`
	Weight float64 `json:"weight"`
}

// Config is the bootstrap configuration after defaults, file values, and
// env overrides have been merged.
type Config struct {
	RegistryVersion int            `json:"registry_version"`
	NodeMax         int            `json:"node_max"`
	ExtraNodes      []int          `json:"extra_nodes"`
	Semantics       map[int]string `json:"-"`
	SeedLinks       []SeedLink     `json:"seed_links"`
}

// fileConfig mirrors Config with JSON-friendly semantics keys.
type fileConfig struct {
	RegistryVersion int               `json:"registry_version"`
	NodeMax         int               `json:"node_max"`
	ExtraNodes      []int             `json:"extra_nodes"`
	Semantics       map[string]string `json:"semantics"`
	SeedLinks       []SeedLink        `json:"seed_links"`
}

// DefaultConfig returns the innate bootstrap: the survival node pool, the
// audio nodes, and the instinct seed links (danger drives flee/hide, hunger
// drives forage/eat, tiredness drives rest/sleep, night biases hiding).
func DefaultConfig() Config {
	return Config{
		RegistryVersion: 1,
		NodeMax:         nodes.NodeMax,
		SeedLinks: []SeedLink{
			{From: nodes.Danger, To: nodes.Flee, Weight: 0.3},
			{From: nodes.Danger, To: nodes.Hide, Weight: 0.2},
			{From: nodes.Danger, To: nodes.Observe, Weight: 0.1},
			{From: nodes.Hungry, To: nodes.Explore, Weight: 0.3},
			{From: nodes.Hungry, To: nodes.Eat, Weight: 0.2},
			{From: nodes.Tired, To: nodes.Rest, Weight: 0.3},
			{From: nodes.Tired, To: nodes.Sleep, Weight: 0.2},
			{From: nodes.Pain, To: nodes.Sleep, Weight: 0.3},
			{From: nodes.Pain, To: nodes.Rest, Weight: 0.2},
			{From: nodes.Flee, To: nodes.Tired, Weight: 0.15},
			{From: nodes.Hide, To: nodes.Tired, Weight: 0.05},
			{From: nodes.Observe, To: nodes.Tired, Weight: 0.02},
			{From: nodes.Explore, To: nodes.Tired, Weight: 0.10},
			{From: nodes.Eat, To: nodes.Hungry, Weight: 0.05},
			{From: nodes.Night, To: nodes.Hide, Weight: 0.2},
			{From: nodes.Night, To: nodes.Flee, Weight: 0.05},
		},
	}
}

// #endregion config

// #region load
// Load builds the effective config: defaults, then the config file (path
// from EnvConfigPath, falling back to bootstrap.json), then env overrides.
// A missing, unreadable, malformed, or schema-invalid file is logged at
// debug level and otherwise ignored.
func Load(logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := DefaultConfig()

	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	if fc, ok := readFile(path, logger); ok {
		mergeFile(&cfg, fc)
	}

	if v, ok := envInt(EnvRegistryVersion); ok && v > 0 {
		cfg.RegistryVersion = v
	}
	if v, ok := envInt(EnvNodeMax); ok && v > 0 {
		cfg.NodeMax = v
	}
	return cfg
}

func readFile(path string, logger *zap.Logger) (fileConfig, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("bootstrap config not read, using defaults",
			zap.String("path", path), zap.Error(err))
		return fileConfig{}, false
	}

	var raw any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		logger.Debug("bootstrap config not valid JSON, using defaults",
			zap.String("path", path), zap.Error(err))
		return fileConfig{}, false
	}
	if err := compiledSchema.Validate(raw); err != nil {
		logger.Debug("bootstrap config failed schema validation, using defaults",
			zap.String("path", path), zap.Error(err))
		return fileConfig{}, false
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		logger.Debug("bootstrap config not decodable, using defaults",
			zap.String("path", path), zap.Error(err))
		return fileConfig{}, false
	}
	return fc, true
}

func mergeFile(cfg *Config, fc fileConfig) {
	if fc.RegistryVersion > 0 {
		cfg.RegistryVersion = fc.RegistryVersion
	}
	if fc.NodeMax > 0 {
		cfg.NodeMax = fc.NodeMax
	}
	cfg.ExtraNodes = append(cfg.ExtraNodes, fc.ExtraNodes...)
	if len(fc.Semantics) > 0 {
		cfg.Semantics = make(map[int]string, len(fc.Semantics))
		for key, name := range fc.Semantics {
			id, err := strconv.Atoi(key)
			if err != nil || id <= 0 {
				continue
			}
			cfg.Semantics[id] = name
		}
	}
	if len(fc.SeedLinks) > 0 {
		cfg.SeedLinks = fc.SeedLinks
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ResetRequested reports whether the env asks for storage to be wiped
// before seeding.
func ResetRequested() bool {
	switch strings.ToLower(os.Getenv(EnvResetStorage)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// #endregion load

// #region seed
// Pool enumerates the full node pool this config implies: 1..NodeMax, the
// audio nodes, and any extras, deduplicated and ascending.
func (c Config) Pool() []int {
	seen := make(map[int]bool, c.NodeMax+8)
	pool := make([]int, 0, c.NodeMax+8)
	add := func(id int) {
		if id > 0 && !seen[id] {
			seen[id] = true
			pool = append(pool, id)
		}
	}
	for id := 1; id <= c.NodeMax; id++ {
		add(id)
	}
	for _, id := range []int{nodes.Startle, nodes.LoudNoise, nodes.SharpSound, nodes.Quiet} {
		add(id)
	}
	for _, id := range c.ExtraNodes {
		add(id)
	}
	return pool
}

// Report summarizes one seeding pass.
type Report struct {
	Registry    string
	LinksWanted int
	LinksSeeded int
	Merged      int
	Pruned      int
}

// Seed prepares the engine: registry migration, seed link writes, then one
// storage consolidation so the links persist in the base tier. Config
// semantics are merged into the shared translation table first. A link the
// engine rejects is logged and skipped; only registry failure is fatal.
func Seed(eng engine.Engine, cfg Config, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for id, name := range cfg.Semantics {
		nodes.Register(id, name)
	}

	status, err := eng.EnsureRegistry(cfg.Pool())
	if err != nil {
		return Report{}, fmt.Errorf("ensure registry: %w", err)
	}
	rep := Report{Registry: status, LinksWanted: len(cfg.SeedLinks)}

	for _, link := range cfg.SeedLinks {
		if err := eng.UpdateWeight(link.From, link.To, link.Weight); err != nil {
			logger.Warn("seed link rejected",
				zap.String("from", nodes.Translate(link.From)),
				zap.String("to", nodes.Translate(link.To)),
				zap.Error(err))
			continue
		}
		rep.LinksSeeded++
	}

	consolidated, err := eng.Consolidate()
	if err != nil {
		logger.Warn("post-seed consolidation failed", zap.Error(err))
	}
	rep.Merged = consolidated.Merged
	rep.Pruned = consolidated.Pruned

	logger.Info("engine seeded",
		zap.String("registry", rep.Registry),
		zap.Int("links", rep.LinksSeeded),
		zap.Int("merged", rep.Merged))
	return rep, nil
}

// #endregion seed
