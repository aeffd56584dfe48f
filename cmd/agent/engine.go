package main

import (
	"fmt"
	"math/rand"
	"os"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/survival-agent/internal/assoc"
	"github.com/danielpatrickdp/survival-agent/internal/bootstrap"
	"github.com/danielpatrickdp/survival-agent/internal/engine"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

// openEngine builds the associative engine from the runner config: open the
// sqlite graph store, load or seed the registry, and optionally start the
// async runtime. Callers must Close the returned engine.
func openEngine(seed int64, reset bool) (*assoc.Assoc, error) {
	boot := bootstrap.Load(logger)

	if reset || bootstrap.ResetRequested() {
		for _, path := range []string{cfg.Storage.GraphDB, cfg.Storage.Snapshot} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reset storage %s: %w", path, err)
			}
		}
		logger.Info("storage reset", zap.String("graph_db", cfg.Storage.GraphDB))
	}

	engCfg := assoc.DefaultConfig()
	engCfg.RegistryVersion = boot.RegistryVersion

	eng := assoc.New(engCfg, rand.New(rand.NewSource(seed)), logger)

	_, statErr := os.Stat(cfg.Storage.GraphDB)
	firstInit := os.IsNotExist(statErr)

	store, err := assoc.OpenStore(cfg.Storage.GraphDB)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	if err := eng.AttachStore(store); err != nil {
		store.Close()
		return nil, err
	}

	// seed instincts only once; a persisted graph keeps its learned weights
	// and only gets its registry migrated
	if firstInit {
		if _, err := bootstrap.Seed(eng, boot, logger); err != nil {
			eng.Close()
			return nil, err
		}
	} else {
		for id, name := range boot.Semantics {
			nodes.Register(id, name)
		}
		status, err := eng.EnsureRegistry(boot.Pool())
		if err != nil {
			eng.Close()
			return nil, fmt.Errorf("ensure registry: %w", err)
		}
		logger.Debug("registry ensured", zap.String("status", status))
	}

	if cfg.Async.Enabled {
		status, err := eng.StartAsync(engine.AsyncPolicy{
			Shards:           cfg.Async.Shards,
			QueueCapacity:    cfg.Async.QueueCapacity,
			CoalesceWindowMS: cfg.Async.CoalesceMS,
		})
		if err != nil {
			eng.Close()
			return nil, fmt.Errorf("start async runtime: %w", err)
		}
		logger.Info("async runtime up", zap.String("status", status))
	}
	return eng, nil
}
