package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/survival-agent/internal/episode"
	"github.com/danielpatrickdp/survival-agent/internal/hippocampus"
	"github.com/danielpatrickdp/survival-agent/internal/loop"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
	"github.com/danielpatrickdp/survival-agent/internal/observer"
	"github.com/danielpatrickdp/survival-agent/internal/world"
)

var (
	runSeed     int64
	runSteps    int
	runObserve  string
	runReset    bool
	runDB       string
	runSnapshot string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run one survival episode",
	RunE:  runEpisode,
}

func init() {
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "world/engine seed (0 = config value)")
	runCmd.Flags().IntVar(&runSteps, "steps", 0, "step budget (0 = config value)")
	runCmd.Flags().StringVar(&runObserve, "observe", "", "serve live step events on this address (e.g. :8473)")
	runCmd.Flags().BoolVar(&runReset, "reset", false, "wipe graph storage before seeding")
	runCmd.Flags().StringVar(&runDB, "db", "", "graph database path (overrides config)")
	runCmd.Flags().StringVar(&runSnapshot, "snapshot", "", "snapshot path (overrides config)")
}

func runEpisode(cmd *cobra.Command, args []string) error {
	seed := cfg.Seed
	if runSeed != 0 {
		seed = runSeed
	}
	maxSteps := cfg.MaxSteps
	if runSteps > 0 {
		maxSteps = runSteps
	}
	if runDB != "" {
		cfg.Storage.GraphDB = runDB
	}
	if runSnapshot != "" {
		cfg.Storage.Snapshot = runSnapshot
	}

	eng, err := openEngine(seed, runReset)
	if err != nil {
		return err
	}
	defer eng.Close()

	store, err := episode.Open(cfg.Storage.EpisodeDB)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.BeginRun(seed, maxSteps)
	if err != nil {
		return err
	}

	w := world.New(world.DefaultConfig(), rand.New(rand.NewSource(seed)))
	buffer := hippocampus.NewBuffer()
	consolidator := hippocampus.NewConsolidator(eng, logger)

	loopCfg := loop.DefaultConfig()
	loopCfg.MaxSteps = maxSteps
	loopCfg.ConsolidateEvery = cfg.ConsolidateEvery
	loopCfg.DefaultAction = cfg.DefaultAction

	l := loop.New(loopCfg, eng, w, buffer, consolidator, logger)
	l.AddSink(&episodeSink{store: store, runID: runID})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	observeAddr := runObserve
	if observeAddr == "" {
		observeAddr = cfg.ObserveAddr
	}
	if observeAddr != "" {
		hub := observer.NewHub(logger)
		l.AddSink(hub)
		group.Go(func() error { return observer.Serve(ctx, observeAddr, hub, logger) })
	}

	report, runErr := l.Run(ctx)
	cancel()

	if err := store.FinishRun(runID, report); err != nil {
		logger.Warn("run outcome not persisted", zap.Error(err))
	}
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Warn("observer stopped early", zap.Error(err))
	}

	printReport(runID, report)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// episodeSink persists every loop step to the episode store.
type episodeSink struct {
	store *episode.Store
	runID string
}

func (s *episodeSink) OnStep(rec loop.StepRecord) {
	if err := s.store.AppendStep(s.runID, rec); err != nil {
		logger.Warn("step not persisted", zap.Int("step", rec.Step), zap.Error(err))
	}
}

func printReport(runID string, report loop.RunReport) {
	outcome := "survived"
	if report.Died {
		outcome = "died"
	}
	fmt.Printf("run %s: %s after %d steps\n", runID, outcome, report.Steps)
	fmt.Printf("  vitals: health=%.3f hunger=%.3f fatigue=%.3f\n",
		report.Health, report.Hunger, report.Fatigue)
	fmt.Printf("  consolidations=%d links_formed=%d\n", report.Consolidations, report.LinksFormed)
	actions := make([]int, 0, len(report.ActionCounts))
	for action := range report.ActionCounts {
		actions = append(actions, action)
	}
	sort.Ints(actions)
	for _, action := range actions {
		fmt.Printf("  %-10s x%d\n", nodes.Translate(action), report.ActionCounts[action])
	}
}
