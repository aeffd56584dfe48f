package loop

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
	"github.com/danielpatrickdp/survival-agent/internal/hippocampus"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
	"github.com/danielpatrickdp/survival-agent/internal/world"
)

// #region fakes

// fakeEngine records every call the loop makes.
type fakeEngine struct {
	ranked       []engine.NodeValue
	rankErr      error
	activations  []int
	rankCalls    int
	updates      int
	consolidates int
}

func (f *fakeEngine) EnsureRegistry([]int) (string, error) { return "", nil }
func (f *fakeEngine) Activate(node int, _ float64) error {
	f.activations = append(f.activations, node)
	return nil
}
func (f *fakeEngine) Rank(int, []int) ([]engine.NodeValue, error) {
	f.rankCalls++
	return f.ranked, f.rankErr
}
func (f *fakeEngine) Connections(int) ([]engine.Link, error) { return nil, nil }
func (f *fakeEngine) UpdateWeight(int, int, float64) error {
	f.updates++
	return nil
}
func (f *fakeEngine) FormAssociations() (int, error) { return 0, nil }
func (f *fakeEngine) Consolidate() (engine.ConsolidateReport, error) {
	f.consolidates++
	return engine.ConsolidateReport{}, nil
}
func (f *fakeEngine) Status() string { return "fake" }

// fakeAsyncEngine layers a batched path over fakeEngine.
type fakeAsyncEngine struct {
	fakeEngine
	asyncOn    bool
	metricsErr error
	batches    [][]engine.Stimulus
}

func (f *fakeAsyncEngine) StartAsync(engine.AsyncPolicy) (string, error) { return "", nil }
func (f *fakeAsyncEngine) StopAsync() string                             { return "" }
func (f *fakeAsyncEngine) SubmitBatch(entries []engine.Stimulus) (engine.BatchReport, error) {
	f.batches = append(f.batches, entries)
	return engine.BatchReport{Accepted: len(entries)}, nil
}
func (f *fakeAsyncEngine) Metrics() (engine.Metrics, error) {
	return engine.Metrics{AsyncOn: f.asyncOn}, f.metricsErr
}

// makeLoop wires a loop over a seeded world. mod may tweak the world config.
func makeLoop(t *testing.T, eng engine.Engine, cfg Config, mod func(*world.Config)) (*Loop, *hippocampus.Buffer) {
	t.Helper()
	wcfg := world.DefaultConfig()
	if mod != nil {
		mod(&wcfg)
	}
	w := world.New(wcfg, rand.New(rand.NewSource(5)))
	buffer := hippocampus.NewBuffer()
	consolidator := hippocampus.NewConsolidator(eng, nil)
	return New(cfg, eng, w, buffer, consolidator, nil), buffer
}

// #endregion fakes

// #region decide-tests

func TestNoStimulusSkipsValueQuery(t *testing.T) {
	eng := &fakeEngine{ranked: []engine.NodeValue{{Node: nodes.Flee, Value: 1}}}
	// fresh world: vitals full, so only context sensors are active
	l, _ := makeLoop(t, eng, DefaultConfig(), nil)

	rec := l.Step()
	assert.Zero(t, rec.Stimulus)
	assert.Equal(t, nodes.Rest, rec.Action)
	assert.Zero(t, eng.rankCalls)
	// sensors are still forwarded
	assert.NotEmpty(t, eng.activations)
}

func TestStimulusQueriesAndFiltersRanking(t *testing.T) {
	eng := &fakeEngine{ranked: []engine.NodeValue{
		{Node: nodes.Night, Value: 0.9}, // not an action, must be skipped
		{Node: nodes.Eat, Value: 0.7},
		{Node: nodes.Explore, Value: 0.5},
	}}
	l, _ := makeLoop(t, eng, DefaultConfig(), func(c *world.Config) {
		c.HungerThreshold = 2 // hungry fires from step one
	})

	rec := l.Step()
	assert.Equal(t, nodes.Hungry, rec.Stimulus)
	assert.Equal(t, 1, eng.rankCalls)
	assert.Equal(t, nodes.Eat, rec.Action)
}

func TestEmptyRankingFallsBackToDefault(t *testing.T) {
	eng := &fakeEngine{}
	l, _ := makeLoop(t, eng, DefaultConfig(), func(c *world.Config) {
		c.HungerThreshold = 2
	})

	rec := l.Step()
	assert.Equal(t, 1, eng.rankCalls)
	assert.Equal(t, nodes.Rest, rec.Action)
}

func TestRankErrorFallsBackToDefault(t *testing.T) {
	eng := &fakeEngine{rankErr: errors.New("engine down")}
	l, _ := makeLoop(t, eng, DefaultConfig(), func(c *world.Config) {
		c.HungerThreshold = 2
	})

	rec := l.Step()
	assert.Equal(t, nodes.Rest, rec.Action)
	assert.Contains(t, rec.Reason, "engine unavailable")
}

func TestRankingWithoutLegalActionsFallsBack(t *testing.T) {
	eng := &fakeEngine{ranked: []engine.NodeValue{
		{Node: nodes.Night, Value: 0.9},
		{Node: nodes.BushSeen, Value: 0.8},
	}}
	l, _ := makeLoop(t, eng, DefaultConfig(), func(c *world.Config) {
		c.HungerThreshold = 2
	})

	rec := l.Step()
	assert.Equal(t, nodes.Rest, rec.Action)
	assert.Contains(t, rec.Reason, "no valid action")
}

// #endregion decide-tests

// #region forward-tests

func TestForwardBatchesWhileAsyncIsOn(t *testing.T) {
	eng := &fakeAsyncEngine{asyncOn: true}
	l, _ := makeLoop(t, eng, DefaultConfig(), nil)

	rec := l.Step()
	require.Len(t, eng.batches, 1)
	assert.Len(t, eng.batches[0], len(rec.Sensors))
	assert.Equal(t, "survival_loop", eng.batches[0][0].Source)
	assert.Empty(t, eng.activations)
}

func TestForwardFallsBackToSyncWhenAsyncOff(t *testing.T) {
	eng := &fakeAsyncEngine{asyncOn: false}
	l, _ := makeLoop(t, eng, DefaultConfig(), nil)

	rec := l.Step()
	assert.Empty(t, eng.batches)
	assert.Len(t, eng.activations, len(rec.Sensors))
}

func TestForwardFallsBackToSyncOnMetricsError(t *testing.T) {
	eng := &fakeAsyncEngine{asyncOn: true, metricsErr: errors.New("probe failed")}
	l, _ := makeLoop(t, eng, DefaultConfig(), nil)

	rec := l.Step()
	assert.Empty(t, eng.batches)
	assert.Len(t, eng.activations, len(rec.Sensors))
}

// #endregion forward-tests

// #region record-tests

func TestZeroRewardStepsAreNotRecorded(t *testing.T) {
	eng := &fakeEngine{}
	l, buffer := makeLoop(t, eng, DefaultConfig(), func(c *world.Config) {
		c.HungerThreshold = 2
		c.HazardMinInterval = 50 // no hazard, resting never moves health
		c.HazardMaxInterval = 50
	})

	rec := l.Step()
	require.NotZero(t, rec.Stimulus)
	assert.Zero(t, rec.Reward)
	assert.Zero(t, buffer.Len())
}

func TestHazardDamageGetsRecordedAgainstStimulus(t *testing.T) {
	eng := &fakeEngine{}
	l, buffer := makeLoop(t, eng, DefaultConfig(), func(c *world.Config) {
		c.HungerThreshold = 2 // hungry is the standing stimulus
		c.HazardMinInterval = 1
		c.HazardMaxInterval = 1
	})

	l.Step() // hazard spawns, no damage on its spawn step
	assert.Zero(t, buffer.Len())

	rec := l.Step() // resting under an active hazard takes damage
	require.Negative(t, rec.Reward)
	assert.Equal(t, 1, buffer.Len())

	entries := buffer.Snapshot()
	assert.Equal(t, nodes.Hungry, entries[0].Stimulus)
	assert.Equal(t, nodes.Rest, entries[0].Action)
	assert.Equal(t, rec.Reward, entries[0].Acc)
}

// #endregion record-tests

// #region epoch-tests

func TestConsolidationEpochClearsBuffer(t *testing.T) {
	eng := &fakeEngine{}
	cfg := DefaultConfig()
	cfg.ConsolidateEvery = 2
	l, buffer := makeLoop(t, eng, cfg, func(c *world.Config) {
		c.HungerThreshold = 2
		c.HazardMinInterval = 1
		c.HazardMaxInterval = 1
	})

	l.Step()
	l.Step() // damage recorded, then the epoch runs on step 2
	assert.Zero(t, buffer.Len())
	assert.Equal(t, 1, eng.consolidates)
	// a single entry can never exceed the mean of its own peak, so no write
	assert.Zero(t, eng.updates)
}

func TestRunStopsOnDeath(t *testing.T) {
	eng := &fakeEngine{}
	cfg := DefaultConfig()
	cfg.MaxSteps = 200
	l, _ := makeLoop(t, eng, cfg, func(c *world.Config) {
		// constant hazard hits with no evasion ever chosen drain health fast
		c.HazardMinInterval = 1
		c.HazardMaxInterval = 1
		c.HazardDamageMin = 0.25
		c.HazardDamageMax = 0.25
	})

	report, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Died)
	assert.Less(t, report.Steps, 20)
	assert.Zero(t, report.Health)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	eng := &fakeEngine{}
	l, _ := makeLoop(t, eng, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Steps)
}

func TestRunReportCountsActions(t *testing.T) {
	eng := &fakeEngine{}
	cfg := DefaultConfig()
	cfg.MaxSteps = 5
	l, _ := makeLoop(t, eng, cfg, func(c *world.Config) {
		c.HazardMinInterval = 50
		c.HazardMaxInterval = 50
	})

	report, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Steps)
	total := 0
	for _, n := range report.ActionCounts {
		total += n
	}
	assert.Equal(t, 5, total)
}

type captureSink struct{ steps []int }

func (c *captureSink) OnStep(rec StepRecord) { c.steps = append(c.steps, rec.Step) }

func TestSinksSeeEveryStep(t *testing.T) {
	eng := &fakeEngine{}
	cfg := DefaultConfig()
	cfg.MaxSteps = 3
	l, _ := makeLoop(t, eng, cfg, nil)

	sink := &captureSink{}
	l.AddSink(sink)
	_, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, sink.steps)
}

// #endregion epoch-tests
