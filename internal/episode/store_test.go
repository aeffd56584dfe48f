package episode

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/survival-agent/internal/loop"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
	"github.com/danielpatrickdp/survival-agent/internal/world"
)

func makeStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "episodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func step(n, stimulus, action int, reward float64) loop.StepRecord {
	return loop.StepRecord{
		Step:     n,
		Stimulus: stimulus,
		Action:   action,
		Reward:   reward,
		Result:   world.StepResult{Health: 0.9, Hunger: 0.8, Fatigue: 0.7, Message: "-"},
	}
}

func TestRunLifecycle(t *testing.T) {
	s := makeStore(t)

	id, err := s.BeginRun(42, 100)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.AppendStep(id, step(1, nodes.Hungry, nodes.Eat, 0.1)))
	require.NoError(t, s.AppendStep(id, step(2, 0, nodes.Rest, 0)))
	require.NoError(t, s.FinishRun(id, loop.RunReport{
		Steps: 2, Died: true, Health: 0, Hunger: 0.3, Fatigue: 0.4,
	}))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, int64(42), runs[0].Seed)
	assert.Equal(t, 2, runs[0].Steps)
	assert.True(t, runs[0].Died)
	assert.Zero(t, runs[0].FinalHealth)

	steps, err := s.StepsOf(id)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, nodes.Hungry, steps[0].Stimulus)
	assert.Equal(t, nodes.Eat, steps[0].Action)
	assert.InDelta(t, 0.1, steps[0].Reward, 1e-9)
}

func TestDuplicateStepRejected(t *testing.T) {
	s := makeStore(t)
	id, err := s.BeginRun(1, 10)
	require.NoError(t, err)

	require.NoError(t, s.AppendStep(id, step(1, 0, nodes.Rest, 0)))
	assert.Error(t, s.AppendStep(id, step(1, 0, nodes.Rest, 0)))
}

func TestBestActionNeedsEnoughSamples(t *testing.T) {
	s := makeStore(t)
	id, err := s.BeginRun(1, 10)
	require.NoError(t, err)

	// two positive eat outcomes are below the sample floor
	require.NoError(t, s.AppendStep(id, step(1, nodes.Hungry, nodes.Eat, 0.2)))
	require.NoError(t, s.AppendStep(id, step(2, nodes.Hungry, nodes.Eat, 0.3)))

	_, ok, err := s.BestAction(nodes.Hungry)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBestActionPrefersHigherDecayedScore(t *testing.T) {
	s := makeStore(t)
	id, err := s.BeginRun(1, 10)
	require.NoError(t, err)

	// eat: three rewards of +0.1; explore: three of -0.05
	n := 0
	for _, act := range []struct {
		action int
		reward float64
	}{
		{nodes.Eat, 0.1}, {nodes.Eat, 0.1}, {nodes.Eat, 0.1},
		{nodes.Explore, -0.05}, {nodes.Explore, -0.05}, {nodes.Explore, -0.05},
	} {
		n++
		require.NoError(t, s.AppendStep(id, step(n, nodes.Hungry, act.action, act.reward)))
	}

	best, ok, err := s.BestAction(nodes.Hungry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, nodes.Eat, best.Action)
	assert.Equal(t, 3, best.Samples)
	// fresh rewards are nearly undecayed
	assert.InDelta(t, 0.3, best.Score, 0.01)
}

func TestBestActionIgnoresOtherStimuli(t *testing.T) {
	s := makeStore(t)
	id, err := s.BeginRun(1, 10)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.AppendStep(id, step(i, nodes.Tired, nodes.Sleep, 0.1)))
	}

	_, ok, err := s.BestAction(nodes.Hungry)
	require.NoError(t, err)
	assert.False(t, ok)
}
