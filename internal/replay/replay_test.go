package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episode.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"description": "hungry agent eats",
		"seed": 42,
		"max_steps": 30,
		"rankings": [
			{"stimulus": 103, "ranked": [{"node": 107, "value": 0.9}, {"node": 106, "value": 0.4}]}
		],
		"expect": {"actions": [], "health": 1, "hunger": 1, "fatigue": 1}
	}`), 0o644))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, "hungry agent eats", f.Description)
	assert.Equal(t, int64(42), f.Seed)

	rankings := f.ToRankings()
	require.Contains(t, rankings, nodes.Hungry)
	assert.Equal(t, []engine.NodeValue{
		{Node: nodes.Eat, Value: 0.9},
		{Node: nodes.Explore, Value: 0.4},
	}, rankings[nodes.Hungry])
}

func TestLoadFixtureRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err := LoadFixture(bad)
	assert.Error(t, err)

	zero := filepath.Join(dir, "zero.json")
	require.NoError(t, os.WriteFile(zero, []byte(`{"max_steps": 0}`), 0o644))
	_, err = LoadFixture(zero)
	assert.Error(t, err)

	_, err = LoadFixture(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)
}

func TestReplayIsDeterministic(t *testing.T) {
	fixture := &Fixture{
		Description: "determinism probe",
		Seed:        7,
		MaxSteps:    40,
		Rankings: []FixtureRank{
			{Stimulus: nodes.Hungry, Ranked: []FixtureCandidate{{Node: nodes.Eat, Value: 0.8}}},
			{Stimulus: nodes.Tired, Ranked: []FixtureCandidate{{Node: nodes.Sleep, Value: 0.7}}},
			{Stimulus: nodes.Danger, Ranked: []FixtureCandidate{{Node: nodes.Flee, Value: 0.9}}},
			{Stimulus: nodes.Pain, Ranked: []FixtureCandidate{{Node: nodes.Sleep, Value: 0.6}}},
		},
	}

	first, err := Replay(fixture)
	require.NoError(t, err)
	require.NotEmpty(t, first.Actions)

	second, err := Replay(fixture)
	require.NoError(t, err)
	assert.Equal(t, first.Actions, second.Actions)
	assert.Equal(t, first.Report, second.Report)
}

func TestReplayPassesAgainstItsOwnTrajectory(t *testing.T) {
	fixture := &Fixture{
		Seed:     11,
		MaxSteps: 25,
		Rankings: []FixtureRank{
			{Stimulus: nodes.Hungry, Ranked: []FixtureCandidate{{Node: nodes.Eat, Value: 0.8}}},
			{Stimulus: nodes.Danger, Ranked: []FixtureCandidate{{Node: nodes.Hide, Value: 0.9}}},
		},
	}

	// first pass pins the trajectory, second pass must reproduce it
	pilot, err := Replay(fixture)
	require.NoError(t, err)

	fixture.Expect = FixtureExpected{
		Actions:   pilot.Actions,
		DeathStep: pilot.DeathStep,
		Health:    pilot.Report.Health,
		Hunger:    pilot.Report.Hunger,
		Fatigue:   pilot.Report.Fatigue,
		Tolerance: 1e-9,
	}

	result, err := Replay(fixture)
	require.NoError(t, err)
	for _, c := range result.Checks {
		assert.True(t, c.OK, "%s: %s", c.Name, c.Diff)
	}
	assert.True(t, result.Passed)
}

func TestReplayFlagsActionMismatch(t *testing.T) {
	fixture := &Fixture{
		Seed:     3,
		MaxSteps: 1,
		Expect: FixtureExpected{
			// no stimulus fires on a fresh world, so the loop rests; a
			// scripted expectation of flee must produce a diff
			Actions: []int{nodes.Flee},
		},
	}

	result, err := Replay(fixture)
	require.NoError(t, err)
	assert.False(t, result.Passed)

	var actionCheck *Check
	for i := range result.Checks {
		if result.Checks[i].Name == "action sequence" {
			actionCheck = &result.Checks[i]
		}
	}
	require.NotNil(t, actionCheck)
	assert.False(t, actionCheck.OK)
	assert.NotEmpty(t, actionCheck.Diff)
	assert.Equal(t, []int{nodes.Rest}, result.Actions)
}
