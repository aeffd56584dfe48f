// Package replay re-runs scripted episodes through the real decision loop
// and world, with the engine's value function replaced by fixture-supplied
// rankings. Fixtures pin both the inputs (world seed, scripted rankings)
// and the expectations (action sequence, death step, final vitals), so a
// behavior change in the loop or the world shows up as a fixture diff.
package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string          `json:"description"`
	Seed        int64           `json:"seed"`
	MaxSteps    int             `json:"max_steps"`
	Config      FixtureConfig   `json:"config"`
	Rankings    []FixtureRank   `json:"rankings"`
	Expect      FixtureExpected `json:"expect"`
}

// FixtureConfig overrides loop tuning for the replayed episode. Zero values
// keep the loop defaults.
type FixtureConfig struct {
	DefaultAction    int `json:"default_action"`
	ConsolidateEvery int `json:"consolidate_every"`
}

// FixtureRank scripts the engine's answer for one stimulus.
type FixtureRank struct {
	Stimulus int                `json:"stimulus"`
	Ranked   []FixtureCandidate `json:"ranked"`
}

// FixtureCandidate mirrors engine.NodeValue with JSON tags.
type FixtureCandidate struct {
	Node  int     `json:"node"`
	Value float64 `json:"value"`
}

// FixtureExpected captures what the episode must produce. Actions is the
// full expected per-step action sequence; DeathStep is 0 when the agent is
// expected to survive; vitals are compared within Tolerance.
type FixtureExpected struct {
	Actions   []int   `json:"actions"`
	DeathStep int     `json:"death_step"`
	Health    float64 `json:"health"`
	Hunger    float64 `json:"hunger"`
	Fatigue   float64 `json:"fatigue"`
	Tolerance float64 `json:"tolerance"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.MaxSteps <= 0 {
		return nil, fmt.Errorf("fixture %s: max_steps must be positive", path)
	}
	return &f, nil
}

// ToRankings converts the scripted rankings to the domain map consumed by
// the scripted engine.
func (f *Fixture) ToRankings() map[int][]engine.NodeValue {
	out := make(map[int][]engine.NodeValue, len(f.Rankings))
	for _, r := range f.Rankings {
		ranked := make([]engine.NodeValue, 0, len(r.Ranked))
		for _, c := range r.Ranked {
			ranked = append(ranked, engine.NodeValue{Node: c.Node, Value: c.Value})
		}
		out[r.Stimulus] = ranked
	}
	return out
}

// #endregion fixture-loader
