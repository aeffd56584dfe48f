package replay

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
	"github.com/danielpatrickdp/survival-agent/internal/hippocampus"
	"github.com/danielpatrickdp/survival-agent/internal/loop"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
	"github.com/danielpatrickdp/survival-agent/internal/world"
)

// #region scripted-engine
// scriptedEngine satisfies the engine contract with fixture-supplied
// rankings. Weight updates are kept in memory so consolidation epochs
// behave normally during a replay; everything else is inert.
type scriptedEngine struct {
	rankings map[int][]engine.NodeValue
	weights  map[int]map[int]float64
}

func newScriptedEngine(rankings map[int][]engine.NodeValue) *scriptedEngine {
	return &scriptedEngine{
		rankings: rankings,
		weights:  make(map[int]map[int]float64),
	}
}

func (s *scriptedEngine) EnsureRegistry([]int) (string, error) { return "scripted", nil }

func (s *scriptedEngine) Activate(int, float64) error { return nil }

func (s *scriptedEngine) Rank(stimulus int, _ []int) ([]engine.NodeValue, error) {
	return s.rankings[stimulus], nil
}

func (s *scriptedEngine) Connections(node int) ([]engine.Link, error) {
	links := make([]engine.Link, 0, len(s.weights[node]))
	for receiver, w := range s.weights[node] {
		links = append(links, engine.Link{Node: receiver, Weight: w})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Weight != links[j].Weight {
			return links[i].Weight > links[j].Weight
		}
		return links[i].Node < links[j].Node
	})
	return links, nil
}

func (s *scriptedEngine) UpdateWeight(sender, receiver int, weight float64) error {
	if s.weights[sender] == nil {
		s.weights[sender] = make(map[int]float64)
	}
	s.weights[sender][receiver] = math.Max(0, math.Min(1, weight))
	return nil
}

func (s *scriptedEngine) FormAssociations() (int, error) { return 0, nil }

func (s *scriptedEngine) Consolidate() (engine.ConsolidateReport, error) {
	return engine.ConsolidateReport{}, nil
}

func (s *scriptedEngine) Status() string { return "scripted engine" }

// #endregion scripted-engine

// #region result
// Check is one comparison line of a replay.
type Check struct {
	Name string
	OK   bool
	Diff string
}

// Result is the outcome of replaying one fixture. Actions is the action
// actually taken at each step, death included.
type Result struct {
	Description string
	Report      loop.RunReport
	Actions     []int
	DeathStep   int
	Checks      []Check
	Passed      bool
}

func (r *Result) check(name string, ok bool, diff string) {
	r.Checks = append(r.Checks, Check{Name: name, OK: ok, Diff: diff})
	if !ok {
		r.Passed = false
	}
}

// #endregion result

// #region replay
// Replay runs the fixture's episode through the real loop and world and
// compares the outcome against the fixture expectations.
func Replay(f *Fixture) (*Result, error) {
	eng := newScriptedEngine(f.ToRankings())
	w := world.New(world.DefaultConfig(), rand.New(rand.NewSource(f.Seed)))
	buffer := hippocampus.NewBuffer()
	consolidator := hippocampus.NewConsolidator(eng, nil)

	cfg := loop.DefaultConfig()
	cfg.MaxSteps = f.MaxSteps
	if f.Config.DefaultAction != 0 {
		cfg.DefaultAction = f.Config.DefaultAction
	}
	if f.Config.ConsolidateEvery != 0 {
		cfg.ConsolidateEvery = f.Config.ConsolidateEvery
	}

	l := loop.New(cfg, eng, w, buffer, consolidator, nil)
	recorder := &actionRecorder{}
	l.AddSink(recorder)

	report, err := l.Run(context.Background())
	if err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}

	result := &Result{
		Description: f.Description,
		Report:      report,
		Actions:     recorder.actions,
		DeathStep:   recorder.deathStep,
		Passed:      true,
	}
	compare(result, f.Expect, report, recorder)
	return result, nil
}

type actionRecorder struct {
	actions   []int
	deathStep int
}

func (a *actionRecorder) OnStep(rec loop.StepRecord) {
	a.actions = append(a.actions, rec.Action)
	if rec.Result.Dead && a.deathStep == 0 {
		a.deathStep = rec.Step
	}
}

func compare(result *Result, expect FixtureExpected, report loop.RunReport, rec *actionRecorder) {
	if len(expect.Actions) > 0 {
		names := func(ids []int) []string {
			out := make([]string, 0, len(ids))
			for _, id := range ids {
				out = append(out, nodes.Translate(id))
			}
			return out
		}
		diff := cmp.Diff(names(expect.Actions), names(rec.actions))
		result.check("action sequence", diff == "", diff)
	}

	if expect.DeathStep > 0 {
		result.check("death step",
			rec.deathStep == expect.DeathStep,
			fmt.Sprintf("want death at step %d, got %d", expect.DeathStep, rec.deathStep))
	} else {
		result.check("survival",
			!report.Died,
			fmt.Sprintf("agent died at step %d, expected survival", rec.deathStep))
	}

	tolerance := expect.Tolerance
	if tolerance == 0 {
		tolerance = 1e-6
	}
	vitals := []struct {
		name      string
		got, want float64
	}{
		{"health", report.Health, expect.Health},
		{"hunger", report.Hunger, expect.Hunger},
		{"fatigue", report.Fatigue, expect.Fatigue},
	}
	for _, v := range vitals {
		result.check("final "+v.name,
			math.Abs(v.got-v.want) <= tolerance,
			fmt.Sprintf("want %.4f ± %.4f, got %.4f", v.want, tolerance, v.got))
	}
}

// #endregion replay
