// Package loop drives the survival agent: each step it reads the world's
// sensors, forwards them to the associative engine, picks an action from the
// engine's ranking (or the rest fallback), applies it to the world, and
// records the outcome for consolidation. Every consolidation interval it
// folds accumulated experience into engine weights.
package loop

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
	"github.com/danielpatrickdp/survival-agent/internal/hippocampus"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
	"github.com/danielpatrickdp/survival-agent/internal/world"
)

// #region config
// Config tunes one loop instance.
type Config struct {
	// DefaultAction fires when no stimulus qualifies, the ranking comes back
	// empty, or the engine is unavailable.
	DefaultAction int

	// ConsolidateEvery is the step interval of the consolidation epoch.
	ConsolidateEvery int

	// MaxSteps bounds Run.
	MaxSteps int

	// BatchSource tags batched sensor submissions.
	BatchSource string
}

// DefaultConfig returns the stock loop tuning.
func DefaultConfig() Config {
	return Config{
		DefaultAction:    nodes.Rest,
		ConsolidateEvery: 20,
		MaxSteps:         100,
		BatchSource:      "survival_loop",
	}
}

func (c Config) withDefaults() Config {
	if c.DefaultAction == 0 {
		c.DefaultAction = nodes.Rest
	}
	if c.ConsolidateEvery <= 0 {
		c.ConsolidateEvery = 20
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 100
	}
	if c.BatchSource == "" {
		c.BatchSource = "survival_loop"
	}
	return c
}

// #endregion config

// #region records
// StepRecord is everything one step produced. Stimulus 0 means no sensor
// qualified as a stimulus this step.
type StepRecord struct {
	Step     int              `json:"step"`
	Sensors  []int            `json:"sensors"`
	Stimulus int              `json:"stimulus"`
	Context  []int            `json:"context"`
	Action   int              `json:"action"`
	Reason   string           `json:"reason"`
	Reward   float64          `json:"reward"`
	Formed   int              `json:"formed"`
	Result   world.StepResult `json:"result"`
}

// RunReport summarizes a finished run.
type RunReport struct {
	Steps          int
	Died           bool
	Health         float64
	Hunger         float64
	Fatigue        float64
	ActionCounts   map[int]int
	Consolidations int
	LinksFormed    int
}

// StepSink receives every step record. Sinks own their failure handling;
// the loop never blocks on them.
type StepSink interface {
	OnStep(rec StepRecord)
}

// #endregion records

// #region loop-struct
// Loop is the per-run coordinator. It is single-goroutine by design: the
// world, buffer, and step counter have no internal locking.
type Loop struct {
	cfg          Config
	eng          engine.Engine
	world        *world.World
	buffer       *hippocampus.Buffer
	consolidator *hippocampus.Consolidator
	logger       *zap.Logger
	sinks        []StepSink

	step           int
	actionCounts   map[int]int
	consolidations int
	linksFormed    int
}

// New wires a loop. A nil logger discards diagnostics.
func New(cfg Config, eng engine.Engine, w *world.World, buffer *hippocampus.Buffer, consolidator *hippocampus.Consolidator, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		cfg:          cfg.withDefaults(),
		eng:          eng,
		world:        w,
		buffer:       buffer,
		consolidator: consolidator,
		logger:       logger,
		actionCounts: make(map[int]int),
	}
}

// AddSink registers a step sink. Call before Run.
func (l *Loop) AddSink(sink StepSink) {
	if sink != nil {
		l.sinks = append(l.sinks, sink)
	}
}

// #endregion loop-struct

// #region step
// Step advances the agent by one decision cycle and returns its record.
func (l *Loop) Step() StepRecord {
	l.step++
	rec := StepRecord{Step: l.step}

	// 1. Sensor reading comes first; forwarding happens even when no
	//    stimulus will qualify, so ambient context still shapes the graph.
	rec.Sensors = l.world.ActiveSensors()
	l.forward(rec.Sensors)

	// 2. Stimulus is the first priority sensor present; the rest of the
	//    reading contributes context only.
	rec.Stimulus, rec.Context = splitSensors(rec.Sensors)

	// 3. Decide. No stimulus means rest without querying the engine.
	if rec.Stimulus == 0 {
		rec.Action = l.cfg.DefaultAction
		rec.Reason = "no urgent stimulus -> rest"
	} else {
		rec.Action, rec.Reason = l.decide(rec.Stimulus, rec.Context)
	}

	// 4. Act on the world.
	rec.Result = l.world.Step(rec.Action)
	rec.Reward = rec.Result.Reward

	// 5. Opportunistic association forming is advisory.
	formed, err := l.eng.FormAssociations()
	if err != nil {
		l.logger.Warn("association forming failed", zap.Error(err))
	}
	rec.Formed = formed
	l.linksFormed += formed

	// 6. Zero-reward steps carry no learning signal; fallback actions that
	//    did move a vital are recorded like any other.
	if rec.Stimulus != 0 && rec.Reward != 0 {
		l.buffer.Record(rec.Stimulus, rec.Action, rec.Reward)
	}

	l.actionCounts[rec.Action]++
	l.logStep(rec)
	for _, sink := range l.sinks {
		sink.OnStep(rec)
	}

	if l.step%l.cfg.ConsolidateEvery == 0 && !l.world.Dead() {
		l.consolidateEpoch()
	}
	return rec
}

func (l *Loop) forward(sensors []int) {
	if len(sensors) == 0 {
		return
	}
	if ae, ok := l.eng.(engine.AsyncEngine); ok {
		if m, err := ae.Metrics(); err == nil && m.AsyncOn {
			batch := make([]engine.Stimulus, 0, len(sensors))
			for _, s := range sensors {
				batch = append(batch, engine.Stimulus{Node: s, Strength: 1.0, Source: l.cfg.BatchSource})
			}
			if _, err := ae.SubmitBatch(batch); err == nil {
				return
			} else {
				l.logger.Warn("batched sensor submit failed, falling back to sync", zap.Error(err))
			}
		}
	}
	for _, s := range sensors {
		if err := l.eng.Activate(s, 1.0); err != nil {
			l.logger.Warn("sensor activation rejected", zap.Int("node", s), zap.Error(err))
		}
	}
}

func (l *Loop) decide(stimulus int, context []int) (int, string) {
	ranked, err := l.eng.Rank(stimulus, context)
	if err != nil {
		l.logger.Warn("value query failed",
			zap.String("stimulus", nodes.Translate(stimulus)),
			zap.Error(err))
		return l.cfg.DefaultAction, fmt.Sprintf("engine unavailable for stimulus %s -> rest", nodes.Translate(stimulus))
	}

	for _, nv := range ranked {
		if !nodes.IsAction(nv.Node) {
			continue
		}
		names := make([]string, 0, len(context))
		for _, c := range context {
			names = append(names, nodes.Translate(c))
		}
		return nv.Node, fmt.Sprintf("stimulus=%s context=%v cd=%.3f", nodes.Translate(stimulus), names, nv.Value)
	}
	return l.cfg.DefaultAction, fmt.Sprintf("no valid action for stimulus %s", nodes.Translate(stimulus))
}

func (l *Loop) consolidateEpoch() {
	report := l.consolidator.Consolidate(l.buffer)
	l.buffer.Clear()

	engReport, err := l.eng.Consolidate()
	if err != nil {
		l.logger.Warn("engine consolidation failed", zap.Error(err))
	}
	l.consolidations++

	l.logger.Info("consolidation epoch",
		zap.Int("step", l.step),
		zap.Int("written", report.Written),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors),
		zap.Int("merged", engReport.Merged),
		zap.Int("pruned", engReport.Pruned))
	l.logger.Info("engine status", zap.String("status", l.eng.Status()))
}

func (l *Loop) logStep(rec StepRecord) {
	names := make([]string, 0, len(rec.Sensors))
	for _, s := range rec.Sensors {
		names = append(names, nodes.Translate(s))
	}
	l.logger.Info("step",
		zap.Int("step", rec.Step),
		zap.Strings("sensors", names),
		zap.String("action", nodes.Translate(rec.Action)),
		zap.String("reason", rec.Reason),
		zap.Float64("reward", rec.Reward),
		zap.Float64("health", rec.Result.Health),
		zap.Float64("hunger", rec.Result.Hunger),
		zap.Float64("fatigue", rec.Result.Fatigue),
		zap.Int("formed", rec.Formed))
}

// #endregion step

// #region run
// Run steps until death, the step budget, or ctx cancellation. The report
// reflects whatever progress was made.
func (l *Loop) Run(ctx context.Context) (RunReport, error) {
	for l.step < l.cfg.MaxSteps && !l.world.Dead() {
		select {
		case <-ctx.Done():
			return l.report(), ctx.Err()
		default:
		}
		l.Step()
	}
	return l.report(), nil
}

func (l *Loop) report() RunReport {
	counts := make(map[int]int, len(l.actionCounts))
	for action, n := range l.actionCounts {
		counts[action] = n
	}
	return RunReport{
		Steps:          l.step,
		Died:           l.world.Dead(),
		Health:         l.world.Health(),
		Hunger:         l.world.Hunger(),
		Fatigue:        l.world.Fatigue(),
		ActionCounts:   counts,
		Consolidations: l.consolidations,
		LinksFormed:    l.linksFormed,
	}
}

// #endregion run

// #region sensors
func splitSensors(sensors []int) (int, []int) {
	stimulus := 0
	for _, p := range nodes.Priority {
		for _, s := range sensors {
			if s == p {
				stimulus = p
				break
			}
		}
		if stimulus != 0 {
			break
		}
	}

	var context []int
	for _, s := range sensors {
		if nodes.Context[s] {
			context = append(context, s)
		}
	}
	return stimulus, context
}

// #endregion sensors
