package hippocampus

import (
	"math"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

// defaultWeight is assumed for an edge the engine has never seen: unknown
// pairings start from indifference, not from zero.
const defaultWeight = 0.5

// #region rescorla-wagner
// RescorlaWagner revises a weight toward a reward signal with a learning
// rate that decays as observations accumulate: alpha = 1/max(count,1). A
// rarely-seen entry moves aggressively; a frequently-seen one barely moves.
// The result clamps to [0,1].
func RescorlaWagner(oldWeight, reward float64, count int) float64 {
	alpha := 1.0 / float64(max(count, 1))
	next := oldWeight + alpha*(reward-oldWeight)
	return math.Max(0, math.Min(1, next))
}

// #endregion rescorla-wagner

// #region consolidator
// Consolidator writes significant buffered experience into long-term engine
// weights. Significance is adaptive per epoch: only entries whose peak
// magnitude strictly exceeds the mean peak magnitude are written; the rest
// are discarded with the epoch.
type Consolidator struct {
	engine engine.Engine
	logger *zap.Logger
}

// NewConsolidator wires a consolidator to an engine. A nil logger is
// replaced with a no-op logger.
func NewConsolidator(eng engine.Engine, logger *zap.Logger) *Consolidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{engine: eng, logger: logger}
}

// Consolidate runs one pass over the buffer. The target of each weight
// update is the accumulated reward sum, not its mean: keys observed many
// times with a consistent sign dominate. Engine failures on a single entry
// are logged and skip that entry only; the pass always continues. The
// buffer is left untouched — clearing it is the caller's explicit step.
func (c *Consolidator) Consolidate(buf *Buffer) Report {
	experiences := buf.Snapshot()
	if len(experiences) == 0 {
		c.logger.Debug("consolidation pass skipped, buffer empty")
		return Report{}
	}

	var sum float64
	for _, e := range experiences {
		sum += math.Abs(e.Peak)
	}
	threshold := sum / float64(len(experiences))
	report := Report{Entries: len(experiences), Threshold: threshold}

	c.logger.Info("consolidation pass",
		zap.Int("entries", len(experiences)),
		zap.Float64("threshold", threshold))

	for _, e := range experiences {
		// strict comparison: entries at the mean are discarded
		if math.Abs(e.Peak) <= threshold {
			report.Skipped++
			continue
		}

		old, err := c.lookupWeight(e.Stimulus, e.Action)
		if err != nil {
			report.Errors++
			c.logger.Warn("consolidation lookup failed",
				zap.String("stimulus", nodes.Translate(e.Stimulus)),
				zap.String("action", nodes.Translate(e.Action)),
				zap.Error(err))
			continue
		}

		next := RescorlaWagner(old, e.Acc, e.Count)
		if err := c.engine.UpdateWeight(e.Stimulus, e.Action, next); err != nil {
			report.Errors++
			c.logger.Warn("consolidation write failed",
				zap.String("stimulus", nodes.Translate(e.Stimulus)),
				zap.String("action", nodes.Translate(e.Action)),
				zap.Error(err))
			continue
		}
		report.Written++

		c.logger.Debug("weight consolidated",
			zap.String("stimulus", nodes.Translate(e.Stimulus)),
			zap.String("action", nodes.Translate(e.Action)),
			zap.Float64("old", old),
			zap.Float64("new", next),
			zap.Float64("peak", e.Peak))
	}

	return report
}

// lookupWeight finds the current stimulus→action weight among the stimulus
// node's connections, defaulting when the edge does not exist yet.
func (c *Consolidator) lookupWeight(sender, receiver int) (float64, error) {
	links, err := c.engine.Connections(sender)
	if err != nil {
		return 0, err
	}
	for _, l := range links {
		if l.Node == receiver {
			return l.Weight, nil
		}
	}
	return defaultWeight, nil
}

// #endregion consolidator
