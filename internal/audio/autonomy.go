package audio

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

// #region config
// Config tunes one autonomy run. Out-of-range values are clamped silently
// by withClamps, mirroring how the capture CLI treats its flags.
type Config struct {
	Duration     float64 // seconds per capture window
	SampleRate   int     // Hz
	Channels     int
	SeedScale    float64 // multiplier applied to mapped strengths
	Predict      bool    // query the value function for the head stimulus
	PredictLimit int     // ranked predictions to log
	MaxFrames    int     // frames to process; 0 means run until EOF/ctx
	BatchSource  string
}

// DefaultConfig returns the stock autonomy tuning.
func DefaultConfig() Config {
	return Config{
		Duration:     0.5,
		SampleRate:   16000,
		Channels:     1,
		SeedScale:    1.0,
		PredictLimit: 5,
		BatchSource:  "audio_autonomy",
	}
}

func (c Config) withClamps() Config {
	c.Duration = clampF(c.Duration, 0.1, 10)
	c.SampleRate = clampI(c.SampleRate, 8000, 48000)
	c.Channels = clampI(c.Channels, 1, 2)
	c.SeedScale = clampF(c.SeedScale, 0.1, 3)
	c.PredictLimit = clampI(c.PredictLimit, 1, 20)
	if c.BatchSource == "" {
		c.BatchSource = "audio_autonomy"
	}
	return c
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion config

// #region autonomy
// Autonomy drives the audio path end to end: source frames through the
// extractor and rule mapper, mapped stimuli into the engine, and optionally
// a value query for the leading stimulus. Engine failures on single nodes
// are logged and skipped; only source errors end the run.
type Autonomy struct {
	cfg       Config
	eng       engine.Engine
	source    FrameSource
	extractor *Extractor
	logger    *zap.Logger
}

// FrameReport is the outcome of one processed frame. Stimulus is 0 when no
// rule fired.
type FrameReport struct {
	Frame       int
	Features    FeatureVector
	Stimuli     []MappedStimulus
	Stimulus    int
	Context     []int
	Predictions []engine.NodeValue
}

// New wires an autonomy runner. A nil logger discards diagnostics.
func New(cfg Config, eng engine.Engine, source FrameSource, logger *zap.Logger) *Autonomy {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withClamps()
	return &Autonomy{
		cfg:       cfg,
		eng:       eng,
		source:    source,
		extractor: NewExtractor(cfg.SampleRate),
		logger:    logger,
	}
}

// Run processes frames until the source is exhausted, the frame budget is
// reached, or ctx is cancelled. It returns the per-frame reports.
func (a *Autonomy) Run(ctx context.Context) ([]FrameReport, error) {
	frameSize := int(a.cfg.Duration * float64(a.cfg.SampleRate))
	var reports []FrameReport

	for i := 0; a.cfg.MaxFrames <= 0 || i < a.cfg.MaxFrames; i++ {
		select {
		case <-ctx.Done():
			return reports, ctx.Err()
		default:
		}

		frame, err := a.source.NextFrame(frameSize)
		if errors.Is(err, io.EOF) {
			return reports, nil
		}
		if err != nil {
			return reports, err
		}
		reports = append(reports, a.processFrame(i, frame))
	}
	return reports, nil
}

// processFrame runs one frame through the whole pipeline.
func (a *Autonomy) processFrame(idx int, frame []float64) FrameReport {
	rep := FrameReport{Frame: idx}
	rep.Features = a.extractor.Extract(frame)
	rep.Stimuli = Scale(Map(rep.Features), a.cfg.SeedScale)
	if len(rep.Stimuli) == 0 {
		a.logger.Debug("frame mapped to nothing", zap.Int("frame", idx))
		return rep
	}

	a.submit(rep.Stimuli)

	// head of the ranking is the stimulus; up to the next three are context
	rep.Stimulus = rep.Stimuli[0].Node
	for _, m := range rep.Stimuli[1:] {
		if len(rep.Context) == 3 {
			break
		}
		rep.Context = append(rep.Context, m.Node)
	}

	if a.cfg.Predict {
		ranked, err := a.eng.Rank(rep.Stimulus, rep.Context)
		if err != nil {
			a.logger.Warn("prediction query failed",
				zap.String("stimulus", nodes.Translate(rep.Stimulus)),
				zap.Error(err))
		} else {
			if len(ranked) > a.cfg.PredictLimit {
				ranked = ranked[:a.cfg.PredictLimit]
			}
			rep.Predictions = ranked
		}
	}

	a.logFrame(rep)
	return rep
}

// submit forwards mapped stimuli the same way the survival loop forwards
// sensors: one batch while the async runtime is up, per-node sync otherwise.
func (a *Autonomy) submit(stimuli []MappedStimulus) {
	if ae, ok := a.eng.(engine.AsyncEngine); ok {
		if m, err := ae.Metrics(); err == nil && m.AsyncOn {
			batch := make([]engine.Stimulus, 0, len(stimuli))
			for _, st := range stimuli {
				batch = append(batch, engine.Stimulus{Node: st.Node, Strength: st.Strength, Source: a.cfg.BatchSource})
			}
			if _, err := ae.SubmitBatch(batch); err == nil {
				return
			} else {
				a.logger.Warn("batched stimulus submit failed, falling back to sync", zap.Error(err))
			}
		}
	}
	for _, st := range stimuli {
		if err := a.eng.Activate(st.Node, st.Strength); err != nil {
			a.logger.Warn("stimulus activation rejected",
				zap.Int("node", st.Node), zap.Error(err))
		}
	}
}

func (a *Autonomy) logFrame(rep FrameReport) {
	fields := []zap.Field{
		zap.Int("frame", rep.Frame),
		zap.Float64("rms", rep.Features.RMS),
		zap.Float64("peak", rep.Features.Peak),
		zap.Float64("centroid_hz", rep.Features.CentroidHz),
		zap.String("stimulus", nodes.Translate(rep.Stimulus)),
		zap.Int("stimuli", len(rep.Stimuli)),
	}
	if len(rep.Predictions) > 0 {
		fields = append(fields,
			zap.String("prediction", nodes.Translate(rep.Predictions[0].Node)),
			zap.Float64("value", rep.Predictions[0].Value))
	}
	a.logger.Info("audio frame", fields...)
}

// #endregion autonomy
