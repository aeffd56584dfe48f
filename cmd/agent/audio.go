package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/survival-agent/internal/audio"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

var (
	audioInput        string
	audioDuration     float64
	audioRate         int
	audioChannels     int
	audioSeedScale    float64
	audioPredict      bool
	audioPredictLimit int
	audioFrames       int
)

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "feed an audio source through the stimulus mapper",
	Long: `audio runs the autonomy loop over a frame source: silence (the
baseline), a 16-bit PCM WAV file, or a seeded synthetic scene. Mapped
stimuli are forwarded to the engine; with --predict each frame also asks
the engine what it would do about the leading stimulus.`,
	RunE: runAudio,
}

func init() {
	audioCmd.Flags().StringVar(&audioInput, "input", "silence", `frame source: "silence", "synth", or a .wav path`)
	audioCmd.Flags().Float64Var(&audioDuration, "duration", 0, "capture window seconds (0 = config value)")
	audioCmd.Flags().IntVar(&audioRate, "sample-rate", 0, "sample rate in Hz (0 = config value)")
	audioCmd.Flags().IntVar(&audioChannels, "channels", 0, "channel count (0 = config value)")
	audioCmd.Flags().Float64Var(&audioSeedScale, "seed-scale", 0, "stimulus strength multiplier (0 = config value)")
	audioCmd.Flags().BoolVar(&audioPredict, "predict", false, "query the value function per frame")
	audioCmd.Flags().IntVar(&audioPredictLimit, "predict-limit", 5, "ranked predictions to report")
	audioCmd.Flags().IntVar(&audioFrames, "frames", 20, "frames to process (0 = until the source ends)")
}

func runAudio(cmd *cobra.Command, args []string) error {
	aCfg := audio.DefaultConfig()
	aCfg.Duration = pickF(audioDuration, cfg.Audio.Duration)
	aCfg.SampleRate = pickI(audioRate, cfg.Audio.SampleRate)
	aCfg.Channels = pickI(audioChannels, cfg.Audio.Channels)
	aCfg.SeedScale = pickF(audioSeedScale, cfg.Audio.SeedScale)
	aCfg.Predict = audioPredict
	aCfg.PredictLimit = audioPredictLimit
	aCfg.MaxFrames = audioFrames

	eng, err := openEngine(cfg.Seed, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	var source audio.FrameSource
	switch audioInput {
	case "silence":
		source = audio.SilenceSource{}
	case "synth":
		source = audio.NewSynthSource(aCfg.SampleRate, cfg.Seed)
	default:
		file, err := audio.OpenFile(audioInput)
		if err != nil {
			return err
		}
		defer file.Close()
		aCfg.SampleRate = file.SampleRate()
		source = file
	}

	reports, err := audio.New(aCfg, eng, source, logger).Run(cmd.Context())
	if err != nil {
		return err
	}

	for _, rep := range reports {
		if rep.Stimulus == 0 {
			continue
		}
		fmt.Printf("frame %3d: stimulus=%s (rms=%.3f peak=%.3f centroid=%.0fHz)\n",
			rep.Frame, nodes.Translate(rep.Stimulus),
			rep.Features.RMS, rep.Features.Peak, rep.Features.CentroidHz)
		for _, p := range rep.Predictions {
			fmt.Printf("           -> %s (%.3f)\n", nodes.Translate(p.Node), p.Value)
		}
	}
	fmt.Printf("processed %d frames\n", len(reports))
	return nil
}

func pickF(flag, fallback float64) float64 {
	if flag > 0 {
		return flag
	}
	return fallback
}

func pickI(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}
