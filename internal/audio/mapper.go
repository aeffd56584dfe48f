package audio

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

// #region rules
// rule is one threshold test over a feature vector. Fires reports whether
// the rule triggers; Strength is only meaningful when it does.
type rule struct {
	name     string
	node     int
	fires    func(f FeatureVector) bool
	strength func(f FeatureVector) float64
}

// The rule table. Two rules deliberately share the sharp_sound node: a
// sudden energy rise and a bright spectral profile are different evidence
// for the same percept, merged by max strength below.
var rules = []rule{
	{
		name: "loud_audio",
		node: nodes.LoudNoise,
		fires: func(f FeatureVector) bool {
			return f.RMS >= 0.10 || f.Peak >= 0.55
		},
		strength: func(f FeatureVector) float64 {
			return math.Min(1, math.Max(f.RMS*4, f.Peak*0.9))
		},
	},
	{
		name: "sudden_onset",
		node: nodes.SharpSound,
		fires: func(f FeatureVector) bool {
			return f.DeltaRMS >= 0.07 || f.Peak >= 0.80
		},
		strength: func(f FeatureVector) float64 {
			return math.Min(1, math.Max(f.DeltaRMS*8, f.Peak))
		},
	},
	{
		name: "startle_proxy",
		node: nodes.Startle,
		fires: func(f FeatureVector) bool {
			return (f.Peak >= 0.85 && f.DeltaRMS >= 0.06) || (f.RMS >= 0.16 && f.ZCR >= 0.15)
		},
		strength: func(f FeatureVector) float64 {
			return math.Min(1, 0.5*f.Peak+0.5*math.Min(1, f.DeltaRMS*8))
		},
	},
	{
		name: "quiet_context",
		node: nodes.Quiet,
		fires: func(f FeatureVector) bool {
			return f.RMS <= 0.02 && f.Peak <= 0.08
		},
		strength: func(f FeatureVector) float64 {
			return math.Min(1, math.Max(0.2, (0.03-f.RMS)*20))
		},
	},
	{
		name: "high_freq_sharp",
		node: nodes.SharpSound,
		fires: func(f FeatureVector) bool {
			return f.CentroidHz >= 3200 && f.Peak >= 0.35
		},
		strength: func(f FeatureVector) float64 {
			return math.Min(1, f.CentroidHz/8000*0.7+f.Peak*0.3)
		},
	},
}

// #endregion rules

// #region mapper
// Map evaluates every rule against one feature vector and returns the fired
// stimuli sorted by descending strength. When several rules target the same
// node, only the strongest survives, keeping its originating rule name.
func Map(f FeatureVector) []MappedStimulus {
	best := make(map[int]MappedStimulus, len(rules))
	for _, r := range rules {
		if !r.fires(f) {
			continue
		}
		s := math.Max(0, math.Min(1, r.strength(f)))
		if cur, ok := best[r.node]; !ok || s > cur.Strength {
			best[r.node] = MappedStimulus{Node: r.node, Strength: s, Reason: r.name}
		}
	}

	out := make([]MappedStimulus, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Node < out[j].Node
	})
	return out
}

// Scale multiplies every strength by factor and clamps to [0,1], for callers
// that attenuate or boost the mapped stimuli before submission.
func Scale(stimuli []MappedStimulus, factor float64) []MappedStimulus {
	out := make([]MappedStimulus, len(stimuli))
	for i, m := range stimuli {
		m.Strength = math.Max(0, math.Min(1, m.Strength*factor))
		out[i] = m
	}
	return out
}

// #endregion mapper
