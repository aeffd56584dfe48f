package audio

// #region features
// FeatureVector summarizes one capture window of PCM samples. All fields are
// derived per window except DeltaRMS, which compares against the previous
// window and therefore needs the extractor's carried state.
type FeatureVector struct {
	RMS        float64 `json:"rms"`
	Peak       float64 `json:"peak"`
	ZCR        float64 `json:"zcr"`
	CentroidHz float64 `json:"centroid_hz"`
	DeltaRMS   float64 `json:"delta_rms"`
	Duration   float64 `json:"duration_sec"`
}

// #endregion features

// #region stimuli
// MappedStimulus is one entry of the mapper's ranked output: a node, its
// strength in [0,1], and the rule that produced it.
type MappedStimulus struct {
	Node     int     `json:"node"`
	Strength float64 `json:"strength"`
	Reason   string  `json:"reason"`
}

// #endregion stimuli
