// Package audio maps continuous sound into the agent's discrete stimulus
// vocabulary: PCM frames become feature vectors, feature vectors become
// ranked (node, strength) stimuli through fixed threshold rules, and an
// autonomy loop forwards those stimuli to the associative engine the same
// way the survival loop forwards its sensors.
package audio

import (
	"math"
	"math/cmplx"
)

// #region extractor
// Extractor derives a FeatureVector from one frame of samples in [-1,1].
// It carries the previous frame's RMS so onset detection (DeltaRMS) works
// across consecutive frames; one extractor per stream, never shared.
type Extractor struct {
	sampleRate int
	prevRMS    float64
}

// NewExtractor returns an extractor for the given sample rate.
func NewExtractor(sampleRate int) *Extractor {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Extractor{sampleRate: sampleRate}
}

// Extract computes the features of one frame. An empty frame yields the zero
// vector. DeltaRMS is the positive RMS rise since the previous frame; falling
// energy reads as zero.
func (e *Extractor) Extract(frame []float64) FeatureVector {
	if len(frame) == 0 {
		return FeatureVector{}
	}

	var sumSq, peak float64
	crossings := 0
	for i, s := range frame {
		sumSq += s * s
		if a := math.Abs(s); a > peak {
			peak = a
		}
		if i > 0 && (s >= 0) != (frame[i-1] >= 0) {
			crossings++
		}
	}
	rms := math.Sqrt(sumSq / float64(len(frame)))

	delta := rms - e.prevRMS
	if delta < 0 {
		delta = 0
	}
	e.prevRMS = rms

	return FeatureVector{
		RMS:        rms,
		Peak:       peak,
		ZCR:        float64(crossings) / float64(len(frame)),
		CentroidHz: spectralCentroid(frame, e.sampleRate),
		DeltaRMS:   delta,
		Duration:   float64(len(frame)) / float64(e.sampleRate),
	}
}

// #endregion extractor

// #region spectrum
// spectralCentroid is the magnitude-weighted mean frequency over the positive
// spectrum bins, in Hz. Silence (zero total magnitude) reads as 0.
func spectralCentroid(frame []float64, sampleRate int) float64 {
	spectrum := fft(frame)
	half := len(spectrum) / 2

	var weighted, total float64
	binHz := float64(sampleRate) / float64(len(spectrum))
	for k := 1; k <= half; k++ {
		mag := cmplx.Abs(spectrum[k])
		weighted += float64(k) * binHz * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// fft computes the discrete Fourier transform of a real frame, zero-padded
// to the next power of two, via iterative radix-2 Cooley-Tukey.
func fft(frame []float64) []complex128 {
	n := 1
	for n < len(frame) {
		n <<= 1
	}
	buf := make([]complex128, n)
	for i, s := range frame {
		buf[i] = complex(s, 0)
	}

	// bit-reversal permutation
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(length)))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				a := buf[start+k]
				b := buf[start+k+length/2] * w
				buf[start+k] = a + b
				buf[start+k+length/2] = a - b
				w *= step
			}
		}
	}
	return buf
}

// #endregion spectrum
