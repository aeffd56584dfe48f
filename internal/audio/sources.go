package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
)

// #region source
// FrameSource yields successive frames of samples in [-1,1]. Sources return
// io.EOF when exhausted; the silence source never is.
type FrameSource interface {
	// NextFrame fills and returns one frame of up to size samples.
	NextFrame(size int) ([]float64, error)
}

// #endregion source

// #region silence
// SilenceSource produces zero frames forever. It is the capture baseline:
// running the autonomy loop against it exercises only the quiet rule.
type SilenceSource struct{}

// NextFrame returns a zero frame of the requested size.
func (SilenceSource) NextFrame(size int) ([]float64, error) {
	return make([]float64, size), nil
}

// #endregion silence

// #region synth
// SynthSource generates seeded synthetic scenes for demos and tests: a
// repeating cycle of silence, a noise burst, and a bright tone. Two sources
// built from equal seeds emit identical frames.
type SynthSource struct {
	rng        *rand.Rand
	sampleRate int
	frameIdx   int
	phase      float64
}

// NewSynthSource returns a synth source at the given sample rate.
func NewSynthSource(sampleRate int, seed int64) *SynthSource {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &SynthSource{rng: rand.New(rand.NewSource(seed)), sampleRate: sampleRate}
}

// NextFrame returns the next scene frame. The cycle is three frames of
// silence, one loud noise burst, then two frames of a 4 kHz tone.
func (s *SynthSource) NextFrame(size int) ([]float64, error) {
	frame := make([]float64, size)
	switch pos := s.frameIdx % 6; {
	case pos < 3:
		// silence
	case pos == 3:
		for i := range frame {
			frame[i] = (s.rng.Float64()*2 - 1) * 0.9
		}
	default:
		step := 2 * math.Pi * 4000 / float64(s.sampleRate)
		for i := range frame {
			frame[i] = 0.6 * math.Sin(s.phase)
			s.phase += step
		}
	}
	s.frameIdx++
	return frame, nil
}

// #endregion synth

// #region wav
// FileSource reads 16-bit PCM WAV files frame by frame, downmixing
// multi-channel audio to mono by averaging.
type FileSource struct {
	f          *os.File
	channels   int
	sampleRate int
	remaining  int // mono samples left in the data chunk
}

// OpenFile opens a WAV file and positions the reader at its data chunk.
// Only 16-bit PCM is accepted.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	src, err := parseHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// SampleRate returns the file's sample rate in Hz.
func (s *FileSource) SampleRate() int { return s.sampleRate }

// Close releases the underlying file.
func (s *FileSource) Close() error { return s.f.Close() }

// NextFrame reads up to size mono samples; a short final frame is returned
// as-is, and the call after it yields io.EOF.
func (s *FileSource) NextFrame(size int) ([]float64, error) {
	if s.remaining <= 0 {
		return nil, io.EOF
	}
	if size > s.remaining {
		size = s.remaining
	}

	raw := make([]byte, size*s.channels*2)
	n, err := io.ReadFull(s.f, raw)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read wav data: %w", err)
	}
	samples := n / (s.channels * 2)
	if samples == 0 {
		s.remaining = 0
		return nil, io.EOF
	}
	s.remaining -= samples

	frame := make([]float64, samples)
	for i := 0; i < samples; i++ {
		var sum float64
		for c := 0; c < s.channels; c++ {
			off := (i*s.channels + c) * 2
			sum += float64(int16(binary.LittleEndian.Uint16(raw[off:]))) / 32768.0
		}
		frame[i] = sum / float64(s.channels)
	}
	return frame, nil
}

func parseHeader(f *os.File) (*FileSource, error) {
	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a wav file")
	}

	src := &FileSource{f: f}
	var chunk [8]byte
	for {
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			fmtData := make([]byte, size)
			if _, err := io.ReadFull(f, fmtData); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(fmtData[0:2])
			bits := binary.LittleEndian.Uint16(fmtData[14:16])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("unsupported wav encoding: format=%d bits=%d (want 16-bit PCM)", format, bits)
			}
			src.channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			src.sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
		case "data":
			if src.channels == 0 {
				return nil, fmt.Errorf("wav data chunk before fmt chunk")
			}
			src.remaining = size / (src.channels * 2)
			return src, nil
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// #endregion wav
