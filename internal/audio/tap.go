package audio

import (
	"github.com/gopxl/beep/v2"

	"github.com/rishpaul04/Resonance/internal/spectrum"
)

// tapStreamer passes samples through unchanged while feeding a mono mix
// of them to the analyzer.
type tapStreamer struct {
	s        beep.Streamer
	analyzer *spectrum.Analyzer
	mono     []float32
}

func newTapStreamer(s beep.Streamer, analyzer *spectrum.Analyzer) *tapStreamer {
	return &tapStreamer{s: s, analyzer: analyzer}
}

func (t *tapStreamer) Err() error {
	return t.s.Err()
}

func (t *tapStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = t.s.Stream(samples)
	if n == 0 {
		return n, ok
	}

	if cap(t.mono) < n {
		t.mono = make([]float32, n)
	}
	mono := t.mono[:n]
	for i := 0; i < n; i++ {
		mono[i] = float32((samples[i][0] + samples[i][1]) / 2)
	}
	t.analyzer.Write(mono)

	return n, ok
}
