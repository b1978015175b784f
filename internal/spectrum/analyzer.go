package spectrum

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// BassBins is the number of lowest bins averaged into the bass energy
const BassBins = 20

// Snapshot is one frame of frequency magnitudes, one byte (0-255) per bin.
// A snapshot returned by Analyzer.Sample is owned by the analyzer and stays
// valid until the next Sample call.
type Snapshot []uint8

// Config holds the analysis parameters
type Config struct {
	FFTSize     int     // transform window, samples (power of two)
	Smoothing   float64 // time constant blending the previous frame, [0, 1)
	MinDecibels float64 // maps to byte 0
	MaxDecibels float64 // maps to byte 255
}

// DefaultConfig returns the 512-sample analysis used by the visualizer
func DefaultConfig() Config {
	return Config{
		FFTSize:     512,
		Smoothing:   0.8,
		MinDecibels: -100,
		MaxDecibels: -30,
	}
}

// Analyzer converts the most recent FFTSize samples into a Snapshot.
// Write is called from the audio goroutine and Sample from the render loop.
type Analyzer struct {
	config Config
	fft    *fourier.FFT
	window []float64

	// time-domain ring
	ring     []float32
	writePos int

	// per-sample scratch, only touched under mu
	frame    []float64
	coeffs   []complex128
	smoothed []float64
	snapshot Snapshot

	closed bool
	mu     sync.Mutex
}

// New creates an analyzer with a frequency buffer of FFTSize/2 bins
func New(config Config) (*Analyzer, error) {
	n := config.FFTSize
	if n < 32 || n&(n-1) != 0 {
		return nil, fmt.Errorf("fft size must be a power of two >= 32, got %d", n)
	}
	if config.Smoothing < 0 || config.Smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %f", config.Smoothing)
	}
	if config.MaxDecibels <= config.MinDecibels {
		return nil, fmt.Errorf("max decibels (%f) must exceed min decibels (%f)",
			config.MaxDecibels, config.MinDecibels)
	}

	return &Analyzer{
		config:   config,
		fft:      fourier.NewFFT(n),
		window:   blackman(n),
		ring:     make([]float32, n),
		frame:    make([]float64, n),
		coeffs:   make([]complex128, n/2+1),
		smoothed: make([]float64, n/2),
		snapshot: make(Snapshot, n/2),
	}, nil
}

// BinCount returns the fixed snapshot length
func (a *Analyzer) BinCount() int {
	return a.config.FFTSize / 2
}

// Write appends mono samples in [-1, 1] to the analysis window
func (a *Analyzer) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	n := len(a.ring)
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	for _, s := range samples {
		a.ring[a.writePos] = s
		a.writePos = (a.writePos + 1) % n
	}
}

// Sample refreshes the snapshot from the current window and returns it.
// After Close it returns the last snapshot unchanged.
func (a *Analyzer) Sample() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return a.snapshot
	}

	n := len(a.ring)
	for i := 0; i < n; i++ {
		a.frame[i] = float64(a.ring[(a.writePos+i)%n]) * a.window[i]
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	scale := 255 / (a.config.MaxDecibels - a.config.MinDecibels)
	tau := a.config.Smoothing
	for k := range a.snapshot {
		c := a.coeffs[k]
		magnitude := math.Hypot(real(c), imag(c)) / float64(n)

		v := tau*a.smoothed[k] + (1-tau)*magnitude
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		a.smoothed[k] = v

		a.snapshot[k] = toByte((decibels(v) - a.config.MinDecibels) * scale)
	}

	return a.snapshot
}

// Close stops accepting samples; Sample keeps returning the last snapshot
func (a *Analyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

// blackman returns the window used by the analysis
func blackman(n int) []float64 {
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a1 := 0.5
	a2 := alpha / 2

	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}

func decibels(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

func toByte(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
