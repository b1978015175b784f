package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rishpaul04/Resonance/internal/metrics"
	"github.com/rishpaul04/Resonance/internal/palette"
	"github.com/rishpaul04/Resonance/internal/particle"
	"github.com/rishpaul04/Resonance/internal/spectrum"
)

// Frame geometry
const (
	BarCount      = 100
	BarWidth      = 3.0
	BarMaxLength  = 150.0
	BarMaxGlow    = 15.0
	BaseRadius    = 100.0
	ParallaxScale = 30.0
	CoreInset     = 10.0
)

var (
	fadeColor   = color.NRGBA{R: 5, G: 5, B: 5, A: 51} // rgba(5,5,5,0.2)
	coreColor   = color.NRGBA{R: 0, G: 243, B: 255}
	strokeColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

var (
	// ErrAlreadyStarted is returned by Start on a loop that is already running
	ErrAlreadyStarted = errors.New("render loop already started")

	// ErrNoFrame is returned by EncodePNG before the first frame completes
	ErrNoFrame = errors.New("no frame rendered yet")
)

// SpectrumSource provides the spectrum snapshot for each frame
type SpectrumSource interface {
	Sample() spectrum.Snapshot
}

// Config contains render loop parameters
type Config struct {
	Width    int
	Height   int
	Interval time.Duration // time between frames
	Bins     int           // snapshot length drawn when no source is attached
}

// Stats reports render loop counters
type Stats struct {
	Running   bool    `json:"running"`
	Frames    uint64  `json:"frames"`
	Errors    uint64  `json:"errors"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Particles int     `json:"particles"`
	Bins      int     `json:"bins"`
	Bass      float64 `json:"bass"`
}

type sourceHolder struct {
	src SpectrumSource
}

type pointer struct {
	x, y float64 // normalised to [-1, 1]
}

// Loop paints frames at a fixed rate on its own goroutine. The particle
// field and surface are touched only from that goroutine; everything else
// reaches the loop through atomics applied at the next frame.
type Loop struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration

	field   *particle.Field
	surface *Surface
	empty   spectrum.Snapshot

	source   atomic.Pointer[sourceHolder]
	viewport atomic.Pointer[image.Point]
	pointer  atomic.Pointer[pointer]

	started  atomic.Bool
	frames   atomic.Uint64
	errCount atomic.Uint64
	bins     atomic.Int64
	bass     atomic.Uint64 // float64 bits

	// Latest published frame
	mu     sync.RWMutex
	latest *image.RGBA
	spare  *image.RGBA

	done chan struct{}
}

// NewLoop creates an idle render loop over field
func NewLoop(config Config, field *particle.Field, logger *slog.Logger, m *metrics.Metrics) *Loop {
	if config.Interval <= 0 {
		config.Interval = time.Second / 60
	}
	if config.Bins <= 0 {
		config.Bins = spectrum.DefaultConfig().FFTSize / 2
	}

	l := &Loop{
		logger:   logger,
		metrics:  m,
		interval: config.Interval,
		field:    field,
		surface:  NewSurface(config.Width, config.Height),
		empty:    make(spectrum.Snapshot, config.Bins),
		done:     make(chan struct{}),
	}

	w, h := l.surface.Size()
	l.viewport.Store(&image.Point{X: w, Y: h})
	l.pointer.Store(&pointer{})
	l.source.Store(&sourceHolder{})

	return l
}

// Start moves the loop from idle to running. It runs until ctx is cancelled.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	l.logger.Info("Render loop starting",
		slog.Duration("interval", l.interval),
		slog.Int("particles", l.field.Len()),
	)

	go l.run(ctx)
	return nil
}

// Running reports whether Start has been called
func (l *Loop) Running() bool {
	return l.started.Load()
}

// Done is closed when the loop goroutine exits
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Render loop stopped", slog.Uint64("frames", l.frames.Load()))
			return
		case <-ticker.C:
			if err := l.Frame(); err != nil {
				l.logger.Error("Frame failed", slog.String("error", err.Error()))
			}
		}
	}
}

// SetSource swaps the spectrum source read by subsequent frames. A nil
// source draws a zeroed snapshot.
func (l *Loop) SetSource(src SpectrumSource) {
	l.source.Store(&sourceHolder{src: src})
}

// Resize changes the surface dimensions from the next frame on
func (l *Loop) Resize(width, height int) {
	l.viewport.Store(&image.Point{X: max(width, 1), Y: max(height, 1)})
}

// SetPointer records the pointer position in viewport pixels
func (l *Loop) SetPointer(x, y float64) {
	vp := l.viewport.Load()
	l.pointer.Store(&pointer{
		x: x/float64(vp.X)*2 - 1,
		y: y/float64(vp.Y)*2 - 1,
	})
}

// Frame paints one frame. A panic inside the frame is recovered and
// returned as an error so the caller can keep scheduling frames.
func (l *Loop) Frame() (err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame panic: %v", r)
			l.errCount.Add(1)
			l.metrics.RecordFrameError()
			l.logger.Debug("Recovered frame panic", slog.String("stack", string(debug.Stack())))
		}
	}()

	snap := l.sample()
	bass := l.paint(snap)

	l.frames.Add(1)
	l.bins.Store(int64(len(snap)))
	l.bass.Store(math.Float64bits(bass))
	l.publish()
	l.metrics.RecordFrame(time.Since(start).Seconds(), bass)

	return nil
}

func (l *Loop) sample() spectrum.Snapshot {
	h := l.source.Load()
	if h == nil || h.src == nil {
		return l.empty
	}
	snap := h.src.Sample()
	if snap == nil {
		return l.empty
	}
	return snap
}

// paint draws the frame and returns its bass energy
func (l *Loop) paint(snap spectrum.Snapshot) float64 {
	vp := l.viewport.Load()
	if w, h := l.surface.Size(); w != vp.X || h != vp.Y {
		l.surface.Resize(vp.X, vp.Y)
	}

	s := l.surface
	s.Fade(fadeColor)

	bass := spectrum.BassEnergy(snap)

	w, h := s.Size()
	p := l.pointer.Load()
	cx := float64(w)/2 + p.x*ParallaxScale
	cy := float64(h)/2 + p.y*ParallaxScale

	l.field.Step(bass, s, cx, cy)

	radius := BarBaseRadius(bass)
	step := 2 * math.Pi / BarCount
	for i := 0; i < BarCount; i++ {
		var value float64
		if idx := BarBin(i); idx < len(snap) {
			value = float64(snap[idx])
		}
		length := value / 255 * BarMaxLength
		hue := 180 + value/255*120
		angle := float64(i) * step
		cos, sin := math.Cos(angle), math.Sin(angle)

		s.Line(cx+cos*radius, cy+sin*radius,
			cx+cos*(radius+length), cy+sin*(radius+length),
			BarWidth, value/255*BarMaxGlow, palette.HSL(hue, 1, 0.5))
	}

	core := coreColor
	core.A = uint8(math.Min(bass/500, 1)*255 + 0.5)
	s.FillDisc(cx, cy, radius-CoreInset, core)
	s.StrokeCircle(cx, cy, radius-CoreInset, 1, strokeColor)

	return bass
}

// publish copies the surface into the spare buffer and swaps it with latest
func (l *Loop) publish() {
	l.mu.Lock()
	spare := l.spare
	l.mu.Unlock()

	spare = l.surface.Snapshot(spare)

	l.mu.Lock()
	l.spare, l.latest = l.latest, spare
	l.mu.Unlock()
}

// Latest returns a copy of the most recently completed frame, or nil before the first frame
func (l *Loop) Latest() *image.RGBA {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.latest == nil {
		return nil
	}
	out := image.NewRGBA(l.latest.Bounds())
	copy(out.Pix, l.latest.Pix)
	return out
}

// EncodePNG writes the most recent frame as PNG
func (l *Loop) EncodePNG(w io.Writer) error {
	img := l.Latest()
	if img == nil {
		return ErrNoFrame
	}
	return png.Encode(w, img)
}

// GetStats returns render loop counters
func (l *Loop) GetStats() Stats {
	vp := l.viewport.Load()
	return Stats{
		Running:   l.started.Load(),
		Frames:    l.frames.Load(),
		Errors:    l.errCount.Load(),
		Width:     vp.X,
		Height:    vp.Y,
		Particles: l.field.Len(),
		Bins:      int(l.bins.Load()),
		Bass:      math.Float64frombits(l.bass.Load()),
	}
}

// BarBaseRadius is the inner radius of the radial bars for a bass energy
func BarBaseRadius(bass float64) float64 {
	return BaseRadius + 0.5*bass
}

// BarBin maps bar i to the snapshot bin it displays
func BarBin(i int) int {
	return int(math.Floor(float64(i) / BarCount * 100))
}
