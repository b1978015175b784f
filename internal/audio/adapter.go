package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gopxl/beep/v2"

	"github.com/rishpaul04/Resonance/internal/spectrum"
)

// AdapterConfig contains signal source parameters
type AdapterConfig struct {
	SampleRate      int // capture rate, Hz
	OutputRate      int // playback rate, Hz
	FramesPerBuffer int // capture read size, samples
	Analyzer        spectrum.Config
}

// Adapter turns either the microphone or a decoded file into the single
// active Session. Starting a source always stops the previous one first.
type Adapter struct {
	config AdapterConfig
	device CaptureDevice
	output Output
	logger *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewAdapter creates an adapter over the given capture device and output sink
func NewAdapter(config AdapterConfig, device CaptureDevice, output Output, logger *slog.Logger) *Adapter {
	return &Adapter{
		config: config,
		device: device,
		output: output,
		logger: logger,
	}
}

// Current returns the active session, or nil
func (a *Adapter) Current() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Stop stops the active session, if any
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopCurrentLocked()
}

func (a *Adapter) stopCurrentLocked() {
	if a.current == nil {
		return
	}
	a.current.Stop()
	a.current = nil
}

// StartMicrophone stops the active session and starts capturing from the
// capture device. Captured audio is never routed to the output.
func (a *Adapter) StartMicrophone(ctx context.Context) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopCurrentLocked()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analyzer, err := spectrum.New(a.config.Analyzer)
	if err != nil {
		return nil, fmt.Errorf("create analyzer: %w", err)
	}

	stream, err := a.device.Open(a.config.SampleRate, a.config.FramesPerBuffer)
	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) && !errors.Is(err, ErrDevice) {
			err = classify(ErrDevice, err)
		}
		return nil, &SourceError{Kind: KindMicrophone, Err: err}
	}

	s := newSession(KindMicrophone, "", analyzer, a.logger)

	quit := make(chan struct{})
	finished := make(chan struct{})
	go a.capture(s, stream, quit, finished)

	s.release = func() {
		close(quit)
		<-finished
	}
	a.current = s

	a.logger.Info("Microphone session started",
		slog.String("session_id", s.ID),
		slog.Int("sample_rate", a.config.SampleRate),
		slog.Int("frames_per_buffer", a.config.FramesPerBuffer),
	)

	return s, nil
}

// capture feeds the analyzer and subscribers until quit is closed or the
// stream fails, then closes the stream.
func (a *Adapter) capture(s *Session, stream CaptureStream, quit <-chan struct{}, finished chan<- struct{}) {
	defer close(finished)
	defer func() {
		if err := stream.Close(); err != nil {
			a.logger.Warn("Failed to close capture stream",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	var mono []float32
	for {
		select {
		case <-quit:
			return
		default:
		}

		pcm, err := stream.Read()
		if err != nil {
			select {
			case <-quit:
			default:
				a.logger.Error("Capture stream failed",
					slog.String("session_id", s.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		if cap(mono) < len(pcm) {
			mono = make([]float32, len(pcm))
		}
		mono = mono[:len(pcm)]
		for i, v := range pcm {
			mono[i] = float32(v) / 32768
		}
		s.analyzer.Write(mono)
		s.publish(pcm)
	}
}

// StartFile stops the active session, decodes r and plays it through the
// output while feeding the analyzer. r is closed when the session stops or
// when decoding fails.
func (a *Adapter) StartFile(ctx context.Context, name string, r io.ReadCloser) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopCurrentLocked()

	if err := ctx.Err(); err != nil {
		r.Close()
		return nil, err
	}

	streamer, format, err := decodeFile(name, r)
	if err != nil {
		r.Close()
		return nil, &SourceError{Kind: KindFile, Name: name, Err: classify(ErrDecode, err)}
	}

	analyzer, err := spectrum.New(a.config.Analyzer)
	if err != nil {
		streamer.Close()
		return nil, fmt.Errorf("create analyzer: %w", err)
	}

	var src beep.Streamer = streamer
	if rate := beep.SampleRate(a.config.OutputRate); format.SampleRate != rate {
		src = beep.Resample(4, format.SampleRate, rate, streamer)
	}

	s := newSession(KindFile, name, analyzer, a.logger)

	// Silence after the end keeps the analyzer fed, so the spectrum decays
	// instead of freezing on the last samples played.
	tail := beep.Seq(src, beep.Silence(-1))
	if err := a.output.Play(newTapStreamer(tail, analyzer)); err != nil {
		streamer.Close()
		if !errors.Is(err, ErrDevice) {
			err = classify(ErrDevice, err)
		}
		return nil, &SourceError{Kind: KindFile, Name: name, Err: err}
	}

	s.release = func() {
		a.output.Clear()
		if err := streamer.Close(); err != nil {
			a.logger.Warn("Failed to close decoder",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	a.current = s

	a.logger.Info("File session started",
		slog.String("session_id", s.ID),
		slog.String("name", name),
		slog.Int("source_rate", int(format.SampleRate)),
		slog.Int("channels", format.NumChannels),
		slog.Int("length_samples", streamer.Len()),
	)

	return s, nil
}
