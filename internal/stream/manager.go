package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rishpaul04/Resonance/internal/audio"
	"github.com/rishpaul04/Resonance/internal/metrics"
	"github.com/rishpaul04/Resonance/internal/render"
	"github.com/rishpaul04/Resonance/internal/transcription"
)

// User-facing messages
const (
	MicrophoneStatus = "Microphone Input Active"
	MicrophoneAlert  = "Microphone access denied or error starting audio."
	fileNameLimit    = 20
)

// FileStatus is the HUD message shown while a file plays
func FileStatus(name string) string {
	r := []rune(name)
	if len(r) > fileNameLimit {
		r = r[:fileNameLimit]
	}
	return "Playing: " + string(r) + "..."
}

// FileAlert is the alert raised when a file cannot be played
func FileAlert(name string) string {
	return "Unable to play " + name
}

// Status is what the UI layer shows: overlay or HUD, the HUD message and
// the most recent alert.
type Status struct {
	OverlayVisible bool               `json:"overlay_visible"`
	HUDVisible     bool               `json:"hud_visible"`
	Message        string             `json:"message"`
	Alert          string             `json:"alert,omitempty"`
	Session        *audio.SessionInfo `json:"session,omitempty"`
}

// Stats represents manager statistics
type Stats struct {
	Status          Status                     `json:"status"`
	Transcript      string                     `json:"transcript"`
	SessionsStarted uint64                     `json:"sessions_started"`
	SessionFailures uint64                     `json:"session_failures"`
	Render          render.Stats               `json:"render"`
	Transcription   *transcription.ClientStats `json:"transcription,omitempty"`
}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	// Transcription is nil when live sessions should not be transcribed
	Transcription *transcription.Config
}

// Manager is the session context shared by the user intents, the render
// loop and the transcription stream. It owns at most one audio session
// and at most one transcription stream bound to it.
type Manager struct {
	adapter *audio.Adapter
	loop    *render.Loop
	client  *transcription.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Guards session transitions
	mu           sync.Mutex
	session      *audio.Session
	streamCancel context.CancelFunc
	streamDone   chan struct{}

	// Guards what the UI reads
	statusMu        sync.RWMutex
	status          Status
	transcript      string
	sessionsStarted uint64
	sessionFailures uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a session manager. The render loop is started on the
// first successful session.
func NewManager(config ManagerConfig, adapter *audio.Adapter, loop *render.Loop, logger *slog.Logger, m *metrics.Metrics) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		adapter: adapter,
		loop:    loop,
		logger:  logger,
		metrics: m,
		status:  Status{OverlayVisible: true},
		ctx:     ctx,
		cancel:  cancel,
	}

	if config.Transcription != nil {
		client, err := transcription.NewClient(*config.Transcription, mgr, logger, m)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create transcription client: %w", err)
		}
		mgr.client = client
	}

	return mgr, nil
}

// StartMicrophone replaces the current session with a live capture and
// starts streaming it for transcription.
func (m *Manager) StartMicrophone(ctx context.Context) (*audio.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopStreamLocked()
	m.endSessionLocked()

	session, err := m.adapter.StartMicrophone(ctx)
	if err != nil {
		m.fail(audio.KindMicrophone, err, MicrophoneAlert)
		return nil, err
	}

	m.activateLocked(session, MicrophoneStatus)

	if m.client != nil {
		streamCtx, cancel := context.WithCancel(m.ctx)
		done := make(chan struct{})
		m.streamCancel = cancel
		m.streamDone = done

		go func() {
			defer close(done)
			if err := m.client.Stream(streamCtx, session); err != nil {
				m.logger.Warn("Transcription stream ended with error",
					slog.String("session_id", session.ID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	return session, nil
}

// StartFile replaces the current session with playback of r
func (m *Manager) StartFile(ctx context.Context, name string, r io.ReadCloser) (*audio.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopStreamLocked()
	m.endSessionLocked()

	session, err := m.adapter.StartFile(ctx, name, r)
	if err != nil {
		m.fail(audio.KindFile, err, FileAlert(name))
		return nil, err
	}

	m.activateLocked(session, FileStatus(name))
	return session, nil
}

// Reset stops the session and returns the UI to its initial state. The
// render loop keeps running and draws a zeroed spectrum.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopStreamLocked()
	m.endSessionLocked()
	m.loop.SetSource(nil)

	m.statusMu.Lock()
	m.status = Status{OverlayVisible: true}
	m.transcript = ""
	m.statusMu.Unlock()

	m.logger.Info("Session context reset")
}

// Stop releases every resource held by the manager
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.mu.Lock()
	m.stopStreamLocked()
	m.endSessionLocked()
	m.mu.Unlock()

	m.cancel()

	if m.loop.Running() {
		select {
		case <-m.loop.Done():
		case <-time.After(2 * time.Second):
			m.logger.Warn("Render loop did not stop in time")
		}
	}

	m.logger.Info("Session manager stopped")
}

func (m *Manager) activateLocked(session *audio.Session, message string) {
	m.session = session
	m.loop.SetSource(session.Analyzer())

	if !m.loop.Running() {
		if err := m.loop.Start(m.ctx); err != nil && !errors.Is(err, render.ErrAlreadyStarted) {
			m.logger.Error("Failed to start render loop", slog.String("error", err.Error()))
		}
	}

	info := session.GetSessionInfo()
	m.statusMu.Lock()
	m.status = Status{
		OverlayVisible: false,
		HUDVisible:     true,
		Message:        message,
		Session:        &info,
	}
	m.sessionsStarted++
	m.statusMu.Unlock()

	m.metrics.RecordSessionStarted(string(session.Kind))
	m.logger.Info("Session active",
		slog.String("session_id", session.ID),
		slog.String("kind", string(session.Kind)),
		slog.String("status", message),
	)
}

// fail raises the alert for a failed start. The previous session is
// already gone, so the overlay comes back and the loop draws silence.
func (m *Manager) fail(kind audio.Kind, err error, alert string) {
	m.loop.SetSource(nil)

	reason := "device"
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		reason = "permission"
	case errors.Is(err, audio.ErrDecode):
		reason = "decode"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "cancelled"
	}

	m.statusMu.Lock()
	m.status = Status{OverlayVisible: true, Alert: alert}
	m.sessionFailures++
	m.statusMu.Unlock()

	m.metrics.RecordSessionFailure(string(kind), reason)
	m.logger.Error("Failed to start session",
		slog.String("kind", string(kind)),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
}

// stopStreamLocked cancels the transcription stream and waits for its link to close
func (m *Manager) stopStreamLocked() {
	if m.streamCancel == nil {
		return
	}
	m.streamCancel()
	<-m.streamDone
	m.streamCancel = nil
	m.streamDone = nil
}

func (m *Manager) endSessionLocked() {
	if m.session == nil {
		return
	}
	m.adapter.Stop()
	m.metrics.RecordSessionEnded(m.session.Duration().Seconds())
	m.session = nil
}

// SetTranscript replaces the displayed transcript
func (m *Manager) SetTranscript(text string) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.transcript = text
}

// Transcript returns the displayed transcript
func (m *Manager) Transcript() string {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.transcript
}

// Status returns what the UI layer should show
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()

	status := m.status
	if status.Session != nil {
		info := *status.Session
		status.Session = &info
	}
	return status
}

// Session returns the active session, or nil
func (m *Manager) Session() *audio.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Resize forwards a viewport change to the render loop
func (m *Manager) Resize(width, height int) {
	m.loop.Resize(width, height)
}

// SetPointer forwards the pointer position to the render loop
func (m *Manager) SetPointer(x, y float64) {
	m.loop.SetPointer(x, y)
}

// EncodeFrame writes the latest rendered frame as PNG
func (m *Manager) EncodeFrame(w io.Writer) error {
	return m.loop.EncodePNG(w)
}

// GetStats returns manager statistics
func (m *Manager) GetStats() Stats {
	status := m.Status()

	m.statusMu.RLock()
	stats := Stats{
		Status:          status,
		Transcript:      m.transcript,
		SessionsStarted: m.sessionsStarted,
		SessionFailures: m.sessionFailures,
	}
	m.statusMu.RUnlock()

	if session := m.Session(); session != nil && stats.Status.Session != nil {
		info := session.GetSessionInfo()
		stats.Status.Session = &info
	}

	stats.Render = m.loop.GetStats()
	if m.client != nil {
		ts := m.client.GetStats()
		stats.Transcription = &ts
	}
	return stats
}
