package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rishpaul04/Resonance/internal/spectrum"
)

// Session is the active signal source. It owns the capture or decode
// resources and the analyzer fed from them.
type Session struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name,omitempty"`
	StartedAt time.Time `json:"started_at"`

	analyzer *spectrum.Analyzer
	logger   *slog.Logger

	mu          sync.Mutex
	subscribers []chan []int16
	release     func()
	stopped     chan struct{}
	stopOnce    sync.Once
	stoppedAt   time.Time
}

// SessionInfo is the externally visible state of a session
type SessionInfo struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	Name      string        `json:"name,omitempty"`
	Live      bool          `json:"live"`
	Active    bool          `json:"active"`
	StartedAt time.Time     `json:"started_at"`
	Uptime    time.Duration `json:"uptime"`
}

func newSession(kind Kind, name string, analyzer *spectrum.Analyzer, logger *slog.Logger) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		Name:      name,
		StartedAt: time.Now(),
		analyzer:  analyzer,
		logger:    logger,
		stopped:   make(chan struct{}),
	}
}

// IsLive reports whether the session captures from a live device
func (s *Session) IsLive() bool {
	return s.Kind == KindMicrophone
}

// Analyzer returns the spectral analyzer fed by this session
func (s *Session) Analyzer() *spectrum.Analyzer {
	return s.analyzer
}

// Done is closed once the session has been stopped and its resources released
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

// Active reports whether the session has not been stopped
func (s *Session) Active() bool {
	select {
	case <-s.stopped:
		return false
	default:
		return true
	}
}

// Subscribe returns a channel of raw captured PCM buffers. Buffers are
// dropped for a subscriber that falls behind. The channel is closed when
// the session stops.
func (s *Session) Subscribe(buffer int) (<-chan []int16, error) {
	if !s.IsLive() {
		return nil, ErrNotLive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Active() {
		return nil, ErrSessionStopped
	}

	ch := make(chan []int16, max(buffer, 1))
	s.subscribers = append(s.subscribers, ch)
	return ch, nil
}

// publish fans a capture buffer out to every subscriber without blocking
func (s *Session) publish(pcm []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- pcm:
		default:
		}
	}
}

// Stop releases the session resources and closes the analyzer. It is
// safe to call more than once; only the first call has an effect and every
// call returns after the resources are released.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		release := s.release
		s.release = nil
		s.mu.Unlock()

		if release != nil {
			release()
		}
		s.analyzer.Close()

		s.mu.Lock()
		for _, ch := range s.subscribers {
			close(ch)
		}
		s.subscribers = nil
		s.stoppedAt = time.Now()
		close(s.stopped)
		s.mu.Unlock()

		s.logger.Info("Audio session stopped",
			slog.String("session_id", s.ID),
			slog.String("kind", string(s.Kind)),
			slog.Duration("duration", s.stoppedAt.Sub(s.StartedAt)),
		)
	})
}

// Duration returns how long the session has been (or was) active
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stoppedAt.IsZero() {
		return s.stoppedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// GetSessionInfo returns a snapshot of the session state
func (s *Session) GetSessionInfo() SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		Kind:      s.Kind,
		Name:      s.Name,
		Live:      s.IsLive(),
		Active:    s.Active(),
		StartedAt: s.StartedAt,
		Uptime:    s.Duration(),
	}
}
