package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/rishpaul04/Resonance/internal/metrics"
)

// State is the lifecycle state of a Link
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

func (s State) metric() int {
	switch s {
	case StateConnecting:
		return metrics.LinkStateConnecting
	case StateOpen:
		return metrics.LinkStateOpen
	case StateClosed:
		return metrics.LinkStateClosed
	case StateErrored:
		return metrics.LinkStateErrored
	}
	return metrics.LinkStateNone
}

// Messages written to the transcript sink by the link itself
const (
	ListeningMessage = "Listening..."
	ErrorMessage     = "Connection Error"
)

// ErrLinkClosed is returned by Open when the link was closed while dialing
var ErrLinkClosed = errors.New("transcription link closed")

const maxMessageSize = 1 << 20

// TranscriptSink receives the text to display. Each call replaces the previous text.
type TranscriptSink interface {
	SetTranscript(text string)
}

// SinkFunc adapts a function to a TranscriptSink
type SinkFunc func(text string)

func (f SinkFunc) SetTranscript(text string) { f(text) }

// Link is one connection to the transcription service. It moves from
// connecting to open and then to closed or errored, and is never
// reconnected. Audio is only transmitted while the link is open.
type Link struct {
	url     string
	sink    TranscriptSink
	logger  *slog.Logger
	metrics *metrics.Metrics

	state atomic.Int32
	conn  atomic.Pointer[websocket.Conn]

	writeMu  sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

// NewLink creates a link in the connecting state
func NewLink(url string, sink TranscriptSink, logger *slog.Logger, m *metrics.Metrics) *Link {
	l := &Link{
		url:     url,
		sink:    sink,
		logger:  logger,
		metrics: m,
		done:    make(chan struct{}),
	}
	l.state.Store(int32(StateConnecting))
	m.SetLinkState(metrics.LinkStateConnecting)
	return l
}

// State returns the current link state
func (l *Link) State() State {
	return State(l.state.Load())
}

// Done is closed when the link reaches a terminal state
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Open dials the service. There is no dial timeout beyond ctx; a stalled
// attempt stays connecting until ctx ends or the transport fails.
func (l *Link) Open(ctx context.Context) error {
	l.logger.Info("Connecting to transcription service", slog.String("url", l.url))

	conn, _, err := websocket.Dial(ctx, l.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			// Abandoned by the caller, not a transport failure.
			l.finish(StateClosed, nil)
			return fmt.Errorf("websocket dial: %w", ctx.Err())
		}
		err = fmt.Errorf("websocket dial: %w", err)
		l.fail(err)
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	l.conn.Store(conn)
	if !l.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		conn.Close(websocket.StatusNormalClosure, "")
		return ErrLinkClosed
	}
	l.metrics.SetLinkState(metrics.LinkStateOpen)

	l.logger.Info("Connected to transcription service", slog.String("url", l.url))
	l.sink.SetTranscript(ListeningMessage)

	go l.readLoop()
	return nil
}

func (l *Link) readLoop() {
	ctx := context.Background()
	conn := l.conn.Load()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				l.finish(StateClosed, nil)
			default:
				if l.State().Terminal() {
					return
				}
				l.fail(fmt.Errorf("read: %w", err))
			}
			return
		}

		if typ != websocket.MessageText {
			l.logger.Debug("Ignoring binary message from transcription service", slog.Int("bytes", len(data)))
			continue
		}

		l.logger.Debug("Transcription received", slog.String("text", string(data)))
		l.metrics.RecordTranscript()
		l.sink.SetTranscript(string(data))
	}
}

// Send transmits one binary chunk. It reports false without sending when
// data is empty or the link is not open; nothing is queued for later.
func (l *Link) Send(ctx context.Context, data []byte) bool {
	if len(data) == 0 || l.State() != StateOpen {
		return false
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.State() != StateOpen {
		return false
	}

	if err := l.conn.Load().Write(ctx, websocket.MessageBinary, data); err != nil {
		if ctx.Err() == nil {
			l.fail(fmt.Errorf("write: %w", err))
		}
		return false
	}
	return true
}

// Close closes the link normally. Closing a terminal link has no effect.
func (l *Link) Close() error {
	if !l.finish(StateClosed, nil) {
		return nil
	}

	conn := l.conn.Load()
	if conn == nil {
		return nil
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return conn.Close(websocket.StatusNormalClosure, "")
}

// fail moves the link to errored and shows the error message
func (l *Link) fail(err error) {
	if l.finish(StateErrored, err) {
		if conn := l.conn.Load(); conn != nil {
			conn.CloseNow()
		}
		l.metrics.RecordLinkError()
		l.sink.SetTranscript(ErrorMessage)
	}
}

// finish performs the single transition into a terminal state
func (l *Link) finish(to State, err error) bool {
	for {
		from := l.State()
		if from.Terminal() {
			return false
		}
		if l.state.CompareAndSwap(int32(from), int32(to)) {
			break
		}
	}

	l.metrics.SetLinkState(to.metric())
	if err != nil {
		l.logger.Error("Transcription link error", slog.String("url", l.url), slog.String("error", err.Error()))
	} else {
		l.logger.Info("Transcription link closed", slog.String("url", l.url))
	}

	l.doneOnce.Do(func() { close(l.done) })
	return true
}
