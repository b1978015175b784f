package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"nhooyr.io/websocket"

	"github.com/rishpaul04/Resonance/internal/audio"
	"github.com/rishpaul04/Resonance/internal/particle"
	"github.com/rishpaul04/Resonance/internal/render"
	"github.com/rishpaul04/Resonance/internal/spectrum"
	"github.com/rishpaul04/Resonance/internal/transcription"
)

type fakeDevice struct {
	openErr error
}

func (d *fakeDevice) Open(sampleRate, framesPerBuffer int) (audio.CaptureStream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeStream{n: framesPerBuffer}, nil
}

type fakeStream struct{ n int }

func (s *fakeStream) Read() ([]int16, error) {
	time.Sleep(10 * time.Millisecond)
	// 200 Hz lands in the bass bins at 16 kHz
	pcm := make([]int16, s.n)
	for i := range pcm {
		pcm[i] = int16(8000 * math.Sin(2*math.Pi*200*float64(i)/16000))
	}
	return pcm, nil
}

func (s *fakeStream) Close() error { return nil }

type nullOutput struct{}

func (nullOutput) Play(beep.Streamer) error { return nil }
func (nullOutput) Clear()                   {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoServer greets every link with a transcript and then reads until closed
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		c.Write(r.Context(), websocket.MessageText, []byte("hello"))
		for {
			if _, _, err := c.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, device *fakeDevice, origin string) *Manager {
	t.Helper()

	adapter := audio.NewAdapter(audio.AdapterConfig{
		SampleRate:      16000,
		OutputRate:      16000,
		FramesPerBuffer: 160,
		Analyzer:        spectrum.DefaultConfig(),
	}, device, nullOutput{}, testLogger())

	field := particle.NewField(particle.DefaultCount, particle.NewSource(5))
	loop := render.NewLoop(render.Config{Width: 320, Height: 240, Interval: 10 * time.Millisecond}, field, testLogger(), nil)

	var tc *transcription.Config
	if origin != "" {
		tc = &transcription.Config{
			Origin:        origin,
			ChunkInterval: 50 * time.Millisecond,
			Format:        audio.FormatWAV,
			SampleRate:    16000,
		}
	}

	mgr, err := NewManager(ManagerConfig{Transcription: tc}, adapter, loop, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func wavReader(t *testing.T) io.ReadCloser {
	t.Helper()
	data, err := audio.EncodeWAV(make([]int16, 16000), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return io.NopCloser(bytes.NewReader(data))
}

func TestInitialStatus(t *testing.T) {
	mgr := newTestManager(t, &fakeDevice{}, "")

	status := mgr.Status()
	if !status.OverlayVisible || status.HUDVisible || status.Message != "" {
		t.Errorf("Unexpected initial status %+v", status)
	}
	if mgr.GetStats().Render.Running {
		t.Error("Render loop should be idle before the first session")
	}
}

func TestStartMicrophoneStreamsTranscript(t *testing.T) {
	srv := echoServer(t)
	mgr := newTestManager(t, &fakeDevice{}, srv.URL)

	session, err := mgr.StartMicrophone(context.Background())
	if err != nil {
		t.Fatalf("StartMicrophone: %v", err)
	}
	if !session.IsLive() {
		t.Error("Expected a live session")
	}

	status := mgr.Status()
	if status.OverlayVisible || !status.HUDVisible || status.Message != MicrophoneStatus {
		t.Errorf("Unexpected status %+v", status)
	}
	if status.Session == nil || status.Session.ID != session.ID {
		t.Errorf("Expected session info in status, got %+v", status.Session)
	}

	waitFor(t, "transcript", func() bool { return mgr.Transcript() == "hello" })
	waitFor(t, "render frames", func() bool { return mgr.GetStats().Render.Frames > 0 })

	stats := mgr.GetStats()
	if stats.Transcription == nil || stats.Transcription.LinkState != "open" {
		t.Errorf("Expected open link, got %+v", stats.Transcription)
	}
}

func TestSwitchingToFileClosesLink(t *testing.T) {
	srv := echoServer(t)
	mgr := newTestManager(t, &fakeDevice{}, srv.URL)

	mic, err := mgr.StartMicrophone(context.Background())
	if err != nil {
		t.Fatalf("StartMicrophone: %v", err)
	}
	waitFor(t, "open link", func() bool {
		ts := mgr.GetStats().Transcription
		return ts != nil && ts.LinkState == "open"
	})

	name := "an_exceptionally_long_track_name.wav"
	file, err := mgr.StartFile(context.Background(), name, wavReader(t))
	if err != nil {
		t.Fatalf("StartFile: %v", err)
	}

	if mic.Active() {
		t.Error("Expected microphone session to be stopped")
	}
	if mgr.Session() != file {
		t.Error("Expected file session to be current")
	}
	if got := mgr.GetStats().Transcription.LinkState; got != "closed" {
		t.Errorf("Expected link closed after switching to a file, got %s", got)
	}
	if msg := mgr.Status().Message; msg != "Playing: an_exceptionally_lon..." {
		t.Errorf("Unexpected status message %q", msg)
	}
}

func TestMicrophoneFailureRaisesAlert(t *testing.T) {
	device := &fakeDevice{openErr: errors.New("permission denied")}
	mgr := newTestManager(t, device, "")

	_, err := mgr.StartMicrophone(context.Background())
	if err == nil {
		t.Fatal("Expected error")
	}

	status := mgr.Status()
	if status.Alert != MicrophoneAlert {
		t.Errorf("Expected alert %q, got %q", MicrophoneAlert, status.Alert)
	}
	if !status.OverlayVisible || status.HUDVisible {
		t.Errorf("Expected overlay to stay visible, got %+v", status)
	}
	if mgr.GetStats().SessionFailures != 1 {
		t.Errorf("Expected 1 failure, got %d", mgr.GetStats().SessionFailures)
	}

	// The user may retry.
	device.openErr = nil
	if _, err := mgr.StartMicrophone(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if mgr.Status().Alert != "" {
		t.Error("Expected alert to clear after a successful start")
	}
}

func TestFailedStartClearsSpectrum(t *testing.T) {
	device := &fakeDevice{}
	mgr := newTestManager(t, device, "")

	if _, err := mgr.StartMicrophone(context.Background()); err != nil {
		t.Fatalf("StartMicrophone: %v", err)
	}
	waitFor(t, "bass from the microphone", func() bool { return mgr.GetStats().Render.Bass > 0 })

	device.openErr = errors.New("device unplugged")
	if _, err := mgr.StartMicrophone(context.Background()); err == nil {
		t.Fatal("Expected error")
	}

	// The replaced session's held snapshot must not keep driving the frame.
	waitFor(t, "zeroed spectrum", func() bool { return mgr.GetStats().Render.Bass == 0 })
}

// stalledServer never completes the websocket handshake
func stalledServer(t *testing.T) (*httptest.Server, <-chan struct{}) {
	t.Helper()
	arrived := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv, arrived
}

func TestSwitchingWhileConnectingIsNotAnError(t *testing.T) {
	srv, arrived := stalledServer(t)
	mgr := newTestManager(t, &fakeDevice{}, srv.URL)

	if _, err := mgr.StartMicrophone(context.Background()); err != nil {
		t.Fatalf("StartMicrophone: %v", err)
	}

	select {
	case <-arrived:
	case <-time.After(3 * time.Second):
		t.Fatal("link never started connecting")
	}

	if _, err := mgr.StartFile(context.Background(), "song.wav", wavReader(t)); err != nil {
		t.Fatalf("StartFile: %v", err)
	}

	if got := mgr.Transcript(); got == transcription.ErrorMessage {
		t.Errorf("Expected no connection error after switching sessions, got %q", got)
	}
	if got := mgr.GetStats().Transcription.LinkState; got != "closed" {
		t.Errorf("Expected abandoned link to be closed, got %s", got)
	}
}

func TestFileDecodeFailureRaisesAlert(t *testing.T) {
	mgr := newTestManager(t, &fakeDevice{}, "")

	_, err := mgr.StartFile(context.Background(), "notes.txt", io.NopCloser(bytes.NewReader([]byte("text"))))
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("Expected ErrDecode, got %v", err)
	}
	if alert := mgr.Status().Alert; alert != "Unable to play notes.txt" {
		t.Errorf("Unexpected alert %q", alert)
	}
}

func TestReset(t *testing.T) {
	srv := echoServer(t)
	mgr := newTestManager(t, &fakeDevice{}, srv.URL)

	session, err := mgr.StartMicrophone(context.Background())
	if err != nil {
		t.Fatalf("StartMicrophone: %v", err)
	}
	waitFor(t, "transcript", func() bool { return mgr.Transcript() == "hello" })

	mgr.Reset()

	if session.Active() {
		t.Error("Expected session to stop on reset")
	}
	if mgr.Session() != nil {
		t.Error("Expected no session after reset")
	}
	status := mgr.Status()
	if !status.OverlayVisible || status.HUDVisible || status.Message != "" {
		t.Errorf("Unexpected status after reset %+v", status)
	}
	if mgr.Transcript() != "" {
		t.Errorf("Expected empty transcript, got %q", mgr.Transcript())
	}
	if !mgr.GetStats().Render.Running {
		t.Error("Render loop keeps running after reset")
	}
}

func TestFileStatus(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"song.mp3", "Playing: song.mp3..."},
		{"exactly_twenty_chars", "Playing: exactly_twenty_chars..."},
		{"twenty_one_characters", "Playing: twenty_one_character..."},
		{"ünïcödé_ñämé_thät_is_löng.flac", "Playing: ünïcödé_ñämé_thät_..."},
	}

	for _, tt := range tests {
		if got := FileStatus(tt.name); got != tt.want {
			t.Errorf("FileStatus(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
