package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/rishpaul04/Resonance/internal/audio"
	"github.com/rishpaul04/Resonance/internal/config"
	"github.com/rishpaul04/Resonance/internal/particle"
	"github.com/rishpaul04/Resonance/internal/render"
	"github.com/rishpaul04/Resonance/internal/spectrum"
	"github.com/rishpaul04/Resonance/internal/stream"
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
	return make([]int16, s.n), nil
}

func (s *fakeStream) Close() error { return nil }

type nullOutput struct{}

func (nullOutput) Play(beep.Streamer) error { return nil }
func (nullOutput) Clear()                   {}

func newTestServer(t *testing.T, device *fakeDevice) (*HTTPServer, *stream.Manager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := audio.NewAdapter(audio.AdapterConfig{
		SampleRate:      16000,
		OutputRate:      16000,
		FramesPerBuffer: 160,
		Analyzer:        spectrum.DefaultConfig(),
	}, device, nullOutput{}, logger)

	field := particle.NewField(particle.DefaultCount, particle.NewSource(3))
	loop := render.NewLoop(render.Config{Width: 160, Height: 120, Interval: 10 * time.Millisecond}, field, logger, nil)

	mgr, err := stream.NewManager(stream.ManagerConfig{}, adapter, loop, logger, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(mgr.Stop)

	cfg := config.Default()
	return NewHTTPServer(HTTPServerConfig{Port: 0, Address: "127.0.0.1"}, logger, &cfg, mgr, nil), mgr
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var resp sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func uploadRequest(t *testing.T, name string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/session/file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDevice{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/health"},
		{http.MethodPost, "/status"},
		{http.MethodPost, "/frame.png"},
		{http.MethodGet, "/session/microphone"},
		{http.MethodGet, "/session/file"},
		{http.MethodGet, "/session/reset"},
		{http.MethodGet, "/viewport"},
		{http.MethodGet, "/pointer"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(srv.Handler(), httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected 405, got %d", rec.Code)
			}
		})
	}
}

func TestRootAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDevice{})

	rec := do(srv.Handler(), httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/session/microphone") {
		t.Errorf("Unexpected root response %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(srv.Handler(), httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", rec.Code)
	}

	rec = do(srv.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var health map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Unexpected health %v", health)
	}
}

func TestMicrophoneIntent(t *testing.T) {
	srv, mgr := newTestServer(t, &fakeDevice{})

	rec := do(srv.Handler(), httptest.NewRequest(http.MethodGet, "/frame.png", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before the first frame, got %d", rec.Code)
	}

	rec = do(srv.Handler(), httptest.NewRequest(http.MethodPost, "/session/microphone", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeSession(t, rec)
	if resp.Session == nil || resp.Session.Kind != audio.KindMicrophone {
		t.Errorf("Expected microphone session, got %+v", resp.Session)
	}
	if !resp.Status.HUDVisible || resp.Status.Message != stream.MicrophoneStatus {
		t.Errorf("Unexpected status %+v", resp.Status)
	}

	deadline := time.Now().Add(3 * time.Second)
	for mgr.GetStats().Render.Frames == 0 {
		if time.Now().After(deadline) {
			t.Fatal("render loop produced no frames")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = do(srv.Handler(), httptest.NewRequest(http.MethodGet, "/frame.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("Expected PNG signature")
	}

	rec = do(srv.Handler(), httptest.NewRequest(http.MethodPost, "/session/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on reset, got %d", rec.Code)
	}
	if resp := decodeSession(t, rec); !resp.Status.OverlayVisible {
		t.Error("Expected overlay after reset")
	}
}

func TestMicrophoneDenied(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDevice{openErr: errors.New("permission denied")})

	rec := do(srv.Handler(), httptest.NewRequest(http.MethodPost, "/session/microphone", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", rec.Code)
	}

	resp := decodeSession(t, rec)
	if resp.Status.Alert != stream.MicrophoneAlert {
		t.Errorf("Expected microphone alert, got %q", resp.Status.Alert)
	}
	if resp.Error == "" {
		t.Error("Expected error text")
	}
}

func TestFileIntent(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDevice{})

	wav, err := audio.EncodeWAV(make([]int16, 8000), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	rec := do(srv.Handler(), uploadRequest(t, "a_rather_long_recording_name.wav", wav))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeSession(t, rec)
	if resp.Status.Message != "Playing: a_rather_long_record..." {
		t.Errorf("Unexpected message %q", resp.Status.Message)
	}

	rec = do(srv.Handler(), uploadRequest(t, "notes.txt", []byte("plain text")))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", rec.Code)
	}
	if resp := decodeSession(t, rec); resp.Status.Alert != "Unable to play notes.txt" {
		t.Errorf("Unexpected alert %q", resp.Status.Alert)
	}

	req := httptest.NewRequest(http.MethodPost, "/session/file", strings.NewReader(""))
	if rec := do(srv.Handler(), req); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a file field, got %d", rec.Code)
	}
}

func TestViewportAndPointer(t *testing.T) {
	srv, mgr := newTestServer(t, &fakeDevice{})

	form := func(path string, values url.Values) *http.Request {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	tests := []struct {
		name   string
		path   string
		values url.Values
		want   int
	}{
		{"resize", "/viewport", url.Values{"width": {"640"}, "height": {"480"}}, http.StatusNoContent},
		{"resize zero", "/viewport", url.Values{"width": {"0"}, "height": {"480"}}, http.StatusBadRequest},
		{"resize missing", "/viewport", url.Values{"width": {"640"}}, http.StatusBadRequest},
		{"pointer", "/pointer", url.Values{"x": {"320"}, "y": {"10.5"}}, http.StatusNoContent},
		{"pointer invalid", "/pointer", url.Values{"x": {"left"}, "y": {"1"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(srv.Handler(), form(tt.path, tt.values))
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	stats := mgr.GetStats().Render
	if stats.Width != 640 || stats.Height != 480 {
		t.Errorf("Expected viewport 640x480, got %dx%d", stats.Width, stats.Height)
	}
}

func TestStartStop(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDevice{})

	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
