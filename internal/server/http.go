package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rishpaul04/Resonance/internal/audio"
	"github.com/rishpaul04/Resonance/internal/config"
	"github.com/rishpaul04/Resonance/internal/metrics"
	"github.com/rishpaul04/Resonance/internal/render"
	"github.com/rishpaul04/Resonance/internal/stream"
)

const (
	serviceName    = "resonance"
	serviceVersion = "1.0.0"

	// maxUploadSize bounds an uploaded audio file
	maxUploadSize = 64 << 20
)

// HTTPServer exposes the session intents and the rendered output over HTTP
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger
	config  *config.Config
	manager *stream.Manager
	metrics *metrics.Metrics

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// NewHTTPServer creates a new HTTP control server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger,
	appConfig *config.Config, manager *stream.Manager, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		manager:   manager,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/transcript", h.withMetrics("/transcript", h.handleTranscript))
	mux.HandleFunc("/frame.png", h.withMetrics("/frame.png", h.handleFrame))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// User intents
	mux.HandleFunc("/session/microphone", h.withMetrics("/session/microphone", h.handleMicrophone))
	mux.HandleFunc("/session/file", h.withMetrics("/session/file", h.handleFile))
	mux.HandleFunc("/session/reset", h.withMetrics("/session/reset", h.handleReset))
	mux.HandleFunc("/viewport", h.withMetrics("/viewport", h.handleViewport))
	mux.HandleFunc("/pointer", h.withMetrics("/pointer", h.handlePointer))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sessionResponse is returned by the session intents. A failed start still
// carries the status so the caller can show the alert.
type sessionResponse struct {
	Session *audio.SessionInfo `json:"session,omitempty"`
	Status  stream.Status      `json:"status"`
	Error   string             `json:"error,omitempty"`
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.manager.GetStats()

	components := map[string]interface{}{
		"render_loop": map[string]interface{}{
			"running": stats.Render.Running,
			"frames":  stats.Render.Frames,
			"errors":  stats.Render.Errors,
		},
		"session_manager": map[string]interface{}{
			"sessions_started": stats.SessionsStarted,
			"session_failures": stats.SessionFailures,
		},
	}
	if stats.Transcription != nil {
		components["transcription"] = map[string]interface{}{
			"endpoint":   stats.Transcription.Endpoint,
			"link_state": stats.Transcription.LinkState,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	})
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.manager.GetStats())
}

// handleTranscript implements the /transcript endpoint
func (h *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"transcript": h.manager.Transcript()})
}

// handleFrame implements the /frame.png endpoint
func (h *HTTPServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	if err := h.manager.EncodeFrame(&buf); err != nil {
		if errors.Is(err, render.ErrNoFrame) {
			http.Error(w, "No frame rendered yet", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("Failed to encode frame", slog.String("error", err.Error()))
		http.Error(w, "Failed to encode frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config == nil {
		http.Error(w, "Configuration unavailable", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"display": map[string]interface{}{
			"width":  h.config.Display.Width,
			"height": h.config.Display.Height,
			"fps":    h.config.Display.FPS,
		},
		"analyzer": map[string]interface{}{
			"fft_size":     h.config.Analyzer.FFTSize,
			"smoothing":    h.config.Analyzer.Smoothing,
			"min_decibels": h.config.Analyzer.MinDecibels,
			"max_decibels": h.config.Analyzer.MaxDecibels,
		},
		"particles": map[string]interface{}{
			"count": h.config.Particles.Count,
		},
		"audio": map[string]interface{}{
			"sample_rate":       h.config.Audio.SampleRate,
			"output_rate":       h.config.Audio.OutputRate,
			"frames_per_buffer": h.config.Audio.FramesPerBuffer,
		},
		"transcription": map[string]interface{}{
			"enabled":        h.config.Transcription.Enabled,
			"origin":         h.config.Transcription.Origin,
			"path":           h.config.Transcription.Path,
			"chunk_interval": h.config.Transcription.ChunkInterval,
			"format":         h.config.Transcription.Format,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleMicrophone implements POST /session/microphone
func (h *HTTPServer) handleMicrophone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, err := h.manager.StartMicrophone(r.Context())
	h.writeSession(w, session, err)
}

// handleFile implements POST /session/file with the audio in the multipart
// field "file"
func (h *HTTPServer) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Multipart field 'file' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// The upload is buffered because playback outlives the request.
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	session, err := h.manager.StartFile(r.Context(), header.Filename, io.NopCloser(bytes.NewReader(data)))
	h.writeSession(w, session, err)
}

func (h *HTTPServer) writeSession(w http.ResponseWriter, session *audio.Session, err error) {
	resp := sessionResponse{Status: h.manager.Status()}

	if err != nil {
		resp.Error = err.Error()
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, audio.ErrDecode):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, audio.ErrPermissionDenied):
			status = http.StatusForbidden
		case errors.Is(err, audio.ErrDevice):
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
		return
	}

	info := session.GetSessionInfo()
	resp.Session = &info
	writeJSON(w, http.StatusOK, resp)
}

// handleReset implements POST /session/reset
func (h *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.manager.Reset()
	writeJSON(w, http.StatusOK, sessionResponse{Status: h.manager.Status()})
}

// handleViewport implements POST /viewport with width and height in pixels
func (h *HTTPServer) handleViewport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width, err1 := strconv.Atoi(r.FormValue("width"))
	height, err2 := strconv.Atoi(r.FormValue("height"))
	if err1 != nil || err2 != nil || width < 1 || height < 1 {
		http.Error(w, "Positive integer width and height are required", http.StatusBadRequest)
		return
	}

	h.manager.Resize(width, height)
	w.WriteHeader(http.StatusNoContent)
}

// handlePointer implements POST /pointer with x and y in pixels
func (h *HTTPServer) handlePointer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	x, err1 := strconv.ParseFloat(r.FormValue("x"), 64)
	y, err2 := strconv.ParseFloat(r.FormValue("y"), 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "Numeric x and y are required", http.StatusBadRequest)
		return
	}

	h.manager.SetPointer(x, y)
	w.WriteHeader(http.StatusNoContent)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Resonance audio visualizer",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"GET /health":              "Service health check",
			"GET /status":              "Overlay, HUD, alert and session statistics",
			"GET /transcript":          "Current transcript",
			"GET /frame.png":           "Latest rendered frame",
			"GET /config":              "Service configuration",
			"GET /metrics":             "Prometheus metrics",
			"POST /session/microphone": "Start microphone input",
			"POST /session/file":       "Play an uploaded audio file (multipart field 'file')",
			"POST /session/reset":      "Stop the session and show the overlay",
			"POST /viewport":           "Resize the drawing surface (width, height)",
			"POST /pointer":            "Move the parallax pointer (x, y)",
		},
		"timestamp": time.Now().UTC(),
	})
}
