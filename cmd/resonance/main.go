package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rishpaul04/Resonance/internal/audio"
	"github.com/rishpaul04/Resonance/internal/config"
	"github.com/rishpaul04/Resonance/internal/metrics"
	"github.com/rishpaul04/Resonance/internal/particle"
	"github.com/rishpaul04/Resonance/internal/render"
	"github.com/rishpaul04/Resonance/internal/server"
	"github.com/rishpaul04/Resonance/internal/spectrum"
	"github.com/rishpaul04/Resonance/internal/stream"
	"github.com/rishpaul04/Resonance/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvPath    = ".env"
	serviceName       = "resonance"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", defaultEnvPath, "Path to optional .env file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("width", cfg.Display.Width),
		slog.Int("height", cfg.Display.Height),
		slog.Int("fps", cfg.Display.FPS),
		slog.Int("fft_size", cfg.Analyzer.FFTSize),
		slog.Int("particles", cfg.Particles.Count),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Bool("transcription_enabled", cfg.Transcription.Enabled),
		slog.String("transcription_origin", cfg.Transcription.Origin),
		slog.String("chunk_format", cfg.Transcription.Format),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics on the default registry
	appMetrics := metrics.NewMetrics(nil)
	logger.Info("Prometheus metrics initialized")

	field := particle.NewField(cfg.Particles.Count, particle.NewSource(cfg.Particles.Seed))
	loop := render.NewLoop(render.Config{
		Width:    cfg.Display.Width,
		Height:   cfg.Display.Height,
		Interval: cfg.Display.GetFrameInterval(),
		Bins:     cfg.Analyzer.FFTSize / 2,
	}, field, logger, appMetrics)

	adapter := audio.NewAdapter(audio.AdapterConfig{
		SampleRate:      cfg.Audio.SampleRate,
		OutputRate:      cfg.Audio.OutputRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		Analyzer: spectrum.Config{
			FFTSize:     cfg.Analyzer.FFTSize,
			Smoothing:   cfg.Analyzer.Smoothing,
			MinDecibels: cfg.Analyzer.MinDecibels,
			MaxDecibels: cfg.Analyzer.MaxDecibels,
		},
	}, audio.PortAudioDevice{}, audio.NewSpeakerOutput(cfg.Audio.OutputRate), logger)

	managerConfig := stream.ManagerConfig{}
	if cfg.Transcription.Enabled {
		managerConfig.Transcription = &transcription.Config{
			Origin:        cfg.Transcription.Origin,
			Path:          cfg.Transcription.Path,
			ChunkInterval: cfg.Transcription.GetChunkInterval(),
			Format:        cfg.Transcription.Format,
			SampleRate:    cfg.Audio.SampleRate,
		}
	}

	manager, err := stream.NewManager(managerConfig, adapter, loop, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized",
		slog.Bool("transcription", managerConfig.Transcription != nil),
	)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpConfig := server.HTTPServerConfig{
			Port:    cfg.HTTP.Port,
			Address: cfg.HTTP.Address,
			Enabled: cfg.HTTP.Enabled,
		}
		httpServer = server.NewHTTPServer(httpConfig, logger, cfg, manager, appMetrics)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new intents)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the session, the transcription stream and the render loop
	manager.Stop()

	stats := manager.GetStats()
	logger.Info("Final statistics",
		slog.Uint64("sessions_started", stats.SessionsStarted),
		slog.Uint64("session_failures", stats.SessionFailures),
		slog.Uint64("frames_rendered", stats.Render.Frames),
		slog.Uint64("frame_errors", stats.Render.Errors),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
