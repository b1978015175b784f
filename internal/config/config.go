package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the YAML file
const (
	EnvOrigin   = "RESONANCE_ORIGIN"
	EnvHTTPPort = "RESONANCE_HTTP_PORT"
	EnvLogLevel = "RESONANCE_LOG_LEVEL"
)

// Config represents the complete application configuration
type Config struct {
	Display       DisplayConfig       `yaml:"display"`
	Analyzer      AnalyzerConfig      `yaml:"analyzer"`
	Particles     ParticlesConfig     `yaml:"particles"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DisplayConfig contains drawing surface and frame scheduling parameters
type DisplayConfig struct {
	Width  int `yaml:"width"`  // pixels
	Height int `yaml:"height"` // pixels
	FPS    int `yaml:"fps"`    // frames per second
}

// AnalyzerConfig contains spectral analysis parameters
type AnalyzerConfig struct {
	FFTSize     int     `yaml:"fft_size"`
	Smoothing   float64 `yaml:"smoothing"`
	MinDecibels float64 `yaml:"min_decibels"`
	MaxDecibels float64 `yaml:"max_decibels"`
}

// ParticlesConfig contains particle field parameters
type ParticlesConfig struct {
	Count int   `yaml:"count"`
	Seed  int64 `yaml:"seed"` // 0 means time-seeded
}

// AudioConfig contains capture and playback parameters
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`       // capture rate, Hz
	OutputRate      int `yaml:"output_rate"`       // playback rate, Hz
	FramesPerBuffer int `yaml:"frames_per_buffer"` // capture read size, samples
}

// TranscriptionConfig contains transcription link parameters
type TranscriptionConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Origin        string `yaml:"origin"` // page origin the link endpoint is derived from
	Path          string `yaml:"path"`
	ChunkInterval int    `yaml:"chunk_interval"` // milliseconds
	Format        string `yaml:"format"`         // "webm" or "wav"
}

// HTTPConfig contains HTTP control server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration matching the reference visualizer
func Default() Config {
	return Config{
		Display: DisplayConfig{Width: 1280, Height: 720, FPS: 60},
		Analyzer: AnalyzerConfig{
			FFTSize:     512,
			Smoothing:   0.8,
			MinDecibels: -100,
			MaxDecibels: -30,
		},
		Particles: ParticlesConfig{Count: 150},
		Audio: AudioConfig{
			SampleRate:      48000,
			OutputRate:      48000,
			FramesPerBuffer: 960,
		},
		Transcription: TranscriptionConfig{
			Enabled:       true,
			Origin:        "http://localhost:8080",
			Path:          "/transcribe",
			ChunkInterval: 500,
			Format:        "webm",
		},
		HTTP: HTTPConfig{Port: 8090, Address: "127.0.0.1", Enabled: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file over the defaults, loads the optional
// .env file and applies environment overrides.
func Load(path, envFile string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnv overrides selected fields from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvOrigin); ok && v != "" {
		c.Transcription.Origin = v
	}

	if v, ok := lookup(EnvHTTPPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHTTPPort, err)
		}
		c.HTTP.Port = port
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}

	return nil
}

// Validate performs validation of every configuration section
func (c *Config) Validate() error {
	if err := c.Display.Validate(); err != nil {
		return fmt.Errorf("display config: %w", err)
	}

	if err := c.Analyzer.Validate(); err != nil {
		return fmt.Errorf("analyzer config: %w", err)
	}

	if err := c.Particles.Validate(); err != nil {
		return fmt.Errorf("particles config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(c.Audio.SampleRate); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates display configuration
func (d *DisplayConfig) Validate() error {
	if d.Width < 1 || d.Height < 1 {
		return fmt.Errorf("width and height must be positive, got %dx%d", d.Width, d.Height)
	}

	if d.FPS < 1 || d.FPS > 240 {
		return fmt.Errorf("fps must be between 1 and 240, got %d", d.FPS)
	}

	return nil
}

// Validate validates analyzer configuration
func (a *AnalyzerConfig) Validate() error {
	if a.FFTSize < 32 || a.FFTSize > 32768 || a.FFTSize&(a.FFTSize-1) != 0 {
		return fmt.Errorf("fft_size must be a power of two between 32 and 32768, got %d", a.FFTSize)
	}

	if a.Smoothing < 0 || a.Smoothing >= 1 {
		return fmt.Errorf("smoothing must be in [0, 1), got %f", a.Smoothing)
	}

	if a.MaxDecibels <= a.MinDecibels {
		return fmt.Errorf("max_decibels (%f) must be greater than min_decibels (%f)",
			a.MaxDecibels, a.MinDecibels)
	}

	return nil
}

// Validate validates particle configuration
func (p *ParticlesConfig) Validate() error {
	if p.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", p.Count)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.OutputRate < 8000 || a.OutputRate > 192000 {
		return fmt.Errorf("output_rate must be between 8000 and 192000 Hz, got %d", a.OutputRate)
	}

	if a.FramesPerBuffer < 64 {
		return fmt.Errorf("frames_per_buffer must be at least 64, got %d", a.FramesPerBuffer)
	}

	return nil
}

// opusRates lists the capture rates the Opus encoder accepts
var opusRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// Validate validates transcription configuration against the capture rate
func (t *TranscriptionConfig) Validate(sampleRate int) error {
	if !t.Enabled {
		return nil
	}

	u, err := url.Parse(t.Origin)
	if err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin scheme must be http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("origin host cannot be empty")
	}

	if t.Path == "" || t.Path[0] != '/' {
		return fmt.Errorf("path must start with '/', got '%s'", t.Path)
	}

	if t.ChunkInterval < 50 {
		return fmt.Errorf("chunk_interval must be at least 50 ms, got %d", t.ChunkInterval)
	}

	switch t.Format {
	case "webm":
		if !opusRates[sampleRate] {
			return fmt.Errorf("format 'webm' requires an Opus sample rate, got %d", sampleRate)
		}
	case "wav":
	default:
		return fmt.Errorf("format must be 'webm' or 'wav', got '%s'", t.Format)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetFrameInterval returns the time between frames
func (d *DisplayConfig) GetFrameInterval() time.Duration {
	return time.Second / time.Duration(d.FPS)
}

// GetChunkInterval returns the chunk emission interval as a time.Duration
func (t *TranscriptionConfig) GetChunkInterval() time.Duration {
	return time.Duration(t.ChunkInterval) * time.Millisecond
}
