package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AudioChunk is one time slice of captured audio, encoded for transmission
type AudioChunk struct {
	ChunkID    string        `json:"chunk_id"`
	SessionID  string        `json:"session_id"`
	Seq        uint64        `json:"seq"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"` // audio duration, from sample count
	SampleRate int           `json:"sample_rate"`
	Samples    int           `json:"samples"`
	Format     string        `json:"format"`
	MimeType   string        `json:"mime_type"`
	AudioData  []byte        `json:"-"`
}

// ChunkingConfig contains configuration for the chunking process
type ChunkingConfig struct {
	SessionID  string
	SampleRate int
	Encoder    Encoder
}

// Chunker accumulates captured PCM and slices it into encoded chunks on
// each Flush. Samples that do not fill a whole encoder frame are carried
// into the next chunk.
type Chunker struct {
	config  ChunkingConfig
	pending []int16

	intervalStart time.Time
	seq           uint64

	// Statistics
	chunksCreated uint64
	bytesEncoded  uint64
	totalDuration time.Duration

	mu sync.Mutex
}

// ChunkerStats represents chunker statistics
type ChunkerStats struct {
	ChunksCreated  uint64        `json:"chunks_created"`
	BytesEncoded   uint64        `json:"bytes_encoded"`
	TotalDuration  time.Duration `json:"total_duration"`
	PendingSamples int           `json:"pending_samples"`
	AvgChunkSize   float64       `json:"avg_chunk_bytes"`
}

// NewChunker creates a new audio chunker
func NewChunker(config ChunkingConfig) (*Chunker, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.Encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}

	return &Chunker{config: config}, nil
}

// Write appends captured samples to the current interval
func (c *Chunker) Write(pcm []int16) {
	if len(pcm) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.intervalStart.IsZero() {
		c.intervalStart = time.Now()
	}
	c.pending = append(c.pending, pcm...)
}

// Flush encodes the current interval. It returns nil when the interval
// holds less than one encoder frame.
func (c *Chunker) Flush() (*AudioChunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame := max(c.config.Encoder.FrameSize(), 1)
	usable := len(c.pending) / frame * frame
	if usable == 0 {
		return nil, nil
	}

	samples := c.pending[:usable]
	data, err := c.config.Encoder.Encode(samples, c.config.SampleRate)
	now := time.Now()
	if err != nil {
		// The interval is lost, like any chunk the link cannot take.
		c.discardLocked(usable, now)
		return nil, fmt.Errorf("encode chunk: %w", err)
	}

	duration := time.Duration(usable) * time.Second / time.Duration(c.config.SampleRate)

	chunk := &AudioChunk{
		ChunkID:    uuid.NewString(),
		SessionID:  c.config.SessionID,
		Seq:        c.seq,
		StartTime:  c.intervalStart,
		EndTime:    now,
		Duration:   duration,
		SampleRate: c.config.SampleRate,
		Samples:    usable,
		Format:     c.config.Encoder.Format(),
		MimeType:   c.config.Encoder.MimeType(),
		AudioData:  data,
	}

	c.discardLocked(usable, now)

	c.seq++
	c.chunksCreated++
	c.bytesEncoded += uint64(len(data))
	c.totalDuration += duration

	return chunk, nil
}

// discardLocked drops the first n pending samples; a remainder starts a new interval at now
func (c *Chunker) discardLocked(n int, now time.Time) {
	rest := copy(c.pending, c.pending[n:])
	c.pending = c.pending[:rest]
	c.intervalStart = time.Time{}
	if rest > 0 {
		c.intervalStart = now
	}
}

// Reset discards pending samples
func (c *Chunker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = c.pending[:0]
	c.intervalStart = time.Time{}
}

// GetStats returns current chunker statistics
func (c *Chunker) GetStats() ChunkerStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	avg := float64(0)
	if c.chunksCreated > 0 {
		avg = float64(c.bytesEncoded) / float64(c.chunksCreated)
	}

	return ChunkerStats{
		ChunksCreated:  c.chunksCreated,
		BytesEncoded:   c.bytesEncoded,
		TotalDuration:  c.totalDuration,
		PendingSamples: len(c.pending),
		AvgChunkSize:   avg,
	}
}
