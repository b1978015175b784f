package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rishpaul04/Resonance/internal/audio"
	"github.com/rishpaul04/Resonance/internal/metrics"
)

// Client streams live sessions to the transcription service, one Link per session
type Client struct {
	config   Config
	endpoint string
	sink     TranscriptSink
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// Statistics
	streamsStarted      uint64
	chunksProduced      uint64
	chunksSent          uint64
	chunksDropped       uint64
	bytesSent           uint64
	transcriptsReceived uint64
	lastTranscriptAt    time.Time
	link                *Link

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	Origin        string        // page origin the endpoint is derived from
	Path          string        // resource path, DefaultPath when empty
	ChunkInterval time.Duration // time slice per chunk
	Format        string        // chunk encoding, "webm" or "wav"
	SampleRate    int           // capture rate of live sessions
}

// ClientStats represents client statistics
type ClientStats struct {
	Endpoint            string    `json:"endpoint"`
	LinkState           string    `json:"link_state"`
	StreamsStarted      uint64    `json:"streams_started"`
	ChunksProduced      uint64    `json:"chunks_produced"`
	ChunksSent          uint64    `json:"chunks_sent"`
	ChunksDropped       uint64    `json:"chunks_dropped"`
	BytesSent           uint64    `json:"bytes_sent"`
	TranscriptsReceived uint64    `json:"transcripts_received"`
	LastTranscriptAt    time.Time `json:"last_transcript_at,omitempty"`
}

// NewClient creates a transcription client
func NewClient(config Config, sink TranscriptSink, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	endpoint, err := Endpoint(config.Origin, config.Path)
	if err != nil {
		return nil, fmt.Errorf("derive endpoint: %w", err)
	}

	if config.ChunkInterval <= 0 {
		config.ChunkInterval = 500 * time.Millisecond
	}
	if config.Format == "" {
		config.Format = audio.FormatWebM
	}

	if _, err := audio.NewEncoder(config.Format, config.SampleRate); err != nil {
		return nil, err
	}

	if sink == nil {
		sink = SinkFunc(func(string) {})
	}

	return &Client{
		config:   config,
		endpoint: endpoint,
		sink:     sink,
		logger:   logger,
		metrics:  m,
	}, nil
}

// Endpoint returns the websocket URL the client dials
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Stream opens a link for a live session and, once it is open, sends one
// chunk per interval. It returns when the link leaves the open state,
// the session stops or ctx is cancelled. The link is closed on return.
func (c *Client) Stream(ctx context.Context, session *audio.Session) error {
	if !session.IsLive() {
		return audio.ErrNotLive
	}

	encoder, err := audio.NewEncoder(c.config.Format, c.config.SampleRate)
	if err != nil {
		return err
	}
	chunker, err := audio.NewChunker(audio.ChunkingConfig{
		SessionID:  session.ID,
		SampleRate: c.config.SampleRate,
		Encoder:    encoder,
	})
	if err != nil {
		return err
	}

	logger := c.logger.With(slog.String("session_id", session.ID))
	link := NewLink(c.endpoint, SinkFunc(c.receive), logger, c.metrics)
	c.setLink(link)
	defer link.Close()

	if err := link.Open(ctx); err != nil {
		if errors.Is(err, ErrLinkClosed) || ctx.Err() != nil {
			return nil
		}
		return err
	}

	// Capture starts once the link is open; earlier audio is not recorded.
	pcm, err := session.Subscribe(64)
	if err != nil {
		if errors.Is(err, audio.ErrSessionStopped) {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(c.config.ChunkInterval)
	defer ticker.Stop()

	logger.Info("Streaming audio to transcription service",
		slog.String("format", encoder.Format()),
		slog.Duration("interval", c.config.ChunkInterval),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-link.Done():
			return nil
		case buf, ok := <-pcm:
			if !ok {
				return nil
			}
			chunker.Write(buf)
		case <-ticker.C:
			chunk, err := chunker.Flush()
			if err != nil {
				logger.Warn("Failed to encode chunk", slog.String("error", err.Error()))
				continue
			}
			if chunk == nil {
				continue
			}
			c.deliver(ctx, link, chunk)
		}
	}
}

// deliver sends a chunk if the link is open and drops it otherwise
func (c *Client) deliver(ctx context.Context, link *Link, chunk *audio.AudioChunk) {
	c.metrics.RecordChunkProduced(len(chunk.AudioData))

	sent := link.Send(ctx, chunk.AudioData)

	c.mu.Lock()
	c.chunksProduced++
	if sent {
		c.chunksSent++
		c.bytesSent += uint64(len(chunk.AudioData))
	} else {
		c.chunksDropped++
	}
	c.mu.Unlock()

	if sent {
		c.metrics.RecordChunkSent()
	} else {
		c.metrics.RecordChunkDropped()
		c.logger.Debug("Chunk dropped",
			slog.String("chunk_id", chunk.ChunkID),
			slog.String("link_state", link.State().String()),
		)
	}
}

func (c *Client) receive(text string) {
	if text != ListeningMessage && text != ErrorMessage {
		c.mu.Lock()
		c.transcriptsReceived++
		c.lastTranscriptAt = time.Now()
		c.mu.Unlock()
	}
	c.sink.SetTranscript(text)
}

func (c *Client) setLink(link *Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = link
	c.streamsStarted++
}

// LinkState returns the state of the most recent link, or "none"
func (c *Client) LinkState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.link == nil {
		return "none"
	}
	return c.link.State().String()
}

// GetStats returns client statistics
func (c *Client) GetStats() ClientStats {
	state := c.LinkState()

	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		Endpoint:            c.endpoint,
		LinkState:           state,
		StreamsStarted:      c.streamsStarted,
		ChunksProduced:      c.chunksProduced,
		ChunksSent:          c.chunksSent,
		ChunksDropped:       c.chunksDropped,
		BytesSent:           c.bytesSent,
		TranscriptsReceived: c.transcriptsReceived,
		LastTranscriptAt:    c.lastTranscriptAt,
	}
}
