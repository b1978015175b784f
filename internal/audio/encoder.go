package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/at-wat/ebml-go/webm"
	"github.com/jj11hh/opus"
)

// Chunk formats
const (
	FormatWebM = "webm"
	FormatWAV  = "wav"
)

// Encoder turns one interval of mono PCM-16 into a self-contained payload
type Encoder interface {
	Format() string
	MimeType() string
	// FrameSize is the sample granularity Encode accepts
	FrameSize() int
	Encode(pcm []int16, sampleRate int) ([]byte, error)
}

// NewEncoder returns the encoder for a chunk format
func NewEncoder(format string, sampleRate int) (Encoder, error) {
	switch format {
	case FormatWebM:
		return NewWebMEncoder(sampleRate)
	case FormatWAV:
		return WAVEncoder{}, nil
	}
	return nil, fmt.Errorf("unsupported chunk format %q", format)
}

// WAVEncoder produces PCM-16 WAV chunks
type WAVEncoder struct{}

func (WAVEncoder) Format() string   { return FormatWAV }
func (WAVEncoder) MimeType() string { return "audio/wav" }
func (WAVEncoder) FrameSize() int   { return 1 }

func (WAVEncoder) Encode(pcm []int16, sampleRate int) ([]byte, error) {
	return EncodeWAV(pcm, sampleRate)
}

const (
	opusFrameDuration = 20 // ms
	opusMaxPacket     = 1275
	opusPreSkip       = 312
	opusTrackNumber   = 1
)

// WebMEncoder produces audio/webm chunks holding one Opus track. Every
// chunk carries its own EBML header so it decodes on its own.
type WebMEncoder struct {
	sampleRate int
	frameSize  int
}

// NewWebMEncoder creates an encoder for an Opus-compatible sample rate
func NewWebMEncoder(sampleRate int) (*WebMEncoder, error) {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("opus does not support sample rate %d", sampleRate)
	}
	return &WebMEncoder{
		sampleRate: sampleRate,
		frameSize:  sampleRate * opusFrameDuration / 1000,
	}, nil
}

func (e *WebMEncoder) Format() string   { return FormatWebM }
func (e *WebMEncoder) MimeType() string { return "audio/webm" }
func (e *WebMEncoder) FrameSize() int   { return e.frameSize }

func (e *WebMEncoder) Encode(pcm []int16, sampleRate int) ([]byte, error) {
	if sampleRate != e.sampleRate {
		return nil, fmt.Errorf("encoder configured for %d Hz, got %d", e.sampleRate, sampleRate)
	}
	if len(pcm) < e.frameSize {
		return nil, fmt.Errorf("need at least %d samples, got %d", e.frameSize, len(pcm))
	}

	enc, err := opus.NewEncoder(e.sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	out := newBufferCloser()
	writers, err := webm.NewSimpleBlockWriter(out, []webm.TrackEntry{{
		Name:         "Audio",
		TrackNumber:  opusTrackNumber,
		TrackUID:     opusTrackNumber,
		CodecID:      "A_OPUS",
		TrackType:    2,
		CodecPrivate: opusHead(e.sampleRate),
		Audio: &webm.Audio{
			SamplingFrequency: float64(e.sampleRate),
			Channels:          1,
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("create webm writer: %w", err)
	}
	track := writers[0]

	packet := make([]byte, opusMaxPacket)
	for off := 0; off+e.frameSize <= len(pcm); off += e.frameSize {
		n, err := enc.Encode(pcm[off:off+e.frameSize], packet)
		if err != nil {
			track.Close()
			return nil, fmt.Errorf("opus encode: %w", err)
		}

		// The block writer serializes asynchronously, so each block gets its own copy.
		block := make([]byte, n)
		copy(block, packet[:n])

		timestamp := int64(off) * 1000 / int64(e.sampleRate)
		if _, err := track.Write(true, timestamp, block); err != nil {
			track.Close()
			return nil, fmt.Errorf("write webm block: %w", err)
		}
	}

	if err := track.Close(); err != nil {
		return nil, fmt.Errorf("close webm track: %w", err)
	}
	<-out.done

	return out.Bytes(), nil
}

// opusHead builds the identification header stored as the track's CodecPrivate
func opusHead(sampleRate int) []byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1 // version
	head[9] = 1 // channels
	binary.LittleEndian.PutUint16(head[10:], opusPreSkip)
	binary.LittleEndian.PutUint32(head[12:], uint32(sampleRate))
	// output gain and channel mapping family stay zero
	return head
}

// bufferCloser collects container output and signals when the writer closes it
type bufferCloser struct {
	bytes.Buffer
	done chan struct{}
	once sync.Once
}

func newBufferCloser() *bufferCloser {
	return &bufferCloser{done: make(chan struct{})}
}

func (b *bufferCloser) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}
