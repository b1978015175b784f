package audio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// Output is the audible sink for decoded file playback
type Output interface {
	Play(s beep.Streamer) error
	// Clear stops everything playing. No streamer is pulled after it returns.
	Clear()
}

// SpeakerOutput plays through the system speaker at a fixed sample rate
type SpeakerOutput struct {
	SampleRate beep.SampleRate
	BufferSize time.Duration

	once    sync.Once
	initErr error
}

// NewSpeakerOutput creates a speaker output; the device is opened on first Play
func NewSpeakerOutput(sampleRate int) *SpeakerOutput {
	return &SpeakerOutput{
		SampleRate: beep.SampleRate(sampleRate),
		BufferSize: 100 * time.Millisecond,
	}
}

func (o *SpeakerOutput) Play(s beep.Streamer) error {
	o.once.Do(func() {
		o.initErr = speaker.Init(o.SampleRate, o.SampleRate.N(o.BufferSize))
	})
	if o.initErr != nil {
		return classify(ErrDevice, fmt.Errorf("initialize speaker: %w", o.initErr))
	}
	speaker.Play(s)
	return nil
}

func (o *SpeakerOutput) Clear() {
	if o.initErr == nil {
		speaker.Clear()
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

// decodeFile picks a decoder from the file extension, falling back to the
// leading magic bytes when the extension is unknown.
func decodeFile(name string, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	br := bufio.NewReader(rc)
	src := readCloser{Reader: br, Closer: rc}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch format {
	case "wav", "wave", "mp3", "flac", "ogg", "oga":
	default:
		head, _ := br.Peek(12)
		format = sniffFormat(head)
	}

	switch format {
	case "wav", "wave":
		return wav.Decode(src)
	case "mp3":
		return mp3.Decode(src)
	case "flac":
		return flac.Decode(src)
	case "ogg", "oga":
		return vorbis.Decode(src)
	}
	return nil, beep.Format{}, fmt.Errorf("unrecognized audio format for %q", name)
}

func sniffFormat(head []byte) string {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return "wav"
	case bytes.HasPrefix(head, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(head, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(head, []byte("ID3")):
		return "mp3"
	case len(head) >= 2 && head[0] == 0xff && head[1]&0xe0 == 0xe0:
		return "mp3"
	}
	return ""
}
