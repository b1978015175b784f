package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// CaptureDevice opens a mono PCM-16 capture stream
type CaptureDevice interface {
	Open(sampleRate, framesPerBuffer int) (CaptureStream, error)
}

// CaptureStream delivers fixed-size capture buffers
type CaptureStream interface {
	// Read blocks until the next buffer is available. The returned slice
	// is owned by the caller.
	Read() ([]int16, error)
	Close() error
}

// PortAudioDevice captures from the default input device through PortAudio
type PortAudioDevice struct{}

type portAudioStream struct {
	stream *portaudio.Stream
	buf    []int16
	once   sync.Once
}

// Open initializes PortAudio and starts the default input stream
func (PortAudioDevice) Open(sampleRate, framesPerBuffer int) (CaptureStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, classifyDeviceError(fmt.Errorf("initialize portaudio: %w", err))
	}

	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, classifyDeviceError(fmt.Errorf("open input stream: %w", err))
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, classifyDeviceError(fmt.Errorf("start input stream: %w", err))
	}

	return &portAudioStream{stream: stream, buf: buf}, nil
}

func (p *portAudioStream) Read() ([]int16, error) {
	if err := p.stream.Read(); err != nil {
		// Overflow only means samples were lost; the buffer is still valid.
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, err
		}
	}
	out := make([]int16, len(p.buf))
	copy(out, p.buf)
	return out, nil
}

func (p *portAudioStream) Close() error {
	var err error
	p.once.Do(func() {
		if stopErr := p.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := p.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		portaudio.Terminate()
	})
	return err
}

// classifyDeviceError maps a capture failure onto ErrPermissionDenied or ErrDevice
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	if errors.Is(err, fs.ErrPermission) || strings.Contains(msg, "permission") ||
		strings.Contains(msg, "not permitted") || strings.Contains(msg, "access denied") {
		return classify(ErrPermissionDenied, err)
	}
	return classify(ErrDevice, err)
}
