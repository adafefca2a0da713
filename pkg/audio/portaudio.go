package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Global PortAudio initialization is process-wide and refcounted here so
// multiple Mic instances (main capture plus the VAD listener) can coexist.
var (
	paMu   sync.Mutex
	paRefs int
)

func paAcquire() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("audio: initialize portaudio: %w", err)
		}
	}
	paRefs++
	return nil
}

func paRelease() {
	paMu.Lock()
	defer paMu.Unlock()
	paRefs--
	if paRefs == 0 {
		portaudio.Terminate()
	}
}

// Mic captures mono 16-bit PCM frames from the default input device.
type Mic struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int

	closeOnce sync.Once
	closeErr  error
}

var _ FrameSource = (*Mic)(nil)

// OpenMic opens the default capture device at the given rate and frame size.
// Zero values select [DefaultSampleRate] and [DefaultFrameSize].
func OpenMic(sampleRate, frameSize int) (*Mic, error) {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	if frameSize == 0 {
		frameSize = DefaultFrameSize
	}

	if err := paAcquire(); err != nil {
		return nil, err
	}

	buf := make([]int16, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, buf)
	if err != nil {
		paRelease()
		return nil, fmt.Errorf("audio: open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		paRelease()
		return nil, fmt.Errorf("audio: start capture stream: %w", err)
	}

	return &Mic{stream: stream, buf: buf, sampleRate: sampleRate}, nil
}

// ReadFrame implements FrameSource. PortAudio's blocking read has no
// cancellation hook, so ctx is checked before each read; a frame is at most
// tens of milliseconds, which keeps shutdown latency acceptable.
//
// An input overflow means the host dropped audio between reads, which
// happens whenever a consumer pauses for a while. The stream itself is
// still healthy, so the overflowed frame is discarded and the read retried.
func (m *Mic) ReadFrame(ctx context.Context) ([]int16, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := m.stream.Read()
		if err == nil {
			break
		}
		if errors.Is(err, portaudio.InputOverflowed) {
			continue
		}
		return nil, fmt.Errorf("audio: read frame: %w", err)
	}
	frame := make([]int16, len(m.buf))
	copy(frame, m.buf)
	return frame, nil
}

// SampleRate implements FrameSource.
func (m *Mic) SampleRate() int { return m.sampleRate }

// Close implements FrameSource.
func (m *Mic) Close() error {
	m.closeOnce.Do(func() {
		if err := m.stream.Stop(); err != nil {
			m.closeErr = fmt.Errorf("audio: stop capture stream: %w", err)
		}
		if err := m.stream.Close(); err != nil && m.closeErr == nil {
			m.closeErr = fmt.Errorf("audio: close capture stream: %w", err)
		}
		paRelease()
	})
	return m.closeErr
}
