// Package mock provides an in-memory [audio.FrameSource] for tests.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/daisyvoice/daisy/pkg/audio"
)

// Source replays a scripted sequence of frames. When the script is
// exhausted it returns io.EOF, or blocks until ctx is done if BlockAtEnd is
// set.
type Source struct {
	Frames     [][]int16
	Rate       int
	BlockAtEnd bool

	mu     sync.Mutex
	next   int
	closed bool
}

var _ audio.FrameSource = (*Source)(nil)

// Silence returns a frame of n zero samples.
func Silence(n int) []int16 { return make([]int16, n) }

// Tone returns a frame of n samples at constant amplitude, useful for
// driving energy thresholds in tests.
func Tone(n int, amplitude int16) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		frame[i] = amplitude
	}
	return frame
}

func (s *Source) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, io.EOF
	}
	if s.next < len(s.Frames) {
		frame := s.Frames[s.next]
		s.next++
		s.mu.Unlock()
		return frame, nil
	}
	s.mu.Unlock()

	if s.BlockAtEnd {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, io.EOF
}

func (s *Source) SampleRate() int {
	if s.Rate == 0 {
		return audio.DefaultSampleRate
	}
	return s.Rate
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
