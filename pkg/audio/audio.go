// Package audio defines the microphone capture contract and the energy math
// shared by voice activity detection and utterance recording.
package audio

import (
	"context"
	"math"
)

// Capture defaults. Frames are sized for low-latency energy checks: 512
// samples at 16kHz is 32ms of audio.
const (
	DefaultSampleRate = 16000
	DefaultFrameSize  = 512
)

// FrameSource delivers fixed-size frames of mono 16-bit PCM from a capture
// device.
type FrameSource interface {
	// ReadFrame blocks until the next frame is available. The returned
	// slice is owned by the caller. Implementations honor ctx
	// cancellation.
	ReadFrame(ctx context.Context) ([]int16, error)

	// SampleRate reports the capture rate in Hz.
	SampleRate() int

	// Close releases the device.
	Close() error
}

// RMS returns the root-mean-square amplitude of the frame. Silence is near
// zero; loud speech on a typical laptop microphone lands in the thousands.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// Peak returns the largest absolute sample value in the frame.
func Peak(frame []int16) int {
	var peak int
	for _, s := range frame {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
