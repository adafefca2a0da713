package listen

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	audiomock "github.com/daisyvoice/daisy/pkg/audio/mock"
	"github.com/daisyvoice/daisy/pkg/provider/stt"
)

// Frame timing at the test rate: 512 samples at 16 kHz is 32 ms.
const frameSize = 512

func TestRecordCapturesSpeechBetweenSilences(t *testing.T) {
	src := &audiomock.Source{
		Frames: [][]int16{
			audiomock.Silence(frameSize),
			audiomock.Silence(frameSize),
			audiomock.Tone(frameSize, 5000),
			audiomock.Tone(frameSize, 5000),
			audiomock.Tone(frameSize, 5000),
			audiomock.Silence(frameSize),
			audiomock.Silence(frameSize),
			audiomock.Silence(frameSize),
			audiomock.Tone(frameSize, 5000), // after the utterance ended
		},
	}
	rec := NewRecorder(src, WithTrailingSilence(90*time.Millisecond))

	clip, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", clip.SampleRate)
	}
	// Two pre-roll silence frames, three voiced, three trailing silence.
	want := 8 * frameSize
	if len(clip.PCM) != want {
		t.Errorf("clip length = %d samples, want %d", len(clip.PCM), want)
	}
}

func TestRecordNoSpeechBeforeSourceEnds(t *testing.T) {
	src := &audiomock.Source{
		Frames: [][]int16{
			audiomock.Silence(frameSize),
			audiomock.Silence(frameSize),
		},
	}
	rec := NewRecorder(src)

	_, err := rec.Record(context.Background())
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Errorf("err = %v, want ErrNoSpeech", err)
	}
}

func TestRecordStopsAtUtteranceCap(t *testing.T) {
	frames := make([][]int16, 40)
	for i := range frames {
		frames[i] = audiomock.Tone(frameSize, 5000)
	}
	src := &audiomock.Source{Frames: frames, BlockAtEnd: true}
	rec := NewRecorder(src, WithMaxUtterance(320*time.Millisecond))

	clip, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	// 320 ms at 32 ms per frame is 10 frames.
	if got := len(clip.PCM); got != 10*frameSize {
		t.Errorf("clip length = %d samples, want %d", got, 10*frameSize)
	}
}

func TestRecordRespectsContext(t *testing.T) {
	src := &audiomock.Source{BlockAtEnd: true}
	rec := NewRecorder(src)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rec.Record(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestRecordWarnsOnClippedInput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	frames := [][]int16{}
	for i := 0; i < 3; i++ {
		frames = append(frames, audiomock.Tone(frameSize, 32700))
	}
	for i := 0; i < 6; i++ {
		frames = append(frames, audiomock.Silence(frameSize))
	}
	src := &audiomock.Source{Frames: frames}
	rec := NewRecorder(src, WithTrailingSilence(90*time.Millisecond), WithLogger(logger))

	if _, err := rec.Record(context.Background()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !strings.Contains(buf.String(), "clipped") {
		t.Error("no clipping warning logged for saturated input")
	}
}

func TestRecordEOFDuringSpeechKeepsClip(t *testing.T) {
	src := &audiomock.Source{
		Frames: [][]int16{
			audiomock.Tone(frameSize, 5000),
			audiomock.Tone(frameSize, 5000),
		},
	}
	rec := NewRecorder(src)

	clip, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := len(clip.PCM); got != 2*frameSize {
		t.Errorf("clip length = %d samples, want %d", got, 2*frameSize)
	}
}
