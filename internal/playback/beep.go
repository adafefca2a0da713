package playback

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"github.com/daisyvoice/daisy/pkg/provider/tts"
)

// BeepPlayer plays MP3 artifacts in-process through the beep speaker. It is
// the fallback on machines without a command line player; termination works
// by clearing the speaker instead of signalling a process.
type BeepPlayer struct {
	initOnce sync.Once
	initErr  error
}

var _ Player = (*BeepPlayer)(nil)

// Start implements Player. Only MP3 artifacts are supported; other formats
// belong to [ExecPlayer].
func (p *BeepPlayer) Start(ctx context.Context, artifact tts.Artifact) (Task, error) {
	if artifact.Format != tts.FormatMP3 {
		return nil, fmt.Errorf("playback: beep player supports mp3 only, got %s", artifact.Format)
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		return nil, fmt.Errorf("playback: open artifact: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("playback: decode mp3: %w", err)
	}

	p.initOnce.Do(func() {
		p.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if p.initErr != nil {
		streamer.Close()
		return nil, fmt.Errorf("playback: init speaker: %w", p.initErr)
	}

	t := &beepTask{done: make(chan struct{})}
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		streamer.Close()
		t.finish()
	})))
	return t, nil
}

// beepTask adapts speaker playback to the Task contract. Terminate and Kill
// both clear the speaker; there is no graceful phase for an in-process
// stream.
type beepTask struct {
	done     chan struct{}
	doneOnce sync.Once
}

var _ Task = (*beepTask)(nil)

func (t *beepTask) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *beepTask) IsRunning() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *beepTask) Terminate() error {
	if t.IsRunning() {
		speaker.Clear()
		t.finish()
	}
	return nil
}

func (t *beepTask) Kill() error { return t.Terminate() }
