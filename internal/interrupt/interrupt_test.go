package interrupt

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/internal/session"
	"github.com/daisyvoice/daisy/pkg/audio"
	audiomock "github.com/daisyvoice/daisy/pkg/audio/mock"
	sttmock "github.com/daisyvoice/daisy/pkg/provider/stt/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	return m
}

// openerFor hands the same source to every open call.
func openerFor(src audio.FrameSource) func() (audio.FrameSource, error) {
	return func() (audio.FrameSource, error) { return src, nil }
}

// brokenSource fails every read, like a capture stream the host gave up on.
type brokenSource struct{ err error }

func (b *brokenSource) ReadFrame(ctx context.Context) ([]int16, error) { return nil, b.err }
func (b *brokenSource) SampleRate() int                                { return audio.DefaultSampleRate }
func (b *brokenSource) Close() error                                   { return nil }

// closeCounter wraps a source and counts Close calls.
type closeCounter struct {
	audio.FrameSource
	closes *int
}

func (c *closeCounter) Close() error {
	*c.closes++
	return c.FrameSource.Close()
}

func TestContainsStopPhrase(t *testing.T) {
	tests := []struct {
		transcript string
		want       bool
	}{
		{"stop", true},
		{"please stop talking", true},
		{"Quiet!", true},
		{"shush", true},
		{"that's enough", true},
		{"stopp", true}, // transcription slip, fuzzy hit
		{"tell me about storks", false},
		{"the shop is closed", false},
		{"", false},
		{"what a quiet neighborhood", true}, // substring semantics, accepted tradeoff
	}
	for _, tt := range tests {
		if got := ContainsStopPhrase(tt.transcript); got != tt.want {
			t.Errorf("ContainsStopPhrase(%q) = %v, want %v", tt.transcript, got, tt.want)
		}
	}
}

func TestVADThresholdMonotonic(t *testing.T) {
	cfg := DefaultVADConfig()
	prev := cfg.threshold(0)
	for frame := 1; frame < 100; frame++ {
		cur := cfg.threshold(frame)
		if cur > prev {
			t.Fatalf("threshold rose from %v to %v at frame %d", prev, cur, frame)
		}
		if cur < cfg.FloorThreshold {
			t.Fatalf("threshold %v dropped below floor %v at frame %d", cur, cfg.FloorThreshold, frame)
		}
		prev = cur
	}
}

func TestVADRaisesOnSustainedEnergy(t *testing.T) {
	cfg := DefaultVADConfig()
	frames := [][]int16{}
	// Startup frames (discarded) then loud sustained speech.
	for i := 0; i < cfg.StartupDiscard; i++ {
		frames = append(frames, audiomock.Tone(512, 20000))
	}
	for i := 0; i < cfg.ConsecutiveFrames; i++ {
		frames = append(frames, audiomock.Tone(512, 10000))
	}

	src := &audiomock.Source{Frames: frames, BlockAtEnd: true}
	sess := session.New("sys", 0)
	v := NewVAD(openerFor(src), cfg, nil, testMetrics(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := v.Run(ctx, sess); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sess.Signal().Raised() {
		t.Fatal("signal not raised on sustained energy")
	}
	if got := sess.Signal().Source(); got != "vad" {
		t.Errorf("source = %q, want vad", got)
	}
}

func TestVADIgnoresBrokenEnergy(t *testing.T) {
	cfg := DefaultVADConfig()
	frames := [][]int16{}
	for i := 0; i < cfg.StartupDiscard; i++ {
		frames = append(frames, audiomock.Silence(512))
	}
	// Loud, quiet, loud, quiet: never ConsecutiveFrames in a row.
	for i := 0; i < 20; i++ {
		frames = append(frames, audiomock.Tone(512, 10000), audiomock.Silence(512))
	}

	src := &audiomock.Source{Frames: frames}
	sess := session.New("sys", 0)
	v := NewVAD(openerFor(src), cfg, nil, testMetrics(t))

	// Source returns io.EOF at end of script; Run surfaces it.
	if err := v.Run(context.Background(), sess); err == nil {
		t.Fatal("expected EOF from exhausted source")
	}
	if sess.Signal().Raised() {
		t.Fatal("signal raised on broken energy")
	}
}

func TestVADDiscardsStartupFrames(t *testing.T) {
	cfg := DefaultVADConfig()
	// Only startup noise, then silence.
	frames := [][]int16{}
	for i := 0; i < cfg.StartupDiscard; i++ {
		frames = append(frames, audiomock.Tone(512, 30000))
	}
	for i := 0; i < 10; i++ {
		frames = append(frames, audiomock.Silence(512))
	}

	src := &audiomock.Source{Frames: frames}
	sess := session.New("sys", 0)
	v := NewVAD(openerFor(src), cfg, nil, testMetrics(t))

	v.Run(context.Background(), sess)
	if sess.Signal().Raised() {
		t.Fatal("startup noise raised the signal")
	}
}

func TestVADOpensAndClosesStreamPerRun(t *testing.T) {
	var opens, closes int
	open := func() (audio.FrameSource, error) {
		opens++
		return &closeCounter{
			FrameSource: &audiomock.Source{BlockAtEnd: true},
			closes:      &closes,
		}, nil
	}
	v := NewVAD(open, DefaultVADConfig(), nil, testMetrics(t))

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		v.Run(ctx, session.New("sys", 0))
		cancel()
	}
	if opens != 2 {
		t.Errorf("stream opens = %d, want one per run", opens)
	}
	if closes != 2 {
		t.Errorf("stream closes = %d, want one per run", closes)
	}
}

func TestVADRecoversFromStreamFailure(t *testing.T) {
	cfg := DefaultVADConfig()
	cfg.StartupDiscard = 0
	frames := [][]int16{}
	for i := 0; i < cfg.ConsecutiveFrames; i++ {
		frames = append(frames, audiomock.Tone(512, 10000))
	}
	good := &audiomock.Source{Frames: frames, BlockAtEnd: true}

	// The first stream dies on its first read; the detector must take a
	// fresh one and still hear the user.
	sources := []audio.FrameSource{
		&brokenSource{err: errors.New("input overflowed")},
		good,
	}
	opens := 0
	open := func() (audio.FrameSource, error) {
		src := sources[opens]
		opens++
		return src, nil
	}

	sess := session.New("sys", 0)
	v := NewVAD(open, cfg, nil, testMetrics(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := v.Run(ctx, sess); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if opens != 2 {
		t.Errorf("stream opens = %d, want 2", opens)
	}
	if got := sess.Signal().Source(); got != "vad" {
		t.Errorf("source = %q, want vad", got)
	}
}

func TestStopWordDetector(t *testing.T) {
	rate := audio.DefaultSampleRate
	// 1.5s of loud audio so the snippet passes the silence gate.
	loud := audiomock.Tone(rate*2, 5000)
	src := &audiomock.Source{Frames: [][]int16{loud}, BlockAtEnd: true}

	transcriber := &sttmock.Provider{Transcripts: []sttmock.Result{{Text: "please stop"}}}
	sess := session.New("sys", 0)
	d := NewStopWord(openerFor(src), transcriber, 100*time.Millisecond, nil, testMetrics(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Run(ctx, sess); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sess.Signal().Source(); got != "stopword" {
		t.Errorf("source = %q, want stopword", got)
	}
}

func TestStopWordSwallowsTranscriptionFailure(t *testing.T) {
	rate := audio.DefaultSampleRate
	loud := audiomock.Tone(rate*2, 5000)
	quiet := audiomock.Tone(rate*2, 5000)
	src := &audiomock.Source{Frames: [][]int16{loud, quiet}}

	// First snippet errors, second has no stop phrase; then the source
	// runs dry and Run returns the read error without raising.
	transcriber := &sttmock.Provider{Transcripts: []sttmock.Result{
		{Err: context.DeadlineExceeded},
		{Text: "nice weather today"},
	}}
	sess := session.New("sys", 0)
	d := NewStopWord(openerFor(src), transcriber, 100*time.Millisecond, nil, testMetrics(t))

	if err := d.Run(context.Background(), sess); err == nil {
		t.Fatal("expected error from exhausted source")
	}
	if sess.Signal().Raised() {
		t.Fatal("signal raised without a stop phrase")
	}
}

func TestStopWordRecoversFromStreamFailure(t *testing.T) {
	rate := audio.DefaultSampleRate
	loud := audiomock.Tone(rate*2, 5000)
	good := &audiomock.Source{Frames: [][]int16{loud}, BlockAtEnd: true}

	sources := []audio.FrameSource{
		&brokenSource{err: errors.New("input overflowed")},
		good,
	}
	opens := 0
	open := func() (audio.FrameSource, error) {
		src := sources[opens]
		opens++
		return src, nil
	}

	transcriber := &sttmock.Provider{Transcripts: []sttmock.Result{{Text: "stop"}}}
	sess := session.New("sys", 0)
	d := NewStopWord(open, transcriber, 100*time.Millisecond, nil, testMetrics(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Run(ctx, sess); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sess.Signal().Source(); got != "stopword" {
		t.Errorf("source = %q, want stopword", got)
	}
}

func TestKeyboardDetector(t *testing.T) {
	sess := session.New("sys", 0)
	k := NewKeyboard(pressOnce{}, nil, testMetrics(t))

	if err := k.Run(context.Background(), sess); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sess.Signal().Source(); got != "keyboard" {
		t.Errorf("source = %q, want keyboard", got)
	}
}

// pressOnce reports an immediate keypress.
type pressOnce struct{}

func (pressOnce) WaitForKey(ctx context.Context) error { return nil }
func (pressOnce) Close() error                         { return nil }

func TestEnsembleFirstDetectorWins(t *testing.T) {
	sess := session.New("sys", 0)

	fast := &scriptedDetector{name: "fast", delay: 5 * time.Millisecond}
	slow := &scriptedDetector{name: "slow", delay: 500 * time.Millisecond}
	e := New([]Detector{fast, slow})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	e.Watch(ctx, sess)
	elapsed := time.Since(start)

	if got := sess.Signal().Source(); got != "fast" {
		t.Errorf("source = %q, want fast", got)
	}
	// The slow detector must have been cancelled, not waited for.
	if elapsed >= 400*time.Millisecond {
		t.Errorf("Watch took %v; losers were not cancelled promptly", elapsed)
	}
}

func TestEnsembleStopsWhenContextEnds(t *testing.T) {
	sess := session.New("sys", 0)
	blocker := &scriptedDetector{name: "blocker", delay: time.Hour}
	e := New([]Detector{blocker})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Watch(ctx, sess)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop when playback context ended")
	}
	if sess.Signal().Raised() {
		t.Fatal("nothing should have been raised")
	}
}

// scriptedDetector raises after a delay unless cancelled first.
type scriptedDetector struct {
	name  string
	delay time.Duration
}

func (d *scriptedDetector) Name() string { return d.name }

func (d *scriptedDetector) Run(ctx context.Context, sess *session.Session) error {
	select {
	case <-time.After(d.delay):
		sess.Signal().Raise(d.name)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
