package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vipers-surveillance/vipers/internal/capture"
	"github.com/vipers-surveillance/vipers/internal/detectloop"
	"github.com/vipers-surveillance/vipers/pkg/types"
)

// endless yields frames until closed, pausing briefly between them.
type endless struct {
	closed atomic.Bool
	n      uint64
}

func (s *endless) Next() (*types.Frame, error) {
	if s.closed.Load() {
		return nil, capture.ErrEndOfStream
	}
	time.Sleep(time.Millisecond)
	s.n++
	return &types.Frame{Image: image.NewRGBA(image.Rect(0, 0, 8, 8)), Number: s.n}, nil
}

func (s *endless) Close() error {
	s.closed.Store(true)
	return nil
}

type opener struct {
	mu     sync.Mutex
	opened []types.Mode
	finite int // > 0 makes playback sources finite
	fail   map[types.Mode]error
}

func (o *opener) Open(ctx context.Context, mode types.Mode) (capture.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.fail[mode]; err != nil {
		return nil, err
	}
	o.opened = append(o.opened, mode)
	if o.finite > 0 && mode == types.ModePlayback {
		imgs := make([]*image.RGBA, o.finite)
		for i := range imgs {
			imgs[i] = image.NewRGBA(image.Rect(0, 0, 8, 8))
		}
		return capture.NewImages(imgs...), nil
	}
	return &endless{}, nil
}

type nopDetector struct{ hit bool }

func (d nopDetector) Detect(_ *image.Gray, kind types.Kind) []types.Detection {
	if !d.hit {
		return nil
	}
	return []types.Detection{{Kind: kind, BBox: types.BoundingBox{W: 2, H: 2}}}
}

type memLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *memLog) Append(m string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, m)
	return nil
}

type countSink struct{ n atomic.Int64 }

func (s *countSink) Render(*types.Frame) { s.n.Add(1) }

func newController(t *testing.T, o *opener, det detectloop.Detector) (*Controller, *memLog, *countSink) {
	t.Helper()
	log := &memLog{}
	sink := &countSink{}
	c := NewController(context.Background(), Deps{Opener: o, Detector: det, Log: log, Sink: sink})
	t.Cleanup(func() { _ = c.Close() })
	return c, log, sink
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 5s")
}

func TestStartStop(t *testing.T) {
	c, _, sink := newController(t, &opener{}, nopDetector{})

	if err := c.Start(types.ModePlayback); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := c.Status()
	if !st.IsPlaying || st.State != "running" || st.Mode != types.ModePlayback {
		t.Fatalf("status after start = %+v", st)
	}
	waitFor(t, func() bool { return sink.n.Load() > 2 })

	c.Stop()
	st = c.Status()
	if st.IsPlaying || st.State != "idle" {
		t.Fatalf("status after stop = %+v", st)
	}
	if st.LastReason != detectloop.ReasonStopRequested.String() {
		t.Fatalf("last reason = %q", st.LastReason)
	}
}

func TestStartUnavailableStaysIdle(t *testing.T) {
	o := &opener{fail: map[types.Mode]error{types.ModeLive: capture.ErrLiveDisabled}}
	c, _, _ := newController(t, o, nopDetector{})

	err := c.Start(types.ModeLive)
	if !errors.Is(err, capture.ErrSourceUnavailable) {
		t.Fatalf("Start err = %v, want ErrSourceUnavailable", err)
	}
	st := c.Status()
	if st.IsPlaying || st.State != "idle" || st.LastError == "" {
		t.Fatalf("status = %+v", st)
	}
}

func TestSwitchingModesStopsPreviousSession(t *testing.T) {
	o := &opener{}
	c, _, _ := newController(t, o, nopDetector{})

	if err := c.Start(types.ModePlayback); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(types.ModePlayback); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(types.ModeLive); err != nil {
		t.Fatal(err)
	}

	o.mu.Lock()
	opened := append([]types.Mode(nil), o.opened...)
	o.mu.Unlock()
	if len(opened) != 2 || opened[0] != types.ModePlayback || opened[1] != types.ModeLive {
		t.Fatalf("opened = %v, want [playback live]", opened)
	}
	if c.Status().Mode != types.ModeLive {
		t.Fatalf("mode = %s, want live", c.Status().Mode)
	}
}

func TestToggle(t *testing.T) {
	c, _, _ := newController(t, &opener{}, nopDetector{})

	if err := c.Toggle(); err != nil {
		t.Fatalf("Toggle (play): %v", err)
	}
	if !c.Status().IsPlaying {
		t.Fatal("not playing after first toggle")
	}
	if err := c.Toggle(); err != nil {
		t.Fatalf("Toggle (pause): %v", err)
	}
	if c.Status().IsPlaying {
		t.Fatal("still playing after second toggle")
	}
}

func TestPlaybackEndReturnsToPaused(t *testing.T) {
	c, log, sink := newController(t, &opener{finite: 3}, nopDetector{hit: true})

	if err := c.Start(types.ModePlayback); err != nil {
		t.Fatal(err)
	}
	if err := c.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.Status().State == "idle" })

	st := c.Status()
	if st.IsPlaying {
		t.Fatal("still playing after the video ended")
	}
	if !st.DetectedToday || st.Frames != 3 || st.Detections != 3 {
		t.Fatalf("status = %+v", st)
	}
	if sink.n.Load() != 3 {
		t.Fatalf("rendered %d frames, want 3", sink.n.Load())
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.lines) != 1 {
		t.Fatalf("log lines = %v, want exactly one", log.lines)
	}
}

func TestCloseRefusesNewSessions(t *testing.T) {
	c, _, _ := newController(t, &opener{}, nopDetector{})
	if err := c.Start(types.ModePlayback); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(types.ModePlayback); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close err = %v, want ErrClosed", err)
	}
}

func TestOnFinishReportsFailedStart(t *testing.T) {
	o := &opener{fail: map[types.Mode]error{types.ModeLive: capture.ErrLiveDisabled}}
	var (
		mu    sync.Mutex
		modes []types.Mode
		errs  []error
	)
	c := NewController(context.Background(), Deps{
		Opener:   o,
		Detector: nopDetector{},
		Log:      &memLog{},
		Sink:     &countSink{},
		OnFinish: func(mode types.Mode, _ detectloop.Summary, err error) {
			mu.Lock()
			defer mu.Unlock()
			modes = append(modes, mode)
			errs = append(errs, err)
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Start(types.ModeLive); err == nil {
		t.Fatal("Start succeeded, want error")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(modes) != 1 || modes[0] != types.ModeLive {
		t.Fatalf("OnFinish modes = %v", modes)
	}
	if !errors.Is(errs[0], capture.ErrSourceUnavailable) {
		t.Fatalf("OnFinish err = %v", errs[0])
	}
}
