// Package session owns the single active detection loop and the play/pause
// state the dashboard toggles.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vipers-surveillance/vipers/internal/capture"
	"github.com/vipers-surveillance/vipers/internal/detectloop"
	"github.com/vipers-surveillance/vipers/internal/logger"
	"github.com/vipers-surveillance/vipers/internal/vision"
	"github.com/vipers-surveillance/vipers/pkg/types"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("session controller closed")

// Deps are the collaborators shared by every session.
type Deps struct {
	Opener   capture.Opener
	Detector detectloop.Detector
	Log      detectloop.Appender
	Sink     detectloop.Sink
	Observer detectloop.Observer
	Style    vision.Style

	// OnFinish, if set, is called after every session ends, including
	// sessions whose source failed to open.
	OnFinish func(mode types.Mode, sum detectloop.Summary, err error)
}

// Status is a point-in-time view of the controller.
type Status struct {
	Mode          types.Mode `json:"mode"`
	State         string     `json:"state"`
	IsPlaying     bool       `json:"is_playing"`
	DetectedToday bool       `json:"detected_today"`
	Frames        int        `json:"frames"`
	Detections    int        `json:"detections"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	LastReason    string     `json:"last_stop_reason,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Controller runs at most one detection session at a time.
type Controller struct {
	deps Deps
	base context.Context

	mu        sync.Mutex
	state     detectloop.LoopState
	mode      types.Mode
	active    bool
	closed    bool
	stop      *detectloop.StopToken
	cancel    context.CancelFunc
	done      chan struct{}
	frames    int
	hits      int
	startedAt time.Time
	lastSum   detectloop.Summary
	lastErr   error
}

// NewController returns an idle controller in playback mode. Sessions run
// under ctx; cancelling it stops the active session.
func NewController(ctx context.Context, deps Deps) *Controller {
	return &Controller{
		deps: deps,
		base: ctx,
		mode: types.ModePlayback,
	}
}

// Start begins a session in mode. Opening the source happens before Start
// returns: a source that cannot be opened is returned as an error wrapping
// capture.ErrSourceUnavailable and the controller stays idle. A running
// session of the other mode is stopped first; starting the mode that is
// already running does nothing.
func (c *Controller) Start(mode types.Mode) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.active && c.mode == mode {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.active {
		// Another caller started a session while we were stopping.
		c.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(c.base)
	stop := detectloop.NewStopToken()
	done := make(chan struct{})
	running := make(chan struct{})

	c.mode = mode
	c.active = true
	c.stop = stop
	c.cancel = cancel
	c.done = done
	c.frames = 0
	c.hits = 0
	c.lastErr = nil
	c.state.IsPlaying = true
	c.startedAt = time.Now()
	st := c.state
	c.mu.Unlock()

	sess := detectloop.Session{
		Mode:     mode,
		Opener:   c.deps.Opener,
		Detector: c.deps.Detector,
		Log:      c.deps.Log,
		Sink:     c.deps.Sink,
		Stop:     stop,
		Observer: detectloop.Observers(&tracker{c: c, running: running}, c.deps.Observer),
		Style:    c.deps.Style,
	}

	var runErr error
	go func() {
		defer close(done)
		defer cancel()
		final, sum, err := detectloop.Run(ctx, st, sess)
		c.finish(final, sum, err)
		runErr = err
		if c.deps.OnFinish != nil {
			c.deps.OnFinish(mode, sum, err)
		}
	}()

	select {
	case <-running:
		logger.Info("Session", "%s session running", mode)
		return nil
	case <-done:
		return runErr
	}
}

// Stop raises the stop signal and waits for the loop to finish. It returns
// immediately when nothing is running.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.active {
		c.state.IsPlaying = false
		c.mu.Unlock()
		return
	}
	stop, done := c.stop, c.done
	c.mu.Unlock()

	stop.Stop()
	<-done
}

// Toggle is the playback play/pause control. While playing it stops the
// session; while paused it starts a new playback session from the start of
// the video.
func (c *Controller) Toggle() error {
	c.mu.Lock()
	playing := c.active && c.mode == types.ModePlayback
	c.mu.Unlock()

	if playing {
		c.Stop()
		return nil
	}
	return c.Start(types.ModePlayback)
}

// Wait blocks until the active session (if any) ends or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	active := c.active
	c.mu.Unlock()
	if !active || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the active session and refuses new ones.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Stop()
	return nil
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Mode:          c.mode,
		State:         c.state.State.String(),
		IsPlaying:     c.state.IsPlaying,
		DetectedToday: c.state.DetectedToday,
		Frames:        c.frames,
		Detections:    c.hits,
	}
	if c.active {
		started := c.startedAt
		st.StartedAt = &started
	}
	if c.lastSum.Reason != detectloop.ReasonNone {
		st.LastReason = c.lastSum.Reason.String()
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Summary returns the summary of the last finished session.
func (c *Controller) Summary() detectloop.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSum
}

func (c *Controller) finish(final detectloop.LoopState, sum detectloop.Summary, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = final
	c.active = false
	c.lastSum = sum
	c.lastErr = err
	c.stop = nil
	c.cancel = nil
	if err != nil {
		logger.Warn("Session", "%s session did not start: %v", c.mode, err)
	}
}

// tracker mirrors loop progress into the controller.
type tracker struct {
	c       *Controller
	running chan struct{}
	once    sync.Once
}

func (t *tracker) StateChanged(mode types.Mode, state detectloop.State) {
	t.c.mu.Lock()
	t.c.state.State = state
	if state == detectloop.Running {
		t.c.state.DetectedToday = false
	}
	t.c.mu.Unlock()
	if state == detectloop.Running {
		t.once.Do(func() { close(t.running) })
	}
}

func (t *tracker) FrameProcessed(r detectloop.FrameReport) {
	t.c.mu.Lock()
	t.c.frames++
	t.c.hits += len(r.Detections)
	if r.Logged {
		t.c.state.DetectedToday = true
	}
	t.c.mu.Unlock()
}
