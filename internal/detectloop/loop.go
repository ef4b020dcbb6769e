// Package detectloop runs the per-frame detection session: read a frame,
// classify it, draw the hits, log the first detection of the session and
// hand the annotated frame to the display sink.
package detectloop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/vipers-surveillance/vipers/internal/capture"
	"github.com/vipers-surveillance/vipers/internal/logger"
	"github.com/vipers-surveillance/vipers/internal/vision"
	"github.com/vipers-surveillance/vipers/pkg/types"
)

// Detector classifies an intensity frame.
type Detector interface {
	Detect(gray *image.Gray, kind types.Kind) []types.Detection
}

// Appender is the write side of the event log.
type Appender interface {
	Append(message string) error
}

// Sink displays annotated frames. Each call replaces the previous frame.
type Sink interface {
	Render(frame *types.Frame)
}

// FrameReport describes one processed frame.
type FrameReport struct {
	Mode       types.Mode
	Frame      uint64
	Timestamp  time.Time
	Width      int
	Height     int
	Detections []types.Detection
	Logged     bool  // This frame wrote the session's detection entry
	LogErr     error // The detection entry write failed on this frame
	Elapsed    time.Duration
}

// Observer is told about state changes and every processed frame. Calls are
// made synchronously from the loop.
type Observer interface {
	StateChanged(mode types.Mode, state State)
	FrameProcessed(report FrameReport)
}

// Session wires one run of the loop to its collaborators.
type Session struct {
	Mode     types.Mode
	Opener   capture.Opener
	Detector Detector
	Log      Appender
	Sink     Sink
	Stop     StopSignal
	Observer Observer
	Style    vision.Style
}

// Summary reports what a finished session did.
type Summary struct {
	Frames     int
	Detections int
	Logged     bool
	LogErrors  int
	Reason     StopReason
}

// DetectionMessage is the event log entry written for a session's first
// detection, e.g. "Body detected in playback video."
func DetectionMessage(mode types.Mode) string {
	return fmt.Sprintf("%s detected in %s %s.", mode.Target().Title(), mode, mode.SourceName())
}

// Run executes one session. It opens the source, loops until the source ends
// or the stop signal (or ctx) is raised, then closes the source.
//
// A source that cannot be opened is returned as an error wrapping
// capture.ErrSourceUnavailable and the loop never starts. Every other
// condition ends the session without an error: end of stream, a stop
// request, a failed read and failed log writes.
func Run(ctx context.Context, st LoopState, s Session) (LoopState, Summary, error) {
	var sum Summary
	if err := s.validate(); err != nil {
		return st, sum, err
	}
	obs := s.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	st.State = Idle
	st.DetectedToday = false

	src, err := s.Opener.Open(ctx, s.Mode)
	if err != nil {
		if !errors.Is(err, capture.ErrSourceUnavailable) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", capture.ErrSourceUnavailable, err)
		}
		logger.Warn("Loop", "Cannot start %s session: %v", s.Mode, err)
		st.IsPlaying = false
		return st, sum, err
	}

	st.State = Running
	obs.StateChanged(s.Mode, Running)
	logger.Info("Loop", "Session started (mode=%s, target=%s)", s.Mode, s.Mode.Target())

	kind := s.Mode.Target()
	for {
		if stopRequested(ctx, s.Stop) {
			sum.Reason = ReasonStopRequested
			break
		}

		frame, err := src.Next()
		if errors.Is(err, capture.ErrEndOfStream) {
			sum.Reason = ReasonEndOfStream
			break
		}
		if err != nil {
			logger.Warn("Loop", "Frame read failed, ending session: %v", err)
			sum.Reason = ReasonReadFailed
			break
		}

		start := time.Now()
		gray := vision.Grayscale(frame.Image)
		dets := s.Detector.Detect(gray, kind)
		vision.DrawDetections(frame.Image, dets, s.Style)
		if s.Style.Stamp {
			vision.DrawStamp(frame.Image, frame)
		}

		report := FrameReport{
			Mode:       s.Mode,
			Frame:      frame.Number,
			Timestamp:  frame.Timestamp,
			Width:      frame.Width(),
			Height:     frame.Height(),
			Detections: dets,
		}

		if len(dets) > 0 && !st.DetectedToday {
			if err := s.Log.Append(DetectionMessage(s.Mode)); err != nil {
				// The flag stays clear so the next detection retries.
				sum.LogErrors++
				report.LogErr = err
				if sum.LogErrors == 1 {
					logger.Warn("Loop", "Event log write failed, detection not recorded: %v", err)
				} else {
					logger.Debug("Loop", "Event log write failed again (%d): %v", sum.LogErrors, err)
				}
			} else {
				st.DetectedToday = true
				sum.Logged = true
				report.Logged = true
				logger.Info("Loop", "Logged %s detection on frame %d", kind, frame.Number)
			}
		}

		s.Sink.Render(frame)

		sum.Frames++
		sum.Detections += len(dets)
		report.Elapsed = time.Since(start)
		obs.FrameProcessed(report)
	}

	st.State = Stopped
	obs.StateChanged(s.Mode, Stopped)
	if err := src.Close(); err != nil {
		logger.Warn("Loop", "Closing source: %v", err)
	}
	logger.Info("Loop", "Session ended (%s): %d frames, %d detections, logged=%v",
		sum.Reason, sum.Frames, sum.Detections, sum.Logged)

	st.State = Idle
	st.IsPlaying = false
	obs.StateChanged(s.Mode, Idle)
	return st, sum, nil
}

func stopRequested(ctx context.Context, stop StopSignal) bool {
	if ctx.Err() != nil {
		return true
	}
	return stop != nil && stop.Stopped()
}

func (s Session) validate() error {
	switch {
	case s.Opener == nil:
		return errors.New("detectloop: session has no opener")
	case s.Detector == nil:
		return errors.New("detectloop: session has no detector")
	case s.Log == nil:
		return errors.New("detectloop: session has no event log")
	case s.Sink == nil:
		return errors.New("detectloop: session has no sink")
	}
	if s.Mode != types.ModeLive && s.Mode != types.ModePlayback {
		return fmt.Errorf("detectloop: invalid mode %q", s.Mode)
	}
	return nil
}

type nopObserver struct{}

func (nopObserver) StateChanged(types.Mode, State) {}
func (nopObserver) FrameProcessed(FrameReport) {}

// Observers combines several observers into one, called in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) StateChanged(mode types.Mode, state State) {
	for _, o := range m {
		o.StateChanged(mode, state)
	}
}

func (m multiObserver) FrameProcessed(report FrameReport) {
	for _, o := range m {
		o.FrameProcessed(report)
	}
}
