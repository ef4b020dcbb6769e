// Package capture defines the frame source contract and picks a concrete
// source (video file or camera device) for a session mode.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vipers-surveillance/vipers/internal/logger"
	"github.com/vipers-surveillance/vipers/internal/vision"
	"github.com/vipers-surveillance/vipers/pkg/types"
)

var (
	// ErrSourceUnavailable means the source could not be opened: the file is
	// missing or the device is busy, missing or disabled.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrEndOfStream means a source has no more frames. It is the normal end
	// of a finite source, not a failure.
	ErrEndOfStream = errors.New("end of stream")
	// ErrLiveDisabled is returned when live mode is switched off in the
	// configuration. It wraps ErrSourceUnavailable.
	ErrLiveDisabled = fmt.Errorf("%w: live mode is unavailable in this deployment", ErrSourceUnavailable)
)

// Source yields frames until it returns ErrEndOfStream.
type Source interface {
	Next() (*types.Frame, error)
	Close() error
}

// FrameCounter is implemented by finite sources that know their length.
type FrameCounter interface {
	FrameCount() int
}

// Opener opens a source for a session mode.
type Opener interface {
	Open(ctx context.Context, mode types.Mode) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, mode types.Mode) (Source, error)

// Open calls f(ctx, mode).
func (f OpenerFunc) Open(ctx context.Context, mode types.Mode) (Source, error) {
	return f(ctx, mode)
}

// Selector chooses between the playback file and the camera device.
type Selector struct {
	VideoPath   string
	Device      int
	LiveEnabled bool
	MaxWidth    int

	OpenFile   func(path string) (Source, error)
	OpenDevice func(id int) (Source, error)
}

// Open implements Opener. Playback requires the video file to exist.
func (s *Selector) Open(ctx context.Context, mode types.Mode) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		src Source
		err error
	)
	switch mode {
	case types.ModePlayback:
		info, statErr := os.Stat(s.VideoPath)
		if statErr != nil {
			return nil, fmt.Errorf("%w: video file not found: %s", ErrSourceUnavailable, s.VideoPath)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: video path is a directory: %s", ErrSourceUnavailable, s.VideoPath)
		}
		if s.OpenFile == nil {
			return nil, fmt.Errorf("%w: no file backend configured", ErrSourceUnavailable)
		}
		logger.Debug("Capture", "Opening video file %s", s.VideoPath)
		src, err = s.OpenFile(s.VideoPath)
	case types.ModeLive:
		if !s.LiveEnabled {
			return nil, ErrLiveDisabled
		}
		if s.OpenDevice == nil {
			return nil, fmt.Errorf("%w: no device backend configured", ErrSourceUnavailable)
		}
		logger.Debug("Capture", "Opening camera device %d", s.Device)
		src, err = s.OpenDevice(s.Device)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrSourceUnavailable, mode)
	}
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	if s.MaxWidth > 0 {
		src = Resized(src, s.MaxWidth)
	}
	return src, nil
}

// Resized wraps src so every frame is at most maxWidth pixels wide.
func Resized(src Source, maxWidth int) Source {
	return &resized{Source: src, maxWidth: maxWidth}
}

type resized struct {
	Source
	maxWidth int
}

func (r *resized) Next() (*types.Frame, error) {
	frame, err := r.Source.Next()
	if err != nil {
		return nil, err
	}
	frame.Image = vision.Resize(frame.Image, r.maxWidth)
	return frame, nil
}

// FrameCount forwards to the wrapped source when it knows its length.
func (r *resized) FrameCount() int {
	if fc, ok := r.Source.(FrameCounter); ok {
		return fc.FrameCount()
	}
	return 0
}
