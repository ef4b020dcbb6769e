// Package cvsource provides OpenCV-backed frame sources for video files and
// camera devices.
package cvsource

import (
	"fmt"
	"sync"
	"time"

	"github.com/vipers-surveillance/vipers/internal/capture"
	"github.com/vipers-surveillance/vipers/internal/logger"
	"github.com/vipers-surveillance/vipers/internal/vision"
	"github.com/vipers-surveillance/vipers/pkg/types"
	"gocv.io/x/gocv"
)

// Source reads frames from a gocv.VideoCapture.
type Source struct {
	mu       sync.Mutex
	cap      *gocv.VideoCapture
	mat      gocv.Mat
	name     string
	live     bool
	frameNum uint64
	frames   int

	// Playback pacing. Zero interval means as fast as frames decode.
	interval time.Duration
	lastRead time.Time
}

// OpenFile opens a video file. With realtime set, Next paces frames at the
// file's native frame rate instead of decoding as fast as possible.
func OpenFile(path string, realtime bool) (*Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", capture.ErrSourceUnavailable, path, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: cannot decode %s", capture.ErrSourceUnavailable, path)
	}

	s := &Source{
		cap:    vc,
		mat:    gocv.NewMat(),
		name:   path,
		frames: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}
	if fps := vc.Get(gocv.VideoCaptureFPS); realtime && fps > 0 {
		s.interval = time.Duration(float64(time.Second) / fps)
	}
	logger.Info("Capture", "Opened %s (%d frames, pacing %v)", path, s.frames, s.interval)
	return s, nil
}

// OpenDevice opens a camera device by index.
func OpenDevice(id int) (*Source, error) {
	vc, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", capture.ErrSourceUnavailable, id, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d is busy or missing", capture.ErrSourceUnavailable, id)
	}
	logger.Info("Capture", "Opened camera device %d", id)
	return &Source{
		cap:  vc,
		mat:  gocv.NewMat(),
		name: fmt.Sprintf("device %d", id),
		live: true,
	}, nil
}

// Next implements capture.Source. It blocks until the next frame decodes.
func (s *Source) Next() (*types.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil, capture.ErrEndOfStream
	}

	if s.interval > 0 && !s.lastRead.IsZero() {
		if wait := s.interval - time.Since(s.lastRead); wait > 0 {
			time.Sleep(wait)
		}
	}

	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		if s.live {
			return nil, fmt.Errorf("read %s: no frame from device", s.name)
		}
		return nil, capture.ErrEndOfStream
	}
	s.lastRead = time.Now()

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame from %s: %w", s.name, err)
	}
	s.frameNum++
	return &types.Frame{
		Image:     vision.ToRGBA(img),
		Number:    s.frameNum,
		Timestamp: s.lastRead,
	}, nil
}

// FrameCount implements capture.FrameCounter. Devices report zero.
func (s *Source) FrameCount() int {
	return s.frames
}

// Close implements capture.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil
	}
	err := s.cap.Close()
	_ = s.mat.Close()
	s.cap = nil
	logger.Debug("Capture", "Closed %s after %d frames", s.name, s.frameNum)
	return err
}

// Backends returns the file and device open functions for capture.Selector.
func Backends(realtime bool) (func(string) (capture.Source, error), func(int) (capture.Source, error)) {
	openFile := func(path string) (capture.Source, error) {
		src, err := OpenFile(path, realtime)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	openDevice := func(id int) (capture.Source, error) {
		src, err := OpenDevice(id)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return openFile, openDevice
}
