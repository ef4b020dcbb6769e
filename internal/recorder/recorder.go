package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vipers-surveillance/vipers/internal/logger"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// Recorder records annotated JPEG frames to a Motion-JPEG file (frames
// written back to back, playable by ffmpeg/VLC as "mjpeg").
type Recorder struct {
	mu           sync.RWMutex
	file         *os.File
	filename     string
	basePath     string
	recording    bool
	frameCount   uint64
	bytesWritten uint64
	writeErrors  uint64
	startTime    time.Time
	stopTime     time.Time
	frameChan    chan []byte
	wg           sync.WaitGroup
	now          func() time.Time
}

// NewRecorder creates a new recorder writing into basePath
func NewRecorder(basePath string) *Recorder {
	return &Recorder{
		basePath:  basePath,
		frameChan: make(chan []byte, 60), // About 2 seconds at 30fps
		now:       time.Now,
	}
}

// Start starts recording to a new timestamped file and returns its name
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return "", ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}

	startTime := r.now()
	filename := fmt.Sprintf("recording_%s.mjpeg", startTime.Format("20060102_150405"))
	file, err := os.Create(filepath.Join(r.basePath, filename))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	r.file = file
	r.filename = filename
	r.recording = true
	r.frameCount = 0
	r.bytesWritten = 0
	r.writeErrors = 0
	r.startTime = startTime
	r.stopTime = time.Time{}

	r.wg.Add(1)
	go r.writeFrames()

	logger.Info("Recorder", "Recording started: %s", filename)
	return filename, nil
}

// Stop stops recording and returns the finished file name
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()

	if !r.recording {
		r.mu.Unlock()
		return "", ErrNotRecording
	}

	r.recording = false
	r.stopTime = r.now()
	r.mu.Unlock()

	// Wait for write goroutine to drain and finish
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		if err := r.file.Sync(); err != nil {
			return r.filename, fmt.Errorf("failed to sync file: %w", err)
		}
		if err := r.file.Close(); err != nil {
			return r.filename, fmt.Errorf("failed to close file: %w", err)
		}
		r.file = nil
	}

	logger.Info("Recorder", "Recording stopped: %s (%d frames, %d bytes)", r.filename, r.frameCount, r.bytesWritten)
	return r.filename, nil
}

// SendFrame queues a JPEG frame (non-blocking). It returns false when not
// recording or when the queue is full and the frame was dropped.
func (r *Recorder) SendFrame(jpeg []byte) bool {
	r.mu.RLock()
	recording := r.recording
	r.mu.RUnlock()

	if !recording || len(jpeg) == 0 {
		return false
	}

	select {
	case r.frameChan <- jpeg:
		return true
	default:
		return false
	}
}

func (r *Recorder) writeFrames() {
	defer r.wg.Done()

	for {
		r.mu.RLock()
		recording := r.recording
		r.mu.RUnlock()

		if !recording {
			// Drain remaining frames
			for len(r.frameChan) > 0 {
				r.writeFrame(<-r.frameChan)
			}
			return
		}

		select {
		case frame := <-r.frameChan:
			r.writeFrame(frame)
		case <-time.After(100 * time.Millisecond):
			// Check recording state periodically
		}
	}
}

func (r *Recorder) writeFrame(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return
	}

	n, err := r.file.Write(frame)
	r.bytesWritten += uint64(n)
	if err != nil {
		r.writeErrors++
		if r.writeErrors == 1 {
			logger.Warn("Recorder", "Write to %s failed: %v", r.filename, err)
		}
		return
	}
	r.frameCount++
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// GetStatus returns the current recording status
func (r *Recorder) GetStatus() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	switch {
	case r.recording:
		duration = r.now().Sub(r.startTime)
	case !r.stopTime.IsZero():
		duration = r.stopTime.Sub(r.startTime)
	}

	return RecordingStatus{
		Recording:    r.recording,
		Filename:     r.filename,
		FrameCount:   r.frameCount,
		BytesWritten: r.bytesWritten,
		DurationMs:   duration.Milliseconds(),
		StartTime:    r.startTime,
	}
}

// Close stops any recording in progress
func (r *Recorder) Close() error {
	if r.IsRecording() {
		_, err := r.Stop()
		return err
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording    bool      `json:"recording"`
	Filename     string    `json:"filename"`
	FrameCount   uint64    `json:"frame_count"`
	BytesWritten uint64    `json:"bytes_written"`
	DurationMs   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
}
