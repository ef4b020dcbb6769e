package webmonitor

import (
	"sync"
	"time"

	"github.com/vipers-surveillance/vipers/internal/detectloop"
	"github.com/vipers-surveillance/vipers/internal/metrics"
	"github.com/vipers-surveillance/vipers/pkg/types"
)

const historySize = 8

// Monitor observes the detection loop and keeps the statistics the status
// endpoints report. Frames with detections are forwarded to the detection
// event stream.
type Monitor struct {
	metrics    *metrics.Metrics
	detections *DetectionBroadcaster

	mu               sync.Mutex
	mode             types.Mode
	state            detectloop.State
	sessions         int
	framesProcessed  int
	sessionFrames    int
	detectionCount   int
	width, height    int
	fps              float64
	lastFrameAt      time.Time
	detectionVersion int
	latestDetection  *DetectionResult
	detectionHistory []DetectionResult
}

// NewMonitor creates a Monitor. Either argument may be nil.
func NewMonitor(m *metrics.Metrics, detections *DetectionBroadcaster) *Monitor {
	return &Monitor{
		metrics:    m,
		detections: detections,
		mode:       types.ModePlayback,
	}
}

// StateChanged implements detectloop.Observer.
func (m *Monitor) StateChanged(mode types.Mode, state detectloop.State) {
	m.mu.Lock()
	m.mode = mode
	m.state = state
	if state == detectloop.Running {
		m.sessions++
		m.sessionFrames = 0
		m.fps = 0
		m.lastFrameAt = time.Time{}
	}
	m.mu.Unlock()

	if m.metrics != nil {
		if state == detectloop.Running {
			m.metrics.SessionsStarted.Add(1)
		}
		m.metrics.SetSessionActive(state == detectloop.Running)
	}
}

// FrameProcessed implements detectloop.Observer.
func (m *Monitor) FrameProcessed(r detectloop.FrameReport) {
	now := time.Now()

	m.mu.Lock()
	m.framesProcessed++
	m.sessionFrames++
	m.detectionCount = len(r.Detections)
	m.width, m.height = r.Width, r.Height
	if !m.lastFrameAt.IsZero() {
		if dt := now.Sub(m.lastFrameAt).Seconds(); dt > 0 {
			inst := 1 / dt
			if m.fps == 0 {
				m.fps = inst
			} else {
				m.fps = 0.9*m.fps + 0.1*inst
			}
		}
	}
	m.lastFrameAt = now

	var result *DetectionResult
	if len(r.Detections) > 0 {
		m.detectionVersion++
		res := DetectionResult{
			FrameNumber:   r.Frame,
			Timestamp:     unixSeconds(r.Timestamp),
			Mode:          string(r.Mode),
			NumDetections: len(r.Detections),
			Version:       m.detectionVersion,
			Logged:        r.Logged,
			Detections:    toDetections(r.Detections),
		}
		m.latestDetection = &res
		m.detectionHistory = append([]DetectionResult{res}, m.detectionHistory...)
		if len(m.detectionHistory) > historySize {
			m.detectionHistory = m.detectionHistory[:historySize]
		}
		result = &res
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.FramesProcessed.Add(1)
		m.metrics.UpdateProcessLatency(r.Elapsed)
		if n := len(r.Detections); n > 0 {
			m.metrics.FramesWithHits.Add(1)
			m.metrics.Detections.Add(uint64(n))
		}
		if r.Logged {
			m.metrics.LogWrites.Add(1)
		}
		if r.LogErr != nil {
			m.metrics.LogErrors.Add(1)
		}
	}

	if result != nil && m.detections != nil {
		m.detections.Publish(DetectionEvent{
			FrameNumber: result.FrameNumber,
			Timestamp:   result.Timestamp,
			Mode:        result.Mode,
			Detections:  result.Detections,
		})
	}
}

// Snapshot returns the current stats, latest detection and history.
func (m *Monitor) Snapshot() (MonitorStats, *DetectionResult, []DetectionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MonitorStats{
		FramesProcessed: m.framesProcessed,
		SessionFrames:   m.sessionFrames,
		CurrentFPS:      m.fps,
		DetectionCount:  m.detectionCount,
		Sessions:        m.sessions,
		Mode:            string(m.mode),
		State:           m.state.String(),
		FrameWidth:      m.width,
		FrameHeight:     m.height,
	}
	if m.state != detectloop.Running {
		stats.CurrentFPS = 0
	}

	var latest *DetectionResult
	if m.latestDetection != nil {
		copied := *m.latestDetection
		latest = &copied
	}
	history := make([]DetectionResult, len(m.detectionHistory))
	copy(history, m.detectionHistory)
	return stats, latest, history
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		t = time.Now()
	}
	return float64(t.UnixNano()) / 1e9
}
