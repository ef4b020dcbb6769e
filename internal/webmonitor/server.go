package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/cors"
	"go.uber.org/multierr"

	"github.com/vipers-surveillance/vipers/internal/capture"
	"github.com/vipers-surveillance/vipers/internal/detectloop"
	"github.com/vipers-surveillance/vipers/internal/eventlog"
	"github.com/vipers-surveillance/vipers/internal/logger"
	"github.com/vipers-surveillance/vipers/internal/metrics"
	"github.com/vipers-surveillance/vipers/internal/recorder"
	"github.com/vipers-surveillance/vipers/internal/session"
	"github.com/vipers-surveillance/vipers/pkg/types"
)

// Dashboard messages shown by the alert, calendar and log panels.
const (
	msgAlert        = "Detection event recently logged!"
	msgNoThreats    = "No current threats."
	msgMonitoring   = "System monitoring..."
	msgDayActivity  = "Detection recorded on this day!"
	msgDayNoneFound = "No activity recorded."
	msgNoLogs       = "No logs available."
)

// Deps are the collaborators the dashboard drives. Recorder and Metrics are
// optional.
type Deps struct {
	Opener   capture.Opener
	Detector detectloop.Detector
	EventLog *eventlog.Log
	Recorder *recorder.Recorder
	Metrics  *metrics.Metrics
}

// Server serves the dashboard endpoints and owns the session controller.
type Server struct {
	cfg  Config
	deps Deps

	monitor              *Monitor
	broadcaster          *FrameBroadcaster
	detectionBroadcaster *DetectionBroadcaster
	statusBroadcaster    *StatusBroadcaster
	session              *session.Controller

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer returns a configured dashboard server. No session is started.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Opener == nil || deps.Detector == nil || deps.EventLog == nil {
		return nil, errors.New("webmonitor: opener, detector and event log are required")
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultConfig().JPEGQuality
	}
	if cfg.DetectionKeyword == "" {
		cfg.DetectionKeyword = DefaultConfig().DetectionKeyword
	}

	var rec FrameRecorder
	if deps.Recorder != nil {
		rec = deps.Recorder
	}

	s := &Server{cfg: cfg, deps: deps}
	s.detectionBroadcaster = NewDetectionBroadcaster()
	s.monitor = NewMonitor(deps.Metrics, s.detectionBroadcaster)
	s.broadcaster = NewFrameBroadcaster(cfg.JPEGQuality, rec, deps.Metrics)
	s.statusBroadcaster = NewStatusBroadcaster(cfg.StatusInterval, func() any { return s.statusPayload() })

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.session = session.NewController(ctx, session.Deps{
		Opener:   deps.Opener,
		Detector: deps.Detector,
		Log:      deps.EventLog,
		Sink:     s.broadcaster,
		Observer: s.monitor,
		Style:    cfg.Style,
		OnFinish: s.sessionFinished,
	})
	return s, nil
}

// Session exposes the session controller.
func (s *Server) Session() *session.Controller {
	return s.session
}

// Start launches the status push loop and the event log watcher. Both stop
// when ctx is done or the server is closed.
func (s *Server) Start(ctx context.Context) {
	s.statusBroadcaster.Start()
	go func() {
		<-ctx.Done()
		s.statusBroadcaster.Stop()
	}()
	go func() {
		if err := s.deps.EventLog.Watch(ctx, s.statusBroadcaster.Trigger); err != nil {
			logger.Warn("WebMonitor", "Event log watch disabled: %v", err)
		}
	}()
}

// Close stops the active session, the recorder and every stream.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = multierr.Append(err, s.session.Close())
		s.cancel()
		if s.deps.Recorder != nil {
			err = multierr.Append(err, s.deps.Recorder.Close())
		}
		s.statusBroadcaster.Stop()
		s.detectionBroadcaster.Stop()
		s.broadcaster.Stop()
	})
	return err
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", newAssetHandler(s.cfg.AssetsDir)))
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/status/stream", s.handleStatusStream)
	mux.HandleFunc("GET /api/detections/stream", s.handleDetectionsStream)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	mux.HandleFunc("POST /api/session/stop", s.handleSessionStop)
	mux.HandleFunc("POST /api/session/toggle", s.handleSessionToggle)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/logs/dates", s.handleLogDates)
	mux.HandleFunc("GET /api/logs/day", s.handleLogDay)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/camera_status", s.handleCameraStatus)
	mux.HandleFunc("POST /api/recording/start", s.handleRecordingStart)
	mux.HandleFunc("POST /api/recording/stop", s.handleRecordingStop)
	mux.HandleFunc("GET /api/recording/status", s.handleRecordingStatus)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	if len(s.cfg.AllowedOrigins) == 0 {
		return mux
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Accept"},
	}).Handler(mux)
}

func (s *Server) sessionFinished(mode types.Mode, sum detectloop.Summary, err error) {
	if s.deps.Metrics != nil {
		if err != nil {
			s.deps.Metrics.SessionsFailed.Add(1)
		}
		if sum.Reason == detectloop.ReasonReadFailed {
			s.deps.Metrics.ReadErrors.Add(1)
		}
	}
	if err == nil {
		logger.Info("WebMonitor", "%s session ended (%s): %d frames, %d detections, logged=%v",
			mode, sum.Reason, sum.Frames, sum.Detections, sum.Logged)
	}
	s.statusBroadcaster.Trigger()
}

// StatusPayload is the body of /api/status and each status stream event.
type StatusPayload struct {
	Monitor          MonitorStats              `json:"monitor"`
	Session          session.Status            `json:"session"`
	Log              LogStatus                 `json:"log"`
	Recording        *recorder.RecordingStatus `json:"recording,omitempty"`
	LatestDetection  *DetectionResult          `json:"latest_detection"`
	DetectionHistory []DetectionResult         `json:"detection_history"`
	Timestamp        float64                   `json:"timestamp"`
}

func (s *Server) statusPayload() StatusPayload {
	stats, latest, history := s.monitor.Snapshot()
	payload := StatusPayload{
		Monitor:          stats,
		Session:          s.session.Status(),
		Log:              s.logStatus(),
		LatestDetection:  latest,
		DetectionHistory: history,
		Timestamp:        unixSeconds(time.Now()),
	}
	if s.deps.Recorder != nil {
		rec := s.recordingStatus()
		payload.Recording = &rec
	}
	return payload
}

func (s *Server) logStatus() LogStatus {
	st := LogStatus{Path: s.deps.EventLog.Path(), Dates: []string{}}
	if _, err := os.Stat(st.Path); err == nil {
		st.Exists = true
	}
	if dates, err := s.deps.EventLog.DatesWithEntries(); err != nil {
		logger.Warn("WebMonitor", "Reading event log dates: %v", err)
	} else if dates != nil {
		st.Dates = dates
	}
	st.Alert = s.alertStatus(st.Exists)
	return st
}

func (s *Server) alertStatus(exists bool) AlertStatus {
	if !exists {
		return AlertStatus{Message: msgMonitoring}
	}
	last, err := s.deps.EventLog.LastLine()
	if err != nil {
		logger.Warn("WebMonitor", "Reading event log: %v", err)
		return AlertStatus{Message: msgMonitoring}
	}
	hit, _ := s.deps.EventLog.LastLineMentionsDetection(s.cfg.DetectionKeyword)
	if hit {
		return AlertStatus{Alert: true, Message: msgAlert, LastLine: last}
	}
	return AlertStatus{Message: msgNoThreats, LastLine: last}
}

func (s *Server) recordingStatus() recorder.RecordingStatus {
	st := s.deps.Recorder.GetStatus()
	if s.deps.Metrics != nil {
		s.deps.Metrics.SetRecording(st.Recording, st.FrameCount, st.BytesWritten)
	}
	return st
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)
	streamMJPEGFromChannel(w, r, frameCh)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.statusBroadcaster.Subscribe()
	defer s.statusBroadcaster.Unsubscribe(id)

	initial, err := serializeEvent(s.statusPayload())
	if err != nil {
		logger.Error("WebMonitor", "Serialize status: %v", err)
		initial = nil
	}
	streamEventsFromChannel(w, r, eventCh, initial)
}

func (s *Server) handleDetectionsStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.detectionBroadcaster.Subscribe()
	defer s.detectionBroadcaster.Unsubscribe(id)
	streamEventsFromChannel(w, r, eventCh, nil)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.Status())
}

type startRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid request body"}, http.StatusBadRequest)
		return
	}
	mode := types.ModePlayback
	if req.Mode != "" {
		m, err := types.ParseMode(req.Mode)
		if err != nil {
			writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
			return
		}
		mode = m
	}

	if err := s.session.Start(mode); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.statusBroadcaster.Trigger()
	writeJSON(w, s.session.Status())
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	s.session.Stop()
	s.statusBroadcaster.Trigger()
	writeJSON(w, s.session.Status())
}

func (s *Server) handleSessionToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Toggle(); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.statusBroadcaster.Trigger()
	writeJSON(w, s.session.Status())
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrSourceUnavailable):
		writeJSONWithStatus(w, map[string]any{"error": err.Error(), "warning": true}, http.StatusConflict)
	case errors.Is(err, session.ErrClosed):
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusServiceUnavailable)
	default:
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	data, ok, err := s.deps.EventLog.Contents()
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(msgNoLogs))
		return
	}
	_, _ = w.Write(data)
}

func (s *Server) handleLogDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.deps.EventLog.DatesWithEntries()
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, map[string]any{"dates": dates})
}

func (s *Server) handleLogDay(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		raw = time.Now().Format(eventlog.DateLayout)
	}
	day, err := time.ParseInLocation(eventlog.DateLayout, raw, time.Local)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": fmt.Sprintf("invalid date %q, want YYYY-MM-DD", raw)}, http.StatusBadRequest)
		return
	}
	has, err := s.deps.EventLog.HasEntriesOn(day)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	message := msgDayNoneFound
	if has {
		message = msgDayActivity
	}
	writeJSON(w, map[string]any{
		"date":         raw,
		"has_activity": has,
		"message":      message,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	_, err := os.Stat(s.deps.EventLog.Path())
	writeJSON(w, s.alertStatus(err == nil))
}

func (s *Server) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	stats, _, _ := s.monitor.Snapshot()

	playback := CameraStatus{
		Name:   "Camera 01",
		Mode:   string(types.ModePlayback),
		Source: s.cfg.VideoPath,
	}
	if info, err := os.Stat(s.cfg.VideoPath); err == nil && !info.IsDir() {
		playback.Online = true
		playback.Detail = "Online"
	} else {
		playback.Detail = "Video file not found"
	}

	live := CameraStatus{
		Name:   "Camera 02",
		Mode:   string(types.ModeLive),
		Source: fmt.Sprintf("device %d", s.cfg.CameraDevice),
		Online: s.cfg.LiveEnabled,
		Detail: "Online",
	}
	if !s.cfg.LiveEnabled {
		live.Detail = "Live mode is disabled"
	}

	writeJSON(w, map[string]any{
		"cameras":      []CameraStatus{playback, live},
		"live_enabled": s.cfg.LiveEnabled,
		"monitor":      stats,
	})
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recording is not configured"}, http.StatusServiceUnavailable)
		return
	}

	filename, err := s.deps.Recorder.Start()
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	s.recordingStatus()

	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       filename,
		"started_at": unixSeconds(time.Now()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recording is not configured"}, http.StatusServiceUnavailable)
		return
	}

	filename, err := s.deps.Recorder.Stop()
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       filename,
		"stats":      s.recordingStatus(),
		"stopped_at": unixSeconds(time.Now()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recording is not configured"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.recordingStatus())
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
