package webmonitor

import "github.com/vipers-surveillance/vipers/pkg/types"

// Detection is the JSON shape of one bounding box.
type Detection struct {
	ClassName string            `json:"class_name"`
	BBox      types.BoundingBox `json:"bbox"`
}

// DetectionResult is a frame that had at least one detection.
type DetectionResult struct {
	FrameNumber   uint64      `json:"frame_number"`
	Timestamp     float64     `json:"timestamp"`
	Mode          string      `json:"mode"`
	NumDetections int         `json:"num_detections"`
	Version       int         `json:"version"`
	Logged        bool        `json:"logged"`
	Detections    []Detection `json:"detections"`
}

// DetectionEvent is the payload for /api/detections/stream.
type DetectionEvent struct {
	FrameNumber uint64      `json:"frame_number"`
	Timestamp   float64     `json:"timestamp"`
	Mode        string      `json:"mode"`
	Detections  []Detection `json:"detections"`
}

// MonitorStats summarizes loop activity since the server started.
type MonitorStats struct {
	FramesProcessed int     `json:"frames_processed"`
	SessionFrames   int     `json:"session_frames"`
	CurrentFPS      float64 `json:"current_fps"`
	DetectionCount  int     `json:"detection_count"`
	Sessions        int     `json:"sessions"`
	Mode            string  `json:"mode"`
	State           string  `json:"state"`
	FrameWidth      int     `json:"frame_width"`
	FrameHeight     int     `json:"frame_height"`
}

// AlertStatus is the last-line alert check.
type AlertStatus struct {
	Alert    bool   `json:"alert"`
	Message  string `json:"message"`
	LastLine string `json:"last_line,omitempty"`
}

// LogStatus describes the event log for the status payload.
type LogStatus struct {
	Path   string      `json:"path"`
	Exists bool        `json:"exists"`
	Dates  []string    `json:"dates"`
	Alert  AlertStatus `json:"alert"`
}

// CameraStatus describes one configured source.
type CameraStatus struct {
	Name   string `json:"name"`
	Mode   string `json:"mode"`
	Source string `json:"source"`
	Online bool   `json:"online"`
	Detail string `json:"detail"`
}

func toDetections(dets []types.Detection) []Detection {
	out := make([]Detection, len(dets))
	for i, d := range dets {
		out[i] = Detection{ClassName: string(d.Kind), BBox: d.BBox}
	}
	return out
}
