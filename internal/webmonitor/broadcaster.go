package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vipers-surveillance/vipers/internal/logger"
	"github.com/vipers-surveillance/vipers/internal/metrics"
	"github.com/vipers-surveillance/vipers/internal/vision"
	"github.com/vipers-surveillance/vipers/pkg/types"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// FrameRecorder receives encoded frames while a recording is active.
type FrameRecorder interface {
	SendFrame(jpeg []byte) bool
	IsRecording() bool
}

// FrameBroadcaster is the display sink: it encodes each rendered frame once
// and fans it out to every MJPEG client.
type FrameBroadcaster struct {
	mu       sync.Mutex
	clients  map[int]chan []byte
	nextID   int
	latest   []byte
	quality  int
	recorder FrameRecorder
	metrics  *metrics.Metrics
	stopped  bool
}

// NewFrameBroadcaster creates a broadcaster. recorder and m may be nil.
func NewFrameBroadcaster(quality int, recorder FrameRecorder, m *metrics.Metrics) *FrameBroadcaster {
	return &FrameBroadcaster{
		clients:  make(map[int]chan []byte),
		quality:  quality,
		recorder: recorder,
		metrics:  m,
	}
}

// Subscribe adds a new client and returns a channel for receiving frames.
// The most recent frame, if any, is queued immediately.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := fb.nextID
	fb.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	if fb.stopped {
		close(ch)
		return id, ch
	}
	if fb.latest != nil {
		ch <- fb.latest
	}
	fb.clients[id] = ch
	if fb.metrics != nil {
		fb.metrics.StreamClients.Add(1)
	}

	logger.Debug("FrameBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		if fb.metrics != nil {
			fb.metrics.StreamClients.Add(-1)
		}
		logger.Debug("FrameBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(fb.clients))
	}
}

// Render implements detectloop.Sink. The new frame replaces the previous one
// for every client; clients that have fallen behind skip it.
func (fb *FrameBroadcaster) Render(frame *types.Frame) {
	if frame == nil || frame.Image == nil {
		return
	}
	data, err := vision.EncodeJPEG(frame.Image, fb.quality)
	if err != nil {
		if fb.metrics != nil {
			fb.metrics.EncodeErrors.Add(1)
		}
		logger.Warn("FrameBroadcaster", "JPEG encode failed for frame %d: %v", frame.Number, err)
		return
	}

	if fb.recorder != nil && fb.recorder.IsRecording() {
		if !fb.recorder.SendFrame(data) && fb.metrics != nil {
			fb.metrics.RecorderDrops.Add(1)
		}
	}

	fb.mu.Lock()
	fb.latest = data
	fb.mu.Unlock()
	fb.broadcast(data)
}

// Latest returns the most recently rendered JPEG, or nil.
func (fb *FrameBroadcaster) Latest() []byte {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.latest
}

// Clients returns the number of connected clients.
func (fb *FrameBroadcaster) Clients() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.clients)
}

// Stop disconnects every client.
func (fb *FrameBroadcaster) Stop() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.stopped {
		return
	}
	fb.stopped = true
	for id, ch := range fb.clients {
		close(ch)
		delete(fb.clients, id)
	}
	if fb.metrics != nil {
		fb.metrics.StreamClients.Store(0)
	}
}

func (fb *FrameBroadcaster) broadcast(data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for _, ch := range fb.clients {
		select {
		case ch <- data:
			if fb.metrics != nil {
				fb.metrics.StreamFramesSent.Add(1)
			}
		default:
			// Client too slow, skip this frame for this client
			if fb.metrics != nil {
				fb.metrics.StreamFramesDrops.Add(1)
			}
		}
	}
}

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // google.protobuf.Struct, base64 encoded for SSE
}

// serializeEvent encodes v as JSON and as a base64 protobuf Struct with the
// same field names.
func serializeEvent(v any) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("event is not a JSON object: %w", err)
	}
	pbStruct, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("protobuf struct: %w", err)
	}
	pbData, err := proto.Marshal(pbStruct)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal: %w", err)
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// eventHub fans pre-serialized events out to SSE clients.
type eventHub struct {
	name    string
	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
	stopped bool
}

func newEventHub(name string) *eventHub {
	return &eventHub{name: name, clients: make(map[int]chan *SerializedEvent)}
}

// Subscribe adds a new client and returns a channel for receiving events.
func (h *eventHub) Subscribe() (int, <-chan *SerializedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan *SerializedEvent, 2) // Buffer 2 events to avoid blocking
	if h.stopped {
		close(ch)
		return id, ch
	}
	h.clients[id] = ch

	logger.Debug(h.name, "Client #%d subscribed (total clients: %d)", id, len(h.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (h *eventHub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
		logger.Debug(h.name, "Client #%d unsubscribed (remaining clients: %d)", id, len(h.clients))
	}
}

func (h *eventHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *eventHub) broadcast(event *SerializedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
			// Client too slow, skip this event for this client
		}
	}
}

func (h *eventHub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
}

// DetectionBroadcaster fans detection events out to SSE clients.
type DetectionBroadcaster struct {
	*eventHub
}

// NewDetectionBroadcaster creates a broadcaster for detection events.
func NewDetectionBroadcaster() *DetectionBroadcaster {
	return &DetectionBroadcaster{eventHub: newEventHub("DetectionBroadcaster")}
}

// Publish serializes the event once and sends it to every client.
func (db *DetectionBroadcaster) Publish(event DetectionEvent) {
	if db.clientCount() == 0 {
		return
	}
	serialized, err := serializeEvent(event)
	if err != nil {
		logger.Error("DetectionBroadcaster", "Serialize error: %v", err)
		return
	}
	db.broadcast(serialized)
}

// Stop disconnects every client.
func (db *DetectionBroadcaster) Stop() {
	db.stop()
}

// StatusBroadcaster pushes status snapshots to SSE clients on a fixed
// interval and whenever Trigger is called.
type StatusBroadcaster struct {
	*eventHub
	interval time.Duration
	snapshot func() any
	trigger  chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewStatusBroadcaster creates a broadcaster for status events.
func NewStatusBroadcaster(interval time.Duration, snapshot func() any) *StatusBroadcaster {
	return &StatusBroadcaster{
		eventHub: newEventHub("StatusBroadcaster"),
		interval: interval,
		snapshot: snapshot,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start begins the status event loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Trigger requests an immediate status push. It never blocks.
func (sb *StatusBroadcaster) Trigger() {
	select {
	case sb.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the broadcaster and disconnects every client.
func (sb *StatusBroadcaster) Stop() {
	sb.once.Do(func() { close(sb.done) })
	sb.stop()
}

func (sb *StatusBroadcaster) run() {
	logger.Info("StatusBroadcaster", "Starting status event broadcaster (interval=%v)...", sb.interval)
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.done:
			return
		case <-ticker.C:
		case <-sb.trigger:
		}

		if sb.clientCount() == 0 {
			continue
		}
		event, err := serializeEvent(sb.snapshot())
		if err != nil {
			logger.Error("StatusBroadcaster", "Serialize error: %v", err)
			continue
		}
		sb.broadcast(event)
	}
}
