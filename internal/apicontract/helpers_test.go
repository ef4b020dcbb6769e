package apicontract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

const (
	defaultBaseURL        = "http://localhost:8080"
	defaultRequestTimeout = 5 * time.Second
)

type contractClient struct {
	baseURL string
	client  *http.Client
}

func newContractClient(t *testing.T) *contractClient {
	t.Helper()
	baseURL := os.Getenv("VIPERS_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	client := &http.Client{Timeout: defaultRequestTimeout}

	if !isReachable(client, baseURL+"/api/status") {
		t.Skipf("dashboard not reachable at %s (set VIPERS_BASE_URL to run)", baseURL)
	}

	return &contractClient{
		baseURL: baseURL,
		client:  client,
	}
}

func isReachable(client *http.Client, url string) bool {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func (c *contractClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	return c.do(t, http.MethodGet, path, nil)
}

func (c *contractClient) getResponse(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func (c *contractClient) postJSON(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return c.do(t, http.MethodPost, path, data)
}

func (c *contractClient) do(t *testing.T, method, path string, body []byte) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, data
}

func readSSEEvent(url string, accept string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 256)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				idx := bytes.Index(buf, []byte("\n\n"))
				if idx < 0 {
					break
				}
				event := string(buf[:idx])
				buf = buf[idx+2:]
				// Keepalive comments carry no data.
				if strings.HasPrefix(event, ":") {
					continue
				}
				return event, resp.Header, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return "", nil, fmt.Errorf("sse stream closed before event")
			}
			return "", nil, fmt.Errorf("read sse: %w", readErr)
		}
	}
}

func sseData(t *testing.T, event string) string {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			payload = strings.TrimSpace(payload)
			if payload == "" {
				t.Fatalf("empty sse data line")
			}
			return payload
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return ""
}

func parseSSEData(t *testing.T, event string) map[string]any {
	t.Helper()
	return decodeJSONMap(t, []byte(sseData(t, event)))
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected %s to be string, got %T", field, value)
	}
	return str
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func requireBool(t *testing.T, value any, field string) bool {
	t.Helper()
	b, ok := value.(bool)
	if !ok {
		t.Fatalf("expected %s to be bool, got %T", field, value)
	}
	return b
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

func requireSlice(t *testing.T, value any, field string) []any {
	t.Helper()
	s, ok := value.([]any)
	if !ok {
		t.Fatalf("expected %s to be array, got %T", field, value)
	}
	return s
}

func assertDetectionList(t *testing.T, value any, field string) {
	t.Helper()
	detections := requireSlice(t, value, field)
	for i, raw := range detections {
		det := requireMap(t, raw, fmt.Sprintf("%s[%d]", field, i))
		class := requireString(t, det["class_name"], field+".class_name")
		if class != "face" && class != "body" {
			t.Fatalf("%s[%d].class_name = %q", field, i, class)
		}
		bbox := requireMap(t, det["bbox"], field+".bbox")
		requireNumber(t, bbox["x"], field+".bbox.x")
		requireNumber(t, bbox["y"], field+".bbox.y")
		requireNumber(t, bbox["w"], field+".bbox.w")
		requireNumber(t, bbox["h"], field+".bbox.h")
	}
}

func assertDetectionHistoryEntry(t *testing.T, payload map[string]any, field string) {
	t.Helper()
	requireNumber(t, payload["frame_number"], field+".frame_number")
	requireNumber(t, payload["timestamp"], field+".timestamp")
	requireNumber(t, payload["num_detections"], field+".num_detections")
	requireNumber(t, payload["version"], field+".version")
	requireString(t, payload["mode"], field+".mode")
	assertDetectionList(t, payload["detections"], field+".detections")
}

func assertSessionPayload(t *testing.T, payload map[string]any, field string) {
	t.Helper()
	mode := requireString(t, payload["mode"], field+".mode")
	if mode != "live" && mode != "playback" {
		t.Fatalf("%s.mode = %q", field, mode)
	}
	requireString(t, payload["state"], field+".state")
	requireBool(t, payload["is_playing"], field+".is_playing")
	requireBool(t, payload["detected_today"], field+".detected_today")
	requireNumber(t, payload["frames"], field+".frames")
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	monitor := requireMap(t, payload["monitor"], "monitor")
	requireNumber(t, monitor["frames_processed"], "monitor.frames_processed")
	requireNumber(t, monitor["current_fps"], "monitor.current_fps")
	requireNumber(t, monitor["detection_count"], "monitor.detection_count")
	requireString(t, monitor["state"], "monitor.state")

	assertSessionPayload(t, requireMap(t, payload["session"], "session"), "session")

	log := requireMap(t, payload["log"], "log")
	requireString(t, log["path"], "log.path")
	requireBool(t, log["exists"], "log.exists")
	requireSlice(t, log["dates"], "log.dates")
	alert := requireMap(t, log["alert"], "log.alert")
	requireBool(t, alert["alert"], "log.alert.alert")
	requireString(t, alert["message"], "log.alert.message")

	requireNumber(t, payload["timestamp"], "timestamp")

	if payload["latest_detection"] != nil {
		latest := requireMap(t, payload["latest_detection"], "latest_detection")
		assertDetectionHistoryEntry(t, latest, "latest_detection")
	}

	history := requireSlice(t, payload["detection_history"], "detection_history")
	for i, raw := range history {
		item := requireMap(t, raw, fmt.Sprintf("detection_history[%d]", i))
		assertDetectionHistoryEntry(t, item, fmt.Sprintf("detection_history[%d]", i))
	}
}
