package apicontract

import (
	"net/http"
	"os"
	"strings"
	"testing"
)

func TestContractRecordingLifecycle(t *testing.T) {
	if os.Getenv("VIPERS_CONTRACT_RECORDING") == "" {
		t.Skip("set VIPERS_CONTRACT_RECORDING=1 to enable recording lifecycle checks")
	}
	client := newContractClient(t)

	resp, body := client.get(t, "/api/recording/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/recording/status status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if payload["recording"] == true {
		t.Skip("a recording is already in progress")
	}

	resp, body = client.postJSON(t, "/api/recording/start", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/recording/start status = %d", resp.StatusCode)
	}
	startPayload := decodeJSONMap(t, body)
	status := requireString(t, startPayload["status"], "status")
	if status != "recording" {
		t.Fatalf("start status = %q", status)
	}
	file := requireString(t, startPayload["file"], "file")
	if !strings.HasPrefix(file, "recording_") || !strings.HasSuffix(file, ".mjpeg") {
		t.Fatalf("recording file name = %q", file)
	}
	requireNumber(t, startPayload["started_at"], "started_at")

	resp, _ = client.postJSON(t, "/api/recording/start", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second start status = %d, want 400", resp.StatusCode)
	}

	resp, body = client.get(t, "/api/recording/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/recording/status status = %d", resp.StatusCode)
	}
	statusPayload := decodeJSONMap(t, body)
	if statusPayload["recording"] != true {
		t.Fatalf("recording status expected true, got %v", statusPayload["recording"])
	}
	requireNumber(t, statusPayload["frame_count"], "frame_count")
	requireNumber(t, statusPayload["bytes_written"], "bytes_written")

	resp, body = client.postJSON(t, "/api/recording/stop", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/recording/stop status = %d", resp.StatusCode)
	}
	stopPayload := decodeJSONMap(t, body)
	stopStatus := requireString(t, stopPayload["status"], "status")
	if stopStatus != "stopped" {
		t.Fatalf("stop status = %q", stopStatus)
	}
	if requireString(t, stopPayload["file"], "file") != file {
		t.Fatalf("stopped file %v, started %q", stopPayload["file"], file)
	}
	requireNumber(t, stopPayload["stopped_at"], "stopped_at")
	stats := requireMap(t, stopPayload["stats"], "stats")
	if stats["recording"] != false {
		t.Fatalf("stats.recording after stop = %v", stats["recording"])
	}
	requireNumber(t, stats["duration_ms"], "stats.duration_ms")
}
