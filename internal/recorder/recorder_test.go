package recorder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecordFrames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	r := NewRecorder(dir)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC) }

	if r.SendFrame([]byte{0xff, 0xd8}) {
		t.Fatal("SendFrame accepted a frame while idle")
	}

	name, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if name != "recording_20240501_143000.mjpeg" {
		t.Fatalf("filename = %q", name)
	}
	if _, err := r.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRecording", err)
	}

	frames := [][]byte{
		{0xff, 0xd8, 0x01, 0xff, 0xd9},
		{0xff, 0xd8, 0x02, 0xff, 0xd9},
	}
	for _, f := range frames {
		if !r.SendFrame(f) {
			t.Fatal("SendFrame dropped a frame")
		}
	}

	stopped, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped != name {
		t.Fatalf("Stop returned %q, want %q", stopped, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if !bytes.Equal(data, bytes.Join(frames, nil)) {
		t.Fatalf("recording = %x", data)
	}

	st := r.GetStatus()
	if st.Recording || st.FrameCount != 2 || st.BytesWritten != uint64(len(data)) {
		t.Fatalf("status = %+v", st)
	}
	if !strings.HasSuffix(st.Filename, ".mjpeg") {
		t.Fatalf("status filename = %q", st.Filename)
	}
}

func TestStopWithoutStart(t *testing.T) {
	r := NewRecorder(t.TempDir())
	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop err = %v, want ErrNotRecording", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on idle recorder: %v", err)
	}
}

func TestCloseStopsRecording(t *testing.T) {
	r := NewRecorder(t.TempDir())
	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.IsRecording() {
		t.Fatal("still recording after Close")
	}
}
