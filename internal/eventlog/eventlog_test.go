package eventlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func day(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.Local)
}

func TestAppendCreatesDirectoryAndFormatsLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nested", "event_log.txt")
	l := New(path, WithClock(fixedClock(day(2024, 5, 1, 9, 3, 7))))

	if err := l.Append("Body detected in playback video."); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := "[2024-05-01 09:03:07] Body detected in playback video.\n"
	if string(data) != want {
		t.Fatalf("log = %q, want %q", data, want)
	}
}

func TestAppendRoundTripIsLastLine(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "event_log.txt"), WithClock(fixedClock(
		day(2024, 5, 1, 9, 0, 0),
		day(2024, 5, 2, 10, 30, 45),
	)))
	if err := l.Append("first"); err != nil {
		t.Fatal(err)
	}
	if err := l.Append("Face detected in live camera."); err != nil {
		t.Fatal(err)
	}

	last, err := l.LastLine()
	if err != nil {
		t.Fatalf("LastLine: %v", err)
	}
	if want := "[2024-05-02 10:30:45] Face detected in live camera."; last != want {
		t.Fatalf("last line = %q, want %q", last, want)
	}
}

func TestAppendKeepsEntryOnOneLine(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "event_log.txt"), WithClock(fixedClock(day(2024, 5, 1, 0, 0, 0))))
	if err := l.Append("two\nlines\r\nhere"); err != nil {
		t.Fatal(err)
	}
	lines, err := l.Lines()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"[2024-05-01 00:00:00] two lines here"}, lines); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendFailureIsIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(filepath.Join(blocker, "event_log.txt"))

	err := l.Append("Body detected in playback video.")
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Append() err = %v, want *IOError", err)
	}
	if ioErr.Op != "append" {
		t.Fatalf("IOError.Op = %q, want append", ioErr.Op)
	}
}

func TestDatesWithEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event_log.txt")
	content := strings.Join([]string{
		"[2024-05-02 08:00:00] Body detected in playback video.",
		"garbage without a date",
		"",
		"[2024-05-01 23:59:59] System online.",
		"[2024-05-02 09:00:00] Body detected in playback video.",
		"[2024-13-45 00:00:00] impossible date",
		"[short",
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	dates, err := New(path).DatesWithEntries()
	if err != nil {
		t.Fatalf("DatesWithEntries: %v", err)
	}
	if diff := cmp.Diff([]string{"2024-05-01", "2024-05-02"}, dates); diff != "" {
		t.Fatalf("dates mismatch (-want +got):\n%s", diff)
	}
}

func TestDatesWithEntriesNoDuplicatesForSameDay(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "event_log.txt"), WithClock(fixedClock(
		day(2024, 6, 1, 8, 0, 0),
		day(2024, 6, 1, 9, 0, 0),
		day(2024, 6, 1, 10, 0, 0),
	)))

	before, err := l.DatesWithEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 0 {
		t.Fatalf("absent log dates = %v, want none", before)
	}

	for i := 0; i < 3; i++ {
		if err := l.Append("entry"); err != nil {
			t.Fatal(err)
		}
		dates, err := l.DatesWithEntries()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"2024-06-01"}, dates); diff != "" {
			t.Fatalf("after append %d (-want +got):\n%s", i+1, diff)
		}
	}

	ok, err := l.HasEntriesOn(day(2024, 6, 1, 0, 0, 0))
	if err != nil || !ok {
		t.Fatalf("HasEntriesOn(2024-06-01) = %v, %v", ok, err)
	}
	ok, err = l.HasEntriesOn(day(2024, 6, 2, 0, 0, 0))
	if err != nil || ok {
		t.Fatalf("HasEntriesOn(2024-06-02) = %v, %v", ok, err)
	}
}

func TestLastLineMentionsDetection(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "event_log.txt"), WithClock(fixedClock(day(2024, 5, 1, 12, 0, 0))))

	check := func(want bool) {
		t.Helper()
		got, err := l.LastLineMentionsDetection("detected")
		if err != nil {
			t.Fatalf("LastLineMentionsDetection: %v", err)
		}
		if got != want {
			t.Fatalf("LastLineMentionsDetection = %v, want %v", got, want)
		}
	}

	check(false) // absent

	if err := os.WriteFile(l.Path(), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	check(false) // empty

	if err := l.Append("Body detected in playback video."); err != nil {
		t.Fatal(err)
	}
	check(true)

	if err := l.Append("Camera 01 online."); err != nil {
		t.Fatal(err)
	}
	check(false)
}

func TestLastLineSkipsTrailingBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event_log.txt")
	content := "[2024-05-01 12:00:00] Body detected in playback video.\n\n   \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := New(path).LastLineMentionsDetection("detected")
	if err != nil || !got {
		t.Fatalf("LastLineMentionsDetection = %v, %v; want true", got, err)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Entry
		wantErr bool
	}{
		{
			line: "[2024-05-01 09:03:07] Body detected in playback video.",
			want: Entry{Time: day(2024, 5, 1, 9, 3, 7), Message: "Body detected in playback video."},
		},
		{
			line: "[2024-05-01] date only",
			want: Entry{Time: day(2024, 5, 1, 0, 0, 0), Message: "] date only"},
		},
		{line: "no bracket", wantErr: true},
		{line: "[2024/05/01 09:03:07] slashes", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("ParseLine err = %v, want ErrParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine err = %v", err)
			}
			if !got.Time.Equal(tt.want.Time) || got.Message != tt.want.Message {
				t.Fatalf("ParseLine = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "event_log.txt"))
	const writers, perWriter = 8, 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := l.Append(strings.Repeat("x", 100)); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	lines, err := l.Lines()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != writers*perWriter {
		t.Fatalf("got %d lines, want %d", len(lines), writers*perWriter)
	}
	for _, line := range lines {
		if _, err := ParseLine(line); err != nil || !strings.HasSuffix(line, strings.Repeat("x", 100)) {
			t.Fatalf("corrupted line %q", line)
		}
	}
}
