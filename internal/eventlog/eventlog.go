// Package eventlog is the append-only event log: one timestamped line per
// event, plus the read queries the dashboard uses (calendar dates, last-line
// alert, raw view).
package eventlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// TimestampLayout is the layout inside the brackets of every line.
	TimestampLayout = "2006-01-02 15:04:05"
	// DateLayout is the calendar date found at characters 1..11 of a line.
	DateLayout = "2006-01-02"
)

// ErrParse is returned by ParseLine for lines without a valid date prefix.
var ErrParse = errors.New("malformed log line")

// IOError reports a failed read or write of the log file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("event log %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Entry is one parsed log line.
type Entry struct {
	Time    time.Time
	Message string
}

// FormatLine renders an entry as it is stored, without the trailing newline.
func FormatLine(t time.Time, message string) string {
	return "[" + t.Format(TimestampLayout) + "] " + message
}

// ParseLine parses a stored line. Only the date prefix is required; a line
// whose time part is malformed still yields its date.
func ParseLine(line string) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 11 || line[0] != '[' {
		return Entry{}, fmt.Errorf("%w: %q", ErrParse, line)
	}
	day, err := time.ParseInLocation(DateLayout, line[1:11], time.Local)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q", ErrParse, line)
	}

	entry := Entry{Time: day, Message: strings.TrimSpace(line[11:])}
	if len(line) >= 21 && line[20] == ']' {
		if ts, err := time.ParseInLocation(TimestampLayout, line[1:20], time.Local); err == nil {
			entry.Time = ts
			entry.Message = strings.TrimPrefix(line[21:], " ")
		}
	}
	return entry, nil
}

// Log is an append-only text log. All reads and writes of the file go
// through one mutex, so appends never interleave with each other or with
// a query in progress.
type Log struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces the time source used for new entries.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New returns a Log stored at path. The file and its directory are created
// on the first append.
func New(path string, opts ...Option) *Log {
	l := &Log{path: path, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one line "[YYYY-MM-DD HH:MM:SS] message". Line breaks in
// message are replaced with spaces so an entry is always a single line.
func (l *Log) Append(message string) error {
	message = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(message)

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &IOError{Op: "append", Path: l.path, Err: err}
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &IOError{Op: "append", Path: l.path, Err: err}
	}

	// One write per line keeps O_APPEND writers from splitting an entry.
	line := FormatLine(l.now(), message) + "\n"
	if _, err := f.Write([]byte(line)); err != nil {
		_ = f.Close()
		return &IOError{Op: "append", Path: l.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "append", Path: l.path, Err: err}
	}
	return nil
}

// Contents returns the raw log text. ok is false when the log does not exist.
func (l *Log) Contents() (data []byte, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

func (l *Log) readLocked() ([]byte, bool, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &IOError{Op: "read", Path: l.path, Err: err}
	}
	return data, true, nil
}

// Lines returns every non-empty line in file order.
func (l *Log) Lines() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, ok, err := l.readLocked()
	if err != nil || !ok {
		return nil, err
	}
	return splitLines(data), nil
}

// Entries parses every line, skipping those without a valid date prefix.
func (l *Log) Entries() ([]Entry, error) {
	lines, err := l.Lines()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		entry, err := ParseLine(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DatesWithEntries returns the distinct dates (YYYY-MM-DD) that have at least
// one entry, in ascending order. Unparsable lines are skipped; an absent log
// has no dates.
func (l *Log) DatesWithEntries() ([]string, error) {
	lines, err := l.Lines()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, line := range lines {
		if _, err := ParseLine(line); err != nil {
			continue
		}
		seen[line[1:11]] = struct{}{}
	}

	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

// HasEntriesOn reports whether any entry is dated on day's calendar date.
func (l *Log) HasEntriesOn(day time.Time) (bool, error) {
	dates, err := l.DatesWithEntries()
	if err != nil {
		return false, err
	}
	want := day.Format(DateLayout)
	i := sort.SearchStrings(dates, want)
	return i < len(dates) && dates[i] == want, nil
}

// LastLine returns the last non-empty line, or "" for an empty or absent log.
func (l *Log) LastLine() (string, error) {
	lines, err := l.Lines()
	if err != nil || len(lines) == 0 {
		return "", err
	}
	return lines[len(lines)-1], nil
}

// LastLineMentionsDetection reports whether keyword appears in the last
// non-empty line. It is false for an empty or absent log.
func (l *Log) LastLineMentionsDetection(keyword string) (bool, error) {
	last, err := l.LastLine()
	if err != nil || last == "" {
		return false, err
	}
	return strings.Contains(last, keyword), nil
}

func splitLines(data []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
