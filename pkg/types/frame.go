package types

import (
	"fmt"
	"image"
	"time"
)

// Frame is a single decoded picture from a frame source.
// The loop annotates Image in place, renders it and then drops the frame.
type Frame struct {
	Image     *image.RGBA // Decoded pixels (RGBA, origin may be non-zero)
	Number    uint64      // Sequential frame number within the session, starting at 1
	Timestamp time.Time   // Capture (or decode) time
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Mode selects where frames come from.
type Mode string

const (
	ModeLive     Mode = "live"     // Camera device
	ModePlayback Mode = "playback" // Prerecorded video file
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "live", "Live", "LIVE":
		return ModeLive, nil
	case "playback", "Playback", "PLAYBACK":
		return ModePlayback, nil
	default:
		return "", fmt.Errorf("invalid mode: %q (want live or playback)", s)
	}
}

// Target returns the object kind searched for in this mode.
func (m Mode) Target() Kind {
	if m == ModeLive {
		return KindFace
	}
	return KindBody
}

// SourceName names the kind of source in user-facing messages.
func (m Mode) SourceName() string {
	if m == ModeLive {
		return "camera"
	}
	return "video"
}

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}
