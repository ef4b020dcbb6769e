package detectloop

import "sync/atomic"

// State is the loop's position in its lifecycle.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LoopState is the session state handed into Run and returned from it.
//
// DetectedToday is per session despite its name: Run clears it on entry and
// sets it after the first successful detection log write, which suppresses
// further detection entries until the next session.
type LoopState struct {
	IsPlaying     bool  `json:"is_playing"`
	DetectedToday bool  `json:"detected_today"`
	State         State `json:"-"`
}

// StopReason says why a session ended.
type StopReason int

const (
	ReasonNone StopReason = iota
	ReasonEndOfStream
	ReasonStopRequested
	ReasonReadFailed
)

func (r StopReason) String() string {
	switch r {
	case ReasonEndOfStream:
		return "end of stream"
	case ReasonStopRequested:
		return "stop requested"
	case ReasonReadFailed:
		return "read failed"
	default:
		return "none"
	}
}

// StopSignal is polled once per iteration.
type StopSignal interface {
	Stopped() bool
}

// StopToken is a StopSignal raised by calling Stop.
type StopToken struct {
	stopped atomic.Bool
}

// NewStopToken returns a lowered token.
func NewStopToken() *StopToken {
	return &StopToken{}
}

// Stop raises the token. It is safe to call from any goroutine, more than once.
func (t *StopToken) Stop() {
	t.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (t *StopToken) Stopped() bool {
	return t.stopped.Load()
}
