package session

// State is the tracking session state.
type State int

const (
	// Idle: nothing initialized, or the last start failed.
	Idle State = iota
	// Starting: an engine initialization attempt is in flight.
	Starting
	// Active: the engine is processing frames and poses drive the anchor.
	Active
	// Stopping: processing is being ended. Transient.
	Stopping
	// Stopped: processing ended, the engine handle is kept for a quick restart.
	Stopped
	// Disposed: terminal.
	Disposed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}
