package channel

// State is the lifecycle state of a channel.
type State int32

const (
	// StateClosed indicates the channel is not usable.
	StateClosed State = iota

	// StateOpening indicates an open handshake is in flight.
	StateOpening

	// StateOpen indicates the channel carries payload traffic.
	StateOpen

	// StateClosing indicates a close handshake is in flight.
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// IsTransient reports whether s waits on a handshake.
func (s State) IsTransient() bool {
	return s == StateOpening || s == StateClosing
}

// allowed lists the legal successors of each state. The fallback from a
// transient state straight to CLOSED is only taken through ForceClose.
var allowed = map[State][]State{
	StateClosed:  {StateOpening},
	StateOpening: {StateOpen},
	StateOpen:    {StateClosing},
	StateClosing: {StateClosed},
}

func isValidTransition(from, to State) bool {
	for _, valid := range allowed[from] {
		if to == valid {
			return true
		}
	}
	return false
}
