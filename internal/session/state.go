package session

// State tracks where a session is in its lifecycle. The only legal
// walk is Disconnected, Connected, Initialized, Closed; Closed is
// terminal and a fresh connection needs a fresh Session.
type State int

const (
	// StateDisconnected is the initial state, before Connect.
	StateDisconnected State = iota

	// StateConnected means the transport is up but the protocol
	// handshake has not completed yet.
	StateConnected

	// StateInitialized means the handshake completed and tool
	// operations are valid.
	StateInitialized

	// StateClosed means the transport has been released.
	StateClosed
)

// String makes State satisfy the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateInitialized:
		return "initialized"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
