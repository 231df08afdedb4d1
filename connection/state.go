package connection

// State represents the connection lifecycle state
type State int32

// Possible connection states
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateGaveUp is terminal: reconnect attempts were exhausted
	StateGaveUp
	// StateShutDown is terminal: the manager was closed explicitly
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGaveUp:
		return "gave_up"
	case StateShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state permits no further reconnects
func (s State) Terminal() bool {
	return s == StateGaveUp || s == StateShutDown
}
