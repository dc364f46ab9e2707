package client

// State is the connectivity state of a Client. Transitions:
//
//	Idle -> Connecting -> Connected -> Disconnected -> Connecting -> ...
//	Disconnected -> GaveUp (attempt ceiling reached)
//	GaveUp -> Connecting (manual Connect only)
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateGaveUp
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateGaveUp:
		return "gave-up"
	default:
		return "unknown"
	}
}
