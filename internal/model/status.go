package model

import "fmt"

// Class tags an action as safe to run alongside the exclusive lane or not.
type Class int

const (
	ClassExclusive Class = iota
	ClassImmediate
)

func (c Class) String() string {
	if c == ClassImmediate {
		return "immediate"
	}
	return "exclusive"
}

// SessionState is the reconnection controller's view of the game session.
type SessionState string

const (
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
	SessionDisconnected SessionState = "disconnected"
	SessionBackoff      SessionState = "backoff"
	SessionTerminated   SessionState = "terminated"
)

// Connected → Disconnected → Backoff → Connecting → Connected | Terminated.
// A failed dial or an end before spawn moves Connecting back to Disconnected so the
// same backoff computation runs again.
var validSessionTransitions = map[SessionState]map[SessionState]bool{
	SessionConnecting: {
		SessionConnected:    true,
		SessionDisconnected: true,
		SessionTerminated:   true,
	},
	SessionConnected: {
		SessionDisconnected: true,
		SessionTerminated:   true,
	},
	SessionDisconnected: {
		SessionBackoff:    true,
		SessionTerminated: true,
	},
	SessionBackoff: {
		SessionConnecting: true,
		SessionTerminated: true,
	},
	SessionTerminated: {},
}

func ValidateSessionTransition(from, to SessionState) error {
	targets, ok := validSessionTransitions[from]
	if !ok {
		return fmt.Errorf("unknown session state: %s", from)
	}
	if !targets[to] {
		return fmt.Errorf("invalid session transition: %s → %s", from, to)
	}
	return nil
}

func IsSessionTerminal(s SessionState) bool {
	return s == SessionTerminated
}
