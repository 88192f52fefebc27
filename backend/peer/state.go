package peer

import (
	"errors"

	"github.com/adwski/webrtc-call-relay/backend/model"
)

var (
	ErrCapture       = errors.New("local media capture is not available")
	ErrRoomFull      = errors.New("room is full")
	ErrRoomBlocked   = errors.New("room is blocked")
	ErrForceEnded    = errors.New("call was force ended")
	ErrUnrecoverable = errors.New("connection could not be restored")
	ErrStepTimeout   = errors.New("handshake step timed out")
)

// State is the call lifecycle state exposed to the UI layer.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateJoining
	StateWaiting
	StateNegotiating
	StateConnected
	StateReconnecting

	// Terminal states, the only way out is to start over.

	StateCaptureFailed
	StateRoomFull
	StateRoomBlocked
	StateEnded
	StateUnrecoverable
)

var stateNames = map[State]string{
	StateIdle:          "idle",
	StateCapturing:     "capturing",
	StateJoining:       "joining",
	StateWaiting:       "waiting",
	StateNegotiating:   "negotiating",
	StateConnected:     "connected",
	StateReconnecting:  "reconnecting",
	StateCaptureFailed: "capture-failed",
	StateRoomFull:      "room-full",
	StateRoomBlocked:   "room-blocked",
	StateEnded:         "ended",
	StateUnrecoverable: "unrecoverable",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) Terminal() bool {
	return s >= StateCaptureFailed
}

// Err returns error describing terminal state, nil for other states.
func (s State) Err() error {
	switch s {
	case StateCaptureFailed:
		return ErrCapture
	case StateRoomFull:
		return ErrRoomFull
	case StateRoomBlocked:
		return ErrRoomBlocked
	case StateEnded:
		return ErrForceEnded
	case StateUnrecoverable:
		return ErrUnrecoverable
	default:
		return nil
	}
}

// Snapshot is what UI gets on every change.
type Snapshot struct {
	State    State
	Local    model.Status
	Remote   model.Status
	Facing   Facing
	Attempts int
}
