package peer

import (
	"github.com/adwski/webrtc-call-relay/backend/model"
	"github.com/pion/webrtc/v4"
)

// Everything the controller reacts to arrives as an event
// and is processed in the controller loop.
type event interface{}

type (
	signalReceived struct {
		ann model.Announcement
	}

	relayDisconnected struct{}

	// user actions
	actionToggleAudio  struct{}
	actionToggleVideo  struct{}
	actionSwitchCamera struct{}
	actionForceHangup  struct{}

	actionReleased struct {
		action action
	}

	reconnectReleased struct{}

	// peer connection callbacks, gen identifies connection they belong to
	localCandidate struct {
		gen       uint64
		candidate webrtc.ICECandidateInit
	}
	connStateChanged struct {
		gen   uint64
		state webrtc.PeerConnectionState
	}
	remoteTrack struct {
		gen  uint64
		kind webrtc.RTPCodecType
	}

	// results of async steps
	negotiated struct {
		gen  uint64
		desc webrtc.SessionDescription
		err  error
	}
	remoteApplied struct {
		gen uint64
		err error
	}
	cameraAcquired struct {
		facing Facing
		track  *LocalTrack
		err    error
	}
)

type action int

const (
	toggleAudio action = iota
	toggleVideo
	switchCamera
)

func (a action) String() string {
	switch a {
	case toggleAudio:
		return "toggle-audio"
	case toggleVideo:
		return "toggle-video"
	default:
		return "switch-camera"
	}
}
