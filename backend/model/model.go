package model

import "encoding/json"

// MaxParticipants is the room capacity.
const MaxParticipants = 2

type Room struct {
	ID           string   `json:"room_id"`
	Participants []string `json:"participants"`
}

type RoomInfo struct {
	ID           string `json:"room_id"`
	Participants int    `json:"participants"`
	Blocked      bool   `json:"blocked"`
}

// Announcement types. Client-originated types are relayed or interpreted by
// the server, server-originated types are produced by the room state machine.
const (
	TypeJoinRoom       = "join-room"
	TypeYouAreFirst    = "you-are-the-first"
	TypeUserJoined     = "user-joined"
	TypeRoomFull       = "room-full"
	TypeRoomBlocked    = "room-blocked"
	TypeOffer          = "offer"
	TypeAnswer         = "answer"
	TypeICECandidate   = "ice-candidate"
	TypeUserStatus     = "user-status"
	TypeUserLeft       = "user-left"
	TypeForceHangup    = "force-hangup"
	TypeCallForceEnded = "call-force-ended"
)

type Announcement struct {
	DST     string          `json:"dst,omitempty"`
	SRC     string          `json:"src,omitempty"` // for inbound messages server re-assigns this based on websocket session
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type UserPayload struct {
	UserID string `json:"userId"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type Status struct {
	AudioMuted bool `json:"audioMuted"`
	VideoOff   bool `json:"videoOff"`
}

// NewAnnouncement builds an announcement with a JSON-encoded payload.
// A nil payload produces an announcement without payload.
func NewAnnouncement(typ, dst string, payload any) Announcement {
	ann := Announcement{
		DST:  dst,
		Type: typ,
	}
	if payload != nil {
		// payload types of this package always marshal
		ann.Payload, _ = json.Marshal(payload)
	}
	return ann
}

// DecodePayload unmarshals announcement payload into v.
func (ann Announcement) DecodePayload(v any) error {
	return json.Unmarshal(ann.Payload, v)
}

type Wire struct {
	RX chan Announcement
	TX chan Announcement

	// Hangup forcibly terminates the connection behind the wire.
	Hangup func()

	// Done is closed when participant behind the wire is fully disconnected.
	Done chan struct{}
}

func NewWire(hangup func()) Wire {
	if hangup == nil {
		hangup = func() {}
	}
	return Wire{
		RX:     make(chan Announcement),
		TX:     make(chan Announcement),
		Hangup: hangup,
		Done:   make(chan struct{}),
	}
}
