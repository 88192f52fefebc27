package service

import (
	"context"
	"errors"

	"github.com/adwski/webrtc-call-relay/backend/model"
	store "github.com/adwski/webrtc-call-relay/backend/storage/memory"
	sw "github.com/adwski/webrtc-call-relay/backend/switch"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrBadPayload = errors.New("malformed payload")
	ErrNoRoomID   = errors.New("room id is empty")
)

type (
	RoomStore interface {
		Join(roomID string, userID string) (*store.JoinResult, error)
		Leave(userID string) *store.LeaveResult
		RoomOf(userID string) (string, bool)
		GetRoom(roomID string) (*model.Room, error)
		DeleteRoom(roomID string) ([]string, error)
	}

	Blocklist interface {
		Block(roomID string)
		IsBlocked(roomID string) bool
	}

	Switch interface {
		Connect(ctx context.Context, userID string, wire model.Wire, handler sw.Handler, disconnect sw.DisconnectHandler)
		Disconnect(userID string)
		Hangup(userID string)
		Send(ctx context.Context, ann model.Announcement) bool
	}

	Service struct {
		store     RoomStore
		blocklist Blocklist
		sw        Switch
		logger    zerolog.Logger
	}

	Config struct {
		RoomStore RoomStore
		Blocklist Blocklist
		Switch    Switch
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:     cfg.RoomStore,
		blocklist: cfg.Blocklist,
		sw:        cfg.Switch,
		logger:    cfg.Logger.With().Str("component", "signaling").Logger(),
	}
}

// Connect registers a new participant behind wire and returns its id.
// When ctx is done the participant is disconnected after its last
// announcement is handled.
func (svc *Service) Connect(ctx context.Context, wire model.Wire) string {
	userID := uuid.NewString()
	svc.sw.Connect(ctx, userID, wire, svc.Handle, svc.Disconnect)
	svc.logger.Debug().
		Str("userID", userID).
		Msg("participant connected")
	return userID
}

// Disconnect removes participant from its room and from the switch.
func (svc *Service) Disconnect(ctx context.Context, userID string) {
	svc.sw.Disconnect(userID)
	svc.dispatch(ctx, svc.Leave(userID))
	svc.logger.Debug().
		Str("userID", userID).
		Msg("participant disconnected")
}

// Handle processes single announcement received from participant ann.SRC.
func (svc *Service) Handle(ctx context.Context, ann model.Announcement) {
	logger := svc.logger.With().
		Str("type", ann.Type).
		Str("src", ann.SRC).
		Logger()

	switch ann.Type {
	case model.TypeJoinRoom:
		var roomID string
		if err := ann.DecodePayload(&roomID); err != nil || roomID == "" {
			logger.Error().Err(errors.Join(ErrBadPayload, err)).Msg("cannot join room")
			return
		}
		svc.dispatch(ctx, svc.Join(ann.SRC, roomID))

	case model.TypeOffer, model.TypeAnswer, model.TypeICECandidate:
		svc.dispatch(ctx, svc.Relay(ann))

	case model.TypeUserStatus:
		svc.dispatch(ctx, svc.Status(ann))

	case model.TypeForceHangup:
		var roomID string
		if err := ann.DecodePayload(&roomID); err != nil {
			logger.Error().Err(errors.Join(ErrBadPayload, err)).Msg("cannot force hangup")
			return
		}
		if err := svc.ForceEnd(ctx, roomID); err != nil {
			logger.Error().Err(err).Msg("cannot force hangup")
		}

	default:
		logger.Warn().Msg("unknown announcement type")
	}
}

// Join puts user into room and returns resulting announcements.
func (svc *Service) Join(userID, roomID string) []model.Announcement {
	logger := svc.logger.With().
		Str("userID", userID).
		Str("roomID", roomID).
		Logger()

	if svc.blocklist != nil && svc.blocklist.IsBlocked(roomID) {
		logger.Debug().Msg("join rejected, room is blocked")
		return []model.Announcement{model.NewAnnouncement(model.TypeRoomBlocked, userID, nil)}
	}

	res, err := svc.store.Join(roomID, userID)

	var out []model.Announcement
	if res != nil && res.Left != nil {
		out = leaveAnnouncements(userID, res.Left)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("join rejected")
		return append(out, model.NewAnnouncement(model.TypeRoomFull, userID, nil))
	}

	logger.Debug().Int("position", res.Position).Msg("user joined room")
	if res.Position == 1 {
		return append(out, model.NewAnnouncement(model.TypeYouAreFirst, userID, nil))
	}
	// Only the first member learns about the second one, so only it makes an offer.
	return append(out, model.NewAnnouncement(model.TypeUserJoined, res.Peer, model.UserPayload{UserID: userID}))
}

// Leave removes user from its room and returns resulting announcements.
func (svc *Service) Leave(userID string) []model.Announcement {
	res := svc.store.Leave(userID)
	if res == nil {
		return nil
	}
	svc.logger.Debug().
		Str("userID", userID).
		Str("roomID", res.RoomID).
		Bool("roomDeleted", res.Deleted).
		Msg("user left room")
	return leaveAnnouncements(userID, res)
}

func leaveAnnouncements(userID string, res *store.LeaveResult) []model.Announcement {
	out := make([]model.Announcement, 0, len(res.Remaining))
	for _, peer := range res.Remaining {
		out = append(out, model.NewAnnouncement(model.TypeUserLeft, peer, model.UserPayload{UserID: userID}))
	}
	return out
}

// Relay passes handshake announcement to its destination as is.
func (svc *Service) Relay(ann model.Announcement) []model.Announcement {
	if ann.DST == "" {
		svc.logger.Debug().Str("type", ann.Type).Str("src", ann.SRC).Msg("relay without dst dropped")
		return nil
	}
	return []model.Announcement{ann}
}

// Status forwards status announcement to other members of sender's room.
func (svc *Service) Status(ann model.Announcement) []model.Announcement {
	roomID, ok := svc.store.RoomOf(ann.SRC)
	if !ok {
		return nil
	}
	room, err := svc.store.GetRoom(roomID)
	if err != nil {
		return nil
	}
	var out []model.Announcement
	for _, peer := range room.Participants {
		if peer != ann.SRC {
			fwd := ann
			fwd.DST = peer
			out = append(out, fwd)
		}
	}
	return out
}

// ForceEnd notifies room members about forced termination, hangs up
// their connections, deletes the room and blocks its id.
func (svc *Service) ForceEnd(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrNoRoomID
	}
	// blocked first, so nobody can get into the room while it is torn down
	if svc.blocklist != nil {
		svc.blocklist.Block(roomID)
	}
	members, err := svc.store.DeleteRoom(roomID)
	if err != nil && !errors.Is(err, store.ErrRoomNotFound) {
		return err
	}

	out := make([]model.Announcement, 0, len(members))
	for _, userID := range members {
		out = append(out, model.NewAnnouncement(model.TypeCallForceEnded, userID, model.RoomPayload{RoomID: roomID}))
	}
	svc.dispatch(ctx, out)
	for _, userID := range members {
		svc.sw.Hangup(userID)
	}
	svc.logger.Info().
		Str("roomID", roomID).
		Int("members", len(members)).
		Msg("call force ended")
	return nil
}

func (svc *Service) RoomInfo(roomID string) model.RoomInfo {
	info := model.RoomInfo{ID: roomID}
	if room, err := svc.store.GetRoom(roomID); err == nil {
		info.Participants = len(room.Participants)
	}
	if svc.blocklist != nil {
		info.Blocked = svc.blocklist.IsBlocked(roomID)
	}
	return info
}

func (svc *Service) dispatch(ctx context.Context, anns []model.Announcement) {
	for _, ann := range anns {
		if !svc.sw.Send(ctx, ann) {
			svc.logger.Debug().
				Str("type", ann.Type).
				Str("dst", ann.DST).
				Msg("announcement dropped")
		}
	}
}
