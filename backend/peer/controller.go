package peer

import (
	"context"
	"errors"
	"time"

	"github.com/adwski/webrtc-call-relay/backend/model"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	defaultMaxReconnects  = 5
	defaultReconnectDelay = 3 * time.Second
	defaultStepTimeout    = 10 * time.Second
	defaultToggleCooldown = 300 * time.Millisecond

	defaultEventQueueSize = 256
	maxPendingCandidates  = 64
)

// Signaler delivers announcements to the relay server.
type Signaler interface {
	Send(ann model.Announcement) error
}

type Config struct {
	Logger *zerolog.Logger
	RoomID string
	Relay  Signaler
	Media  MediaSource
	Conns  ConnFactory

	// OnState is called from the controller loop on every change.
	OnState func(Snapshot)

	MaxReconnects  int
	ReconnectDelay time.Duration
	StepTimeout    time.Duration
	ToggleCooldown time.Duration
}

// Controller drives one participant through capture, handshake and reconnects.
// All of its state is owned by the loop started with Run, other methods
// only post events to that loop.
type Controller struct {
	logger  zerolog.Logger
	roomID  string
	relay   Signaler
	media   MediaSource
	conns   ConnFactory
	onState func(Snapshot)

	maxReconnects  int
	reconnectDelay time.Duration
	stepTimeout    time.Duration
	toggleCooldown time.Duration

	events chan event
	done   chan struct{}

	state  State
	local  model.Status
	remote model.Status
	facing Facing
	audio  *LocalTrack
	video  *LocalTrack

	pc            PeerConnection
	videoSender   TrackSender
	gen           uint64
	target        string
	descSent      bool
	remoteSet     bool
	localPending  []webrtc.ICECandidateInit
	remotePending []webrtc.ICECandidateInit

	attempts     int
	reconnecting bool
	// failure seen after the attempt already got somewhere, replayed on release
	pendingReconnect string
	busy             map[action]bool
}

func NewController(cfg Config) *Controller {
	c := &Controller{
		logger: cfg.Logger.With().
			Str("component", "controller").
			Str("roomID", cfg.RoomID).
			Logger(),
		roomID:         cfg.RoomID,
		relay:          cfg.Relay,
		media:          cfg.Media,
		conns:          cfg.Conns,
		onState:        cfg.OnState,
		maxReconnects:  cfg.MaxReconnects,
		reconnectDelay: cfg.ReconnectDelay,
		stepTimeout:    cfg.StepTimeout,
		toggleCooldown: cfg.ToggleCooldown,
		events:         make(chan event, defaultEventQueueSize),
		done:           make(chan struct{}),
		facing:         FacingUser,
		busy:           make(map[action]bool),
	}
	if c.maxReconnects <= 0 {
		c.maxReconnects = defaultMaxReconnects
	}
	if c.reconnectDelay <= 0 {
		c.reconnectDelay = defaultReconnectDelay
	}
	if c.stepTimeout <= 0 {
		c.stepTimeout = defaultStepTimeout
	}
	if c.toggleCooldown <= 0 {
		c.toggleCooldown = defaultToggleCooldown
	}
	return c
}

// Run acquires local media, joins the room and processes events until
// ctx is done or a terminal state is reached. Terminal state is returned as error.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		close(c.done)
		c.closePeer()
		c.releaseMedia()
	}()

	if err := c.capture(); err != nil {
		return err
	}
	c.setState(StateJoining)
	c.sendJoin()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.handle(ev)
			if c.state.Terminal() {
				return c.state.Err()
			}
		}
	}
}

// HandleSignal passes announcement received from relay to the controller.
func (c *Controller) HandleSignal(ann model.Announcement) { c.post(signalReceived{ann: ann}) }

// RelayDisconnected tells the controller that relay connection is lost.
func (c *Controller) RelayDisconnected() { c.post(relayDisconnected{}) }

func (c *Controller) ToggleAudio()  { c.post(actionToggleAudio{}) }
func (c *Controller) ToggleVideo()  { c.post(actionToggleVideo{}) }
func (c *Controller) SwitchCamera() { c.post(actionSwitchCamera{}) }

// ForceHangup asks the server to end the call for everyone in the room.
func (c *Controller) ForceHangup() { c.post(actionForceHangup{}) }

func (c *Controller) post(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// postAsync never blocks the caller, it is used in peer connection callbacks
// which may run while the loop is inside a peer connection call.
func (c *Controller) postAsync(ev event) {
	select {
	case c.events <- ev:
	default:
		go c.post(ev)
	}
}

func (c *Controller) handle(ev event) {
	if c.state.Terminal() {
		return
	}
	switch ev := ev.(type) {
	case signalReceived:
		c.handleSignal(ev.ann)
	case relayDisconnected:
		c.reconnect("relay disconnected")
	case actionToggleAudio:
		c.toggle(toggleAudio)
	case actionToggleVideo:
		c.toggle(toggleVideo)
	case actionSwitchCamera:
		c.switchCamera()
	case actionForceHangup:
		c.send(model.NewAnnouncement(model.TypeForceHangup, "", c.roomID))
	case actionReleased:
		delete(c.busy, ev.action)
	case reconnectReleased:
		c.reconnecting = false
		switch {
		case c.pendingReconnect != "":
			c.reconnect(c.pendingReconnect)
		case c.state == StateReconnecting:
			// nobody answered the join
			c.reconnect("no response")
		}
	case localCandidate:
		c.handleLocalCandidate(ev)
	case connStateChanged:
		c.handleConnState(ev)
	case remoteTrack:
		if ev.gen == c.gen {
			c.logger.Info().Stringer("kind", ev.kind).Msg("remote track received")
			c.attempts = 0
			c.publish()
		}
	case negotiated:
		c.handleNegotiated(ev)
	case remoteApplied:
		c.handleRemoteApplied(ev)
	case cameraAcquired:
		c.handleCameraAcquired(ev)
	}
}

func (c *Controller) capture() error {
	c.setState(StateCapturing)
	audio, video, err := c.media.Open(c.facing)
	if err != nil {
		c.logger.Error().Err(err).Msg("cannot acquire local media")
		c.setState(StateCaptureFailed)
		return errors.Join(ErrCapture, err)
	}
	c.audio, c.video = audio, video
	return nil
}

func (c *Controller) releaseMedia() {
	if c.audio != nil {
		c.audio.Stop()
	}
	if c.video != nil {
		c.video.Stop()
	}
}

func (c *Controller) handleSignal(ann model.Announcement) {
	logger := c.logger.With().
		Str("type", ann.Type).
		Str("src", ann.SRC).
		Logger()

	switch ann.Type {
	case model.TypeYouAreFirst:
		logger.Info().Msg("first in the room, waiting for peer")
		c.setState(StateWaiting)

	case model.TypeUserJoined:
		var peer model.UserPayload
		if err := ann.DecodePayload(&peer); err != nil || peer.UserID == "" {
			logger.Error().Err(err).Msg("malformed user-joined")
			return
		}
		if err := c.newPeer(peer.UserID); err != nil {
			logger.Error().Err(err).Msg("cannot create peer connection")
			c.reconnect("peer connection")
			return
		}
		c.setState(StateNegotiating)
		go c.offer(c.gen, c.pc)

	case model.TypeOffer:
		var offer webrtc.SessionDescription
		if err := ann.DecodePayload(&offer); err != nil {
			logger.Error().Err(err).Msg("malformed offer")
			return
		}
		// new offer supersedes whatever connection we had
		if err := c.newPeer(ann.SRC); err != nil {
			logger.Error().Err(err).Msg("cannot create peer connection")
			c.reconnect("peer connection")
			return
		}
		c.setState(StateNegotiating)
		go c.answer(c.gen, c.pc, offer)

	case model.TypeAnswer:
		if c.pc == nil || ann.SRC != c.target {
			logger.Warn().Msg("answer for unknown connection dropped")
			return
		}
		var answer webrtc.SessionDescription
		if err := ann.DecodePayload(&answer); err != nil {
			logger.Error().Err(err).Msg("malformed answer")
			return
		}
		go c.applyAnswer(c.gen, c.pc, answer)

	case model.TypeICECandidate:
		var candidate webrtc.ICECandidateInit
		if err := ann.DecodePayload(&candidate); err != nil {
			logger.Warn().Err(err).Msg("malformed candidate dropped")
			return
		}
		c.addRemoteCandidate(candidate)

	case model.TypeUserStatus:
		if err := ann.DecodePayload(&c.remote); err != nil {
			logger.Warn().Err(err).Msg("malformed status dropped")
			return
		}
		c.publish()

	case model.TypeUserLeft:
		logger.Info().Msg("peer left")
		c.reconnect("peer left")

	case model.TypeRoomFull:
		c.setState(StateRoomFull)
	case model.TypeRoomBlocked:
		c.setState(StateRoomBlocked)
	case model.TypeCallForceEnded:
		c.setState(StateEnded)

	default:
		logger.Warn().Msg("unknown announcement type")
	}
}

// newPeer replaces current peer connection with a fresh one seeded with local tracks.
func (c *Controller) newPeer(target string) error {
	c.closePeer()

	gen := c.gen
	pc, err := c.conns.NewPeerConnection(PeerHandlers{
		OnICECandidate: func(candidate webrtc.ICECandidateInit) {
			c.postAsync(localCandidate{gen: gen, candidate: candidate})
		},
		OnConnectionState: func(state webrtc.PeerConnectionState) {
			c.postAsync(connStateChanged{gen: gen, state: state})
		},
		OnTrack: func(kind webrtc.RTPCodecType) {
			c.postAsync(remoteTrack{gen: gen, kind: kind})
		},
	})
	if err != nil {
		return err
	}
	if _, err = pc.AddTrack(c.audio); err != nil {
		_ = pc.Close()
		return err
	}
	sender, err := pc.AddTrack(c.video)
	if err != nil {
		_ = pc.Close()
		return err
	}

	c.pc = pc
	c.videoSender = sender
	c.target = target
	c.descSent = false
	c.remoteSet = false
	c.localPending = nil
	return nil
}

// closePeer closes current connection, events of closed connection are ignored after that.
func (c *Controller) closePeer() {
	c.gen++
	if c.pc == nil {
		return
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to close peer connection")
	}
	c.pc = nil
	c.videoSender = nil
	c.target = ""
	c.localPending = nil
}

func (c *Controller) offer(gen uint64, pc PeerConnection) {
	offer, err := runStep(c.stepTimeout, pc.CreateOffer)
	if err == nil {
		_, err = runStep(c.stepTimeout, func() (struct{}, error) {
			return struct{}{}, pc.SetLocalDescription(offer)
		})
	}
	c.post(negotiated{gen: gen, desc: offer, err: err})
}

func (c *Controller) answer(gen uint64, pc PeerConnection, offer webrtc.SessionDescription) {
	_, err := runStep(c.stepTimeout, func() (struct{}, error) {
		return struct{}{}, pc.SetRemoteDescription(offer)
	})
	c.post(remoteApplied{gen: gen, err: err})
	if err != nil {
		return
	}

	answer, err := runStep(c.stepTimeout, pc.CreateAnswer)
	if err == nil {
		_, err = runStep(c.stepTimeout, func() (struct{}, error) {
			return struct{}{}, pc.SetLocalDescription(answer)
		})
	}
	c.post(negotiated{gen: gen, desc: answer, err: err})
}

func (c *Controller) applyAnswer(gen uint64, pc PeerConnection, answer webrtc.SessionDescription) {
	_, err := runStep(c.stepTimeout, func() (struct{}, error) {
		return struct{}{}, pc.SetRemoteDescription(answer)
	})
	c.post(remoteApplied{gen: gen, err: err})
}

// runStep races fn against timeout. Late result of timed out fn is discarded.
func runStep[T any](timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		v, err := fn()
		resCh <- result{v: v, err: err}
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case res := <-resCh:
		return res.v, res.err
	case <-t.C:
		var zero T
		return zero, ErrStepTimeout
	}
}

func (c *Controller) handleNegotiated(ev negotiated) {
	if ev.gen != c.gen {
		return
	}
	if ev.err != nil {
		c.logger.Error().Err(ev.err).Msg("negotiation failed")
		c.reconnect("negotiation failed")
		return
	}

	typ := model.TypeOffer
	if ev.desc.Type == webrtc.SDPTypeAnswer {
		typ = model.TypeAnswer
	}
	c.send(model.NewAnnouncement(typ, c.target, ev.desc))
	c.descSent = true

	for _, candidate := range c.localPending {
		c.send(model.NewAnnouncement(model.TypeICECandidate, c.target, candidate))
	}
	c.localPending = nil
}

func (c *Controller) handleRemoteApplied(ev remoteApplied) {
	if ev.gen != c.gen {
		return
	}
	if ev.err != nil {
		c.logger.Error().Err(ev.err).Msg("cannot apply remote description")
		c.reconnect("negotiation failed")
		return
	}
	c.remoteSet = true

	pending := c.remotePending
	c.remotePending = nil
	for _, candidate := range pending {
		c.addRemoteCandidate(candidate)
	}
}

func (c *Controller) handleLocalCandidate(ev localCandidate) {
	if ev.gen != c.gen {
		return
	}
	// candidates must not overtake the description they belong to
	if !c.descSent {
		c.localPending = append(c.localPending, ev.candidate)
		return
	}
	c.send(model.NewAnnouncement(model.TypeICECandidate, c.target, ev.candidate))
}

func (c *Controller) addRemoteCandidate(candidate webrtc.ICECandidateInit) {
	if c.pc == nil || !c.remoteSet {
		if len(c.remotePending) >= maxPendingCandidates {
			c.logger.Warn().Msg("too many early candidates, candidate dropped")
			return
		}
		c.remotePending = append(c.remotePending, candidate)
		return
	}
	if err := c.pc.AddICECandidate(candidate); err != nil {
		// candidates may race connection teardown
		c.logger.Debug().Err(err).Msg("candidate dropped")
	}
}

func (c *Controller) handleConnState(ev connStateChanged) {
	if ev.gen != c.gen {
		return
	}
	c.logger.Debug().Stringer("state", ev.state).Msg("peer connection state changed")

	switch ev.state {
	case webrtc.PeerConnectionStateConnected:
		c.attempts = 0
		c.setState(StateConnected)
		// peer may have missed our updates while we were away
		c.sendStatus()
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		c.reconnect("peer connection " + ev.state.String())
	default:
	}
}

// reconnect re-joins the room. Only one attempt is in flight at a time,
// the flag is released by timer and if by then nothing happened, next attempt is made.
// Failures reported while the flag is held and the attempt has already
// moved past Reconnecting are remembered and retried on release.
func (c *Controller) reconnect(reason string) {
	if c.state.Terminal() {
		return
	}
	logger := c.logger.With().
		Str("reason", reason).
		Int("attempts", c.attempts).
		Logger()

	if c.reconnecting {
		if c.state != StateReconnecting {
			c.pendingReconnect = reason
		}
		logger.Debug().Msg("reconnect is already in progress")
		return
	}
	c.pendingReconnect = ""
	if c.attempts >= c.maxReconnects {
		logger.Error().Msg("reconnect attempts exhausted")
		c.setState(StateUnrecoverable)
		return
	}

	c.attempts++
	c.reconnecting = true
	c.closePeer()
	c.remotePending = nil
	c.setState(StateReconnecting)
	logger.Info().Msg("reconnecting")
	c.sendJoin()

	time.AfterFunc(c.reconnectDelay, func() {
		c.post(reconnectReleased{})
	})
}

func (c *Controller) toggle(a action) {
	if c.busy[a] {
		c.logger.Debug().Stringer("action", a).Msg("action is in progress, ignored")
		return
	}
	c.busy[a] = true
	time.AfterFunc(c.toggleCooldown, func() {
		c.post(actionReleased{action: a})
	})

	switch a {
	case toggleAudio:
		c.local.AudioMuted = !c.local.AudioMuted
		if c.audio != nil {
			c.audio.SetEnabled(!c.local.AudioMuted)
		}
	case toggleVideo:
		c.local.VideoOff = !c.local.VideoOff
		if c.video != nil {
			c.video.SetEnabled(!c.local.VideoOff)
		}
	default:
	}
	c.sendStatus()
	c.publish()
}

func (c *Controller) switchCamera() {
	if c.busy[switchCamera] {
		c.logger.Debug().Stringer("action", switchCamera).Msg("action is in progress, ignored")
		return
	}
	c.busy[switchCamera] = true

	facing := c.facing.Other()
	go func() {
		track, err := c.media.Video(facing)
		if !c.post(cameraAcquired{facing: facing, track: track, err: err}) && track != nil {
			track.Stop()
		}
	}()
}

func (c *Controller) handleCameraAcquired(ev cameraAcquired) {
	delete(c.busy, switchCamera)
	if ev.err != nil {
		c.logger.Warn().Err(ev.err).Msg("cannot switch camera")
		return
	}
	if c.videoSender != nil {
		// same sender keeps the call going without renegotiation
		if err := c.videoSender.ReplaceTrack(ev.track); err != nil {
			c.logger.Warn().Err(err).Msg("cannot replace video track")
			ev.track.Stop()
			return
		}
	}
	ev.track.SetEnabled(!c.local.VideoOff)
	if c.video != nil {
		c.video.Stop()
	}
	c.video = ev.track
	c.facing = ev.facing
	c.logger.Info().Str("facing", string(c.facing)).Msg("camera switched")

	c.sendStatus()
	c.publish()
}

func (c *Controller) sendJoin() {
	c.send(model.NewAnnouncement(model.TypeJoinRoom, "", c.roomID))
}

func (c *Controller) sendStatus() {
	c.send(model.NewAnnouncement(model.TypeUserStatus, "", c.local))
}

// send is best effort, lost messages are recovered by reconnect or by the next status.
func (c *Controller) send(ann model.Announcement) {
	if err := c.relay.Send(ann); err != nil {
		c.logger.Warn().Err(err).Str("type", ann.Type).Msg("cannot send announcement")
	}
}

// setState moves to s. Once terminal state is reached it never changes.
func (c *Controller) setState(s State) {
	if c.state.Terminal() || c.state == s {
		return
	}
	c.logger.Info().
		Stringer("from", c.state).
		Stringer("to", s).
		Msg("state changed")
	c.state = s
	c.publish()
}

func (c *Controller) publish() {
	if c.onState == nil {
		return
	}
	c.onState(Snapshot{
		State:    c.state,
		Local:    c.local,
		Remote:   c.remote,
		Facing:   c.facing,
		Attempts: c.attempts,
	})
}
