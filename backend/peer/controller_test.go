package peer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adwski/webrtc-call-relay/backend/model"
	"github.com/davecgh/go-spew/spew"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type fakeSignaler struct {
	mx   sync.Mutex
	sent []model.Announcement
}

func (s *fakeSignaler) Send(ann model.Announcement) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.sent = append(s.sent, ann)
	return nil
}

func (s *fakeSignaler) types() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, ann := range s.sent {
		out = append(out, ann.Type)
	}
	return out
}

func (s *fakeSignaler) find(typ string) (model.Announcement, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	for _, ann := range s.sent {
		if ann.Type == typ {
			return ann, true
		}
	}
	return model.Announcement{}, false
}

func (s *fakeSignaler) last() model.Announcement {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.sent) == 0 {
		return model.Announcement{}
	}
	return s.sent[len(s.sent)-1]
}

type fakeSender struct {
	mx     sync.Mutex
	tracks []webrtc.TrackLocal
}

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.tracks = append(s.tracks, track)
	return nil
}

type fakeConn struct {
	mx         sync.Mutex
	handlers   PeerHandlers
	block      chan struct{}
	tracks     []webrtc.TrackLocal
	sender     *fakeSender
	local      []webrtc.SessionDescription
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	addErr     error
	closed     bool
}

func (c *fakeConn) AddTrack(track webrtc.TrackLocal) (TrackSender, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.tracks = append(c.tracks, track)
	return c.sender, nil
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	if c.block != nil {
		<-c.block
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (c *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.local = append(c.local, desc)
	return nil
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.remote = append(c.remote, desc)
	return nil
}

func (c *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.addErr != nil {
		return c.addErr
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConn) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.closed
}

type fakeFactory struct {
	mx    sync.Mutex
	conns []*fakeConn
	block chan struct{}
}

func (f *fakeFactory) NewPeerConnection(h PeerHandlers) (PeerConnection, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	conn := &fakeConn{handlers: h, block: f.block, sender: &fakeSender{}}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeFactory) last() *fakeConn {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.conns[len(f.conns)-1]
}

type fakeMedia struct {
	mx       sync.Mutex
	openErr  error
	videoErr error
	tracks   []*LocalTrack
	facings  []Facing
}

func (m *fakeMedia) track(id string) *LocalTrack {
	t, err := NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, nil)
	if err != nil {
		panic(err)
	}
	m.tracks = append(m.tracks, t)
	return t
}

func (m *fakeMedia) Open(facing Facing) (*LocalTrack, *LocalTrack, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.openErr != nil {
		return nil, nil, m.openErr
	}
	return m.track("audio"), m.track("video-" + string(facing)), nil
}

func (m *fakeMedia) Video(facing Facing) (*LocalTrack, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.facings = append(m.facings, facing)
	if m.videoErr != nil {
		return nil, m.videoErr
	}
	return m.track("video-" + string(facing)), nil
}

type testController struct {
	*Controller
	relay *fakeSignaler
	conns *fakeFactory
	media *fakeMedia

	snapMx    sync.Mutex
	snapshots []Snapshot
}

func newTestController(t *testing.T, tune func(*Config)) *testController {
	t.Helper()

	logger := zerolog.Nop()
	tc := &testController{
		relay: &fakeSignaler{},
		conns: &fakeFactory{},
		media: &fakeMedia{},
	}
	cfg := Config{
		Logger: &logger,
		RoomID: "room",
		Relay:  tc.relay,
		Media:  tc.media,
		Conns:  tc.conns,
		OnState: func(s Snapshot) {
			tc.snapMx.Lock()
			defer tc.snapMx.Unlock()
			tc.snapshots = append(tc.snapshots, s)
		},
		// timers are released manually
		ReconnectDelay: time.Hour,
		ToggleCooldown: time.Hour,
	}
	if tune != nil {
		tune(&cfg)
	}
	tc.Controller = NewController(cfg)
	return tc
}

// start does what Run does before entering the loop.
func (tc *testController) start(t *testing.T) {
	t.Helper()

	if err := tc.capture(); err != nil {
		t.Fatalf("capture: %v", err)
	}
	tc.setState(StateJoining)
	tc.sendJoin()
}

func (tc *testController) signal(typ, src string, payload any) {
	ann := model.NewAnnouncement(typ, "", payload)
	ann.SRC = src
	tc.handle(signalReceived{ann: ann})
}

// pump processes posted events until cond is true.
func (tc *testController) pump(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case ev := <-tc.events:
			tc.handle(ev)
		case <-deadline:
			t.Fatalf("condition is not reached, state=%s sent=%v", tc.state, tc.relay.types())
		}
	}
}

func (tc *testController) sent(typ string) func() bool {
	return func() bool {
		_, ok := tc.relay.find(typ)
		return ok
	}
}

func (tc *testController) countState(s State) int {
	tc.snapMx.Lock()
	defer tc.snapMx.Unlock()
	n := 0
	for _, snap := range tc.snapshots {
		if snap.State == s {
			n++
		}
	}
	return n
}

func assertTypes(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("unexpected announcements\ngot:\n%swant:\n%s", spew.Sdump(got), spew.Sdump(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("unexpected announcements\ngot:\n%swant:\n%s", spew.Sdump(got), spew.Sdump(want))
		}
	}
}

func TestController_CaptureFailure(t *testing.T) {
	tc := newTestController(t, nil)
	tc.media.openErr = errors.New("no camera")

	err := tc.Run(context.Background())
	if !errors.Is(err, ErrCapture) {
		t.Fatalf("err=%v, want %v", err, ErrCapture)
	}
	if tc.state != StateCaptureFailed {
		t.Fatalf("state=%s, want %s", tc.state, StateCaptureFailed)
	}
	assertTypes(t, tc.relay.types())
}

func TestController_FirstInRoomWaits(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)

	tc.signal(model.TypeYouAreFirst, "", nil)
	if tc.state != StateWaiting {
		t.Fatalf("state=%s, want %s", tc.state, StateWaiting)
	}

	join, _ := tc.relay.find(model.TypeJoinRoom)
	var roomID string
	if err := join.DecodePayload(&roomID); err != nil || roomID != "room" {
		t.Fatalf("join payload %q: %v", roomID, err)
	}
}

func TestController_OffersToJoinedPeer(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)
	tc.signal(model.TypeYouAreFirst, "", nil)

	tc.signal(model.TypeUserJoined, "", model.UserPayload{UserID: "b"})
	if tc.state != StateNegotiating {
		t.Fatalf("state=%s, want %s", tc.state, StateNegotiating)
	}
	conn := tc.conns.last()
	if len(conn.tracks) != 2 {
		t.Fatalf("connection has %d tracks, want 2", len(conn.tracks))
	}

	// gathered before offer is sent
	tc.handle(localCandidate{gen: tc.gen, candidate: webrtc.ICECandidateInit{Candidate: "c1"}})
	tc.pump(t, tc.sent(model.TypeOffer))

	assertTypes(t, tc.relay.types(), model.TypeJoinRoom, model.TypeOffer, model.TypeICECandidate)

	offer, _ := tc.relay.find(model.TypeOffer)
	var desc webrtc.SessionDescription
	if err := offer.DecodePayload(&desc); err != nil {
		t.Fatal(err)
	}
	if offer.DST != "b" || desc.SDP != "offer" {
		t.Fatalf("unexpected offer %+v", offer)
	}
	if cand := tc.relay.last(); cand.DST != "b" {
		t.Fatalf("candidate sent to %q, want b", cand.DST)
	}

	tc.handle(localCandidate{gen: tc.gen, candidate: webrtc.ICECandidateInit{Candidate: "c2"}})
	assertTypes(t, tc.relay.types(),
		model.TypeJoinRoom, model.TypeOffer, model.TypeICECandidate, model.TypeICECandidate)
}

func TestController_AnswersOffer(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)

	// candidate arriving before the offer is kept
	tc.signal(model.TypeICECandidate, "a", webrtc.ICECandidateInit{Candidate: "early"})
	tc.signal(model.TypeOffer, "a", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"})
	tc.pump(t, tc.sent(model.TypeAnswer))

	answer, _ := tc.relay.find(model.TypeAnswer)
	if answer.DST != "a" {
		t.Fatalf("answer sent to %q, want a", answer.DST)
	}

	conn := tc.conns.last()
	conn.mx.Lock()
	defer conn.mx.Unlock()
	if len(conn.remote) != 1 || conn.remote[0].SDP != "remote-offer" {
		t.Fatalf("unexpected remote descriptions %+v", conn.remote)
	}
	if len(conn.local) != 1 || conn.local[0].Type != webrtc.SDPTypeAnswer {
		t.Fatalf("unexpected local descriptions %+v", conn.local)
	}
	if len(conn.candidates) != 1 || conn.candidates[0].Candidate != "early" {
		t.Fatalf("unexpected candidates %+v", conn.candidates)
	}
}

func TestController_RejectedCandidateKeepsCall(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)
	tc.signal(model.TypeOffer, "a", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"})
	tc.pump(t, tc.sent(model.TypeAnswer))
	before := tc.relay.types()

	conn := tc.conns.last()
	conn.mx.Lock()
	conn.addErr = errors.New("bad candidate")
	conn.mx.Unlock()

	tc.signal(model.TypeICECandidate, "a", webrtc.ICECandidateInit{Candidate: "broken"})

	if tc.state != StateNegotiating {
		t.Fatalf("state=%s, want %s", tc.state, StateNegotiating)
	}
	if tc.attempts != 0 || tc.reconnecting {
		t.Fatalf("attempts=%d reconnecting=%v, want no reconnect", tc.attempts, tc.reconnecting)
	}
	if conn.isClosed() {
		t.Fatal("connection is closed after rejected candidate")
	}
	assertTypes(t, tc.relay.types(), before...)
}

func TestController_AppliesAnswerFromTarget(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)
	tc.signal(model.TypeUserJoined, "", model.UserPayload{UserID: "b"})
	tc.pump(t, tc.sent(model.TypeOffer))

	tc.signal(model.TypeAnswer, "stranger", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "wrong"})
	tc.signal(model.TypeAnswer, "b", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "right"})
	tc.pump(t, func() bool { return tc.remoteSet })

	conn := tc.conns.last()
	conn.mx.Lock()
	defer conn.mx.Unlock()
	if len(conn.remote) != 1 || conn.remote[0].SDP != "right" {
		t.Fatalf("unexpected remote descriptions %+v", conn.remote)
	}
}

func TestController_ConnectedResetsAttempts(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)
	tc.signal(model.TypeUserJoined, "", model.UserPayload{UserID: "b"})
	tc.pump(t, tc.sent(model.TypeOffer))
	tc.attempts = 3

	tc.handle(connStateChanged{gen: tc.gen, state: webrtc.PeerConnectionStateConnected})

	if tc.state != StateConnected {
		t.Fatalf("state=%s, want %s", tc.state, StateConnected)
	}
	if tc.attempts != 0 {
		t.Fatalf("attempts=%d, want 0", tc.attempts)
	}
	if last := tc.relay.last(); last.Type != model.TypeUserStatus {
		t.Fatalf("last sent %q, want status", last.Type)
	}
}

func TestController_SupersededConnectionIgnored(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)

	tc.signal(model.TypeUserJoined, "", model.UserPayload{UserID: "b"})
	first := tc.conns.last()
	firstGen := tc.gen

	tc.signal(model.TypeOffer, "b", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"})
	if !first.isClosed() {
		t.Fatal("superseded connection is not closed")
	}

	tc.handle(connStateChanged{gen: firstGen, state: webrtc.PeerConnectionStateFailed})
	if tc.state != StateNegotiating {
		t.Fatalf("state=%s, want %s", tc.state, StateNegotiating)
	}

	tc.pump(t, tc.sent(model.TypeAnswer))
	if _, ok := tc.relay.find(model.TypeOffer); ok {
		t.Fatal("offer of superseded connection was sent")
	}
}

func TestController_StepTimeout(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	tc := newTestController(t, func(cfg *Config) {
		cfg.StepTimeout = 50 * time.Millisecond
	})
	tc.conns.block = block
	tc.start(t)

	tc.signal(model.TypeUserJoined, "", model.UserPayload{UserID: "b"})
	tc.pump(t, func() bool { return tc.state == StateReconnecting })

	if !tc.conns.last().isClosed() {
		t.Fatal("timed out connection is not closed")
	}
	assertTypes(t, tc.relay.types(), model.TypeJoinRoom, model.TypeJoinRoom)
}

func TestController_ReconnectIsBounded(t *testing.T) {
	tc := newTestController(t, func(cfg *Config) {
		cfg.MaxReconnects = 2
	})
	tc.start(t)
	tc.signal(model.TypeYouAreFirst, "", nil)

	tc.handle(relayDisconnected{})
	if tc.state != StateReconnecting || tc.attempts != 1 {
		t.Fatalf("state=%s attempts=%d", tc.state, tc.attempts)
	}

	// guarded until released
	tc.handle(relayDisconnected{})
	if tc.attempts != 1 {
		t.Fatalf("attempts=%d, want 1", tc.attempts)
	}

	tc.handle(reconnectReleased{})
	if tc.attempts != 2 {
		t.Fatalf("attempts=%d, want 2", tc.attempts)
	}

	tc.handle(reconnectReleased{})
	if tc.state != StateUnrecoverable {
		t.Fatalf("state=%s, want %s", tc.state, StateUnrecoverable)
	}
	if !errors.Is(tc.state.Err(), ErrUnrecoverable) {
		t.Fatalf("err=%v", tc.state.Err())
	}

	tc.handle(relayDisconnected{})
	tc.handle(reconnectReleased{})
	if n := tc.countState(StateUnrecoverable); n != 1 {
		t.Fatalf("unrecoverable reported %d times", n)
	}
	assertTypes(t, tc.relay.types(), model.TypeJoinRoom, model.TypeJoinRoom, model.TypeJoinRoom)
}

func TestController_FailureWhileGuardedIsRetried(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)

	tc.handle(relayDisconnected{})
	tc.signal(model.TypeYouAreFirst, "", nil)
	tc.signal(model.TypeUserJoined, "", model.UserPayload{UserID: "b"})
	tc.pump(t, tc.sent(model.TypeOffer))
	tc.handle(connStateChanged{gen: tc.gen, state: webrtc.PeerConnectionStateConnected})

	// guard of the previous attempt is still held
	tc.handle(connStateChanged{gen: tc.gen, state: webrtc.PeerConnectionStateFailed})
	if tc.state != StateConnected {
		t.Fatalf("state=%s, want %s until guard is released", tc.state, StateConnected)
	}

	tc.handle(reconnectReleased{})
	if tc.state != StateReconnecting || tc.attempts != 1 {
		t.Fatalf("state=%s attempts=%d, want %s 1", tc.state, tc.attempts, StateReconnecting)
	}
	if tc.pendingReconnect != "" {
		t.Fatalf("pending reconnect %q is not cleared", tc.pendingReconnect)
	}
	n := 0
	for _, typ := range tc.relay.types() {
		if typ == model.TypeJoinRoom {
			n++
		}
	}
	if n != 3 {
		t.Fatalf("join sent %d times, want 3", n)
	}
}

func TestController_PeerLeftRejoins(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)
	tc.signal(model.TypeUserJoined, "", model.UserPayload{UserID: "b"})
	tc.pump(t, tc.sent(model.TypeOffer))
	conn := tc.conns.last()

	tc.signal(model.TypeUserLeft, "", model.UserPayload{UserID: "b"})
	if tc.state != StateReconnecting {
		t.Fatalf("state=%s, want %s", tc.state, StateReconnecting)
	}
	if !conn.isClosed() {
		t.Fatal("connection to departed peer is not closed")
	}

	tc.signal(model.TypeYouAreFirst, "", nil)
	tc.handle(reconnectReleased{})
	if tc.state != StateWaiting || tc.reconnecting {
		t.Fatalf("state=%s reconnecting=%v", tc.state, tc.reconnecting)
	}
	if tc.attempts != 1 {
		t.Fatalf("attempts=%d, want 1", tc.attempts)
	}
}

func TestController_TerminalSignals(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		state State
		err   error
	}{
		{name: "room full", typ: model.TypeRoomFull, state: StateRoomFull, err: ErrRoomFull},
		{name: "room blocked", typ: model.TypeRoomBlocked, state: StateRoomBlocked, err: ErrRoomBlocked},
		{name: "force ended", typ: model.TypeCallForceEnded, state: StateEnded, err: ErrForceEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestController(t, nil)
			tc.start(t)

			tc.signal(tt.typ, "", nil)
			if tc.state != tt.state {
				t.Fatalf("state=%s, want %s", tc.state, tt.state)
			}
			if !errors.Is(tc.state.Err(), tt.err) {
				t.Fatalf("err=%v, want %v", tc.state.Err(), tt.err)
			}

			// nothing gets it out of terminal state
			tc.handle(relayDisconnected{})
			tc.signal(model.TypeYouAreFirst, "", nil)
			if tc.state != tt.state {
				t.Fatalf("state=%s, want %s", tc.state, tt.state)
			}
		})
	}
}

func TestController_ToggleGuard(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)

	tc.handle(actionToggleAudio{})
	if !tc.local.AudioMuted || tc.audio.Enabled() {
		t.Fatal("audio is not muted")
	}
	tc.handle(actionToggleAudio{})
	if !tc.local.AudioMuted {
		t.Fatal("toggle was not guarded")
	}

	tc.handle(actionReleased{action: toggleAudio})
	tc.handle(actionToggleAudio{})
	if tc.local.AudioMuted || !tc.audio.Enabled() {
		t.Fatal("audio is not unmuted")
	}

	tc.handle(actionToggleVideo{})
	if !tc.local.VideoOff || tc.video.Enabled() {
		t.Fatal("video is not off")
	}

	status := tc.relay.last()
	var s model.Status
	if err := status.DecodePayload(&s); err != nil {
		t.Fatal(err)
	}
	if s != (model.Status{AudioMuted: false, VideoOff: true}) {
		t.Fatalf("unexpected status %+v", s)
	}
}

func TestController_SwitchCamera(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)
	tc.signal(model.TypeUserJoined, "", model.UserPayload{UserID: "b"})
	tc.pump(t, tc.sent(model.TypeOffer))
	oldVideo := tc.video

	tc.handle(actionSwitchCamera{})
	tc.handle(actionSwitchCamera{})
	tc.pump(t, func() bool { return tc.facing == FacingEnvironment })

	if !oldVideo.Stopped() {
		t.Fatal("previous camera is not released")
	}
	sender := tc.conns.last().sender
	sender.mx.Lock()
	replaced := len(sender.tracks) == 1 && sender.tracks[0] == webrtc.TrackLocal(tc.video)
	sender.mx.Unlock()
	if !replaced {
		t.Fatal("outgoing video track is not replaced")
	}
	tc.media.mx.Lock()
	facings := tc.media.facings
	tc.media.mx.Unlock()
	if len(facings) != 1 {
		t.Fatalf("camera acquired %d times, want 1", len(facings))
	}
	if tc.busy[switchCamera] {
		t.Fatal("switch camera is still guarded")
	}
}

func TestController_SwitchCameraFailureKeepsCall(t *testing.T) {
	tc := newTestController(t, nil)
	tc.media.videoErr = errors.New("no rear camera")
	tc.start(t)
	tc.signal(model.TypeYouAreFirst, "", nil)

	tc.handle(actionSwitchCamera{})
	tc.pump(t, func() bool { return !tc.busy[switchCamera] })

	if tc.facing != FacingUser || tc.video.Stopped() {
		t.Fatal("current camera is affected by failed switch")
	}
	if tc.state != StateWaiting {
		t.Fatalf("state=%s, want %s", tc.state, StateWaiting)
	}
}

func TestController_ForceHangup(t *testing.T) {
	tc := newTestController(t, nil)
	tc.start(t)

	tc.handle(actionForceHangup{})

	ann := tc.relay.last()
	var roomID string
	if err := ann.DecodePayload(&roomID); err != nil {
		t.Fatal(err)
	}
	if ann.Type != model.TypeForceHangup || roomID != "room" {
		t.Fatalf("unexpected announcement %+v", ann)
	}
}

func TestController_RunReturnsTerminalError(t *testing.T) {
	tc := newTestController(t, nil)

	errc := make(chan error, 1)
	go func() { errc <- tc.Run(context.Background()) }()

	tc.HandleSignal(model.NewAnnouncement(model.TypeRoomFull, "", nil))

	select {
	case err := <-errc:
		if !errors.Is(err, ErrRoomFull) {
			t.Fatalf("err=%v, want %v", err, ErrRoomFull)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("controller did not stop")
	}

	tc.media.mx.Lock()
	defer tc.media.mx.Unlock()
	for _, track := range tc.media.tracks {
		if !track.Stopped() {
			t.Fatalf("track %s is not released", track.ID())
		}
	}
}

func TestController_RunStopsOnCancel(t *testing.T) {
	tc := newTestController(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- tc.Run(ctx) }()

	tc.ToggleAudio()
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("controller did not stop")
	}

	// posting after stop must not block
	tc.SwitchCamera()
	tc.ForceHangup()
}
