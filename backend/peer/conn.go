package peer

import (
	"errors"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type (
	// PeerConnection is the part of peer connection used by the controller.
	PeerConnection interface {
		AddTrack(track webrtc.TrackLocal) (TrackSender, error)
		CreateOffer() (webrtc.SessionDescription, error)
		CreateAnswer() (webrtc.SessionDescription, error)
		SetLocalDescription(desc webrtc.SessionDescription) error
		SetRemoteDescription(desc webrtc.SessionDescription) error
		AddICECandidate(candidate webrtc.ICECandidateInit) error
		Close() error
	}

	// TrackSender replaces outgoing track in place.
	TrackSender interface {
		ReplaceTrack(track webrtc.TrackLocal) error
	}

	// PeerHandlers are invoked by peer connection from its own goroutines.
	PeerHandlers struct {
		OnICECandidate    func(webrtc.ICECandidateInit)
		OnConnectionState func(webrtc.PeerConnectionState)
		OnTrack           func(webrtc.RTPCodecType)
	}

	ConnFactory interface {
		NewPeerConnection(h PeerHandlers) (PeerConnection, error)
	}
)

var ErrCreatePeerConnection = errors.New("unable to create peer connection")

type PionConfig struct {
	Logger     *zerolog.Logger
	ICEServers []webrtc.ICEServer
}

// PionFactory creates pion peer connections.
type PionFactory struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
}

func NewPionFactory(cfg PionConfig) (*PionFactory, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, errors.Join(ErrCreatePeerConnection, err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, errors.Join(ErrCreatePeerConnection, err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = &zerologFactory{
		logger: cfg.Logger.With().Str("component", "pion").Logger(),
	}
	return &PionFactory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(me),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
		iceServers: cfg.ICEServers,
	}, nil
}

func (f *PionFactory) NewPeerConnection(h PeerHandlers) (PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: f.iceServers,
	})
	if err != nil {
		return nil, errors.Join(ErrCreatePeerConnection, err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || h.OnICECandidate == nil {
			// gathering complete
			return
		}
		h.OnICECandidate(c.ToJSON())
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if h.OnConnectionState != nil {
			h.OnConnectionState(state)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if h.OnTrack != nil {
			h.OnTrack(track.Kind())
		}
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, rErr := track.Read(buf); rErr != nil {
					return
				}
			}
		}()
	})
	return &pionConn{pc: pc}, nil
}

type pionConn struct {
	pc *webrtc.PeerConnection
}

func (c *pionConn) AddTrack(track webrtc.TrackLocal) (TrackSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	// RTCP has to be read for interceptors to work
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, rErr := sender.Read(buf); rErr != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (c *pionConn) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}
