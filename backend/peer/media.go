package peer

import (
	"errors"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	streamID = "local"
)

// Facing is camera direction.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

func (f Facing) Other() Facing {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

var ErrTrackStopped = errors.New("track is stopped")

// MediaSource acquires local capture.
type MediaSource interface {
	// Open acquires audio and video capture.
	Open(facing Facing) (audio, video *LocalTrack, err error)
	// Video acquires video capture only, used to switch cameras.
	Video(facing Facing) (*LocalTrack, error)
}

// LocalTrack is an outgoing track which can be muted without renegotiation.
// Samples written to a disabled track are dropped.
type LocalTrack struct {
	*webrtc.TrackLocalStaticSample

	enabled atomic.Bool
	stopped atomic.Bool
	release func()
}

// NewLocalTrack creates track of the given codec. Release is called once on Stop
// and is where capture device should be freed.
func NewLocalTrack(codec webrtc.RTPCodecCapability, id string, release func()) (*LocalTrack, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	t := &LocalTrack{
		TrackLocalStaticSample: sample,
		release:                release,
	}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *LocalTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *LocalTrack) WriteSample(s media.Sample) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.TrackLocalStaticSample.WriteSample(s)
}

func (t *LocalTrack) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	if t.release != nil {
		t.release()
	}
}

func (t *LocalTrack) Stopped() bool {
	return t.stopped.Load()
}

// SyntheticSource produces tracks without a capture device behind them.
// It is used by the headless client which only needs signaling to succeed.
type SyntheticSource struct{}

func (SyntheticSource) Open(facing Facing) (*LocalTrack, *LocalTrack, error) {
	audio, err := NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", nil)
	if err != nil {
		return nil, nil, err
	}
	video, err := SyntheticSource{}.Video(facing)
	if err != nil {
		audio.Stop()
		return nil, nil, err
	}
	return audio, video, nil
}

func (SyntheticSource) Video(facing Facing) (*LocalTrack, error) {
	return NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video-"+string(facing), nil)
}
