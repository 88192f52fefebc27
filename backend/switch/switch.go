package _switch

import (
	"context"
	"sync"
	"time"

	"github.com/adwski/webrtc-call-relay/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout        = time.Second
	defaultDisconnectTimout = 2 * time.Second
)

type (
	// Handler processes announcements received from an endpoint.
	Handler func(ctx context.Context, ann model.Announcement)

	// DisconnectHandler is the last call made for an endpoint,
	// it never overlaps with Handler calls of the same endpoint.
	DisconnectHandler func(ctx context.Context, endpoint string)
)

// Switch delivers announcements to connected endpoints by their id.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]model.Wire),
	}
}

func (sw *Switch) Disconnect(endpoint string) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("endpoint", endpoint).
			Msg("endpoint disconnected")
	}()

	delete(sw.fwd, endpoint)
}

// Connect registers the endpoint and starts passing its inbound announcements
// to handler until ctx is done. After that disconnect is called
// and wire.Done is closed.
func (sw *Switch) Connect(
	ctx context.Context,
	endpoint string,
	wire model.Wire,
	handler Handler,
	disconnect DisconnectHandler,
) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("endpoint", endpoint).
			Msg("endpoint connected")
		go sw.receiveAnnouncements(ctx, endpoint, wire, handler, disconnect)
	}()

	sw.fwd[endpoint] = wire
}

// Hangup forcibly terminates the endpoint connection.
// Endpoint is removed from the switch right away.
func (sw *Switch) Hangup(endpoint string) {
	sw.mx.Lock()
	wire, ok := sw.fwd[endpoint]
	delete(sw.fwd, endpoint)
	sw.mx.Unlock()

	if ok {
		wire.Hangup()
		sw.logger.Debug().Str("endpoint", endpoint).Msg("endpoint hung up")
	}
}

func (sw *Switch) receiveAnnouncements(
	ctx context.Context,
	endpoint string,
	wire model.Wire,
	handler Handler,
	disconnect DisconnectHandler,
) {
	defer func() {
		dCtx, cancel := context.WithTimeout(context.Background(), defaultDisconnectTimout)
		defer cancel()
		disconnect(dCtx, endpoint)
		close(wire.Done)
	}()

rcvLoop:
	for {
		select {
		case <-ctx.Done():
			break rcvLoop
		case ann := <-wire.RX:
			if ann.SRC != endpoint {
				sw.logger.Error().
					Str("endpoint", endpoint).
					Str("src", ann.SRC).
					Msg("announcement with foreign src")
				continue
			}
			handler(ctx, ann)
		}
	}
}

// Send delivers announcement to ann.DST. It reports whether announcement was delivered.
func (sw *Switch) Send(ctx context.Context, ann model.Announcement) bool {
	logger := sw.logger.With().
		Str("type", ann.Type).
		Str("src", ann.SRC).
		Str("dst", ann.DST).Logger()

	sw.mx.RLock()
	wire, ok := sw.fwd[ann.DST]
	sw.mx.RUnlock()

	if !ok {
		logger.Debug().Msg("cannot forward, dst not found")
		return false
	}
	return send(ctx, ann, wire.TX, &logger)
}

func send(ctx context.Context, ann model.Announcement, tx chan<- model.Announcement, logger *zerolog.Logger) bool {
	var sent bool
	tCh := time.NewTimer(defaultFwdTimout)
	select {
	case <-ctx.Done():
	case <-tCh.C:
		logger.Error().Msg("dead endpoint")
	case tx <- ann:
		logger.Debug().Msg("announce is forwarded")
		sent = true
	}
	tCh.Stop()
	return sent
}
