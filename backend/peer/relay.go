package peer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/adwski/webrtc-call-relay/backend/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultRelayDialTimeout   = 5 * time.Second
	defaultRelayWriteDeadline = 5 * time.Second
	defaultRelayCloseDeadline = 2 * time.Second
	defaultRelayMaxMessage    = 64 * 1024

	// server pings every few seconds, silence longer than that means dead connection
	defaultRelayPingWait = 15 * time.Second
)

var (
	ErrRelayClosed = errors.New("relay client is closed")
	ErrRelayDial   = errors.New("cannot connect to relay")
	ErrRelaySend   = errors.New("cannot send to relay")
)

type RelayConfig struct {
	Logger *zerolog.Logger
	// URL of the relay signaling endpoint, ws://host:port/signal
	URL string

	// OnMessage is called from the read goroutine for every announcement.
	OnMessage func(model.Announcement)
	// OnDisconnect is called when established connection is lost.
	// It is not called after Close.
	OnDisconnect func()
}

// RelayClient is the websocket connection to the relay server.
// Send after disconnect transparently dials a new connection,
// server then sees the client as a new participant.
type RelayClient struct {
	logger       zerolog.Logger
	url          string
	dialer       *websocket.Dialer
	onMessage    func(model.Announcement)
	onDisconnect func()

	mx     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func NewRelayClient(cfg RelayConfig) *RelayClient {
	rc := &RelayClient{
		logger:       cfg.Logger.With().Str("component", "relay-client").Logger(),
		url:          cfg.URL,
		dialer:       &websocket.Dialer{HandshakeTimeout: defaultRelayDialTimeout},
		onMessage:    cfg.OnMessage,
		onDisconnect: cfg.OnDisconnect,
	}
	if rc.onMessage == nil {
		rc.onMessage = func(model.Announcement) {}
	}
	if rc.onDisconnect == nil {
		rc.onDisconnect = func() {}
	}
	return rc
}

// Connect dials the relay. It is a no-op if connection is already established.
func (rc *RelayClient) Connect(ctx context.Context) error {
	rc.mx.Lock()
	defer rc.mx.Unlock()
	return rc.dial(ctx)
}

// dial must be called with mx held.
func (rc *RelayClient) dial(ctx context.Context) error {
	if rc.closed {
		return ErrRelayClosed
	}
	if rc.conn != nil {
		return nil
	}

	conn, _, err := rc.dialer.DialContext(ctx, rc.url, nil)
	if err != nil {
		return errors.Join(ErrRelayDial, err)
	}
	conn.SetReadLimit(defaultRelayMaxMessage)
	if err = conn.SetReadDeadline(time.Now().Add(defaultRelayPingWait)); err != nil {
		_ = conn.Close()
		return errors.Join(ErrRelayDial, err)
	}
	conn.SetPingHandler(func(data string) error {
		rc.logger.Trace().Msg("got ping")
		if dErr := conn.SetReadDeadline(time.Now().Add(defaultRelayPingWait)); dErr != nil {
			return dErr
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data),
			time.Now().Add(defaultRelayWriteDeadline))
	})

	rc.conn = conn
	rc.logger.Debug().Str("url", rc.url).Msg("connected to relay")

	go rc.readLoop(conn)
	return nil
}

func (rc *RelayClient) readLoop(conn *websocket.Conn) {
	defer func() {
		rc.mx.Lock()
		if rc.conn == conn {
			rc.conn = nil
		}
		closed := rc.closed
		rc.mx.Unlock()

		_ = conn.Close()
		if !closed {
			rc.onDisconnect()
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				rc.logger.Warn().Err(err).Msg("relay closed connection")
			} else {
				rc.logger.Debug().Err(err).Msg("relay connection lost")
			}
			return
		}

		var ann model.Announcement
		if err = json.Unmarshal(msg, &ann); err != nil {
			rc.logger.Error().Err(err).Msg("failed to unmarshall incoming message")
			continue
		}
		rc.onMessage(ann)
	}
}

// Send writes announcement to the relay, dialing first if there's no connection.
func (rc *RelayClient) Send(ann model.Announcement) error {
	rc.mx.Lock()
	defer rc.mx.Unlock()

	if rc.conn == nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultRelayDialTimeout)
		err := rc.dial(ctx)
		cancel()
		if err != nil {
			return err
		}
	}

	b, err := json.Marshal(&ann)
	if err != nil {
		return errors.Join(ErrRelaySend, err)
	}
	if err = rc.conn.SetWriteDeadline(time.Now().Add(defaultRelayWriteDeadline)); err == nil {
		err = rc.conn.WriteMessage(websocket.TextMessage, b)
	}
	if err != nil {
		// read loop notices closed connection and reports disconnect
		_ = rc.conn.Close()
		rc.conn = nil
		return errors.Join(ErrRelaySend, err)
	}
	return nil
}

// Close terminates connection, client cannot be used after that.
func (rc *RelayClient) Close() {
	rc.mx.Lock()
	rc.closed = true
	conn := rc.conn
	rc.conn = nil
	rc.mx.Unlock()

	if conn == nil {
		return
	}
	if err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultRelayCloseDeadline)); err != nil {
		rc.logger.Debug().Err(err).Msg("failed to send close message")
	}
	if err := conn.Close(); err != nil {
		rc.logger.Debug().Err(err).Msg("failed to close relay connection")
	}
}
