package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultShutdownDeadline = 10 * time.Second
	defaultSessionCloseWait = 2 * time.Second

	defaultReadBufferSize   = 10000
	defaultWriteBufferSize  = 10000
	defaultMaxMessageSize   = 64 * 1024 // SDP with several codecs easily exceeds 10k
	defaultHandshakeTimeout = 3 * time.Second
	defaultWriteDeadline    = 5 * time.Second
	defaultCloseDeadline    = 2 * time.Second

	// pong must arrive within defaultPongWait - defaultPingInterval after ping
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second

	defaultMessageRate  = 50
	defaultMessageBurst = 100
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	// SignalingService attaches participant connections to the relay.
	SignalingService interface {
		CreateSignalingSession(context.Context, string, model.Wire) error
		DeleteSignalingSession(context.Context, string) error
	}

	Config struct {
		Logger           *zerolog.Logger
		SignalingService SignalingService
		ListenAddr       string

		// MessageRate and MessageBurst limit inbound messages per connection.
		MessageRate  float64
		MessageBurst int
	}

	Server struct {
		*http.Server
		svc      SignalingService
		upgrader *websocket.Upgrader
		logger   zerolog.Logger
		msgRate  rate.Limit
		msgBurst int
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:   cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:      cfg.SignalingService,
		msgRate:  rate.Limit(cfg.MessageRate),
		msgBurst: cfg.MessageBurst,
		upgrader: &websocket.Upgrader{
			HandshakeTimeout: defaultHandshakeTimeout,
			ReadBufferSize:   defaultReadBufferSize,
			WriteBufferSize:  defaultWriteBufferSize,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
	if srv.msgRate <= 0 {
		srv.msgRate = defaultMessageRate
	}
	if srv.msgBurst <= 0 {
		srv.msgBurst = defaultMessageBurst
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /signal", srv.signal)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()
	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

// signal upgrades the request and registers a fresh participant.
// Participant id lives as long as the websocket connection.
func (srv *Server) signal(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	pc := &participantConn{
		id:      uuid.NewString(),
		conn:    conn,
		wire:    model.NewWire(),
		limiter: rate.NewLimiter(srv.msgRate, srv.msgBurst),
	}
	pc.logger = srv.logger.With().Str("participant", pc.id).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	if err = srv.svc.CreateSignalingSession(ctx, pc.id, pc.wire); err != nil {
		srv.logger.Error().Err(err).Msg("failed to create signaling session")
		cancel()
		pc.close()
		return
	}
	pc.logger.Debug().Str("remote", r.RemoteAddr).Msg("participant connected")

	go srv.serve(ctx, cancel, pc)
}

// serve pumps messages in both directions until either side quits,
// then detaches the participant from the relay.
func (srv *Server) serve(ctx context.Context, cancel context.CancelFunc, pc *participantConn) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		pc.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		pc.writeLoop(ctx)
		cancel()
		// unblock readLoop waiting in ReadMessage
		_ = pc.conn.SetReadDeadline(time.Now())
	}()
	wg.Wait()
	pc.close()

	dCtx, dCancel := context.WithTimeout(context.Background(), defaultSessionCloseWait)
	defer dCancel()
	if err := srv.svc.DeleteSignalingSession(dCtx, pc.id); err != nil {
		pc.logger.Error().Err(err).Msg("failed to delete signaling session")
		return
	}
	pc.logger.Debug().Msg("participant disconnected")
}

type participantConn struct {
	conn    *websocket.Conn
	limiter *rate.Limiter
	wire    model.Wire
	logger  zerolog.Logger
	id      string
}

func (pc *participantConn) extendRead() error {
	return pc.conn.SetReadDeadline(time.Now().Add(defaultPongWait))
}

// readLoop stamps every inbound announcement with the participant id
// and hands it to the relay. Messages over the rate limit are dropped.
func (pc *participantConn) readLoop(ctx context.Context) {
	pc.conn.SetReadLimit(defaultMaxMessageSize)
	pc.conn.SetPongHandler(func(string) error {
		pc.logger.Trace().Msg("pong")
		return pc.extendRead()
	})
	if err := pc.extendRead(); err != nil {
		pc.logger.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	for ctx.Err() == nil {
		_, msg, err := pc.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				pc.logger.Debug().Err(err).Msg("connection closed by participant")
			} else {
				pc.logger.Error().Err(err).Msg("receive failed")
			}
			return
		}
		// any inbound frame proves the peer is alive
		if err = pc.extendRead(); err != nil {
			pc.logger.Error().Err(err).Msg("failed to set read deadline")
			return
		}
		if !pc.limiter.Allow() {
			pc.logger.Warn().Msg("message rate exceeded, dropping message")
			continue
		}

		var ann model.Announcement
		if err = json.Unmarshal(msg, &ann); err != nil {
			pc.logger.Warn().Err(err).Msg("malformed message")
			continue
		}
		ann.SRC = pc.id
		select {
		case pc.wire.RX <- ann:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop delivers relay output and keeps the connection alive with pings.
func (pc *participantConn) writeLoop(ctx context.Context) {
	ping := time.NewTicker(defaultPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := pc.write(websocket.PingMessage, nil); err != nil {
				pc.logger.Error().Err(err).Msg("failed to send ping")
				return
			}
			pc.logger.Trace().Msg("ping")
		case ann, ok := <-pc.wire.TX:
			if !ok {
				return
			}
			b, err := json.Marshal(&ann)
			if err != nil {
				pc.logger.Error().Err(err).Str("type", ann.Type).Msg("failed to encode message")
				continue
			}
			if err = pc.write(websocket.TextMessage, b); err != nil {
				pc.logger.Error().Err(err).Msg("failed to send message")
				return
			}
		}
	}
}

func (pc *participantConn) write(messageType int, data []byte) error {
	if err := pc.conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
		return err
	}
	return pc.conn.WriteMessage(messageType, data)
}

// close says goodbye to the participant and releases the socket.
func (pc *participantConn) close() {
	err := pc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultCloseDeadline))
	if err != nil {
		pc.logger.Debug().Err(err).Msg("failed to send close message")
	}
	if err = pc.conn.Close(); err != nil {
		pc.logger.Debug().Err(err).Msg("failed to close connection")
	}
}
