// Package signaling connects a participant to the signaling relay.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/client/media"
	"github.com/adwski/webrtc-rooms/client/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	incomingBuffer = 64
)

var (
	ErrClosed     = errors.New("signaling connection is closed")
	ErrInvalidURL = errors.New("invalid signaling url")
)

type Config struct {
	Logger *zerolog.Logger
	URL    string
}

// Client is a websocket connection to the relay. It implements session.Signaler.
type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	incoming chan model.Announcement
	outgoing chan model.Announcement
	done     chan struct{}
	pumps    sync.WaitGroup
	once     sync.Once

	mx    sync.Mutex
	id    string
	ready chan struct{}
}

var _ session.Signaler = (*Client)(nil)

// Dial connects to the relay and starts read and write pumps.
func Dial(ctx context.Context, cfg *Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		logger:   cfg.Logger.With().Str("component", "signaling").Logger(),
		incoming: make(chan model.Announcement, incomingBuffer),
		outgoing: make(chan model.Announcement),
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
	}
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	c.pumps.Add(2)
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Incoming yields relay announcements. It is closed once the connection is gone.
func (c *Client) Incoming() <-chan model.Announcement {
	return c.incoming
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ID waits for the participant id assigned by the relay.
func (c *Client) ID(ctx context.Context) (string, error) {
	select {
	case <-c.ready:
		c.mx.Lock()
		defer c.mx.Unlock()
		return c.id, nil
	case <-c.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) setID(id string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.id != "" {
		return
	}
	c.id = id
	close(c.ready)
}

func (c *Client) readPump() {
	defer func() {
		c.pumps.Done()
		close(c.incoming)
		c.shutdown()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var ann model.Announcement
		if err := c.conn.ReadJSON(&ann); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("connection closed")
			} else {
				select {
				case <-c.done:
				default:
					c.logger.Error().Err(err).Msg("unexpected error during receive")
				}
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.logger.Trace().Str("type", ann.Type).Str("src", ann.SRC).Msg("received")

		if ann.Type == model.AnnouncementTypeSession && ann.DST != "" {
			c.setID(ann.DST)
		}
		select {
		case c.incoming <- ann:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.pumps.Done()
	}()

	for {
		select {
		case ann := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(&ann); err != nil {
				c.logger.Error().Err(err).Msg("failed to write outgoing message")
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("failed to send ping")
				c.shutdown()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Close says goodbye to the relay and releases the connection.
func (c *Client) Close() error {
	c.shutdown()
	// read pump is unblocked by the close frame echo or by conn.Close below
	done := make(chan struct{})
	go func() {
		c.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(writeWait):
	}
	return c.conn.Close()
}

func (c *Client) send(ctx context.Context, ann model.Announcement) error {
	select {
	case c.outgoing <- ann:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) sendPayload(ctx context.Context, typ, to string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return c.send(ctx, model.Announcement{Type: typ, DST: to, Payload: payload})
}

func (c *Client) JoinRoom(ctx context.Context, roomID, name string) error {
	return c.send(ctx, model.Announcement{
		Type:   model.AnnouncementTypeJoinRoom,
		RoomID: roomID,
		Name:   name,
	})
}

func (c *Client) LeaveRoom(ctx context.Context) error {
	return c.send(ctx, model.Announcement{Type: model.AnnouncementTypeLeaveRoom})
}

func (c *Client) SendOffer(ctx context.Context, to string, desc session.Description) error {
	return c.sendPayload(ctx, model.AnnouncementTypeOffer, to, desc)
}

func (c *Client) SendAnswer(ctx context.Context, to string, desc session.Description) error {
	return c.sendPayload(ctx, model.AnnouncementTypeAnswer, to, desc)
}

func (c *Client) SendCandidate(ctx context.Context, to string, cand session.Candidate) error {
	return c.sendPayload(ctx, model.AnnouncementTypeICECandidate, to, cand)
}

func (c *Client) SendToggle(ctx context.Context, kind media.Kind, roomID string, enabled bool) error {
	typ := model.AnnouncementTypeToggleAudio
	if kind == media.KindVideo {
		typ = model.AnnouncementTypeToggleVideo
	}
	return c.send(ctx, model.Announcement{
		Type:    typ,
		RoomID:  roomID,
		Enabled: model.Bool(enabled),
	})
}
