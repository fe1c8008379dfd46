package signaling

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	websocketServer "github.com/adwski/webrtc-rooms/backend/server/websocket"
	"github.com/adwski/webrtc-rooms/backend/service"
	"github.com/adwski/webrtc-rooms/backend/storage/memory"
	_switch "github.com/adwski/webrtc-rooms/backend/switch"
	"github.com/adwski/webrtc-rooms/client/media"
	"github.com/adwski/webrtc-rooms/client/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelay(t *testing.T) string {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		RoomStore: memory.NewMemStore(),
		Switch:    _switch.NewSwitch(&logger),
		Logger:    &logger,
	})
	srv := websocketServer.NewServer(websocketServer.Config{
		Logger:           &logger,
		SignalingService: svc,
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/signal"
}

func dial(t *testing.T, url string) (*Client, string) {
	t.Helper()
	logger := zerolog.Nop()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, err := Dial(ctx, &Config{Logger: &logger, URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	id, err := c.ID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return c, id
}

// next returns the first incoming announcement of type typ.
func next(t *testing.T, c *Client, typ string) model.Announcement {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ann, ok := <-c.Incoming():
			require.True(t, ok, "connection closed while waiting for %s", typ)
			if ann.Type == typ {
				return ann
			}
		case <-timeout:
			t.Fatalf("no %s received", typ)
		}
	}
}

func TestDial_InvalidURL(t *testing.T) {
	logger := zerolog.Nop()
	_, err := Dial(context.Background(), &Config{Logger: &logger, URL: "http://localhost:1/signal"})
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestClient_RelayRoundTrip(t *testing.T) {
	url := newRelay(t)
	ctx := context.Background()

	alice, aliceID := dial(t, url)
	require.NoError(t, alice.JoinRoom(ctx, "X9Q2", "Alice"))
	users := next(t, alice, model.AnnouncementTypeRoomUsers)
	assert.Empty(t, users.Users)

	bob, bobID := dial(t, url)
	require.NoError(t, bob.JoinRoom(ctx, "X9Q2", "Bob"))
	users = next(t, bob, model.AnnouncementTypeRoomUsers)
	assert.Equal(t, []string{aliceID}, users.Users)

	connected := next(t, alice, model.AnnouncementTypeUserConnected)
	assert.Equal(t, bobID, connected.SRC)
	assert.Equal(t, "Bob", connected.Name)

	offer := session.Description{Type: "offer", SDP: "v=0"}
	require.NoError(t, bob.SendOffer(ctx, aliceID, offer))
	got := next(t, alice, model.AnnouncementTypeOffer)
	assert.Equal(t, bobID, got.SRC)
	var desc session.Description
	require.NoError(t, json.Unmarshal(got.Payload, &desc))
	assert.Equal(t, offer, desc)

	mid := "0"
	require.NoError(t, alice.SendCandidate(ctx, bobID, session.Candidate{Candidate: "candidate:1", SDPMid: &mid}))
	got = next(t, bob, model.AnnouncementTypeICECandidate)
	var cand session.Candidate
	require.NoError(t, json.Unmarshal(got.Payload, &cand))
	assert.Equal(t, "candidate:1", cand.Candidate)
	require.NotNil(t, cand.SDPMid)
	assert.Equal(t, "0", *cand.SDPMid)

	require.NoError(t, alice.SendToggle(ctx, media.KindVideo, "X9Q2", false))
	got = next(t, bob, model.AnnouncementTypeUserVideoToggle)
	assert.Equal(t, aliceID, got.SRC)
	require.NotNil(t, got.Enabled)
	assert.False(t, *got.Enabled)

	require.NoError(t, bob.LeaveRoom(ctx))
	left := next(t, alice, model.AnnouncementTypeUserDisconnected)
	assert.Equal(t, bobID, left.SRC)
}

func TestClient_Close(t *testing.T) {
	c, _ := dial(t, newRelay(t))
	require.NoError(t, c.Close())

	require.ErrorIs(t, c.LeaveRoom(context.Background()), ErrClosed)
	select {
	case <-c.Done():
	default:
		t.Fatal("done must be closed")
	}
	for range c.Incoming() {
	}
}
