package main

import (
	"bytes"
	"net/http/httptest"
	"testing"

	httpServer "github.com/adwski/webrtc-rooms/backend/server/http"
	"github.com/adwski/webrtc-rooms/backend/storage/memory"
	"github.com/adwski/webrtc-rooms/client/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	logger := zerolog.Nop()

	var out bytes.Buffer
	root := newRootCmd(cfg, &logger)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	return &out, root.Execute()
}

func TestRoomsCommands(t *testing.T) {
	store := memory.NewMemStore()
	_, err := store.Join("X9Q2", "A", "Ann")
	require.NoError(t, err)

	logger := zerolog.Nop()
	srv := httpServer.NewServer(httpServer.Config{Logger: &logger, RoomService: store})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	out, err := newTestRoot(t, "rooms", "--api-url", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "X9Q2")

	out, err = newTestRoot(t, "room", "x9q2", "--api-url", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Ann")

	_, err = newTestRoot(t, "room", "NOPE", "--api-url", ts.URL)
	require.Error(t, err)
}

func TestRootCmd_Validation(t *testing.T) {
	_, err := newTestRoot(t, "rooms", "--log-level", "loud")
	require.ErrorIs(t, err, config.ErrLevel)

	_, err = newTestRoot(t, "rooms", "--udp-port-min", "6000", "--udp-port-max", "5000")
	require.ErrorIs(t, err, config.ErrPorts)

	_, err = newTestRoot(t, "join")
	require.Error(t, err)
}
