package rtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adwski/webrtc-rooms/client/media"
	"github.com/adwski/webrtc-rooms/client/session"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory(t *testing.T) *Factory {
	t.Helper()
	logger := zerolog.Nop()
	f, err := NewFactory(&Config{Logger: &logger, IncludeLoopback: true})
	require.NoError(t, err)
	return f
}

func cameraTracks(t *testing.T) *media.Stream {
	t.Helper()
	s, err := media.SyntheticProvider{}.UserMedia(context.Background())
	require.NoError(t, err)
	return s
}

type peerEvents struct {
	mx           sync.Mutex
	candidates   []session.Candidate
	connectivity []session.Connectivity
}

func (pe *peerEvents) hooks() session.TransportEvents {
	return session.TransportEvents{
		OnCandidate: func(c session.Candidate) {
			pe.mx.Lock()
			defer pe.mx.Unlock()
			pe.candidates = append(pe.candidates, c)
		},
		OnConnectivity: func(c session.Connectivity) {
			pe.mx.Lock()
			defer pe.mx.Unlock()
			pe.connectivity = append(pe.connectivity, c)
		},
	}
}

func (pe *peerEvents) takeCandidates() []session.Candidate {
	pe.mx.Lock()
	defer pe.mx.Unlock()
	cs := pe.candidates
	pe.candidates = nil
	return cs
}

func (pe *peerEvents) reached(c session.Connectivity) bool {
	pe.mx.Lock()
	defer pe.mx.Unlock()
	for _, got := range pe.connectivity {
		if got == c {
			return true
		}
	}
	return false
}

func TestICEServers(t *testing.T) {
	servers := ICEServers(DefaultSTUNServers, []string{" ", "turn:turn.example.org:3478"}, "u", "p")
	require.Len(t, servers, 2)
	assert.Equal(t, DefaultSTUNServers, servers[0].URLs)
	assert.Equal(t, []string{"turn:turn.example.org:3478"}, servers[1].URLs)
	assert.Equal(t, "u", servers[1].Username)

	assert.Empty(t, ICEServers(nil, nil, "", ""))
}

func TestTransport_OfferCarriesLocalMedia(t *testing.T) {
	f := testFactory(t)
	tr, err := f.NewTransport(context.Background(), "A", cameraTracks(t).Tracks(), session.TransportEvents{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	offer, err := tr.CreateOffer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "offer", offer.Type)
	assert.Contains(t, offer.SDP, "m=audio")
	assert.Contains(t, offer.SDP, "m=video")
	assert.Contains(t, offer.SDP, "VP8")
	assert.Equal(t, offer.SDP, tr.(*Transport).LocalDescription())
}

func TestTransport_RejectsUnknownDescriptionType(t *testing.T) {
	f := testFactory(t)
	tr, err := f.NewTransport(context.Background(), "A", nil, session.TransportEvents{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	err = tr.SetRemoteDescription(context.Background(), session.Description{Type: "bogus", SDP: "v=0"})
	require.ErrorIs(t, err, ErrDescriptionType)

	err = tr.ReplaceVideoTrack(context.Background(), cameraTracks(t).VideoTrack())
	require.ErrorIs(t, err, ErrNoVideoSender)
}

func TestTransport_NegotiatesAndReplacesVideo(t *testing.T) {
	ctx := context.Background()
	f := testFactory(t)
	aliceMedia, bobMedia := cameraTracks(t), cameraTracks(t)

	aliceEvents, bobEvents := &peerEvents{}, &peerEvents{}
	alice, err := f.NewTransport(ctx, "bob", aliceMedia.Tracks(), aliceEvents.hooks())
	require.NoError(t, err)
	t.Cleanup(func() { _ = alice.Close() })
	bob, err := f.NewTransport(ctx, "alice", bobMedia.Tracks(), bobEvents.hooks())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bob.Close() })

	offer, err := alice.CreateOffer(ctx)
	require.NoError(t, err)
	require.NoError(t, bob.SetRemoteDescription(ctx, offer))
	answer, err := bob.CreateAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Type)
	require.NoError(t, alice.SetRemoteDescription(ctx, answer))

	require.Eventually(t, func() bool {
		for _, c := range aliceEvents.takeCandidates() {
			_ = bob.AddICECandidate(ctx, c)
		}
		for _, c := range bobEvents.takeCandidates() {
			_ = alice.AddICECandidate(ctx, c)
		}
		return aliceEvents.reached(session.ConnectivityConnected) &&
			bobEvents.reached(session.ConnectivityConnected)
	}, 15*time.Second, 20*time.Millisecond)

	before := alice.(*Transport).LocalDescription()
	screen, err := media.SyntheticProvider{}.DisplayMedia(ctx)
	require.NoError(t, err)
	require.NoError(t, alice.ReplaceVideoTrack(ctx, screen.VideoTrack()))
	assert.Equal(t, before, alice.(*Transport).LocalDescription(), "replacement must not renegotiate")
}

func TestConnectivityMapping(t *testing.T) {
	for state, want := range map[webrtc.ICEConnectionState]session.Connectivity{
		webrtc.ICEConnectionStateChecking:     session.ConnectivityChecking,
		webrtc.ICEConnectionStateCompleted:    session.ConnectivityCompleted,
		webrtc.ICEConnectionStateDisconnected: session.ConnectivityDisconnected,
		webrtc.ICEConnectionStateFailed:       session.ConnectivityFailed,
	} {
		got, ok := connectivity(state)
		assert.True(t, ok, state.String())
		assert.Equal(t, want, got)
	}
	_, ok := connectivity(webrtc.ICEConnectionStateUnknown)
	assert.False(t, ok)

	assert.Equal(t, media.KindAudio, kindOf(webrtc.RTPCodecTypeAudio))
	assert.Equal(t, media.KindVideo, kindOf(webrtc.RTPCodecTypeVideo))
}
