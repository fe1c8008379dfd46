package media

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStream(t *testing.T) *Stream {
	t.Helper()
	s, err := SyntheticProvider{}.UserMedia(context.Background())
	require.NoError(t, err)
	return s
}

func TestSyntheticProvider(t *testing.T) {
	cam := testStream(t)
	require.NotNil(t, cam.AudioTrack())
	require.NotNil(t, cam.VideoTrack())
	assert.Equal(t, webrtc.RTPCodecTypeAudio, cam.AudioTrack().Local().Kind())
	assert.Equal(t, cam.ID, cam.VideoTrack().Local().StreamID())

	screen, err := SyntheticProvider{}.DisplayMedia(context.Background())
	require.NoError(t, err)
	assert.Nil(t, screen.AudioTrack())
	assert.Equal(t, "screen", screen.VideoTrack().Label())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = SyntheticProvider{}.UserMedia(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTrack_WriteSample(t *testing.T) {
	cam := testStream(t)
	video := cam.VideoTrack()
	sample := pionmedia.Sample{Data: []byte{0x00}, Duration: time.Millisecond}

	// not bound to any peer connection, pion accepts and discards
	require.NoError(t, video.WriteSample(sample))

	video.SetEnabled(false)
	require.NoError(t, video.WriteSample(sample))

	bare := NewTrack(KindVideo, "bare", nil)
	require.ErrorIs(t, bare.WriteSample(sample), ErrNotWritable)

	bare.Stop()
	bare.Stop()
	require.NoError(t, bare.WriteSample(sample), "stopped track ignores samples")
	select {
	case <-bare.Ended():
	default:
		t.Fatal("track must report end")
	}
}

func TestLocalSession_ScreenShare(t *testing.T) {
	cam := testStream(t)
	ls := NewLocalSession(cam)

	assert.Equal(t, ModeCamera, ls.Mode())
	assert.Equal(t, []*Track{cam.AudioTrack(), cam.VideoTrack()}, ls.Tracks())

	screen, err := SyntheticProvider{}.DisplayMedia(context.Background())
	require.NoError(t, err)

	track, err := ls.StartScreen(screen)
	require.NoError(t, err)
	assert.Same(t, screen.VideoTrack(), track)
	assert.Same(t, track, ls.VideoTrack())
	assert.Equal(t, []*Track{cam.AudioTrack(), track}, ls.Tracks())

	_, err = ls.StartScreen(screen)
	require.ErrorIs(t, err, ErrAlreadySharing)

	restored, err := ls.StopScreen()
	require.NoError(t, err)
	assert.Same(t, cam.VideoTrack(), restored)
	assert.Equal(t, ModeCamera, ls.Mode())

	_, err = ls.StopScreen()
	require.ErrorIs(t, err, ErrNotSharing)

	_, err = ls.StartScreen(NewStream(NewTrack(KindAudio, "x", nil)))
	require.ErrorIs(t, err, ErrNoVideo)
}

func TestLocalSession_Toggles(t *testing.T) {
	ls := NewLocalSession(testStream(t))

	assert.True(t, ls.AudioEnabled())
	ls.SetAudioEnabled(false)
	assert.False(t, ls.AudioEnabled())

	ls.SetVideoEnabled(false)
	assert.False(t, ls.VideoEnabled())
	ls.SetVideoEnabled(true)
	assert.True(t, ls.VideoEnabled())
}

func TestLocalSession_CloseOnce(t *testing.T) {
	cam := testStream(t)
	ls := NewLocalSession(cam)

	screen, err := SyntheticProvider{}.DisplayMedia(context.Background())
	require.NoError(t, err)
	_, err = ls.StartScreen(screen)
	require.NoError(t, err)

	assert.True(t, ls.Close())
	assert.False(t, ls.Close())

	for _, tr := range append(cam.Tracks(), screen.Tracks()...) {
		select {
		case <-tr.Ended():
		default:
			t.Fatalf("track %s is still running", tr.Label())
		}
	}
	_, err = ls.StartScreen(screen)
	require.ErrorIs(t, err, ErrClosed)
}

func TestPumpSilence(t *testing.T) {
	cam := testStream(t)
	audio := cam.AudioTrack()

	ctx, cancel := context.WithTimeout(context.Background(), 3*opusFrame)
	defer cancel()
	require.ErrorIs(t, PumpSilence(ctx, audio), context.DeadlineExceeded)

	audio.Stop()
	require.NoError(t, PumpSilence(context.Background(), audio))

	bare := NewTrack(KindAudio, "bare", nil)
	require.ErrorIs(t, PumpSilence(context.Background(), bare), ErrNotWritable)
}
