package media

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// SyntheticProvider produces sample-fed tracks without touching real devices.
// It lets a headless participant negotiate full audio/video sessions.
type SyntheticProvider struct{}

func (SyntheticProvider) UserMedia(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streamID := uuid.NewString()

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+streamID[:8], streamID)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"camera-"+streamID[:8], streamID)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	return &Stream{
		ID: streamID,
		tracks: []*Track{
			NewTrack(KindAudio, "microphone", audio),
			NewTrack(KindVideo, "camera", video),
		},
	}, nil
}

func (SyntheticProvider) DisplayMedia(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streamID := uuid.NewString()

	screen, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"screen-"+streamID[:8], streamID)
	if err != nil {
		return nil, fmt.Errorf("create screen track: %w", err)
	}
	return &Stream{
		ID:     streamID,
		tracks: []*Track{NewTrack(KindVideo, "screen", screen)},
	}, nil
}

// opusSilence is a single 20ms opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const opusFrame = 20 * time.Millisecond

// PumpSilence feeds audio track with silence frames until ctx is done
// or the track ends. Muted track drops the frames.
func PumpSilence(ctx context.Context, track *Track) error {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-track.Ended():
			return nil
		case <-ticker.C:
			if err := track.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: opusFrame}); err != nil {
				return err
			}
		}
	}
}
