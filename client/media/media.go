// Package media holds local capture handles shared by all peer links of a participant.
package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var (
	ErrNotWritable = errors.New("track does not accept samples")
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is a local outgoing track. A disabled track keeps its place on every
// peer connection but silently drops samples.
type Track struct {
	kind  Kind
	label string
	local webrtc.TrackLocal

	enabled  atomic.Bool
	ended    chan struct{}
	stopOnce sync.Once
}

func NewTrack(kind Kind, label string, local webrtc.TrackLocal) *Track {
	t := &Track{
		kind:  kind,
		label: label,
		local: local,
		ended: make(chan struct{}),
	}
	t.enabled.Store(true)
	return t
}

func (t *Track) Kind() Kind { return t.kind }
func (t *Track) Label() string { return t.label }
func (t *Track) Local() webrtc.TrackLocal { return t.local }
func (t *Track) Enabled() bool { return t.enabled.Load() }
func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *Track) Ended() <-chan struct{} { return t.ended }

// WriteSample pushes media into the track if it is enabled and still running.
func (t *Track) WriteSample(sample pionmedia.Sample) error {
	select {
	case <-t.ended:
		return nil
	default:
	}
	if !t.Enabled() {
		return nil
	}
	w, ok := t.local.(interface {
		WriteSample(pionmedia.Sample) error
	})
	if !ok {
		return ErrNotWritable
	}
	return w.WriteSample(sample)
}

// Stop ends the track. Safe to call multiple times.
func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		close(t.ended)
	})
}

// Stream groups tracks produced by a single capture call.
type Stream struct {
	ID     string
	tracks []*Track
}

func NewStream(tracks ...*Track) *Stream {
	return &Stream{
		ID:     uuid.NewString(),
		tracks: tracks,
	}
}

func (s *Stream) Tracks() []*Track {
	return append([]*Track(nil), s.tracks...)
}

func (s *Stream) first(kind Kind) *Track {
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

func (s *Stream) AudioTrack() *Track { return s.first(KindAudio) }
func (s *Stream) VideoTrack() *Track { return s.first(KindVideo) }

func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Provider acquires local media.
type Provider interface {
	// UserMedia captures camera and microphone.
	UserMedia(ctx context.Context) (*Stream, error)
	// DisplayMedia captures the screen, video only.
	DisplayMedia(ctx context.Context) (*Stream, error)
}
