package media

import (
	"errors"
	"sync"
)

var (
	ErrClosed         = errors.New("local media session is closed")
	ErrAlreadySharing = errors.New("screen is already shared")
	ErrNotSharing     = errors.New("screen is not shared")
	ErrNoVideo        = errors.New("stream has no video track")
)

type Mode int

const (
	ModeCamera Mode = iota
	ModeScreen
)

func (m Mode) String() string {
	if m == ModeScreen {
		return "screen"
	}
	return "camera"
}

// LocalSession is the participant's capture state. Peer links only read it;
// it changes through toggle and share calls and is closed once on leave.
type LocalSession struct {
	mx     sync.Mutex
	camera *Stream
	screen *Stream
	mode   Mode
	closed bool
}

func NewLocalSession(camera *Stream) *LocalSession {
	return &LocalSession{camera: camera}
}

// Tracks returns tracks to attach to a new peer link: microphone and
// whatever video is currently outgoing.
func (ls *LocalSession) Tracks() []*Track {
	ls.mx.Lock()
	defer ls.mx.Unlock()

	var tracks []*Track
	if a := ls.camera.AudioTrack(); a != nil {
		tracks = append(tracks, a)
	}
	if v := ls.videoLocked(); v != nil {
		tracks = append(tracks, v)
	}
	return tracks
}

// VideoTrack returns currently outgoing video track.
func (ls *LocalSession) VideoTrack() *Track {
	ls.mx.Lock()
	defer ls.mx.Unlock()
	return ls.videoLocked()
}

func (ls *LocalSession) videoLocked() *Track {
	if ls.mode == ModeScreen && ls.screen != nil {
		return ls.screen.VideoTrack()
	}
	return ls.camera.VideoTrack()
}

func (ls *LocalSession) Mode() Mode {
	ls.mx.Lock()
	defer ls.mx.Unlock()
	return ls.mode
}

func (ls *LocalSession) AudioEnabled() bool {
	return enabled(ls.camera.AudioTrack())
}

func (ls *LocalSession) VideoEnabled() bool {
	return enabled(ls.camera.VideoTrack())
}

func (ls *LocalSession) SetAudioEnabled(on bool) {
	if t := ls.camera.AudioTrack(); t != nil {
		t.SetEnabled(on)
	}
}

// SetVideoEnabled switches the camera track. Screen track is not affected.
func (ls *LocalSession) SetVideoEnabled(on bool) {
	if t := ls.camera.VideoTrack(); t != nil {
		t.SetEnabled(on)
	}
}

func enabled(t *Track) bool {
	return t != nil && t.Enabled()
}

// StartScreen makes screen video the outgoing track and returns it.
func (ls *LocalSession) StartScreen(screen *Stream) (*Track, error) {
	ls.mx.Lock()
	defer ls.mx.Unlock()

	switch {
	case ls.closed:
		return nil, ErrClosed
	case ls.mode == ModeScreen:
		return nil, ErrAlreadySharing
	}
	track := screen.VideoTrack()
	if track == nil {
		return nil, ErrNoVideo
	}
	ls.screen = screen
	ls.mode = ModeScreen
	return track, nil
}

// StopScreen restores camera video as the outgoing track and returns it.
func (ls *LocalSession) StopScreen() (*Track, error) {
	ls.mx.Lock()
	defer ls.mx.Unlock()

	switch {
	case ls.closed:
		return nil, ErrClosed
	case ls.mode != ModeScreen:
		return nil, ErrNotSharing
	}
	ls.screen.Stop()
	ls.screen = nil
	ls.mode = ModeCamera
	return ls.camera.VideoTrack(), nil
}

// Close stops every captured track. Only the first call has effect.
func (ls *LocalSession) Close() bool {
	ls.mx.Lock()
	defer ls.mx.Unlock()

	if ls.closed {
		return false
	}
	ls.closed = true
	ls.camera.Stop()
	if ls.screen != nil {
		ls.screen.Stop()
		ls.screen = nil
	}
	ls.mode = ModeCamera
	return true
}
