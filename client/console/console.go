// Package console renders call state for a headless participant.
package console

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/adwski/webrtc-rooms/client/media"
	"github.com/adwski/webrtc-rooms/client/session"
	"github.com/charmbracelet/lipgloss"
)

var (
	Primary = lipgloss.Color("#22d3ee")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	InfoStyle    = lipgloss.NewStyle().Foreground(Primary)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	NameStyle    = lipgloss.NewStyle().Foreground(Success).Bold(true)

	RoomBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Success).
			Padding(1, 2)
)

const (
	IconInfo    = "ℹ"
	IconWarning = "⚠"
	IconError   = "✖"
	IconOn      = "●"
	IconOff     = "○"
)

// Participant is what console knows about a remote member.
type Participant struct {
	ID     string
	Name   string
	Audio  bool
	Video  bool
	Tracks int
}

// Console prints notices and keeps a view of remote participants.
// It implements session.Notifier and session.Renderer.
type Console struct {
	out io.Writer

	mx           sync.Mutex
	participants map[string]*Participant
}

var (
	_ session.Notifier = (*Console)(nil)
	_ session.Renderer = (*Console)(nil)
)

func New(out io.Writer) *Console {
	return &Console{
		out:          out,
		participants: make(map[string]*Participant),
	}
}

func (c *Console) println(s string) {
	_, _ = fmt.Fprintln(c.out, s)
}

func (c *Console) Notify(level session.Level, msg string) {
	c.mx.Lock()
	defer c.mx.Unlock()

	switch level {
	case session.LevelWarning:
		c.println(WarningStyle.Render(IconWarning + " " + msg))
	case session.LevelError:
		c.println(ErrorStyle.Render(IconError + " " + msg))
	default:
		c.println(InfoStyle.Render(IconInfo + " " + msg))
	}
}

func (c *Console) participant(remoteID string) *Participant {
	p, ok := c.participants[remoteID]
	if !ok {
		p = &Participant{ID: remoteID, Audio: true, Video: true}
		c.participants[remoteID] = p
	}
	return p
}

func (c *Console) Attach(remoteID, name string, track session.RemoteTrack) {
	c.mx.Lock()
	defer c.mx.Unlock()

	p := c.participant(remoteID)
	if name != "" {
		p.Name = name
	}
	p.Tracks++
	c.println(MutedStyle.Render(fmt.Sprintf("receiving %s from ", track.Kind)) + NameStyle.Render(label(p)))
}

func (c *Console) Detach(remoteID string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	delete(c.participants, remoteID)
}

func (c *Console) SetIndicator(remoteID string, kind media.Kind, enabled bool) {
	c.mx.Lock()
	defer c.mx.Unlock()

	p := c.participant(remoteID)
	state := "off"
	if kind == media.KindAudio {
		p.Audio = enabled
	} else {
		p.Video = enabled
	}
	if enabled {
		state = "on"
	}
	c.println(NameStyle.Render(label(p)) + MutedStyle.Render(fmt.Sprintf(" turned %s %s", kind, state)))
}

// Participants returns remote participants sorted by id.
func (c *Console) Participants() []Participant {
	c.mx.Lock()
	defer c.mx.Unlock()

	out := make([]Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Print writes s followed by newline.
func (c *Console) Print(s string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.println(s)
}

func label(p *Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return shortID(p.ID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func indicator(on bool) string {
	if on {
		return IconOn
	}
	return IconOff
}
