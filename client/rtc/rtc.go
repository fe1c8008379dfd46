// Package rtc implements peer link transports on top of pion.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adwski/webrtc-rooms/client/media"
	"github.com/adwski/webrtc-rooms/client/session"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var (
	ErrNoVideoSender   = errors.New("transport has no outgoing video")
	ErrDescriptionType = errors.New("unsupported session description type")
)

// DefaultSTUNServers are public servers used when none are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type Config struct {
	Logger     *zerolog.Logger
	ICEServers []webrtc.ICEServer

	// UDPPortMin and UDPPortMax restrict local ports when both are set.
	UDPPortMin uint16
	UDPPortMax uint16

	IncludeLoopback bool
}

// ICEServers builds server list from STUN urls and optional TURN settings.
func ICEServers(stun, turn []string, username, credential string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if stun = trimmed(stun); len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if turn = trimmed(turn); len(turn) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: credential,
		})
	}
	return servers
}

func trimmed(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Factory creates pion peer connections sharing one API instance.
type Factory struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	logger     *zerolog.Logger
}

func NewFactory(cfg *Config) (*Factory, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.UDPPortMin > 0 && cfg.UDPPortMax > 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.UDPPortMin, cfg.UDPPortMax); err != nil {
			return nil, fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)

	logger := cfg.Logger.With().Str("component", "rtc").Logger()
	return &Factory{
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se)),
		iceServers: cfg.ICEServers,
		logger:     &logger,
	}, nil
}

func (f *Factory) NewTransport(
	ctx context.Context,
	remoteID string,
	tracks []*media.Track,
	events session.TransportEvents,
) (session.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: f.iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	t := &Transport{
		pc:     pc,
		logger: f.logger.With().Str("remote", remoteID).Logger(),
	}

	for _, track := range tracks {
		if track.Local() == nil {
			continue
		}
		sender, errAdd := pc.AddTrack(track.Local())
		if errAdd != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s track: %w", track.Kind(), errAdd)
		}
		if track.Kind() == media.KindVideo {
			t.video = sender
		}
		go t.drainRTCP(sender)
	}
	t.bind(events)
	return t, nil
}

// Transport is a single pion peer connection.
type Transport struct {
	pc     *webrtc.PeerConnection
	video  *webrtc.RTPSender
	logger zerolog.Logger
}

func (t *Transport) bind(events session.TransportEvents) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks end of gathering
		if c == nil || events.OnCandidate == nil {
			return
		}
		init := c.ToJSON()
		events.OnCandidate(session.Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
	t.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		t.logger.Debug().Stringer("state", state).Msg("ice connection state")
		if c, ok := connectivity(state); ok && events.OnConnectivity != nil {
			events.OnConnectivity(c)
		}
	})
	t.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if events.OnRemoteTrack == nil {
			return
		}
		events.OnRemoteTrack(session.RemoteTrack{
			ID:       remote.ID(),
			StreamID: remote.StreamID(),
			Kind:     kindOf(remote.Kind()),
			Source:   remote,
		})
	})
}

// drainRTCP reads incoming RTCP so that interceptors keep working.
func (t *Transport) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (t *Transport) CreateOffer(ctx context.Context) (session.Description, error) {
	if err := ctx.Err(); err != nil {
		return session.Description{}, err
	}
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return session.Description{}, fmt.Errorf("create offer: %w", err)
	}
	if err = t.pc.SetLocalDescription(offer); err != nil {
		return session.Description{}, fmt.Errorf("set local offer: %w", err)
	}
	return session.Description{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (t *Transport) CreateAnswer(ctx context.Context) (session.Description, error) {
	if err := ctx.Err(); err != nil {
		return session.Description{}, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return session.Description{}, fmt.Errorf("create answer: %w", err)
	}
	if err = t.pc.SetLocalDescription(answer); err != nil {
		return session.Description{}, fmt.Errorf("set local answer: %w", err)
	}
	return session.Description{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (t *Transport) SetRemoteDescription(ctx context.Context, desc session.Description) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	typ := webrtc.NewSDPType(desc.Type)
	if typ == webrtc.SDPTypeUnknown {
		return fmt.Errorf("%w: %q", ErrDescriptionType, desc.Type)
	}
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: desc.SDP})
}

func (t *Transport) AddICECandidate(ctx context.Context, c session.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

// ReplaceVideoTrack switches outgoing video on the existing sender.
// The negotiated session stays as is.
func (t *Transport) ReplaceVideoTrack(ctx context.Context, track *media.Track) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.video == nil {
		return ErrNoVideoSender
	}
	if err := t.video.ReplaceTrack(track.Local()); err != nil {
		return fmt.Errorf("replace track: %w", err)
	}
	return nil
}

func (t *Transport) Close() error {
	return t.pc.Close()
}

// LocalDescription returns the currently installed local SDP.
func (t *Transport) LocalDescription() string {
	if ld := t.pc.LocalDescription(); ld != nil {
		return ld.SDP
	}
	return ""
}

func connectivity(state webrtc.ICEConnectionState) (session.Connectivity, bool) {
	switch state {
	case webrtc.ICEConnectionStateNew:
		return session.ConnectivityNew, true
	case webrtc.ICEConnectionStateChecking:
		return session.ConnectivityChecking, true
	case webrtc.ICEConnectionStateConnected:
		return session.ConnectivityConnected, true
	case webrtc.ICEConnectionStateCompleted:
		return session.ConnectivityCompleted, true
	case webrtc.ICEConnectionStateDisconnected:
		return session.ConnectivityDisconnected, true
	case webrtc.ICEConnectionStateFailed:
		return session.ConnectivityFailed, true
	case webrtc.ICEConnectionStateClosed:
		return session.ConnectivityClosed, true
	}
	return "", false
}

func kindOf(k webrtc.RTPCodecType) media.Kind {
	if k == webrtc.RTPCodecTypeAudio {
		return media.KindAudio
	}
	return media.KindVideo
}
