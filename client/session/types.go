package session

import (
	"context"

	"github.com/adwski/webrtc-rooms/client/media"
)

// State is the negotiation state of a peer link.
type State int

const (
	StateUninitiated State = iota
	StateOffered
	StateAnswered
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitiated:
		return "uninitiated"
	case StateOffered:
		return "negotiating(offered)"
	case StateAnswered:
		return "negotiating(answered)"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Role tells which side originates the offer.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Connectivity mirrors the transport's ICE connection state.
type Connectivity string

const (
	ConnectivityNew          Connectivity = "new"
	ConnectivityChecking     Connectivity = "checking"
	ConnectivityConnected    Connectivity = "connected"
	ConnectivityCompleted    Connectivity = "completed"
	ConnectivityDisconnected Connectivity = "disconnected"
	ConnectivityFailed       Connectivity = "failed"
	ConnectivityClosed       Connectivity = "closed"
)

// Description is a session description as exchanged by browsers.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is an ICE candidate as exchanged by browsers.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// RemoteTrack is media received from a remote participant.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     media.Kind
	// Source is the transport specific track handle.
	Source any
}

// LinkInfo is a read-only snapshot of a peer link.
type LinkInfo struct {
	RemoteID     string
	Name         string
	Role         Role
	State        State
	Connectivity Connectivity
}

type (
	// Transport is the negotiation primitive of a single peer link.
	// CreateOffer and CreateAnswer also install the produced local description.
	Transport interface {
		CreateOffer(ctx context.Context) (Description, error)
		CreateAnswer(ctx context.Context) (Description, error)
		SetRemoteDescription(ctx context.Context, desc Description) error
		AddICECandidate(ctx context.Context, c Candidate) error
		// ReplaceVideoTrack swaps outgoing video in place, without renegotiation.
		ReplaceVideoTrack(ctx context.Context, track *media.Track) error
		Close() error
	}

	TransportEvents struct {
		OnCandidate    func(Candidate)
		OnConnectivity func(Connectivity)
		OnRemoteTrack  func(RemoteTrack)
	}

	TransportFactory interface {
		NewTransport(ctx context.Context, remoteID string, tracks []*media.Track, events TransportEvents) (Transport, error)
	}

	// Signaler is the only way to reach remote participants.
	Signaler interface {
		JoinRoom(ctx context.Context, roomID, name string) error
		LeaveRoom(ctx context.Context) error
		SendOffer(ctx context.Context, to string, desc Description) error
		SendAnswer(ctx context.Context, to string, desc Description) error
		SendCandidate(ctx context.Context, to string, c Candidate) error
		SendToggle(ctx context.Context, kind media.Kind, roomID string, enabled bool) error
	}

	Renderer interface {
		Attach(remoteID, name string, track RemoteTrack)
		Detach(remoteID string)
		SetIndicator(remoteID string, kind media.Kind, enabled bool)
	}

	Notifier interface {
		Notify(level Level, msg string)
	}
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

type nopRenderer struct{}

func (nopRenderer) Attach(string, string, RemoteTrack)    {}
func (nopRenderer) Detach(string)                         {}
func (nopRenderer) SetIndicator(string, media.Kind, bool) {}

type nopNotifier struct{}

func (nopNotifier) Notify(Level, string) {}
