package model

import (
	"encoding/json"
	"strings"
)

// DefaultDisplayName is assigned to members that joined with a blank name.
const DefaultDisplayName = "Participant"

type Room struct {
	ID      string   `json:"room_id"`
	Members []Member `json:"members"`
}

type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Announcement types sent by clients.
const (
	AnnouncementTypeJoinRoom    = "join-room"
	AnnouncementTypeLeaveRoom   = "leave-room"
	AnnouncementTypeToggleAudio = "toggle-audio"
	AnnouncementTypeToggleVideo = "toggle-video"
)

// Announcement types sent by server.
const (
	AnnouncementTypeSession          = "session"
	AnnouncementTypeRoomUsers        = "room-users"
	AnnouncementTypeUserConnected    = "user-connected"
	AnnouncementTypeUserDisconnected = "user-disconnected"
	AnnouncementTypeUserAudioToggle  = "user-audio-toggle"
	AnnouncementTypeUserVideoToggle  = "user-video-toggle"
)

// Directed announcement types, relayed between two participants in both directions.
const (
	AnnouncementTypeOffer        = "offer"
	AnnouncementTypeAnswer       = "answer"
	AnnouncementTypeICECandidate = "ice-candidate"
)

type Announcement struct {
	DST     string          `json:"dst,omitempty"`
	SRC     string          `json:"src,omitempty"` // for inbound messages server re-assigns this based on websocket session
	Type    string          `json:"type"`
	RoomID  string          `json:"room,omitempty"`
	Name    string          `json:"name,omitempty"`
	Enabled *bool           `json:"enabled,omitempty"`
	Users   []string        `json:"users,omitempty"`
	Members []Member        `json:"members,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Wire struct {
	RX chan Announcement
	TX chan Announcement
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Announcement),
		TX: make(chan Announcement),
	}
}

// IsDirected reports whether announcement type is relayed to a single participant.
func IsDirected(typ string) bool {
	switch typ {
	case AnnouncementTypeOffer, AnnouncementTypeAnswer, AnnouncementTypeICECandidate:
		return true
	}
	return false
}

// NormalizeRoomID makes room identifiers case-insensitive.
func NormalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

// NormalizeDisplayName trims the name and falls back to DefaultDisplayName.
func NormalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDisplayName
	}
	return name
}

// Bool returns pointer to b, handy for Announcement.Enabled.
func Bool(b bool) *bool {
	return &b
}

// IDs extracts participant ids preserving member order.
func IDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
