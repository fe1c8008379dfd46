package service

import (
	"context"
	"errors"
	"sync"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/backend/storage/memory"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

var (
	ErrGet           = errors.New("unable to get room")
	ErrConnect       = errors.New("unable to connect")
	ErrSessionExists = errors.New("signaling session already exists")
)

type (
	RoomStore interface {
		Join(roomID, userID, name string) ([]model.Member, error)
		Leave(userID string) (string, []model.Member, error)
		Members(roomID string) ([]model.Member, error)
		IsMember(roomID, userID string) bool
		RoomOf(userID string) (string, bool)
		RoomIDs() []string
	}

	Switch interface {
		Connect(endpoint string, wire model.Wire) error
		Disconnect(endpoint string)
		Send(ctx context.Context, ann model.Announcement) bool
		Multicast(ctx context.Context, ann model.Announcement, dsts []string) int
	}

	// Service is the signaling relay. It keeps no room state of its own,
	// membership lives in RoomStore.
	Service struct {
		store  RoomStore
		sw     Switch
		logger zerolog.Logger

		mx       *sync.Mutex
		sessions map[string]chan struct{}
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:    cfg.RoomStore,
		sw:       cfg.Switch,
		logger:   cfg.Logger.With().Str("component", "relay").Logger(),
		mx:       &sync.Mutex{},
		sessions: make(map[string]chan struct{}),
	}
}

// CreateSignalingSession attaches participant's wire to the relay. Inbound announcements
// of a single session are processed sequentially until ctx is done.
func (svc *Service) CreateSignalingSession(ctx context.Context, userID string, wire model.Wire) error {
	svc.mx.Lock()
	if _, ok := svc.sessions[userID]; ok {
		svc.mx.Unlock()
		return ErrSessionExists
	}
	done := make(chan struct{})
	svc.sessions[userID] = done
	svc.mx.Unlock()

	if err := svc.sw.Connect(userID, wire); err != nil {
		svc.mx.Lock()
		delete(svc.sessions, userID)
		svc.mx.Unlock()
		return errors.Join(ErrConnect, err)
	}

	go func() {
		defer close(done)
		svc.sw.Send(ctx, model.Announcement{
			Type: model.AnnouncementTypeSession,
			DST:  userID,
		})
		svc.process(ctx, userID, wire.RX)
	}()

	svc.logger.Debug().Str("userID", userID).Msg("signaling session connected")
	return nil
}

// DeleteSignalingSession waits until every announcement already accepted from this
// session is processed, then removes participant from its room.
func (svc *Service) DeleteSignalingSession(ctx context.Context, userID string) error {
	svc.mx.Lock()
	done, ok := svc.sessions[userID]
	delete(svc.sessions, userID)
	svc.mx.Unlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			svc.logger.Warn().Str("userID", userID).Msg("session processing did not finish in time")
		}
	}

	svc.OnDisconnect(ctx, userID)
	svc.sw.Disconnect(userID)

	svc.logger.Debug().Str("userID", userID).Msg("signaling session deleted")
	return nil
}

func (svc *Service) process(ctx context.Context, userID string, rx <-chan model.Announcement) {
	for {
		select {
		case <-ctx.Done():
			return
		case ann := <-rx:
			ann.SRC = userID
			svc.Handle(ctx, ann)
		}
	}
}

// Handle dispatches single inbound announcement. ann.SRC must already be set
// to the sender's id by the transport.
func (svc *Service) Handle(ctx context.Context, ann model.Announcement) {
	if e := svc.logger.Trace(); e.Enabled() {
		e.Str("dump", spew.Sdump(ann)).Msg("inbound announcement")
	}
	switch ann.Type {
	case model.AnnouncementTypeJoinRoom:
		svc.OnJoin(ctx, ann.SRC, ann.RoomID, ann.Name)
	case model.AnnouncementTypeLeaveRoom:
		svc.OnLeave(ctx, ann.SRC)
	case model.AnnouncementTypeOffer, model.AnnouncementTypeAnswer, model.AnnouncementTypeICECandidate:
		svc.OnDirected(ctx, ann)
	case model.AnnouncementTypeToggleAudio, model.AnnouncementTypeToggleVideo:
		enabled := ann.Enabled != nil && *ann.Enabled
		svc.OnToggle(ctx, ann.SRC, ann.Type, ann.RoomID, enabled)
	default:
		svc.logger.Warn().
			Str("userID", ann.SRC).
			Str("type", ann.Type).
			Msg("unknown announcement type")
	}
}

// OnJoin records participant in the room, then sends it the members that were
// already there, then notifies those members.
func (svc *Service) OnJoin(ctx context.Context, userID, roomID, name string) {
	roomID = model.NormalizeRoomID(roomID)
	name = model.NormalizeDisplayName(name)
	logger := svc.logger.With().
		Str("userID", userID).
		Str("roomID", roomID).
		Logger()

	existing, err := svc.store.Join(roomID, userID, name)
	if errors.Is(err, memory.ErrInAnotherRoom) {
		svc.OnLeave(ctx, userID)
		existing, err = svc.store.Join(roomID, userID, name)
	}
	switch {
	case errors.Is(err, memory.ErrAlreadyJoined):
		logger.Debug().Msg("duplicate join ignored")
		return
	case err != nil:
		logger.Warn().Err(err).Msg("join rejected")
		return
	}
	logger.Debug().Int("existing", len(existing)).Msg("user joined room")

	svc.sw.Send(ctx, model.Announcement{
		Type:    model.AnnouncementTypeRoomUsers,
		DST:     userID,
		RoomID:  roomID,
		Users:   model.IDs(existing),
		Members: existing,
	})
	svc.sw.Multicast(ctx, model.Announcement{
		Type:   model.AnnouncementTypeUserConnected,
		SRC:    userID,
		RoomID: roomID,
		Name:   name,
	}, model.IDs(existing))
}

// OnDirected relays offer, answer or ice candidate to exactly one participant.
// Anything that cannot be delivered is dropped.
func (svc *Service) OnDirected(ctx context.Context, ann model.Announcement) {
	logger := svc.logger.With().
		Str("type", ann.Type).
		Str("src", ann.SRC).
		Str("dst", ann.DST).
		Logger()

	if !model.IsDirected(ann.Type) {
		logger.Warn().Msg("not a directed announcement")
		return
	}
	if ann.DST == "" || ann.DST == ann.SRC {
		logger.Debug().Msg("dropping announcement with invalid dst")
		return
	}
	roomID, ok := svc.store.RoomOf(ann.SRC)
	if !ok || !svc.store.IsMember(roomID, ann.DST) {
		logger.Debug().Msg("dropping announcement, peers do not share a room")
		return
	}

	svc.sw.Send(ctx, model.Announcement{
		Type:    ann.Type,
		SRC:     ann.SRC,
		DST:     ann.DST,
		Payload: ann.Payload,
	})
}

// OnToggle notifies the room about sender's media state. Non-members are ignored.
func (svc *Service) OnToggle(ctx context.Context, userID, kind, roomID string, enabled bool) {
	roomID = model.NormalizeRoomID(roomID)
	logger := svc.logger.With().
		Str("userID", userID).
		Str("roomID", roomID).
		Str("type", kind).
		Logger()

	var outType string
	switch kind {
	case model.AnnouncementTypeToggleAudio:
		outType = model.AnnouncementTypeUserAudioToggle
	case model.AnnouncementTypeToggleVideo:
		outType = model.AnnouncementTypeUserVideoToggle
	default:
		logger.Warn().Msg("unknown toggle kind")
		return
	}

	if !svc.store.IsMember(roomID, userID) {
		logger.Debug().Msg("toggle from non-member dropped")
		return
	}
	members, err := svc.store.Members(roomID)
	if err != nil {
		logger.Debug().Err(errors.Join(ErrGet, err)).Msg("toggle dropped")
		return
	}

	svc.sw.Multicast(ctx, model.Announcement{
		Type:    outType,
		SRC:     userID,
		Enabled: model.Bool(enabled),
	}, model.IDs(members))
}

// OnLeave removes participant from its room and notifies remaining members.
func (svc *Service) OnLeave(ctx context.Context, userID string) {
	roomID, remaining, err := svc.store.Leave(userID)
	if err != nil {
		if !errors.Is(err, memory.ErrNotAMember) {
			svc.logger.Error().Err(err).Str("userID", userID).Msg("leave failed")
		}
		return
	}
	logger := svc.logger.With().
		Str("userID", userID).
		Str("roomID", roomID).
		Logger()

	if len(remaining) == 0 {
		logger.Debug().Msg("room removed")
		return
	}
	logger.Debug().Int("remaining", len(remaining)).Msg("user left room")

	svc.sw.Multicast(ctx, model.Announcement{
		Type:   model.AnnouncementTypeUserDisconnected,
		SRC:    userID,
		RoomID: roomID,
	}, model.IDs(remaining))
}

// OnDisconnect is called when participant's transport is gone.
func (svc *Service) OnDisconnect(ctx context.Context, userID string) {
	svc.OnLeave(ctx, userID)
}

func (svc *Service) Members(roomID string) ([]model.Member, error) {
	members, err := svc.store.Members(roomID)
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}
	return members, nil
}

func (svc *Service) RoomIDs() []string {
	return svc.store.RoomIDs()
}
