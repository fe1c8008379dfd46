package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/client/media"
	"github.com/rs/zerolog"
)

type Config struct {
	Logger     *zerolog.Logger
	Signaler   Signaler
	Transports TransportFactory
	Media      media.Provider
	Renderer   Renderer
	Notifier   Notifier
}

// Manager owns local media and one PeerLink per remote participant
// of the current room.
type Manager struct {
	logger     *zerolog.Logger
	signaler   Signaler
	transports TransportFactory
	provider   media.Provider
	renderer   Renderer
	notifier   Notifier

	mx     sync.Mutex
	self   string
	roomID string
	name   string
	local  *media.LocalSession
	links  map[string]*PeerLink
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func NewManager(cfg *Config) *Manager {
	logger := cfg.Logger.With().Str("component", "session").Logger()
	m := &Manager{
		logger:     &logger,
		signaler:   cfg.Signaler,
		transports: cfg.Transports,
		provider:   cfg.Media,
		renderer:   cfg.Renderer,
		notifier:   cfg.Notifier,
	}
	if m.renderer == nil {
		m.renderer = nopRenderer{}
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	return m
}

func (m *Manager) notify(level Level, format string, args ...any) {
	m.notifier.Notify(level, fmt.Sprintf(format, args...))
}

// SetSelf records participant id assigned by signaling server.
func (m *Manager) SetSelf(id string) {
	m.mx.Lock()
	m.self = id
	m.mx.Unlock()
}

func (m *Manager) Self() string {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.self
}

func (m *Manager) RoomID() string {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.roomID
}

// Name is the display name used for the current room.
func (m *Manager) Name() string {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.name
}

// Joined reports whether the participant is currently in a room.
func (m *Manager) Joined() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.local != nil
}

// Links returns snapshot of current peer links sorted by remote id.
func (m *Manager) Links() []LinkInfo {
	m.mx.Lock()
	infos := make([]LinkInfo, 0, len(m.links))
	for _, l := range m.links {
		infos = append(infos, l.Info())
	}
	m.mx.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].RemoteID < infos[j].RemoteID
	})
	return infos
}

// Join acquires camera and microphone and enters the room.
func (m *Manager) Join(ctx context.Context, roomID, name string) error {
	name = strings.TrimSpace(name)
	roomID = model.NormalizeRoomID(roomID)
	switch {
	case name == "":
		m.notify(LevelWarning, "Please enter your name")
		return ErrMissingName
	case roomID == "":
		m.notify(LevelWarning, "Please enter a room code")
		return ErrMissingRoom
	}
	if m.Joined() {
		return ErrAlreadyJoined
	}

	stream, err := m.provider.UserMedia(ctx)
	if err != nil {
		m.notify(LevelError, "Could not access camera or microphone")
		return errors.Join(ErrMediaAcquisition, err)
	}

	m.mx.Lock()
	if m.local != nil {
		m.mx.Unlock()
		stream.Stop()
		return ErrAlreadyJoined
	}
	m.local = media.NewLocalSession(stream)
	m.roomID = roomID
	m.name = name
	m.links = make(map[string]*PeerLink)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg = &sync.WaitGroup{}
	m.mx.Unlock()

	if err = m.signaler.JoinRoom(ctx, roomID, name); err != nil {
		m.teardown()
		m.notify(LevelError, "Could not reach signaling server")
		return errors.Join(ErrSignaling, err)
	}
	m.logger.Info().Str("room", roomID).Str("name", name).Msg("joined room")
	m.notify(LevelInfo, "Joined room %s", roomID)
	return nil
}

// CreateRoom joins a freshly generated room.
func (m *Manager) CreateRoom(ctx context.Context, name string) (string, error) {
	code, err := NewRoomCode()
	if err != nil {
		return "", err
	}
	return code, m.Join(ctx, code, name)
}

// Leave closes every link and local media and notifies the server.
// Afterwards Join may be called again.
func (m *Manager) Leave(ctx context.Context) error {
	if !m.teardown() {
		return ErrNotJoined
	}
	if err := m.signaler.LeaveRoom(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("cannot send leave")
	}
	m.logger.Info().Msg("left room")
	m.notify(LevelInfo, "You left the call")
	return nil
}

// teardown resets manager to pre-join state. Reports false if not joined.
func (m *Manager) teardown() bool {
	m.mx.Lock()
	local, links, cancel, wg := m.local, m.links, m.cancel, m.wg
	if local == nil {
		m.mx.Unlock()
		return false
	}
	m.local = nil
	m.links = nil
	m.roomID = ""
	m.name = ""
	m.cancel = nil
	m.wg = nil
	m.mx.Unlock()

	cancel()
	wg.Wait()
	for id := range links {
		m.renderer.Detach(id)
	}
	local.Close()
	return true
}

// joinedState returns room-scoped state under lock.
func (m *Manager) joinedState() (*media.LocalSession, string, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.local == nil {
		return nil, "", ErrNotJoined
	}
	return m.local, m.roomID, nil
}

// link returns existing link for remoteID or creates one with given role.
func (m *Manager) link(remoteID, name string, role Role) (*PeerLink, bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if m.local == nil {
		return nil, false, ErrNotJoined
	}
	if l, ok := m.links[remoteID]; ok {
		l.setName(name)
		return l, false, nil
	}
	l := newPeerLink(m.ctx, m.logger, remoteID, name, role)
	m.links[remoteID] = l
	m.wg.Add(1)
	wg := m.wg
	go l.run(func() {
		m.forget(l)
		wg.Done()
	})
	m.logger.Debug().Str("remote", remoteID).Stringer("role", role).Msg("link created")
	return l, true, nil
}

func (m *Manager) existing(remoteID string) *PeerLink {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.links[remoteID]
}

// forget removes l from the link table unless it was already replaced.
func (m *Manager) forget(l *PeerLink) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if cur, ok := m.links[l.remoteID]; ok && cur == l {
		delete(m.links, l.remoteID)
	}
}

func (m *Manager) roomUsers(members []model.Member) []<-chan error {
	var waits []<-chan error
	self := m.Self()
	for _, mem := range members {
		if mem.ID == "" || mem.ID == self {
			continue
		}
		l, created, err := m.link(mem.ID, mem.Name, RoleInitiator)
		if err != nil {
			return append(waits, failed(err))
		}
		if !created {
			continue
		}
		waits = append(waits, l.submit(m.offerOp(l)))
	}
	return waits
}

// HandleRoomUsers starts negotiation with every member that was in the room
// before this participant. Local side is the initiator for all of them.
func (m *Manager) HandleRoomUsers(ctx context.Context, members []model.Member) error {
	return wait(ctx, m.roomUsers(members)...)
}

// HandleUserConnected prepares a responder link for a newcomer.
// The newcomer sends the offer.
func (m *Manager) HandleUserConnected(_ context.Context, remoteID, name string) error {
	if remoteID == "" || remoteID == m.Self() {
		return nil
	}
	name = model.NormalizeDisplayName(name)
	if _, _, err := m.link(remoteID, name, RoleResponder); err != nil {
		return err
	}
	m.notify(LevelInfo, "%s joined the call", name)
	return nil
}

func (m *Manager) offer(remoteID string, desc Description) <-chan error {
	l, _, err := m.link(remoteID, "", RoleResponder)
	if err != nil {
		return failed(err)
	}
	return l.submit(m.answerOp(l, desc))
}

// HandleOffer answers a remote offer, creating the link if needed.
func (m *Manager) HandleOffer(ctx context.Context, remoteID string, desc Description) error {
	return wait(ctx, m.offer(remoteID, desc))
}

func (m *Manager) answer(remoteID string, desc Description) <-chan error {
	l := m.existing(remoteID)
	if l == nil {
		m.logger.Debug().Str("remote", remoteID).Msg("answer from unknown peer dropped")
		return failed(ErrUnknownPeer)
	}
	return l.submit(m.acceptAnswerOp(l, desc))
}

func (m *Manager) HandleAnswer(ctx context.Context, remoteID string, desc Description) error {
	return wait(ctx, m.answer(remoteID, desc))
}

func (m *Manager) candidate(remoteID string, c Candidate) <-chan error {
	l := m.existing(remoteID)
	if l == nil {
		m.logger.Debug().Str("remote", remoteID).Msg("candidate from unknown peer dropped")
		return failed(ErrUnknownPeer)
	}
	return l.submit(m.candidateOp(l, c))
}

// HandleCandidate applies remote candidate or queues it until remote
// description is installed.
func (m *Manager) HandleCandidate(ctx context.Context, remoteID string, c Candidate) error {
	return wait(ctx, m.candidate(remoteID, c))
}

// HandleUserDisconnected closes link with remoteID. Repeated calls are no-ops
// apart from detaching rendering.
func (m *Manager) HandleUserDisconnected(ctx context.Context, remoteID string) error {
	l := m.disconnect(remoteID)
	if l == nil {
		return nil
	}
	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// disconnect unlinks remoteID at once so that later events for the same id
// start a fresh link. Returned link, if any, is shutting down.
func (m *Manager) disconnect(remoteID string) *PeerLink {
	m.mx.Lock()
	l := m.links[remoteID]
	delete(m.links, remoteID)
	m.mx.Unlock()

	m.renderer.Detach(remoteID)
	if l == nil {
		return nil
	}
	l.close()
	m.logger.Debug().Str("remote", remoteID).Msg("peer disconnected")
	m.notify(LevelInfo, "%s left the call", displayName(l.Name()))
	return l
}

func displayName(name string) string {
	if name == "" {
		return "A participant"
	}
	return name
}

// HandleToggle reflects remote mute state. Link state is not affected.
func (m *Manager) HandleToggle(remoteID string, kind media.Kind, enabled bool) {
	if m.existing(remoteID) == nil {
		return
	}
	m.renderer.SetIndicator(remoteID, kind, enabled)
}

// ToggleAudio flips microphone and announces new state to the room.
func (m *Manager) ToggleAudio(ctx context.Context) (bool, error) {
	local, roomID, err := m.joinedState()
	if err != nil {
		return false, err
	}
	enabled := !local.AudioEnabled()
	local.SetAudioEnabled(enabled)
	if err = m.signaler.SendToggle(ctx, media.KindAudio, roomID, enabled); err != nil {
		return enabled, errors.Join(ErrSignaling, err)
	}
	return enabled, nil
}

// ToggleVideo flips camera and announces new state to the room.
func (m *Manager) ToggleVideo(ctx context.Context) (bool, error) {
	local, roomID, err := m.joinedState()
	if err != nil {
		return false, err
	}
	enabled := !local.VideoEnabled()
	local.SetVideoEnabled(enabled)
	if err = m.signaler.SendToggle(ctx, media.KindVideo, roomID, enabled); err != nil {
		return enabled, errors.Join(ErrSignaling, err)
	}
	return enabled, nil
}

// StartScreenShare swaps outgoing video for screen capture on every link.
func (m *Manager) StartScreenShare(ctx context.Context) error {
	local, _, err := m.joinedState()
	if err != nil {
		return err
	}
	if local.Mode() == media.ModeScreen {
		return media.ErrAlreadySharing
	}
	screen, err := m.provider.DisplayMedia(ctx)
	if err != nil {
		m.notify(LevelError, "Could not share screen")
		return errors.Join(ErrScreenCapture, err)
	}
	track, err := local.StartScreen(screen)
	if err != nil {
		screen.Stop()
		return err
	}
	if err = m.replaceVideo(ctx, track); err != nil {
		return err
	}

	m.mx.Lock()
	roomCtx := m.ctx
	m.mx.Unlock()
	go func() {
		select {
		case <-track.Ended():
			m.stopScreen(context.Background(), local, track)
		case <-roomCtx.Done():
		}
	}()
	m.notify(LevelInfo, "Sharing screen")
	return nil
}

// Sharing reports whether screen video is currently outgoing.
func (m *Manager) Sharing() bool {
	local, _, err := m.joinedState()
	return err == nil && local.Mode() == media.ModeScreen
}

// StopScreenShare restores camera video on every link.
func (m *Manager) StopScreenShare(ctx context.Context) error {
	local, _, err := m.joinedState()
	if err != nil {
		return err
	}
	return m.stopScreen(ctx, local, nil)
}

// stopScreen reverts to camera. Non-nil screen limits it to that exact share.
func (m *Manager) stopScreen(ctx context.Context, local *media.LocalSession, screen *media.Track) error {
	if screen != nil && local.VideoTrack() != screen {
		return nil
	}
	camera, err := local.StopScreen()
	if err != nil {
		return err
	}
	if err = m.replaceVideo(ctx, camera); err != nil {
		return err
	}
	m.notify(LevelInfo, "Screen sharing stopped")
	return nil
}

func (m *Manager) replaceVideo(ctx context.Context, track *media.Track) error {
	m.mx.Lock()
	links := make([]*PeerLink, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mx.Unlock()

	waits := make([]<-chan error, 0, len(links))
	for _, l := range links {
		waits = append(waits, l.submit(m.replaceOp(l, track)))
	}
	return wait(ctx, waits...)
}

// Dispatch routes a server announcement without waiting for its effects.
func (m *Manager) Dispatch(ann model.Announcement) {
	var res <-chan error
	switch ann.Type {
	case model.AnnouncementTypeSession:
		m.SetSelf(ann.DST)
	case model.AnnouncementTypeRoomUsers:
		members := ann.Members
		if len(members) == 0 {
			for _, id := range ann.Users {
				members = append(members, model.Member{ID: id})
			}
		}
		for _, w := range m.roomUsers(members) {
			go m.logResult(ann, w)
		}
	case model.AnnouncementTypeUserConnected:
		_ = m.HandleUserConnected(context.Background(), ann.SRC, ann.Name)
	case model.AnnouncementTypeUserDisconnected:
		m.disconnect(ann.SRC)
	case model.AnnouncementTypeUserAudioToggle, model.AnnouncementTypeUserVideoToggle:
		if ann.Enabled == nil {
			break
		}
		kind := media.KindAudio
		if ann.Type == model.AnnouncementTypeUserVideoToggle {
			kind = media.KindVideo
		}
		m.HandleToggle(ann.SRC, kind, *ann.Enabled)
	case model.AnnouncementTypeOffer, model.AnnouncementTypeAnswer:
		var desc Description
		if err := decodePayload(ann, &desc); err != nil {
			m.logger.Warn().Err(err).Str("type", ann.Type).Str("remote", ann.SRC).Msg("dropped")
			return
		}
		if ann.Type == model.AnnouncementTypeOffer {
			res = m.offer(ann.SRC, desc)
		} else {
			res = m.answer(ann.SRC, desc)
		}
	case model.AnnouncementTypeICECandidate:
		var c Candidate
		if err := decodePayload(ann, &c); err != nil {
			m.logger.Warn().Err(err).Str("type", ann.Type).Str("remote", ann.SRC).Msg("dropped")
			return
		}
		res = m.candidate(ann.SRC, c)
	default:
		m.logger.Debug().Str("type", ann.Type).Msg("unknown announcement ignored")
	}
	if res != nil {
		go m.logResult(ann, res)
	}
}

func (m *Manager) logResult(ann model.Announcement, res <-chan error) {
	if err := <-res; err != nil && !errors.Is(err, ErrLinkClosed) {
		m.logger.Warn().Err(err).Str("type", ann.Type).Str("remote", ann.SRC).Msg("signaling event failed")
	}
}

// Run dispatches announcements until in is closed or ctx is done.
func (m *Manager) Run(ctx context.Context, in <-chan model.Announcement) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ann, ok := <-in:
			if !ok {
				return nil
			}
			m.Dispatch(ann)
		}
	}
}

func decodePayload(ann model.Announcement, v any) error {
	if len(ann.Payload) == 0 {
		return ErrMalformedPayload
	}
	if err := json.Unmarshal(ann.Payload, v); err != nil {
		return errors.Join(ErrMalformedPayload, err)
	}
	return nil
}

func failed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

func wait(ctx context.Context, results ...<-chan error) error {
	var errs []error
	for _, res := range results {
		select {
		case err := <-res:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}
