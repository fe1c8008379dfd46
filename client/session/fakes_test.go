package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/adwski/webrtc-rooms/client/media"
)

var errBadCandidate = errors.New("bad candidate")

type sent struct {
	typ     string
	to      string
	desc    Description
	cand    Candidate
	kind    media.Kind
	room    string
	name    string
	enabled bool
}

type fakeSignaler struct {
	mx      sync.Mutex
	joinErr error
	sent    []sent
}

func (s *fakeSignaler) record(msg sent) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.sent = append(s.sent, msg)
}

func (s *fakeSignaler) JoinRoom(_ context.Context, roomID, name string) error {
	if s.joinErr != nil {
		return s.joinErr
	}
	s.record(sent{typ: "join", room: roomID, name: name})
	return nil
}

func (s *fakeSignaler) LeaveRoom(context.Context) error {
	s.record(sent{typ: "leave"})
	return nil
}

func (s *fakeSignaler) SendOffer(_ context.Context, to string, desc Description) error {
	s.record(sent{typ: "offer", to: to, desc: desc})
	return nil
}

func (s *fakeSignaler) SendAnswer(_ context.Context, to string, desc Description) error {
	s.record(sent{typ: "answer", to: to, desc: desc})
	return nil
}

func (s *fakeSignaler) SendCandidate(_ context.Context, to string, c Candidate) error {
	s.record(sent{typ: "candidate", to: to, cand: c})
	return nil
}

func (s *fakeSignaler) SendToggle(_ context.Context, kind media.Kind, roomID string, enabled bool) error {
	s.record(sent{typ: "toggle", kind: kind, room: roomID, enabled: enabled})
	return nil
}

func (s *fakeSignaler) ofType(typ string) []sent {
	s.mx.Lock()
	defer s.mx.Unlock()
	var out []sent
	for _, msg := range s.sent {
		if msg.typ == typ {
			out = append(out, msg)
		}
	}
	return out
}

type fakeTransport struct {
	remoteID string
	events   TransportEvents
	tracks   []*media.Track

	mx         sync.Mutex
	calls      []string
	remote     []Description
	candidates []Candidate
	replaced   []*media.Track
	closed     bool
}

func (t *fakeTransport) call(c string) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.calls = append(t.calls, c)
}

func (t *fakeTransport) CreateOffer(context.Context) (Description, error) {
	t.call("create-offer")
	return Description{Type: "offer", SDP: "offer-for-" + t.remoteID}, nil
}

func (t *fakeTransport) CreateAnswer(context.Context) (Description, error) {
	t.call("create-answer")
	return Description{Type: "answer", SDP: "answer-for-" + t.remoteID}, nil
}

func (t *fakeTransport) SetRemoteDescription(_ context.Context, desc Description) error {
	t.call("set-remote")
	t.mx.Lock()
	defer t.mx.Unlock()
	t.remote = append(t.remote, desc)
	return nil
}

func (t *fakeTransport) AddICECandidate(_ context.Context, c Candidate) error {
	if strings.HasPrefix(c.Candidate, "bad") {
		return errBadCandidate
	}
	t.call("add-candidate " + c.Candidate)
	t.mx.Lock()
	defer t.mx.Unlock()
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *fakeTransport) ReplaceVideoTrack(_ context.Context, track *media.Track) error {
	t.call("replace-video")
	t.mx.Lock()
	defer t.mx.Unlock()
	t.replaced = append(t.replaced, track)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) Calls() []string {
	t.mx.Lock()
	defer t.mx.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *fakeTransport) Candidates() []Candidate {
	t.mx.Lock()
	defer t.mx.Unlock()
	return append([]Candidate(nil), t.candidates...)
}

func (t *fakeTransport) Replaced() []*media.Track {
	t.mx.Lock()
	defer t.mx.Unlock()
	return append([]*media.Track(nil), t.replaced...)
}

func (t *fakeTransport) Closed() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.closed
}

type fakeFactory struct {
	mx         sync.Mutex
	transports map[string][]*fakeTransport
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{transports: make(map[string][]*fakeTransport)}
}

func (f *fakeFactory) NewTransport(_ context.Context, remoteID string, tracks []*media.Track, events TransportEvents) (Transport, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	t := &fakeTransport{remoteID: remoteID, events: events, tracks: tracks}
	f.transports[remoteID] = append(f.transports[remoteID], t)
	return t, nil
}

func (f *fakeFactory) all(remoteID string) []*fakeTransport {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]*fakeTransport(nil), f.transports[remoteID]...)
}

// last returns most recent transport for remoteID or nil.
func (f *fakeFactory) last(remoteID string) *fakeTransport {
	all := f.all(remoteID)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

type fakeProvider struct {
	mx         sync.Mutex
	userErr    error
	displayErr error
	user       []*media.Stream
	display    []*media.Stream
}

func (p *fakeProvider) UserMedia(ctx context.Context) (*media.Stream, error) {
	if p.userErr != nil {
		return nil, p.userErr
	}
	s, err := media.SyntheticProvider{}.UserMedia(ctx)
	if err != nil {
		return nil, err
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	p.user = append(p.user, s)
	return s, nil
}

func (p *fakeProvider) DisplayMedia(ctx context.Context) (*media.Stream, error) {
	if p.displayErr != nil {
		return nil, p.displayErr
	}
	s, err := media.SyntheticProvider{}.DisplayMedia(ctx)
	if err != nil {
		return nil, err
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	p.display = append(p.display, s)
	return s, nil
}

func (p *fakeProvider) lastUser() *media.Stream {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.user[len(p.user)-1]
}

func (p *fakeProvider) lastDisplay() *media.Stream {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.display[len(p.display)-1]
}

func (p *fakeProvider) userCalls() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.user)
}

type fakeRenderer struct {
	mx         sync.Mutex
	attached   map[string]string
	detached   map[string]int
	indicators map[string]map[media.Kind]bool
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		attached:   make(map[string]string),
		detached:   make(map[string]int),
		indicators: make(map[string]map[media.Kind]bool),
	}
}

func (r *fakeRenderer) Attach(remoteID, name string, _ RemoteTrack) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.attached[remoteID] = name
}

func (r *fakeRenderer) Detach(remoteID string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	delete(r.attached, remoteID)
	r.detached[remoteID]++
}

func (r *fakeRenderer) SetIndicator(remoteID string, kind media.Kind, enabled bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.indicators[remoteID] == nil {
		r.indicators[remoteID] = make(map[media.Kind]bool)
	}
	r.indicators[remoteID][kind] = enabled
}

func (r *fakeRenderer) attachedName(remoteID string) (string, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	name, ok := r.attached[remoteID]
	return name, ok
}

func (r *fakeRenderer) detachCount(remoteID string) int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.detached[remoteID]
}

func (r *fakeRenderer) indicator(remoteID string, kind media.Kind) (bool, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	on, ok := r.indicators[remoteID][kind]
	return on, ok
}

type notice struct {
	level Level
	msg   string
}

type fakeNotifier struct {
	mx      sync.Mutex
	notices []notice
}

func (n *fakeNotifier) Notify(level Level, msg string) {
	n.mx.Lock()
	defer n.mx.Unlock()
	n.notices = append(n.notices, notice{level: level, msg: msg})
}

func (n *fakeNotifier) matching(level Level, substr string) int {
	n.mx.Lock()
	defer n.mx.Unlock()
	var cnt int
	for _, nt := range n.notices {
		if nt.level == level && strings.Contains(nt.msg, substr) {
			cnt++
		}
	}
	return cnt
}
