package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type linkOp struct {
	fn   func(ctx context.Context) error
	done chan error
}

// PeerLink is the media connection with one remote participant.
// Every transition runs on the link's own goroutine in submission order,
// so events for one peer never interleave while different peers progress
// independently.
type PeerLink struct {
	remoteID string
	logger   zerolog.Logger

	mx           sync.Mutex
	name         string
	role         Role
	state        State
	connectivity Connectivity

	// owned by the run loop
	transport Transport
	gen       int
	hasRemote bool
	pending   []Candidate

	qmx     sync.Mutex
	queue   []linkOp
	stopped bool
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newPeerLink(parent context.Context, logger *zerolog.Logger, remoteID, name string, role Role) *PeerLink {
	ctx, cancel := context.WithCancel(parent)
	return &PeerLink{
		remoteID:     remoteID,
		name:         name,
		role:         role,
		state:        StateUninitiated,
		connectivity: ConnectivityNew,
		logger:       logger.With().Str("remote", remoteID).Logger(),
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

func (l *PeerLink) Info() LinkInfo {
	l.mx.Lock()
	defer l.mx.Unlock()
	return LinkInfo{
		RemoteID:     l.remoteID,
		Name:         l.name,
		Role:         l.role,
		State:        l.state,
		Connectivity: l.connectivity,
	}
}

func (l *PeerLink) State() State {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.state
}

func (l *PeerLink) Name() string {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.name
}

func (l *PeerLink) setName(name string) {
	if name == "" {
		return
	}
	l.mx.Lock()
	l.name = name
	l.mx.Unlock()
}

func (l *PeerLink) setState(s State) {
	l.mx.Lock()
	prev := l.state
	l.state = s
	l.mx.Unlock()
	if prev != s {
		l.logger.Debug().Stringer("from", prev).Stringer("to", s).Msg("state changed")
	}
}

func (l *PeerLink) setRole(r Role) {
	l.mx.Lock()
	l.role = r
	l.mx.Unlock()
}

func (l *PeerLink) setConnectivity(c Connectivity) {
	l.mx.Lock()
	l.connectivity = c
	l.mx.Unlock()
}

// submit queues fn for the run loop. The returned channel yields fn's result,
// or ErrLinkClosed if the link is closed before fn gets to run.
func (l *PeerLink) submit(fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)

	l.qmx.Lock()
	if l.stopped {
		l.qmx.Unlock()
		done <- ErrLinkClosed
		return done
	}
	l.queue = append(l.queue, linkOp{fn: fn, done: done})
	l.qmx.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return done
}

func (l *PeerLink) next() (linkOp, bool) {
	l.qmx.Lock()
	defer l.qmx.Unlock()
	if len(l.queue) == 0 {
		return linkOp{}, false
	}
	op := l.queue[0]
	l.queue[0] = linkOp{}
	l.queue = l.queue[1:]
	return op, true
}

func (l *PeerLink) run(onExit func()) {
	defer close(l.done)
	defer onExit()

	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return
		case <-l.wake:
		}
		for {
			if l.ctx.Err() != nil {
				break
			}
			op, ok := l.next()
			if !ok {
				break
			}
			op.done <- op.fn(l.ctx)
		}
	}
}

func (l *PeerLink) shutdown() {
	l.qmx.Lock()
	l.stopped = true
	queue := l.queue
	l.queue = nil
	l.qmx.Unlock()

	for _, op := range queue {
		op.done <- ErrLinkClosed
	}
	l.resetTransport()
	l.setState(StateClosed)
	l.logger.Debug().Msg("link closed")
}

// resetTransport drops current transport together with negotiation progress.
func (l *PeerLink) resetTransport() {
	if l.transport != nil {
		if err := l.transport.Close(); err != nil {
			l.logger.Debug().Err(err).Msg("transport close error")
		}
	}
	l.transport = nil
	l.hasRemote = false
	l.pending = nil
}

// close stops the run loop. Safe to call from inside an op.
func (l *PeerLink) close() {
	l.cancel()
}

func (l *PeerLink) wait() {
	<-l.done
}
