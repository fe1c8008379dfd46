package session

import (
	"context"
	"errors"

	"github.com/adwski/webrtc-rooms/client/media"
)

// Link ops below run on the link's own goroutine.

func (m *Manager) ensureTransport(ctx context.Context, l *PeerLink) error {
	if l.transport != nil {
		return nil
	}
	local, _, err := m.joinedState()
	if err != nil {
		return err
	}
	l.gen++
	gen := l.gen
	t, err := m.transports.NewTransport(ctx, l.remoteID, local.Tracks(), TransportEvents{
		OnCandidate: func(c Candidate) {
			l.submit(func(ctx context.Context) error {
				if gen != l.gen {
					return nil
				}
				if err := m.signaler.SendCandidate(ctx, l.remoteID, c); err != nil {
					l.logger.Debug().Err(err).Msg("cannot send candidate")
				}
				return nil
			})
		},
		OnConnectivity: func(c Connectivity) {
			l.submit(func(context.Context) error {
				if gen == l.gen {
					m.onConnectivity(l, c)
				}
				return nil
			})
		},
		OnRemoteTrack: func(rt RemoteTrack) {
			l.submit(func(context.Context) error {
				if gen == l.gen {
					l.logger.Debug().Str("kind", string(rt.Kind)).Msg("remote track")
					m.renderer.Attach(l.remoteID, l.Name(), rt)
				}
				return nil
			})
		},
	})
	if err != nil {
		return negotiationError("create transport", l.remoteID, err)
	}
	l.transport = t
	return nil
}

func (m *Manager) offerOp(l *PeerLink) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if l.State() != StateUninitiated {
			return nil
		}
		if err := m.ensureTransport(ctx, l); err != nil {
			return err
		}
		desc, err := l.transport.CreateOffer(ctx)
		if err != nil {
			return m.failNegotiation(l, "create offer", err)
		}
		l.setState(StateOffered)
		if err = m.signaler.SendOffer(ctx, l.remoteID, desc); err != nil {
			return errors.Join(ErrSignaling, err)
		}
		return nil
	}
}

func (m *Manager) answerOp(l *PeerLink, offer Description) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		state := l.State()
		if state == StateOffered {
			// remote offer wins over a pending local one
			l.logger.Debug().Msg("offer collision, answering remote offer")
			l.resetTransport()
			l.setRole(RoleResponder)
			l.setState(StateUninitiated)
		}
		if err := m.ensureTransport(ctx, l); err != nil {
			return err
		}
		if err := l.transport.SetRemoteDescription(ctx, offer); err != nil {
			return m.failNegotiation(l, "set remote offer", err)
		}
		l.hasRemote = true
		m.flushCandidates(ctx, l)

		desc, err := l.transport.CreateAnswer(ctx)
		if err != nil {
			return m.failNegotiation(l, "create answer", err)
		}
		if state != StateConnected {
			l.setState(StateAnswered)
		}
		if err = m.signaler.SendAnswer(ctx, l.remoteID, desc); err != nil {
			return errors.Join(ErrSignaling, err)
		}
		return nil
	}
}

func (m *Manager) acceptAnswerOp(l *PeerLink, answer Description) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if l.State() != StateOffered || l.hasRemote {
			l.logger.Debug().Stringer("state", l.State()).Msg("unexpected answer ignored")
			return ErrUnexpectedAnswer
		}
		if err := l.transport.SetRemoteDescription(ctx, answer); err != nil {
			return m.failNegotiation(l, "set remote answer", err)
		}
		l.hasRemote = true
		m.flushCandidates(ctx, l)
		return nil
	}
}

func (m *Manager) candidateOp(l *PeerLink, c Candidate) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if l.transport == nil || !l.hasRemote {
			l.pending = append(l.pending, c)
			l.logger.Debug().Int("queued", len(l.pending)).Msg("candidate queued")
			return nil
		}
		m.applyCandidate(ctx, l, c)
		return nil
	}
}

func (m *Manager) flushCandidates(ctx context.Context, l *PeerLink) {
	pending := l.pending
	l.pending = nil
	for _, c := range pending {
		m.applyCandidate(ctx, l, c)
	}
}

func (m *Manager) applyCandidate(ctx context.Context, l *PeerLink, c Candidate) {
	if err := l.transport.AddICECandidate(ctx, c); err != nil {
		l.logger.Warn().Err(err).Str("candidate", c.Candidate).Msg("cannot apply candidate")
	}
}

func (m *Manager) replaceOp(l *PeerLink, track *media.Track) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if l.transport == nil {
			// tracks are taken from local session when transport gets created
			return nil
		}
		if err := l.transport.ReplaceVideoTrack(ctx, track); err != nil {
			l.logger.Warn().Err(err).Msg("cannot replace video track")
		}
		return nil
	}
}

func (m *Manager) onConnectivity(l *PeerLink, c Connectivity) {
	l.setConnectivity(c)
	l.logger.Debug().Str("connectivity", string(c)).Msg("connectivity changed")

	switch c {
	case ConnectivityConnected, ConnectivityCompleted:
		if s := l.State(); s == StateOffered || s == StateAnswered {
			l.setState(StateConnected)
		}
	case ConnectivityFailed:
		m.notify(LevelWarning, "Connection with %s failed", displayName(l.Name()))
	case ConnectivityClosed:
		m.mx.Lock()
		if m.links[l.remoteID] == l {
			delete(m.links, l.remoteID)
		}
		m.mx.Unlock()
		m.renderer.Detach(l.remoteID)
		l.close()
	}
}

func (m *Manager) failNegotiation(l *PeerLink, op string, err error) error {
	err = negotiationError(op, l.remoteID, err)
	l.logger.Error().Err(err).Msg("negotiation failed")
	return err
}
