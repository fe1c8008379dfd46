package _switch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout = time.Second
)

var (
	ErrAlreadyConnected = errors.New("endpoint is already connected")
)

// Switch delivers announcements to connected endpoints.
// Endpoints are addressed by participant id assigned by the transport.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]model.Wire),
	}
}

func (sw *Switch) Connect(endpoint string, wire model.Wire) error {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	if _, ok := sw.fwd[endpoint]; ok {
		return ErrAlreadyConnected
	}
	sw.fwd[endpoint] = wire
	sw.logger.Debug().Str("endpoint", endpoint).Msg("endpoint connected")
	return nil
}

func (sw *Switch) Disconnect(endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	delete(sw.fwd, endpoint)
	sw.logger.Debug().Str("endpoint", endpoint).Msg("endpoint disconnected")
}

// Connected reports whether endpoint is currently attached.
func (sw *Switch) Connected(endpoint string) bool {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	_, ok := sw.fwd[endpoint]
	return ok
}

// Send forwards announcement to ann.DST. Returns false if announcement was dropped.
func (sw *Switch) Send(ctx context.Context, ann model.Announcement) bool {
	logger := sw.logger.With().
		Str("type", ann.Type).
		Str("src", ann.SRC).
		Str("dst", ann.DST).
		Logger()

	sw.mx.RLock()
	wire, ok := sw.fwd[ann.DST]
	sw.mx.RUnlock()

	if !ok {
		logger.Debug().Msg("cannot forward, dst not found")
		return false
	}
	sent, _ := send(ctx, ann, wire.TX, &logger)
	return sent
}

// Multicast forwards announcement to every dst except its source.
// Returns number of endpoints that received it.
func (sw *Switch) Multicast(ctx context.Context, ann model.Announcement, dsts []string) int {
	var (
		sent   int
		logger = sw.logger.With().
			Str("type", ann.Type).
			Str("src", ann.SRC).
			Logger()
	)

	for _, dst := range dsts {
		if dst == ann.SRC {
			continue
		}
		sw.mx.RLock()
		wire, ok := sw.fwd[dst]
		sw.mx.RUnlock()
		if !ok {
			logger.Debug().Str("dst", dst).Msg("cannot forward, dst not found")
			continue
		}

		ann.DST = dst
		annSent, canceled := send(ctx, ann, wire.TX, &logger)
		if canceled {
			break
		}
		if annSent {
			sent++
		}
	}
	if sent == 0 && len(dsts) > 0 {
		logger.Debug().Msg("multicast did not reach anyone")
	}
	return sent
}

func send(ctx context.Context, ann model.Announcement, tx chan<- model.Announcement, logger *zerolog.Logger) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultFwdTimout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Str("dst", ann.DST).Msg("dead endpoint")
	case tx <- ann:
		logger.Debug().Str("dst", ann.DST).Msg("announce is forwarded")
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
