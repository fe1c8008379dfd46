package session

import (
	"errors"
	"fmt"
)

var (
	ErrMissingName      = errors.New("display name is required")
	ErrMissingRoom      = errors.New("room code is required")
	ErrMediaAcquisition = errors.New("unable to access camera or microphone")
	ErrScreenCapture    = errors.New("unable to capture screen")
	ErrNotJoined        = errors.New("not in a room")
	ErrAlreadyJoined    = errors.New("already in a room")
	ErrSignaling        = errors.New("signaling failed")
	ErrLinkClosed       = errors.New("peer link is closed")
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrUnexpectedAnswer = errors.New("answer received while no offer is pending")
	ErrMalformedPayload = errors.New("malformed signaling payload")
)

// NegotiationError is a failed step of a peer link negotiation.
type NegotiationError struct {
	Op       string
	RemoteID string
	Err      error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s with %s: %v", e.Op, e.RemoteID, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func negotiationError(op, remoteID string, err error) error {
	return &NegotiationError{Op: op, RemoteID: remoteID, Err: err}
}
