package session

import (
	"crypto/rand"
	"fmt"
)

const (
	roomCodeLen      = 8
	roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewRoomCode generates a random upper-case base36 room code.
func NewRoomCode() (string, error) {
	code := make([]byte, 0, roomCodeLen)
	buf := make([]byte, roomCodeLen*2)
	for len(code) < roomCodeLen {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		for _, b := range buf {
			// 252 is the largest multiple of 36 below 256
			if b >= 252 || len(code) == roomCodeLen {
				continue
			}
			code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
		}
	}
	return string(code), nil
}
