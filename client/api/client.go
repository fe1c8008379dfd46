// Package api reads room state from the diagnostics API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
)

const defaultTimeout = 5 * time.Second

var (
	ErrNotFound   = errors.New("room not found")
	ErrUnexpected = errors.New("unexpected api response")
)

type response[T any] struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    T      `json:"data,omitempty"`
}

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// Rooms lists ids of active rooms.
func (c *Client) Rooms(ctx context.Context) ([]string, error) {
	var resp response[[]string]
	if err := c.get(ctx, "/api/rooms", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Room returns members of a room in join order.
func (c *Client) Room(ctx context.Context, roomID string) (model.Room, error) {
	var resp response[model.Room]
	err := c.get(ctx, "/api/rooms/"+url.PathEscape(model.NormalizeRoomID(roomID)), &resp)
	return resp.Data, err
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: status %d", ErrUnexpected, res.StatusCode)
	}
	if err = json.NewDecoder(res.Body).Decode(v); err != nil {
		return errors.Join(ErrUnexpected, err)
	}
	return nil
}
