// Package registry is the client side of the room-registry boundary: a
// short code maps to a session handle, and each room carries an append-only
// event log addressed by a monotonic cursor.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/feliven/coffeetable/internal/domain"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrSessionExpired = errors.New("session no longer active")
)

type Client struct {
	base string
	http *http.Client
}

func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateRoom mints a share code for an existing session.
func (c *Client) CreateRoom(ctx context.Context, sessionID, label string) (*domain.Room, error) {
	const op = "registry.createRoom"

	body, err := json.Marshal(map[string]string{
		"session_uuid": sessionID,
		"label":        label,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var room domain.Room
	if err := c.do(ctx, http.MethodPost, "/api/rooms", body, &room); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &room, nil
}

// Resolve maps a room code to its session handle.
func (c *Client) Resolve(ctx context.Context, code string) (*domain.Session, error) {
	const op = "registry.resolve"

	var session domain.Session
	err := c.do(ctx, http.MethodGet, "/api/rooms/"+strings.ToUpper(code), nil, &session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// AppendEvent posts one envelope to the room's log.
func (c *Client) AppendEvent(ctx context.Context, code string, env domain.Envelope) error {
	const op = "registry.appendEvent"

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+code+"/events", body, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type eventsPage struct {
	Events []domain.Envelope `json:"events"`
	LastID int64             `json:"last_id"`
}

// FetchSince returns all envelopes with cursor greater than since, in
// nondecreasing order, plus the new high-water mark.
func (c *Client) FetchSince(ctx context.Context, code string, since int64) ([]domain.Envelope, int64, error) {
	const op = "registry.fetchSince"

	var page eventsPage
	path := "/api/rooms/" + code + "/events?since=" + strconv.FormatInt(since, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, since, fmt.Errorf("%s: %w", op, err)
	}
	last := page.LastID
	if last < since {
		last = since
	}
	return page.Events, last, nil
}

// WSURL derives the push endpoint for a room from the HTTP base.
func (c *Client) WSURL(code string) string {
	base := c.base
	if strings.HasPrefix(base, "https") {
		base = "wss" + strings.TrimPrefix(base, "https")
	} else if strings.HasPrefix(base, "http") {
		base = "ws" + strings.TrimPrefix(base, "http")
	}
	return base + "/api/rooms/" + code + "/ws"
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrRoomNotFound
	case resp.StatusCode == http.StatusGone:
		return ErrSessionExpired
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("registry returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
