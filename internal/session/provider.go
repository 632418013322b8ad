// Package session is the client side of the session-provider boundary. A
// session wraps one remote-controlled browser; the core treats its embed
// URL as opaque and never parses it.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/feliven/coffeetable/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session inactive")
	ErrUnauthorized    = errors.New("invalid or missing api key")
)

// CreateOptions mirror the provider's session parameters.
type CreateOptions struct {
	StartURL        string `json:"start_url"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Kiosk           bool   `json:"kiosk"`
	TimeoutAbsolute int    `json:"timeout_absolute"`
	TimeoutInactive int    `json:"timeout_inactive"`
}

type Provider struct {
	base   string
	apiKey string
	http   *http.Client
}

func NewProvider(base, apiKey string) *Provider {
	return &Provider{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Create provisions a session and returns its opaque handle.
func (p *Provider) Create(ctx context.Context, opts CreateOptions) (*domain.Session, error) {
	const op = "session.create"

	if opts.StartURL == "" {
		opts.StartURL = "https://www.google.com"
	}
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}

	body, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var session domain.Session
	if err := p.do(ctx, http.MethodPost, "/api/sessions", body, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// Destroy terminates a session. The relay marks the session inactive even
// when the upstream terminate fails, so a nil error here only guarantees
// local termination.
func (p *Provider) Destroy(ctx context.Context, sessionID string) error {
	const op = "session.destroy"

	if err := p.do(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Provider) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode == http.StatusGone:
		return ErrSessionInactive
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
