package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/relay/repository"
	"github.com/feliven/coffeetable/internal/session"
	"github.com/feliven/coffeetable/lib/logger/sl"
)

// Upstream provisions and terminates browser VMs at the external provider.
// Split out as an interface so tests run against a fake farm.
type Upstream interface {
	CreateVM(ctx context.Context, opts session.CreateOptions) (providerID, embedURL string, err error)
	TerminateVM(ctx context.Context, providerID string) error
}

type SessionService struct {
	upstream Upstream
	sessions repository.SessionRepository
	log      *slog.Logger
}

func NewSessionService(upstream Upstream, sessions repository.SessionRepository, log *slog.Logger) *SessionService {
	if log == nil {
		log = slog.Default()
	}
	return &SessionService{
		upstream: upstream,
		sessions: sessions,
		log:      log,
	}
}

// Create provisions an upstream VM and records the session.
func (s *SessionService) Create(ctx context.Context, opts session.CreateOptions) (*domain.Session, error) {
	const op = "service.session.create"

	providerID, embedURL, err := s.upstream.CreateVM(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sess := &domain.Session{
		ID:         uuid.New().String(),
		ProviderID: providerID,
		EmbedURL:   embedURL,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("session provisioned", "session", sess.ID, "provider_id", providerID)
	return sess, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.sessions.GetByID(ctx, id)
}

// Terminate destroys the upstream VM and marks the session inactive. The
// local mark goes through even when the upstream terminate fails: the VM
// will die on its own inactivity timeout, and the rooms pointing at the
// session must stop resolving now.
func (s *SessionService) Terminate(ctx context.Context, id string) error {
	const op = "service.session.terminate"

	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if sess.ProviderID != "" {
		if err := s.upstream.TerminateVM(ctx, sess.ProviderID); err != nil {
			s.log.Warn("upstream terminate failed, marking inactive anyway",
				"session", id, sl.Err(err))
		}
	}

	if err := s.sessions.MarkInactive(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("session terminated", "session", id)
	return nil
}

// HTTPUpstream talks to the provider's VM API with a bearer key.
type HTTPUpstream struct {
	base   string
	apiKey string
	http   *http.Client
}

func NewHTTPUpstream(base, apiKey string) *HTTPUpstream {
	return &HTTPUpstream{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

type vmRequest struct {
	StartURL        string `json:"start_url"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	Kiosk           bool   `json:"kiosk"`
	TimeoutAbsolute int    `json:"timeout_absolute,omitempty"`
	TimeoutInactive int    `json:"timeout_inactive,omitempty"`
}

type vmResponse struct {
	SessionID string `json:"session_id"`
	EmbedURL  string `json:"embed_url"`
}

func (u *HTTPUpstream) CreateVM(ctx context.Context, opts session.CreateOptions) (string, string, error) {
	body, err := json.Marshal(vmRequest{
		StartURL:        opts.StartURL,
		Width:           opts.Width,
		Height:          opts.Height,
		Kiosk:           opts.Kiosk,
		TimeoutAbsolute: opts.TimeoutAbsolute,
		TimeoutInactive: opts.TimeoutInactive,
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.base+"/vm", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", "", fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var vm vmResponse
	if err := json.NewDecoder(resp.Body).Decode(&vm); err != nil {
		return "", "", err
	}
	if vm.SessionID == "" || vm.EmbedURL == "" {
		return "", "", errors.New("provider response missing session_id or embed_url")
	}
	return vm.SessionID, vm.EmbedURL, nil
}

func (u *HTTPUpstream) TerminateVM(ctx context.Context, providerID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.base+"/vm/"+providerID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Already-gone VMs are a success for our purposes.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
