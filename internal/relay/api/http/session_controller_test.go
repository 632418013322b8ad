package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/relay/repository"
	"github.com/feliven/coffeetable/internal/session"
)

type stubSessions struct {
	sess *domain.Session
}

func (s *stubSessions) Create(ctx context.Context, opts session.CreateOptions) (*domain.Session, error) {
	return s.sess, nil
}

func (s *stubSessions) Get(ctx context.Context, id string) (*domain.Session, error) {
	if s.sess == nil || s.sess.ID != id {
		return nil, repository.ErrSessionNotFound
	}
	return s.sess, nil
}

func (s *stubSessions) Terminate(ctx context.Context, id string) error {
	if s.sess == nil || s.sess.ID != id {
		return repository.ErrSessionNotFound
	}
	s.sess.Active = false
	return nil
}

func newSessionRouter(t *testing.T, apiKey string, stub *stubSessions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return SetupRouter(nil, NewSessionController(stub, apiKey), nil)
}

func TestSessionEndpointsRequireKey(t *testing.T) {
	router := newSessionRouter(t, "relay-key", &stubSessions{})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "relay-key", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer relay-key", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/sessions/unknown", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSessionEndpointsOpenWithoutKey(t *testing.T) {
	stub := &stubSessions{sess: &domain.Session{ID: "sess-1", EmbedURL: "https://embed.example", Active: true}}
	router := newSessionRouter(t, "", stub)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "embed.example"))
}

func TestGetTerminatedSessionGone(t *testing.T) {
	stub := &stubSessions{sess: &domain.Session{ID: "sess-1", Active: false}}
	router := newSessionRouter(t, "", stub)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestEndSession(t *testing.T) {
	stub := &stubSessions{sess: &domain.Session{ID: "sess-1", Active: true}}
	router := newSessionRouter(t, "", stub)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, stub.sess.Active)
}
