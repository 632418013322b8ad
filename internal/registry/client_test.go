package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feliven/coffeetable/internal/domain"
)

func TestCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/rooms", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sess-1", body["session_uuid"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.Room{
			Code:      "ABC123",
			SessionID: "sess-1",
			CreatedAt: time.Now().UTC(),
		})
	}))
	defer srv.Close()

	room, err := New(srv.URL).CreateRoom(context.Background(), "sess-1", "")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", room.Code)
}

func TestResolveUppercasesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms/ABC123", r.URL.Path)
		json.NewEncoder(w).Encode(domain.Session{ID: "sess-1", EmbedURL: "https://embed.example"})
	}))
	defer srv.Close()

	sess, err := New(srv.URL).Resolve(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
}

func TestResolveErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrRoomNotFound},
		{"expired", http.StatusGone, ErrSessionExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := New(srv.URL).Resolve(context.Background(), "ABC123")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchSince(t *testing.T) {
	remote := domain.NewParticipant()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms/ABC123/events", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("since"))

		env := domain.NewChat(remote, "hi")
		env.Seq = 3
		json.NewEncoder(w).Encode(map[string]any{
			"events":  []domain.Envelope{env},
			"last_id": 3,
		})
	}))
	defer srv.Close()

	events, last, err := New(srv.URL).FetchSince(context.Background(), "ABC123", 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Chat.Text)
	assert.Equal(t, int64(3), last)
}

func TestFetchSinceNeverRewindsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"events": []domain.Envelope{}, "last_id": 0})
	}))
	defer srv.Close()

	_, last, err := New(srv.URL).FetchSince(context.Background(), "ABC123", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), last)
}

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://relay.example/api/rooms/ABC123/ws",
		New("http://relay.example").WSURL("ABC123"))
	assert.Equal(t, "wss://relay.example/api/rooms/ABC123/ws",
		New("https://relay.example/").WSURL("ABC123"))
}
