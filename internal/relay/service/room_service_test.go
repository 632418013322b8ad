package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/relay/repository"
)

func newRoomService(t *testing.T) (*RoomService, *repository.InMemorySessionRepository) {
	t.Helper()

	sessions := repository.NewInMemorySessionRepository()
	rooms := repository.NewInMemoryRoomRepository()
	events := repository.NewInMemoryEventRepository()
	return NewRoomService(rooms, sessions, events, nil), sessions
}

func seedSession(t *testing.T, sessions *repository.InMemorySessionRepository, active bool) *domain.Session {
	t.Helper()

	sess := &domain.Session{
		ID:        "sess-1",
		EmbedURL:  "https://embed.example/sess-1",
		Active:    active,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, sessions.Create(context.Background(), sess))
	return sess
}

func TestCreateRoomMintsCode(t *testing.T) {
	svc, sessions := newRoomService(t)
	seedSession(t, sessions, true)

	room, err := svc.CreateRoom(context.Background(), "sess-1", "movie night")
	require.NoError(t, err)

	assert.Len(t, room.Code, 6)
	assert.Equal(t, strings.ToUpper(room.Code), room.Code)
	assert.Equal(t, "sess-1", room.SessionID)
	assert.Equal(t, "movie night", room.Label)
}

func TestCreateRoomUnknownSession(t *testing.T) {
	svc, _ := newRoomService(t)

	_, err := svc.CreateRoom(context.Background(), "missing", "")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestCreateRoomInactiveSession(t *testing.T) {
	svc, sessions := newRoomService(t)
	seedSession(t, sessions, false)

	_, err := svc.CreateRoom(context.Background(), "sess-1", "")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestResolve(t *testing.T) {
	svc, sessions := newRoomService(t)
	seedSession(t, sessions, true)

	room, err := svc.CreateRoom(context.Background(), "sess-1", "")
	require.NoError(t, err)

	// Codes resolve case-insensitively: users type them by hand.
	sess, err := svc.Resolve(context.Background(), strings.ToLower(room.Code))
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, "https://embed.example/sess-1", sess.EmbedURL)
}

func TestResolveUnknownCode(t *testing.T) {
	svc, _ := newRoomService(t)

	_, err := svc.Resolve(context.Background(), "NOSUCH")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestResolveTerminatedSession(t *testing.T) {
	svc, sessions := newRoomService(t)
	seedSession(t, sessions, true)

	room, err := svc.CreateRoom(context.Background(), "sess-1", "")
	require.NoError(t, err)

	require.NoError(t, sessions.MarkInactive(context.Background(), "sess-1"))

	_, err = svc.Resolve(context.Background(), room.Code)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestAppendAssignsIncreasingCursor(t *testing.T) {
	svc, sessions := newRoomService(t)
	seedSession(t, sessions, true)
	room, err := svc.CreateRoom(context.Background(), "sess-1", "")
	require.NoError(t, err)

	p := domain.NewParticipant()
	first, err := svc.Append(context.Background(), room.Code, domain.NewChat(p, "one"))
	require.NoError(t, err)
	second, err := svc.Append(context.Background(), room.Code, domain.NewChat(p, "two"))
	require.NoError(t, err)

	assert.Greater(t, second.Seq, first.Seq)
}

func TestAppendUnknownRoom(t *testing.T) {
	svc, _ := newRoomService(t)

	_, err := svc.Append(context.Background(), "NOSUCH", domain.NewChat(domain.NewParticipant(), "hi"))
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestAppendRejectsInvalidEvents(t *testing.T) {
	svc, sessions := newRoomService(t)
	seedSession(t, sessions, true)
	room, err := svc.CreateRoom(context.Background(), "sess-1", "")
	require.NoError(t, err)

	p := domain.NewParticipant()
	tests := []struct {
		name string
		env  domain.Envelope
	}{
		{"unknown kind", domain.Envelope{Kind: "mystery", From: p}},
		{"missing sender", domain.Envelope{Kind: domain.KindChat, Chat: &domain.ChatPayload{Text: "hi"}}},
		{"chat without payload", domain.Envelope{Kind: domain.KindChat, From: p}},
		{"blank chat", domain.NewChat(p, "   ")},
		{"oversized chat", domain.NewChat(p, strings.Repeat("x", maxChatMessageLength+1))},
		{"signal without payload", domain.Envelope{Kind: domain.KindCallSignal, From: p}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Append(context.Background(), room.Code, tt.env)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}

func TestAppendFillsNonceAndTimestamp(t *testing.T) {
	svc, sessions := newRoomService(t)
	seedSession(t, sessions, true)
	room, err := svc.CreateRoom(context.Background(), "sess-1", "")
	require.NoError(t, err)

	env := domain.Envelope{
		Kind: domain.KindChat,
		From: domain.NewParticipant(),
		Chat: &domain.ChatPayload{Text: "bare"},
	}
	assigned, err := svc.Append(context.Background(), room.Code, env)
	require.NoError(t, err)

	assert.NotEmpty(t, assigned.ID)
	assert.False(t, assigned.SentAt.IsZero())
}

func TestEventsSinceReturnsSuffix(t *testing.T) {
	svc, sessions := newRoomService(t)
	seedSession(t, sessions, true)
	room, err := svc.CreateRoom(context.Background(), "sess-1", "")
	require.NoError(t, err)

	p := domain.NewParticipant()
	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.Append(context.Background(), room.Code, domain.NewChat(p, text))
		require.NoError(t, err)
	}

	events, last, err := svc.EventsSince(context.Background(), room.Code, 1)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "two", events[0].Chat.Text)
	assert.Equal(t, "three", events[1].Chat.Text)
	assert.Equal(t, int64(3), last)

	// Caught up: empty page, same high-water mark.
	events, last, err = svc.EventsSince(context.Background(), room.Code, 3)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, int64(3), last)
}
