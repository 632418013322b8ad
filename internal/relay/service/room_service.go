package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/relay/repository"
)

var (
	ErrSessionExpired = errors.New("session no longer active")
	ErrInvalidEvent   = errors.New("invalid event")
)

const maxChatMessageLength = 4000

// codeMintAttempts bounds the retry loop on code collisions. With a 36^6
// code space, hitting the bound means the registry is effectively full.
const codeMintAttempts = 10

type RoomService struct {
	rooms    repository.RoomRepository
	sessions repository.SessionRepository
	events   repository.EventRepository
	log      *slog.Logger
}

func NewRoomService(rooms repository.RoomRepository, sessions repository.SessionRepository, events repository.EventRepository, log *slog.Logger) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		rooms:    rooms,
		sessions: sessions,
		events:   events,
		log:      log,
	}
}

// CreateRoom mints a share code for an existing active session.
func (s *RoomService) CreateRoom(ctx context.Context, sessionID, label string) (*domain.Room, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, ErrSessionExpired
	}

	for attempt := 0; attempt < codeMintAttempts; attempt++ {
		room := domain.NewRoom(sessionID, label)
		if err := s.rooms.Create(ctx, room); err != nil {
			if errors.Is(err, repository.ErrRoomCodeExists) {
				continue
			}
			return nil, err
		}
		s.log.Info("room registered", "code", room.Code, "session", sessionID)
		return room, nil
	}
	return nil, errors.New("could not mint a unique room code")
}

// Resolve maps a code to the session behind it.
func (s *RoomService) Resolve(ctx context.Context, code string) (*domain.Session, error) {
	room, err := s.rooms.GetByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.GetByID(ctx, room.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	if !sess.Active {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Append validates and stores one envelope, returning it with the cursor
// the log assigned. Every event, whether it arrived over the socket or the
// events endpoint, goes through here so both transports see one ordered
// stream.
func (s *RoomService) Append(ctx context.Context, code string, env domain.Envelope) (domain.Envelope, error) {
	code = normalizeCode(code)

	if _, err := s.rooms.GetByCode(ctx, code); err != nil {
		return domain.Envelope{}, err
	}
	if err := validateEnvelope(&env); err != nil {
		return domain.Envelope{}, err
	}

	seq, err := s.events.Append(ctx, code, env)
	if err != nil {
		return domain.Envelope{}, err
	}
	env.Seq = seq
	return env, nil
}

// EventsSince returns the log suffix after the given cursor.
func (s *RoomService) EventsSince(ctx context.Context, code string, since int64) ([]domain.Envelope, int64, error) {
	code = normalizeCode(code)

	if _, err := s.rooms.GetByCode(ctx, code); err != nil {
		return nil, 0, err
	}
	return s.events.ListSince(ctx, code, since)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// validateEnvelope rejects events the clients could never consume and fills
// in what a sender may omit. Senders are trusted with content, not shape.
func validateEnvelope(env *domain.Envelope) error {
	switch env.Kind {
	case domain.KindHello, domain.KindPresence, domain.KindChat, domain.KindCallSignal, domain.KindLifecycle:
	default:
		return ErrInvalidEvent
	}

	if env.From.ID == "" {
		return ErrInvalidEvent
	}
	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if env.SentAt.IsZero() {
		env.SentAt = time.Now().UTC()
	}

	if env.Kind == domain.KindChat {
		if env.Chat == nil {
			return ErrInvalidEvent
		}
		if strings.TrimSpace(env.Chat.Text) == "" {
			return ErrInvalidEvent
		}
		if utf8.RuneCountInString(env.Chat.Text) > maxChatMessageLength {
			return ErrInvalidEvent
		}
	}
	if env.Kind == domain.KindCallSignal && env.Signal == nil {
		return ErrInvalidEvent
	}
	return nil
}
