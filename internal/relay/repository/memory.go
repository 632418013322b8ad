package repository

import (
	"context"
	"sync"

	"github.com/feliven/coffeetable/internal/domain"
)

type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[string]*domain.Session),
	}
}

func (r *InMemorySessionRepository) Create(ctx context.Context, sess *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *sess
	r.sessions[sess.ID] = &copied
	return nil
}

func (r *InMemorySessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := *sess
	return &copied, nil
}

func (r *InMemorySessionRepository) MarkInactive(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	sess.Active = false
	return nil
}

type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms: make(map[string]*domain.Room),
	}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.Code]; ok {
		return ErrRoomCodeExists
	}

	copied := *room
	r.rooms[room.Code] = &copied
	return nil
}

func (r *InMemoryRoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}

	copied := *room
	return &copied, nil
}

type roomLog struct {
	events []domain.Envelope
	last   int64
}

type InMemoryEventRepository struct {
	mu   sync.RWMutex
	logs map[string]*roomLog
}

func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{
		logs: make(map[string]*roomLog),
	}
}

func (r *InMemoryEventRepository) Append(ctx context.Context, code string, env domain.Envelope) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	log, ok := r.logs[code]
	if !ok {
		log = &roomLog{}
		r.logs[code] = log
	}

	log.last++
	env.Seq = log.last
	log.events = append(log.events, env)
	return log.last, nil
}

func (r *InMemoryEventRepository) ListSince(ctx context.Context, code string, since int64) ([]domain.Envelope, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	log, ok := r.logs[code]
	if !ok {
		return nil, since, nil
	}

	result := make([]domain.Envelope, 0)
	for _, env := range log.events {
		if env.Seq > since {
			result = append(result, env)
		}
	}
	return result, log.last, nil
}
