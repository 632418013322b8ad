// Package repository persists the relay's three aggregates: sessions, room
// codes, and each room's append-only event log. Two implementations exist,
// gorm/postgres for deployment and in-memory for tests and single-node use.
package repository

import (
	"context"
	"errors"

	"github.com/feliven/coffeetable/internal/domain"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomCodeExists  = errors.New("room code already exists")
	ErrSessionNotFound = errors.New("session not found")
)

type SessionRepository interface {
	Create(ctx context.Context, sess *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// MarkInactive flips the active flag; terminating twice is not an error.
	MarkInactive(ctx context.Context, id string) error
}

type RoomRepository interface {
	// Create fails with ErrRoomCodeExists on a code collision so the caller
	// can mint a new code and retry.
	Create(ctx context.Context, room *domain.Room) error
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
}

type EventRepository interface {
	// Append stores one envelope on the room's log and returns its assigned
	// cursor. Cursors are strictly increasing per room.
	Append(ctx context.Context, code string, env domain.Envelope) (int64, error)
	// ListSince returns envelopes with cursor greater than since in cursor
	// order, plus the room's current high-water mark.
	ListSince(ctx context.Context, code string, since int64) ([]domain.Envelope, int64, error)
}
