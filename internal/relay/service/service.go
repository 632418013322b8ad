// Package service holds the relay's business logic: session provisioning
// against the upstream provider, room-code registration, and the per-room
// event log the pull transport polls.
package service

import (
	"context"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/session"
)

type RoomInteractor interface {
	CreateRoom(ctx context.Context, sessionID, label string) (*domain.Room, error)
	// Resolve maps a room code to its session handle, failing with
	// ErrSessionExpired when the session behind the code has been
	// terminated.
	Resolve(ctx context.Context, code string) (*domain.Session, error)
	// Append stores one envelope on the room's log and returns it with its
	// assigned cursor.
	Append(ctx context.Context, code string, env domain.Envelope) (domain.Envelope, error)
	EventsSince(ctx context.Context, code string, since int64) ([]domain.Envelope, int64, error)
}

type SessionInteractor interface {
	Create(ctx context.Context, opts session.CreateOptions) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	// Terminate destroys the upstream session and marks the local record
	// inactive. The local mark happens even when the upstream call fails.
	Terminate(ctx context.Context, id string) error
}
