package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/relay/repository/model"
)

type PostgresSessionRepository struct {
	db *gorm.DB
}

func NewPostgresSessionRepository(db *gorm.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, sess *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess == nil {
		return errors.New("session is nil")
	}

	return r.db.WithContext(ctx).Create(toModelSession(sess)).Error
}

func (r *PostgresSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sess model.Session
	err := r.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return toDomainSession(&sess), nil
}

func (r *PostgresSessionRepository) MarkInactive(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.Session{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewPostgresRoomRepository(db *gorm.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelRoom(room)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRoomCodeExists
		}
		return err
	}
	return nil
}

func (r *PostgresRoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).First(&room, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoom(&room), nil
}

type PostgresEventRepository struct {
	db *gorm.DB
}

func NewPostgresEventRepository(db *gorm.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

func (r *PostgresEventRepository) Append(ctx context.Context, code string, env domain.Envelope) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return 0, err
	}

	row := model.Event{
		RoomCode:  code,
		Nonce:     env.ID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (r *PostgresEventRepository) ListSince(ctx context.Context, code string, since int64) ([]domain.Envelope, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var rows []model.Event
	err := r.db.WithContext(ctx).
		Where("room_code = ? AND id > ?", code, since).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	last := since
	result := make([]domain.Envelope, 0, len(rows))
	for i := range rows {
		var env domain.Envelope
		if err := json.Unmarshal(rows[i].Payload, &env); err != nil {
			// A corrupt row must not wedge the cursor for everything after it.
			last = rows[i].ID
			continue
		}
		env.Seq = rows[i].ID
		result = append(result, env)
		last = rows[i].ID
	}
	return result, last, nil
}

func toModelSession(sess *domain.Session) *model.Session {
	return &model.Session{
		ID:         sess.ID,
		ProviderID: sess.ProviderID,
		EmbedURL:   sess.EmbedURL,
		Active:     sess.Active,
		CreatedAt:  sess.CreatedAt.UTC(),
	}
}

func toDomainSession(sess *model.Session) *domain.Session {
	return &domain.Session{
		ID:         sess.ID,
		ProviderID: sess.ProviderID,
		EmbedURL:   sess.EmbedURL,
		Active:     sess.Active,
		CreatedAt:  sess.CreatedAt.UTC(),
	}
}

func toModelRoom(room *domain.Room) *model.Room {
	return &model.Room{
		Code:      room.Code,
		SessionID: room.SessionID,
		Label:     room.Label,
		CreatedAt: room.CreatedAt.UTC(),
	}
}

func toDomainRoom(room *model.Room) *domain.Room {
	return &domain.Room{
		Code:      room.Code,
		SessionID: room.SessionID,
		Label:     room.Label,
		CreatedAt: room.CreatedAt.UTC(),
	}
}
