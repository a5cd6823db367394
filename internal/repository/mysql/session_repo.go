package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"Clubs_Hub/internal/model"
)

type SessionRepository struct {
	DB *gorm.DB
}

func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&s).Error
	return &s, err
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at, expiresAt time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{"last_seen_at": at, "expires_at": expiresAt}).Error
}

// Revoke 幂等：已吊销的会话不再更新
func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	return tx.RowsAffected > 0, tx.Error
}

// RevokeAllForUser 吊销用户所有会话，except 为空时不保留任何会话，返回被吊销的 id
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID uint64, except string, at time.Time) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&model.Session{}).Where("user_id = ? AND revoked_at IS NULL", userID)
		if except != "" {
			q = q.Where("id <> ?", except)
		}
		if err := q.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&model.Session{}).Where("id IN ?", ids).Update("revoked_at", at).Error
	})
	return ids, err
}

func (r *SessionRepository) ListLive(ctx context.Context, userID uint64, now time.Time) ([]model.Session, error) {
	var list []model.Session
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Order("last_seen_at DESC").
		Find(&list).Error
	return list, err
}
