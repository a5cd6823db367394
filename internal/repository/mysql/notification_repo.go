package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Clubs_Hub/internal/model"
)

type NotificationRepository struct {
	DB *gorm.DB
}

// FanOut 站内通知和 outbox 投递事件在同一事务中写入
func (r *NotificationRepository) FanOut(ctx context.Context, notes []model.Notification, outbox []model.Outbox) error {
	if len(notes) == 0 && len(outbox) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(notes) > 0 {
			if err := tx.CreateInBatches(&notes, 200).Error; err != nil {
				return err
			}
		}
		if len(outbox) > 0 {
			if err := tx.CreateInBatches(&outbox, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *NotificationRepository) List(ctx context.Context, userID uint64, unreadOnly bool, offset, limit int) ([]model.Notification, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Notification
	err := q.Order("id DESC").Offset(offset).Limit(normLimit(limit)).Find(&list).Error
	return list, total, err
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id uint64, at time.Time) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"is_read": true, "read_at": at.UTC()})
	return tx.RowsAffected > 0, tx.Error
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uint64, at time.Time) (int64, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": at.UTC()})
	return tx.RowsAffected, tx.Error
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, id uint64) (bool, error) {
	tx := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Notification{})
	return tx.RowsAffected > 0, tx.Error
}

// Preference 不存在时返回 nil, nil
func (r *NotificationRepository) Preference(ctx context.Context, userID uint64) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *NotificationRepository) Preferences(ctx context.Context, userIDs []uint64) (map[uint64]*model.NotificationPreference, error) {
	out := make(map[uint64]*model.NotificationPreference, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var list []model.NotificationPreference
	if err := r.DB.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		out[list[i].UserID] = &list[i]
	}
	return out, nil
}

// EnsurePreference 首次访问时创建默认偏好并生成退订 token
func (r *NotificationRepository) EnsurePreference(ctx context.Context, userID uint64) (*model.NotificationPreference, error) {
	p := &model.NotificationPreference{UserID: userID, UnsubscribeToken: uuid.NewString()}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(p).Error
	if err != nil {
		return nil, err
	}
	return r.Preference(ctx, userID)
}

func (r *NotificationRepository) SavePreference(ctx context.Context, p *model.NotificationPreference) error {
	return r.DB.WithContext(ctx).Model(&model.NotificationPreference{}).
		Where("user_id = ?", p.UserID).
		Updates(map[string]any{
			"email_opt_out":        p.EmailOptOut,
			"push_opt_out":         p.PushOptOut,
			"email_disabled_types": p.EmailDisabledTypes,
		}).Error
}

func (r *NotificationRepository) PreferenceByToken(ctx context.Context, token string) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	err := r.DB.WithContext(ctx).Where("unsubscribe_token = ?", token).First(&p).Error
	return &p, err
}
