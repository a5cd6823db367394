package mysql

import (
	"context"

	"gorm.io/gorm"

	"Clubs_Hub/internal/model"
)

type OutboxRepository struct {
	DB *gorm.DB
}

// ListPending 取待投递事件，按 id 顺序
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]model.Outbox, error) {
	var list []model.Outbox
	err := r.DB.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", id).
		Update("status", model.OutboxSent).Error
}

// MarkRetry 重试次数 +1，超过 maxRetry 置为失败
func (r *OutboxRepository) MarkRetry(ctx context.Context, row model.Outbox, maxRetry int) error {
	next := row.Retry + 1
	status := model.OutboxPending
	if next >= maxRetry {
		status = model.OutboxFailed
	}
	return r.DB.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{"retry": next, "status": status}).Error
}

// Requeue 投递失败的消息写回 outbox，由 relayer 重新投递
func (r *OutboxRepository) Requeue(ctx context.Context, row *model.Outbox) error {
	return r.DB.WithContext(ctx).Create(row).Error
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, status int8) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Outbox{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
