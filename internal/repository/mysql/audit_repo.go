package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"Clubs_Hub/internal/model"
)

type AuditRepository struct {
	DB *gorm.DB
}

type AuditFilter struct {
	ActorID    uint64
	Action     string
	TargetType string
	Severity   model.Severity
	Status     string
	From       *time.Time
	To         *time.Time
}

func (r *AuditRepository) Create(ctx context.Context, l *model.AuditLog) error {
	return r.DB.WithContext(ctx).Create(l).Error
}

func (r *AuditRepository) List(ctx context.Context, f AuditFilter, offset, limit int) ([]model.AuditLog, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.AuditLog{})
	if f.ActorID != 0 {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.TargetType != "" {
		q = q.Where("target_type = ?", f.TargetType)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at < ?", f.To.UTC())
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.AuditLog
	err := q.Order("id DESC").Offset(offset).Limit(normLimit(limit)).Find(&list).Error
	return list, total, err
}

func (r *AuditRepository) CountSince(ctx context.Context, since time.Time, severity model.Severity) (int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.AuditLog{}).Where("created_at >= ?", since.UTC())
	if severity != "" {
		q = q.Where("severity = ?", severity)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
