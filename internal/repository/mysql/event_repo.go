package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Clubs_Hub/internal/model"
)

type EventRepository struct {
	DB *gorm.DB
}

type EventFilter struct {
	ClubIDs    []uint64
	Statuses   []model.EventStatus
	PublicOnly bool
	From       *time.Time
	To         *time.Time
}

func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	return r.DB.WithContext(ctx).Create(e).Error
}

func (r *EventRepository) FindByID(ctx context.Context, id uint64) (*model.Event, error) {
	var e model.Event
	err := r.DB.WithContext(ctx).First(&e, id).Error
	return &e, err
}

func (r *EventRepository) List(ctx context.Context, f EventFilter, offset, limit int) ([]model.Event, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.Event{})
	if len(f.ClubIDs) > 0 {
		q = q.Where("club_id IN ?", f.ClubIDs)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.PublicOnly {
		q = q.Where("is_public = ?", true)
	}
	if f.From != nil {
		q = q.Where("starts_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("starts_at < ?", f.To.UTC())
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Event
	err := q.Order("starts_at ASC, id ASC").Offset(offset).Limit(normLimit(limit)).Find(&list).Error
	return list, total, err
}

// UpdateDraft 只允许修改仍可编辑的活动
func (r *EventRepository) UpdateDraft(ctx context.Context, id uint64, fields map[string]any) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Event{}).
		Where("id = ? AND status IN ?", id, []model.EventStatus{model.EventDraft, model.EventRejected}).
		Updates(fields)
	return tx.RowsAffected > 0, tx.Error
}

// Transition 条件更新：只有当前状态仍为 from 才会写入，用于并发下的状态机推进
func (r *EventRepository) Transition(ctx context.Context, id uint64, from, to model.EventStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	tx := r.DB.WithContext(ctx).Model(&model.Event{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

func (r *EventRepository) UpdateChecklist(ctx context.Context, id uint64, c model.CompletionChecklist) error {
	return r.DB.WithContext(ctx).Model(&model.Event{}).Where("id = ?", id).Update("checklist", c).Error
}

func (r *EventRepository) Delete(ctx context.Context, id uint64) (bool, error) {
	tx := r.DB.WithContext(ctx).
		Where("id = ? AND status = ?", id, model.EventDraft).
		Delete(&model.Event{})
	return tx.RowsAffected > 0, tx.Error
}

// DueToStart 已发布且开始时间已到的活动
func (r *EventRepository) DueToStart(ctx context.Context, now time.Time, limit int) ([]model.Event, error) {
	var list []model.Event
	err := r.DB.WithContext(ctx).
		Where("status = ? AND starts_at <= ?", model.EventPublished, now.UTC()).
		Order("starts_at ASC, id ASC").Limit(limit).
		Find(&list).Error
	return list, err
}

// DueForCompletionCheck 已结束超过宽限期仍在进行中的活动
func (r *EventRepository) DueForCompletionCheck(ctx context.Context, endedBefore time.Time, limit int) ([]model.Event, error) {
	var list []model.Event
	err := r.DB.WithContext(ctx).
		Where("status = ? AND ends_at <= ?", model.EventOngoing, endedBefore.UTC()).
		Order("ends_at ASC, id ASC").Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *EventRepository) CountByStatus(ctx context.Context, clubIDs []uint64) ([]StatusCount, error) {
	q := r.DB.WithContext(ctx).Model(&model.Event{}).Select("status, COUNT(*) AS count")
	if clubIDs != nil {
		if len(clubIDs) == 0 {
			return nil, nil
		}
		q = q.Where("club_id IN ?", clubIDs)
	}
	var rows []StatusCount
	err := q.Group("status").Scan(&rows).Error
	return rows, err
}

func (r *EventRepository) SumBudget(ctx context.Context, clubIDs []uint64, statuses []model.EventStatus) (float64, error) {
	q := r.DB.WithContext(ctx).Model(&model.Event{}).Where("status IN ?", statuses)
	if clubIDs != nil {
		if len(clubIDs) == 0 {
			return 0, nil
		}
		q = q.Where("club_id IN ?", clubIDs)
	}
	var sum float64
	err := q.Select("COALESCE(SUM(budget), 0)").Scan(&sum).Error
	return sum, err
}

// RSVP 幂等报名
func (r *EventRepository) RSVP(ctx context.Context, eventID, userID uint64) error {
	rsvp := &model.EventRSVP{EventID: eventID, UserID: userID}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(rsvp).Error
}

func (r *EventRepository) CancelRSVP(ctx context.Context, eventID, userID uint64) (bool, error) {
	tx := r.DB.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Delete(&model.EventRSVP{})
	return tx.RowsAffected > 0, tx.Error
}

func (r *EventRepository) HasRSVP(ctx context.Context, eventID, userID uint64) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.EventRSVP{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *EventRepository) ListRSVPs(ctx context.Context, eventID uint64) ([]model.EventRSVP, error) {
	var list []model.EventRSVP
	err := r.DB.WithContext(ctx).Preload("User").
		Where("event_id = ?", eventID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *EventRepository) RSVPUserIDs(ctx context.Context, eventID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.DB.WithContext(ctx).Model(&model.EventRSVP{}).
		Where("event_id = ?", eventID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// MarkAttendance 未报名的用户会补一条报名记录
func (r *EventRepository) MarkAttendance(ctx context.Context, eventID uint64, userIDs []uint64, attended bool) error {
	if len(userIDs) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows := make([]model.EventRSVP, 0, len(userIDs))
		for _, uid := range userIDs {
			rows = append(rows, model.EventRSVP{EventID: eventID, UserID: uid})
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&rows).Error; err != nil {
			return err
		}
		return tx.Model(&model.EventRSVP{}).
			Where("event_id = ? AND user_id IN ?", eventID, userIDs).
			Update("attended", attended).Error
	})
}

type EventCounts struct {
	RSVPs    int64 `gorm:"column:rsvps"`
	Attended int64 `gorm:"column:attended"`
}

func (r *EventRepository) Counts(ctx context.Context, eventID uint64) (EventCounts, error) {
	var c EventCounts
	err := r.DB.WithContext(ctx).Model(&model.EventRSVP{}).
		Select("COUNT(*) AS rsvps, COALESCE(SUM(CASE WHEN attended THEN 1 ELSE 0 END), 0) AS attended").
		Where("event_id = ?", eventID).
		Scan(&c).Error
	return c, err
}

// AttendedCountByUser 学生参加过的活动数
func (r *EventRepository) AttendedCountByUser(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.EventRSVP{}).
		Where("user_id = ? AND attended = ?", userID, true).
		Count(&n).Error
	return n, err
}

// UpcomingForUser 用户报名且尚未开始的活动
func (r *EventRepository) UpcomingForUser(ctx context.Context, userID uint64, now time.Time, limit int) ([]model.Event, error) {
	var list []model.Event
	err := r.DB.WithContext(ctx).
		Joins("JOIN event_rsvps ON event_rsvps.event_id = events.id").
		Where("event_rsvps.user_id = ? AND events.status = ? AND events.starts_at > ?", userID, model.EventPublished, now.UTC()).
		Order("events.starts_at ASC, events.id ASC").Limit(normLimit(limit)).
		Find(&list).Error
	return list, err
}
