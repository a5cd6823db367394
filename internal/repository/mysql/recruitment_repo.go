package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"Clubs_Hub/internal/model"
)

type RecruitmentRepository struct {
	DB *gorm.DB
}

var reviewable = []model.ApplicationStatus{model.ApplicationSubmitted, model.ApplicationShortlisted}

func (r *RecruitmentRepository) Create(ctx context.Context, rec *model.Recruitment) error {
	return r.DB.WithContext(ctx).Create(rec).Error
}

func (r *RecruitmentRepository) FindByID(ctx context.Context, id uint64) (*model.Recruitment, error) {
	var rec model.Recruitment
	err := r.DB.WithContext(ctx).First(&rec, id).Error
	return &rec, err
}

func (r *RecruitmentRepository) List(ctx context.Context, clubID uint64, statuses []model.RecruitmentStatus) ([]model.Recruitment, error) {
	q := r.DB.WithContext(ctx)
	if clubID != 0 {
		q = q.Where("club_id = ?", clubID)
	}
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var list []model.Recruitment
	err := q.Order("starts_at DESC").Find(&list).Error
	return list, err
}

// Update 只改草稿，或尚未到开始时间的已排期招新
func (r *RecruitmentRepository) Update(ctx context.Context, id uint64, fields map[string]any, now time.Time) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Recruitment{}).
		Where("id = ?", id).
		Where("status = ? OR (status = ? AND starts_at > ?)", model.RecruitmentDraft, model.RecruitmentScheduled, now.UTC()).
		Updates(fields)
	return tx.RowsAffected > 0, tx.Error
}

func (r *RecruitmentRepository) Transition(ctx context.Context, id uint64, from []model.RecruitmentStatus, to model.RecruitmentStatus) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Recruitment{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	return tx.RowsAffected > 0, tx.Error
}

// DueToOpen 开始时间已到仍为 scheduled 的招新
func (r *RecruitmentRepository) DueToOpen(ctx context.Context, now time.Time) ([]model.Recruitment, error) {
	var list []model.Recruitment
	err := r.DB.WithContext(ctx).
		Where("status = ? AND starts_at <= ? AND ends_at > ?", model.RecruitmentScheduled, now.UTC(), now.UTC()).
		Find(&list).Error
	return list, err
}

// DueToClose 截止时间已过仍未关闭的招新
func (r *RecruitmentRepository) DueToClose(ctx context.Context, now time.Time) ([]model.Recruitment, error) {
	var list []model.Recruitment
	err := r.DB.WithContext(ctx).
		Where("status IN ? AND ends_at <= ?",
			[]model.RecruitmentStatus{model.RecruitmentScheduled, model.RecruitmentOpen}, now.UTC()).
		Find(&list).Error
	return list, err
}

func (r *RecruitmentRepository) CreateApplication(ctx context.Context, app *model.Application) error {
	return r.DB.WithContext(ctx).Create(app).Error
}

func (r *RecruitmentRepository) CountApplications(ctx context.Context, recruitmentID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Application{}).
		Where("recruitment_id = ?", recruitmentID).
		Count(&n).Error
	return n, err
}

func (r *RecruitmentRepository) FindApplication(ctx context.Context, id uint64) (*model.Application, error) {
	var app model.Application
	err := r.DB.WithContext(ctx).Preload("User").First(&app, id).Error
	return &app, err
}

func (r *RecruitmentRepository) ListApplications(ctx context.Context, recruitmentID uint64, status model.ApplicationStatus) ([]model.Application, error) {
	q := r.DB.WithContext(ctx).Preload("User").Where("recruitment_id = ?", recruitmentID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []model.Application
	err := q.Order("id ASC").Find(&list).Error
	return list, err
}

func (r *RecruitmentRepository) ListApplicationsByUser(ctx context.Context, userID uint64) ([]model.Application, error) {
	var list []model.Application
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&list).Error
	return list, err
}

// Review 条件更新申请状态，只作用于尚未定论的申请
func (r *RecruitmentRepository) Review(ctx context.Context, appID uint64, to model.ApplicationStatus, reviewer uint64, note string, at time.Time) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Application{}).
		Where("id = ? AND status IN ?", appID, reviewable).
		Updates(reviewUpdates(to, reviewer, note, at))
	return tx.RowsAffected > 0, tx.Error
}

// Select 录取申请并在同一事务中加入社团
func (r *RecruitmentRepository) Select(ctx context.Context, app *model.Application, reviewer uint64, note string, at time.Time, maxClubs int) (bool, error) {
	applied := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Application{}).
			Where("id = ? AND status IN ?", app.ID, reviewable).
			Updates(reviewUpdates(model.ApplicationSelected, reviewer, note, at))
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		applied = true
		members := &ClubMemberRepository{DB: tx}
		return members.joinTx(tx, &model.ClubMember{ClubID: app.ClubID, UserID: app.UserID}, maxClubs)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// RejectUndecided 招新结束时把未定论的申请统一拒绝，返回被拒绝的申请
func (r *RecruitmentRepository) RejectUndecided(ctx context.Context, recruitmentID uint64, at time.Time) ([]model.Application, error) {
	var list []model.Application
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recruitment_id = ? AND status IN ?", recruitmentID, reviewable).
			Find(&list).Error; err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		return tx.Model(&model.Application{}).
			Where("recruitment_id = ? AND status IN ?", recruitmentID, reviewable).
			Updates(map[string]any{"status": model.ApplicationRejected, "reviewed_at": at.UTC()}).Error
	})
	return list, err
}

func (r *RecruitmentRepository) CountApplicationsByStatus(ctx context.Context, recruitmentID uint64) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.DB.WithContext(ctx).Model(&model.Application{}).
		Select("status, COUNT(*) AS count").
		Where("recruitment_id = ?", recruitmentID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}

func reviewUpdates(to model.ApplicationStatus, reviewer uint64, note string, at time.Time) map[string]any {
	return map[string]any{
		"status":      to,
		"reviewed_by": reviewer,
		"reviewed_at": at.UTC(),
		"note":        note,
	}
}
