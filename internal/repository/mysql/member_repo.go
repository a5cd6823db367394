package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Clubs_Hub/internal/model"
)

var ErrClubLimit = errors.New("club membership limit reached")

type ClubMemberRepository struct {
	DB *gorm.DB
}

// Join 加入社团；已是成员时幂等成功，曾被移除则恢复。maxClubs<=0 表示不限制
func (r *ClubMemberRepository) Join(ctx context.Context, member *model.ClubMember, maxClubs int) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.joinTx(tx, member, maxClubs)
	})
}

func (r *ClubMemberRepository) joinTx(tx *gorm.DB, member *model.ClubMember, maxClubs int) error {
	// select for update 锁住用户行，同一学生的加入请求串行计数
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&model.User{}, member.UserID).Error; err != nil {
		return err
	}
	var existing model.ClubMember
	err := tx.Where("club_id = ? AND user_id = ?", member.ClubID, member.UserID).First(&existing).Error
	if err == nil && existing.Status == model.MemberApproved {
		*member = existing
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if maxClubs > 0 {
		var n int64
		if err := tx.Model(&model.ClubMember{}).
			Where("user_id = ? AND status = ?", member.UserID, model.MemberApproved).
			Count(&n).Error; err != nil {
			return err
		}
		if n >= int64(maxClubs) {
			return ErrClubLimit
		}
	}

	now := time.Now().UTC()
	member.Status = model.MemberApproved
	member.JoinedAt = now
	if member.Role == "" {
		member.Role = model.ClubRoleMember
	}
	if existing.ID != 0 {
		member.ID = existing.ID
		return tx.Model(&model.ClubMember{}).Where("id = ?", existing.ID).
			Updates(map[string]any{"status": member.Status, "role": member.Role, "joined_at": now}).Error
	}
	// 唯一键 (club_id, user_id) 幂等插入
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "club_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(member).Error
}

// Remove 软删除成员关系
func (r *ClubMemberRepository) Remove(ctx context.Context, clubID, userID uint64) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.ClubMember{}).
		Where("club_id = ? AND user_id = ? AND status = ?", clubID, userID, model.MemberApproved).
		Update("status", model.MemberRemoved)
	return tx.RowsAffected > 0, tx.Error
}

func (r *ClubMemberRepository) Find(ctx context.Context, clubID, userID uint64) (*model.ClubMember, error) {
	var m model.ClubMember
	err := r.DB.WithContext(ctx).
		Where("club_id = ? AND user_id = ? AND status = ?", clubID, userID, model.MemberApproved).
		First(&m).Error
	return &m, err
}

func (r *ClubMemberRepository) IsMember(ctx context.Context, clubID, userID uint64) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ClubMember{}).
		Where("club_id = ? AND user_id = ? AND status = ?", clubID, userID, model.MemberApproved).
		Count(&count).Error
	return count > 0, err
}

func (r *ClubMemberRepository) CountClubsOfUser(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.ClubMember{}).
		Where("user_id = ? AND status = ?", userID, model.MemberApproved).
		Count(&n).Error
	return n, err
}

func (r *ClubMemberRepository) UpdateRole(ctx context.Context, clubID, userID uint64, role model.ClubRole) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.ClubMember{}).
		Where("club_id = ? AND user_id = ? AND status = ?", clubID, userID, model.MemberApproved).
		Update("role", role)
	return tx.RowsAffected > 0, tx.Error
}

func (r *ClubMemberRepository) List(ctx context.Context, clubID uint64, role model.ClubRole) ([]model.ClubMember, error) {
	q := r.DB.WithContext(ctx).Preload("User").
		Where("club_id = ? AND status = ?", clubID, model.MemberApproved)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var list []model.ClubMember
	err := q.Order("joined_at ASC").Find(&list).Error
	return list, err
}

func (r *ClubMemberRepository) ListByUser(ctx context.Context, userID uint64) ([]model.ClubMember, error) {
	var list []model.ClubMember
	err := r.DB.WithContext(ctx).Preload("Club").
		Where("user_id = ? AND status = ?", userID, model.MemberApproved).
		Find(&list).Error
	return list, err
}

// UserIDs 社团成员 id，roles 为空时返回全部
func (r *ClubMemberRepository) UserIDs(ctx context.Context, clubID uint64, roles ...model.ClubRole) ([]uint64, error) {
	q := r.DB.WithContext(ctx).Model(&model.ClubMember{}).
		Where("club_id = ? AND status = ?", clubID, model.MemberApproved)
	if len(roles) > 0 {
		q = q.Where("role IN ?", roles)
	}
	var ids []uint64
	err := q.Pluck("user_id", &ids).Error
	return ids, err
}

func (r *ClubMemberRepository) CountRole(ctx context.Context, clubID uint64, role model.ClubRole) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.ClubMember{}).
		Where("club_id = ? AND role = ? AND status = ?", clubID, role, model.MemberApproved).
		Count(&n).Error
	return n, err
}

type RoleCountRow struct {
	Role  string
	Count int64
}

func (r *ClubMemberRepository) CountByRole(ctx context.Context, clubID uint64) ([]RoleCountRow, error) {
	var rows []RoleCountRow
	err := r.DB.WithContext(ctx).Model(&model.ClubMember{}).
		Select("role, COUNT(*) AS count").
		Where("club_id = ? AND status = ?", clubID, model.MemberApproved).
		Group("role").
		Scan(&rows).Error
	return rows, err
}
