package mysql

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"Clubs_Hub/internal/model"
)

type UserRepository struct {
	DB *gorm.DB
}

type UserFilter struct {
	Role   model.GlobalRole
	Status model.UserStatus
	Search string
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

// FindByUsername 用户名或邮箱都可以登录
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Where("username = ? OR email = ?", username, username).First(&user).Error
	return &user, err
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, id).Error
	return &user, err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var usr model.User
	err := r.DB.WithContext(ctx).Where("email = ?", email).First(&usr).Error
	return &usr, err
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []uint64) ([]model.User, error) {
	var list []model.User
	if len(ids) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error
	return list, err
}

func (r *UserRepository) Exists(ctx context.Context, username, email string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&n).Error
	return n > 0, err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID uint64, hash string) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("password", hash).Error
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID uint64, fields map[string]any) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(fields).Error
}

func (r *UserRepository) UpdateRole(ctx context.Context, userID uint64, role model.GlobalRole) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("global_role", role).Error
}

func (r *UserRepository) UpdateStatus(ctx context.Context, userID uint64, status model.UserStatus) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("status", status).Error
}

func (r *UserRepository) List(ctx context.Context, f UserFilter, offset, limit int) ([]model.User, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.User{})
	if f.Role != "" {
		q = q.Where("global_role = ?", f.Role)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + s + "%"
		q = q.Where("username LIKE ? OR email LIKE ? OR name LIKE ? OR roll_number LIKE ?", like, like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.User
	err := q.Order("id DESC").Offset(offset).Limit(normLimit(limit)).Find(&list).Error
	return list, total, err
}

// IDsByRole 给某一类全局角色的所有活跃用户发通知时使用
func (r *UserRepository) IDsByRole(ctx context.Context, role model.GlobalRole) ([]uint64, error) {
	var ids []uint64
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("global_role = ? AND status = ?", role, model.UserActive).
		Pluck("id", &ids).Error
	return ids, err
}

type RoleCount struct {
	Role  string
	Count int64
}

func (r *UserRepository) CountByRole(ctx context.Context) ([]RoleCount, error) {
	var rows []RoleCount
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Select("global_role AS role, COUNT(*) AS count").
		Group("global_role").
		Scan(&rows).Error
	return rows, err
}
