package mysql

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"Clubs_Hub/internal/model"
)

type ClubRepository struct {
	DB *gorm.DB
}

type ClubFilter struct {
	Category      model.ClubCategory
	Status        model.ClubStatus
	CoordinatorID uint64
	Search        string
}

// Create 建社团；president 非空时在同一事务中加入社长，受社团数量上限约束
func (r *ClubRepository) Create(ctx context.Context, c *model.Club, president *model.ClubMember, maxClubs int) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if president == nil {
			return nil
		}
		president.ClubID = c.ID
		mRepo := &ClubMemberRepository{DB: tx}
		return mRepo.joinTx(tx, president, maxClubs)
	})
}

func (r *ClubRepository) FindByID(ctx context.Context, id uint64) (*model.Club, error) {
	var club model.Club
	err := r.DB.WithContext(ctx).First(&club, id).Error
	return &club, err
}

// NameTaken 除 excludeID 外是否已有同名社团
func (r *ClubRepository) NameTaken(ctx context.Context, name string, excludeID uint64) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Club{}).
		Where("name = ? AND id <> ?", name, excludeID).
		Count(&n).Error
	return n > 0, err
}

func (r *ClubRepository) List(ctx context.Context, f ClubFilter, offset, limit int) ([]model.Club, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.Club{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CoordinatorID != 0 {
		q = q.Where("coordinator_id = ?", f.CoordinatorID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("name LIKE ?", "%"+s+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Club
	err := q.Order("name ASC, id ASC").Offset(offset).Limit(normLimit(limit)).Find(&list).Error
	return list, total, err
}

func (r *ClubRepository) Update(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.Club{}).Where("id = ?", id).Updates(fields).Error
}

func (r *ClubRepository) SetPending(ctx context.Context, id uint64, p *model.PendingSettings) error {
	return r.DB.WithContext(ctx).Model(&model.Club{}).Where("id = ?", id).Update("pending_settings", p).Error
}

// ApplyPending 审批通过：写入字段并清空待审批，只在仍有待审批时生效
func (r *ClubRepository) ApplyPending(ctx context.Context, id uint64, fields map[string]any) (bool, error) {
	updates := map[string]any{"pending_settings": gorm.Expr("NULL")}
	for k, v := range fields {
		updates[k] = v
	}
	tx := r.DB.WithContext(ctx).Model(&model.Club{}).
		Where("id = ? AND pending_settings IS NOT NULL", id).
		Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

func (r *ClubRepository) ClearPending(ctx context.Context, id uint64) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Club{}).
		Where("id = ? AND pending_settings IS NOT NULL", id).
		Update("pending_settings", gorm.Expr("NULL"))
	return tx.RowsAffected > 0, tx.Error
}

func (r *ClubRepository) UpdateStatus(ctx context.Context, id uint64, from, to model.ClubStatus) (bool, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Club{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return tx.RowsAffected > 0, tx.Error
}

// WithPending 协调员待审批的社团设置
func (r *ClubRepository) WithPending(ctx context.Context, coordinatorID uint64) ([]model.Club, error) {
	q := r.DB.WithContext(ctx).Where("pending_settings IS NOT NULL")
	if coordinatorID != 0 {
		q = q.Where("coordinator_id = ?", coordinatorID)
	}
	var list []model.Club
	err := q.Order("updated_at ASC").Find(&list).Error
	return list, err
}

func (r *ClubRepository) IDsByCoordinator(ctx context.Context, coordinatorID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.DB.WithContext(ctx).Model(&model.Club{}).
		Where("coordinator_id = ?", coordinatorID).
		Pluck("id", &ids).Error
	return ids, err
}

type StatusCount struct {
	Status string
	Count  int64
}

func (r *ClubRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.DB.WithContext(ctx).Model(&model.Club{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	return rows, err
}

func (r *ClubRepository) AddGalleryItem(ctx context.Context, item *model.GalleryItem) error {
	return r.DB.WithContext(ctx).Create(item).Error
}

func (r *ClubRepository) ListGallery(ctx context.Context, clubID uint64, offset, limit int) ([]model.GalleryItem, error) {
	var list []model.GalleryItem
	err := r.DB.WithContext(ctx).Where("club_id = ?", clubID).
		Order("id DESC").Offset(offset).Limit(normLimit(limit)).
		Find(&list).Error
	return list, err
}

func (r *ClubRepository) DeleteGalleryItem(ctx context.Context, clubID, itemID uint64) (bool, error) {
	tx := r.DB.WithContext(ctx).Where("id = ? AND club_id = ?", itemID, clubID).Delete(&model.GalleryItem{})
	return tx.RowsAffected > 0, tx.Error
}
