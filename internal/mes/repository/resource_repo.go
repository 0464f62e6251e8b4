package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// ResourceRepository 资源台账仓库
type ResourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create 新增台账
func (r *ResourceRepository) Create(ctx context.Context, e *entity.ResourceEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// Save 保存台账
func (r *ResourceRepository) Save(ctx context.Context, e *entity.ResourceEntry) error {
	return r.db.WithContext(ctx).Save(e).Error
}

// FindByID 查找台账
func (r *ResourceRepository) FindByID(ctx context.Context, id string) (*entity.ResourceEntry, error) {
	var e entity.ResourceEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// FindByMO MO的台账，activeOnly 时只返回有效记录
func (r *ResourceRepository) FindByMO(ctx context.Context, moID string, activeOnly bool) ([]entity.ResourceEntry, error) {
	var items []entity.ResourceEntry
	query := r.db.WithContext(ctx).Where("mo_id = ?", moID)
	if activeOnly {
		query = query.Where("status = ?", entity.ResourceStatusActive)
	}
	err := query.Order("created_at ASC").Find(&items).Error
	return items, err
}

// ReleaseByIDs 释放指定的有效台账，返回实际释放条数
func (r *ResourceRepository) ReleaseByIDs(ctx context.Context, ids []string, releasedBy string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&entity.ResourceEntry{}).
		Where("id IN ? AND status = ?", ids, entity.ResourceStatusActive).
		Updates(map[string]interface{}{
			"status":      entity.ResourceStatusReleased,
			"released_by": releasedBy,
			"released_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}

// SumActive 某物料/产品在所有MO上的有效占用量
func (r *ResourceRepository) SumActive(ctx context.Context, reference string, kinds []string) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&entity.ResourceEntry{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("reference = ? AND status = ? AND kind IN ?", reference, entity.ResourceStatusActive, kinds).
		Scan(&total).Error
	return total, err
}
