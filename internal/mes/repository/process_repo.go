package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// ProcessRepository 工序执行仓库
type ProcessRepository struct {
	db *gorm.DB
}

func NewProcessRepository(db *gorm.DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

// CreateAll 批量创建工序执行及其子步骤
func (r *ProcessRepository) CreateAll(ctx context.Context, processes []entity.ProcessExecution) error {
	if len(processes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&processes).Error
}

// FindByMO 按 sequence_order 返回MO的全部工序
func (r *ProcessRepository) FindByMO(ctx context.Context, moID string) ([]entity.ProcessExecution, error) {
	var items []entity.ProcessExecution
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Where("mo_id = ?", moID).
		Order("sequence_order ASC").
		Find(&items).Error
	return items, err
}

// FindByID 查找工序执行（含子步骤）
func (r *ProcessRepository) FindByID(ctx context.Context, id string) (*entity.ProcessExecution, error) {
	var pe entity.ProcessExecution
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Where("id = ?", id).
		First(&pe).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &pe, nil
}

// CountByMO MO已实例化的工序数
func (r *ProcessRepository) CountByMO(ctx context.Context, moID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.ProcessExecution{}).Where("mo_id = ?", moID).Count(&n).Error
	return n, err
}

// Save 保存工序字段，不级联子步骤
func (r *ProcessRepository) Save(ctx context.Context, pe *entity.ProcessExecution) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(pe).Error
}

// SaveStep 保存子步骤
func (r *ProcessRepository) SaveStep(ctx context.Context, step *entity.ProcessStep) error {
	return r.db.WithContext(ctx).Save(step).Error
}
