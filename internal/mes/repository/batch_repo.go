package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// BatchRepository 批次与批次工序台账仓库
type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func preloadLedger(db *gorm.DB) *gorm.DB {
	return db.Order("sequence_order ASC")
}

// CreateAll 批量创建批次及其台账
func (r *BatchRepository) CreateAll(ctx context.Context, batches []entity.Batch) error {
	if len(batches) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&batches).Error
}

// CreateEntries 为已有批次补建台账
func (r *BatchRepository) CreateEntries(ctx context.Context, entries []entity.BatchProcessEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// FindByMO 按批次序号返回MO的全部批次（含台账）
func (r *BatchRepository) FindByMO(ctx context.Context, moID string) ([]entity.Batch, error) {
	var items []entity.Batch
	err := r.db.WithContext(ctx).
		Preload("Ledger", preloadLedger).
		Where("mo_id = ?", moID).
		Order("sequence ASC").
		Find(&items).Error
	return items, err
}

// FindByID 按ID或批次编号查找
func (r *BatchRepository) FindByID(ctx context.Context, ref string) (*entity.Batch, error) {
	var b entity.Batch
	err := r.db.WithContext(ctx).
		Preload("Ledger", preloadLedger).
		Where("id = ? OR batch_code = ?", ref, ref).
		First(&b).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// MaxSequence MO当前最大批次序号
func (r *BatchRepository) MaxSequence(ctx context.Context, moID string) (int, error) {
	var seq int
	err := r.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("mo_id = ?", moID).
		Scan(&seq).Error
	return seq, err
}

// Save 保存批次字段，不级联台账
func (r *BatchRepository) Save(ctx context.Context, b *entity.Batch) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(b).Error
}

// SaveEntry 保存台账
func (r *BatchRepository) SaveEntry(ctx context.Context, e *entity.BatchProcessEntry) error {
	return r.db.WithContext(ctx).Save(e).Error
}

// SetBlocked 停产冻结或恢复解冻批次
func (r *BatchRepository) SetBlocked(ctx context.Context, ids []string, blocked bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Where("id IN ?", ids).
		Update("blocked", blocked)
	return res.RowsAffected, res.Error
}

// UnblockByMO 解冻MO的全部批次
func (r *BatchRepository) UnblockByMO(ctx context.Context, moID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Where("mo_id = ? AND blocked = ?", moID, true).
		Update("blocked", false)
	return res.RowsAffected, res.Error
}
