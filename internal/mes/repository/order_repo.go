package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// OrderRepository 生产订单仓库
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 创建MO
func (r *OrderRepository) Create(ctx context.Context, mo *entity.ManufacturingOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(mo).Error
}

// Save 保存MO字段，不级联工序与批次
func (r *OrderRepository) Save(ctx context.Context, mo *entity.ManufacturingOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(mo).Error
}

// FindByID 按ID或MO编号查找
func (r *OrderRepository) FindByID(ctx context.Context, ref string) (*entity.ManufacturingOrder, error) {
	var mo entity.ManufacturingOrder
	err := r.db.WithContext(ctx).
		Where("id = ? OR mo_code = ?", ref, ref).
		First(&mo).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &mo, nil
}

// LockByID 事务内加行锁读取MO（PostgreSQL 下为 SELECT ... FOR UPDATE）
func (r *OrderRepository) LockByID(ctx context.Context, id string) (*entity.ManufacturingOrder, error) {
	var mo entity.ManufacturingOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&mo).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &mo, nil
}

// FindDetail 查询MO及其工序、批次台账
func (r *OrderRepository) FindDetail(ctx context.Context, ref string) (*entity.ManufacturingOrder, error) {
	var mo entity.ManufacturingOrder
	err := r.db.WithContext(ctx).
		Preload("Processes", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_order ASC")
		}).
		Preload("Processes.Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Batches", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Batches.Ledger", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_order ASC")
		}).
		Where("id = ? OR mo_code = ?", ref, ref).
		First(&mo).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &mo, nil
}

// FindAll 分页查询MO列表
func (r *OrderRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ManufacturingOrder, int64, error) {
	var items []entity.ManufacturingOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ManufacturingOrder{})

	if status := filters["status"]; status != "" {
		query = query.Where("status IN ?", strings.Split(status, ","))
	}
	if productCode := filters["product_code"]; productCode != "" {
		query = query.Where("product_code = ?", productCode)
	}
	if priority := filters["priority"]; priority != "" {
		query = query.Where("priority = ?", priority)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("mo_code LIKE ? OR product_name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByStatuses 优先级队列候选
func (r *OrderRepository) FindByStatuses(ctx context.Context, statuses []string) ([]entity.ManufacturingOrder, error) {
	var items []entity.ManufacturingOrder
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("priority_level DESC").
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// GenerateCode 生成MO编码 MO-{yyyymmdd}-{3位}
func (r *OrderRepository) GenerateCode(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	prefix := fmt.Sprintf("MO-%s-", day)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.ManufacturingOrder{}).
		Select("COALESCE(MAX(mo_code), '')").
		Where("mo_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "MO-"+day+"-%03d", &seq)
	}
	seq++
	return fmt.Sprintf("MO-%s-%03d", day, seq), nil
}
