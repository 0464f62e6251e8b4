package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

var rmKinds = []string{entity.ResourceReservedRM, entity.ResourceLockedRM}

// ProductRepository 产品主数据、原料与成品库存仓库，同时提供BOM与散货库存查询
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindByCode 查询产品（含工序模板、子步骤、原料）
func (r *ProductRepository) FindByCode(ctx context.Context, code string) (*entity.Product, error) {
	var p entity.Product
	err := r.db.WithContext(ctx).
		Preload("Processes", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Processes.Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Materials", func(db *gorm.DB) *gorm.DB {
			return db.Order("material_code ASC")
		}).
		Where("code = ?", code).
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// FindAll 产品列表
func (r *ProductRepository) FindAll(ctx context.Context) ([]entity.Product, error) {
	var items []entity.Product
	err := r.db.WithContext(ctx).Order("code ASC").Find(&items).Error
	return items, err
}

// Replace 整体替换产品及其工序模板与原料（目录导入使用）
func (r *ProductRepository) Replace(ctx context.Context, p *entity.Product) error {
	db := r.db.WithContext(ctx)

	var processIDs []string
	if err := db.Model(&entity.ProductProcess{}).Where("product_code = ?", p.Code).Pluck("id", &processIDs).Error; err != nil {
		return err
	}
	if len(processIDs) > 0 {
		if err := db.Where("product_process_id IN ?", processIDs).Delete(&entity.ProductProcessStep{}).Error; err != nil {
			return err
		}
	}
	if err := db.Where("product_code = ?", p.Code).Delete(&entity.ProductProcess{}).Error; err != nil {
		return err
	}
	if err := db.Where("product_code = ?", p.Code).Delete(&entity.ProductMaterial{}).Error; err != nil {
		return err
	}

	for i := range p.Processes {
		pp := &p.Processes[i]
		if pp.ID == "" {
			pp.ID = uuid.New().String()
		}
		pp.ProductCode = p.Code
		for j := range pp.Steps {
			if pp.Steps[j].ID == "" {
				pp.Steps[j].ID = uuid.New().String()
			}
		}
	}
	for i := range p.Materials {
		if p.Materials[i].ID == "" {
			p.Materials[i].ID = uuid.New().String()
		}
		p.Materials[i].ProductCode = p.Code
	}

	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(p).Error
}

// UpsertRawMaterial 新增或更新原料库存
func (r *ProductRepository) UpsertRawMaterial(ctx context.Context, m *entity.RawMaterial) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(m).Error
}

// UpsertFGStock 新增或更新成品散货库存
func (r *ProductRepository) UpsertFGStock(ctx context.Context, s *entity.FGStock) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(s).Error
}

// GetProductSpec 组装产品BOM，原料可用量 = 库存 - 所有MO的有效预留与锁定
func (r *ProductRepository) GetProductSpec(ctx context.Context, productCode string) (*engine.ProductSpec, error) {
	p, err := r.FindByCode(ctx, productCode)
	if err != nil {
		return nil, err
	}
	spec := &engine.ProductSpec{
		Code:         p.Code,
		Name:         p.Name,
		GramsPerUnit: p.GramsPerUnit,
	}
	for _, pp := range p.Processes {
		tpl := engine.ProcessTemplate{
			Name:       pp.Name,
			Sequence:   pp.Sequence,
			WorkCenter: pp.WorkCenter,
			Weight:     pp.Weight,
		}
		for _, st := range pp.Steps {
			tpl.Steps = append(tpl.Steps, st.Name)
		}
		spec.Processes = append(spec.Processes, tpl)
	}
	for _, m := range p.Materials {
		available, err := r.availableRM(ctx, m.MaterialCode)
		if err != nil {
			return nil, err
		}
		spec.Materials = append(spec.Materials, engine.MaterialLine{
			Code:         m.MaterialCode,
			GramsPerUnit: m.GramsPerUnit,
			AvailableKg:  available,
		})
	}
	return spec, nil
}

func (r *ProductRepository) availableRM(ctx context.Context, materialCode string) (float64, error) {
	var rm entity.RawMaterial
	err := r.db.WithContext(ctx).Where("code = ?", materialCode).First(&rm).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	used, err := NewResourceRepository(r.db).SumActive(ctx, materialCode, rmKinds)
	if err != nil {
		return 0, err
	}
	available := decimal.NewFromFloat(rm.StockKg).Sub(decimal.NewFromFloat(used))
	return decimal.Max(decimal.Zero, available).InexactFloat64(), nil
}

// LooseUnitsAvailable 成品散货可用数 = 散货库存 - 所有MO的有效成品预留
func (r *ProductRepository) LooseUnitsAvailable(ctx context.Context, productCode string) (int, error) {
	var stock entity.FGStock
	err := r.db.WithContext(ctx).Where("product_code = ?", productCode).First(&stock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	used, err := NewResourceRepository(r.db).SumActive(ctx, productCode, []string{entity.ResourceReservedFG})
	if err != nil {
		return 0, err
	}
	available := stock.LooseUnits - int(used)
	if available < 0 {
		available = 0
	}
	return available, nil
}

// SetStock 调整原料库存（测试与目录导入使用）
func (r *ProductRepository) SetStock(ctx context.Context, materialCode string, stockKg float64) error {
	return r.db.WithContext(ctx).
		Model(&entity.RawMaterial{}).
		Where("code = ?", materialCode).
		Updates(map[string]interface{}{"stock_kg": stockKg, "updated_at": time.Now()}).Error
}
