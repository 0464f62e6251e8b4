package service

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// StockService 原料需求试算与产品主数据查询
type StockService struct {
	core *core
}

// RequirementReport 原料需求试算结果
type RequirementReport struct {
	ProductCode string                       `json:"product_code"`
	Requirement engine.Requirement           `json:"requirement"`
	Materials   []engine.MaterialRequirement `json:"materials"`
	// Fulfillable 现有原料加散货成品最多可满足的数量
	Fulfillable int `json:"fulfillable_quantity"`
}

// CheckRequirement 按当前可用量试算，不做任何预留
func (s *StockService) CheckRequirement(ctx context.Context, productCode string, quantity int, tolerancePercent float64) (*RequirementReport, error) {
	p := s.core.providers(s.core.repos)
	spec, err := p.Products.GetProductSpec(ctx, productCode)
	if err != nil {
		return nil, notFoundAs(err, "product", productCode)
	}
	if err := engine.ValidateSpec(spec); err != nil {
		return nil, err
	}
	loose, err := p.FGStock.LooseUnitsAvailable(ctx, productCode)
	if err != nil {
		return nil, err
	}
	req, err := engine.ComputeRequirement(quantity, spec.GramsPerUnit, tolerancePercent, loose, spec.TotalAvailableKg())
	if err != nil {
		return nil, err
	}
	materials, err := engine.ComputeMaterialSplit(req.ManufactureQuantity, tolerancePercent, spec.Materials)
	if err != nil {
		return nil, err
	}
	return &RequirementReport{
		ProductCode: spec.Code,
		Requirement: req,
		Materials:   materials,
		Fulfillable: engine.FulfillableQuantity(spec.Materials, tolerancePercent, loose),
	}, nil
}

// GetProduct 产品主数据（含工序模板与原料）
func (s *StockService) GetProduct(ctx context.Context, code string) (*entity.Product, error) {
	p, err := s.core.repos.Product.FindByCode(ctx, code)
	if err != nil {
		return nil, s.core.notFound("product", code, err)
	}
	return p, nil
}

func (s *StockService) ListProducts(ctx context.Context) ([]entity.Product, error) {
	return s.core.repos.Product.FindAll(ctx)
}

// ListPurchaseDrafts 缺料采购草稿，moRef 为空时返回全部
func (s *StockService) ListPurchaseDrafts(ctx context.Context, moRef string) ([]entity.PurchaseDraft, error) {
	moID := ""
	if moRef != "" {
		id, err := s.core.resolveOrderID(ctx, moRef)
		if err != nil {
			return nil, err
		}
		moID = id
	}
	return s.core.repos.Purchase.FindAll(ctx, moID)
}
