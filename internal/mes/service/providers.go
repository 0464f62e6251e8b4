package service

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/realtime"
)

// ProductProvider 产品BOM：工序模板、单位克重、原料及可用量
type ProductProvider interface {
	GetProductSpec(ctx context.Context, productCode string) (*engine.ProductSpec, error)
}

// FGStockProvider 成品散货可用数
type FGStockProvider interface {
	LooseUnitsAvailable(ctx context.Context, productCode string) (int, error)
}

// PurchaseDrafter 缺料转采购需求草稿
type PurchaseDrafter interface {
	DraftPurchase(ctx context.Context, mo *entity.ManufacturingOrder, materialCode string, shortageKg float64, createdBy string) (*entity.PurchaseDraft, error)
}

// RoleDirectory 用户角色与工作中心主管查询
type RoleDirectory interface {
	RolesOf(ctx context.Context, userID string) ([]string, error)
	IsSupervisorAt(ctx context.Context, userID, workCenter string) (bool, error)
}

// Providers 外部边界依赖
type Providers struct {
	Products  ProductProvider
	FGStock   FGStockProvider
	Purchases PurchaseDrafter
	Roles     RoleDirectory
}

// ProviderFactory 按仓库集合构造边界依赖。事务内传入的是绑定事务的仓库，
// 保证可用量读取与台账写入在同一事务中
type ProviderFactory func(repos *repository.Repositories) Providers

// DefaultProviders 使用 gorm 仓库实现
func DefaultProviders(repos *repository.Repositories) Providers {
	return Providers{
		Products:  repos.Product,
		FGStock:   repos.Product,
		Purchases: repos.Purchase,
		Roles:     repos.Role,
	}
}

// Publisher 已提交变更的实时推送
type Publisher interface {
	PublishOrderUpdate(update realtime.OrderUpdate)
}

type noopPublisher struct{}

func (noopPublisher) PublishOrderUpdate(realtime.OrderUpdate) {}
