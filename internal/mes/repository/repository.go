package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories MES仓库集合
type Repositories struct {
	db *gorm.DB

	Order    *OrderRepository
	Process  *ProcessRepository
	Batch    *BatchRepository
	Resource *ResourceRepository
	Event    *EventRepository
	Product  *ProductRepository
	Purchase *PurchaseRepository
	Role     *RoleRepository
}

// NewRepositories 创建MES仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:       db,
		Order:    NewOrderRepository(db),
		Process:  NewProcessRepository(db),
		Batch:    NewBatchRepository(db),
		Resource: NewResourceRepository(db),
		Event:    NewEventRepository(db),
		Product:  NewProductRepository(db),
		Purchase: NewPurchaseRepository(db),
		Role:     NewRoleRepository(db),
	}
}

// Transaction 在同一事务中执行 fn，fn 收到的仓库集合全部绑定到该事务
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// DB 底层连接，健康检查使用
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
