package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// EventRepository MO操作日志仓库
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create 写入日志
func (r *EventRepository) Create(ctx context.Context, ev *entity.MOEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

// FindByMO 按时间顺序返回MO日志
func (r *EventRepository) FindByMO(ctx context.Context, moID string) ([]entity.MOEvent, error) {
	var items []entity.MOEvent
	err := r.db.WithContext(ctx).
		Where("mo_id = ?", moID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}
