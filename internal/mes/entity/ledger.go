package entity

import "time"

// 资源台账类型
const (
	ResourceReservedRM = "reserved_rm"
	ResourceLockedRM   = "locked_rm"
	ResourceReservedFG = "reserved_fg"
)

// 资源台账状态
const (
	ResourceStatusActive   = "active"
	ResourceStatusReleased = "released"
)

// 数量单位
const (
	UnitKg    = "kg"
	UnitUnits = "units"
)

// ResourceEntry MO的原料/成品预留与锁定记录
type ResourceEntry struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	MOID       string     `json:"mo_id" gorm:"column:mo_id;size:36;not null;index"`
	Kind       string     `json:"kind" gorm:"size:20;not null"`
	Quantity   float64    `json:"quantity" gorm:"type:decimal(14,4);not null"`
	Unit       string     `json:"unit" gorm:"size:10;not null"`
	Reference  string     `json:"material_or_product_reference" gorm:"column:reference;size:64;not null;index"`
	Status     string     `json:"status" gorm:"size:20;not null;default:active;index"`
	CreatedBy  string     `json:"created_by" gorm:"size:64"`
	LockedAt   *time.Time `json:"locked_at"`
	ReleasedBy string     `json:"released_by,omitempty" gorm:"size:64"`
	ReleasedAt *time.Time `json:"released_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (ResourceEntry) TableName() string {
	return "mes_resource_entries"
}

// IsRM 是否为原料台账
func (e *ResourceEntry) IsRM() bool {
	return e.Kind == ResourceReservedRM || e.Kind == ResourceLockedRM
}
