package entity

import (
	"time"

	"gorm.io/datatypes"
)

// 事件主体类型
const (
	EventEntityOrder   = "order"
	EventEntityProcess = "process"
	EventEntityBatch   = "batch"
	EventEntityLedger  = "ledger"
)

// MOEvent MO操作日志，只追加
type MOEvent struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	MOID       string         `json:"mo_id" gorm:"column:mo_id;size:36;not null;index"`
	EntityType string         `json:"entity_type" gorm:"size:20;not null"`
	EntityID   string         `json:"entity_id" gorm:"size:64"`
	Action     string         `json:"action" gorm:"size:50;not null"`
	FromStatus string         `json:"from_status" gorm:"size:20"`
	ToStatus   string         `json:"to_status" gorm:"size:20"`
	OperatorID string         `json:"operator_id" gorm:"size:64;not null"`
	EventData  datatypes.JSON `json:"event_data,omitempty"`
	Comment    string         `json:"comment,omitempty" gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (MOEvent) TableName() string {
	return "mes_mo_events"
}
