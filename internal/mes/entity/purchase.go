package entity

import "time"

const PurchaseDraftStatusDraft = "draft"

// PurchaseDraft 缺料自动生成的采购需求草稿，交由采购系统处理
type PurchaseDraft struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	DraftCode    string    `json:"draft_code" gorm:"size:50;not null;uniqueIndex"`
	MOID         string    `json:"mo_id" gorm:"column:mo_id;size:36;index"`
	MOCode       string    `json:"mo_code" gorm:"size:50"`
	MaterialCode string    `json:"material_code" gorm:"size:64;not null"`
	ShortageKg   float64   `json:"shortage_kg" gorm:"type:decimal(14,4);not null"`
	Status       string    `json:"status" gorm:"size:20;not null;default:draft"`
	CreatedBy    string    `json:"created_by" gorm:"size:64"`
	CreatedAt    time.Time `json:"created_at"`
}

func (PurchaseDraft) TableName() string {
	return "mes_purchase_drafts"
}
