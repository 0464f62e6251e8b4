package entity

import (
	"time"
)

// MO 状态
const (
	MOStatusDraft       = "draft"
	MOStatusSubmitted   = "submitted"
	MOStatusGMApproved  = "gm_approved"
	MOStatusRMAllocated = "rm_allocated"
	MOStatusMOApproved  = "mo_approved"
	MOStatusInProgress  = "in_progress"
	MOStatusCompleted   = "completed"
	MOStatusRejected    = "rejected"
	MOStatusCancelled   = "cancelled"
	MOStatusOnHold      = "on_hold"
	MOStatusStopped     = "stopped"
)

// MO 优先级
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var priorityLevels = map[string]int{
	PriorityLow:    1,
	PriorityMedium: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
}

// PriorityLevel 优先级对应的数值，未知优先级返回0
func PriorityLevel(priority string) int {
	return priorityLevels[priority]
}

// ValidPriority 是否为合法优先级
func ValidPriority(priority string) bool {
	_, ok := priorityLevels[priority]
	return ok
}

// ManufacturingOrder 生产订单
type ManufacturingOrder struct {
	ID                  string     `json:"id" gorm:"primaryKey;size:36"`
	MOCode              string     `json:"mo_id" gorm:"column:mo_code;size:50;not null;uniqueIndex"`
	ProductCode         string     `json:"product_code" gorm:"size:64;not null;index"`
	ProductName         string     `json:"product_name" gorm:"size:128"`
	Quantity            int        `json:"quantity" gorm:"not null"`
	ManufactureQuantity int        `json:"manufacture_quantity" gorm:"not null;default:0"`
	FGReservedUnits     int        `json:"fg_reserved_units" gorm:"default:0"`
	TolerancePercentage float64    `json:"tolerance_percentage" gorm:"type:decimal(6,2);default:0"`
	Priority            string     `json:"priority" gorm:"size:10;not null;default:medium"`
	PriorityLevel       int        `json:"priority_level" gorm:"not null;default:2;index"`
	Status              string     `json:"status" gorm:"size:20;not null;default:draft;index"`
	HeldFromStatus      string     `json:"held_from_status,omitempty" gorm:"size:20"`
	PlannedStartDate    *time.Time `json:"planned_start_date"`
	PlannedEndDate      *time.Time `json:"planned_end_date"`
	ActualStartDate     *time.Time `json:"actual_start_date"`
	ActualEndDate       *time.Time `json:"actual_end_date"`
	RMRequiredKg        float64    `json:"rm_required_kg" gorm:"type:decimal(14,4);default:0"`
	RMReleasedKg        float64    `json:"rm_released_kg" gorm:"type:decimal(14,4);default:0"`
	OverallProgress     float64    `json:"overall_progress" gorm:"type:decimal(6,2);default:0"`
	Notes               string     `json:"notes" gorm:"type:text"`
	ApprovalNotes       string     `json:"approval_notes,omitempty" gorm:"type:text"`
	RejectionReason     string     `json:"rejection_reason,omitempty" gorm:"type:text"`
	StopReason          string     `json:"stop_reason,omitempty" gorm:"type:text"`
	CreatedBy           string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeletedAt           *time.Time `json:"deleted_at" gorm:"index"`

	Processes []ProcessExecution `json:"processes,omitempty" gorm:"foreignKey:MOID"`
	Batches   []Batch            `json:"batches,omitempty" gorm:"foreignKey:MOID"`
}

func (ManufacturingOrder) TableName() string {
	return "mes_manufacturing_orders"
}

// IsTerminal 终态订单不再接受任何变更
func (mo *ManufacturingOrder) IsTerminal() bool {
	switch mo.Status {
	case MOStatusCompleted, MOStatusRejected, MOStatusCancelled:
		return true
	}
	return false
}
