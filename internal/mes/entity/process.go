package entity

import "time"

// ProcessExecution 状态
const (
	ProcessStatusPending    = "pending"
	ProcessStatusInProgress = "in_progress"
	ProcessStatusCompleted  = "completed"
	ProcessStatusOnHold     = "on_hold"
	ProcessStatusStopped    = "stopped"
)

// ProcessStep 状态
const (
	StepStatusPending   = "pending"
	StepStatusCompleted = "completed"
)

// ProcessExecution 工序执行，一个MO的每道BOM工序对应一条
type ProcessExecution struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:36"`
	MOID               string     `json:"mo_id" gorm:"column:mo_id;size:36;not null;uniqueIndex:idx_mes_pe_mo_seq"`
	ProcessName        string     `json:"process_name" gorm:"size:100;not null"`
	WorkCenter         string     `json:"work_center" gorm:"size:64"`
	SequenceOrder      int        `json:"sequence_order" gorm:"not null;uniqueIndex:idx_mes_pe_mo_seq"`
	Weight             float64    `json:"weight" gorm:"type:decimal(10,4);default:1"`
	Status             string     `json:"status" gorm:"size:20;not null;default:pending"`
	HeldFromStatus     string     `json:"held_from_status,omitempty" gorm:"size:20"`
	HeldByOrder        bool       `json:"held_by_order" gorm:"default:false"`
	AssignedSupervisor *string    `json:"assigned_supervisor" gorm:"size:64"`
	ProgressPercentage float64    `json:"progress_percentage" gorm:"type:decimal(6,2);default:0"`
	AutoCompleted      bool       `json:"auto_completed" gorm:"default:false"`
	ActualStartTime    *time.Time `json:"actual_start_time"`
	ActualEndTime      *time.Time `json:"actual_end_time"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Steps []ProcessStep `json:"steps,omitempty" gorm:"foreignKey:ProcessExecutionID"`
}

func (ProcessExecution) TableName() string {
	return "mes_process_executions"
}

// ProcessStep 工序子步骤
type ProcessStep struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:36"`
	ProcessExecutionID string     `json:"process_execution_id" gorm:"size:36;not null;index"`
	Name               string     `json:"name" gorm:"size:100;not null"`
	Sequence           int        `json:"sequence" gorm:"not null"`
	Status             string     `json:"status" gorm:"size:20;not null;default:pending"`
	CompletedBy        string     `json:"completed_by,omitempty" gorm:"size:64"`
	CompletedAt        *time.Time `json:"completed_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (ProcessStep) TableName() string {
	return "mes_process_steps"
}
