package entity

import "time"

// 批次工序台账状态，只能前进
const (
	LedgerNotStarted = "not_started"
	LedgerInProgress = "in_progress"
	LedgerCompleted  = "completed"
)

// Batch 生产批次。ActualQuantityCompleted 为全部工序完成后的最终产量
type Batch struct {
	ID                      string    `json:"id" gorm:"primaryKey;size:36"`
	BatchCode               string    `json:"batch_id" gorm:"column:batch_code;size:64;not null;uniqueIndex"`
	MOID                    string    `json:"mo_id" gorm:"column:mo_id;size:36;not null;index"`
	Sequence                int       `json:"sequence" gorm:"not null"`
	PlannedQuantityKg       float64   `json:"planned_quantity" gorm:"type:decimal(14,4);not null"`
	ActualQuantityCompleted float64   `json:"actual_quantity_completed" gorm:"type:decimal(14,4);default:0"`
	Blocked                 bool      `json:"blocked" gorm:"default:false"`
	CreatedBy               string    `json:"created_by" gorm:"size:64"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`

	Ledger []BatchProcessEntry `json:"ledger,omitempty" gorm:"foreignKey:BatchID"`
}

func (Batch) TableName() string {
	return "mes_batches"
}

// EntryFor 返回该批次在指定工序上的台账，不存在返回nil
func (b *Batch) EntryFor(processExecutionID string) *BatchProcessEntry {
	for i := range b.Ledger {
		if b.Ledger[i].ProcessExecutionID == processExecutionID {
			return &b.Ledger[i]
		}
	}
	return nil
}

// BatchProcessEntry 批次在某道工序上的完成台账
type BatchProcessEntry struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:36"`
	BatchID            string     `json:"batch_id" gorm:"size:36;not null;uniqueIndex:idx_mes_ledger_batch_pe"`
	ProcessExecutionID string     `json:"process_execution_id" gorm:"size:36;not null;uniqueIndex:idx_mes_ledger_batch_pe;index"`
	SequenceOrder      int        `json:"sequence_order" gorm:"not null"`
	Status             string     `json:"status" gorm:"size:20;not null;default:not_started"`
	ActualQuantity     float64    `json:"actual_quantity" gorm:"type:decimal(14,4);default:0"`
	StartedBy          string     `json:"started_by,omitempty" gorm:"size:64"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedBy        string     `json:"completed_by,omitempty" gorm:"size:64"`
	CompletedAt        *time.Time `json:"completed_at"`
	// 完成时记录的结果，重复提交时原样返回
	CompletionPercentage  float64   `json:"completion_percentage" gorm:"type:decimal(6,2);default:0"`
	TriggeredAutoComplete bool      `json:"triggered_auto_complete" gorm:"default:false"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (BatchProcessEntry) TableName() string {
	return "mes_batch_process_entries"
}
