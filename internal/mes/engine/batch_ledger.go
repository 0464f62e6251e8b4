package engine

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// CheckBatchStart 批次工序开始的前置条件：
// 工序已在生产（或待开始且上一道已完成，可隐式启动；或已按阈值完工，允许补录），
// 批次未被停产冻结，上一道工序的台账已完成，本道台账尚未开始
func CheckBatchStart(batch *entity.Batch, pe, prev *entity.ProcessExecution) error {
	switch pe.Status {
	case entity.ProcessStatusInProgress:
	case entity.ProcessStatusPending:
		if prev != nil && prev.Status != entity.ProcessStatusCompleted {
			return &TransitionError{Entity: "process execution", ID: pe.ID, From: pe.Status, Action: "start batch before previous process completes"}
		}
	case entity.ProcessStatusCompleted:
		if !pe.AutoCompleted {
			return &TransitionError{Entity: "process execution", ID: pe.ID, From: pe.Status, Action: "start batch"}
		}
	default:
		return &TransitionError{Entity: "process execution", ID: pe.ID, From: pe.Status, Action: "start batch"}
	}

	entry := batch.EntryFor(pe.ID)
	if entry == nil {
		return &NotFoundError{Entity: "ledger entry", ID: batch.BatchCode + "/" + pe.ID}
	}
	if entry.Status != entity.LedgerNotStarted {
		return &TransitionError{Entity: "batch", ID: batch.BatchCode, From: entry.Status, Action: "start process " + pe.ProcessName}
	}
	if batch.Blocked {
		return &TransitionError{Entity: "batch", ID: batch.BatchCode, From: "blocked", Action: "start process " + pe.ProcessName}
	}
	if prev != nil {
		prevEntry := batch.EntryFor(prev.ID)
		if prevEntry == nil || prevEntry.Status != entity.LedgerCompleted {
			return &TransitionError{
				Entity: "batch",
				ID:     batch.BatchCode,
				From:   ledgerStatus(prevEntry),
				Action: "start " + pe.ProcessName + " before completing " + prev.ProcessName,
			}
		}
	}
	return nil
}

// CheckBatchComplete 台账必须处于 in_progress；已完成返回 done=true 供幂等重放
func CheckBatchComplete(batch *entity.Batch, pe *entity.ProcessExecution, actualQuantity float64) (done bool, err error) {
	entry := batch.EntryFor(pe.ID)
	if entry == nil {
		return false, &NotFoundError{Entity: "ledger entry", ID: batch.BatchCode + "/" + pe.ID}
	}
	switch entry.Status {
	case entity.LedgerCompleted:
		return true, nil
	case entity.LedgerInProgress:
	default:
		return false, &TransitionError{Entity: "batch", ID: batch.BatchCode, From: entry.Status, Action: "complete process " + pe.ProcessName}
	}
	if actualQuantity < 0 {
		return false, invalid("actual_quantity", "must be non-negative, got %v", actualQuantity)
	}
	return false, nil
}

// BatchInProgress 批次是否有在制工序
func BatchInProgress(batch *entity.Batch) bool {
	for _, e := range batch.Ledger {
		if e.Status == entity.LedgerInProgress {
			return true
		}
	}
	return false
}

// BatchFinished 批次所有工序台账已完成
func BatchFinished(batch *entity.Batch) bool {
	if len(batch.Ledger) == 0 {
		return false
	}
	for _, e := range batch.Ledger {
		if e.Status != entity.LedgerCompleted {
			return false
		}
	}
	return true
}

func ledgerStatus(e *entity.BatchProcessEntry) string {
	if e == nil {
		return entity.LedgerNotStarted
	}
	return e.Status
}
