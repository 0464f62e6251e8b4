package engine

import (
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// newBatch 构造一个带台账的批次，statuses 按工序ID给出台账状态，未给出的为 not_started
func newBatch(code string, plannedKg float64, processes []entity.ProcessExecution, statuses map[string]string) entity.Batch {
	b := entity.Batch{ID: "id-" + code, BatchCode: code, PlannedQuantityKg: plannedKg}
	for _, pe := range processes {
		status := statuses[pe.ID]
		if status == "" {
			status = entity.LedgerNotStarted
		}
		b.Ledger = append(b.Ledger, entity.BatchProcessEntry{
			ID:                 fmt.Sprintf("%s-%s", code, pe.ID),
			BatchID:            b.ID,
			ProcessExecutionID: pe.ID,
			SequenceOrder:      pe.SequenceOrder,
			Status:             status,
		})
	}
	return b
}

func threeProcesses() []entity.ProcessExecution {
	return []entity.ProcessExecution{
		{ID: "pe-1", ProcessName: "Mixing", SequenceOrder: 1, Weight: 1, Status: entity.ProcessStatusPending},
		{ID: "pe-2", ProcessName: "Tableting", SequenceOrder: 2, Weight: 2, Status: entity.ProcessStatusPending},
		{ID: "pe-3", ProcessName: "Packing", SequenceOrder: 3, Weight: 1, Status: entity.ProcessStatusPending},
	}
}
