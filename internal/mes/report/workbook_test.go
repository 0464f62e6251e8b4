package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func sampleOrder() OrderData {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	sup := "sup-1"
	mo := &entity.ManufacturingOrder{
		ID:              "mo-1",
		MOCode:          "MO-20260302-001",
		ProductCode:     "VC-500",
		ProductName:     "Vitamin C 500mg",
		Quantity:        1000,
		Status:          entity.MOStatusInProgress,
		Priority:        entity.PriorityHigh,
		ActualStartDate: &start,
		CreatedAt:       start,
		Processes: []entity.ProcessExecution{
			{ID: "pe-1", ProcessName: "Mixing", SequenceOrder: 1, Status: entity.ProcessStatusCompleted, ProgressPercentage: 100, AssignedSupervisor: &sup},
			{ID: "pe-2", ProcessName: "Tableting", SequenceOrder: 2, Status: entity.ProcessStatusInProgress, ProgressPercentage: 50},
		},
		Batches: []entity.Batch{
			{ID: "b-1", BatchCode: "MO-20260302-001-B01", PlannedQuantityKg: 25, Ledger: []entity.BatchProcessEntry{
				{ProcessExecutionID: "pe-1", Status: entity.LedgerCompleted},
				{ProcessExecutionID: "pe-2", Status: entity.LedgerInProgress},
			}},
		},
	}
	return OrderData{
		Order: mo,
		Resources: []entity.ResourceEntry{
			{Kind: entity.ResourceLockedRM, Reference: "ASC-ACID", Quantity: 42, Unit: entity.UnitKg, Status: entity.ResourceStatusActive},
		},
		Events: []entity.MOEvent{
			{EntityType: entity.EventEntityOrder, EntityID: mo.MOCode, Action: "approve", FromStatus: "rm_allocated", ToStatus: "in_progress", OperatorID: "mgr", CreatedAt: start},
		},
		Drafts: []entity.PurchaseDraft{{DraftCode: "PRD-2026-0001", MaterialCode: "ASC-ACID", ShortageKg: 2.5}},
	}
}

func TestOrderWorkbook(t *testing.T) {
	f, err := OrderWorkbook(sampleOrder())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetOrder, SheetProcesses, SheetBatches, SheetLedger, SheetEvents}, f.GetSheetList())

	v, err := f.GetCellValue(SheetOrder, "B1")
	require.NoError(t, err)
	assert.Equal(t, "MO-20260302-001", v)

	v, _ = f.GetCellValue(SheetProcesses, "B3")
	assert.Equal(t, "Tableting", v)
	v, _ = f.GetCellValue(SheetProcesses, "G2")
	assert.Equal(t, "sup-1", v)

	// 批次表按工序展开台账状态
	v, _ = f.GetCellValue(SheetBatches, "E1")
	assert.Equal(t, "Mixing", v)
	v, _ = f.GetCellValue(SheetBatches, "F2")
	assert.Equal(t, entity.LedgerInProgress, v)

	v, _ = f.GetCellValue(SheetLedger, "B2")
	assert.Equal(t, "ASC-ACID", v)
	v, _ = f.GetCellValue(SheetEvents, "D2")
	assert.Equal(t, "approve", v)
}

func TestOrderWorkbookRoundTrip(t *testing.T) {
	f, err := OrderWorkbook(sampleOrder())
	require.NoError(t, err)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer reopened.Close()
	rows, err := reopened.GetRows(SheetEvents)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestOrderWorkbookRequiresOrder(t *testing.T) {
	_, err := OrderWorkbook(OrderData{})
	assert.Error(t, err)
	assert.Equal(t, "MO_MO-1.xlsx", Filename(&entity.ManufacturingOrder{MOCode: "MO-1"}))
}
