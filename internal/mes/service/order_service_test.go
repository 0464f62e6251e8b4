package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func TestCreateOrderComputesRequirement(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{
		ProductCode:         productCode,
		Quantity:            1000,
		TolerancePercentage: 5,
	})
	require.NoError(t, err)

	mo := res.Order
	assert.Equal(t, entity.MOStatusDraft, mo.Status)
	assert.Regexp(t, `^MO-\d{8}-001$`, mo.MOCode)
	assert.Equal(t, 800, mo.ManufactureQuantity)
	assert.Equal(t, 200, mo.FGReservedUnits)
	assert.InDelta(t, 42.0, mo.RMRequiredKg, 1e-9)
	assert.Equal(t, entity.PriorityMedium, mo.Priority)
	assert.Equal(t, 2, mo.PriorityLevel)
	assert.False(t, res.Partial)
	assert.Empty(t, res.PurchaseDrafts)
	require.Len(t, res.Materials, 2)

	events, err := f.svc.Order.Events(f.ctx, mo.MOCode)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "create", events[0].Action)
	assert.Equal(t, planner.UserID, events[0].OperatorID)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{ProductCode: productCode, Quantity: 0})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{ProductCode: productCode, Quantity: 10, Priority: "asap"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{ProductCode: productCode, Quantity: 10, TolerancePercentage: 150})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{ProductCode: "NOPE", Quantity: 10})
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = f.svc.Order.Create(f.ctx, engine.Actor{UserID: "op-1", Roles: []string{engine.RoleSupervisor}},
		CreateOrderRequest{ProductCode: productCode, Quantity: 10})
	assert.ErrorIs(t, err, engine.ErrUnauthorized)
}

func TestCreateOrderShortageModes(t *testing.T) {
	setup := func(t *testing.T) *fixture {
		f := newFixture(t)
		setStock(t, f, "ASC-ACID", 20)
		setLooseFG(t, f, 0)
		return f
	}

	t.Run("reject", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{ProductCode: productCode, Quantity: 1000})
		var stockErr *engine.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, "ASC-ACID", stockErr.Reference)
		assert.InDelta(t, 20.0, stockErr.ShortageKg, 1e-9)

		mos, total, err := f.svc.Order.List(f.ctx, 1, 20, nil)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, mos)
	})

	t.Run("partial", func(t *testing.T) {
		f := setup(t)
		res, err := f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{ProductCode: productCode, Quantity: 1000, OnShortage: OnShortagePartial})
		require.NoError(t, err)
		assert.True(t, res.Partial)
		assert.Equal(t, 1000, res.RequestedQuantity)
		assert.Equal(t, 500, res.Order.Quantity)
		assert.InDelta(t, 25.0, res.Order.RMRequiredKg, 1e-9)
		require.Len(t, res.PurchaseDrafts, 1)
		assert.Equal(t, "ASC-ACID", res.PurchaseDrafts[0].MaterialCode)
		assert.InDelta(t, 20.0, res.PurchaseDrafts[0].ShortageKg, 1e-9)

		drafts, err := f.svc.Stock.ListPurchaseDrafts(f.ctx, res.Order.MOCode)
		require.NoError(t, err)
		assert.Len(t, drafts, 1)
	})

	t.Run("draft_po", func(t *testing.T) {
		f := setup(t)
		res, err := f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{ProductCode: productCode, Quantity: 1000, OnShortage: OnShortageDraftPO})
		require.NoError(t, err)
		assert.False(t, res.Partial)
		assert.Equal(t, 1000, res.Order.Quantity)
		require.Len(t, res.PurchaseDrafts, 1)

		// 原料未到货前无法分配
		mo := res.Order
		_, err = f.svc.Order.Submit(f.ctx, planner, mo.ID)
		require.NoError(t, err)
		_, err = f.svc.Order.GMApprove(f.ctx, manager, mo.ID, "")
		require.NoError(t, err)
		_, err = f.svc.Order.AllocateRM(f.ctx, manager, mo.ID)
		assert.ErrorIs(t, err, engine.ErrInsufficientStock)
		assert.Equal(t, entity.MOStatusGMApproved, f.order(mo.ID).Status)
		assert.Empty(t, f.activeEntries(mo.ID))
	})
}

func TestOrderLifecycleToCompletion(t *testing.T) {
	f := newFixture(t)
	mo := f.allocated()
	assert.Equal(t, entity.MOStatusRMAllocated, mo.Status)

	entries := f.activeEntries(mo.ID)
	require.Len(t, entries, 3)
	assert.Equal(t, 2, countKind(entries, entity.ResourceReservedRM))
	assert.Equal(t, 1, countKind(entries, entity.ResourceReservedFG))
	assert.InDelta(t, 42.0, engine.ActiveRMKg(entries).InexactFloat64(), 1e-9)

	mo, err := f.svc.Order.Approve(f.ctx, manager, mo.ID, ApproveRequest{Notes: "go"})
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusInProgress, mo.Status)
	assert.NotNil(t, mo.ActualStartDate)
	assert.InDelta(t, 42.0, mo.RMReleasedKg, 1e-9)
	assert.Equal(t, 2, countKind(f.activeEntries(mo.ID), entity.ResourceLockedRM))

	batches, err := f.svc.Batch.CreateBatches(f.ctx, manager, mo.ID, []float64{20, 22})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, mo.MOCode+"-B01", batches[0].BatchCode)
	assert.Equal(t, mo.MOCode+"-B02", batches[1].BatchCode)

	processes, err := f.svc.Process.List(f.ctx, mo.ID)
	require.NoError(t, err)
	require.Len(t, processes, 3)

	first := f.runBatch(batches[0].BatchCode, processes[0].ID, 19.8)
	assert.InDelta(t, 47.62, first.CompletionPercentage, 1e-9)
	assert.False(t, first.AutoCompleted)
	assert.Equal(t, entity.ProcessStatusInProgress, first.ProcessStatus)
	assert.InDelta(t, 15.87, first.OverallProgress, 1e-9)

	for i, pe := range processes {
		if i > 0 {
			f.runBatch(batches[0].BatchCode, pe.ID, 19.8)
		}
		last := f.runBatch(batches[1].BatchCode, pe.ID, 21.9)
		assert.True(t, last.AutoCompleted, pe.ProcessName)
		assert.Equal(t, entity.ProcessStatusCompleted, last.ProcessStatus)
	}

	done := f.order(mo.ID)
	assert.Equal(t, entity.MOStatusCompleted, done.Status)
	assert.Equal(t, 100.0, done.OverallProgress)
	assert.NotNil(t, done.ActualEndDate)
	// 完工后锁定原料与成品预留视为已消耗，不释放
	assert.Len(t, f.activeEntries(mo.ID), 3)

	_, err = f.svc.Order.Hold(f.ctx, manager, mo.ID, "too late")
	assert.ErrorIs(t, err, engine.ErrInvalidStateTransition)
}

func TestOrderTransitionsRejectWrongState(t *testing.T) {
	f := newFixture(t)
	mo := f.createOrder()

	_, err := f.svc.Order.Approve(f.ctx, manager, mo.ID, ApproveRequest{})
	var te *engine.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, entity.MOStatusDraft, te.From)

	_, err = f.svc.Order.AllocateRM(f.ctx, manager, mo.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidStateTransition)

	_, err = f.svc.Order.GMApprove(f.ctx, manager, mo.ID, "")
	assert.ErrorIs(t, err, engine.ErrInvalidStateTransition)

	_, err = f.svc.Order.Submit(f.ctx, planner, mo.ID)
	require.NoError(t, err)
	_, err = f.svc.Order.GMApprove(f.ctx, planner, mo.ID, "")
	assert.ErrorIs(t, err, engine.ErrUnauthorized)
	assert.Equal(t, entity.MOStatusSubmitted, f.order(mo.ID).Status)

	_, err = f.svc.Order.Submit(f.ctx, planner, "MO-00000000-999")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestApproveDeferredStart(t *testing.T) {
	f := newFixture(t)
	mo := f.allocated()

	mo, err := f.svc.Order.Approve(f.ctx, manager, mo.ID, ApproveRequest{DeferStart: true})
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusMOApproved, mo.Status)
	assert.Nil(t, mo.ActualStartDate)

	processes, err := f.svc.Order.InitializeProcesses(f.ctx, manager, mo.ID)
	require.NoError(t, err)
	require.Len(t, processes, 3)
	again, err := f.svc.Order.InitializeProcesses(f.ctx, manager, mo.ID)
	require.NoError(t, err)
	assert.Equal(t, processes[0].ID, again[0].ID)

	mo, err = f.svc.Order.StartProduction(f.ctx, manager, mo.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusInProgress, mo.Status)
	assert.NotNil(t, mo.ActualStartDate)
}

func TestInitializeProcessesBackfillsLedger(t *testing.T) {
	f := newFixture(t)
	mo := f.allocated()

	_, err := f.svc.Order.InitializeProcesses(f.ctx, manager, mo.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidStateTransition)

	batches, err := f.svc.Batch.CreateBatches(f.ctx, manager, mo.ID, []float64{10, 10})
	require.NoError(t, err)
	assert.Empty(t, batches[0].Ledger)

	_, err = f.svc.Order.Approve(f.ctx, manager, mo.ID, ApproveRequest{})
	require.NoError(t, err)

	got, err := f.svc.Batch.Get(f.ctx, batches[0].BatchCode)
	require.NoError(t, err)
	require.Len(t, got.Ledger, 3)
	assert.Equal(t, entity.LedgerNotStarted, got.Ledger[0].Status)
}

func TestRejectReleasesLedger(t *testing.T) {
	f := newFixture(t)
	mo := f.allocated()
	_, err := f.svc.Order.Approve(f.ctx, manager, mo.ID, ApproveRequest{DeferStart: true})
	require.NoError(t, err)

	_, err = f.svc.Order.Reject(f.ctx, manager, mo.ID, "   ")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	mo, err = f.svc.Order.Reject(f.ctx, manager, mo.ID, "formula changed")
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusRejected, mo.Status)
	assert.Equal(t, "formula changed", mo.RejectionReason)
	assert.Empty(t, f.activeEntries(mo.ID))

	all, err := f.svc.Ledger.List(f.ctx, mo.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, e := range all {
		assert.Equal(t, entity.ResourceStatusReleased, e.Status)
		assert.Equal(t, manager.UserID, e.ReleasedBy)
		assert.NotNil(t, e.ReleasedAt)
	}

	// 释放后原料可供其他MO使用
	other := f.allocated()
	assert.Equal(t, entity.MOStatusRMAllocated, other.Status)
}

func TestRejectFromSubmitted(t *testing.T) {
	f := newFixture(t)
	mo := f.createOrder()
	_, err := f.svc.Order.Submit(f.ctx, planner, mo.ID)
	require.NoError(t, err)
	mo, err = f.svc.Order.Reject(f.ctx, manager, mo.ID, "not needed")
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusRejected, mo.Status)

	_, err = f.svc.Order.Submit(f.ctx, planner, mo.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidStateTransition)
}

func TestHoldAndResumeCascadeToProcesses(t *testing.T) {
	f := newFixture(t)
	mo, processes, batches := f.inProgress(20, 22)
	_, err := f.svc.Batch.StartBatchProcess(f.ctx, manager, batches[0].ID, processes[0].ID)
	require.NoError(t, err)

	mo, err = f.svc.Order.Hold(f.ctx, manager, mo.ID, "machine maintenance")
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusOnHold, mo.Status)
	assert.Equal(t, entity.ProcessStatusOnHold, f.process(processes[0].ID).Status)
	assert.Equal(t, entity.ProcessStatusPending, f.process(processes[1].ID).Status)
	// 暂停保留台账
	assert.Len(t, f.activeEntries(mo.ID), 3)

	_, err = f.svc.Batch.StartBatchProcess(f.ctx, manager, batches[1].ID, processes[0].ID)
	assert.ErrorIs(t, err, engine.ErrInvalidStateTransition)

	mo, err = f.svc.Order.Resume(f.ctx, manager, mo.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusInProgress, mo.Status)
	assert.Empty(t, mo.HeldFromStatus)
	assert.Equal(t, entity.ProcessStatusInProgress, f.process(processes[0].ID).Status)
	assert.False(t, f.process(processes[0].ID).HeldByOrder)
}

func TestOrderResumeKeepsOperatorProcessHold(t *testing.T) {
	f := newFixture(t)
	mo, processes, _ := f.inProgress(20)
	mixing := processes[0]
	_, err := f.svc.Process.Start(f.ctx, manager, mixing.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Process.Hold(f.ctx, manager, mixing.ID, "calibration")
	require.NoError(t, err)

	_, err = f.svc.Order.Hold(f.ctx, manager, mo.ID, "machine maintenance")
	require.NoError(t, err)
	mo, err = f.svc.Order.Resume(f.ctx, manager, mo.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusInProgress, mo.Status)

	pe := f.process(mixing.ID)
	assert.Equal(t, entity.ProcessStatusOnHold, pe.Status)
	assert.False(t, pe.HeldByOrder)

	pe, err = f.svc.Process.Resume(f.ctx, manager, mixing.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProcessStatusInProgress, pe.Status)
}

func TestHoldFromAllocatedResumesToAllocated(t *testing.T) {
	f := newFixture(t)
	mo := f.allocated()
	mo, err := f.svc.Order.Hold(f.ctx, manager, mo.ID, "waiting for line")
	require.NoError(t, err)
	mo, err = f.svc.Order.Resume(f.ctx, manager, mo.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusRMAllocated, mo.Status)
}

func TestCancelReleasesAndStopsProcesses(t *testing.T) {
	f := newFixture(t)
	mo, processes, _ := f.inProgress(20)

	_, err := f.svc.Order.Cancel(f.ctx, manager, mo.ID, "customer cancelled")
	assert.ErrorIs(t, err, engine.ErrInvalidStateTransition)

	_, err = f.svc.Order.Hold(f.ctx, manager, mo.ID, "review")
	require.NoError(t, err)
	mo, err = f.svc.Order.Cancel(f.ctx, manager, mo.ID, "customer cancelled")
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusCancelled, mo.Status)
	assert.Empty(t, f.activeEntries(mo.ID))
	for _, pe := range processes {
		assert.Equal(t, entity.ProcessStatusStopped, f.process(pe.ID).Status)
	}
}

func TestManualCompleteRequiresAllProcesses(t *testing.T) {
	f := newFixture(t, withPolicy(engine.Policy{
		AutoCompleteThreshold: 0.9,
		ProgressWeighting:     engine.ProgressWeightingEqual,
		AutoCompleteOrder:     false,
		StopReasonMinLength:   10,
	}))
	mo, processes, batches := f.inProgress(10)

	_, err := f.svc.Order.Complete(f.ctx, manager, mo.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidStateTransition)

	for _, pe := range processes {
		f.runBatch(batches[0].ID, pe.ID, 10)
	}
	assert.Equal(t, entity.MOStatusInProgress, f.order(mo.ID).Status)

	mo, err = f.svc.Order.Complete(f.ctx, manager, mo.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusCompleted, mo.Status)
	assert.Equal(t, 100.0, mo.OverallProgress)
}

func TestOverallProgressTemplateWeighting(t *testing.T) {
	f := newFixture(t, withPolicy(engine.Policy{
		AutoCompleteThreshold: 0.9,
		ProgressWeighting:     engine.ProgressWeightingTemplateWeight,
		AutoCompleteOrder:     true,
		StopReasonMinLength:   10,
	}))
	require.NoError(t, f.db.Model(&entity.ProductProcess{}).
		Where("product_code = ? AND name = ?", productCode, "Mixing").
		Update("weight", 2).Error)

	_, processes, batches := f.inProgress(10)
	res := f.runBatch(batches[0].ID, processes[0].ID, 10)
	require.True(t, res.AutoCompleted)
	// (100*2 + 0 + 0) / 4
	assert.Equal(t, 50.0, res.OverallProgress)
}

func TestOrderListAndEvents(t *testing.T) {
	f := newFixture(t)
	mo := f.allocated()

	mos, total, err := f.svc.Order.List(f.ctx, 1, 10, map[string]string{"status": "rm_allocated,in_progress"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, mos, 1)
	assert.Equal(t, mo.ID, mos[0].ID)

	events, err := f.svc.Order.Events(f.ctx, mo.ID)
	require.NoError(t, err)
	var actions []string
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{"create", "submit", "gm_approve", "reserve", "reserve", "reserve", "allocate_rm"}, actions)
	last := events[len(events)-1]
	assert.Equal(t, entity.MOStatusGMApproved, last.FromStatus)
	assert.Equal(t, entity.MOStatusRMAllocated, last.ToStatus)
}

func setStock(t *testing.T, f *fixture, code string, kg float64) {
	t.Helper()
	require.NoError(t, f.repos.Product.SetStock(f.ctx, code, kg))
}

func setLooseFG(t *testing.T, f *fixture, units int) {
	t.Helper()
	require.NoError(t, f.db.Model(&entity.FGStock{}).Where("product_code = ?", productCode).Update("loose_units", units).Error)
}
