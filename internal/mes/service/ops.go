package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// loadSpec 读取并校验产品BOM
func (u *unit) loadSpec(productCode string) (*engine.ProductSpec, error) {
	spec, err := u.p.Products.GetProductSpec(u.ctx, productCode)
	if err != nil {
		return nil, notFoundAs(err, "product", productCode)
	}
	if err := engine.ValidateSpec(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// initializeProcesses 按BOM实例化工序执行，已实例化时直接返回
func (u *unit) initializeProcesses() ([]entity.ProcessExecution, error) {
	existing, err := u.tx.Process.FindByMO(u.ctx, u.mo.ID)
	if err != nil {
		return nil, fmt.Errorf("查询工序失败: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	spec, err := u.loadSpec(u.mo.ProductCode)
	if err != nil {
		return nil, err
	}

	processes := make([]entity.ProcessExecution, 0, len(spec.Processes))
	for _, tpl := range spec.Processes {
		weight := tpl.Weight
		if weight <= 0 {
			weight = 1
		}
		pe := entity.ProcessExecution{
			ID:            uuid.New().String(),
			MOID:          u.mo.ID,
			ProcessName:   tpl.Name,
			WorkCenter:    tpl.WorkCenter,
			SequenceOrder: tpl.Sequence,
			Weight:        weight,
			Status:        entity.ProcessStatusPending,
			CreatedAt:     u.now,
			UpdatedAt:     u.now,
		}
		for i, name := range tpl.Steps {
			pe.Steps = append(pe.Steps, entity.ProcessStep{
				ID:                 uuid.New().String(),
				ProcessExecutionID: pe.ID,
				Name:               name,
				Sequence:           i + 1,
				Status:             entity.StepStatusPending,
				CreatedAt:          u.now,
				UpdatedAt:          u.now,
			})
		}
		processes = append(processes, pe)
	}
	if err := u.tx.Process.CreateAll(u.ctx, processes); err != nil {
		return nil, fmt.Errorf("创建工序失败: %w", err)
	}

	// 已存在的批次补建台账
	batches, err := u.tx.Batch.FindByMO(u.ctx, u.mo.ID)
	if err != nil {
		return nil, fmt.Errorf("查询批次失败: %w", err)
	}
	var entries []entity.BatchProcessEntry
	for _, b := range batches {
		entries = append(entries, ledgerEntries(b.ID, processes, u.now)...)
	}
	if err := u.tx.Batch.CreateEntries(u.ctx, entries); err != nil {
		return nil, fmt.Errorf("创建批次台账失败: %w", err)
	}

	names := make([]string, 0, len(processes))
	for _, pe := range processes {
		names = append(names, pe.ProcessName)
	}
	if err := u.record(entity.EventEntityOrder, u.mo.MOCode, "initialize_processes", "", "", map[string]interface{}{
		"processes": names,
	}, ""); err != nil {
		return nil, err
	}
	return processes, nil
}

func ledgerEntries(batchID string, processes []entity.ProcessExecution, now time.Time) []entity.BatchProcessEntry {
	entries := make([]entity.BatchProcessEntry, 0, len(processes))
	for _, pe := range processes {
		entries = append(entries, entity.BatchProcessEntry{
			ID:                 uuid.New().String(),
			BatchID:            batchID,
			ProcessExecutionID: pe.ID,
			SequenceOrder:      pe.SequenceOrder,
			Status:             entity.LedgerNotStarted,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}
	return entries
}

// allocate 按原料拆分预留原料，并预留散货成品
func (u *unit) allocate() error {
	mo := u.mo
	active, err := u.tx.Resource.FindByMO(u.ctx, mo.ID, true)
	if err != nil {
		return fmt.Errorf("查询资源台账失败: %w", err)
	}

	if mo.ManufactureQuantity > 0 {
		spec, err := u.loadSpec(mo.ProductCode)
		if err != nil {
			return err
		}
		reqs, err := engine.ComputeMaterialSplit(mo.ManufactureQuantity, mo.TolerancePercentage, spec.Materials)
		if err != nil {
			return err
		}
		if err := engine.FirstShortage(reqs); err != nil {
			return err
		}
		for _, r := range reqs {
			entry, err := u.reserve(active, entity.ResourceReservedRM, r.RequiredKg, r.Code)
			if err != nil {
				return err
			}
			active = append(active, *entry)
		}
	}

	if mo.FGReservedUnits > 0 {
		available, err := u.p.FGStock.LooseUnitsAvailable(u.ctx, mo.ProductCode)
		if err != nil {
			return fmt.Errorf("查询成品库存失败: %w", err)
		}
		if available < mo.FGReservedUnits {
			return &engine.InsufficientStockError{
				Reference:   mo.ProductCode,
				RequiredKg:  float64(mo.FGReservedUnits),
				AvailableKg: float64(available),
				ShortageKg:  float64(mo.FGReservedUnits - available),
			}
		}
		if _, err := u.reserve(active, entity.ResourceReservedFG, float64(mo.FGReservedUnits), mo.ProductCode); err != nil {
			return err
		}
	}
	return nil
}

// reserve 校验上限后写入一条预留台账
func (u *unit) reserve(active []entity.ResourceEntry, kind string, quantity float64, reference string) (*entity.ResourceEntry, error) {
	if err := engine.CheckReserve(u.mo, active, kind, quantity, reference); err != nil {
		return nil, err
	}
	qtyUnit, _ := engine.UnitFor(kind)
	entry := &entity.ResourceEntry{
		ID:        uuid.New().String(),
		MOID:      u.mo.ID,
		Kind:      kind,
		Quantity:  quantity,
		Unit:      qtyUnit,
		Reference: reference,
		Status:    entity.ResourceStatusActive,
		CreatedBy: u.actor.UserID,
		CreatedAt: u.now,
		UpdatedAt: u.now,
	}
	if err := u.tx.Resource.Create(u.ctx, entry); err != nil {
		return nil, fmt.Errorf("创建资源台账失败: %w", err)
	}
	if err := u.record(entity.EventEntityLedger, entry.ID, "reserve", "", entity.ResourceStatusActive, map[string]interface{}{
		"kind":      kind,
		"quantity":  quantity,
		"unit":      qtyUnit,
		"reference": reference,
	}, ""); err != nil {
		return nil, err
	}
	return entry, nil
}

// lockEntry 预留转锁定，累计已发放原料
func (u *unit) lockEntry(entry *entity.ResourceEntry) error {
	if err := engine.CheckLock(entry); err != nil {
		return err
	}
	from := entry.Kind
	entry.Kind = entity.ResourceLockedRM
	entry.LockedAt = &u.now
	entry.UpdatedAt = u.now
	if err := u.tx.Resource.Save(u.ctx, entry); err != nil {
		return fmt.Errorf("锁定原料失败: %w", err)
	}
	u.mo.RMReleasedKg = decimal.NewFromFloat(u.mo.RMReleasedKg).
		Add(decimal.NewFromFloat(entry.Quantity)).
		Round(4).InexactFloat64()
	return u.record(entity.EventEntityLedger, entry.ID, "lock", from, entity.ResourceLockedRM, map[string]interface{}{
		"quantity":  entry.Quantity,
		"reference": entry.Reference,
	}, "")
}

// lockReserved 锁定MO全部有效原料预留，返回锁定总量
func (u *unit) lockReserved() (float64, error) {
	active, err := u.tx.Resource.FindByMO(u.ctx, u.mo.ID, true)
	if err != nil {
		return 0, fmt.Errorf("查询资源台账失败: %w", err)
	}
	total := decimal.Zero
	for i := range active {
		if active[i].Kind != entity.ResourceReservedRM {
			continue
		}
		if err := u.lockEntry(&active[i]); err != nil {
			return 0, err
		}
		total = total.Add(decimal.NewFromFloat(active[i].Quantity))
	}
	return total.Round(4).InexactFloat64(), nil
}

// releaseAll 释放MO全部有效台账；实际释放条数与读取条数不一致时返回错误使事务回滚
func (u *unit) releaseAll(reason string) (map[string]int, error) {
	active, err := u.tx.Resource.FindByMO(u.ctx, u.mo.ID, true)
	if err != nil {
		return nil, fmt.Errorf("查询资源台账失败: %w", err)
	}
	counts := make(map[string]int)
	if len(active) == 0 {
		return counts, nil
	}
	ids := make([]string, 0, len(active))
	for _, e := range active {
		ids = append(ids, e.ID)
		counts[e.Kind]++
	}
	n, err := u.tx.Resource.ReleaseByIDs(u.ctx, ids, u.actor.UserID, u.now)
	if err != nil {
		return nil, fmt.Errorf("释放资源台账失败: %w", err)
	}
	if int(n) != len(ids) {
		return nil, fmt.Errorf("%w: released %d of %d ledger entries for %s", ErrConcurrentModification, n, len(ids), u.mo.MOCode)
	}
	for kind, c := range counts {
		u.released(kind, c)
	}
	if err := u.record(entity.EventEntityLedger, u.mo.MOCode, "release_all", entity.ResourceStatusActive, entity.ResourceStatusReleased, map[string]interface{}{
		"released": counts,
		"entries":  ids,
	}, reason); err != nil {
		return nil, err
	}
	return counts, nil
}

// refreshProgress 重新计算MO总进度，生产中只增不减
func (u *unit) refreshProgress(policy engine.Policy) error {
	processes, err := u.tx.Process.FindByMO(u.ctx, u.mo.ID)
	if err != nil {
		return fmt.Errorf("查询工序失败: %w", err)
	}
	progress := engine.MonotonicProgress(u.mo, engine.OverallProgress(processes, policy.ProgressWeighting))
	if progress == u.mo.OverallProgress {
		return nil
	}
	u.mo.OverallProgress = progress
	return u.saveOrder()
}

func findProcess(processes []entity.ProcessExecution, id string) *entity.ProcessExecution {
	for i := range processes {
		if processes[i].ID == id {
			return &processes[i]
		}
	}
	return nil
}

// loadProcess 读取MO全部工序并定位目标工序，返回的指针指向切片元素
func (u *unit) loadProcess(peID string) ([]entity.ProcessExecution, *entity.ProcessExecution, error) {
	processes, err := u.tx.Process.FindByMO(u.ctx, u.mo.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("查询工序失败: %w", err)
	}
	pe := findProcess(processes, peID)
	if pe == nil {
		return nil, nil, &engine.NotFoundError{Entity: "process execution", ID: peID}
	}
	return processes, pe, nil
}

// startProcess 启动工序，要求上一道工序已完成
func (u *unit) startProcess(processes []entity.ProcessExecution, pe *entity.ProcessExecution) error {
	if err := engine.CheckProcessStart(processes, pe); err != nil {
		return err
	}
	pe.Status = entity.ProcessStatusInProgress
	pe.ActualStartTime = &u.now
	pe.UpdatedAt = u.now
	if err := u.tx.Process.Save(u.ctx, pe); err != nil {
		return fmt.Errorf("更新工序失败: %w", err)
	}
	return u.record(entity.EventEntityProcess, pe.ID, "start", entity.ProcessStatusPending, entity.ProcessStatusInProgress, map[string]interface{}{
		"process_name":   pe.ProcessName,
		"sequence_order": pe.SequenceOrder,
	}, "")
}

// completeProcess 完成工序；最后一道工序完成且策略允许时MO随之完工
func (u *unit) completeProcess(policy engine.Policy, processes []entity.ProcessExecution, pe *entity.ProcessExecution, auto bool) error {
	from := pe.Status
	pe.Status = entity.ProcessStatusCompleted
	pe.ProgressPercentage = 100
	pe.AutoCompleted = auto
	pe.ActualEndTime = &u.now
	pe.UpdatedAt = u.now
	if err := u.tx.Process.Save(u.ctx, pe); err != nil {
		return fmt.Errorf("更新工序失败: %w", err)
	}
	action := "complete"
	if auto {
		action = "auto_complete"
	}
	if err := u.record(entity.EventEntityProcess, pe.ID, action, from, entity.ProcessStatusCompleted, map[string]interface{}{
		"process_name": pe.ProcessName,
	}, ""); err != nil {
		return err
	}

	if policy.AutoCompleteOrder && u.mo.Status == entity.MOStatusInProgress && engine.AllProcessesCompleted(processes) {
		return u.completeOrder("all processes completed")
	}
	return nil
}

// completeOrder MO完工
func (u *unit) completeOrder(comment string) error {
	if _, err := engine.NextOrderStatus(u.mo, engine.ActionComplete); err != nil {
		return err
	}
	u.mo.ActualEndDate = &u.now
	u.mo.OverallProgress = 100
	return u.transition(engine.ActionComplete, nil, comment)
}

// startBatchEntry 开始批次在某道工序上的生产，工序待开始时随之隐式启动。
// 台账已在生产中时原样返回
func (u *unit) startBatchEntry(batch *entity.Batch, processes []entity.ProcessExecution, pe *entity.ProcessExecution) (*entity.BatchProcessEntry, error) {
	entry := batch.EntryFor(pe.ID)
	if entry != nil && entry.Status == entity.LedgerInProgress {
		return entry, nil
	}
	if !engine.AllowsBatchStart(u.mo) {
		return nil, &engine.TransitionError{Entity: "manufacturing order", ID: u.mo.MOCode, From: u.mo.Status, Action: "start batch process"}
	}
	if err := engine.CheckBatchStart(batch, pe, engine.Predecessor(processes, pe)); err != nil {
		return nil, err
	}
	if pe.Status == entity.ProcessStatusPending {
		if err := u.startProcess(processes, pe); err != nil {
			return nil, err
		}
	}

	entry.Status = entity.LedgerInProgress
	entry.StartedBy = u.actor.UserID
	entry.StartedAt = &u.now
	entry.UpdatedAt = u.now
	if err := u.tx.Batch.SaveEntry(u.ctx, entry); err != nil {
		return nil, fmt.Errorf("更新批次台账失败: %w", err)
	}
	if err := u.record(entity.EventEntityBatch, batch.BatchCode, "start_process", entity.LedgerNotStarted, entity.LedgerInProgress, map[string]interface{}{
		"process_execution_id": pe.ID,
		"process_name":         pe.ProcessName,
	}, ""); err != nil {
		return nil, err
	}
	return entry, nil
}

func notFoundAs(err error, entityName, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return &engine.NotFoundError{Entity: entityName, ID: id}
	}
	return err
}
