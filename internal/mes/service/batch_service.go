package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// BatchService 批次登记与批次工序台账
type BatchService struct {
	core *core
}

// CompletionResult 批次工序完成结果
type CompletionResult struct {
	BatchID              string  `json:"batch_id"`
	ProcessExecutionID   string  `json:"process_execution_id"`
	ProcessName          string  `json:"process_name"`
	ActualQuantity       float64 `json:"actual_quantity"`
	CompletionPercentage float64 `json:"completion_percentage"`
	CompletedBatches     int     `json:"completed_batches"`
	TotalBatches         int     `json:"total_batches"`
	AutoCompleted        bool    `json:"auto_completed"`
	ProcessStatus        string  `json:"process_status"`
	OrderStatus          string  `json:"order_status"`
	OverallProgress      float64 `json:"overall_progress"`
	// Replayed 重复提交，返回的是首次完成时的结果
	Replayed bool `json:"replayed"`
}

// batchLedgerStatuses 允许登记批次的MO状态
var batchLedgerStatuses = map[string]bool{
	entity.MOStatusRMAllocated: true,
	entity.MOStatusMOApproved:  true,
	entity.MOStatusInProgress:  true,
}

// CreateBatches 按计划重量登记批次，已实例化工序时同时建立台账
func (s *BatchService) CreateBatches(ctx context.Context, actor engine.Actor, moRef string, plannedKg []float64) ([]entity.Batch, error) {
	var created []entity.Batch
	_, err := s.core.withOrder(ctx, actor, moRef, "create_batches", func(u *unit) error {
		if err := actor.Require("create batches", engine.RolesCreateOrder...); err != nil {
			return err
		}
		if !batchLedgerStatuses[u.mo.Status] {
			return &engine.TransitionError{Entity: "manufacturing order", ID: u.mo.MOCode, From: u.mo.Status, Action: "create batches"}
		}
		if len(plannedKg) == 0 {
			return &engine.ValidationError{Field: "planned_quantities", Message: "at least one batch is required"}
		}
		for i, kg := range plannedKg {
			if kg <= 0 {
				return &engine.ValidationError{Field: "planned_quantities", Message: fmt.Sprintf("batch %d planned quantity must be positive, got %v", i+1, kg)}
			}
		}

		processes, err := u.tx.Process.FindByMO(u.ctx, u.mo.ID)
		if err != nil {
			return fmt.Errorf("查询工序失败: %w", err)
		}
		seq, err := u.tx.Batch.MaxSequence(u.ctx, u.mo.ID)
		if err != nil {
			return fmt.Errorf("查询批次序号失败: %w", err)
		}

		batches := make([]entity.Batch, 0, len(plannedKg))
		for _, kg := range plannedKg {
			seq++
			b := entity.Batch{
				ID:                uuid.New().String(),
				BatchCode:         fmt.Sprintf("%s-B%02d", u.mo.MOCode, seq),
				MOID:              u.mo.ID,
				Sequence:          seq,
				PlannedQuantityKg: kg,
				CreatedBy:         actor.UserID,
				CreatedAt:         u.now,
				UpdatedAt:         u.now,
			}
			b.Ledger = ledgerEntries(b.ID, processes, u.now)
			batches = append(batches, b)
		}
		if err := u.tx.Batch.CreateAll(u.ctx, batches); err != nil {
			return fmt.Errorf("创建批次失败: %w", err)
		}
		for _, b := range batches {
			if err := u.record(entity.EventEntityBatch, b.BatchCode, "create", "", entity.LedgerNotStarted, map[string]interface{}{
				"planned_quantity": b.PlannedQuantityKg,
				"sequence":         b.Sequence,
			}, ""); err != nil {
				return err
			}
		}
		created = batches
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// inBatch 通过批次定位MO后加锁执行，事务内重新读取批次及工序
func (s *BatchService) inBatch(ctx context.Context, actor engine.Actor, batchRef, peID, op string, fn func(u *unit, batch *entity.Batch, processes []entity.ProcessExecution, pe *entity.ProcessExecution) error) error {
	b, err := s.core.repos.Batch.FindByID(ctx, batchRef)
	if err != nil {
		err = s.core.notFound("batch", batchRef, err)
		s.core.fail(op, batchRef, err)
		return err
	}
	_, err = s.core.inOrder(ctx, actor, b.MOID, op, func(u *unit) error {
		batch, err := u.tx.Batch.FindByID(u.ctx, b.ID)
		if err != nil {
			return notFoundAs(err, "batch", batchRef)
		}
		processes, pe, err := u.loadProcess(peID)
		if err != nil {
			return err
		}
		if err := actor.CanOperateProcess(pe.AssignedSupervisor); err != nil {
			return err
		}
		return fn(u, batch, processes, pe)
	})
	return err
}

// StartBatchProcess 开始批次在某道工序上的生产；台账已在生产中时原样返回
func (s *BatchService) StartBatchProcess(ctx context.Context, actor engine.Actor, batchRef, peID string) (*entity.BatchProcessEntry, error) {
	var out entity.BatchProcessEntry
	err := s.inBatch(ctx, actor, batchRef, peID, "start_batch_process", func(u *unit, batch *entity.Batch, processes []entity.ProcessExecution, pe *entity.ProcessExecution) error {
		entry, err := u.startBatchEntry(batch, processes, pe)
		if err != nil {
			return err
		}
		out = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteBatchProcess 完成批次工序并重新计算工序完成度，达到阈值时工序自动完成。
// 台账已完成时返回首次完成的结果
func (s *BatchService) CompleteBatchProcess(ctx context.Context, actor engine.Actor, batchRef, peID string, actualQuantity float64) (*CompletionResult, error) {
	var res CompletionResult
	err := s.inBatch(ctx, actor, batchRef, peID, "complete_batch_process", func(u *unit, batch *entity.Batch, processes []entity.ProcessExecution, pe *entity.ProcessExecution) error {
		done, err := engine.CheckBatchComplete(batch, pe, actualQuantity)
		if err != nil {
			return err
		}
		entry := batch.EntryFor(pe.ID)
		if done {
			batches, err := u.tx.Batch.FindByMO(u.ctx, u.mo.ID)
			if err != nil {
				return fmt.Errorf("查询批次失败: %w", err)
			}
			res = u.completionResult(batch, pe, entry, engine.ComputeCompletion(pe.ID, batches))
			res.Replayed = true
			return nil
		}
		if !engine.AllowsBatchCompletion(u.mo) {
			return &engine.TransitionError{Entity: "manufacturing order", ID: u.mo.MOCode, From: u.mo.Status, Action: "complete batch process"}
		}

		entry.Status = entity.LedgerCompleted
		entry.ActualQuantity = actualQuantity
		entry.CompletedBy = u.actor.UserID
		entry.CompletedAt = &u.now
		entry.UpdatedAt = u.now
		if err := u.tx.Batch.SaveEntry(u.ctx, entry); err != nil {
			return fmt.Errorf("更新批次台账失败: %w", err)
		}
		// 批次产出以最后一道工序的实际产量为准
		if engine.BatchFinished(batch) {
			batch.ActualQuantityCompleted = actualQuantity
			batch.UpdatedAt = u.now
			if err := u.tx.Batch.Save(u.ctx, batch); err != nil {
				return fmt.Errorf("更新批次失败: %w", err)
			}
		}
		if err := u.record(entity.EventEntityBatch, batch.BatchCode, "complete_process", entity.LedgerInProgress, entity.LedgerCompleted, map[string]interface{}{
			"process_execution_id": pe.ID,
			"process_name":         pe.ProcessName,
			"actual_quantity":      actualQuantity,
		}, ""); err != nil {
			return err
		}

		batches, err := u.tx.Batch.FindByMO(u.ctx, u.mo.ID)
		if err != nil {
			return fmt.Errorf("查询批次失败: %w", err)
		}
		completion := engine.ComputeCompletion(pe.ID, batches)
		policy := s.core.policy

		auto := false
		switch pe.Status {
		case entity.ProcessStatusInProgress:
			if completion.ReachesThreshold(policy.AutoCompleteThreshold) {
				auto = true
				if err := u.completeProcess(policy, processes, pe, true); err != nil {
					return err
				}
				break
			}
			fallthrough
		case entity.ProcessStatusOnHold:
			pe.ProgressPercentage = completion.Percentage
			pe.UpdatedAt = u.now
			if err := u.tx.Process.Save(u.ctx, pe); err != nil {
				return fmt.Errorf("更新工序进度失败: %w", err)
			}
		}
		u.batchDone = append(u.batchDone, batchCompletion{process: pe.ProcessName, auto: auto})

		entry.CompletionPercentage = completion.Percentage
		entry.TriggeredAutoComplete = auto
		if err := u.tx.Batch.SaveEntry(u.ctx, entry); err != nil {
			return fmt.Errorf("更新批次台账失败: %w", err)
		}
		if err := u.refreshProgress(policy); err != nil {
			return err
		}
		res = u.completionResult(batch, pe, entry, completion)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (u *unit) completionResult(batch *entity.Batch, pe *entity.ProcessExecution, entry *entity.BatchProcessEntry, c engine.Completion) CompletionResult {
	return CompletionResult{
		BatchID:              batch.BatchCode,
		ProcessExecutionID:   pe.ID,
		ProcessName:          pe.ProcessName,
		ActualQuantity:       entry.ActualQuantity,
		CompletionPercentage: entry.CompletionPercentage,
		CompletedBatches:     c.CompletedBatches,
		TotalBatches:         c.TotalBatches,
		AutoCompleted:        entry.TriggeredAutoComplete,
		ProcessStatus:        pe.Status,
		OrderStatus:          u.mo.Status,
		OverallProgress:      u.mo.OverallProgress,
	}
}

// Get 批次详情（含台账）
func (s *BatchService) Get(ctx context.Context, batchRef string) (*entity.Batch, error) {
	b, err := s.core.repos.Batch.FindByID(ctx, batchRef)
	if err != nil {
		return nil, s.core.notFound("batch", batchRef, err)
	}
	return b, nil
}

// List MO的全部批次
func (s *BatchService) List(ctx context.Context, moRef string) ([]entity.Batch, error) {
	id, err := s.core.resolveOrderID(ctx, moRef)
	if err != nil {
		return nil, err
	}
	return s.core.repos.Batch.FindByMO(ctx, id)
}
