package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// QueueService 生产优先级队列与停产流程
type QueueService struct {
	core *core
}

// StopResult 停产结果
type StopResult struct {
	Order          *entity.ManufacturingOrder `json:"order"`
	Impact         engine.StopImpact          `json:"impact"`
	Released       map[string]int             `json:"released"`
	BlockedBatches int64                      `json:"blocked_batches"`
}

// ListQueue 按优先级、计划开始时间、创建时间排序的生产队列
func (s *QueueService) ListQueue(ctx context.Context, statusFilter []string) ([]entity.ManufacturingOrder, error) {
	statuses, err := engine.NormalizeQueueFilter(statusFilter)
	if err != nil {
		return nil, err
	}
	mos, err := s.core.repos.Order.FindByStatuses(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("查询生产队列失败: %w", err)
	}
	engine.SortQueue(mos)
	return mos, nil
}

// CanBeStopped MO当前是否可停产
func (s *QueueService) CanBeStopped(ctx context.Context, moRef string) (bool, error) {
	mo, err := s.core.repos.Order.FindByID(ctx, moRef)
	if err != nil {
		return false, s.core.notFound("manufacturing order", moRef, err)
	}
	return engine.CanBeStopped(mo), nil
}

// PreviewStop 停产影响预览，不做任何修改
func (s *QueueService) PreviewStop(ctx context.Context, moRef string) (*engine.StopImpact, error) {
	mo, err := s.core.repos.Order.FindByID(ctx, moRef)
	if err != nil {
		return nil, s.core.notFound("manufacturing order", moRef, err)
	}
	impact, err := stopImpact(ctx, s.core.repos, mo)
	if err != nil {
		return nil, err
	}
	return &impact, nil
}

func stopImpact(ctx context.Context, repos *repository.Repositories, mo *entity.ManufacturingOrder) (engine.StopImpact, error) {
	entries, err := repos.Resource.FindByMO(ctx, mo.ID, true)
	if err != nil {
		return engine.StopImpact{}, fmt.Errorf("查询资源台账失败: %w", err)
	}
	batches, err := repos.Batch.FindByMO(ctx, mo.ID)
	if err != nil {
		return engine.StopImpact{}, fmt.Errorf("查询批次失败: %w", err)
	}
	processes, err := repos.Process.FindByMO(ctx, mo.ID)
	if err != nil {
		return engine.StopImpact{}, fmt.Errorf("查询工序失败: %w", err)
	}
	return engine.BuildStopImpact(mo, entries, batches, processes), nil
}

// Stop 停产：释放全部台账、冻结未开工批次，在制批次可继续完成
func (s *QueueService) Stop(ctx context.Context, actor engine.Actor, moRef, reason string) (*StopResult, error) {
	res := &StopResult{}
	mo, err := s.core.withOrder(ctx, actor, moRef, "stop", func(u *unit) error {
		if err := actor.Require("stop manufacturing order", engine.RolesShopFloor...); err != nil {
			return err
		}
		if err := engine.ValidateStopReason(reason, s.core.policy.StopReasonMinLength); err != nil {
			return err
		}
		if _, err := engine.NextOrderStatus(u.mo, engine.ActionStop); err != nil {
			return err
		}
		impact, err := stopImpact(u.ctx, u.tx, u.mo)
		if err != nil {
			return err
		}
		released, err := u.releaseAll(reason)
		if err != nil {
			return err
		}
		blockedIDs := make([]string, 0, len(impact.BlockedBatches))
		batches, err := u.tx.Batch.FindByMO(u.ctx, u.mo.ID)
		if err != nil {
			return fmt.Errorf("查询批次失败: %w", err)
		}
		blocked := make(map[string]bool, len(impact.BlockedBatches))
		for _, b := range impact.BlockedBatches {
			blocked[b.BatchID] = true
		}
		for _, b := range batches {
			if blocked[b.BatchCode] {
				blockedIDs = append(blockedIDs, b.ID)
			}
		}
		n, err := u.tx.Batch.SetBlocked(u.ctx, blockedIDs, true)
		if err != nil {
			return fmt.Errorf("冻结批次失败: %w", err)
		}

		reason = strings.TrimSpace(reason)
		u.mo.HeldFromStatus = u.mo.Status
		u.mo.StopReason = reason
		res.Impact = impact
		res.Released = released
		res.BlockedBatches = n
		return u.transition(engine.ActionStop, map[string]interface{}{
			"released":        released,
			"blocked_batches": n,
			"in_progress":     len(impact.ContinuingBatches),
		}, reason)
	})
	if err != nil {
		return nil, err
	}
	s.core.metrics.RecordStop()
	res.Order = mo
	return res, nil
}

// SetPriority 调整优先级并记录原因
func (s *QueueService) SetPriority(ctx context.Context, actor engine.Actor, moRef, priority, reason string) (*entity.ManufacturingOrder, error) {
	return s.core.withOrder(ctx, actor, moRef, "set_priority", func(u *unit) error {
		if err := actor.Require("set priority", engine.RolesPrioritize...); err != nil {
			return err
		}
		if !entity.ValidPriority(priority) {
			return &engine.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", priority)}
		}
		if u.mo.IsTerminal() {
			return &engine.TransitionError{Entity: "manufacturing order", ID: u.mo.MOCode, From: u.mo.Status, Action: "set priority"}
		}
		if u.mo.Priority == priority {
			return nil
		}
		from := u.mo.Priority
		u.mo.Priority = priority
		u.mo.PriorityLevel = entity.PriorityLevel(priority)
		if err := u.saveOrder(); err != nil {
			return err
		}
		return u.record(entity.EventEntityOrder, u.mo.MOCode, "set_priority", u.mo.Status, u.mo.Status, map[string]interface{}{
			"from": from,
			"to":   priority,
		}, reason)
	})
}
