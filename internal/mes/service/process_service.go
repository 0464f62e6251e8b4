package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// ProcessService 工序执行服务
type ProcessService struct {
	core *core
}

// inProcess 通过工序ID定位MO后加锁执行
func (s *ProcessService) inProcess(ctx context.Context, actor engine.Actor, peID, op string, fn func(u *unit, processes []entity.ProcessExecution, pe *entity.ProcessExecution) error) error {
	pe, err := s.core.repos.Process.FindByID(ctx, peID)
	if err != nil {
		err = s.core.notFound("process execution", peID, err)
		s.core.fail(op, peID, err)
		return err
	}
	_, err = s.core.inOrder(ctx, actor, pe.MOID, op, func(u *unit) error {
		processes, target, err := u.loadProcess(peID)
		if err != nil {
			return err
		}
		return fn(u, processes, target)
	})
	return err
}

// Start 启动工序；已在生产中时直接返回。指定批次时同时开始该批次在本工序上的生产
func (s *ProcessService) Start(ctx context.Context, actor engine.Actor, peID, batchRef string) (*entity.ProcessExecution, error) {
	var out entity.ProcessExecution
	err := s.inProcess(ctx, actor, peID, "start_process", func(u *unit, processes []entity.ProcessExecution, pe *entity.ProcessExecution) error {
		if err := actor.CanOperateProcess(pe.AssignedSupervisor); err != nil {
			return err
		}
		if !engine.AllowsBatchStart(u.mo) {
			return &engine.TransitionError{Entity: "manufacturing order", ID: u.mo.MOCode, From: u.mo.Status, Action: "start process"}
		}
		if pe.Status != entity.ProcessStatusInProgress {
			if err := u.startProcess(processes, pe); err != nil {
				return err
			}
		}
		if batchRef != "" {
			batch, err := u.tx.Batch.FindByID(u.ctx, batchRef)
			if err != nil || batch.MOID != u.mo.ID {
				return &engine.NotFoundError{Entity: "batch", ID: batchRef}
			}
			if _, err := u.startBatchEntry(batch, processes, pe); err != nil {
				return err
			}
		}
		out = *pe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Complete 手工完成工序：子步骤与全部批次需已完成
func (s *ProcessService) Complete(ctx context.Context, actor engine.Actor, peID string) (*entity.ProcessExecution, error) {
	var out entity.ProcessExecution
	err := s.inProcess(ctx, actor, peID, "complete_process", func(u *unit, processes []entity.ProcessExecution, pe *entity.ProcessExecution) error {
		if err := actor.CanOperateProcess(pe.AssignedSupervisor); err != nil {
			return err
		}
		if !engine.AllowsBatchCompletion(u.mo) {
			return &engine.TransitionError{Entity: "manufacturing order", ID: u.mo.MOCode, From: u.mo.Status, Action: "complete process"}
		}
		batches, err := u.tx.Batch.FindByMO(u.ctx, u.mo.ID)
		if err != nil {
			return fmt.Errorf("查询批次失败: %w", err)
		}
		if err := engine.CheckProcessComplete(pe, engine.ComputeCompletion(pe.ID, batches)); err != nil {
			return err
		}
		policy := s.core.policy
		if err := u.completeProcess(policy, processes, pe, false); err != nil {
			return err
		}
		if err := u.refreshProgress(policy); err != nil {
			return err
		}
		out = *pe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteStep 完成工序子步骤，重复完成直接返回
func (s *ProcessService) CompleteStep(ctx context.Context, actor engine.Actor, peID, stepID string) (*entity.ProcessStep, error) {
	var out entity.ProcessStep
	err := s.inProcess(ctx, actor, peID, "complete_step", func(u *unit, _ []entity.ProcessExecution, pe *entity.ProcessExecution) error {
		if err := actor.CanOperateProcess(pe.AssignedSupervisor); err != nil {
			return err
		}
		var step *entity.ProcessStep
		for i := range pe.Steps {
			if pe.Steps[i].ID == stepID {
				step = &pe.Steps[i]
				break
			}
		}
		if step == nil {
			return &engine.NotFoundError{Entity: "process step", ID: stepID}
		}
		if step.Status == entity.StepStatusCompleted {
			out = *step
			return nil
		}
		if pe.Status != entity.ProcessStatusInProgress {
			return &engine.TransitionError{Entity: "process execution", ID: pe.ID, From: pe.Status, Action: "complete step " + step.Name}
		}
		step.Status = entity.StepStatusCompleted
		step.CompletedBy = actor.UserID
		step.CompletedAt = &u.now
		step.UpdatedAt = u.now
		if err := u.tx.Process.SaveStep(u.ctx, step); err != nil {
			return fmt.Errorf("更新工序步骤失败: %w", err)
		}
		if err := u.record(entity.EventEntityProcess, pe.ID, "complete_step", entity.StepStatusPending, entity.StepStatusCompleted, map[string]interface{}{
			"step_id":   step.ID,
			"step_name": step.Name,
		}, ""); err != nil {
			return err
		}
		out = *step
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignSupervisor 指派工序主管，被指派人须为该工作中心的主管
func (s *ProcessService) AssignSupervisor(ctx context.Context, actor engine.Actor, peID, userID string) (*entity.ProcessExecution, error) {
	var out entity.ProcessExecution
	err := s.inProcess(ctx, actor, peID, "assign_supervisor", func(u *unit, _ []entity.ProcessExecution, pe *entity.ProcessExecution) error {
		if err := actor.Require("assign supervisor", engine.RolesShopFloor...); err != nil {
			return err
		}
		if u.mo.IsTerminal() {
			return &engine.TransitionError{Entity: "manufacturing order", ID: u.mo.MOCode, From: u.mo.Status, Action: "assign supervisor"}
		}
		if userID == "" {
			return &engine.ValidationError{Field: "user_id", Message: "is required"}
		}
		ok, err := u.p.Roles.IsSupervisorAt(u.ctx, userID, pe.WorkCenter)
		if err != nil {
			return fmt.Errorf("查询主管授权失败: %w", err)
		}
		if !ok {
			return &engine.ValidationError{Field: "user_id", Message: fmt.Sprintf("%s is not a supervisor at work center %q", userID, pe.WorkCenter)}
		}
		var previous string
		if pe.AssignedSupervisor != nil {
			previous = *pe.AssignedSupervisor
		}
		pe.AssignedSupervisor = &userID
		pe.UpdatedAt = u.now
		if err := u.tx.Process.Save(u.ctx, pe); err != nil {
			return fmt.Errorf("更新工序失败: %w", err)
		}
		if err := u.record(entity.EventEntityProcess, pe.ID, "assign_supervisor", "", "", map[string]interface{}{
			"previous":   previous,
			"supervisor": userID,
		}, ""); err != nil {
			return err
		}
		out = *pe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Hold 暂停单道工序
func (s *ProcessService) Hold(ctx context.Context, actor engine.Actor, peID, reason string) (*entity.ProcessExecution, error) {
	var out entity.ProcessExecution
	err := s.inProcess(ctx, actor, peID, "hold_process", func(u *unit, _ []entity.ProcessExecution, pe *entity.ProcessExecution) error {
		if err := actor.Require("hold process", engine.RolesShopFloor...); err != nil {
			return err
		}
		if pe.Status != entity.ProcessStatusInProgress {
			return &engine.TransitionError{Entity: "process execution", ID: pe.ID, From: pe.Status, Action: "hold"}
		}
		if err := u.setProcessStatus(pe, entity.ProcessStatusOnHold, "hold", reason); err != nil {
			return err
		}
		out = *pe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Resume 恢复单道工序，MO需在生产中
func (s *ProcessService) Resume(ctx context.Context, actor engine.Actor, peID string) (*entity.ProcessExecution, error) {
	var out entity.ProcessExecution
	err := s.inProcess(ctx, actor, peID, "resume_process", func(u *unit, _ []entity.ProcessExecution, pe *entity.ProcessExecution) error {
		if err := actor.Require("resume process", engine.RolesShopFloor...); err != nil {
			return err
		}
		if pe.Status != entity.ProcessStatusOnHold {
			return &engine.TransitionError{Entity: "process execution", ID: pe.ID, From: pe.Status, Action: "resume"}
		}
		if u.mo.Status != entity.MOStatusInProgress {
			return &engine.TransitionError{Entity: "manufacturing order", ID: u.mo.MOCode, From: u.mo.Status, Action: "resume process"}
		}
		to := pe.HeldFromStatus
		if to == "" {
			to = entity.ProcessStatusInProgress
		}
		if err := u.setProcessStatus(pe, to, "resume", ""); err != nil {
			return err
		}
		out = *pe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get 工序详情
func (s *ProcessService) Get(ctx context.Context, peID string) (*entity.ProcessExecution, error) {
	pe, err := s.core.repos.Process.FindByID(ctx, peID)
	if err != nil {
		return nil, s.core.notFound("process execution", peID, err)
	}
	return pe, nil
}

// List MO的全部工序，按顺序
func (s *ProcessService) List(ctx context.Context, moRef string) ([]entity.ProcessExecution, error) {
	id, err := s.core.resolveOrderID(ctx, moRef)
	if err != nil {
		return nil, err
	}
	return s.core.repos.Process.FindByMO(ctx, id)
}
