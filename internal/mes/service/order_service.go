package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// stockLockKey 原料可用量在各MO间共享，建单与预留原料串行执行。
// 需要同时持有MO锁时先取本锁
const stockLockKey = "stock:rm"

// OrderService 生产订单服务
type OrderService struct {
	core *core
}

// CreateOrderRequest 创建MO请求
type CreateOrderRequest struct {
	ProductCode         string     `json:"product_code" binding:"required"`
	Quantity            int        `json:"quantity" binding:"required"`
	TolerancePercentage float64    `json:"tolerance_percentage"`
	Priority            string     `json:"priority"`
	PlannedStartDate    *time.Time `json:"planned_start_date"`
	PlannedEndDate      *time.Time `json:"planned_end_date"`
	Notes               string     `json:"notes"`
	// OnShortage 覆盖配置的缺料处理方式：reject / partial / draft_po
	OnShortage string `json:"on_shortage"`
}

// CreateOrderResult 创建结果，含需求计算与缺料采购草稿
type CreateOrderResult struct {
	Order             *entity.ManufacturingOrder   `json:"order"`
	RequestedQuantity int                          `json:"requested_quantity"`
	Partial           bool                         `json:"partial"`
	Requirement       engine.Requirement           `json:"requirement"`
	Materials         []engine.MaterialRequirement `json:"materials"`
	PurchaseDrafts    []entity.PurchaseDraft       `json:"purchase_drafts"`
}

// ApproveRequest 审批请求
type ApproveRequest struct {
	Notes      string `json:"notes"`
	DeferStart bool   `json:"defer_start"`
}

// Create 创建草稿MO：计算原料需求，缺料时按处理方式拒绝、部分下单或生成采购草稿
func (s *OrderService) Create(ctx context.Context, actor engine.Actor, req CreateOrderRequest) (*CreateOrderResult, error) {
	res, err := s.create(ctx, actor, req)
	if err != nil {
		s.core.fail("create_order", req.ProductCode, err)
		return nil, err
	}
	return res, nil
}

func (s *OrderService) create(ctx context.Context, actor engine.Actor, req CreateOrderRequest) (*CreateOrderResult, error) {
	if err := actor.Require("create manufacturing order", engine.RolesCreateOrder...); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ProductCode) == "" {
		return nil, &engine.ValidationError{Field: "product_code", Message: "is required"}
	}
	if req.Quantity <= 0 {
		return nil, &engine.ValidationError{Field: "quantity", Message: fmt.Sprintf("must be positive, got %d", req.Quantity)}
	}
	if req.Priority == "" {
		req.Priority = entity.PriorityMedium
	}
	if !entity.ValidPriority(req.Priority) {
		return nil, &engine.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", req.Priority)}
	}
	mode := req.OnShortage
	if mode == "" {
		mode = s.core.onShortage
	}
	switch mode {
	case OnShortageReject, OnShortagePartial, OnShortageDraftPO:
	default:
		return nil, &engine.ValidationError{Field: "on_shortage", Message: fmt.Sprintf("unknown mode %q", mode)}
	}

	unlock, err := s.core.locker.Lock(ctx, stockLockKey)
	if err != nil {
		return nil, fmt.Errorf("create_order: acquire lock: %w", err)
	}
	defer unlock()

	var (
		u   *unit
		res *CreateOrderResult
	)
	err = s.core.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		p := s.core.providers(tx)
		spec, err := p.Products.GetProductSpec(ctx, req.ProductCode)
		if err != nil {
			return notFoundAs(err, "product", req.ProductCode)
		}
		if err := engine.ValidateSpec(spec); err != nil {
			return err
		}
		loose, err := p.FGStock.LooseUnitsAvailable(ctx, spec.Code)
		if err != nil {
			return fmt.Errorf("查询成品库存失败: %w", err)
		}

		requirement, err := engine.ComputeRequirement(req.Quantity, spec.GramsPerUnit, req.TolerancePercentage, loose, spec.TotalAvailableKg())
		if err != nil {
			return err
		}
		materials, err := engine.ComputeMaterialSplit(requirement.ManufactureQuantity, req.TolerancePercentage, spec.Materials)
		if err != nil {
			return err
		}
		shortageErr := engine.FirstShortage(materials)

		quantity := req.Quantity
		partial := false
		if shortageErr != nil {
			switch mode {
			case OnShortageReject:
				return shortageErr
			case OnShortagePartial:
				quantity = engine.FulfillableQuantity(spec.Materials, req.TolerancePercentage, loose)
				if quantity > req.Quantity {
					quantity = req.Quantity
				}
				if quantity <= 0 {
					return shortageErr
				}
				partial = true
				requirement, err = engine.ComputeRequirement(quantity, spec.GramsPerUnit, req.TolerancePercentage, loose, spec.TotalAvailableKg())
				if err != nil {
					return err
				}
			}
		}

		now := time.Now()
		code, err := tx.Order.GenerateCode(ctx, now)
		if err != nil {
			return fmt.Errorf("生成MO编号失败: %w", err)
		}
		mo := &entity.ManufacturingOrder{
			ID:                  uuid.New().String(),
			MOCode:              code,
			ProductCode:         spec.Code,
			ProductName:         spec.Name,
			Quantity:            quantity,
			ManufactureQuantity: requirement.ManufactureQuantity,
			FGReservedUnits:     requirement.LooseFGUsed,
			TolerancePercentage: req.TolerancePercentage,
			Priority:            req.Priority,
			PriorityLevel:       entity.PriorityLevel(req.Priority),
			Status:              entity.MOStatusDraft,
			PlannedStartDate:    req.PlannedStartDate,
			PlannedEndDate:      req.PlannedEndDate,
			RMRequiredKg:        requirement.RequiredKg,
			Notes:               req.Notes,
			CreatedBy:           actor.UserID,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.Order.Create(ctx, mo); err != nil {
			return fmt.Errorf("创建生产订单失败: %w", err)
		}

		u = &unit{ctx: ctx, tx: tx, p: p, mo: mo, actor: actor, now: now}
		if err := u.record(entity.EventEntityOrder, mo.MOCode, "create", "", entity.MOStatusDraft, map[string]interface{}{
			"requested_quantity":   req.Quantity,
			"quantity":             quantity,
			"manufacture_quantity": requirement.ManufactureQuantity,
			"loose_fg_used":        requirement.LooseFGUsed,
			"rm_required_kg":       requirement.RequiredKg,
			"on_shortage":          mode,
		}, ""); err != nil {
			return err
		}

		res = &CreateOrderResult{
			Order:             mo,
			RequestedQuantity: req.Quantity,
			Partial:           partial,
			Requirement:       requirement,
			Materials:         materials,
			PurchaseDrafts:    []entity.PurchaseDraft{},
		}
		if shortageErr == nil {
			return nil
		}
		// 缺料部分转采购草稿，数量按原始需求计算
		for _, m := range materials {
			if m.ShortageKg <= 0 {
				continue
			}
			draft, err := p.Purchases.DraftPurchase(ctx, mo, m.Code, m.ShortageKg, actor.UserID)
			if err != nil {
				return fmt.Errorf("生成采购草稿失败: %w", err)
			}
			res.PurchaseDrafts = append(res.PurchaseDrafts, *draft)
			if err := u.record(entity.EventEntityOrder, mo.MOCode, "draft_purchase", "", "", map[string]interface{}{
				"draft_code":    draft.DraftCode,
				"material_code": m.Code,
				"shortage_kg":   m.ShortageKg,
			}, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.transitions = append(u.transitions, orderTransition{action: "create", to: entity.MOStatusDraft})
	s.core.commit("create_order", u)
	return res, nil
}

// Submit 提交审批
func (s *OrderService) Submit(ctx context.Context, actor engine.Actor, moRef string) (*entity.ManufacturingOrder, error) {
	return s.core.withOrder(ctx, actor, moRef, "submit", func(u *unit) error {
		if err := actor.Require("submit manufacturing order", engine.RolesCreateOrder...); err != nil {
			return err
		}
		return u.transition(engine.ActionSubmit, nil, "")
	})
}

// GMApprove 总经理审批
func (s *OrderService) GMApprove(ctx context.Context, actor engine.Actor, moRef, notes string) (*entity.ManufacturingOrder, error) {
	return s.core.withOrder(ctx, actor, moRef, "gm_approve", func(u *unit) error {
		if err := actor.Require("gm approve manufacturing order", engine.RolesGMApprove...); err != nil {
			return err
		}
		return u.transition(engine.ActionGMApprove, nil, notes)
	})
}

// AllocateRM 按原料预留RM及散货成品
func (s *OrderService) AllocateRM(ctx context.Context, actor engine.Actor, moRef string) (*entity.ManufacturingOrder, error) {
	return s.core.withStockOrder(ctx, actor, moRef, "allocate_rm", func(u *unit) error {
		if err := actor.Require("allocate raw material", engine.RolesAllocateRM...); err != nil {
			return err
		}
		if _, err := engine.NextOrderStatus(u.mo, engine.ActionAllocateRM); err != nil {
			return err
		}
		if err := u.allocate(); err != nil {
			return err
		}
		return u.transition(engine.ActionAllocateRM, map[string]interface{}{
			"rm_required_kg":    u.mo.RMRequiredKg,
			"fg_reserved_units": u.mo.FGReservedUnits,
		}, "")
	})
}

// Approve 审批通过：锁定已预留原料、实例化工序并开始生产；DeferStart 时停在 mo_approved
func (s *OrderService) Approve(ctx context.Context, actor engine.Actor, moRef string, req ApproveRequest) (*entity.ManufacturingOrder, error) {
	return s.core.withOrder(ctx, actor, moRef, "approve", func(u *unit) error {
		if err := actor.Require("approve manufacturing order", engine.RolesApprove...); err != nil {
			return err
		}
		action := engine.ActionApprove
		if req.DeferStart {
			action = engine.ActionApproveDeferred
		}
		if _, err := engine.NextOrderStatus(u.mo, action); err != nil {
			return err
		}
		locked, err := u.lockReserved()
		if err != nil {
			return err
		}
		processes, err := u.initializeProcesses()
		if err != nil {
			return err
		}
		u.mo.ApprovalNotes = req.Notes
		if !req.DeferStart {
			u.mo.ActualStartDate = &u.now
		}
		return u.transition(action, map[string]interface{}{
			"locked_rm_kg": locked,
			"processes":    len(processes),
		}, req.Notes)
	})
}

// StartProduction mo_approved 开始生产，不再重新校验原料
func (s *OrderService) StartProduction(ctx context.Context, actor engine.Actor, moRef string) (*entity.ManufacturingOrder, error) {
	return s.core.withOrder(ctx, actor, moRef, "start_production", func(u *unit) error {
		if err := actor.Require("start production", engine.RolesApprove...); err != nil {
			return err
		}
		if _, err := engine.NextOrderStatus(u.mo, engine.ActionStartProduction); err != nil {
			return err
		}
		if _, err := u.initializeProcesses(); err != nil {
			return err
		}
		u.mo.ActualStartDate = &u.now
		return u.transition(engine.ActionStartProduction, nil, "")
	})
}

// Reject 驳回，释放全部台账
func (s *OrderService) Reject(ctx context.Context, actor engine.Actor, moRef, reason string) (*entity.ManufacturingOrder, error) {
	return s.core.withOrder(ctx, actor, moRef, "reject", func(u *unit) error {
		if err := actor.Require("reject manufacturing order", engine.RolesApprove...); err != nil {
			return err
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return &engine.ValidationError{Field: "reason", Message: "is required"}
		}
		if _, err := engine.NextOrderStatus(u.mo, engine.ActionReject); err != nil {
			return err
		}
		released, err := u.releaseAll(reason)
		if err != nil {
			return err
		}
		u.mo.RejectionReason = reason
		return u.transition(engine.ActionReject, map[string]interface{}{"released": released}, reason)
	})
}

// Hold 暂停：保留台账，生产中的工序一并暂停
func (s *OrderService) Hold(ctx context.Context, actor engine.Actor, moRef, reason string) (*entity.ManufacturingOrder, error) {
	return s.core.withOrder(ctx, actor, moRef, "hold", func(u *unit) error {
		if err := actor.Require("hold manufacturing order", engine.RolesShopFloor...); err != nil {
			return err
		}
		if _, err := engine.NextOrderStatus(u.mo, engine.ActionHold); err != nil {
			return err
		}
		processes, err := u.tx.Process.FindByMO(u.ctx, u.mo.ID)
		if err != nil {
			return fmt.Errorf("查询工序失败: %w", err)
		}
		for i := range processes {
			pe := &processes[i]
			if pe.Status != entity.ProcessStatusInProgress {
				continue
			}
			pe.HeldByOrder = true
			if err := u.setProcessStatus(pe, entity.ProcessStatusOnHold, "hold", reason); err != nil {
				return err
			}
		}
		u.mo.HeldFromStatus = u.mo.Status
		return u.transition(engine.ActionHold, nil, reason)
	})
}

// Resume 从暂停或停产恢复到之前的状态。停产恢复需重新预留原料，
// 已开工的还要重新锁定并解冻批次
func (s *OrderService) Resume(ctx context.Context, actor engine.Actor, moRef, comment string) (*entity.ManufacturingOrder, error) {
	return s.core.withStockOrder(ctx, actor, moRef, "resume", func(u *unit) error {
		if err := actor.Require("resume manufacturing order", engine.RolesShopFloor...); err != nil {
			return err
		}
		if _, err := engine.NextOrderStatus(u.mo, engine.ActionResume); err != nil {
			return err
		}
		processes, err := u.tx.Process.FindByMO(u.ctx, u.mo.ID)
		if err != nil {
			return fmt.Errorf("查询工序失败: %w", err)
		}
		target := engine.ResumeTarget(u.mo, len(processes) > 0)

		fromHold := u.mo.Status == entity.MOStatusOnHold
		if u.mo.Status == entity.MOStatusStopped {
			if err := u.allocate(); err != nil {
				return err
			}
			if len(processes) > 0 {
				if _, err := u.lockReserved(); err != nil {
					return err
				}
			}
			// 工序实例化前登记的批次同样在停产时被冻结
			if _, err := u.tx.Batch.UnblockByMO(u.ctx, u.mo.ID); err != nil {
				return fmt.Errorf("解冻批次失败: %w", err)
			}
		}
		for i := range processes {
			pe := &processes[i]
			// 单独暂停的工序保持暂停
			if !fromHold || pe.Status != entity.ProcessStatusOnHold || !pe.HeldByOrder {
				continue
			}
			if err := u.setProcessStatus(pe, pe.HeldFromStatus, "resume", comment); err != nil {
				return err
			}
		}
		u.mo.HeldFromStatus = ""
		return u.moveTo(string(engine.ActionResume), target, nil, comment)
	})
}

// Cancel 取消：释放全部台账，未完成工序置为 stopped
func (s *OrderService) Cancel(ctx context.Context, actor engine.Actor, moRef, reason string) (*entity.ManufacturingOrder, error) {
	return s.core.withOrder(ctx, actor, moRef, "cancel", func(u *unit) error {
		if err := actor.Require("cancel manufacturing order", engine.RolesApprove...); err != nil {
			return err
		}
		if _, err := engine.NextOrderStatus(u.mo, engine.ActionCancel); err != nil {
			return err
		}
		released, err := u.releaseAll(reason)
		if err != nil {
			return err
		}
		processes, err := u.tx.Process.FindByMO(u.ctx, u.mo.ID)
		if err != nil {
			return fmt.Errorf("查询工序失败: %w", err)
		}
		for i := range processes {
			pe := &processes[i]
			if pe.Status == entity.ProcessStatusCompleted || pe.Status == entity.ProcessStatusStopped {
				continue
			}
			if err := u.setProcessStatus(pe, entity.ProcessStatusStopped, "cancel", reason); err != nil {
				return err
			}
		}
		u.mo.HeldFromStatus = ""
		return u.transition(engine.ActionCancel, map[string]interface{}{"released": released}, reason)
	})
}

// Complete 所有工序完成后手工完工
func (s *OrderService) Complete(ctx context.Context, actor engine.Actor, moRef string) (*entity.ManufacturingOrder, error) {
	return s.core.withOrder(ctx, actor, moRef, "complete", func(u *unit) error {
		if err := actor.Require("complete manufacturing order", engine.RolesShopFloor...); err != nil {
			return err
		}
		if _, err := engine.NextOrderStatus(u.mo, engine.ActionComplete); err != nil {
			return err
		}
		processes, err := u.tx.Process.FindByMO(u.ctx, u.mo.ID)
		if err != nil {
			return fmt.Errorf("查询工序失败: %w", err)
		}
		if !engine.AllProcessesCompleted(processes) {
			return &engine.TransitionError{
				Entity: "manufacturing order",
				ID:     u.mo.MOCode,
				From:   u.mo.Status,
				Action: "complete with unfinished processes",
			}
		}
		return u.completeOrder("")
	})
}

// InitializeProcesses 实例化工序，幂等
func (s *OrderService) InitializeProcesses(ctx context.Context, actor engine.Actor, moRef string) ([]entity.ProcessExecution, error) {
	var processes []entity.ProcessExecution
	_, err := s.core.withOrder(ctx, actor, moRef, "initialize_processes", func(u *unit) error {
		if err := actor.Require("initialize processes", engine.RolesApprove...); err != nil {
			return err
		}
		switch u.mo.Status {
		case entity.MOStatusMOApproved, entity.MOStatusInProgress:
		default:
			return &engine.TransitionError{Entity: "manufacturing order", ID: u.mo.MOCode, From: u.mo.Status, Action: "initialize processes"}
		}
		var err error
		processes, err = u.initializeProcesses()
		return err
	})
	if err != nil {
		return nil, err
	}
	return processes, nil
}

// Get MO详情，含工序、子步骤、批次及批次台账
func (s *OrderService) Get(ctx context.Context, moRef string) (*entity.ManufacturingOrder, error) {
	mo, err := s.core.repos.Order.FindDetail(ctx, moRef)
	if err != nil {
		return nil, s.core.notFound("manufacturing order", moRef, err)
	}
	return mo, nil
}

// List 分页查询
func (s *OrderService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ManufacturingOrder, int64, error) {
	return s.core.repos.Order.FindAll(ctx, page, pageSize, filters)
}

// Events MO操作日志
func (s *OrderService) Events(ctx context.Context, moRef string) ([]entity.MOEvent, error) {
	id, err := s.core.resolveOrderID(ctx, moRef)
	if err != nil {
		return nil, err
	}
	return s.core.repos.Event.FindByMO(ctx, id)
}

// setProcessStatus 随MO暂停、恢复、取消联动的工序状态变更
func (u *unit) setProcessStatus(pe *entity.ProcessExecution, to, action, comment string) error {
	from := pe.Status
	switch to {
	case entity.ProcessStatusOnHold:
		pe.HeldFromStatus = from
	default:
		pe.HeldFromStatus = ""
		pe.HeldByOrder = false
	}
	pe.Status = to
	pe.UpdatedAt = u.now
	if err := u.tx.Process.Save(u.ctx, pe); err != nil {
		return fmt.Errorf("更新工序失败: %w", err)
	}
	return u.record(entity.EventEntityProcess, pe.ID, action, from, to, map[string]interface{}{
		"process_name": pe.ProcessName,
	}, comment)
}
