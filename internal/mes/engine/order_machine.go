package engine

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// OrderAction MO状态机事件
type OrderAction string

const (
	ActionSubmit          OrderAction = "submit"
	ActionGMApprove       OrderAction = "gm_approve"
	ActionAllocateRM      OrderAction = "allocate_rm"
	ActionApprove         OrderAction = "approve"
	ActionApproveDeferred OrderAction = "approve_deferred"
	ActionStartProduction OrderAction = "start_production"
	ActionReject          OrderAction = "reject"
	ActionHold            OrderAction = "hold"
	ActionResume          OrderAction = "resume"
	ActionStop            OrderAction = "stop"
	ActionCancel          OrderAction = "cancel"
	ActionComplete        OrderAction = "complete"
)

type orderTransition struct {
	from []string
	to   string
}

// resume 的目标状态由 ResumeTarget 决定
var orderTransitions = map[OrderAction]orderTransition{
	ActionSubmit:          {from: []string{entity.MOStatusDraft}, to: entity.MOStatusSubmitted},
	ActionGMApprove:       {from: []string{entity.MOStatusSubmitted}, to: entity.MOStatusGMApproved},
	ActionAllocateRM:      {from: []string{entity.MOStatusGMApproved}, to: entity.MOStatusRMAllocated},
	ActionApprove:         {from: []string{entity.MOStatusRMAllocated}, to: entity.MOStatusInProgress},
	ActionApproveDeferred: {from: []string{entity.MOStatusRMAllocated}, to: entity.MOStatusMOApproved},
	ActionStartProduction: {from: []string{entity.MOStatusMOApproved}, to: entity.MOStatusInProgress},
	ActionReject:          {from: []string{entity.MOStatusSubmitted, entity.MOStatusMOApproved}, to: entity.MOStatusRejected},
	ActionHold:            {from: []string{entity.MOStatusRMAllocated, entity.MOStatusInProgress}, to: entity.MOStatusOnHold},
	ActionResume:          {from: []string{entity.MOStatusOnHold, entity.MOStatusStopped}},
	ActionStop:            {from: []string{entity.MOStatusRMAllocated, entity.MOStatusInProgress}, to: entity.MOStatusStopped},
	ActionCancel:          {from: []string{entity.MOStatusOnHold, entity.MOStatusStopped}, to: entity.MOStatusCancelled},
	ActionComplete:        {from: []string{entity.MOStatusInProgress}, to: entity.MOStatusCompleted},
}

// NextOrderStatus 校验MO能否执行该动作并返回目标状态
func NextOrderStatus(mo *entity.ManufacturingOrder, action OrderAction) (string, error) {
	t, ok := orderTransitions[action]
	if !ok {
		return "", invalid("action", "unknown order action %q", action)
	}
	for _, from := range t.from {
		if mo.Status == from {
			return t.to, nil
		}
	}
	return "", &TransitionError{Entity: "manufacturing order", ID: mo.MOCode, From: mo.Status, Action: string(action)}
}

// ResumeTarget 恢复后的状态：回到暂停或停产前的状态；
// 没有记录时按是否已实例化工序决定回到生产中或已分配原料
func ResumeTarget(mo *entity.ManufacturingOrder, processesInitialized bool) string {
	if mo.HeldFromStatus != "" {
		return mo.HeldFromStatus
	}
	if processesInitialized {
		return entity.MOStatusInProgress
	}
	return entity.MOStatusRMAllocated
}

// AllowsBatchStart MO处于生产中才能开始新的批次工序
func AllowsBatchStart(mo *entity.ManufacturingOrder) bool {
	return mo.Status == entity.MOStatusInProgress
}

// AllowsBatchCompletion 停产或暂停时在制批次仍可完成
func AllowsBatchCompletion(mo *entity.ManufacturingOrder) bool {
	switch mo.Status {
	case entity.MOStatusInProgress, entity.MOStatusStopped, entity.MOStatusOnHold:
		return true
	}
	return false
}
