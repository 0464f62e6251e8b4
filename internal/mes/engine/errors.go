package engine

import (
	"errors"
	"fmt"
	"strings"
)

// 业务错误哨兵，具体错误类型均可通过 errors.Is 匹配
var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidProductSpec     = errors.New("invalid product spec")
	ErrBatchesIncomplete      = errors.New("batches incomplete")
	ErrStepsIncomplete        = errors.New("steps incomplete")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrNotFound               = errors.New("not found")
)

// TransitionError 状态不允许执行该操作
type TransitionError struct {
	Entity string
	ID     string
	From   string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: action %q not allowed from status %q", e.Entity, e.ID, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// ValidationError 参数校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// InvalidProductSpecError 产品主数据不合法
type InvalidProductSpecError struct {
	ProductCode string
	Reason      string
}

func (e *InvalidProductSpecError) Error() string {
	if e.ProductCode == "" {
		return "invalid product spec: " + e.Reason
	}
	return fmt.Sprintf("invalid product spec %s: %s", e.ProductCode, e.Reason)
}

func (e *InvalidProductSpecError) Unwrap() error { return ErrInvalidProductSpec }

// BatchesIncompleteError 仍有批次未完成该工序
type BatchesIncompleteError struct {
	ProcessExecutionID string
	BatchIDs           []string
}

func (e *BatchesIncompleteError) Error() string {
	return fmt.Sprintf("process %s: %d batches incomplete: %s",
		e.ProcessExecutionID, len(e.BatchIDs), strings.Join(e.BatchIDs, ", "))
}

func (e *BatchesIncompleteError) Unwrap() error { return ErrBatchesIncomplete }

// StepsIncompleteError 工序子步骤未全部完成
type StepsIncompleteError struct {
	ProcessExecutionID string
	Count              int
}

func (e *StepsIncompleteError) Error() string {
	return fmt.Sprintf("process %s: %d steps incomplete", e.ProcessExecutionID, e.Count)
}

func (e *StepsIncompleteError) Unwrap() error { return ErrStepsIncomplete }

// InsufficientStockError 原料不足。属于提示性错误，调用方可选择部分下单并转采购
type InsufficientStockError struct {
	Reference   string
	RequiredKg  float64
	AvailableKg float64
	ShortageKg  float64
}

func (e *InsufficientStockError) Error() string {
	ref := e.Reference
	if ref == "" {
		ref = "raw material"
	}
	return fmt.Sprintf("insufficient stock for %s: required %.4f kg, available %.4f kg, shortage %.4f kg",
		ref, e.RequiredKg, e.AvailableKg, e.ShortageKg)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// UnauthorizedError 操作人无权限
type UnauthorizedError struct {
	UserID string
	Action string
	Need   []string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %q may not %s (requires one of: %s)", e.UserID, e.Action, strings.Join(e.Need, ", "))
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// NotFoundError 对象不存在
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
