package handler

import (
	"github.com/gin-gonic/gin"
)

// ExecutionHandler 工序执行与批次处理器
type ExecutionHandler struct {
	*base
}

type startProcessRequest struct {
	BatchID string `json:"batch_id"`
}

type createBatchesRequest struct {
	PlannedQuantities []float64 `json:"planned_quantities" binding:"required"`
}

type completeBatchRequest struct {
	ActualQuantity *float64 `json:"actual_quantity" binding:"required"`
}

type supervisorRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// GetProcess GET /processes/:id
func (h *ExecutionHandler) GetProcess(c *gin.Context) {
	pe, err := h.svc.Process.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, pe)
}

// StartProcess 启动工序，可同时开始一个批次
// POST /processes/:id/start
func (h *ExecutionHandler) StartProcess(c *gin.Context) {
	var req startProcessRequest
	if !bindOptional(c, &req) {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	pe, err := h.svc.Process.Start(c.Request.Context(), actor, c.Param("id"), req.BatchID)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, pe)
}

// CompleteProcess POST /processes/:id/complete
func (h *ExecutionHandler) CompleteProcess(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	pe, err := h.svc.Process.Complete(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, pe)
}

// CompleteStep POST /processes/:id/steps/:stepId/complete
func (h *ExecutionHandler) CompleteStep(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	step, err := h.svc.Process.CompleteStep(c.Request.Context(), actor, c.Param("id"), c.Param("stepId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, step)
}

// AssignSupervisor PUT /processes/:id/supervisor
func (h *ExecutionHandler) AssignSupervisor(c *gin.Context) {
	var req supervisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	pe, err := h.svc.Process.AssignSupervisor(c.Request.Context(), actor, c.Param("id"), req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, pe)
}

// HoldProcess POST /processes/:id/hold
func (h *ExecutionHandler) HoldProcess(c *gin.Context) {
	var req reasonRequest
	if !bindOptional(c, &req) {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	pe, err := h.svc.Process.Hold(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, pe)
}

// ResumeProcess POST /processes/:id/resume
func (h *ExecutionHandler) ResumeProcess(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	pe, err := h.svc.Process.Resume(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, pe)
}

// CreateBatches 登记批次
// POST /orders/:id/batches
func (h *ExecutionHandler) CreateBatches(c *gin.Context) {
	var req createBatchesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	batches, err := h.svc.Batch.CreateBatches(c.Request.Context(), actor, c.Param("id"), req.PlannedQuantities)
	if err != nil {
		h.fail(c, err)
		return
	}
	Created(c, ListResponse{Items: batches})
}

// ListBatches GET /orders/:id/batches
func (h *ExecutionHandler) ListBatches(c *gin.Context) {
	batches, err := h.svc.Batch.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, ListResponse{Items: batches})
}

// GetBatch GET /batches/:id
func (h *ExecutionHandler) GetBatch(c *gin.Context) {
	b, err := h.svc.Batch.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, b)
}

// StartBatchProcess POST /batches/:id/processes/:peId/start
func (h *ExecutionHandler) StartBatchProcess(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	entry, err := h.svc.Batch.StartBatchProcess(c.Request.Context(), actor, c.Param("id"), c.Param("peId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, entry)
}

// CompleteBatchProcess 完成批次工序，重复提交返回首次结果
// POST /batches/:id/processes/:peId/complete
func (h *ExecutionHandler) CompleteBatchProcess(c *gin.Context) {
	var req completeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	res, err := h.svc.Batch.CompleteBatchProcess(c.Request.Context(), actor, c.Param("id"), c.Param("peId"), *req.ActualQuantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, res)
}
