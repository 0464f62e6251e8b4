package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/report"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
)

// OrderHandler MO生命周期处理器
type OrderHandler struct {
	*base
}

// CreateOrder 创建草稿MO
// POST /api/v1/mes/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	res, err := h.svc.Order.Create(c.Request.Context(), actor, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	Created(c, res)
}

// ListOrders MO列表
// GET /api/v1/mes/orders?status=a,b&product_code=xxx&priority=xxx&search=xxx
func (h *OrderHandler) ListOrders(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":       c.Query("status"),
		"product_code": c.Query("product_code"),
		"priority":     c.Query("priority"),
		"search":       c.Query("search"),
	}

	items, total, err := h.svc.Order.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取MO列表失败: "+err.Error())
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

// GetOrder MO详情（含工序与批次台账），:id 可以是ID或MO编号
// GET /api/v1/mes/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	mo, err := h.svc.Order.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, mo)
}

// ListEvents MO操作日志
// GET /api/v1/mes/orders/:id/events
func (h *OrderHandler) ListEvents(c *gin.Context) {
	events, err := h.svc.Order.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, ListResponse{Items: events})
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// transition 只需要MO编号的状态变更
func (h *OrderHandler) transition(c *gin.Context, fn func(c *gin.Context, moRef string) (*entity.ManufacturingOrder, error)) {
	mo, err := fn(c, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, mo)
}

// Submit POST /orders/:id/submit
func (h *OrderHandler) Submit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, moRef string) (*entity.ManufacturingOrder, error) {
		return h.svc.Order.Submit(c.Request.Context(), actor, moRef)
	})
}

// GMApprove POST /orders/:id/gm-approve
func (h *OrderHandler) GMApprove(c *gin.Context) {
	var req notesRequest
	if !bindOptional(c, &req) {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, moRef string) (*entity.ManufacturingOrder, error) {
		return h.svc.Order.GMApprove(c.Request.Context(), actor, moRef, req.Notes)
	})
}

// AllocateRM POST /orders/:id/allocate-rm
func (h *OrderHandler) AllocateRM(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, moRef string) (*entity.ManufacturingOrder, error) {
		return h.svc.Order.AllocateRM(c.Request.Context(), actor, moRef)
	})
}

// Approve POST /orders/:id/approve
func (h *OrderHandler) Approve(c *gin.Context) {
	var req service.ApproveRequest
	if !bindOptional(c, &req) {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, moRef string) (*entity.ManufacturingOrder, error) {
		return h.svc.Order.Approve(c.Request.Context(), actor, moRef, req)
	})
}

// StartProduction POST /orders/:id/start
func (h *OrderHandler) StartProduction(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, moRef string) (*entity.ManufacturingOrder, error) {
		return h.svc.Order.StartProduction(c.Request.Context(), actor, moRef)
	})
}

// Reject POST /orders/:id/reject
func (h *OrderHandler) Reject(c *gin.Context) {
	h.withReason(c, h.svc.Order.Reject)
}

// Hold POST /orders/:id/hold
func (h *OrderHandler) Hold(c *gin.Context) {
	h.withReason(c, h.svc.Order.Hold)
}

// Resume POST /orders/:id/resume
func (h *OrderHandler) Resume(c *gin.Context) {
	h.withReason(c, h.svc.Order.Resume)
}

// Cancel POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	h.withReason(c, h.svc.Order.Cancel)
}

func (h *OrderHandler) withReason(c *gin.Context, fn func(ctx context.Context, actor engine.Actor, moRef, reason string) (*entity.ManufacturingOrder, error)) {
	var req reasonRequest
	if !bindOptional(c, &req) {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, moRef string) (*entity.ManufacturingOrder, error) {
		return fn(c.Request.Context(), actor, moRef, req.Reason)
	})
}

// Complete 手工完成MO
// POST /orders/:id/complete
func (h *OrderHandler) Complete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, moRef string) (*entity.ManufacturingOrder, error) {
		return h.svc.Order.Complete(c.Request.Context(), actor, moRef)
	})
}

// InitializeProcesses 按产品工序模板实例化工序
// POST /orders/:id/processes
func (h *OrderHandler) InitializeProcesses(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	processes, err := h.svc.Order.InitializeProcesses(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, ListResponse{Items: processes})
}

// ListProcesses GET /orders/:id/processes
func (h *OrderHandler) ListProcesses(c *gin.Context) {
	processes, err := h.svc.Process.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, ListResponse{Items: processes})
}

// ExportOrder 导出MO工作簿
// GET /orders/:id/export
func (h *OrderHandler) ExportOrder(c *gin.Context) {
	data, filename, err := h.svc.Report.ExportOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Data(http.StatusOK, report.ContentType, data)
}

// ArchiveOrder 导出并归档到对象存储
// POST /orders/:id/archive
func (h *OrderHandler) ArchiveOrder(c *gin.Context) {
	path, err := h.svc.Report.ArchiveOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, gin.H{"path": path})
}

// splitList 逗号分隔的查询参数
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
