package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
)

// LedgerHandler 资源台账、生产队列与停产处理器
type LedgerHandler struct {
	*base
}

type priorityRequest struct {
	Priority string `json:"priority" binding:"required"`
	Reason   string `json:"reason"`
}

// ListResources GET /orders/:id/resources?active=true
func (h *LedgerHandler) ListResources(c *gin.Context) {
	entries, err := h.svc.Ledger.List(c.Request.Context(), c.Param("id"), c.Query("active") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, ListResponse{Items: entries})
}

// Reserve POST /orders/:id/resources
func (h *LedgerHandler) Reserve(c *gin.Context) {
	var req service.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	entry, err := h.svc.Ledger.Reserve(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	Created(c, entry)
}

// ReleaseAll POST /orders/:id/resources/release-all
func (h *LedgerHandler) ReleaseAll(c *gin.Context) {
	var req reasonRequest
	if !bindOptional(c, &req) {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	counts, err := h.svc.Ledger.ReleaseAllFor(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, gin.H{"released": counts})
}

// Lock POST /resources/:id/lock
func (h *LedgerHandler) Lock(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	entry, err := h.svc.Ledger.Lock(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, entry)
}

// Release POST /resources/:id/release
func (h *LedgerHandler) Release(c *gin.Context) {
	var req reasonRequest
	if !bindOptional(c, &req) {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	entry, err := h.svc.Ledger.Release(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, entry)
}

// ListQueue 生产优先级队列
// GET /queue?status=in_progress,rm_allocated
func (h *LedgerHandler) ListQueue(c *gin.Context) {
	mos, err := h.svc.Queue.ListQueue(c.Request.Context(), splitList(c.Query("status")))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, ListResponse{Items: mos})
}

// PreviewStop 停产影响预览
// GET /orders/:id/stop-impact
func (h *LedgerHandler) PreviewStop(c *gin.Context) {
	impact, err := h.svc.Queue.PreviewStop(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, impact)
}

// Stop POST /orders/:id/stop
func (h *LedgerHandler) Stop(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	res, err := h.svc.Queue.Stop(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, res)
}

// SetPriority PUT /orders/:id/priority
func (h *LedgerHandler) SetPriority(c *gin.Context) {
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	mo, err := h.svc.Queue.SetPriority(c.Request.Context(), actor, c.Param("id"), req.Priority, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, mo)
}
